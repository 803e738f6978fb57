// Package reputation computes per-agent trust scores from performance
// history. Scores are cached read-through: recording a new performance row
// marks the agent stale, and the next read recomputes.
package reputation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

// HistoryStore persists performance records. Implemented by pkg/store.
type HistoryStore interface {
	Append(ctx context.Context, rec *contracts.PerformanceRecord) error
	ListByAgent(ctx context.Context, agentID string) ([]contracts.PerformanceRecord, error)
	ListAgents(ctx context.Context) ([]string, error)
	TotalReward(ctx context.Context, agentID string) (float64, error)
}

// Engine is the reputation engine. It owns TrustScore computation
// exclusively; callers never write scores.
type Engine struct {
	store      HistoryStore
	thresholds BadgeThresholds
	logger     *slog.Logger
	clock      func() time.Time

	mu    sync.Mutex
	cache map[string]*contracts.TrustScore
	stale map[string]bool
}

// NewEngine creates an engine over the given history store.
func NewEngine(store HistoryStore, thresholds BadgeThresholds) *Engine {
	return &Engine{
		store:      store,
		thresholds: thresholds,
		logger:     slog.Default().With("component", "reputation"),
		clock:      time.Now,
		cache:      make(map[string]*contracts.TrustScore),
		stale:      make(map[string]bool),
	}
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// RecordPerformance appends the record and marks the agent's cached score
// stale. Recomputation is deferred to the next read.
func (e *Engine) RecordPerformance(ctx context.Context, rec *contracts.PerformanceRecord) error {
	if rec.AgentID == "" {
		return &contracts.ValidationError{Field: "agent_id", Message: "required"}
	}
	if rec.Rating != nil && (*rec.Rating < 1 || *rec.Rating > 5) {
		return &contracts.ValidationError{Field: "rating", Message: "must be 1..5"}
	}
	if err := e.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("append performance record: %w", err)
	}

	e.mu.Lock()
	e.stale[rec.AgentID] = true
	e.mu.Unlock()

	e.logger.DebugContext(ctx, "performance recorded",
		"agent_id", rec.AgentID,
		"contract_id", rec.ContractID,
		"success", rec.Success,
	)
	return nil
}

// TrustScore returns the cached score when fresh, recomputing on demand
// otherwise. Agents with zero history get the neutral default.
func (e *Engine) TrustScore(ctx context.Context, agentID string) (*contracts.TrustScore, error) {
	e.mu.Lock()
	cached, ok := e.cache[agentID]
	fresh := ok && !e.stale[agentID]
	e.mu.Unlock()
	if fresh {
		return cached, nil
	}
	return e.recompute(ctx, agentID)
}

// RecomputeAll is the maintenance sweep: every known agent is recomputed
// from history regardless of staleness.
func (e *Engine) RecomputeAll(ctx context.Context) error {
	agents, err := e.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	for _, agentID := range agents {
		if _, err := e.recompute(ctx, agentID); err != nil {
			return err
		}
	}
	e.logger.InfoContext(ctx, "trust scores recomputed", "agents", len(agents))
	return nil
}

func (e *Engine) recompute(ctx context.Context, agentID string) (*contracts.TrustScore, error) {
	history, err := e.store.ListByAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", agentID, err)
	}
	totalReward, err := e.store.TotalReward(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("load reward total for %s: %w", agentID, err)
	}

	score := Compute(agentID, history, e.clock())
	score.Badges = DeriveBadges(score, totalReward, e.thresholds)

	e.mu.Lock()
	e.cache[agentID] = score
	delete(e.stale, agentID)
	e.mu.Unlock()
	return score, nil
}
