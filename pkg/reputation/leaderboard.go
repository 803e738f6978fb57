package reputation

import (
	"context"
	"sort"
	"time"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

// LeaderboardEntry is one ranked agent.
type LeaderboardEntry struct {
	Rank  int                   `json:"rank"`
	Score *contracts.TrustScore `json:"score"`
}

// Leaderboard is a point-in-time ranking of all known agents by overall
// trust score. Ordering is deterministic: score descending, then agent id.
type Leaderboard struct {
	ComputedAt time.Time          `json:"computed_at"`
	Entries    []LeaderboardEntry `json:"entries"`
}

// Leaderboard ranks every agent with history.
func (e *Engine) Leaderboard(ctx context.Context) (*Leaderboard, error) {
	agents, err := e.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, 0, len(agents))
	for _, agentID := range agents {
		score, err := e.TrustScore(ctx, agentID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, LeaderboardEntry{Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Score, entries[j].Score
		if a.Overall != b.Overall {
			return a.Overall > b.Overall
		}
		return a.AgentID < b.AgentID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return &Leaderboard{ComputedAt: e.clock().UTC(), Entries: entries}, nil
}
