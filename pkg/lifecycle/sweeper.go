package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
	"github.com/Mindburn-Labs/agora/pkg/store"
)

// Sweeper periodically closes due bidding windows and fails awarded
// contracts that overran their deadline. Transitions are rate limited so a
// large backlog after downtime drains without starving live traffic.
type Sweeper struct {
	manager   *Manager
	contracts store.ContractStore
	interval  time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
	clock     func() time.Time
}

// NewSweeper creates a sweeper polling at the given interval.
func NewSweeper(manager *Manager, contractStore store.ContractStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{
		manager:   manager,
		contracts: contractStore,
		interval:  interval,
		limiter:   rate.NewLimiter(rate.Limit(100), 10),
		logger:    slog.Default().With("component", "sweeper"),
		clock:     time.Now,
	}
}

// WithRateLimit overrides the transitions-per-second cap.
func (s *Sweeper) WithRateLimit(perSecond float64, burst int) *Sweeper {
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return s
}

// WithClock overrides the clock for deterministic testing.
func (s *Sweeper) WithClock(clock func() time.Time) *Sweeper {
	s.clock = clock
	s.manager.WithClock(clock)
	return s
}

// Run polls until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper stopped")
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce performs a single pass: close expired bidding windows, then fail
// overdue awarded work.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	now := s.clock()

	bidding, err := s.contracts.ListByStatus(ctx, contracts.StatusBidding)
	if err != nil {
		return err
	}
	for _, c := range bidding {
		if now.Before(c.BiddingClosesAt()) {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, _, err := s.manager.CloseBidding(ctx, c.ID); err != nil {
			s.logger.ErrorContext(ctx, "close bidding failed", "contract_id", c.ID, "error", err)
		}
	}

	for _, status := range []contracts.ContractStatus{contracts.StatusAwarded, contracts.StatusInProgress} {
		active, err := s.contracts.ListByStatus(ctx, status)
		if err != nil {
			return err
		}
		for _, c := range active {
			if c.Deadline == nil || now.Before(*c.Deadline) {
				continue
			}
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
			if _, err := s.manager.FailContract(ctx, c.ID, "deadline exceeded"); err != nil {
				s.logger.ErrorContext(ctx, "fail contract failed", "contract_id", c.ID, "error", err)
			}
		}
	}
	return nil
}
