package reputation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
	"github.com/Mindburn-Labs/agora/pkg/store"
)

func intPtr(v int) *int { return &v }

func TestComputeNeutralForNoHistory(t *testing.T) {
	score := Compute("agent-new", nil, time.Now())

	assert.Equal(t, NeutralScore, score.Overall)
	assert.Equal(t, 0, score.Contracts)
	assert.Equal(t, NeutralScore, score.SuccessRate)
	assert.Equal(t, 0.0, score.Uptime)
}

func TestComputeMixedHistory(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	recordedAt := now.Add(-366 * 24 * time.Hour) // full uptime credit

	// Nine on-time successes with ratings, one failure at 3x the promised
	// latency with no rating.
	ratings := []int{5, 5, 4, 5, 5, 4, 5, 5, 5}
	history := make([]contracts.PerformanceRecord, 0, 10)
	for i, r := range ratings {
		history = append(history, contracts.PerformanceRecord{
			AgentID:         "agent-1",
			ContractID:      string(rune('a' + i)),
			Success:         true,
			ActualLatency:   8 * time.Second,
			PromisedLatency: 10 * time.Second,
			Rating:          intPtr(r),
			RecordedAt:      recordedAt,
		})
	}
	history = append(history, contracts.PerformanceRecord{
		AgentID:         "agent-1",
		ContractID:      "j",
		Success:         false,
		ActualLatency:   30 * time.Second,
		PromisedLatency: 10 * time.Second,
		RecordedAt:      recordedAt,
	})

	score := Compute("agent-1", history, now)

	assert.InDelta(t, 0.9, score.SuccessRate, 1e-9)
	assert.InDelta(t, 0.9, score.Latency, 1e-9)
	assert.InDelta(t, 43.0/9.0/5.0, score.Rating, 1e-9)
	assert.InDelta(t, 1.0, score.Uptime, 1e-9)
	// Latency deltas are nine 1s and one 0: variance 0.09, so 1 - 0.36.
	assert.InDelta(t, 0.64, score.Consistency, 1e-9)

	expected := 0.40*0.9 + 0.20*0.9 + 0.20*(43.0/9.0/5.0) + 0.10*1.0 + 0.10*0.64
	assert.InDelta(t, expected, score.Overall, 1e-9)
	assert.GreaterOrEqual(t, score.Overall, 0.0)
	assert.LessOrEqual(t, score.Overall, 1.0)
}

func TestRecordLatencyScore(t *testing.T) {
	cases := []struct {
		name     string
		actual   time.Duration
		promised time.Duration
		want     float64
	}{
		{"early", 5 * time.Second, 10 * time.Second, 1},
		{"exactly on time", 10 * time.Second, 10 * time.Second, 1},
		{"half over", 15 * time.Second, 10 * time.Second, 0.5},
		{"double", 20 * time.Second, 10 * time.Second, 0},
		{"triple clamps at zero", 30 * time.Second, 10 * time.Second, 0},
		{"no promise", 30 * time.Second, 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := recordLatencyScore(contracts.PerformanceRecord{
				ActualLatency:   tc.actual,
				PromisedLatency: tc.promised,
			})
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestRatingScoreDefaultsNeutral(t *testing.T) {
	history := []contracts.PerformanceRecord{
		{Success: true, PromisedLatency: time.Second, ActualLatency: time.Second},
	}
	assert.Equal(t, NeutralScore, ratingScore(history))
}

func TestConsistencySingleRecord(t *testing.T) {
	history := []contracts.PerformanceRecord{
		{PromisedLatency: time.Second, ActualLatency: 2 * time.Second},
	}
	assert.Equal(t, 1.0, consistencyScore(history))
}

func TestEngineRecordAndScore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(store.NewMemoryPerformanceStore(), DefaultBadgeThresholds()).
		WithClock(func() time.Time { return now })

	// Unknown agent scores neutral.
	score, err := engine.TrustScore(ctx, "agent-unknown")
	require.NoError(t, err)
	assert.Equal(t, NeutralScore, score.Overall)

	require.NoError(t, engine.RecordPerformance(ctx, &contracts.PerformanceRecord{
		AgentID:         "agent-1",
		ContractID:      "c-1",
		Success:         true,
		ActualLatency:   time.Second,
		PromisedLatency: 2 * time.Second,
		Rating:          intPtr(5),
		Reward:          10,
		RecordedAt:      now,
	}))

	score, err = engine.TrustScore(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 1, score.Contracts)
	assert.Equal(t, 1.0, score.SuccessRate)

	// A failure invalidates the cache and lowers the score.
	require.NoError(t, engine.RecordPerformance(ctx, &contracts.PerformanceRecord{
		AgentID:         "agent-1",
		ContractID:      "c-2",
		Success:         false,
		ActualLatency:   10 * time.Second,
		PromisedLatency: 2 * time.Second,
		RecordedAt:      now,
	}))
	updated, err := engine.TrustScore(ctx, "agent-1")
	require.NoError(t, err)
	assert.Less(t, updated.Overall, score.Overall)
}

func TestEngineRejectsBadRating(t *testing.T) {
	engine := NewEngine(store.NewMemoryPerformanceStore(), DefaultBadgeThresholds())

	err := engine.RecordPerformance(context.Background(), &contracts.PerformanceRecord{
		AgentID: "agent-1",
		Rating:  intPtr(6),
	})
	var verr *contracts.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "rating", verr.Field)
}

func TestDeriveBadges(t *testing.T) {
	th := DefaultBadgeThresholds()

	badges := DeriveBadges(&contracts.TrustScore{Overall: 0.96, Contracts: 3}, 0, th)
	assert.Equal(t, []contracts.Badge{contracts.BadgePlatinum}, badges)

	badges = DeriveBadges(&contracts.TrustScore{Overall: 0.90, Contracts: 60}, 20_000, th)
	assert.Equal(t, []contracts.Badge{contracts.BadgeGold, contracts.BadgeVeteran, contracts.BadgeHighRoll}, badges)

	badges = DeriveBadges(&contracts.TrustScore{Overall: 0.40, Contracts: 1}, 0, th)
	assert.Empty(t, badges)
}

func TestLeaderboardOrdering(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(store.NewMemoryPerformanceStore(), DefaultBadgeThresholds()).
		WithClock(func() time.Time { return now })

	// agent-good: success on time. agent-bad: failure, very late.
	require.NoError(t, engine.RecordPerformance(ctx, &contracts.PerformanceRecord{
		AgentID: "agent-good", ContractID: "c-1", Success: true,
		ActualLatency: time.Second, PromisedLatency: 2 * time.Second,
		RecordedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, engine.RecordPerformance(ctx, &contracts.PerformanceRecord{
		AgentID: "agent-bad", ContractID: "c-2", Success: false,
		ActualLatency: time.Minute, PromisedLatency: time.Second,
		RecordedAt: now.Add(-time.Hour),
	}))

	board, err := engine.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, "agent-good", board.Entries[0].Score.AgentID)
	assert.Equal(t, 1, board.Entries[0].Rank)
	assert.Equal(t, "agent-bad", board.Entries[1].Score.AgentID)
	assert.Equal(t, 2, board.Entries[1].Rank)
}
