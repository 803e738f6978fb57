package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

// stores bundles one implementation family for the conformance suite.
type stores struct {
	contracts   ContractStore
	bids        BidStore
	deliveries  DeliveryStore
	performance PerformanceStore
}

func implementations(t *testing.T) map[string]stores {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sc, err := NewSQLiteContractStore(db)
	require.NoError(t, err)
	sb, err := NewSQLiteBidStore(db)
	require.NoError(t, err)
	sd, err := NewSQLiteDeliveryStore(db)
	require.NoError(t, err)
	sp, err := NewSQLitePerformanceStore(db)
	require.NoError(t, err)

	return map[string]stores{
		"memory": {
			contracts:   NewMemoryContractStore(),
			bids:        NewMemoryBidStore(),
			deliveries:  NewMemoryDeliveryStore(),
			performance: NewMemoryPerformanceStore(),
		},
		"sqlite": {
			contracts:   sc,
			bids:        sb,
			deliveries:  sd,
			performance: sp,
		},
	}
}

func newTestContract(id string) *contracts.Contract {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := contracts.NewContract("issuer-1", "label a dataset", 10, time.Minute, now)
	c.ID = id
	return c
}

func TestContractStoreRoundTrip(t *testing.T) {
	for name, impl := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			deadline := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
			c := newTestContract("c-roundtrip")
			c.Context = map[string]string{"lang": "de"}
			c.Deadline = &deadline
			c.Capability = "labeling"

			require.NoError(t, impl.contracts.Create(ctx, c))

			got, err := impl.contracts.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, c.IssuerID, got.IssuerID)
			assert.Equal(t, c.Intent, got.Intent)
			assert.Equal(t, c.Context, got.Context)
			assert.Equal(t, c.Reward, got.Reward)
			assert.Equal(t, c.BiddingWindow, got.BiddingWindow)
			assert.Equal(t, c.Capability, got.Capability)
			require.NotNil(t, got.Deadline)
			assert.True(t, got.Deadline.Equal(deadline))
			assert.True(t, got.CreatedAt.Equal(c.CreatedAt))

			_, err = impl.contracts.Get(ctx, "missing")
			var nf *contracts.NotFoundError
			assert.ErrorAs(t, err, &nf)

			assert.Error(t, impl.contracts.Create(ctx, c), "duplicate id")
		})
	}
}

func TestContractStoreCASStatus(t *testing.T) {
	for name, impl := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newTestContract("c-cas")
			require.NoError(t, impl.contracts.Create(ctx, c))

			ok, err := impl.contracts.CASStatus(ctx, c.ID, contracts.StatusBidding, contracts.StatusExpired)
			require.NoError(t, err)
			assert.True(t, ok)

			// Second transition from BIDDING loses.
			ok, err = impl.contracts.CASStatus(ctx, c.ID, contracts.StatusBidding, contracts.StatusExpired)
			require.NoError(t, err)
			assert.False(t, ok)

			got, err := impl.contracts.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, contracts.StatusExpired, got.Status)
		})
	}
}

func TestContractStoreAwardWinsOnce(t *testing.T) {
	for name, impl := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := newTestContract("c-award")
			require.NoError(t, impl.contracts.Create(ctx, c))
			at := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)

			ok, err := impl.contracts.Award(ctx, c.ID, "agent-1", at)
			require.NoError(t, err)
			assert.True(t, ok)

			// A second award must not overwrite the winner.
			ok, err = impl.contracts.Award(ctx, c.ID, "agent-2", at.Add(time.Second))
			require.NoError(t, err)
			assert.False(t, ok)

			got, err := impl.contracts.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, contracts.StatusAwarded, got.Status)
			assert.Equal(t, "agent-1", got.AwardedTo)
			require.NotNil(t, got.AwardedAt)
			assert.True(t, got.AwardedAt.Equal(at))
		})
	}
}

func TestContractStoreListByStatus(t *testing.T) {
	for name, impl := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, impl.contracts.Create(ctx, newTestContract("c-list-1")))
			require.NoError(t, impl.contracts.Create(ctx, newTestContract("c-list-2")))

			_, err := impl.contracts.CASStatus(ctx, "c-list-2", contracts.StatusBidding, contracts.StatusExpired)
			require.NoError(t, err)

			bidding, err := impl.contracts.ListByStatus(ctx, contracts.StatusBidding)
			require.NoError(t, err)
			ids := make([]string, 0, len(bidding))
			for _, c := range bidding {
				ids = append(ids, c.ID)
			}
			assert.Contains(t, ids, "c-list-1")
			assert.NotContains(t, ids, "c-list-2")
		})
	}
}

func TestBidStoreUpsertLastWriteWins(t *testing.T) {
	for name, impl := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

			first := contracts.NewBid("c-bid", "agent-1", 10, time.Second, 0.9, base)
			require.NoError(t, impl.bids.Put(ctx, first))

			newer := contracts.NewBid("c-bid", "agent-1", 4, time.Second, 0.9, base.Add(time.Second))
			require.NoError(t, impl.bids.Put(ctx, newer))

			got, err := impl.bids.Get(ctx, "c-bid", "agent-1")
			require.NoError(t, err)
			assert.Equal(t, 4.0, got.Price)

			// An older timestamp arriving late must not regress the bid.
			stale := contracts.NewBid("c-bid", "agent-1", 99, time.Second, 0.9, base.Add(-time.Second))
			require.NoError(t, impl.bids.Put(ctx, stale))
			got, err = impl.bids.Get(ctx, "c-bid", "agent-1")
			require.NoError(t, err)
			assert.Equal(t, 4.0, got.Price)

			all, err := impl.bids.ListByContract(ctx, "c-bid")
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestBidStoreSubSecondTimestamps(t *testing.T) {
	for name, impl := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

			// 150ms sorts after 100ms even though "0.15" < "0.1" fails
			// lexicographically under a trailing-zero-trimmed encoding.
			newer := contracts.NewBid("c-subsec", "agent-1", 9, time.Second, 0.9, base.Add(150*time.Millisecond))
			require.NoError(t, impl.bids.Put(ctx, newer))

			stale := contracts.NewBid("c-subsec", "agent-1", 4, time.Second, 0.9, base.Add(100*time.Millisecond))
			require.NoError(t, impl.bids.Put(ctx, stale))

			got, err := impl.bids.Get(ctx, "c-subsec", "agent-1")
			require.NoError(t, err)
			assert.Equal(t, 9.0, got.Price)
			assert.True(t, got.SubmittedAt.Equal(base.Add(150*time.Millisecond)))

			require.NoError(t, impl.bids.Put(ctx, contracts.NewBid("c-subsec", "agent-2", 1, time.Second, 0.5, base.Add(100*time.Millisecond))))
			all, err := impl.bids.ListByContract(ctx, "c-subsec")
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "agent-2", all[0].AgentID)
			assert.Equal(t, "agent-1", all[1].AgentID)
		})
	}
}

func TestBidStoreListOrdering(t *testing.T) {
	for name, impl := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

			require.NoError(t, impl.bids.Put(ctx, contracts.NewBid("c-ord", "agent-b", 1, time.Second, 0.5, base.Add(time.Second))))
			require.NoError(t, impl.bids.Put(ctx, contracts.NewBid("c-ord", "agent-a", 1, time.Second, 0.5, base.Add(2*time.Second))))
			require.NoError(t, impl.bids.Put(ctx, contracts.NewBid("c-ord", "agent-c", 1, time.Second, 0.5, base)))

			all, err := impl.bids.ListByContract(ctx, "c-ord")
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "agent-c", all[0].AgentID)
			assert.Equal(t, "agent-b", all[1].AgentID)
			assert.Equal(t, "agent-a", all[2].AgentID)
		})
	}
}

func TestDeliveryStoreValidatedIsImmutable(t *testing.T) {
	for name, impl := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

			d := &contracts.Delivery{
				ContractID:  "c-del",
				AgentID:     "agent-1",
				PayloadRef:  "sha256:aa",
				SubmittedAt: now,
				Outcome:     contracts.ValidationPending,
			}
			require.NoError(t, impl.deliveries.Put(ctx, d))

			// A pending delivery may be replaced.
			d.PayloadRef = "sha256:bb"
			require.NoError(t, impl.deliveries.Put(ctx, d))

			// Validation freezes it.
			validated := now.Add(time.Minute)
			d.Outcome = contracts.ValidationApproved
			d.ValidatedAt = &validated
			require.NoError(t, impl.deliveries.Put(ctx, d))

			d.PayloadRef = "sha256:cc"
			d.Outcome = contracts.ValidationPending
			err := impl.deliveries.Put(ctx, d)
			var conflict *contracts.StateConflictError
			require.ErrorAs(t, err, &conflict)

			got, err := impl.deliveries.Get(ctx, "c-del")
			require.NoError(t, err)
			assert.Equal(t, "sha256:bb", got.PayloadRef)
			assert.Equal(t, contracts.ValidationApproved, got.Outcome)
		})
	}
}

func TestPerformanceStore(t *testing.T) {
	for name, impl := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
			rating := 4

			require.NoError(t, impl.performance.Append(ctx, &contracts.PerformanceRecord{
				AgentID: "agent-1", ContractID: "c-1", Success: true,
				ActualLatency: time.Second, PromisedLatency: 2 * time.Second,
				Rating: &rating, Reward: 10, RecordedAt: now,
			}))
			require.NoError(t, impl.performance.Append(ctx, &contracts.PerformanceRecord{
				AgentID: "agent-1", ContractID: "c-2", Success: false,
				ActualLatency: time.Minute, PromisedLatency: time.Second,
				Reward: 0, RecordedAt: now.Add(time.Hour),
			}))
			require.NoError(t, impl.performance.Append(ctx, &contracts.PerformanceRecord{
				AgentID: "agent-2", ContractID: "c-3", Success: true,
				ActualLatency: time.Second, PromisedLatency: time.Second,
				Reward: 7, RecordedAt: now,
			}))

			history, err := impl.performance.ListByAgent(ctx, "agent-1")
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.True(t, history[0].Success)
			require.NotNil(t, history[0].Rating)
			assert.Equal(t, 4, *history[0].Rating)
			assert.Nil(t, history[1].Rating)

			agents, err := impl.performance.ListAgents(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"agent-1", "agent-2"}, agents)

			total, err := impl.performance.TotalReward(ctx, "agent-1")
			require.NoError(t, err)
			assert.Equal(t, 10.0, total)

			total, err = impl.performance.TotalReward(ctx, "agent-none")
			require.NoError(t, err)
			assert.Equal(t, 0.0, total)
		})
	}
}
