// Package store provides the entity repositories of the marketplace. One
// repository interface per entity, injected into each component; no
// module-level registries. SQLite implementations back the node, and
// in-memory implementations back tests and the demo.
package store

import (
	"context"
	"time"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

// ContractStore persists contracts. Contracts are never deleted; concluded
// ones remain in their terminal state.
type ContractStore interface {
	Create(ctx context.Context, c *contracts.Contract) error
	Get(ctx context.Context, id string) (*contracts.Contract, error)
	// Update rewrites mutable fields. Callers serialize per contract via the
	// lifecycle manager's keyed locks.
	Update(ctx context.Context, c *contracts.Contract) error
	// CASStatus atomically transitions id from -> to, reporting whether this
	// call performed the transition. A false return with no error means the
	// contract was not in the from state (another caller got there first).
	CASStatus(ctx context.Context, id string, from, to contracts.ContractStatus) (bool, error)
	// Award atomically transitions BIDDING -> AWARDED recording the winner.
	// awarded_to is written here and nowhere else.
	Award(ctx context.Context, id, winner string, at time.Time) (bool, error)
	ListByStatus(ctx context.Context, status contracts.ContractStatus) ([]*contracts.Contract, error)
}

// BidStore persists bids. Put upserts on (contract_id, agent_id): a
// resubmission from the same agent replaces the prior bid. Bids are retained
// after the contract concludes.
type BidStore interface {
	Put(ctx context.Context, b *contracts.Bid) error
	ListByContract(ctx context.Context, contractID string) ([]*contracts.Bid, error)
	Get(ctx context.Context, contractID, agentID string) (*contracts.Bid, error)
}

// DeliveryStore persists deliveries. Put replaces a pending delivery for the
// same contract; validated deliveries are immutable.
type DeliveryStore interface {
	Put(ctx context.Context, d *contracts.Delivery) error
	Get(ctx context.Context, contractID string) (*contracts.Delivery, error)
}

// PerformanceStore is the append-only performance history. It satisfies the
// reputation engine's HistoryStore.
type PerformanceStore interface {
	Append(ctx context.Context, rec *contracts.PerformanceRecord) error
	ListByAgent(ctx context.Context, agentID string) ([]contracts.PerformanceRecord, error)
	ListAgents(ctx context.Context) ([]string, error)
	TotalReward(ctx context.Context, agentID string) (float64, error)
}
