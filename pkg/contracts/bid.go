package contracts

import (
	"time"

	"github.com/google/uuid"
)

// Bid is one agent's signed proposal to fulfill a contract. At most one bid
// per (contract, agent) pair is live: resubmission replaces, never appends.
// Bids are read-only after submission and retained after the contract
// concludes for historical scoring.
type Bid struct {
	ID              string        `json:"id"`
	ContractID      string        `json:"contract_id"`
	AgentID         string        `json:"agent_id"`
	Price           float64       `json:"price"`
	PromisedLatency time.Duration `json:"promised_latency"`
	Confidence      float64       `json:"confidence"`
	SubmittedAt     time.Time     `json:"submitted_at"`
	Signature       string        `json:"signature,omitempty"`
}

// NewBid builds a bid stamped with the server-received time, which is the
// authoritative ordering for last-write-wins resubmission.
func NewBid(contractID, agentID string, price float64, promised time.Duration, confidence float64, now time.Time) *Bid {
	return &Bid{
		ID:              uuid.New().String(),
		ContractID:      contractID,
		AgentID:         agentID,
		Price:           price,
		PromisedLatency: promised,
		Confidence:      confidence,
		SubmittedAt:     now.UTC(),
	}
}
