// Package contracts defines the shared domain types of the Agora task
// marketplace: work contracts, bids, deliveries, performance history, trust
// scores, and the signed message envelope that wraps every protocol message.
package contracts

import (
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
)

// ProtocolVersion is the marketplace protocol version stamped onto every
// newly created contract.
const ProtocolVersion = "1.0.0"

// ContractStatus is the lifecycle state of a work contract.
type ContractStatus string

const (
	// StatusBidding means the bidding window is open for new bids.
	StatusBidding ContractStatus = "BIDDING"
	// StatusAwarded means a winner has been selected and recorded.
	StatusAwarded ContractStatus = "AWARDED"
	// StatusInProgress means the winning agent acknowledged and is working.
	StatusInProgress ContractStatus = "IN_PROGRESS"
	// StatusDelivered means a result was submitted and awaits validation.
	StatusDelivered ContractStatus = "DELIVERED"
	// StatusValidated means the delivery passed validation.
	StatusValidated ContractStatus = "VALIDATED"
	// StatusSettled is the terminal happy-path state.
	StatusSettled ContractStatus = "SETTLED"
	// StatusExpired means the bidding window closed with zero valid bids.
	StatusExpired ContractStatus = "EXPIRED"
	// StatusFailed means the awarded agent never delivered before the deadline.
	StatusFailed ContractStatus = "FAILED"
	// StatusDisputed means validation rejected the delivery.
	StatusDisputed ContractStatus = "DISPUTED"
)

// Terminal reports whether the status admits no further transitions.
func (s ContractStatus) Terminal() bool {
	switch s {
	case StatusSettled, StatusExpired, StatusFailed, StatusDisputed:
		return true
	}
	return false
}

// rank orders the happy path for monotonicity checks. Terminal side branches
// are not ranked.
func (s ContractStatus) rank() int {
	switch s {
	case StatusBidding:
		return 0
	case StatusAwarded:
		return 1
	case StatusInProgress:
		return 2
	case StatusDelivered:
		return 3
	case StatusValidated:
		return 4
	case StatusSettled:
		return 5
	}
	return -1
}

// validTransitions is the contract state machine. Transitions are monotonic
// along the happy path; the only exits are the terminal side branches.
var validTransitions = map[ContractStatus][]ContractStatus{
	StatusBidding:    {StatusAwarded, StatusExpired},
	StatusAwarded:    {StatusInProgress, StatusDelivered, StatusFailed},
	StatusInProgress: {StatusDelivered, StatusFailed},
	StatusDelivered:  {StatusValidated, StatusDisputed},
	StatusValidated:  {StatusSettled},
}

// CanTransition reports whether from -> to is a legal state machine edge.
func CanTransition(from, to ContractStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// HappyPathOrdered reports whether a precedes b along the happy path. Returns
// false when either side is a terminal side branch.
func HappyPathOrdered(a, b ContractStatus) bool {
	ra, rb := a.rank(), b.rank()
	return ra >= 0 && rb >= 0 && ra < rb
}

// Contract is a posted unit of work awaiting bids. It is mutated only by the
// lifecycle manager and never deleted; concluded contracts remain as an
// immutable audit trail in their terminal state.
type Contract struct {
	ID            string            `json:"id"`
	IssuerID      string            `json:"issuer_id"`
	Intent        string            `json:"intent"`
	Context       map[string]string `json:"context,omitempty"`
	Reward        float64           `json:"reward"`
	Deadline      *time.Time        `json:"deadline,omitempty"`
	BiddingWindow time.Duration     `json:"bidding_window"`
	Status        ContractStatus    `json:"status"`
	AwardedTo     string            `json:"awarded_to,omitempty"`
	Capability    string            `json:"capability,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	AwardedAt     *time.Time        `json:"awarded_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Version       string            `json:"version"`
}

// NewContract builds a contract in BIDDING with a fresh id and the current
// protocol version. Validation of reward and window is the lifecycle
// manager's job.
func NewContract(issuerID, intent string, reward float64, window time.Duration, now time.Time) *Contract {
	return &Contract{
		ID:            uuid.New().String(),
		IssuerID:      issuerID,
		Intent:        intent,
		Reward:        reward,
		BiddingWindow: window,
		Status:        StatusBidding,
		CreatedAt:     now.UTC(),
		Version:       ProtocolVersion,
	}
}

// BiddingClosesAt is the instant after which bids are rejected.
func (c *Contract) BiddingClosesAt() time.Time {
	return c.CreatedAt.Add(c.BiddingWindow)
}

// CompatibleVersion reports whether tag is a semver release compatible with
// the running protocol (same major version).
func CompatibleVersion(tag string) bool {
	v, err := semver.NewVersion(tag)
	if err != nil {
		return false
	}
	return v.Major() == semver.MustParse(ProtocolVersion).Major()
}
