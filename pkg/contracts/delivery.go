package contracts

import "time"

// ValidationOutcome is the state of a delivery's validation.
type ValidationOutcome string

const (
	ValidationPending  ValidationOutcome = "PENDING"
	ValidationApproved ValidationOutcome = "APPROVED"
	ValidationRejected ValidationOutcome = "REJECTED"
)

// Delivery is the result submitted by the winning agent. The payload itself
// lives in the blob store; PayloadRef is its content hash. At most one
// delivery is active per contract: resubmission replaces a pending one but
// never an already-validated one.
type Delivery struct {
	ContractID  string            `json:"contract_id"`
	AgentID     string            `json:"agent_id"`
	PayloadRef  string            `json:"payload_ref"`
	SubmittedAt time.Time         `json:"submitted_at"`
	Outcome     ValidationOutcome `json:"outcome"`
	ValidatedAt *time.Time        `json:"validated_at,omitempty"`
	Reason      string            `json:"reason,omitempty"`
}
