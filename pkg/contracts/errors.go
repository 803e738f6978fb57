package contracts

import "fmt"

// ValidationError rejects malformed or out-of-range input synchronously;
// nothing is persisted.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// StateConflictError rejects an operation attempted against a contract in an
// incompatible state. The caller must re-query current state; the core never
// retries on its behalf.
type StateConflictError struct {
	ContractID string         `json:"contract_id"`
	Status     ContractStatus `json:"status"`
	Operation  string         `json:"operation"`
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict: %s not permitted for contract %s in %s", e.Operation, e.ContractID, e.Status)
}

// NotFoundError rejects a reference to an unknown contract, bid, or agent.
type NotFoundError struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotAwardedAgentError rejects a delivery from an agent that did not win the
// contract. The contract state is left unchanged.
type NotAwardedAgentError struct {
	ContractID string `json:"contract_id"`
	AgentID    string `json:"agent_id"`
}

func (e *NotAwardedAgentError) Error() string {
	return fmt.Sprintf("agent %s was not awarded contract %s", e.AgentID, e.ContractID)
}
