package contracts

import "time"

// PerformanceRecord is one immutable row of history per concluded contract,
// written exactly once when a contract settles, is disputed, or fails. It is
// the only input to reputation scoring.
type PerformanceRecord struct {
	AgentID         string        `json:"agent_id"`
	ContractID      string        `json:"contract_id"`
	Success         bool          `json:"success"`
	ActualLatency   time.Duration `json:"actual_latency"`
	PromisedLatency time.Duration `json:"promised_latency"`
	Rating          *int          `json:"rating,omitempty"` // 1..5 when present
	Reward          float64       `json:"reward"`           // reward earned (0 on failure)
	RecordedAt      time.Time     `json:"recorded_at"`
}
