package contracts

import "time"

// Badge is a derived trust certification. Badges are pure functions of the
// trust score and raw counters; thresholds are configuration, not protocol.
type Badge string

const (
	BadgePlatinum Badge = "PLATINUM"
	BadgeGold     Badge = "GOLD"
	BadgeSilver   Badge = "SILVER"
	BadgeBronze   Badge = "BRONZE"
	BadgeVeteran  Badge = "VETERAN"     // contract count threshold
	BadgeHighRoll Badge = "HIGH_ROLLER" // total reward threshold
)

// TrustScore is the cached, derived reliability estimate for one agent.
// It is owned and recomputed exclusively by the reputation engine and
// invalidated whenever a new PerformanceRecord for the agent is written.
type TrustScore struct {
	AgentID     string    `json:"agent_id"`
	SuccessRate float64   `json:"success_rate"`
	Latency     float64   `json:"latency_score"`
	Rating      float64   `json:"rating_score"`
	Uptime      float64   `json:"uptime_score"`
	Consistency float64   `json:"consistency_score"`
	Overall     float64   `json:"overall"`
	Contracts   int       `json:"contracts"`
	ComputedAt  time.Time `json:"computed_at"`
	Badges      []Badge   `json:"badges,omitempty"`
}
