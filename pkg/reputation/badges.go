package reputation

import "github.com/Mindburn-Labs/agora/pkg/contracts"

// BadgeThresholds are configuration, not protocol. The defaults mirror the
// leaderboard tiers used elsewhere in the platform.
type BadgeThresholds struct {
	Platinum       float64 `yaml:"platinum" json:"platinum"`
	Gold           float64 `yaml:"gold" json:"gold"`
	Silver         float64 `yaml:"silver" json:"silver"`
	Bronze         float64 `yaml:"bronze" json:"bronze"`
	VeteranCount   int     `yaml:"veteran_count" json:"veteran_count"`
	HighRollReward float64 `yaml:"high_roll_reward" json:"high_roll_reward"`
}

// DefaultBadgeThresholds returns the standard tier cutoffs.
func DefaultBadgeThresholds() BadgeThresholds {
	return BadgeThresholds{
		Platinum:       0.95,
		Gold:           0.85,
		Silver:         0.70,
		Bronze:         0.50,
		VeteranCount:   50,
		HighRollReward: 10_000,
	}
}

// DeriveBadges is a pure function of the score, contract count, and total
// reward earned. No hidden state.
func DeriveBadges(score *contracts.TrustScore, totalReward float64, t BadgeThresholds) []contracts.Badge {
	var badges []contracts.Badge
	switch {
	case score.Overall > t.Platinum:
		badges = append(badges, contracts.BadgePlatinum)
	case score.Overall > t.Gold:
		badges = append(badges, contracts.BadgeGold)
	case score.Overall > t.Silver:
		badges = append(badges, contracts.BadgeSilver)
	case score.Overall > t.Bronze:
		badges = append(badges, contracts.BadgeBronze)
	}
	if score.Contracts >= t.VeteranCount {
		badges = append(badges, contracts.BadgeVeteran)
	}
	if totalReward >= t.HighRollReward {
		badges = append(badges, contracts.BadgeHighRoll)
	}
	return badges
}
