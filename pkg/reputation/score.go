package reputation

import (
	"time"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

// NeutralScore is assigned to agents with zero history. New entrants are
// neither penalized (0) nor over-trusted (1).
const NeutralScore = 0.5

// Component weights. They sum to 1, so the overall score stays in [0,1]
// whenever each component does.
const (
	weightSuccess     = 0.40
	weightLatency     = 0.20
	weightRating      = 0.20
	weightUptime      = 0.10
	weightConsistency = 0.10
)

// uptimeHorizon is the tenure after which an agent earns full uptime credit.
const uptimeHorizon = 365 * 24 * time.Hour

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Compute derives a TrustScore from the agent's full performance history.
// The full history is used rather than a bounded window: histories are one
// row per concluded contract and stay small, and full-history scoring keeps
// recomputation deterministic across sweeps.
func Compute(agentID string, history []contracts.PerformanceRecord, now time.Time) *contracts.TrustScore {
	score := &contracts.TrustScore{
		AgentID:    agentID,
		ComputedAt: now.UTC(),
		Contracts:  len(history),
	}
	if len(history) == 0 {
		score.SuccessRate = NeutralScore
		score.Latency = NeutralScore
		score.Rating = NeutralScore
		score.Uptime = 0
		score.Consistency = NeutralScore
		score.Overall = NeutralScore
		return score
	}

	score.SuccessRate = successRate(history)
	score.Latency = latencyScore(history)
	score.Rating = ratingScore(history)
	score.Uptime = uptimeScore(history, now)
	score.Consistency = consistencyScore(history)
	score.Overall = clamp01(
		weightSuccess*score.SuccessRate +
			weightLatency*score.Latency +
			weightRating*score.Rating +
			weightUptime*score.Uptime +
			weightConsistency*score.Consistency)
	return score
}

func successRate(history []contracts.PerformanceRecord) float64 {
	succeeded := 0
	for _, rec := range history {
		if rec.Success {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(history))
}

// latencyScore degrades proportionally for late finishes: a record scores
// clamp(1 - (actual-promised)/promised, 0, 1), then scores are averaged.
func latencyScore(history []contracts.PerformanceRecord) float64 {
	var sum float64
	for _, rec := range history {
		sum += recordLatencyScore(rec)
	}
	return clamp01(sum / float64(len(history)))
}

func recordLatencyScore(rec contracts.PerformanceRecord) float64 {
	promised := rec.PromisedLatency.Seconds()
	if promised <= 0 {
		// No commitment to measure against; on-time by definition.
		return 1
	}
	actual := rec.ActualLatency.Seconds()
	return clamp01(1 - (actual-promised)/promised)
}

// ratingScore normalizes the mean 1..5 user rating to [0,1], defaulting to
// the neutral midpoint when no ratings exist.
func ratingScore(history []contracts.PerformanceRecord) float64 {
	var sum float64
	count := 0
	for _, rec := range history {
		if rec.Rating != nil {
			sum += float64(*rec.Rating)
			count++
		}
	}
	if count == 0 {
		return NeutralScore
	}
	return clamp01(sum / float64(count) / 5)
}

func uptimeScore(history []contracts.PerformanceRecord, now time.Time) float64 {
	first := history[0].RecordedAt
	for _, rec := range history[1:] {
		if rec.RecordedAt.Before(first) {
			first = rec.RecordedAt
		}
	}
	tenure := now.Sub(first)
	if tenure < 0 {
		tenure = 0
	}
	return clamp01(tenure.Seconds() / uptimeHorizon.Seconds())
}

// consistencyScore rewards low variance in timeliness. The latency delta of
// each record is its per-record latency score, so the variance is already on
// a [0,1] scale; variance of a [0,1] variable is at most 0.25, normalized to
// [0,1] by dividing by that bound.
func consistencyScore(history []contracts.PerformanceRecord) float64 {
	if len(history) == 1 {
		return 1
	}
	deltas := make([]float64, len(history))
	var mean float64
	for i, rec := range history {
		deltas[i] = recordLatencyScore(rec)
		mean += deltas[i]
	}
	mean /= float64(len(deltas))

	var variance float64
	for _, d := range deltas {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(deltas))

	return clamp01(1 - variance/0.25)
}
