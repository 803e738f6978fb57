// Package auction selects a contract winner from submitted bids via a
// deterministic weighted-scoring rule. Given the same bids, weights, and
// trust scores, the same winner is always produced.
package auction

import (
	"context"
	"fmt"
	"sort"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

// TrustSource resolves an agent's current trust score. Implemented by the
// reputation engine.
type TrustSource interface {
	TrustScore(ctx context.Context, agentID string) (*contracts.TrustScore, error)
}

// Weights are the four non-negative preference weights. They need not sum
// to 1; the engine normalizes by their sum.
type Weights struct {
	Price       float64 `yaml:"price" json:"price"`
	Performance float64 `yaml:"performance" json:"performance"`
	Speed       float64 `yaml:"speed" json:"speed"`
	Reputation  float64 `yaml:"reputation" json:"reputation"`
}

// DefaultWeights weighs all four criteria equally.
func DefaultWeights() Weights {
	return Weights{Price: 1, Performance: 1, Speed: 1, Reputation: 1}
}

func (w Weights) sum() float64 {
	return w.Price + w.Performance + w.Speed + w.Reputation
}

// Validate rejects negative or all-zero weights.
func (w Weights) Validate() error {
	if w.Price < 0 || w.Performance < 0 || w.Speed < 0 || w.Reputation < 0 {
		return &contracts.ValidationError{Field: "weights", Message: "must be non-negative"}
	}
	if w.sum() == 0 {
		return &contracts.ValidationError{Field: "weights", Message: "at least one weight must be positive"}
	}
	return nil
}

// Scorecard records how one bid scored, for explainability.
type Scorecard struct {
	Bid         *contracts.Bid `json:"bid"`
	Price       float64        `json:"price_score"`
	Performance float64        `json:"performance_score"`
	Speed       float64        `json:"speed_score"`
	Reputation  float64        `json:"reputation_score"`
	Total       float64        `json:"total"`
}

// Engine scores bids against preference weights.
type Engine struct {
	trust TrustSource
}

func NewEngine(trust TrustSource) *Engine {
	return &Engine{trust: trust}
}

// SelectWinner returns the highest-scoring bid, or nil when bids is empty.
// Price and speed are normalized against the spread of submitted values, so
// scores are relative to this auction, not an absolute scale. Ties break by
// earliest submission time, then agent id.
func (e *Engine) SelectWinner(ctx context.Context, bids []*contracts.Bid, weights Weights) (*contracts.Bid, []Scorecard, error) {
	if len(bids) == 0 {
		return nil, nil, nil
	}
	if err := weights.Validate(); err != nil {
		return nil, nil, err
	}

	minPrice, maxPrice := spread(bids, func(b *contracts.Bid) float64 { return b.Price })
	minLat, maxLat := spread(bids, func(b *contracts.Bid) float64 { return b.PromisedLatency.Seconds() })

	cards := make([]Scorecard, 0, len(bids))
	for _, bid := range bids {
		reputation := 0.0
		if weights.Reputation > 0 {
			score, err := e.trust.TrustScore(ctx, bid.AgentID)
			if err != nil {
				return nil, nil, fmt.Errorf("trust score for %s: %w", bid.AgentID, err)
			}
			reputation = score.Overall
		}
		card := Scorecard{
			Bid:         bid,
			Price:       1 - normalize(bid.Price, minPrice, maxPrice),
			Performance: bid.Confidence,
			Speed:       1 - normalize(bid.PromisedLatency.Seconds(), minLat, maxLat),
			Reputation:  reputation,
		}
		card.Total = (card.Price*weights.Price +
			card.Performance*weights.Performance +
			card.Speed*weights.Speed +
			card.Reputation*weights.Reputation) / weights.sum()
		cards = append(cards, card)
	}

	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		if !a.Bid.SubmittedAt.Equal(b.Bid.SubmittedAt) {
			return a.Bid.SubmittedAt.Before(b.Bid.SubmittedAt)
		}
		return a.Bid.AgentID < b.Bid.AgentID
	})

	return cards[0].Bid, cards, nil
}

// normalize maps v onto [0,1] relative to the submitted spread. A degenerate
// spread (all bids equal) scores every bid at 0, which cancels out of the
// comparison.
func normalize(v, min, max float64) float64 {
	if max <= min {
		return 0
	}
	return (v - min) / (max - min)
}

func spread(bids []*contracts.Bid, f func(*contracts.Bid) float64) (min, max float64) {
	min, max = f(bids[0]), f(bids[0])
	for _, b := range bids[1:] {
		v := f(b)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
