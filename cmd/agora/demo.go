package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Mindburn-Labs/agora/pkg/auction"
	"github.com/Mindburn-Labs/agora/pkg/contracts"
	"github.com/Mindburn-Labs/agora/pkg/crypto"
	"github.com/Mindburn-Labs/agora/pkg/envelope"
	"github.com/Mindburn-Labs/agora/pkg/lifecycle"
	"github.com/Mindburn-Labs/agora/pkg/reputation"
	"github.com/Mindburn-Labs/agora/pkg/store"
)

// bidMessage is the demo's inbound bid payload, matching the schema the
// envelope layer enforces.
type bidMessage struct {
	ContractID      string  `json:"contract_id"`
	AgentID         string  `json:"agent_id"`
	Price           float64 `json:"price"`
	PromisedLatency int64   `json:"promised_latency"` // milliseconds
	Confidence      float64 `json:"confidence"`
}

// runDemo runs one complete marketplace round in process: post, bid, award,
// deliver, settle, rank.
func runDemo(stdout, stderr io.Writer) int {
	ctx := context.Background()

	masterSeed := []byte("agora-demo-master-seed-0000000000")
	keyring := crypto.NewKeyring()
	verifier := envelope.NewVerifier(keyring, envelope.NewMemoryReplayCache())
	schemas, err := envelope.NewSchemaValidator()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "schema init:", err)
		return 1
	}

	rep := reputation.NewEngine(store.NewMemoryPerformanceStore(), reputation.DefaultBadgeThresholds())
	mgr := lifecycle.NewManager(
		store.NewMemoryContractStore(),
		store.NewMemoryBidStore(),
		store.NewMemoryDeliveryStore(),
		rep,
		auction.NewEngine(rep),
	)

	biddingWindow := time.Minute
	c, err := mgr.CreateContract(ctx, lifecycle.CreateContractRequest{
		IssuerID:      "issuer-1",
		Intent:        "summarize the Q3 earnings call transcript",
		Reward:        25,
		BiddingWindow: &biddingWindow,
	})
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "create contract:", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "contract %s posted (reward %.0f)\n", c.ID, c.Reward)

	bidders := []struct {
		agentID    string
		price      float64
		latencyMS  int64
		confidence float64
	}{
		{"agent-alpha", 5, 10_000, 0.90},
		{"agent-beta", 7, 5_000, 0.80},
		{"agent-gamma", 6, 8_000, 0.95},
	}

	for _, b := range bidders {
		signer, err := crypto.DeriveSigner(masterSeed, b.agentID)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, "derive key:", err)
			return 1
		}
		keyring.Register(b.agentID, signer.PublicKey())

		env, err := envelope.NewSealer(b.agentID, signer).Seal(bidMessage{
			ContractID:      c.ID,
			AgentID:         b.agentID,
			Price:           b.price,
			PromisedLatency: b.latencyMS,
			Confidence:      b.confidence,
		})
		if err != nil {
			_, _ = fmt.Fprintln(stderr, "seal bid:", err)
			return 1
		}

		payload, err := verifier.Verify(ctx, env)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, "verify bid:", err)
			return 1
		}
		if err := schemas.ValidateBid(payload); err != nil {
			_, _ = fmt.Fprintln(stderr, "bid schema:", err)
			return 1
		}
		var msg bidMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			_, _ = fmt.Fprintln(stderr, "decode bid:", err)
			return 1
		}

		if _, err := mgr.SubmitBid(ctx, lifecycle.SubmitBidRequest{
			ContractID:      msg.ContractID,
			AgentID:         msg.AgentID,
			Price:           msg.Price,
			PromisedLatency: time.Duration(msg.PromisedLatency) * time.Millisecond,
			Confidence:      msg.Confidence,
			Signature:       env.Signature,
		}); err != nil {
			_, _ = fmt.Fprintln(stderr, "submit bid:", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "bid from %s: price %.0f, latency %dms, confidence %.2f\n",
			b.agentID, b.price, b.latencyMS, b.confidence)
	}

	c, cards, err := mgr.CloseBidding(ctx, c.ID)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "close bidding:", err)
		return 1
	}
	for _, card := range cards {
		_, _ = fmt.Fprintf(stdout, "  score %s: %.3f\n", card.Bid.AgentID, card.Total)
	}
	_, _ = fmt.Fprintf(stdout, "awarded to %s\n", c.AwardedTo)

	winner := c.AwardedTo
	if _, err := mgr.StartWork(ctx, c.ID, winner); err != nil {
		_, _ = fmt.Fprintln(stderr, "start work:", err)
		return 1
	}
	d, err := mgr.DeliverResult(ctx, c.ID, winner, []byte(`{"summary":"revenue up 12% YoY"}`))
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "deliver:", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "delivered %s\n", d.PayloadRef)

	rating := 5
	c, err = mgr.SettleContract(ctx, c.ID, &rating)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "settle:", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "contract %s: %s\n", c.ID, c.Status)

	board, err := rep.Leaderboard(ctx)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "leaderboard:", err)
		return 1
	}
	for _, entry := range board.Entries {
		_, _ = fmt.Fprintf(stdout, "#%d %s overall=%.3f badges=%v\n",
			entry.Rank, entry.Score.AgentID, entry.Score.Overall, badgeNames(entry.Score.Badges))
	}
	return 0
}

func badgeNames(badges []contracts.Badge) []string {
	names := make([]string, 0, len(badges))
	for _, b := range badges {
		names = append(names, string(b))
	}
	return names
}
