// Package lifecycle drives the contract state machine. The manager is the
// only component that mutates contracts: it validates each operation against
// the current state, serializes concurrent operations per contract, and
// emits the performance record exactly once when a contract concludes.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/agora/pkg/auction"
	"github.com/Mindburn-Labs/agora/pkg/audit"
	"github.com/Mindburn-Labs/agora/pkg/blobstore"
	"github.com/Mindburn-Labs/agora/pkg/broadcast"
	"github.com/Mindburn-Labs/agora/pkg/contracts"
	"github.com/Mindburn-Labs/agora/pkg/intent"
	"github.com/Mindburn-Labs/agora/pkg/observability"
	"github.com/Mindburn-Labs/agora/pkg/registry"
	"github.com/Mindburn-Labs/agora/pkg/reputation"
	"github.com/Mindburn-Labs/agora/pkg/store"
	"github.com/Mindburn-Labs/agora/pkg/validator"
)

// Manager orchestrates contract lifecycle transitions.
type Manager struct {
	contractStore store.ContractStore
	bidStore      store.BidStore
	deliveryStore store.DeliveryStore
	reputation    *reputation.Engine
	auction       *auction.Engine

	broadcaster broadcast.Broadcaster
	validator   validator.Validator
	blobs       blobstore.Store
	registry    registry.Registry // optional capability gate on bidding
	audit       audit.Logger
	obs         *observability.Provider
	parser      intent.Parser

	weights       auction.Weights
	defaultWindow time.Duration
	logger        *slog.Logger
	clock         func() time.Time

	locks sync.Map // contract id -> *sync.Mutex
}

// NewManager creates a manager over the given stores and engines. Optional
// collaborators default to safe in-process implementations.
func NewManager(
	contractStore store.ContractStore,
	bidStore store.BidStore,
	deliveryStore store.DeliveryStore,
	rep *reputation.Engine,
	auc *auction.Engine,
) *Manager {
	return &Manager{
		contractStore: contractStore,
		bidStore:      bidStore,
		deliveryStore: deliveryStore,
		reputation:    rep,
		auction:       auc,
		broadcaster:   broadcast.NewLogBroadcaster(),
		validator:     validator.Static{Approved: true},
		blobs:         blobstore.NewMemoryStore(),
		audit:         audit.NewLogger(),
		parser:        intent.Passthrough{},
		weights:       auction.DefaultWeights(),
		defaultWindow: 30 * time.Second,
		logger:        slog.Default().With("component", "lifecycle"),
		clock:         time.Now,
	}
}

// WithBroadcaster overrides the event sink.
func (m *Manager) WithBroadcaster(b broadcast.Broadcaster) *Manager {
	m.broadcaster = b
	return m
}

// WithValidator overrides the delivery validator.
func (m *Manager) WithValidator(v validator.Validator) *Manager {
	m.validator = v
	return m
}

// WithBlobStore overrides the payload store.
func (m *Manager) WithBlobStore(b blobstore.Store) *Manager {
	m.blobs = b
	return m
}

// WithRegistry enables the capability gate: bids on contracts that declare a
// capability are accepted only from agents registered with it.
func (m *Manager) WithRegistry(r registry.Registry) *Manager {
	m.registry = r
	return m
}

// WithAudit overrides the audit trail sink.
func (m *Manager) WithAudit(a audit.Logger) *Manager {
	m.audit = a
	return m
}

// WithObservability attaches the metrics provider.
func (m *Manager) WithObservability(p *observability.Provider) *Manager {
	m.obs = p
	return m
}

// WithIntentParser overrides the raw-request parser.
func (m *Manager) WithIntentParser(p intent.Parser) *Manager {
	m.parser = p
	return m
}

// WithWeights sets the default auction weights for contracts closed by the
// sweeper or without explicit weights.
func (m *Manager) WithWeights(w auction.Weights) *Manager {
	m.weights = w
	return m
}

// WithDefaultBiddingWindow sets the window applied when a create request
// omits one.
func (m *Manager) WithDefaultBiddingWindow(d time.Duration) *Manager {
	m.defaultWindow = d
	return m
}

// WithClock overrides the clock for deterministic testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// lock serializes operations on one contract. Returns the unlock func.
func (m *Manager) lock(contractID string) func() {
	v, _ := m.locks.LoadOrStore(contractID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// evictLock drops a concluded contract's mutex so the keyed-lock map does
// not grow unbounded. A late caller allocates a fresh mutex; overlap with a
// straggler on the old one is harmless once the state is terminal; every
// transition out of it is CAS guarded.
func (m *Manager) evictLock(contractID string) {
	m.locks.Delete(contractID)
}

// CreateContractRequest carries contract creation input. BiddingWindow is
// optional; nil applies the manager default, while an explicit zero or
// negative window is a validation error.
type CreateContractRequest struct {
	IssuerID      string            `json:"issuer_id"`
	Intent        string            `json:"intent"`
	Context       map[string]string `json:"context,omitempty"`
	Reward        float64           `json:"reward"`
	Deadline      *time.Time        `json:"deadline,omitempty"`
	BiddingWindow *time.Duration    `json:"bidding_window,omitempty"`
	Capability    string            `json:"capability,omitempty"`
}

// CreateContract validates and persists a new contract in BIDDING, then
// announces it to the broadcast layer.
func (m *Manager) CreateContract(ctx context.Context, req CreateContractRequest) (*contracts.Contract, error) {
	if req.IssuerID == "" {
		return nil, &contracts.ValidationError{Field: "issuer_id", Message: "required"}
	}
	if strings.TrimSpace(req.Intent) == "" {
		return nil, &contracts.ValidationError{Field: "intent", Message: "required"}
	}
	if req.Reward < 0 {
		return nil, &contracts.ValidationError{Field: "reward", Message: "must be non-negative"}
	}
	window := m.defaultWindow
	if req.BiddingWindow != nil {
		window = *req.BiddingWindow
	}
	if window <= 0 {
		return nil, &contracts.ValidationError{Field: "bidding_window", Message: "must be positive"}
	}

	now := m.clock()
	if req.Deadline != nil && !req.Deadline.After(now) {
		return nil, &contracts.ValidationError{Field: "deadline", Message: "must be in the future"}
	}

	c := contracts.NewContract(req.IssuerID, req.Intent, req.Reward, window, now)
	c.Context = req.Context
	c.Deadline = req.Deadline
	c.Capability = req.Capability

	if err := m.contractStore.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create contract: %w", err)
	}

	m.announce(ctx, contracts.EventContractCreated, c)
	if m.obs != nil {
		m.obs.RecordContractCreated(ctx, attribute.String("capability", c.Capability))
	}
	_ = m.audit.Record(ctx, audit.EventMutation, req.IssuerID, "contract.create", c.ID, nil)

	m.logger.InfoContext(ctx, "contract created",
		"contract_id", c.ID,
		"issuer_id", c.IssuerID,
		"reward", c.Reward,
		"closes_at", c.BiddingClosesAt(),
	)
	return c, nil
}

// CreateContractFromText parses a raw natural-language request into an
// intent and context before posting the contract. The parser is an external
// boundary; with the default passthrough the raw text becomes the intent.
// A zero window applies the manager default.
func (m *Manager) CreateContractFromText(ctx context.Context, issuerID, raw string, reward float64, window time.Duration) (*contracts.Contract, error) {
	parsed, err := m.parser.Parse(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	req := CreateContractRequest{
		IssuerID: issuerID,
		Intent:   parsed.Intent,
		Context:  parsed.Context,
		Reward:   reward,
	}
	if window != 0 {
		req.BiddingWindow = &window
	}
	return m.CreateContract(ctx, req)
}

// SubmitBidRequest carries bid submission input.
type SubmitBidRequest struct {
	ContractID      string        `json:"contract_id"`
	AgentID         string        `json:"agent_id"`
	Price           float64       `json:"price"`
	PromisedLatency time.Duration `json:"promised_latency"`
	Confidence      float64       `json:"confidence"`
	Signature       string        `json:"signature,omitempty"`
}

// SubmitBid accepts a bid into an open bidding window. A resubmission from
// the same agent replaces the prior bid; the later server timestamp wins.
func (m *Manager) SubmitBid(ctx context.Context, req SubmitBidRequest) (*contracts.Bid, error) {
	if req.AgentID == "" {
		return nil, &contracts.ValidationError{Field: "agent_id", Message: "required"}
	}
	if req.Price < 0 {
		return nil, &contracts.ValidationError{Field: "price", Message: "must be non-negative"}
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return nil, &contracts.ValidationError{Field: "confidence", Message: "must be within [0,1]"}
	}
	if req.PromisedLatency <= 0 {
		return nil, &contracts.ValidationError{Field: "promised_latency", Message: "must be positive"}
	}

	unlock := m.lock(req.ContractID)
	defer unlock()

	c, err := m.contractStore.Get(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	now := m.clock()
	if c.Status != contracts.StatusBidding || now.After(c.BiddingClosesAt()) {
		_ = m.audit.Record(ctx, audit.EventSecurity, req.AgentID, "bid.rejected", c.ID,
			map[string]any{"status": string(c.Status)})
		return nil, &contracts.StateConflictError{ContractID: c.ID, Status: c.Status, Operation: "submit_bid"}
	}

	if c.Capability != "" && m.registry != nil {
		if err := m.checkCapability(ctx, req.AgentID, c.Capability); err != nil {
			_ = m.audit.Record(ctx, audit.EventSecurity, req.AgentID, "bid.capability_rejected", c.ID,
				map[string]any{"capability": c.Capability})
			return nil, err
		}
	}

	bid := contracts.NewBid(c.ID, req.AgentID, req.Price, req.PromisedLatency, req.Confidence, now)
	bid.Signature = req.Signature
	if err := m.bidStore.Put(ctx, bid); err != nil {
		return nil, fmt.Errorf("store bid: %w", err)
	}

	m.announce(ctx, contracts.EventBidReceived, bid)
	if m.obs != nil {
		m.obs.RecordBidReceived(ctx)
	}

	m.logger.InfoContext(ctx, "bid received",
		"contract_id", c.ID,
		"agent_id", bid.AgentID,
		"price", bid.Price,
	)
	return bid, nil
}

func (m *Manager) checkCapability(ctx context.Context, agentID, capability string) error {
	agent, err := m.registry.Get(ctx, agentID)
	if err != nil {
		return err
	}
	for _, have := range agent.Capabilities {
		if have == capability {
			return nil
		}
	}
	return &contracts.ValidationError{Field: "agent_id", Message: "agent lacks required capability " + capability}
}

// CloseBidding concludes the bidding window: it runs the auction and awards
// the winner, or expires the contract when no bids arrived. The call is
// idempotent; once the contract leaves BIDDING further calls return the
// recorded outcome without re-running the auction.
func (m *Manager) CloseBidding(ctx context.Context, contractID string) (*contracts.Contract, []auction.Scorecard, error) {
	unlock := m.lock(contractID)
	defer unlock()

	c, err := m.contractStore.Get(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}
	if c.Status != contracts.StatusBidding {
		return c, nil, nil
	}

	bids, err := m.bidStore.ListByContract(ctx, contractID)
	if err != nil {
		return nil, nil, fmt.Errorf("list bids: %w", err)
	}

	now := m.clock()
	if len(bids) == 0 {
		if _, err := m.contractStore.CASStatus(ctx, contractID, contracts.StatusBidding, contracts.StatusExpired); err != nil {
			return nil, nil, fmt.Errorf("expire contract: %w", err)
		}
		if m.obs != nil {
			m.obs.RecordContractFailed(ctx, attribute.String("reason", "expired"))
		}
		m.logger.InfoContext(ctx, "contract expired with no bids", "contract_id", contractID)
		m.evictLock(contractID)
		c, err = m.contractStore.Get(ctx, contractID)
		return c, nil, err
	}

	start := now
	winner, cards, err := m.auction.SelectWinner(ctx, bids, m.weights)
	if err != nil {
		return nil, nil, fmt.Errorf("select winner: %w", err)
	}
	if m.obs != nil {
		m.obs.RecordAuctionDuration(ctx, m.clock().Sub(start))
	}

	awarded, err := m.contractStore.Award(ctx, contractID, winner.AgentID, now)
	if err != nil {
		return nil, nil, fmt.Errorf("award contract: %w", err)
	}
	c, err = m.contractStore.Get(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}
	if !awarded {
		// Lost the race; the recorded award stands.
		return c, nil, nil
	}

	m.announce(ctx, contracts.EventContractAwarded, c)
	if m.obs != nil {
		m.obs.RecordContractAwarded(ctx)
	}
	_ = m.audit.Record(ctx, audit.EventMutation, c.IssuerID, "contract.award", c.ID,
		map[string]any{"winner": winner.AgentID, "bids": len(bids)})

	m.logger.InfoContext(ctx, "contract awarded",
		"contract_id", c.ID,
		"winner", winner.AgentID,
		"bids", len(bids),
	)
	return c, cards, nil
}

// StartWork transitions AWARDED to IN_PROGRESS. Only the awarded agent may
// acknowledge.
func (m *Manager) StartWork(ctx context.Context, contractID, agentID string) (*contracts.Contract, error) {
	unlock := m.lock(contractID)
	defer unlock()

	c, err := m.contractStore.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.AwardedTo != agentID {
		return nil, &contracts.NotAwardedAgentError{ContractID: contractID, AgentID: agentID}
	}
	ok, err := m.contractStore.CASStatus(ctx, contractID, contracts.StatusAwarded, contracts.StatusInProgress)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &contracts.StateConflictError{ContractID: contractID, Status: c.Status, Operation: "start_work"}
	}
	return m.contractStore.Get(ctx, contractID)
}

// DeliverResult stores the payload and records a pending delivery. Only the
// awarded agent may deliver, while the contract is AWARDED or IN_PROGRESS;
// after that a resubmission replaces the prior delivery until validation
// runs. Any other caller leaves the contract untouched.
func (m *Manager) DeliverResult(ctx context.Context, contractID, agentID string, payload []byte) (*contracts.Delivery, error) {
	unlock := m.lock(contractID)
	defer unlock()

	c, err := m.contractStore.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.AwardedTo != agentID {
		_ = m.audit.Record(ctx, audit.EventSecurity, agentID, "delivery.rejected", contractID,
			map[string]any{"awarded_to": c.AwardedTo})
		return nil, &contracts.NotAwardedAgentError{ContractID: contractID, AgentID: agentID}
	}
	switch c.Status {
	case contracts.StatusAwarded, contracts.StatusInProgress:
	case contracts.StatusDelivered:
		prev, err := m.deliveryStore.Get(ctx, contractID)
		if err != nil {
			return nil, err
		}
		if prev.Outcome != contracts.ValidationPending {
			return nil, &contracts.StateConflictError{ContractID: contractID, Status: c.Status, Operation: "deliver_result"}
		}
	default:
		return nil, &contracts.StateConflictError{ContractID: contractID, Status: c.Status, Operation: "deliver_result"}
	}

	ref, err := m.blobs.Put(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("store payload: %w", err)
	}

	d := &contracts.Delivery{
		ContractID:  contractID,
		AgentID:     agentID,
		PayloadRef:  ref,
		SubmittedAt: m.clock().UTC(),
		Outcome:     contracts.ValidationPending,
	}
	if err := m.deliveryStore.Put(ctx, d); err != nil {
		return nil, err
	}
	if c.Status != contracts.StatusDelivered {
		if _, err := m.contractStore.CASStatus(ctx, contractID, c.Status, contracts.StatusDelivered); err != nil {
			return nil, fmt.Errorf("mark delivered: %w", err)
		}
	}

	m.logger.InfoContext(ctx, "result delivered",
		"contract_id", contractID,
		"agent_id", agentID,
		"payload_ref", ref,
	)
	return d, nil
}

// SettleContract validates the pending delivery and concludes the contract:
// VALIDATED then SETTLED on approval, DISPUTED on rejection. Either way the
// performance record for the awarded agent is written exactly once. An
// optional issuer rating (1..5) flows into the record.
func (m *Manager) SettleContract(ctx context.Context, contractID string, rating *int) (*contracts.Contract, error) {
	unlock := m.lock(contractID)
	defer unlock()

	c, err := m.contractStore.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return c, nil
	}
	if c.Status != contracts.StatusDelivered {
		return nil, &contracts.StateConflictError{ContractID: contractID, Status: c.Status, Operation: "settle_contract"}
	}

	d, err := m.deliveryStore.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}

	result, err := m.validator.Validate(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("validate delivery: %w", err)
	}

	now := m.clock().UTC()
	d.ValidatedAt = &now
	d.Reason = result.Reason
	if result.Approved {
		d.Outcome = contracts.ValidationApproved
	} else {
		d.Outcome = contracts.ValidationRejected
	}
	if err := m.deliveryStore.Put(ctx, d); err != nil {
		return nil, err
	}

	if !result.Approved {
		if _, err := m.contractStore.CASStatus(ctx, contractID, contracts.StatusDelivered, contracts.StatusDisputed); err != nil {
			return nil, err
		}
		if err := m.recordOutcome(ctx, c, d, rating, false, now); err != nil {
			return nil, err
		}
		if m.obs != nil {
			m.obs.RecordContractFailed(ctx, attribute.String("reason", "disputed"))
		}
		m.logger.WarnContext(ctx, "delivery rejected",
			"contract_id", contractID,
			"agent_id", d.AgentID,
			"reason", result.Reason,
		)
		m.evictLock(contractID)
		return m.contractStore.Get(ctx, contractID)
	}

	if _, err := m.contractStore.CASStatus(ctx, contractID, contracts.StatusDelivered, contracts.StatusValidated); err != nil {
		return nil, err
	}
	if _, err := m.contractStore.CASStatus(ctx, contractID, contracts.StatusValidated, contracts.StatusSettled); err != nil {
		return nil, err
	}

	c, err = m.contractStore.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	c.CompletedAt = &now
	if err := m.contractStore.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("record completion time: %w", err)
	}

	if err := m.recordOutcome(ctx, c, d, rating, true, now); err != nil {
		return nil, err
	}

	m.announce(ctx, contracts.EventContractSettled, c)
	if m.obs != nil {
		m.obs.RecordContractSettled(ctx)
	}
	_ = m.audit.Record(ctx, audit.EventMutation, c.IssuerID, "contract.settle", c.ID,
		map[string]any{"agent_id": d.AgentID})

	m.logger.InfoContext(ctx, "contract settled",
		"contract_id", c.ID,
		"agent_id", d.AgentID,
	)
	m.evictLock(contractID)
	return c, nil
}

// FailContract marks an awarded contract FAILED, recording the non-delivery
// against the awarded agent. Used by the sweeper on deadline overrun.
func (m *Manager) FailContract(ctx context.Context, contractID, reason string) (*contracts.Contract, error) {
	unlock := m.lock(contractID)
	defer unlock()

	c, err := m.contractStore.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return c, nil
	}
	if c.Status != contracts.StatusAwarded && c.Status != contracts.StatusInProgress {
		return nil, &contracts.StateConflictError{ContractID: contractID, Status: c.Status, Operation: "fail_contract"}
	}

	ok, err := m.contractStore.CASStatus(ctx, contractID, c.Status, contracts.StatusFailed)
	if err != nil {
		return nil, err
	}
	if ok && c.AwardedTo != "" {
		now := m.clock().UTC()
		if err := m.recordOutcome(ctx, c, nil, nil, false, now); err != nil {
			return nil, err
		}
	}
	if m.obs != nil {
		m.obs.RecordContractFailed(ctx, attribute.String("reason", reason))
	}
	m.logger.WarnContext(ctx, "contract failed",
		"contract_id", contractID,
		"agent_id", c.AwardedTo,
		"reason", reason,
	)
	m.evictLock(contractID)
	return m.contractStore.Get(ctx, contractID)
}

// recordOutcome writes the single performance record for a concluded
// contract. Actual latency is measured from award to conclusion; the promise
// comes from the winning bid.
func (m *Manager) recordOutcome(ctx context.Context, c *contracts.Contract, d *contracts.Delivery, rating *int, success bool, at time.Time) error {
	var actual time.Duration
	if c.AwardedAt != nil {
		end := at
		if d != nil {
			end = d.SubmittedAt
		}
		actual = end.Sub(*c.AwardedAt)
	}

	var promised time.Duration
	if bid, err := m.bidStore.Get(ctx, c.ID, c.AwardedTo); err == nil && bid != nil {
		promised = bid.PromisedLatency
	}

	reward := 0.0
	if success {
		reward = c.Reward
	}

	rec := &contracts.PerformanceRecord{
		AgentID:         c.AwardedTo,
		ContractID:      c.ID,
		Success:         success,
		ActualLatency:   actual,
		PromisedLatency: promised,
		Rating:          rating,
		Reward:          reward,
		RecordedAt:      at,
	}
	if err := m.reputation.RecordPerformance(ctx, rec); err != nil {
		return fmt.Errorf("record performance: %w", err)
	}
	return nil
}

// GetContract returns the current contract state.
func (m *Manager) GetContract(ctx context.Context, contractID string) (*contracts.Contract, error) {
	return m.contractStore.Get(ctx, contractID)
}

// ListBids returns all live bids for a contract.
func (m *Manager) ListBids(ctx context.Context, contractID string) ([]*contracts.Bid, error) {
	return m.bidStore.ListByContract(ctx, contractID)
}

// GetDelivery returns the delivery for a contract, if any.
func (m *Manager) GetDelivery(ctx context.Context, contractID string) (*contracts.Delivery, error) {
	return m.deliveryStore.Get(ctx, contractID)
}

// announce pushes an event to the broadcast layer. Announcement failures are
// logged, never propagated; the state change already happened.
func (m *Manager) announce(ctx context.Context, eventType contracts.EventType, payload any) {
	if err := m.broadcaster.Announce(ctx, eventType, payload); err != nil {
		m.logger.WarnContext(ctx, "broadcast failed", "event", string(eventType), "error", err)
	}
}
