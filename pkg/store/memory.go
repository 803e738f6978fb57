package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

// MemoryContractStore is a mutex-guarded in-process ContractStore.
type MemoryContractStore struct {
	mu        sync.Mutex
	contracts map[string]*contracts.Contract
}

func NewMemoryContractStore() *MemoryContractStore {
	return &MemoryContractStore{contracts: make(map[string]*contracts.Contract)}
}

func (s *MemoryContractStore) Create(_ context.Context, c *contracts.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[c.ID]; ok {
		return &contracts.ValidationError{Field: "id", Message: "contract already exists"}
	}
	s.contracts[c.ID] = cloneContract(c)
	return nil
}

func (s *MemoryContractStore) Get(_ context.Context, id string) (*contracts.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, &contracts.NotFoundError{Kind: "contract", ID: id}
	}
	return cloneContract(c), nil
}

func (s *MemoryContractStore) Update(_ context.Context, c *contracts.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[c.ID]; !ok {
		return &contracts.NotFoundError{Kind: "contract", ID: c.ID}
	}
	s.contracts[c.ID] = cloneContract(c)
	return nil
}

func (s *MemoryContractStore) CASStatus(_ context.Context, id string, from, to contracts.ContractStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return false, &contracts.NotFoundError{Kind: "contract", ID: id}
	}
	if c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (s *MemoryContractStore) Award(_ context.Context, id, winner string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return false, &contracts.NotFoundError{Kind: "contract", ID: id}
	}
	if c.Status != contracts.StatusBidding || c.AwardedTo != "" {
		return false, nil
	}
	c.Status = contracts.StatusAwarded
	c.AwardedTo = winner
	t := at.UTC()
	c.AwardedAt = &t
	return true, nil
}

func (s *MemoryContractStore) ListByStatus(_ context.Context, status contracts.ContractStatus) ([]*contracts.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*contracts.Contract
	for _, c := range s.contracts {
		if c.Status == status {
			out = append(out, cloneContract(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneContract(c *contracts.Contract) *contracts.Contract {
	dup := *c
	if c.Context != nil {
		dup.Context = make(map[string]string, len(c.Context))
		for k, v := range c.Context {
			dup.Context[k] = v
		}
	}
	return &dup
}

// MemoryBidStore is a mutex-guarded in-process BidStore.
type MemoryBidStore struct {
	mu   sync.Mutex
	bids map[string]map[string]*contracts.Bid // contractID -> agentID -> bid
}

func NewMemoryBidStore() *MemoryBidStore {
	return &MemoryBidStore{bids: make(map[string]map[string]*contracts.Bid)}
}

func (s *MemoryBidStore) Put(_ context.Context, b *contracts.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byAgent, ok := s.bids[b.ContractID]
	if !ok {
		byAgent = make(map[string]*contracts.Bid)
		s.bids[b.ContractID] = byAgent
	}
	// Last write wins by server-received timestamp, not arrival order.
	if prev, ok := byAgent[b.AgentID]; ok && prev.SubmittedAt.After(b.SubmittedAt) {
		return nil
	}
	dup := *b
	byAgent[b.AgentID] = &dup
	return nil
}

func (s *MemoryBidStore) ListByContract(_ context.Context, contractID string) ([]*contracts.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*contracts.Bid
	for _, b := range s.bids[contractID] {
		dup := *b
		out = append(out, &dup)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out, nil
}

func (s *MemoryBidStore) Get(_ context.Context, contractID, agentID string) (*contracts.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bids[contractID][agentID]
	if !ok {
		return nil, &contracts.NotFoundError{Kind: "bid", ID: contractID + "/" + agentID}
	}
	dup := *b
	return &dup, nil
}

// MemoryDeliveryStore is a mutex-guarded in-process DeliveryStore.
type MemoryDeliveryStore struct {
	mu         sync.Mutex
	deliveries map[string]*contracts.Delivery
}

func NewMemoryDeliveryStore() *MemoryDeliveryStore {
	return &MemoryDeliveryStore{deliveries: make(map[string]*contracts.Delivery)}
}

func (s *MemoryDeliveryStore) Put(_ context.Context, d *contracts.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.deliveries[d.ContractID]; ok && prev.Outcome != contracts.ValidationPending {
		return &contracts.StateConflictError{
			ContractID: d.ContractID,
			Operation:  "replace validated delivery",
		}
	}
	dup := *d
	s.deliveries[d.ContractID] = &dup
	return nil
}

func (s *MemoryDeliveryStore) Get(_ context.Context, contractID string) (*contracts.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[contractID]
	if !ok {
		return nil, &contracts.NotFoundError{Kind: "delivery", ID: contractID}
	}
	dup := *d
	return &dup, nil
}

// MemoryPerformanceStore is a mutex-guarded in-process PerformanceStore.
type MemoryPerformanceStore struct {
	mu      sync.Mutex
	records map[string][]contracts.PerformanceRecord // agentID -> history
}

func NewMemoryPerformanceStore() *MemoryPerformanceStore {
	return &MemoryPerformanceStore{records: make(map[string][]contracts.PerformanceRecord)}
}

func (s *MemoryPerformanceStore) Append(_ context.Context, rec *contracts.PerformanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.AgentID] = append(s.records[rec.AgentID], *rec)
	return nil
}

func (s *MemoryPerformanceStore) ListByAgent(_ context.Context, agentID string) ([]contracts.PerformanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]contracts.PerformanceRecord, len(s.records[agentID]))
	copy(out, s.records[agentID])
	return out, nil
}

func (s *MemoryPerformanceStore) ListAgents(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agents := make([]string, 0, len(s.records))
	for agentID := range s.records {
		agents = append(agents, agentID)
	}
	sort.Strings(agents)
	return agents, nil
}

func (s *MemoryPerformanceStore) TotalReward(_ context.Context, agentID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, rec := range s.records[agentID] {
		total += rec.Reward
	}
	return total, nil
}
