package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
)

// MemoryContractStore implements contract.ContractStore with an in-memory map.
type MemoryContractStore struct {
	contracts map[string]*contract.Contract // ID -> offer
	mu        sync.RWMutex
}

// NewContractStore creates a new in-memory contract store.
func NewContractStore() *MemoryContractStore {
	return &MemoryContractStore{
		contracts: make(map[string]*contract.Contract),
	}
}

// Get returns an offer by ID.
func (s *MemoryContractStore) Get(ctx context.Context, id string) (*contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("contract %s: %w", id, contract.ErrResourceNotFound)
	}
	out := c.Clone()
	return &out, nil
}

// Create stores a new offer.
func (s *MemoryContractStore) Create(ctx context.Context, c *contract.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, exists := s.contracts[c.ID]; exists {
		return fmt.Errorf("%w: contract %s already exists", contract.ErrPersistenceFailure, c.ID)
	}
	stored := c.Clone()
	s.contracts[c.ID] = &stored
	return nil
}

// Update replaces an offer.
func (s *MemoryContractStore) Update(ctx context.Context, c *contract.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[c.ID]; !ok {
		return fmt.Errorf("contract %s: %w", c.ID, contract.ErrResourceNotFound)
	}
	stored := c.Clone()
	s.contracts[c.ID] = &stored
	return nil
}

// Delete removes an offer.
func (s *MemoryContractStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.contracts, id)
	return nil
}

// List returns all offers ordered by ID.
func (s *MemoryContractStore) List(ctx context.Context) ([]contract.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]contract.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		result = append(result, c.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// OffersForTarget returns the offers with a rule on target.
func (s *MemoryContractStore) OffersForTarget(ctx context.Context, target string) ([]contract.Contract, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var result []contract.Contract
	for _, c := range all {
		if c.Targets(target) {
			result = append(result, c)
		}
	}
	return result, nil
}

// Compile-time interface verification.
var _ contract.ContractStore = (*MemoryContractStore)(nil)
