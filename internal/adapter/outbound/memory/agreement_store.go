// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
)

// MemoryAgreementStore implements contract.AgreementStore with an in-memory map.
// Thread-safe for concurrent access.
type MemoryAgreementStore struct {
	agreements map[string]*contract.ContractAgreement // ID -> agreement
	mu         sync.RWMutex
}

// NewAgreementStore creates a new in-memory agreement store.
func NewAgreementStore() *MemoryAgreementStore {
	return &MemoryAgreementStore{
		agreements: make(map[string]*contract.ContractAgreement),
	}
}

// Get returns an agreement by ID.
func (s *MemoryAgreementStore) Get(ctx context.Context, id string) (*contract.ContractAgreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agreements[id]
	if !ok {
		return nil, fmt.Errorf("agreement %s: %w", id, contract.ErrResourceNotFound)
	}
	return a.Clone(), nil
}

// Create stores a new agreement, assigning an ID when it has none.
func (s *MemoryAgreementStore) Create(ctx context.Context, a *contract.ContractAgreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := s.agreements[a.ID]; exists {
		return fmt.Errorf("%w: agreement %s already exists", contract.ErrPersistenceFailure, a.ID)
	}
	s.agreements[a.ID] = a.Clone()
	return nil
}

// Update replaces an existing agreement.
func (s *MemoryAgreementStore) Update(ctx context.Context, a *contract.ContractAgreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.agreements[a.ID]
	if !ok {
		return fmt.Errorf("agreement %s: %w", a.ID, contract.ErrResourceNotFound)
	}
	if err := contract.CheckUpdate(stored, a); err != nil {
		return err
	}
	s.agreements[a.ID] = a.Clone()
	return nil
}

// Delete removes an agreement. Deleting an unknown ID is a no-op.
func (s *MemoryAgreementStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.agreements, id)
	return nil
}

// List returns all agreements ordered by contract date.
func (s *MemoryAgreementStore) List(ctx context.Context) ([]contract.ContractAgreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]contract.ContractAgreement, 0, len(s.agreements))
	for _, a := range s.agreements {
		result = append(result, *a.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ContractDate.Equal(result[j].ContractDate) {
			return result[i].ID < result[j].ID
		}
		return result[i].ContractDate.Before(result[j].ContractDate)
	})
	return result, nil
}

// Compile-time interface verification.
var _ contract.AgreementStore = (*MemoryAgreementStore)(nil)
