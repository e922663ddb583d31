package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
)

// MemoryResourceStore implements contract.ResourceStore with an in-memory map.
type MemoryResourceStore struct {
	resources map[string]*contract.Resource
	mu        sync.RWMutex
}

// NewResourceStore creates a new in-memory resource store.
func NewResourceStore() *MemoryResourceStore {
	return &MemoryResourceStore{
		resources: make(map[string]*contract.Resource),
	}
}

// Get returns a resource by ID.
func (s *MemoryResourceStore) Get(ctx context.Context, id string) (*contract.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[id]
	if !ok {
		return nil, fmt.Errorf("resource %s: %w", id, contract.ErrResourceNotFound)
	}
	out := r.Clone()
	return &out, nil
}

// Create stores a new resource.
func (s *MemoryResourceStore) Create(ctx context.Context, r *contract.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := s.resources[r.ID]; exists {
		return fmt.Errorf("%w: resource %s already exists", contract.ErrPersistenceFailure, r.ID)
	}
	stored := r.Clone()
	s.resources[r.ID] = &stored
	return nil
}

// Delete removes a resource.
func (s *MemoryResourceStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.resources, id)
	return nil
}

// List returns all resources ordered by ID.
func (s *MemoryResourceStore) List(ctx context.Context) ([]contract.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]contract.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		result = append(result, r.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ contract.ResourceStore = (*MemoryResourceStore)(nil)
