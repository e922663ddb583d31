package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/contract"
	"github.com/Sentinel-Gate/Contractgate/internal/port/outbound"
)

// MemoryArtifactStore implements contract.ArtifactStore and
// outbound.ArtifactDataSource with in-memory maps.
// One mutex guards records, payloads, and links, so the access counter
// read-compare-increment is a single critical section.
type MemoryArtifactStore struct {
	artifacts map[string]*contract.Artifact // ID -> artifact
	payloads  map[string][]byte             // ID -> payload
	links     map[string]map[string]bool    // agreement ID -> artifact IDs
	mu        sync.RWMutex
}

// NewArtifactStore creates a new in-memory artifact store.
func NewArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{
		artifacts: make(map[string]*contract.Artifact),
		payloads:  make(map[string][]byte),
		links:     make(map[string]map[string]bool),
	}
}

// Get returns an artifact by ID.
func (s *MemoryArtifactStore) Get(ctx context.Context, id string) (*contract.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[id]
	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", id, contract.ErrResourceNotFound)
	}
	artCopy := *a
	return &artCopy, nil
}

// Create stores a new artifact, assigning an ID and creation date when missing.
func (s *MemoryArtifactStore) Create(ctx context.Context, a *contract.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreationDate.IsZero() {
		a.CreationDate = time.Now().UTC()
	}
	if _, exists := s.artifacts[a.ID]; exists {
		return fmt.Errorf("%w: artifact %s already exists", contract.ErrPersistenceFailure, a.ID)
	}
	artCopy := *a
	s.artifacts[a.ID] = &artCopy
	return nil
}

// Update replaces an artifact record. The stored access count never decreases.
func (s *MemoryArtifactStore) Update(ctx context.Context, a *contract.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.artifacts[a.ID]
	if !ok {
		return fmt.Errorf("artifact %s: %w", a.ID, contract.ErrResourceNotFound)
	}
	artCopy := *a
	if artCopy.AccessCount < stored.AccessCount {
		artCopy.AccessCount = stored.AccessCount
	}
	s.artifacts[a.ID] = &artCopy
	return nil
}

// Delete removes an artifact, its payload, and its links.
func (s *MemoryArtifactStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.artifacts, id)
	delete(s.payloads, id)
	for _, arts := range s.links {
		delete(arts, id)
	}
	return nil
}

// List returns all artifacts ordered by ID.
func (s *MemoryArtifactStore) List(ctx context.Context) ([]contract.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]contract.Artifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ArtifactsByAgreement returns the artifacts linked to an agreement.
func (s *MemoryArtifactStore) ArtifactsByAgreement(ctx context.Context, agreementID string) ([]contract.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []contract.Artifact
	for id := range s.links[agreementID] {
		if a, ok := s.artifacts[id]; ok {
			result = append(result, *a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// AgreementsByArtifact returns the IDs of agreements linked to an artifact.
func (s *MemoryArtifactStore) AgreementsByArtifact(ctx context.Context, artifactID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []string
	for agreementID, arts := range s.links {
		if arts[artifactID] {
			result = append(result, agreementID)
		}
	}
	sort.Strings(result)
	return result, nil
}

// Link associates artifacts with an agreement. Unknown artifacts fail the
// whole call without creating any link.
func (s *MemoryArtifactStore) Link(ctx context.Context, agreementID string, artifactIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range artifactIDs {
		if _, ok := s.artifacts[id]; !ok {
			return fmt.Errorf("link artifact %s: %w", id, contract.ErrResourceNotFound)
		}
	}
	arts := s.links[agreementID]
	if arts == nil {
		arts = make(map[string]bool, len(artifactIDs))
		s.links[agreementID] = arts
	}
	for _, id := range artifactIDs {
		arts[id] = true
	}
	return nil
}

// Unlink removes every link of an agreement.
func (s *MemoryArtifactStore) Unlink(ctx context.Context, agreementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.links, agreementID)
	return nil
}

// IncrementAccessIfBelow increments the access count when it is below limit.
func (s *MemoryArtifactStore) IncrementAccessIfBelow(ctx context.Context, id string, limit int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[id]
	if !ok {
		return 0, false, fmt.Errorf("artifact %s: %w", id, contract.ErrResourceNotFound)
	}
	if a.AccessCount >= limit {
		return a.AccessCount, false, nil
	}
	a.AccessCount++
	return a.AccessCount, true, nil
}

// IncrementAccess increments the access count.
func (s *MemoryArtifactStore) IncrementAccess(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[id]
	if !ok {
		return 0, fmt.Errorf("artifact %s: %w", id, contract.ErrResourceNotFound)
	}
	a.AccessCount++
	return a.AccessCount, nil
}

// DecrementAccess decrements the access count, stopping at zero.
func (s *MemoryArtifactStore) DecrementAccess(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[id]
	if !ok {
		return 0, fmt.Errorf("artifact %s: %w", id, contract.ErrResourceNotFound)
	}
	if a.AccessCount > 0 {
		a.AccessCount--
	}
	return a.AccessCount, nil
}

// GetData returns a copy of the artifact payload.
func (s *MemoryArtifactStore) GetData(ctx context.Context, artifactID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.artifacts[artifactID]; !ok {
		return nil, fmt.Errorf("artifact %s: %w", artifactID, contract.ErrResourceNotFound)
	}
	data := s.payloads[artifactID]
	if data == nil {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

// SetData replaces the artifact payload.
func (s *MemoryArtifactStore) SetData(ctx context.Context, artifactID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artifacts[artifactID]; !ok {
		return fmt.Errorf("artifact %s: %w", artifactID, contract.ErrResourceNotFound)
	}
	s.payloads[artifactID] = append([]byte(nil), data...)
	return nil
}

// ClearData removes the artifact payload and reports whether there was one.
func (s *MemoryArtifactStore) ClearData(ctx context.Context, artifactID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artifacts[artifactID]; !ok {
		return false, fmt.Errorf("artifact %s: %w", artifactID, contract.ErrResourceNotFound)
	}
	cleared := len(s.payloads[artifactID]) > 0
	delete(s.payloads, artifactID)
	return cleared, nil
}

// Compile-time interface verification.
var (
	_ contract.ArtifactStore      = (*MemoryArtifactStore)(nil)
	_ outbound.ArtifactDataSource = (*MemoryArtifactStore)(nil)
)
