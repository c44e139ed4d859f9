package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// ProjectStore is an in-memory implementation of storage.ProjectStore.
// Projects are stored JSON-encoded so callers never share nested slices.
type ProjectStore struct {
	mu       sync.RWMutex
	projects map[string][]byte
}

// NewProjectStore creates a new in-memory project store.
func NewProjectStore() *ProjectStore {
	return &ProjectStore{projects: make(map[string][]byte)}
}

// List returns all projects ordered by name.
func (s *ProjectStore) List(_ context.Context) ([]*domain.SavedProject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.SavedProject, 0, len(s.projects))
	for _, raw := range s.projects {
		var p domain.SavedProject
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get retrieves a project by ID. Returns ErrNotFound if not exists.
func (s *ProjectStore) Get(_ context.Context, id string) (*domain.SavedProject, error) {
	s.mu.RLock()
	raw, ok := s.projects[id]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}

	var p domain.SavedProject
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save upserts a project.
func (s *ProjectStore) Save(_ context.Context, p *domain.SavedProject) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = raw
	return nil
}

// Delete removes a project. Returns ErrNotFound if not exists.
func (s *ProjectStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.projects, id)
	return nil
}

var _ storage.ProjectStore = (*ProjectStore)(nil)
