package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	bbolt "go.etcd.io/bbolt"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// ProjectStore implements storage.ProjectStore keyed by project ID.
type ProjectStore struct {
	db *DB
}

// NewProjectStore creates a new ProjectStore.
func NewProjectStore(db *DB) *ProjectStore {
	return &ProjectStore{db: db}
}

// Compile-time interface check.
var _ storage.ProjectStore = (*ProjectStore)(nil)

// List returns all projects ordered by name.
func (s *ProjectStore) List(_ context.Context) ([]*domain.SavedProject, error) {
	var out []*domain.SavedProject
	err := s.db.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(_, v []byte) error {
			var p domain.SavedProject
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode project: %w", err)
			}
			out = append(out, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
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
	var p domain.SavedProject
	err := s.db.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketProjects).Get([]byte(id))
		if v == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(v, &p)
	})
	if err != nil {
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
		return fmt.Errorf("encode project: %w", err)
	}
	return s.db.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProjects).Put([]byte(p.ID), raw)
	})
}

// Delete removes a project. Returns ErrNotFound if not exists.
func (s *ProjectStore) Delete(_ context.Context, id string) error {
	return s.db.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		if b.Get([]byte(id)) == nil {
			return storage.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}
