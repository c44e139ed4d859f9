package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// ProjectStore implements storage.ProjectStore using PostgreSQL.
type ProjectStore struct {
	pool *Pool
}

// NewProjectStore creates a new ProjectStore.
func NewProjectStore(pool *Pool) *ProjectStore {
	return &ProjectStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProjectStore = (*ProjectStore)(nil)

// List returns all projects ordered by name.
func (s *ProjectStore) List(ctx context.Context) ([]*domain.SavedProject, error) {
	rows, err := s.pool.Query(ctx, `SELECT body FROM saved_projects ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*domain.SavedProject
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		var p domain.SavedProject
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode project: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return out, nil
}

// Get retrieves a project by ID. Returns ErrNotFound if not exists.
func (s *ProjectStore) Get(ctx context.Context, id string) (*domain.SavedProject, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM saved_projects WHERE id = $1`, id).Scan(&body)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}

	var p domain.SavedProject
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	return &p, nil
}

// Save upserts a project.
func (s *ProjectStore) Save(ctx context.Context, p *domain.SavedProject) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}

	query := `
		INSERT INTO saved_projects (id, name, asset_id, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			asset_id = EXCLUDED.asset_id,
			body = EXCLUDED.body,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.pool.Exec(ctx, query, p.ID, p.Name, p.AssetID, string(body), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

// Delete removes a project. Returns ErrNotFound if not exists.
func (s *ProjectStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM saved_projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
