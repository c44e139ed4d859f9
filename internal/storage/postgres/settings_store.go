package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// SettingsStore implements storage.SettingsStore using a single-row table.
type SettingsStore struct {
	pool *Pool
}

// NewSettingsStore creates a new SettingsStore.
func NewSettingsStore(pool *Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SettingsStore = (*SettingsStore)(nil)

// LoadSettings returns the settings. Returns ErrNotFound if never saved.
func (s *SettingsStore) LoadSettings(ctx context.Context) (*domain.Settings, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM tracker_settings WHERE id = 1`).Scan(&body)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load settings: %w", err)
	}

	var out domain.Settings
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &out, nil
}

// SaveSettings overwrites the settings.
func (s *SettingsStore) SaveSettings(ctx context.Context, settings *domain.Settings) error {
	if settings == nil {
		return storage.ErrInvalidInput
	}
	body, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	query := `
		INSERT INTO tracker_settings (id, body, updated_at) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.pool.Exec(ctx, query, string(body), settings.LastUpdatedAt); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
