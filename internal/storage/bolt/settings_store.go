package bolt

import (
	"context"
	"encoding/json"
	"fmt"

	bbolt "go.etcd.io/bbolt"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// SettingsStore implements storage.SettingsStore as a single key.
type SettingsStore struct {
	db *DB
}

// NewSettingsStore creates a new SettingsStore.
func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Compile-time interface check.
var _ storage.SettingsStore = (*SettingsStore)(nil)

// LoadSettings returns the settings. Returns ErrNotFound if never saved.
func (s *SettingsStore) LoadSettings(_ context.Context) (*domain.Settings, error) {
	var out domain.Settings
	err := s.db.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSettings).Get(settingsKey)
		if v == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(v, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveSettings overwrites the settings.
func (s *SettingsStore) SaveSettings(_ context.Context, settings *domain.Settings) error {
	if settings == nil {
		return storage.ErrInvalidInput
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return s.db.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSettings).Put(settingsKey, raw)
	})
}
