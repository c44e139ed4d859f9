package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"solana-wallet-tracker/internal/domain"
)

// CurrentSchemaVersion is the payload layout version written by this build.
const CurrentSchemaVersion = 1

// Record is one persisted per-asset cache entry.
// Keyed by (AssetID, Kind); Payload is the JSON encoding of the kind's value.
type Record struct {
	AssetID       string
	Kind          domain.DataKind
	SchemaVersion int
	Payload       []byte
	UpdatedAt     int64 // ms
}

// RecordStore persists the per-asset cache records.
type RecordStore interface {
	// Get retrieves one record. Returns ErrNotFound if not exists.
	Get(ctx context.Context, assetID string, kind domain.DataKind) (*Record, error)

	// Put upserts records atomically: either all are written or none.
	Put(ctx context.Context, recs ...*Record) error

	// DeleteAsset removes every record of the asset in one transaction.
	DeleteAsset(ctx context.Context, assetID string) error
}

// ProjectStore persists saved projects.
type ProjectStore interface {
	// List returns all projects ordered by name.
	List(ctx context.Context) ([]*domain.SavedProject, error)

	// Get retrieves a project by ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, id string) (*domain.SavedProject, error)

	// Save upserts a project.
	Save(ctx context.Context, p *domain.SavedProject) error

	// Delete removes a project. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, id string) error
}

// SettingsStore persists the flat settings record.
type SettingsStore interface {
	// LoadSettings returns the settings. Returns ErrNotFound if never saved.
	LoadSettings(ctx context.Context) (*domain.Settings, error)

	// SaveSettings overwrites the settings.
	SaveSettings(ctx context.Context, s *domain.Settings) error
}

// BalanceSample is one account balance observation for history charts.
type BalanceSample struct {
	Address   string
	Amount    decimal.Decimal
	Timestamp int64 // ms
}

// HistoryStore keeps append-only price and balance series per asset.
type HistoryStore interface {
	// AppendPrices appends price points.
	AppendPrices(ctx context.Context, assetID string, points []domain.PricePoint) error

	// AppendBalances appends balance samples.
	AppendBalances(ctx context.Context, assetID string, samples []BalanceSample) error

	// PriceRange returns price points within [from, to] (inclusive, ms), ordered by timestamp ASC.
	PriceRange(ctx context.Context, assetID string, from, to int64) ([]domain.PricePoint, error)

	// BalanceRange returns one account's samples within [from, to] (inclusive, ms), ordered by timestamp ASC.
	BalanceRange(ctx context.Context, assetID, address string, from, to int64) ([]BalanceSample, error)
}
