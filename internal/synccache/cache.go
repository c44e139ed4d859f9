// Package synccache is the persisted per-asset cache of balances, transfers,
// metadata and price, with per-kind freshness windows.
package synccache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// TTLs are the per-kind freshness windows.
type TTLs struct {
	Balances  time.Duration `yaml:"balances"`
	Transfers time.Duration `yaml:"transfers"`
	Metadata  time.Duration `yaml:"metadata"`
	Price     time.Duration `yaml:"price"`
}

// DefaultTTLs returns the default freshness windows.
func DefaultTTLs() TTLs {
	return TTLs{
		Balances:  2 * time.Minute,
		Transfers: 5 * time.Minute,
		Metadata:  24 * time.Hour,
		Price:     time.Minute,
	}
}

// For returns the TTL of one kind. Unknown kinds are always stale.
func (t TTLs) For(kind domain.DataKind) time.Duration {
	switch kind {
	case domain.KindBalances:
		return t.Balances
	case domain.KindTransfers:
		return t.Transfers
	case domain.KindMetadata:
		return t.Metadata
	case domain.KindPrice:
		return t.Price
	default:
		return 0
	}
}

// IsStale reports whether data last synced at lastSync (ms) is older than ttl at now.
// Never-synced data (lastSync == 0) is stale.
func IsStale(lastSync int64, ttl time.Duration, now time.Time) bool {
	if lastSync <= 0 {
		return true
	}
	return now.UnixMilli()-lastSync > ttl.Milliseconds()
}

// Cache is the sync cache service. It owns the encoding of records in a
// storage.RecordStore and serializes read-modify-write merges per asset.
type Cache struct {
	store    storage.RecordStore
	projects storage.ProjectStore
	history  storage.HistoryStore
	ttls     TTLs
	now      func() time.Time
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTLs overrides the freshness windows.
func WithTTLs(t TTLs) Option {
	return func(c *Cache) { c.ttls = t }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l.Named("synccache")
		}
	}
}

// WithProjectStore enables the saved-project fallback for InstantLoad.
func WithProjectStore(p storage.ProjectStore) Option {
	return func(c *Cache) { c.projects = p }
}

// WithHistoryStore mirrors merged prices and balances into an append-only series.
func WithHistoryStore(h storage.HistoryStore) Option {
	return func(c *Cache) { c.history = h }
}

// New creates a Cache over store.
func New(store storage.RecordStore, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		ttls:   DefaultTTLs(),
		now:    time.Now,
		logger: zap.NewNop(),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTLs returns the configured freshness windows.
func (c *Cache) TTLs() TTLs {
	return c.ttls
}

// lock returns the held merge lock of one asset; call the returned func to release.
func (c *Cache) lock(assetID string) func() {
	c.mu.Lock()
	l, ok := c.locks[assetID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[assetID] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// load decodes one record into v. Missing records and records written by a
// newer schema report found=false.
func (c *Cache) load(ctx context.Context, assetID string, kind domain.DataKind, v any) (bool, error) {
	rec, err := c.store.Get(ctx, assetID, kind)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s/%s: %w", assetID, kind, err)
	}
	if rec.SchemaVersion > storage.CurrentSchemaVersion {
		c.logger.Warn("ignoring record from newer schema",
			zap.String("asset", assetID),
			zap.String("kind", string(kind)),
			zap.Int("schema_version", rec.SchemaVersion),
			zap.Error(storage.ErrUnsupportedSchema))
		return false, nil
	}
	if err := json.Unmarshal(rec.Payload, v); err != nil {
		c.logger.Warn("ignoring undecodable record",
			zap.String("asset", assetID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (c *Cache) record(assetID string, kind domain.DataKind, v any, at int64) (*storage.Record, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", assetID, kind, err)
	}
	return &storage.Record{
		AssetID:       assetID,
		Kind:          kind,
		SchemaVersion: storage.CurrentSchemaVersion,
		Payload:       payload,
		UpdatedAt:     at,
	}, nil
}

// SyncState returns the per-kind last sync times of an asset.
func (c *Cache) SyncState(ctx context.Context, assetID string) (*domain.SyncState, error) {
	st := &domain.SyncState{AssetID: assetID}
	if _, err := c.load(ctx, assetID, domain.KindSyncState, st); err != nil {
		return nil, err
	}
	if st.LastSync == nil {
		st.LastSync = make(map[domain.DataKind]int64)
	}
	st.AssetID = assetID
	return st, nil
}

// commit writes the data record together with the bumped sync state in one Put.
func (c *Cache) commit(ctx context.Context, assetID string, kind domain.DataKind, v any, stamp bool) error {
	at := c.now().UnixMilli()

	data, err := c.record(assetID, kind, v, at)
	if err != nil {
		return err
	}
	if !stamp {
		return c.store.Put(ctx, data)
	}

	st, err := c.SyncState(ctx, assetID)
	if err != nil {
		return err
	}
	st.LastSync[kind] = at
	state, err := c.record(assetID, domain.KindSyncState, st, at)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, data, state)
}

// Staleness reports isStale for every cache kind of an asset.
func (c *Cache) Staleness(ctx context.Context, assetID string) (map[domain.DataKind]bool, error) {
	st, err := c.SyncState(ctx, assetID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	out := make(map[domain.DataKind]bool, len(domain.CacheKinds))
	for _, kind := range domain.CacheKinds {
		out[kind] = IsStale(st.LastSync[kind], c.ttls.For(kind), now)
	}
	return out, nil
}

// ClearAsset removes all four stores and the sync state of an asset in one
// storage transaction.
func (c *Cache) ClearAsset(ctx context.Context, assetID string) error {
	unlock := c.lock(assetID)
	defer unlock()

	if err := c.store.DeleteAsset(ctx, assetID); err != nil {
		return fmt.Errorf("clear asset %s: %w", assetID, err)
	}
	c.logger.Info("cleared asset cache", zap.String("asset", assetID))
	return nil
}
