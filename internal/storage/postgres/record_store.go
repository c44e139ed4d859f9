package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// RecordStore implements storage.RecordStore using PostgreSQL.
type RecordStore struct {
	pool *Pool
}

// NewRecordStore creates a new RecordStore.
func NewRecordStore(pool *Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RecordStore = (*RecordStore)(nil)

// Get retrieves one record. Returns ErrNotFound if not exists.
func (s *RecordStore) Get(ctx context.Context, assetID string, kind domain.DataKind) (*storage.Record, error) {
	query := `
		SELECT asset_id, kind, schema_version, payload, updated_at
		FROM sync_records
		WHERE asset_id = $1 AND kind = $2
	`

	var (
		r    storage.Record
		k    string
		body []byte
	)
	err := s.pool.QueryRow(ctx, query, assetID, string(kind)).
		Scan(&r.AssetID, &k, &r.SchemaVersion, &body, &r.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get sync record: %w", err)
	}
	r.Kind = domain.DataKind(k)
	r.Payload = body
	return &r, nil
}

// Put upserts records in one transaction.
func (s *RecordStore) Put(ctx context.Context, recs ...*storage.Record) error {
	for _, r := range recs {
		if err := storage.ValidateRecord(r); err != nil {
			return err
		}
	}
	if len(recs) == 0 {
		return nil
	}

	query := `
		INSERT INTO sync_records (asset_id, kind, schema_version, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (asset_id, kind) DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`

	return s.pool.withTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range recs {
			batch.Queue(query, r.AssetID, string(r.Kind), r.SchemaVersion, string(r.Payload), r.UpdatedAt)
		}
		br := tx.SendBatch(ctx, batch)
		for range recs {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("upsert sync record: %w", err)
			}
		}
		return br.Close()
	})
}

// DeleteAsset removes every record of the asset.
func (s *RecordStore) DeleteAsset(ctx context.Context, assetID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sync_records WHERE asset_id = $1`, assetID); err != nil {
		return fmt.Errorf("delete asset records: %w", err)
	}
	return nil
}
