package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	bbolt "go.etcd.io/bbolt"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// RecordStore implements storage.RecordStore. Keys are "<asset>\x00<kind>".
type RecordStore struct {
	db *DB
}

// NewRecordStore creates a new RecordStore.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

// Compile-time interface check.
var _ storage.RecordStore = (*RecordStore)(nil)

type recordEnvelope struct {
	SchemaVersion int             `json:"schemaVersion"`
	UpdatedAt     int64           `json:"updatedAt"`
	Payload       json.RawMessage `json:"payload"`
}

func recordKey(assetID string, kind domain.DataKind) []byte {
	return []byte(assetID + "\x00" + string(kind))
}

func assetPrefix(assetID string) []byte {
	return []byte(assetID + "\x00")
}

// Get retrieves one record. Returns ErrNotFound if not exists.
func (s *RecordStore) Get(_ context.Context, assetID string, kind domain.DataKind) (*storage.Record, error) {
	var env recordEnvelope
	err := s.db.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRecords).Get(recordKey(assetID, kind))
		if v == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(v, &env)
	})
	if err != nil {
		return nil, err
	}

	return &storage.Record{
		AssetID:       assetID,
		Kind:          kind,
		SchemaVersion: env.SchemaVersion,
		Payload:       []byte(env.Payload),
		UpdatedAt:     env.UpdatedAt,
	}, nil
}

// Put upserts records in one bolt transaction.
func (s *RecordStore) Put(_ context.Context, recs ...*storage.Record) error {
	for _, r := range recs {
		if err := storage.ValidateRecord(r); err != nil {
			return err
		}
	}

	return s.db.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		for _, r := range recs {
			raw, err := json.Marshal(recordEnvelope{
				SchemaVersion: r.SchemaVersion,
				UpdatedAt:     r.UpdatedAt,
				Payload:       json.RawMessage(r.Payload),
			})
			if err != nil {
				return fmt.Errorf("encode record %s/%s: %w", r.AssetID, r.Kind, err)
			}
			if err := b.Put(recordKey(r.AssetID, r.Kind), raw); err != nil {
				return fmt.Errorf("put record: %w", err)
			}
		}
		return nil
	})
}

// DeleteAsset removes every record of the asset in one bolt transaction.
func (s *RecordStore) DeleteAsset(_ context.Context, assetID string) error {
	prefix := assetPrefix(assetID)
	return s.db.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("delete record: %w", err)
			}
		}
		return nil
	})
}
