package memory

import (
	"context"
	"sync"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

type recordKey struct {
	assetID string
	kind    domain.DataKind
}

// RecordStore is an in-memory implementation of storage.RecordStore.
type RecordStore struct {
	mu      sync.RWMutex
	records map[recordKey]*storage.Record
}

// NewRecordStore creates a new in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[recordKey]*storage.Record),
	}
}

// Get retrieves one record. Returns ErrNotFound if not exists.
func (s *RecordStore) Get(_ context.Context, assetID string, kind domain.DataKind) (*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[recordKey{assetID, kind}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyRecord(r), nil
}

// Put upserts records atomically.
func (s *RecordStore) Put(_ context.Context, recs ...*storage.Record) error {
	for _, r := range recs {
		if err := storage.ValidateRecord(r); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range recs {
		s.records[recordKey{r.AssetID, r.Kind}] = copyRecord(r)
	}
	return nil
}

// DeleteAsset removes every record of the asset under one lock.
func (s *RecordStore) DeleteAsset(_ context.Context, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.records {
		if k.assetID == assetID {
			delete(s.records, k)
		}
	}
	return nil
}

func copyRecord(r *storage.Record) *storage.Record {
	c := *r
	c.Payload = append([]byte(nil), r.Payload...)
	return &c
}

var _ storage.RecordStore = (*RecordStore)(nil)
