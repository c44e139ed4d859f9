package memory

import (
	"context"
	"errors"
	"testing"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

func TestRecordStore_PutAndGet(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()

	rec := &storage.Record{
		AssetID:       "mintA",
		Kind:          domain.KindBalances,
		SchemaVersion: storage.CurrentSchemaVersion,
		Payload:       []byte(`{"a":1}`),
		UpdatedAt:     1704067200000,
	}
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Mutating the caller's payload must not leak into the store.
	rec.Payload[0] = 'X'

	got, err := store.Get(ctx, "mintA", domain.KindBalances)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Payload) != `{"a":1}` {
		t.Errorf("Payload mismatch: got %s", got.Payload)
	}
	if got.SchemaVersion != storage.CurrentSchemaVersion {
		t.Errorf("SchemaVersion mismatch: got %d", got.SchemaVersion)
	}

	if _, err := store.Get(ctx, "mintA", domain.KindPrice); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordStore_PutRejectsInvalidBatch(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()

	err := store.Put(ctx,
		&storage.Record{AssetID: "mintA", Kind: domain.KindPrice},
		&storage.Record{AssetID: "", Kind: domain.KindPrice},
	)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	if _, err := store.Get(ctx, "mintA", domain.KindPrice); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("partial batch was written: %v", err)
	}
}

func TestRecordStore_DeleteAssetIsolation(t *testing.T) {
	store := NewRecordStore()
	ctx := context.Background()

	for _, asset := range []string{"mintA", "mintB"} {
		for _, kind := range []domain.DataKind{domain.KindBalances, domain.KindTransfers, domain.KindSyncState} {
			if err := store.Put(ctx, &storage.Record{AssetID: asset, Kind: kind, Payload: []byte("{}")}); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
		}
	}

	if err := store.DeleteAsset(ctx, "mintA"); err != nil {
		t.Fatalf("DeleteAsset failed: %v", err)
	}

	if _, err := store.Get(ctx, "mintA", domain.KindTransfers); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("mintA transfers should be gone, got %v", err)
	}
	if _, err := store.Get(ctx, "mintB", domain.KindTransfers); err != nil {
		t.Errorf("mintB transfers should survive: %v", err)
	}
}
