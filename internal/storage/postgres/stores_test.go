package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
	"solana-wallet-tracker/internal/storage/postgres"
)

func TestRecordStore_PutGetDelete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewRecordStore(pool)

	err := store.Put(ctx,
		&storage.Record{AssetID: "mintA", Kind: domain.KindBalances, SchemaVersion: 1, Payload: []byte(`{"x":1}`), UpdatedAt: 100},
		&storage.Record{AssetID: "mintA", Kind: domain.KindTransfers, SchemaVersion: 1, Payload: []byte(`[]`), UpdatedAt: 100},
		&storage.Record{AssetID: "mintB", Kind: domain.KindBalances, SchemaVersion: 1, Payload: []byte(`{}`), UpdatedAt: 100},
	)
	require.NoError(t, err)

	got, err := store.Get(ctx, "mintA", domain.KindBalances)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(got.Payload))
	assert.Equal(t, int64(100), got.UpdatedAt)
	assert.Equal(t, domain.KindBalances, got.Kind)

	// Upsert overwrites.
	require.NoError(t, store.Put(ctx, &storage.Record{AssetID: "mintA", Kind: domain.KindBalances, SchemaVersion: 1, Payload: []byte(`{"x":2}`), UpdatedAt: 200}))
	got, err = store.Get(ctx, "mintA", domain.KindBalances)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":2}`, string(got.Payload))

	require.NoError(t, store.DeleteAsset(ctx, "mintA"))
	_, err = store.Get(ctx, "mintA", domain.KindTransfers)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.Get(ctx, "mintB", domain.KindBalances)
	assert.NoError(t, err)
}

func TestRecordStore_InvalidBatchWritesNothing(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewRecordStore(pool)

	err := store.Put(ctx,
		&storage.Record{AssetID: "mintA", Kind: domain.KindPrice, Payload: []byte(`{}`)},
		&storage.Record{AssetID: "mintA", Kind: domain.KindPrice, Payload: []byte(`not json`)},
	)
	require.Error(t, err)

	_, err = store.Get(ctx, "mintA", domain.KindPrice)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestProjectAndSettingsStores(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	projects := postgres.NewProjectStore(pool)

	require.NoError(t, projects.Save(ctx, &domain.SavedProject{ID: "p2", Name: "beta", AssetID: "mintA"}))
	require.NoError(t, projects.Save(ctx, &domain.SavedProject{
		ID: "p1", Name: "alpha", AssetID: "mintA",
		Wallets: []domain.WatchedAccount{{ID: "w1", Address: "addr1", DisplayName: "main"}},
	}))

	list, err := projects.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "addr1", list[0].Wallets[0].Address)

	require.NoError(t, projects.Delete(ctx, "p1"))
	assert.ErrorIs(t, projects.Delete(ctx, "p1"), storage.ErrNotFound)
	_, err = projects.Get(ctx, "p1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	settings := postgres.NewSettingsStore(pool)
	_, err = settings.LoadSettings(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, settings.SaveSettings(ctx, &domain.Settings{PollIntervalMs: 30000, LastUpdatedAt: 5}))
	require.NoError(t, settings.SaveSettings(ctx, &domain.Settings{PollIntervalMs: 60000, LastUpdatedAt: 6}))
	got, err := settings.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), got.PollIntervalMs)
}
