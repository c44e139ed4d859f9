package memory

import (
	"context"
	"errors"
	"testing"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

func TestProjectStore_SaveListDelete(t *testing.T) {
	store := NewProjectStore()
	ctx := context.Background()

	p1 := &domain.SavedProject{ID: "p1", Name: "zeta", AssetID: "mintA",
		Wallets: []domain.WatchedAccount{{ID: "w1", Address: "addr1"}}}
	p2 := &domain.SavedProject{ID: "p2", Name: "alpha", AssetID: "mintB"}

	for _, p := range []*domain.SavedProject{p1, p2} {
		if err := store.Save(ctx, p); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	// Caller mutation after save must not be visible.
	p1.Wallets[0].Address = "changed"

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].Name != "alpha" || list[1].Name != "zeta" {
		t.Fatalf("unexpected order: %+v", list)
	}

	got, err := store.Get(ctx, "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Wallets[0].Address != "addr1" {
		t.Errorf("stored project aliased caller slice: %s", got.Wallets[0].Address)
	}

	if err := store.Delete(ctx, "p1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "p1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := store.Save(ctx, &domain.SavedProject{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSettingsStore_LoadSave(t *testing.T) {
	store := NewSettingsStore()
	ctx := context.Background()

	if _, err := store.LoadSettings(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.SaveSettings(ctx, &domain.Settings{PollIntervalMs: 60000, APIKey: "k"}); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	got, err := store.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if got.PollIntervalMs != 60000 || got.APIKey != "k" {
		t.Errorf("unexpected settings: %+v", got)
	}
}
