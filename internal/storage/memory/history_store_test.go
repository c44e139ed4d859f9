package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

func TestHistoryStore_PriceRange(t *testing.T) {
	store := NewHistoryStore()
	ctx := context.Background()

	points := []domain.PricePoint{
		{Price: decimal.NewFromFloat(1.5), Timestamp: 3000},
		{Price: decimal.NewFromFloat(1.0), Timestamp: 1000},
		{Price: decimal.NewFromFloat(2.0), Timestamp: 5000},
	}
	if err := store.AppendPrices(ctx, "mintA", points); err != nil {
		t.Fatalf("AppendPrices failed: %v", err)
	}

	got, err := store.PriceRange(ctx, "mintA", 1000, 3000)
	if err != nil {
		t.Fatalf("PriceRange failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 points, got %d", len(got))
	}
	if got[0].Timestamp != 1000 || got[1].Timestamp != 3000 {
		t.Errorf("points not ordered ASC: %+v", got)
	}
}

func TestHistoryStore_BalanceRange(t *testing.T) {
	store := NewHistoryStore()
	ctx := context.Background()

	samples := []storage.BalanceSample{
		{Address: "a1", Amount: decimal.NewFromInt(10), Timestamp: 1000},
		{Address: "a2", Amount: decimal.NewFromInt(20), Timestamp: 1000},
		{Address: "a1", Amount: decimal.NewFromInt(12), Timestamp: 2000},
	}
	if err := store.AppendBalances(ctx, "mintA", samples); err != nil {
		t.Fatalf("AppendBalances failed: %v", err)
	}

	got, err := store.BalanceRange(ctx, "mintA", "a1", 0, 5000)
	if err != nil {
		t.Fatalf("BalanceRange failed: %v", err)
	}
	if len(got) != 2 || !got[1].Amount.Equal(decimal.NewFromInt(12)) {
		t.Errorf("unexpected samples: %+v", got)
	}
}
