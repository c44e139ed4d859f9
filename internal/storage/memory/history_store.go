package memory

import (
	"context"
	"sort"
	"sync"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// HistoryStore is an in-memory implementation of storage.HistoryStore.
type HistoryStore struct {
	mu       sync.RWMutex
	prices   map[string][]domain.PricePoint     // keyed by asset
	balances map[string][]storage.BalanceSample // keyed by asset
}

// NewHistoryStore creates a new in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		prices:   make(map[string][]domain.PricePoint),
		balances: make(map[string][]storage.BalanceSample),
	}
}

// AppendPrices appends price points.
func (s *HistoryStore) AppendPrices(_ context.Context, assetID string, points []domain.PricePoint) error {
	if assetID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[assetID] = append(s.prices[assetID], points...)
	return nil
}

// AppendBalances appends balance samples.
func (s *HistoryStore) AppendBalances(_ context.Context, assetID string, samples []storage.BalanceSample) error {
	if assetID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[assetID] = append(s.balances[assetID], samples...)
	return nil
}

// PriceRange returns price points within [from, to], ordered by timestamp ASC.
func (s *HistoryStore) PriceRange(_ context.Context, assetID string, from, to int64) ([]domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PricePoint
	for _, p := range s.prices[assetID] {
		if p.Timestamp >= from && p.Timestamp <= to {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// BalanceRange returns one account's samples within [from, to], ordered by timestamp ASC.
func (s *HistoryStore) BalanceRange(_ context.Context, assetID, address string, from, to int64) ([]storage.BalanceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.BalanceSample
	for _, b := range s.balances[assetID] {
		if b.Address == address && b.Timestamp >= from && b.Timestamp <= to {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

var _ storage.HistoryStore = (*HistoryStore)(nil)
