package synccache

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/observability"
	"solana-wallet-tracker/internal/storage"
)

// BalancesView is the cached balance set of one asset.
type BalancesView struct {
	Balances []domain.BalanceSnapshot // ordered by address
	LastSync int64
	IsStale  bool
}

// ByAddress indexes the balances.
func (v BalancesView) ByAddress() map[string]domain.BalanceSnapshot {
	return lo.SliceToMap(v.Balances, func(b domain.BalanceSnapshot) (string, domain.BalanceSnapshot) {
		return b.Address, b
	})
}

func (c *Cache) loadBalances(ctx context.Context, assetID string) ([]domain.BalanceSnapshot, error) {
	var out []domain.BalanceSnapshot
	if _, err := c.load(ctx, assetID, domain.KindBalances, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Balances returns the cached balances of an asset.
func (c *Cache) Balances(ctx context.Context, assetID string) (BalancesView, error) {
	balances, err := c.loadBalances(ctx, assetID)
	if err != nil {
		return BalancesView{}, err
	}
	st, err := c.SyncState(ctx, assetID)
	if err != nil {
		return BalancesView{}, err
	}
	last := st.LastSync[domain.KindBalances]
	return BalancesView{
		Balances: balances,
		LastSync: last,
		IsStale:  IsStale(last, c.ttls.Balances, c.now()),
	}, nil
}

// MergeBalances folds gateway results into the cached snapshots.
// Successful results shift uiAmount into previousUiAmount, append to the
// bounded history and keep firstSeenAt. Failed results only annotate an
// existing snapshot with the error; an account is never created from a failure.
// The sync stamp advances only when at least one result succeeded.
func (c *Cache) MergeBalances(ctx context.Context, assetID string, results []domain.BalanceResult) (BalancesView, error) {
	unlock := c.lock(assetID)
	defer unlock()

	existing, err := c.loadBalances(ctx, assetID)
	if err != nil {
		return BalancesView{}, err
	}
	byAddr := lo.SliceToMap(existing, func(b domain.BalanceSnapshot) (string, domain.BalanceSnapshot) {
		return b.Address, b
	})

	now := c.now().UnixMilli()
	var (
		merged  int
		samples []storage.BalanceSample
	)
	for _, r := range results {
		prev, had := byAddr[r.Address]
		if !r.OK() {
			if had {
				prev.Error = r.Err.Error()
				byAddr[r.Address] = prev
			}
			continue
		}

		at := r.FetchedAt
		if at == 0 {
			at = now
		}
		snap := domain.BalanceSnapshot{
			Address:       r.Address,
			RawAmount:     r.RawAmount,
			Decimals:      r.Decimals,
			UIAmount:      r.UIAmount,
			FirstSeenAt:   at,
			LastUpdatedAt: at,
		}
		if had {
			p := prev.UIAmount
			snap.PreviousUIAmount = &p
			snap.FirstSeenAt = prev.FirstSeenAt
			snap.History = prev.History
		}
		snap.History = appendCapped(snap.History, domain.BalancePoint{Amount: r.UIAmount, Timestamp: at}, domain.BalanceHistoryCap)
		byAddr[r.Address] = snap
		samples = append(samples, storage.BalanceSample{Address: r.Address, Amount: r.UIAmount, Timestamp: at})
		merged++
	}

	out := lo.Values(byAddr)
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })

	if err := c.commit(ctx, assetID, domain.KindBalances, out, merged > 0); err != nil {
		return BalancesView{}, err
	}
	observability.RecordBalancesMerged(merged)
	c.appendBalanceHistory(ctx, assetID, samples)

	st, err := c.SyncState(ctx, assetID)
	if err != nil {
		return BalancesView{}, err
	}
	last := st.LastSync[domain.KindBalances]
	return BalancesView{Balances: out, LastSync: last, IsStale: IsStale(last, c.ttls.Balances, c.now())}, nil
}

// GetStaleAccounts returns the subset of all whose cached balance is missing
// or older than maxAge, in input order.
func (c *Cache) GetStaleAccounts(ctx context.Context, assetID string, all []string, maxAge time.Duration) ([]string, error) {
	balances, err := c.loadBalances(ctx, assetID)
	if err != nil {
		return nil, err
	}
	byAddr := lo.SliceToMap(balances, func(b domain.BalanceSnapshot) (string, domain.BalanceSnapshot) {
		return b.Address, b
	})

	now := c.now()
	return lo.Filter(all, func(addr string, _ int) bool {
		b, ok := byAddr[addr]
		return !ok || IsStale(b.LastUpdatedAt, maxAge, now)
	}), nil
}

func (c *Cache) appendBalanceHistory(ctx context.Context, assetID string, samples []storage.BalanceSample) {
	if c.history == nil || len(samples) == 0 {
		return
	}
	if err := c.history.AppendBalances(ctx, assetID, samples); err != nil {
		c.logger.Warn("append balance history failed", zap.String("asset", assetID), zap.Error(err))
	}
}

// appendCapped appends v and keeps at most limit newest entries.
func appendCapped[T any](s []T, v T, limit int) []T {
	out := make([]T, 0, min(len(s)+1, limit))
	if drop := len(s) + 1 - limit; drop > 0 {
		s = s[drop:]
	}
	out = append(out, s...)
	return append(out, v)
}
