package synccache

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/observability"
)

// TransfersView is the cached transfer set of one asset, newest first.
type TransfersView struct {
	Transfers []domain.ClassifiedTransfer
	LastSync  int64
	IsStale   bool
}

// MergeResult reports a transfer merge.
type MergeResult struct {
	Added int
	Total int
}

// ForWallet returns the wallet's transfers, newest first.
func (v TransfersView) ForWallet(wallet string) []domain.ClassifiedTransfer {
	return lo.Filter(v.Transfers, func(t domain.ClassifiedTransfer, _ int) bool {
		return t.WalletAddress == wallet
	})
}

// Cursor returns the incremental fetch hints of one wallet: the newest cached
// transfer timestamp and the signatures already cached for it.
func (v TransfersView) Cursor(wallet string) (since int64, known map[string]struct{}) {
	known = make(map[string]struct{})
	for _, t := range v.Transfers {
		if t.WalletAddress != wallet {
			continue
		}
		known[t.SignatureID] = struct{}{}
		if t.Timestamp > since {
			since = t.Timestamp
		}
	}
	return since, known
}

func (c *Cache) loadTransfers(ctx context.Context, assetID string) ([]domain.ClassifiedTransfer, error) {
	var out []domain.ClassifiedTransfer
	if _, err := c.load(ctx, assetID, domain.KindTransfers, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Transfers returns the cached transfers of an asset.
func (c *Cache) Transfers(ctx context.Context, assetID string) (TransfersView, error) {
	transfers, err := c.loadTransfers(ctx, assetID)
	if err != nil {
		return TransfersView{}, err
	}
	st, err := c.SyncState(ctx, assetID)
	if err != nil {
		return TransfersView{}, err
	}
	last := st.LastSync[domain.KindTransfers]
	return TransfersView{
		Transfers: transfers,
		LastSync:  last,
		IsStale:   IsStale(last, c.ttls.Transfers, c.now()),
	}, nil
}

// MergeTransfers appends the transfers not cached yet and re-sorts the set by
// timestamp descending. Identity is TransferKey, so merging the same set twice
// adds nothing. Existing entries are never reclassified. The sync stamp
// advances only when stamp is set, i.e. the caller completed a fetch.
func (c *Cache) MergeTransfers(ctx context.Context, assetID string, incoming []domain.ClassifiedTransfer, stamp bool) (MergeResult, error) {
	unlock := c.lock(assetID)
	defer unlock()

	existing, err := c.loadTransfers(ctx, assetID)
	if err != nil {
		return MergeResult{}, err
	}

	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, t := range existing {
		seen[t.TransferKey()] = struct{}{}
	}

	added := 0
	all := existing
	for _, t := range incoming {
		key := t.TransferKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		all = append(all, t)
		added++
	}
	SortTransfers(all)

	if err := c.commit(ctx, assetID, domain.KindTransfers, all, stamp); err != nil {
		return MergeResult{}, err
	}
	observability.RecordTransfersAdded(added)
	return MergeResult{Added: added, Total: len(all)}, nil
}

// SortTransfers orders transfers newest first; ties break on signature then wallet.
func SortTransfers(ts []domain.ClassifiedTransfer) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Timestamp != ts[j].Timestamp {
			return ts[i].Timestamp > ts[j].Timestamp
		}
		if ts[i].SignatureID != ts[j].SignatureID {
			return ts[i].SignatureID < ts[j].SignatureID
		}
		return ts[i].WalletAddress < ts[j].WalletAddress
	})
}
