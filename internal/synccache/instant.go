package synccache

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
)

// InstantLoad is the single cold-start read used before any network call completes.
type InstantLoad struct {
	HasData     bool                        `json:"hasData"`
	Balances    []domain.BalanceSnapshot    `json:"balances"`
	Transfers   []domain.ClassifiedTransfer `json:"transfers"`
	AssetInfo   domain.AssetInfo            `json:"assetInfo"`
	LastSync    map[domain.DataKind]int64   `json:"lastSync"`
	Staleness   map[domain.DataKind]bool    `json:"staleness"`
	FromProject string                      `json:"fromProject,omitempty"` // set when served from a project snapshot
}

// InstantLoad returns everything cached for an asset. When the per-asset cache
// is empty and a project store is configured, the newest saved project
// snapshot of the same asset is served instead (marked fully stale).
func (c *Cache) InstantLoad(ctx context.Context, assetID string) (*InstantLoad, error) {
	st, err := c.SyncState(ctx, assetID)
	if err != nil {
		return nil, err
	}
	balances, err := c.loadBalances(ctx, assetID)
	if err != nil {
		return nil, err
	}
	transfers, err := c.loadTransfers(ctx, assetID)
	if err != nil {
		return nil, err
	}
	info, err := c.AssetInfo(ctx, assetID)
	if err != nil {
		return nil, err
	}
	staleness, err := c.Staleness(ctx, assetID)
	if err != nil {
		return nil, err
	}

	out := &InstantLoad{
		HasData:   len(balances) > 0 || len(transfers) > 0,
		Balances:  balances,
		Transfers: transfers,
		AssetInfo: info,
		LastSync:  st.LastSync,
		Staleness: staleness,
	}
	if out.HasData || c.projects == nil {
		return out, nil
	}

	snap, projectID, err := c.latestSnapshot(ctx, assetID)
	if err != nil {
		c.logger.Warn("project snapshot fallback failed", zap.String("asset", assetID), zap.Error(err))
		return out, nil
	}
	if snap == nil {
		return out, nil
	}

	out.HasData = len(snap.Balances) > 0 || len(snap.Transfers) > 0
	out.Balances = snap.Balances
	out.Transfers = snap.Transfers
	if out.AssetInfo.Metadata == nil && out.AssetInfo.Price == nil {
		out.AssetInfo = snap.AssetInfo
	}
	out.FromProject = projectID
	return out, nil
}

func (c *Cache) latestSnapshot(ctx context.Context, assetID string) (*domain.ProjectSnapshot, string, error) {
	projects, err := c.projects.List(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("list projects: %w", err)
	}
	candidates := lo.Filter(projects, func(p *domain.SavedProject, _ int) bool {
		return p.AssetID == assetID && p.Snapshot != nil
	})
	if len(candidates) == 0 {
		return nil, "", nil
	}
	best := lo.MaxBy(candidates, func(a, b *domain.SavedProject) bool {
		return a.Snapshot.SavedAt > b.Snapshot.SavedAt
	})
	return best.Snapshot, best.ID, nil
}
