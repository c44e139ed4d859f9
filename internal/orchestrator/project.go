package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// finalize stamps the last-updated time and snapshots the active project.
// Failures are logged; the cycle's data is already merged.
func (o *Orchestrator) finalize(ctx context.Context, c *cycle) {
	if err := o.stampLastUpdated(ctx); err != nil {
		o.logger.Warn("stamp last updated failed", zap.Error(err))
	}
	o.mu.Lock()
	projectID := o.projectID
	o.mu.Unlock()
	if projectID == "" || o.projects == nil {
		return
	}
	if _, err := o.SaveProject(ctx, projectID, ""); err != nil {
		o.logger.Warn("project snapshot failed", zap.String("project", projectID), zap.Error(err))
	}
}

func (o *Orchestrator) stampLastUpdated(ctx context.Context) error {
	if o.settings == nil {
		return nil
	}
	s, err := o.settings.LoadSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		s, err = &domain.Settings{}, nil
	}
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	s.LastUpdatedAt = o.now().UnixMilli()
	return o.settings.SaveSettings(ctx, s)
}

// SetProject makes id the project snapshotted after each completed cycle.
// An empty id disables snapshots.
func (o *Orchestrator) SetProject(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.projectID = id
}

// SaveProject writes the current asset, wallet set and cached state into a
// saved project. An empty id creates a new project; an empty name keeps the
// existing one or derives it from the asset.
func (o *Orchestrator) SaveProject(ctx context.Context, id, name string) (*domain.SavedProject, error) {
	if o.projects == nil {
		return nil, errors.New("no project store configured")
	}
	assetID := o.AssetID()
	now := o.now().UnixMilli()

	p := &domain.SavedProject{ID: id, CreatedAt: now}
	if id == "" {
		p.ID = uuid.NewString()
	} else {
		existing, err := o.projects.Get(ctx, id)
		switch {
		case err == nil:
			p = existing
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("load project %s: %w", id, err)
		}
	}

	snap, err := o.snapshot(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if name != "" {
		p.Name = name
	}
	if p.Name == "" {
		p.Name = projectName(snap.AssetInfo, assetID)
	}
	p.AssetID = assetID
	p.Wallets = o.watch.Accounts()
	p.Snapshot = snap
	p.UpdatedAt = now

	if err := o.projects.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("save project %s: %w", p.ID, err)
	}
	o.logger.Debug("project saved", zap.String("project", p.ID), zap.Int("transfers", len(snap.Transfers)))
	return p, nil
}

// LoadProject switches the asset and watch list to a saved project's and
// makes it the snapshot target.
func (o *Orchestrator) LoadProject(ctx context.Context, id string) (*domain.SavedProject, error) {
	if o.projects == nil {
		return nil, errors.New("no project store configured")
	}
	p, err := o.projects.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", id, err)
	}
	if err := o.SetAsset(p.AssetID); err != nil {
		return nil, err
	}
	if err := o.SetAccounts(p.Wallets); err != nil {
		return nil, err
	}
	o.SetProject(p.ID)
	return p, nil
}

func (o *Orchestrator) snapshot(ctx context.Context, assetID string) (*domain.ProjectSnapshot, error) {
	balances, err := o.cache.Balances(ctx, assetID)
	if err != nil {
		return nil, err
	}
	transfers, err := o.cache.Transfers(ctx, assetID)
	if err != nil {
		return nil, err
	}
	info, err := o.cache.AssetInfo(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return &domain.ProjectSnapshot{
		Balances:  balances.Balances,
		Transfers: transfers.Transfers,
		AssetInfo: info,
		SavedAt:   o.now().UnixMilli(),
	}, nil
}

func projectName(info domain.AssetInfo, assetID string) string {
	if info.Metadata != nil && info.Metadata.Symbol != "" {
		return info.Metadata.Symbol
	}
	return domain.ShortAddress(assetID)
}
