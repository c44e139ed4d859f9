// Package orchestrator runs refresh cycles for the tracked asset.
// It coordinates: metadata/price → balances → transfer history → finalize
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-wallet-tracker/internal/activity"
	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/gateway"
	"solana-wallet-tracker/internal/solana"
	"solana-wallet-tracker/internal/storage"
	"solana-wallet-tracker/internal/synccache"
)

// Ledger is the remote data surface used by a cycle.
type Ledger interface {
	FetchMetadata(ctx context.Context, assetID string) (domain.AssetMetadata, error)
	FetchPrice(ctx context.Context, assetID string) (domain.AssetPrice, error)
	FetchBalances(ctx context.Context, accounts []string, assetID string, onProgress gateway.ProgressFunc) ([]domain.BalanceResult, error)
	FetchTransferHistory(ctx context.Context, wallet, assetID string, opts gateway.HistoryOptions) gateway.HistoryResult
	FetchTransferHistories(ctx context.Context, assetID string, reqs []gateway.HistoryRequest, onProgress gateway.ProgressFunc) ([]gateway.HistoryResult, error)
	InvalidateAsset(assetID string)
}

// Fetch modes.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
	ModeDeep        = "deep"
)

// Orchestrator owns the refresh cycle of one tracked asset.
// Only one cycle runs at a time unless a forced refresh overrides it.
type Orchestrator struct {
	ledger   Ledger
	cache    *synccache.Cache
	settings storage.SettingsStore
	projects storage.ProjectStore
	deriver  *activity.Deriver
	history  gateway.HistoryOptions
	maxAge   time.Duration
	now      func() time.Time
	logger   *zap.Logger
	progress *Broadcaster

	mu        sync.Mutex
	assetID   string
	watch     *domain.WatchList
	projectID string
	forceFull bool
	running   bool
	cycleFull bool // the running cycle fetches full history
	cycle     uint64
	cancel    context.CancelFunc
	pending   map[string]struct{}
	last      *Result
	changed   chan struct{} // closed and replaced when the watch list changes
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Ledger Ledger
	Cache  *synccache.Cache

	// Optional stores
	Settings storage.SettingsStore // stamps "last updated"
	Projects storage.ProjectStore  // snapshot target when ProjectID is set

	AssetID   string
	Accounts  []domain.WatchedAccount
	ProjectID string

	// StatusPolicy configures the activity status windows.
	StatusPolicy activity.Policy
	// History bounds full-mode transfer fetches per wallet.
	History gateway.HistoryOptions
	// BalanceMaxAge: background cycles skip accounts fetched more recently.
	BalanceMaxAge time.Duration

	Now    func() time.Time
	Logger *zap.Logger
}

// New creates a new Orchestrator. Invalid or duplicate accounts are rejected.
func New(opts Options) (*Orchestrator, error) {
	if opts.Ledger == nil || opts.Cache == nil {
		return nil, errors.New("orchestrator: ledger and cache are required")
	}
	o := &Orchestrator{
		ledger:    opts.Ledger,
		cache:     opts.Cache,
		settings:  opts.Settings,
		projects:  opts.Projects,
		deriver:   activity.NewDeriver(opts.StatusPolicy),
		history:   opts.History,
		maxAge:    opts.BalanceMaxAge,
		now:       opts.Now,
		logger:    opts.Logger,
		progress:  NewBroadcaster(),
		assetID:   domain.NormalizeAddress(opts.AssetID),
		watch:     domain.NewWatchList(solana.ValidateAddress),
		projectID: opts.ProjectID,
		pending:   make(map[string]struct{}),
		changed:   make(chan struct{}),
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.Named("orchestrator")
	if err := o.watch.Replace(opts.Accounts); err != nil {
		return nil, fmt.Errorf("watch list: %w", err)
	}
	o.progress.Publish(domain.Progress{Stage: domain.StageIdle, At: o.now().UnixMilli()})
	return o, nil
}

// AssetID returns the tracked asset.
func (o *Orchestrator) AssetID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.assetID
}

// Accounts returns the watched accounts.
func (o *Orchestrator) Accounts() []domain.WatchedAccount {
	return o.watch.Accounts()
}

// Progress returns the progress broadcaster.
func (o *Orchestrator) Progress() *Broadcaster {
	return o.progress
}

// SetAsset switches the tracked asset. The running cycle is cancelled and the
// next cycle is a full fetch.
func (o *Orchestrator) SetAsset(assetID string) error {
	assetID = domain.NormalizeAddress(assetID)
	if err := solana.ValidateAddress(assetID); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if assetID == o.assetID {
		return nil
	}
	o.cancelLocked()
	o.ledger.InvalidateAsset(o.assetID)
	o.assetID = assetID
	o.forceFull = true
	o.logger.Info("tracked asset changed", zap.String("asset", assetID))
	return nil
}

// SetAccounts replaces the watch list. The next cycle is a full fetch.
func (o *Orchestrator) SetAccounts(accounts []domain.WatchedAccount) error {
	if err := o.watch.Replace(accounts); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.forceFull = true
	o.notifyChangedLocked()
	o.logger.Info("watch list replaced", zap.Int("accounts", o.watch.Len()))
	return nil
}

// AddAccount watches one more wallet.
func (o *Orchestrator) AddAccount(address, displayName, group string) (domain.WatchedAccount, error) {
	acc, err := o.watch.Add(address, displayName, group)
	if err != nil {
		return domain.WatchedAccount{}, err
	}
	o.mu.Lock()
	o.forceFull = true
	o.notifyChangedLocked()
	o.mu.Unlock()
	return acc, nil
}

// WatchListChanged returns a channel closed on the next watch list change.
func (o *Orchestrator) WatchListChanged() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.changed
}

func (o *Orchestrator) notifyChangedLocked() {
	close(o.changed)
	o.changed = make(chan struct{})
}

// ClearData deletes every cached entry of the tracked asset and forces the
// next cycle to be a full fetch.
func (o *Orchestrator) ClearData(ctx context.Context) error {
	o.mu.Lock()
	assetID := o.assetID
	o.cancelLocked()
	o.forceFull = true
	o.mu.Unlock()

	o.ledger.InvalidateAsset(assetID)
	return o.cache.ClearAsset(ctx, assetID)
}

// ForceFullRefresh makes the next cycle fetch full transfer history.
func (o *Orchestrator) ForceFullRefresh() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.forceFull = true
}

// Cancel aborts the running cycle, if any. Reports whether one was running.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelLocked()
}

func (o *Orchestrator) cancelLocked() bool {
	if !o.running || o.cancel == nil {
		return false
	}
	o.cancel()
	return true
}

// Running reports whether a cycle is in flight.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// LastResult returns the result of the most recent finished cycle.
func (o *Orchestrator) LastResult() *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *Orchestrator) pendingSet() map[string]struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]struct{}, len(o.pending))
	for k := range o.pending {
		out[k] = struct{}{}
	}
	return out
}

func (o *Orchestrator) setPending(addrs []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		o.pending[a] = struct{}{}
	}
}
