package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/gateway"
	"solana-wallet-tracker/internal/observability"
	"solana-wallet-tracker/internal/solana"
)

// Progress bands per stage.
const (
	pctMetadata  = 0
	pctBalances  = 15
	pctTransfers = 55
	pctFinalize  = 98
	pctDone      = 100
)

// RefreshOptions selects how a cycle runs.
type RefreshOptions struct {
	// Foreground cycles fetch full history and expose pending placeholders.
	Foreground bool
	// Force overrides a running cycle instead of failing with ErrRefreshInProgress.
	Force bool
}

// Result contains the outcome of one cycle.
type Result struct {
	Mode            string        `json:"mode"`
	Stage           domain.Stage  `json:"stage"`
	Accounts        int           `json:"accounts"`
	BalancesFetched int           `json:"balancesFetched"`
	BalanceFailures int           `json:"balanceFailures"`
	TransfersAdded  int           `json:"transfersAdded"`
	TransfersTotal  int           `json:"transfersTotal"`
	DetailFailures  int           `json:"detailFailures"`
	HistoryFailures int           `json:"historyFailures"`
	StartedAt       int64         `json:"startedAt"` // ms
	Duration        time.Duration `json:"duration"`
	Error           string        `json:"error,omitempty"`
}

// cycle is the immutable input of one run.
type cycle struct {
	id         uint64
	assetID    string
	accounts   []string
	foreground bool
	full       bool // foreground or force-full requested
	percent    int
}

// errCycleCancelled ends a run at a batch boundary.
var errCycleCancelled = errors.New("cycle cancelled")

// Refresh runs one cycle and blocks until it reaches a terminal stage.
// Cancellation is not an error: the result's Stage is CANCELLED. Only a bad
// asset id, an empty watch list, a total remote failure or a storage failure
// return an error.
func (o *Orchestrator) Refresh(ctx context.Context, opts RefreshOptions) (*Result, error) {
	o.mu.Lock()
	if o.running && !opts.Force {
		o.mu.Unlock()
		return nil, domain.ErrRefreshInProgress
	}
	// An override inherits the full fetch of the cycle it replaces.
	inherit := false
	if o.running {
		o.logger.Warn("forced refresh overrides running cycle", zap.Uint64("cycle", o.cycle))
		o.cancel()
		inherit = o.cycleFull
	}
	cctx, cancel := context.WithCancel(ctx)
	o.cycle++
	c := &cycle{
		id:         o.cycle,
		assetID:    o.assetID,
		accounts:   o.watch.Addresses(),
		foreground: opts.Foreground,
		full:       opts.Foreground || o.forceFull || inherit,
	}
	o.forceFull = false
	o.running = true
	o.cycleFull = c.full
	o.cancel = cancel
	o.mu.Unlock()

	start := o.now()
	res, err := o.run(cctx, c)
	cancel()
	res.Duration = o.now().Sub(start)
	if err != nil {
		res.Error = err.Error()
	}

	// A superseded cycle leaves the orchestrator state to its successor.
	o.mu.Lock()
	if o.cycle == c.id {
		if c.full && res.Stage != domain.StageDone {
			o.forceFull = true
		}
		o.running = false
		o.cycleFull = false
		o.cancel = nil
		o.pending = make(map[string]struct{})
		o.last = res
	}
	o.mu.Unlock()

	observability.RecordSyncCycle(res.Mode, string(res.Stage), res.Duration.Seconds())
	o.logger.Info("cycle finished",
		zap.Uint64("cycle", c.id),
		zap.String("mode", res.Mode),
		zap.String("stage", string(res.Stage)),
		zap.Int("balances", res.BalancesFetched),
		zap.Int("balance_failures", res.BalanceFailures),
		zap.Int("transfers_added", res.TransfersAdded),
		zap.Int("detail_failures", res.DetailFailures),
		zap.Duration("duration", res.Duration))
	return res, err
}

// run executes the cycle.
// Phases:
//  1. Metadata and price
//  2. Balances
//  3. Transfer history (full or incremental)
//  4. Finalize: last-updated stamp and project snapshot
func (o *Orchestrator) run(ctx context.Context, c *cycle) (*Result, error) {
	res := &Result{
		Mode:      ModeIncremental,
		Stage:     domain.StageIdle,
		Accounts:  len(c.accounts),
		StartedAt: o.now().UnixMilli(),
	}
	if c.full {
		res.Mode = ModeFull
	}

	if err := solana.ValidateAddress(c.assetID); err != nil {
		return o.fail(c, res, err)
	}
	if len(c.accounts) == 0 {
		return o.fail(c, res, domain.ErrEmptyWatchList)
	}

	// Phase 1
	o.publish(c, res, domain.StageFetchMetadataPrice, pctMetadata, "Loading token info", "")
	if err := o.refreshAsset(ctx, c); err != nil {
		return o.fail(c, res, err)
	}
	if ctx.Err() != nil {
		return o.cancelled(c, res)
	}

	// Phase 2
	o.publish(c, res, domain.StageFetchBalances, pctBalances, "Fetching balances", "")
	if err := o.refreshBalances(ctx, c, res); err != nil {
		if errors.Is(err, errCycleCancelled) {
			return o.cancelled(c, res)
		}
		return o.fail(c, res, err)
	}

	// Phase 3
	o.publish(c, res, domain.StageFetchTransfers, pctTransfers, "Fetching transfers", "")
	if err := o.refreshTransfers(ctx, c, res); err != nil {
		if errors.Is(err, errCycleCancelled) {
			return o.cancelled(c, res)
		}
		return o.fail(c, res, err)
	}

	// Phase 4
	o.publish(c, res, domain.StageFetchTransfers, pctFinalize, "Saving", "")
	o.finalize(context.WithoutCancel(ctx), c)

	res.Stage = domain.StageDone
	o.publish(c, res, domain.StageDone, pctDone, "Up to date",
		fmt.Sprintf("%d balances, %d new transfers", res.BalancesFetched, res.TransfersAdded))
	observability.RecordSyncSuccess(o.now().Unix())
	return res, nil
}

// refreshAsset updates metadata (when stale or on a full cycle) and price.
// Remote failures are logged; only storage failures are returned.
func (o *Orchestrator) refreshAsset(ctx context.Context, c *cycle) error {
	mdView, err := o.cache.Metadata(ctx, c.assetID)
	if err != nil {
		return err
	}
	if c.full || mdView.Entry == nil || mdView.IsStale {
		md, err := o.ledger.FetchMetadata(ctx, c.assetID)
		switch {
		case err == nil:
			if _, err := o.cache.MergeMetadata(context.WithoutCancel(ctx), c.assetID, md); err != nil {
				return err
			}
		case ctx.Err() == nil:
			o.logger.Warn("metadata unavailable", zap.String("asset", c.assetID), zap.Error(err))
		}
	}

	price, err := o.ledger.FetchPrice(ctx, c.assetID)
	switch {
	case err == nil:
		if _, err := o.cache.MergePrice(context.WithoutCancel(ctx), c.assetID, price); err != nil {
			return err
		}
	case ctx.Err() == nil:
		o.logger.Warn("price unavailable", zap.String("asset", c.assetID), zap.Error(err))
	}
	return nil
}

// refreshBalances fetches balances and merges every completed result, even
// when the cycle is cancelled midway.
func (o *Orchestrator) refreshBalances(ctx context.Context, c *cycle, res *Result) error {
	accounts := c.accounts
	if !c.full && o.maxAge > 0 {
		stale, err := o.cache.GetStaleAccounts(ctx, c.assetID, accounts, o.maxAge)
		if err != nil {
			return err
		}
		if skipped := len(accounts) - len(stale); skipped > 0 {
			o.logger.Debug("reusing fresh balances", zap.Int("skipped", skipped))
		}
		accounts = stale
	}
	if len(accounts) == 0 {
		return nil
	}
	if c.foreground {
		o.setPending(accounts)
	}

	results, fetchErr := o.ledger.FetchBalances(ctx, accounts, c.assetID, func(p domain.BatchProgress) {
		o.publish(c, res, domain.StageFetchBalances, scale(pctBalances, pctTransfers, p.Percent),
			fmt.Sprintf("Fetched %d/%d balances", p.Completed, p.Total), "")
	})

	// Results cut short by this cycle's own cancellation are not failures.
	if ctx.Err() != nil {
		results = lo.Filter(results, func(r domain.BalanceResult, _ int) bool {
			return r.OK() || !(errors.Is(r.Err, domain.ErrCancelled) || errors.Is(r.Err, context.Canceled))
		})
	}
	for _, r := range results {
		if r.OK() {
			res.BalancesFetched++
		} else {
			res.BalanceFailures++
		}
	}
	if len(results) > 0 {
		if _, err := o.cache.MergeBalances(context.WithoutCancel(ctx), c.assetID, results); err != nil {
			return err
		}
	}
	o.clearPending(lo.Map(results, func(r domain.BalanceResult, _ int) string { return r.Address }))

	if fetchErr != nil {
		if errors.Is(fetchErr, domain.ErrCancelled) || ctx.Err() != nil {
			return errCycleCancelled
		}
		return fetchErr
	}
	if res.BalancesFetched == 0 && res.BalanceFailures > 0 {
		return fmt.Errorf("%w: all %d balance fetches failed", domain.ErrRemoteUnavailable, res.BalanceFailures)
	}
	return nil
}

// refreshTransfers chooses full or incremental mode, fetches and merges.
func (o *Orchestrator) refreshTransfers(ctx context.Context, c *cycle, res *Result) error {
	view, err := o.cache.Transfers(ctx, c.assetID)
	if err != nil {
		return err
	}
	full := c.full || len(view.Transfers) == 0
	if full {
		res.Mode = ModeFull
	}

	reqs := make([]gateway.HistoryRequest, len(c.accounts))
	for i, w := range c.accounts {
		opts := gateway.HistoryOptions{
			TargetCount: o.history.TargetCount,
			MaxPages:    o.history.MaxPages,
			PageSize:    o.history.PageSize,
		}
		if !full {
			opts.Since, opts.KnownIDs = view.Cursor(w)
		}
		reqs[i] = gateway.HistoryRequest{Wallet: w, Options: opts}
	}

	results, fetchErr := o.ledger.FetchTransferHistories(ctx, c.assetID, reqs, func(p domain.BatchProgress) {
		o.publish(c, res, domain.StageFetchTransfers, scale(pctTransfers, pctFinalize, p.Percent),
			fmt.Sprintf("Scanned %d/%d wallets", p.Completed, p.Total), "")
	})

	var (
		incoming  []domain.ClassifiedTransfer
		succeeded int
	)
	for _, r := range results {
		incoming = append(incoming, r.Transfers...)
		res.DetailFailures += r.DetailFailures
		switch {
		case r.Err == nil:
			succeeded++
		case !errors.Is(r.Err, domain.ErrCancelled):
			res.HistoryFailures++
			o.logger.Warn("transfer history failed", zap.String("wallet", r.Wallet), zap.Error(r.Err))
		}
	}

	// The transfers sync stamp advances only for a completed scan in which at
	// least one wallet's history was fetched.
	stamp := fetchErr == nil && ctx.Err() == nil && succeeded > 0
	merged, err := o.cache.MergeTransfers(context.WithoutCancel(ctx), c.assetID, incoming, stamp)
	if err != nil {
		return err
	}
	res.TransfersAdded = merged.Added
	res.TransfersTotal = merged.Total

	if fetchErr != nil {
		if errors.Is(fetchErr, domain.ErrCancelled) || ctx.Err() != nil {
			return errCycleCancelled
		}
		return fetchErr
	}
	if ctx.Err() != nil {
		return errCycleCancelled
	}
	if succeeded == 0 && res.HistoryFailures > 0 {
		return fmt.Errorf("%w: all %d transfer history fetches failed", domain.ErrRemoteUnavailable, res.HistoryFailures)
	}
	return nil
}

// DeepFetch scans one wallet's history exhaustively and merges the result.
// It may run alongside a refresh cycle.
func (o *Orchestrator) DeepFetch(ctx context.Context, wallet string) (*Result, error) {
	wallet = domain.NormalizeAddress(wallet)
	if err := solana.ValidateAddress(wallet); err != nil {
		return nil, err
	}
	assetID := o.AssetID()
	start := o.now()
	res := &Result{Mode: ModeDeep, Stage: domain.StageFetchTransfers, Accounts: 1, StartedAt: start.UnixMilli()}

	h := o.ledger.FetchTransferHistory(ctx, wallet, assetID, gateway.HistoryOptions{
		TargetCount: gateway.DeepMaxPages * gateway.DefaultPageSize,
		MaxPages:    gateway.DeepMaxPages,
	})
	res.DetailFailures = h.DetailFailures

	// One wallet's scan does not refresh the asset-wide transfers stamp.
	merged, err := o.cache.MergeTransfers(context.WithoutCancel(ctx), assetID, h.Transfers, false)
	if err != nil {
		res.Stage = domain.StageError
		return res, err
	}
	res.TransfersAdded = merged.Added
	res.TransfersTotal = merged.Total
	res.Duration = o.now().Sub(start)

	switch {
	case h.Err == nil:
		res.Stage = domain.StageDone
	case errors.Is(h.Err, domain.ErrCancelled):
		res.Stage = domain.StageCancelled
	default:
		res.Stage = domain.StageError
		res.Error = h.Err.Error()
	}
	observability.RecordSyncCycle(ModeDeep, string(res.Stage), res.Duration.Seconds())
	o.logger.Info("deep fetch finished",
		zap.String("wallet", wallet),
		zap.Int("pages", h.PagesScanned),
		zap.Int("added", merged.Added),
		zap.String("stage", string(res.Stage)))
	if res.Stage == domain.StageError {
		return res, h.Err
	}
	return res, nil
}

func (o *Orchestrator) fail(c *cycle, res *Result, err error) (*Result, error) {
	res.Stage = domain.StageError
	o.publish(c, res, domain.StageError, c.percent, "Refresh failed", err.Error())
	return res, err
}

func (o *Orchestrator) cancelled(c *cycle, res *Result) (*Result, error) {
	res.Stage = domain.StageCancelled
	o.publish(c, res, domain.StageCancelled, c.percent, "Cancelled", "")
	return res, nil
}

// publish emits progress of the current cycle; a superseded cycle is silent.
// Percent never decreases within a cycle.
func (o *Orchestrator) publish(c *cycle, res *Result, stage domain.Stage, pct int, msg, detail string) {
	o.mu.Lock()
	current := o.cycle == c.id
	o.mu.Unlock()
	if !current {
		return
	}
	if pct < c.percent {
		pct = c.percent
	}
	c.percent = pct
	if !stage.Terminal() {
		res.Stage = stage
	}
	o.progress.Publish(domain.Progress{
		Stage:   stage,
		Message: msg,
		Percent: pct,
		Detail:  detail,
		At:      o.now().UnixMilli(),
	})
}

// scale maps a 0-100 batch percent into [from, to].
func scale(from, to, pct int) int {
	return from + (to-from)*pct/100
}

func (o *Orchestrator) clearPending(addrs []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, a := range addrs {
		delete(o.pending, a)
	}
}
