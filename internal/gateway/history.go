package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/observability"
	"solana-wallet-tracker/internal/solana"
)

// History fetch defaults.
const (
	DefaultTargetCount = 50
	DefaultMaxPages    = 5
	DefaultPageSize    = 100
	DeepMaxPages       = 50
)

// HistoryOptions bounds one wallet's history fetch.
type HistoryOptions struct {
	// TargetCount stops paging once this many matching transfers were found.
	TargetCount int `yaml:"target_count"`
	// MaxPages caps the signature pages examined.
	MaxPages int `yaml:"max_pages"`
	// PageSize is the signature page size.
	PageSize int `yaml:"page_size"`
	// Since (ms) stops paging at the first signature older than it.
	Since int64 `yaml:"-"`
	// KnownIDs stops paging at the first already-cached signature.
	KnownIDs map[string]struct{} `yaml:"-"`
}

func (o HistoryOptions) withDefaults() HistoryOptions {
	if o.TargetCount <= 0 {
		o.TargetCount = DefaultTargetCount
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	return o
}

// HistoryResult is one wallet's fetched history.
type HistoryResult struct {
	Wallet         string
	Transfers      []domain.ClassifiedTransfer // newest first
	PagesScanned   int
	DetailFailures int
	ReachedCached  bool // paging stopped at the since bound or a known id
	Err            error
}

// FetchTransferHistory pages the wallet's signatures newest first, fetches the
// transaction details in concurrent sub-batches and keeps the transfers that
// move the asset for the wallet.
//
// With incremental hints, paging stops at the first known signature, or at the
// first signature older than Since. That older signature is still examined
// when it is not known, so at most one transfer older than Since is returned.
//
// A failed detail fetch is logged and counted, never fatal. A failed first
// signature page is returned as an error; later page failures end paging.
func (g *Gateway) FetchTransferHistory(ctx context.Context, wallet, assetID string, opts HistoryOptions) HistoryResult {
	res := HistoryResult{Wallet: wallet}
	if err := solana.ValidateAddress(wallet); err != nil {
		res.Err = err
		return res
	}
	if err := solana.ValidateAddress(assetID); err != nil {
		res.Err = err
		return res
	}
	opts = opts.withDefaults()

	before := ""
	for page := 0; page < opts.MaxPages; page++ {
		if ctx.Err() != nil {
			res.Err = cancelled(ctx)
			return res
		}
		if err := g.wait(ctx); err != nil {
			res.Err = err
			return res
		}

		sigs, err := g.rpc.GetSignaturesForAddress(ctx, wallet, &solana.SignaturesOpts{Before: before, Limit: opts.PageSize})
		if err != nil {
			if ctx.Err() != nil {
				res.Err = cancelled(ctx)
				return res
			}
			g.warnRemote("signature page failed", err, zap.String("wallet", wallet), zap.Int("page", page))
			if page == 0 {
				res.Err = fmt.Errorf("signatures of %s: %w", wallet, err)
			}
			return res
		}
		res.PagesScanned++
		if len(sigs) == 0 {
			break
		}

		candidates, stop := cutoff(sigs, opts)
		transfers, failures, err := g.fetchDetails(ctx, candidates, wallet, assetID)
		res.DetailFailures += failures
		res.Transfers = append(res.Transfers, transfers...)
		if err != nil {
			res.Err = err
			return res
		}

		if stop {
			res.ReachedCached = true
			break
		}
		if len(res.Transfers) >= opts.TargetCount || len(sigs) < opts.PageSize {
			break
		}
		before = sigs[len(sigs)-1].Signature
	}
	return res
}

// cutoff selects the signatures of one page worth fetching and reports
// whether paging must stop at this page.
func cutoff(sigs []solana.SignatureInfo, opts HistoryOptions) ([]string, bool) {
	var out []string
	for _, s := range sigs {
		if _, ok := opts.KnownIDs[s.Signature]; ok {
			return out, true
		}
		if s.Err != nil {
			continue
		}
		if opts.Since > 0 && s.BlockTime != nil && *s.BlockTime*1000 < opts.Since {
			return append(out, s.Signature), true
		}
		out = append(out, s.Signature)
	}
	return out, false
}

// fetchDetails fetches and classifies signatures in sub-batches, preserving input order.
func (g *Gateway) fetchDetails(ctx context.Context, sigs []string, wallet, assetID string) ([]domain.ClassifiedTransfer, int, error) {
	slots := make([]*domain.ClassifiedTransfer, len(sigs))
	var (
		mu       sync.Mutex
		failures int
	)

	offset := 0
	for i, batch := range lo.Chunk(sigs, g.policy.DetailBatchSize) {
		if i > 0 {
			if err := g.sleep(ctx, g.policy.DetailDelay); err != nil {
				return collect(slots), failures, cancelled(ctx)
			}
		}
		if ctx.Err() != nil {
			return collect(slots), failures, cancelled(ctx)
		}

		var eg errgroup.Group
		for j, sig := range batch {
			idx := offset + j
			eg.Go(func() error {
				t, err := g.fetchTransfer(ctx, sig, wallet, assetID)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					observability.RecordDetailError()
					g.warnRemote("transaction detail skipped", err, zap.String("signature", sig))
					mu.Lock()
					failures++
					mu.Unlock()
					return nil
				}
				slots[idx] = t
				return nil
			})
		}
		_ = eg.Wait()
		offset += len(batch)
	}
	if ctx.Err() != nil {
		return collect(slots), failures, cancelled(ctx)
	}
	return collect(slots), failures, nil
}

func collect(slots []*domain.ClassifiedTransfer) []domain.ClassifiedTransfer {
	out := make([]domain.ClassifiedTransfer, 0, len(slots))
	for _, t := range slots {
		if t != nil {
			out = append(out, *t)
		}
	}
	return out
}

// fetchTransfer fetches one transaction, shared across concurrent callers, and
// classifies it for the wallet. A nil transfer means the asset did not move.
func (g *Gateway) fetchTransfer(ctx context.Context, sig, wallet, assetID string) (*domain.ClassifiedTransfer, error) {
	v, err := share(ctx, g, "transaction", "tx|"+sig, func(ctx context.Context) (any, error) {
		if err := g.wait(ctx); err != nil {
			return nil, err
		}
		return g.rpc.GetTransaction(ctx, sig)
	})
	if err != nil {
		return nil, err
	}
	tx, _ := v.(*solana.Transaction)
	if tx == nil {
		return nil, fmt.Errorf("%w: transaction %s not found", domain.ErrRemoteUnavailable, sig)
	}

	t, err := g.classifier.Classify(tx, wallet, assetID)
	if err != nil {
		if errors.Is(err, domain.ErrParseFailure) {
			return nil, fmt.Errorf("classify %s: %w", sig, err)
		}
		return nil, err
	}
	return t, nil
}

// HistoryRequest is one wallet of a batch history fetch.
type HistoryRequest struct {
	Wallet  string
	Options HistoryOptions
}

// FetchTransferHistories runs FetchTransferHistory for each request using the
// same group batching as FetchBalances. Results are in request order; on
// cancellation only completed groups are returned along with ErrCancelled.
func (g *Gateway) FetchTransferHistories(ctx context.Context, assetID string, reqs []HistoryRequest, onProgress ProgressFunc) ([]HistoryResult, error) {
	if err := solana.ValidateAddress(assetID); err != nil {
		return nil, err
	}

	total := len(reqs)
	out := make([]HistoryResult, 0, total)
	for i, group := range lo.Chunk(reqs, g.policy.GroupSize) {
		if i > 0 {
			if err := g.sleep(ctx, g.policy.GroupDelay); err != nil {
				return out, cancelled(ctx)
			}
		}
		if ctx.Err() != nil {
			return out, cancelled(ctx)
		}

		results := make([]HistoryResult, len(group))
		var eg errgroup.Group
		for j, req := range group {
			eg.Go(func() error {
				results[j] = g.FetchTransferHistory(ctx, req.Wallet, assetID, req.Options)
				return nil
			})
		}
		_ = eg.Wait()
		observability.RecordGroupDispatched()

		out = append(out, results...)
		if onProgress != nil {
			onProgress(domain.BatchProgress{Completed: len(out), Total: total, Percent: percent(len(out), total)})
		}
		if ctx.Err() != nil {
			return out, cancelled(ctx)
		}
	}
	return out, nil
}
