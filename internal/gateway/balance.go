package gateway

import (
	"context"
	"fmt"
	"math/big"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/observability"
	"solana-wallet-tracker/internal/solana"
)

// FetchBalance returns the account's balance of the asset, summed over all of
// its token accounts for the mint. Failures are reported in the result's Err;
// malformed addresses fail with ErrInvalidAddress before any network call.
func (g *Gateway) FetchBalance(ctx context.Context, account, assetID string) domain.BalanceResult {
	if err := solana.ValidateAddress(account); err != nil {
		return domain.BalanceResult{Address: account, Err: err}
	}
	if err := solana.ValidateAddress(assetID); err != nil {
		return domain.BalanceResult{Address: account, Err: err}
	}

	key := cacheKey("balance", assetID, account)
	res, err := cached(ctx, g, "balance", key, g.ttls.Balance, func(ctx context.Context) (domain.BalanceResult, error) {
		return g.fetchBalance(ctx, account, assetID)
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.BalanceResult{Address: account, Err: cancelled(ctx)}
		}
		observability.RecordBalanceError(errKind(err))
		g.warnRemote("balance fetch failed", err, zap.String("account", account))
		return domain.BalanceResult{Address: account, Err: err}
	}
	return res
}

func (g *Gateway) fetchBalance(ctx context.Context, account, assetID string) (domain.BalanceResult, error) {
	if err := g.wait(ctx); err != nil {
		return domain.BalanceResult{}, err
	}
	accounts, err := g.rpc.GetTokenAccountsByOwner(ctx, account, assetID)
	if err != nil {
		return domain.BalanceResult{}, fmt.Errorf("token accounts of %s: %w", account, err)
	}

	total := new(big.Int)
	decimals, known := g.knownDecimals(assetID)
	for _, ta := range accounts {
		amt, ok := new(big.Int).SetString(ta.Amount, 10)
		if !ok {
			return domain.BalanceResult{}, fmt.Errorf("%w: token amount %q", domain.ErrParseFailure, ta.Amount)
		}
		total.Add(total, amt)
		if !known {
			decimals, known = ta.Decimals, true
		}
	}

	return domain.BalanceResult{
		Address:   account,
		RawAmount: total.String(),
		Decimals:  decimals,
		UIAmount:  decimal.NewFromBigInt(total, -int32(decimals)),
		FetchedAt: g.now().UnixMilli(),
	}, nil
}

// knownDecimals returns the mint decimals from a cached metadata response.
func (g *Gateway) knownDecimals(assetID string) (int, bool) {
	v, ok := g.cache.get(cacheKey("metadata", assetID, ""))
	if !ok {
		return 0, false
	}
	return v.(domain.AssetMetadata).Decimals, true
}

// FetchBalances fetches every account in fixed-size groups. Accounts in a group
// run concurrently; groups run one after another separated by the policy delay.
// onProgress (may be nil) fires after each group. The result has one entry per
// input account in input order.
//
// On cancellation the results of completed groups are returned together with
// an ErrCancelled error; accounts of undispatched groups are absent.
func (g *Gateway) FetchBalances(ctx context.Context, accounts []string, assetID string, onProgress ProgressFunc) ([]domain.BalanceResult, error) {
	if err := solana.ValidateAddress(assetID); err != nil {
		return nil, err
	}

	total := len(accounts)
	out := make([]domain.BalanceResult, 0, total)
	for i, group := range lo.Chunk(accounts, g.policy.GroupSize) {
		if i > 0 {
			if err := g.sleep(ctx, g.policy.GroupDelay); err != nil {
				return out, cancelled(ctx)
			}
		}
		if ctx.Err() != nil {
			return out, cancelled(ctx)
		}

		results := make([]domain.BalanceResult, len(group))
		var eg errgroup.Group
		for j, account := range group {
			eg.Go(func() error {
				results[j] = g.FetchBalance(ctx, account, assetID)
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
