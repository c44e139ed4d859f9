// Package classifier reduces a parsed ledger transaction to its effect on one
// watched wallet's balance of the tracked asset.
package classifier

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/solana"
)

// Policy holds the native-currency thresholds separating trades from plain transfers.
// Both bounds are exclusive.
type Policy struct {
	// DisposeMinProceeds: an outbound move is DISPOSE when solDelta > DisposeMinProceeds.
	DisposeMinProceeds decimal.Decimal `yaml:"dispose_min_proceeds"`
	// AcquireMinCost: an inbound move is ACQUIRE when solDelta < -AcquireMinCost.
	AcquireMinCost decimal.Decimal `yaml:"acquire_min_cost"`
}

// DefaultPolicy returns the empirically chosen thresholds (0.001 / 0.01 SOL).
func DefaultPolicy() Policy {
	return Policy{
		DisposeMinProceeds: decimal.RequireFromString("0.001"),
		AcquireMinCost:     decimal.RequireFromString("0.01"),
	}
}

// Classifier applies a Policy to raw transactions. It is stateless and safe for concurrent use.
type Classifier struct {
	policy Policy
}

// New creates a Classifier.
func New(policy Policy) *Classifier {
	return &Classifier{policy: policy}
}

var lamportsPerSOL = decimal.NewFromInt(solana.LamportsPerSOL)

// ownerDelta is one party's asset balance change.
type ownerDelta struct {
	owner string
	delta decimal.Decimal // base units
}

// Classify returns the wallet's classified transfer, nil if the transaction
// does not move the asset for the wallet, or ErrParseFailure if it is malformed.
func (c *Classifier) Classify(tx *solana.Transaction, wallet, assetID string) (*domain.ClassifiedTransfer, error) {
	if tx == nil || tx.Meta == nil {
		return nil, fmt.Errorf("%w: missing transaction meta", domain.ErrParseFailure)
	}
	if tx.Signature == "" {
		return nil, fmt.Errorf("%w: missing signature", domain.ErrParseFailure)
	}

	var keys []string
	if tx.Message != nil {
		keys = tx.Message.AccountKeys
	}

	deltas, decimals, found, err := tokenDeltas(tx.Meta, keys, assetID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	tokenDelta := deltas[wallet]
	if tokenDelta.IsZero() {
		return nil, nil
	}

	solDelta, err := nativeDelta(tx.Meta, keys, wallet)
	if err != nil {
		return nil, err
	}

	raw := tokenDelta.Abs()
	t := &domain.ClassifiedTransfer{
		SignatureID:   tx.Signature,
		Timestamp:     tx.BlockTime * 1000,
		WalletAddress: wallet,
		Amount:        raw.Shift(int32(-decimals)),
		RawAmount:     raw.String(),
		Decimals:      decimals,
		SolDelta:      solDelta,
	}

	parties := others(deltas, wallet)
	if tokenDelta.IsNegative() {
		if solDelta.GreaterThan(c.policy.DisposeMinProceeds) {
			t.Category = domain.CategoryDispose
		} else {
			t.Category = domain.CategoryTransferOut
		}
		t.CounterpartyOut = largest(parties, func(d decimal.Decimal) bool { return d.IsPositive() })
	} else {
		if solDelta.LessThan(c.policy.AcquireMinCost.Neg()) {
			t.Category = domain.CategoryAcquire
		} else {
			t.Category = domain.CategoryTransferIn
		}
		t.CounterpartyIn = largest(parties, func(d decimal.Decimal) bool { return d.IsNegative() })
	}

	return t, nil
}

// tokenDeltas sums post-pre balances of assetID per owner.
func tokenDeltas(meta *solana.TransactionMeta, keys []string, assetID string) (map[string]decimal.Decimal, int, bool, error) {
	deltas := make(map[string]decimal.Decimal)
	decimals := 0
	found := false

	apply := func(balances []solana.TokenBalance, sign int64) error {
		for _, tb := range balances {
			if tb.Mint != assetID {
				continue
			}
			found = true
			decimals = tb.UITokenAmount.Decimals

			amount, err := decimal.NewFromString(tb.UITokenAmount.Amount)
			if err != nil {
				return fmt.Errorf("%w: token amount %q: %v", domain.ErrParseFailure, tb.UITokenAmount.Amount, err)
			}

			owner := tb.Owner
			if owner == "" {
				if tb.AccountIndex < 0 || tb.AccountIndex >= len(keys) {
					return fmt.Errorf("%w: token balance without owner at index %d", domain.ErrParseFailure, tb.AccountIndex)
				}
				owner = keys[tb.AccountIndex]
			}
			deltas[owner] = deltas[owner].Add(amount.Mul(decimal.NewFromInt(sign)))
		}
		return nil
	}

	if err := apply(meta.PreTokenBalances, -1); err != nil {
		return nil, 0, false, err
	}
	if err := apply(meta.PostTokenBalances, 1); err != nil {
		return nil, 0, false, err
	}
	return deltas, decimals, found, nil
}

// nativeDelta is the wallet's SOL balance change. Zero if the wallet is not an account key.
func nativeDelta(meta *solana.TransactionMeta, keys []string, wallet string) (decimal.Decimal, error) {
	for i, k := range keys {
		if k != wallet {
			continue
		}
		if i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			return decimal.Zero, fmt.Errorf("%w: native balance table shorter than account keys", domain.ErrParseFailure)
		}
		pre := decimal.NewFromBigInt(new(big.Int).SetUint64(meta.PreBalances[i]), 0)
		post := decimal.NewFromBigInt(new(big.Int).SetUint64(meta.PostBalances[i]), 0)
		return post.Sub(pre).Div(lamportsPerSOL), nil
	}
	return decimal.Zero, nil
}

func others(deltas map[string]decimal.Decimal, wallet string) []ownerDelta {
	out := make([]ownerDelta, 0, len(deltas))
	for owner, d := range deltas {
		if owner == wallet || d.IsZero() {
			continue
		}
		out = append(out, ownerDelta{owner: owner, delta: d})
	}
	// Stable order so ties resolve the same way on every run.
	sort.Slice(out, func(i, j int) bool { return out[i].owner < out[j].owner })
	return out
}

// largest returns the owner with the biggest absolute delta among those matching keep.
func largest(parties []ownerDelta, keep func(decimal.Decimal) bool) string {
	best := ""
	var bestAbs decimal.Decimal
	for _, p := range parties {
		if !keep(p.delta) {
			continue
		}
		if abs := p.delta.Abs(); best == "" || abs.GreaterThan(bestAbs) {
			best, bestAbs = p.owner, abs
		}
	}
	return best
}
