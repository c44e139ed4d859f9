package domain

import "github.com/shopspring/decimal"

// BalanceHistoryCap bounds the per-account balance history ring.
const BalanceHistoryCap = 10

// BalancePoint is one observed balance.
type BalancePoint struct {
	Amount    decimal.Decimal `json:"amount"`
	Timestamp int64           `json:"timestamp"` // ms
}

// BalanceSnapshot is the last known asset balance of one watched account.
// It is merged on every fetch, never replaced wholesale.
type BalanceSnapshot struct {
	Address          string           `json:"address"`
	RawAmount        string           `json:"rawAmount"` // base units as reported by the ledger
	Decimals         int              `json:"decimals"`
	UIAmount         decimal.Decimal  `json:"uiAmount"`
	PreviousUIAmount *decimal.Decimal `json:"previousUiAmount,omitempty"`
	History          []BalancePoint   `json:"history"`
	FirstSeenAt      int64            `json:"firstSeenAt"`   // ms
	LastUpdatedAt    int64            `json:"lastUpdatedAt"` // ms
	Error            string           `json:"error,omitempty"`
}

// Change reports the direction of the last balance move.
func (b *BalanceSnapshot) Change() int {
	if b.PreviousUIAmount == nil {
		return 0
	}
	return b.UIAmount.Cmp(*b.PreviousUIAmount)
}

// BalanceResult is one gateway balance answer. Err is set instead of the
// amounts when the fetch for this account failed.
type BalanceResult struct {
	Address   string
	RawAmount string
	Decimals  int
	UIAmount  decimal.Decimal
	FetchedAt int64 // ms
	Err       error
}

// OK reports whether the fetch succeeded.
func (r BalanceResult) OK() bool {
	return r.Err == nil
}
