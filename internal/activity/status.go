// Package activity derives a wallet's current activity label from its
// classified transfer history.
package activity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-wallet-tracker/internal/domain"
)

// Policy holds the status windows and the significant-sell threshold.
type Policy struct {
	// SellingWindow: a disposal this recent means SELLING.
	SellingWindow time.Duration `yaml:"selling_window"`
	// RecentWindow bounds every other rule.
	RecentWindow time.Duration `yaml:"recent_window"`
	// SignificantSellRatio: recent disposals above this share of total acquisitions mean SOLD.
	SignificantSellRatio decimal.Decimal `yaml:"significant_sell_ratio"`
}

// DefaultPolicy returns 15 minutes / 24 hours / 5%.
func DefaultPolicy() Policy {
	return Policy{
		SellingWindow:        15 * time.Minute,
		RecentWindow:         24 * time.Hour,
		SignificantSellRatio: decimal.RequireFromString("0.05"),
	}
}

// Result is a derived status with the rule that produced it.
type Result struct {
	Status domain.Status
	Rule   int
	Reason string
}

// Deriver applies a Policy. It holds no state.
type Deriver struct {
	policy Policy
}

// NewDeriver creates a Deriver. Zero policy fields take the defaults.
func NewDeriver(p Policy) *Deriver {
	def := DefaultPolicy()
	if p.SellingWindow <= 0 {
		p.SellingWindow = def.SellingWindow
	}
	if p.RecentWindow <= 0 {
		p.RecentWindow = def.RecentWindow
	}
	if p.SignificantSellRatio.IsZero() {
		p.SignificantSellRatio = def.SignificantSellRatio
	}
	return &Deriver{policy: p}
}

var defaultDeriver = NewDeriver(DefaultPolicy())

// DeriveStatus labels wallet with the default policy. transfers may hold
// other wallets' transfers; only the wallet's own are considered.
func DeriveStatus(wallet string, balance decimal.Decimal, transfers []domain.ClassifiedTransfer, now time.Time) domain.Status {
	return defaultDeriver.Derive(wallet, balance, transfers, now)
}

// Derive returns the wallet's status.
func (d *Deriver) Derive(wallet string, balance decimal.Decimal, transfers []domain.ClassifiedTransfer, now time.Time) domain.Status {
	return d.Evaluate(wallet, balance, transfers, now).Status
}

// Evaluate walks the rules in priority order; the first match wins.
//  1. balance <= 0: OUT
//  2. no transfers: UNKNOWN
//  3. DISPOSE within the selling window: SELLING
//  4. DISPOSE within the recent window above the significant share of acquisitions: SOLD
//  5. TRANSFER_OUT within the recent window: TRANSFERRED
//  6. TRANSFER_IN within the recent window: RECEIVED
//  7. ACQUIRE within the recent window: BUY for a first purchase, else BOUGHT_MORE
//  8. HOLDING
func (d *Deriver) Evaluate(wallet string, balance decimal.Decimal, transfers []domain.ClassifiedTransfer, now time.Time) Result {
	if !balance.IsPositive() {
		return Result{Status: domain.StatusOut, Rule: 1, Reason: "no balance"}
	}

	nowMs := now.UnixMilli()
	within := func(ts int64, w time.Duration) bool {
		return nowMs-ts <= w.Milliseconds()
	}

	var (
		own            int
		acquired       decimal.Decimal
		acquireCount   int
		hadTransferIn  bool
		lastDispose    int64 = -1
		recentDisposed decimal.Decimal
		recentDispose  bool
		recentOut      bool
		recentIn       bool
		recentAcquire  bool
	)
	for _, t := range transfers {
		if t.WalletAddress != wallet {
			continue
		}
		own++
		recent := within(t.Timestamp, d.policy.RecentWindow)
		switch t.Category {
		case domain.CategoryAcquire:
			acquired = acquired.Add(t.Amount)
			acquireCount++
			recentAcquire = recentAcquire || recent
		case domain.CategoryDispose:
			if t.Timestamp > lastDispose {
				lastDispose = t.Timestamp
			}
			if recent {
				recentDispose = true
				recentDisposed = recentDisposed.Add(t.Amount)
			}
		case domain.CategoryTransferOut:
			recentOut = recentOut || recent
		case domain.CategoryTransferIn:
			hadTransferIn = true
			recentIn = recentIn || recent
		}
	}

	switch {
	case own == 0:
		return Result{Status: domain.StatusUnknown, Rule: 2, Reason: "no transfers"}
	case lastDispose >= 0 && within(lastDispose, d.policy.SellingWindow):
		return Result{Status: domain.StatusSelling, Rule: 3, Reason: fmt.Sprintf("disposed within %s", d.policy.SellingWindow)}
	case recentDispose && d.significant(recentDisposed, acquired):
		return Result{Status: domain.StatusSold, Rule: 4, Reason: fmt.Sprintf("disposed %s of %s acquired", recentDisposed, acquired)}
	case recentOut:
		return Result{Status: domain.StatusTransferred, Rule: 5, Reason: "sent within recent window"}
	case recentIn:
		return Result{Status: domain.StatusReceived, Rule: 6, Reason: "received within recent window"}
	case recentAcquire:
		if acquireCount == 1 && !hadTransferIn {
			return Result{Status: domain.StatusBuy, Rule: 7, Reason: "first purchase"}
		}
		return Result{Status: domain.StatusBoughtMore, Rule: 7, Reason: "repeat purchase"}
	default:
		return Result{Status: domain.StatusHolding, Rule: 8, Reason: "no recent activity"}
	}
}

// significant reports whether disposed exceeds the policy share of acquired.
// Without a known acquisition total any positive disposal counts.
func (d *Deriver) significant(disposed, acquired decimal.Decimal) bool {
	if !acquired.IsPositive() {
		return disposed.IsPositive()
	}
	return disposed.GreaterThan(acquired.Mul(d.policy.SignificantSellRatio))
}
