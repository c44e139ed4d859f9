package orchestrator

import (
	"context"

	"github.com/shopspring/decimal"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/synccache"
)

// Row is one watched account on the dashboard.
type Row struct {
	Account       domain.WatchedAccount       `json:"account"`
	Balance       *domain.BalanceSnapshot     `json:"balance,omitempty"`
	Pending       bool                        `json:"pending"` // foreground cycle has not fetched it yet
	Change        int                         `json:"change"`  // -1, 0, 1 versus previous balance
	Status        domain.Status               `json:"status"`
	StatusReason  string                      `json:"statusReason,omitempty"`
	Transfers     int                         `json:"transfers"`
	LastActivity  int64                       `json:"lastActivity,omitempty"` // ms
	LastTransfers []domain.ClassifiedTransfer `json:"lastTransfers,omitempty"`
}

// Dashboard is the joined presentation view of the tracked asset.
type Dashboard struct {
	AssetID   string                    `json:"assetId"`
	AssetInfo domain.AssetInfo          `json:"assetInfo"`
	Rows      []Row                     `json:"rows"`
	Staleness map[domain.DataKind]bool  `json:"staleness"`
	LastSync  map[domain.DataKind]int64 `json:"lastSync"`
	Progress  domain.Progress           `json:"progress"`
	Running   bool                      `json:"running"`
}

// Instant returns the cached state of the tracked asset without any network call.
func (o *Orchestrator) Instant(ctx context.Context) (*synccache.InstantLoad, error) {
	return o.cache.InstantLoad(ctx, o.AssetID())
}

// recentTransfersPerRow bounds Row.LastTransfers.
const recentTransfersPerRow = 5

// View joins cached balances and transfers with the watch list and derives
// each account's status. Cached data is always shown; a foreground cycle
// additionally marks accounts it has not fetched yet as pending.
func (o *Orchestrator) View(ctx context.Context) (*Dashboard, error) {
	assetID := o.AssetID()
	load, err := o.cache.InstantLoad(ctx, assetID)
	if err != nil {
		return nil, err
	}
	transfers := synccache.TransfersView{Transfers: load.Transfers}
	byAddr := synccache.BalancesView{Balances: load.Balances}.ByAddress()
	pending := o.pendingSet()
	now := o.now()

	d := &Dashboard{
		AssetID:   assetID,
		AssetInfo: load.AssetInfo,
		Staleness: load.Staleness,
		LastSync:  load.LastSync,
		Progress:  o.progress.Last(),
		Running:   o.Running(),
	}
	for _, acc := range o.watch.Accounts() {
		own := transfers.ForWallet(acc.Address)
		row := Row{Account: acc, Transfers: len(own)}
		if _, ok := pending[acc.Address]; ok {
			row.Pending = true
		}

		balance := decimal.Zero
		if b, ok := byAddr[acc.Address]; ok {
			row.Balance = &b
			row.Change = b.Change()
			balance = b.UIAmount
		}
		if len(own) > 0 {
			row.LastActivity = own[0].Timestamp
			row.LastTransfers = own[:min(len(own), recentTransfersPerRow)]
		}

		if row.Balance == nil {
			// Nothing fetched yet: no basis for a status.
			row.Status = domain.StatusUnknown
		} else {
			r := o.deriver.Evaluate(acc.Address, balance, own, now)
			row.Status, row.StatusReason = r.Status, r.Reason
		}
		d.Rows = append(d.Rows, row)
	}
	return d, nil
}
