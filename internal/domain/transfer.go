package domain

import "github.com/shopspring/decimal"

// TransferCategory is the semantic class of a wallet's asset movement.
type TransferCategory string

// Transfer categories.
const (
	CategoryAcquire     TransferCategory = "ACQUIRE"
	CategoryDispose     TransferCategory = "DISPOSE"
	CategoryTransferIn  TransferCategory = "TRANSFER_IN"
	CategoryTransferOut TransferCategory = "TRANSFER_OUT"
)

// Inbound reports whether the category adds to the wallet's balance.
func (c TransferCategory) Inbound() bool {
	return c == CategoryAcquire || c == CategoryTransferIn
}

// ClassifiedTransfer is a raw transaction reduced to its effect on one
// watched wallet's asset balance. Immutable once created; identity is SignatureID.
type ClassifiedTransfer struct {
	SignatureID     string           `json:"signatureId"`
	Timestamp       int64            `json:"timestamp"` // ms
	WalletAddress   string           `json:"walletAddress"`
	Category        TransferCategory `json:"category"`
	Amount          decimal.Decimal  `json:"amount"`
	RawAmount       string           `json:"rawAmount"`
	Decimals        int              `json:"decimals"`
	CounterpartyIn  string           `json:"counterpartyIn,omitempty"`  // source of an inbound move
	CounterpartyOut string           `json:"counterpartyOut,omitempty"` // destination of an outbound move
	SolDelta        decimal.Decimal  `json:"solDelta"`
}

// TransferKey identifies a transfer within a per-asset transfer set.
// One signature can move the asset for several watched wallets.
func (t ClassifiedTransfer) TransferKey() string {
	return t.SignatureID + ":" + t.WalletAddress
}
