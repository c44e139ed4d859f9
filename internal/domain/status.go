package domain

// Status is the derived current activity label of a wallet.
type Status string

// Activity statuses.
const (
	StatusOut         Status = "OUT"
	StatusUnknown     Status = "UNKNOWN"
	StatusSelling     Status = "SELLING"
	StatusSold        Status = "SOLD"
	StatusTransferred Status = "TRANSFERRED"
	StatusReceived    Status = "RECEIVED"
	StatusBuy         Status = "BUY"
	StatusBoughtMore  Status = "BOUGHT_MORE"
	StatusHolding     Status = "HOLDING"
)
