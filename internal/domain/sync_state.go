package domain

// DataKind names one of the per-asset cache stores.
type DataKind string

// Cache data kinds.
const (
	KindBalances  DataKind = "balances"
	KindTransfers DataKind = "transfers"
	KindMetadata  DataKind = "metadata"
	KindPrice     DataKind = "price"
	KindSyncState DataKind = "sync_state"
)

// CacheKinds lists the four data stores in refresh order.
var CacheKinds = []DataKind{KindMetadata, KindPrice, KindBalances, KindTransfers}

// SyncState records the last successful sync time per data kind for one asset.
type SyncState struct {
	AssetID  string             `json:"assetId"`
	LastSync map[DataKind]int64 `json:"lastSync"` // ms
}
