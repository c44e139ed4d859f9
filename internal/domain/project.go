package domain

// ProjectSnapshot is a cached copy of one asset's state for cold-start reload.
type ProjectSnapshot struct {
	Balances  []BalanceSnapshot    `json:"balances"`
	Transfers []ClassifiedTransfer `json:"transfers"`
	AssetInfo AssetInfo            `json:"assetInfo"`
	SavedAt   int64                `json:"savedAt"` // ms
}

// SavedProject is a named asset + wallet set with an optional snapshot.
type SavedProject struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	AssetID   string           `json:"assetId"`
	Wallets   []WatchedAccount `json:"wallets"`
	Snapshot  *ProjectSnapshot `json:"snapshot,omitempty"`
	CreatedAt int64            `json:"createdAt"` // ms
	UpdatedAt int64            `json:"updatedAt"` // ms
}

// Settings is the flat user settings record.
type Settings struct {
	PollIntervalMs  int64  `json:"pollIntervalMs"`
	APIKey          string `json:"apiKey,omitempty"`
	ActiveProjectID string `json:"activeProjectId,omitempty"`
	LastUpdatedAt   int64  `json:"lastUpdatedAt,omitempty"` // ms, stamped on refresh completion
}
