package domain

// WatchedAccount is a wallet chosen for monitoring.
type WatchedAccount struct {
	ID          string `json:"id"`              // uuid
	Address     string `json:"address"`         // base58 wallet address
	DisplayName string `json:"displayName"`     // label shown to the user
	Group       string `json:"group,omitempty"` // optional grouping label
}
