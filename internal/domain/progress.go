package domain

// Stage is a refresh cycle state.
type Stage string

// Refresh cycle states.
const (
	StageIdle               Stage = "IDLE"
	StageFetchMetadataPrice Stage = "FETCH_METADATA_PRICE"
	StageFetchBalances      Stage = "FETCH_BALANCES"
	StageFetchTransfers     Stage = "FETCH_TRANSFERS"
	StageDone               Stage = "DONE"
	StageError              Stage = "ERROR"
	StageCancelled          Stage = "CANCELLED"
)

// Terminal reports whether the cycle has finished.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageError || s == StageCancelled
}

// Progress is a refresh status event.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Percent int    `json:"progressPercent"`
	Detail  string `json:"detail,omitempty"`
	At      int64  `json:"at"` // ms
}

// BatchProgress is reported after each account group completes.
type BatchProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}
