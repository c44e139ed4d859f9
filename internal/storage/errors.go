package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedSchema is returned when a record was written by a newer schema version.
	ErrUnsupportedSchema = errors.New("unsupported schema version")
)

// ValidateRecord checks the key fields of a record.
func ValidateRecord(r *Record) error {
	if r == nil || r.AssetID == "" || r.Kind == "" {
		return ErrInvalidInput
	}
	return nil
}
