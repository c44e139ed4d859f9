// Package bolt implements the record, project and settings stores in a single bbolt file.
package bolt

import (
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
)

var (
	bucketRecords  = []byte("records")
	bucketProjects = []byte("projects")
	bucketSettings = []byte("settings")

	settingsKey = []byte("settings")
)

// DB wraps a bbolt database with the tracker buckets created.
type DB struct {
	db *bbolt.DB
}

// Open opens (or creates) the database file and ensures all buckets exist.
func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketRecords, bucketProjects, bucketSettings} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// Close closes the database file.
func (d *DB) Close() error {
	return d.db.Close()
}
