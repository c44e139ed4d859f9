package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
)

// HistoryStore implements storage.HistoryStore using ClickHouse MergeTree tables.
type HistoryStore struct {
	conn *Conn
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(conn *Conn) *HistoryStore {
	return &HistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// AppendPrices appends price points in one batch.
func (s *HistoryStore) AppendPrices(ctx context.Context, assetID string, points []domain.PricePoint) error {
	if assetID == "" {
		return storage.ErrInvalidInput
	}
	if len(points) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO price_history (asset_id, timestamp_ms, price)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, p := range points {
		if err := batch.Append(assetID, p.Timestamp, p.Price); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// AppendBalances appends balance samples in one batch.
func (s *HistoryStore) AppendBalances(ctx context.Context, assetID string, samples []storage.BalanceSample) error {
	if assetID == "" {
		return storage.ErrInvalidInput
	}
	if len(samples) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO balance_history (asset_id, address, timestamp_ms, amount)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, b := range samples {
		if err := batch.Append(assetID, b.Address, b.Timestamp, b.Amount); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// PriceRange returns price points within [from, to], ordered by timestamp ASC.
func (s *HistoryStore) PriceRange(ctx context.Context, assetID string, from, to int64) ([]domain.PricePoint, error) {
	query := `
		SELECT timestamp_ms, price
		FROM price_history
		WHERE asset_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, assetID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query price range: %w", err)
	}
	defer rows.Close()

	var out []domain.PricePoint
	for rows.Next() {
		var (
			ts    int64
			price decimal.Decimal
		)
		if err := rows.Scan(&ts, &price); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		out = append(out, domain.PricePoint{Price: price, Timestamp: ts})
	}
	return out, rows.Err()
}

// BalanceRange returns one account's samples within [from, to], ordered by timestamp ASC.
func (s *HistoryStore) BalanceRange(ctx context.Context, assetID, address string, from, to int64) ([]storage.BalanceSample, error) {
	query := `
		SELECT address, timestamp_ms, amount
		FROM balance_history
		WHERE asset_id = ? AND address = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, assetID, address, from, to)
	if err != nil {
		return nil, fmt.Errorf("query balance range: %w", err)
	}
	defer rows.Close()

	var out []storage.BalanceSample
	for rows.Next() {
		var b storage.BalanceSample
		if err := rows.Scan(&b.Address, &b.Timestamp, &b.Amount); err != nil {
			return nil, fmt.Errorf("scan balance sample: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
