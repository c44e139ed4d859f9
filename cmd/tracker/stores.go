package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"solana-wallet-tracker/internal/config"
	"solana-wallet-tracker/internal/storage"
	"solana-wallet-tracker/internal/storage/bolt"
	chstore "solana-wallet-tracker/internal/storage/clickhouse"
	"solana-wallet-tracker/internal/storage/memory"
	"solana-wallet-tracker/internal/storage/migrations"
	pgstore "solana-wallet-tracker/internal/storage/postgres"
)

// allStores holds the selected storage implementations.
type allStores struct {
	records  storage.RecordStore
	projects storage.ProjectStore
	settings storage.SettingsStore
	history  storage.HistoryStore // nil unless configured
	closers  []func()
}

func (s *allStores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// createStores opens the configured backend and the optional ClickHouse history.
func createStores(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*allStores, error) {
	s := &allStores{}

	switch cfg.Backend {
	case config.BackendMemory, "":
		s.records = memory.NewRecordStore()
		s.projects = memory.NewProjectStore()
		s.settings = memory.NewSettingsStore()
		s.history = memory.NewHistoryStore()

	case config.BackendBolt:
		db, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt %s: %w", cfg.BoltPath, err)
		}
		s.closers = append(s.closers, func() { db.Close() })
		s.records = bolt.NewRecordStore(db)
		s.projects = bolt.NewProjectStore(db)
		s.settings = bolt.NewSettingsStore(db)

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.records = pgstore.NewRecordStore(pool)
		s.projects = pgstore.NewProjectStore(pool)
		s.settings = pgstore.NewSettingsStore(pool)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		s.closers = append(s.closers, func() { conn.Close() })
		s.history = chstore.NewHistoryStore(conn)
	}

	logger.Info("storage ready",
		zap.String("backend", cfg.Backend),
		zap.Bool("history", s.history != nil))
	return s, nil
}
