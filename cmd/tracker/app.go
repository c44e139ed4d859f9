package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"solana-wallet-tracker/internal/classifier"
	"solana-wallet-tracker/internal/config"
	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/gateway"
	"solana-wallet-tracker/internal/market"
	"solana-wallet-tracker/internal/observability"
	"solana-wallet-tracker/internal/orchestrator"
	"solana-wallet-tracker/internal/solana"
	"solana-wallet-tracker/internal/storage"
	"solana-wallet-tracker/internal/synccache"
)

// app is the wired object graph shared by the commands.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	stores *allStores
	orch   *orchestrator.Orchestrator
}

// openBase loads configuration and opens storage without wiring the
// orchestrator. The returned app must be closed.
func openBase(c *cli.Context) (*app, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStorage(); err != nil {
		return nil, err
	}
	logger, err := newLogger(c.Bool("debug"), cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	stores, err := createStores(c.Context, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, stores: stores}, nil
}

// newApp opens storage, merges persisted settings and wires the orchestrator.
// The returned app must be closed.
func newApp(c *cli.Context) (*app, error) {
	a, err := openBase(c)
	if err != nil {
		return nil, err
	}
	ctx := c.Context

	settings, err := a.stores.settings.LoadSettings(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		a.Close()
		return nil, fmt.Errorf("load settings: %w", err)
	default:
		a.cfg.MergeSettings(settings)
	}
	if a.cfg.ProjectID == "" {
		if err := a.cfg.Validate(); err != nil {
			a.Close()
			return nil, err
		}
	}

	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	if !cfg.HasCredential() {
		a.logger.Warn("no provider credential configured, using the public endpoint with slow batch pacing")
	}

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint(),
		solana.WithTimeout(cfg.RPC.Timeout),
		solana.WithMaxRetries(cfg.RPC.MaxRetries),
		solana.WithLatencyObserver(func(method string, d time.Duration, err error) {
			observability.RecordRPCCall(method, d.Seconds(), err)
		}),
	)
	quotes := market.NewClient(cfg.AggregatorURL)
	gw := gateway.New(rpc, quotes, classifier.New(cfg.Classifier),
		gateway.WithPolicy(cfg.BatchPolicy()),
		gateway.WithCacheTTLs(cfg.GatewayTTL),
		gateway.WithLogger(a.logger),
	)

	cacheOpts := []synccache.Option{
		synccache.WithTTLs(cfg.CacheTTL),
		synccache.WithLogger(a.logger),
		synccache.WithProjectStore(a.stores.projects),
	}
	if a.stores.history != nil {
		cacheOpts = append(cacheOpts, synccache.WithHistoryStore(a.stores.history))
	}
	cache := synccache.New(a.stores.records, cacheOpts...)

	accounts, err := cfg.Accounts()
	if err != nil {
		return err
	}
	orch, err := orchestrator.New(orchestrator.Options{
		Ledger:        gw,
		Cache:         cache,
		Settings:      a.stores.settings,
		Projects:      a.stores.projects,
		AssetID:       cfg.AssetID,
		Accounts:      accounts,
		StatusPolicy:  cfg.Status,
		History:       cfg.History,
		BalanceMaxAge: cfg.BalanceMaxAge,
		Logger:        a.logger,
	})
	if err != nil {
		return err
	}
	a.orch = orch

	if cfg.ProjectID != "" {
		p, err := orch.LoadProject(ctx, cfg.ProjectID)
		switch {
		case errors.Is(err, storage.ErrNotFound) && cfg.AssetID != "":
			// First run: the project is created on the first completed cycle.
			orch.SetProject(cfg.ProjectID)
		case err != nil:
			return err
		default:
			a.logger.Info("project loaded", zap.String("project", p.ID), zap.String("name", p.Name))
		}
	}
	return a.requireTarget()
}

// requireTarget rejects an invalid asset or an empty watch list.
func (a *app) requireTarget() error {
	if err := solana.ValidateAddress(a.orch.AssetID()); err != nil {
		return fmt.Errorf("asset: %w", err)
	}
	if len(a.orch.Accounts()) == 0 {
		return domain.ErrEmptyWatchList
	}
	return nil
}

func (a *app) Close() {
	if a.stores != nil {
		a.stores.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
