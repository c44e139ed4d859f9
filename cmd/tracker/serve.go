package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-wallet-tracker/internal/api"
	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/scheduler"
	"solana-wallet-tracker/internal/solana"
	"solana-wallet-tracker/internal/watcher"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "poll, react to live wallet activity and serve the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "http-addr", Usage: "HTTP listen address (overrides config)"},
			&cli.DurationFlag{Name: "interval", Usage: "poll interval (overrides config)"},
			&cli.BoolFlag{Name: "watch", Usage: "subscribe to wallet activity over websocket"},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	if c.IsSet("http-addr") {
		cfg.HTTPAddr = c.String("http-addr")
	}
	if c.IsSet("interval") {
		cfg.PollInterval = c.Duration("interval")
	}
	if c.IsSet("watch") {
		cfg.Watch = c.Bool("watch")
	}
	logger := a.logger

	sched := scheduler.New(a.orch, scheduler.Options{
		Interval: cfg.PollInterval,
		Debounce: cfg.Debounce,
		Logger:   logger,
	})
	// The first cycle shows placeholders for accounts not yet fetched.
	sched.Enqueue(scheduler.Request{Foreground: true, Reason: "startup"})

	g, gctx := errgroup.WithContext(c.Context)
	g.Go(func() error { return sched.Run(gctx) })

	if cfg.Watch {
		startWatcher(gctx, g, a, sched)
	}

	srv := api.NewServer(cfg.HTTPAddr, api.NewHandler(a.orch, sched, a.stores.projects, logger))
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.orch.Progress().Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("shutdown complete", zap.Int("cycles", sched.Runs()), zap.Int("coalesced", sched.Coalesced()))
	return err
}

// startWatcher subscribes to activity on every watched wallet and turns each
// new transaction into a coalesced background refresh request. The
// subscriptions are rebuilt whenever the watch list changes.
func startWatcher(ctx context.Context, g *errgroup.Group, a *app, sched *scheduler.Scheduler) {
	g.Go(func() error {
		for {
			changed := a.orch.WatchListChanged()
			addrs := lo.Map(a.orch.Accounts(), func(acc domain.WatchedAccount, _ int) string { return acc.Address })

			wctx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				watchWallets(wctx, a, sched, addrs)
			}()

			select {
			case <-ctx.Done():
				cancel()
				<-done
				return nil
			case <-changed:
				a.logger.Info("watch list changed, resubscribing", zap.Int("wallets", len(a.orch.Accounts())))
				cancel()
				<-done
			}
		}
	})
}

// watchWallets runs one websocket connection until ctx is done. Failures only
// disable live triggers; polling keeps working.
func watchWallets(ctx context.Context, a *app, sched *scheduler.Scheduler, addrs []string) {
	ws, err := solana.NewWSClient(ctx, a.cfg.WebsocketEndpoint(), nil, a.logger)
	if err != nil {
		a.logger.Warn("live triggers disabled", zap.Error(err))
		return
	}
	defer ws.Close()

	w := watcher.New(ws, func(wallet, signature string) {
		sched.Enqueue(scheduler.Request{Reason: "activity"})
	}, a.logger)
	if err := w.Watch(ctx, addrs); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("watcher stopped", zap.Error(err))
	}
}
