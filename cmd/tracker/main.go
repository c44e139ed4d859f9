// Package main is the tracker command line.
//
//	tracker serve      polling + live triggers + HTTP API
//	tracker sync       run one refresh cycle and print the result
//	tracker status     print the cached dashboard
//	tracker clear      delete cached data of the tracked asset
//	tracker projects   list, save, load and delete saved projects
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"solana-wallet-tracker/internal/config"
)

func main() {
	_ = config.LoadEnvFile(".env")

	app := &cli.App{
		Name:  "tracker",
		Usage: "track one token across a watch list of wallets",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to yaml config", EnvVars: []string{"TRACKER_CONFIG"}},
			&cli.BoolFlag{Name: "debug", Usage: "development logging"},
			&cli.StringFlag{Name: "asset", Usage: "tracked token mint (overrides config)"},
			&cli.StringSliceFlag{Name: "wallet", Aliases: []string{"w"}, Usage: "watched wallet, repeatable (overrides config)"},
			&cli.StringFlag{Name: "api-key", Usage: "privileged RPC provider credential"},
			&cli.StringFlag{Name: "storage", Usage: "memory | bolt | postgres"},
			&cli.StringFlag{Name: "project", Usage: "saved project id to load and snapshot into"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			syncCommand(),
			statusCommand(),
			clearCommand(),
			projectsCommand(),
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		fmt.Fprintln(os.Stderr, "shutting down...")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			fmt.Fprintln(os.Stderr, "graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err := app.RunContext(ctx, os.Args)
	close(done)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newLogger builds a production logger, a development one with debug, or a
// JSON logger writing to a size-rotated file.
func newLogger(debug bool, lc config.LogConfig) (*zap.Logger, error) {
	if lc.File == "" {
		if debug {
			return zap.NewDevelopment()
		}
		return zap.NewProduction()
	}
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename: lc.File,
		MaxSize:  lc.MaxSizeMB, // megabytes
		MaxAge:   lc.MaxAgeDays,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), w, level)
	return zap.New(core, zap.AddCaller()), nil
}

// loadConfig reads the config file and applies global flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("asset") {
		cfg.AssetID = c.String("asset")
	}
	if c.IsSet("wallet") {
		cfg.Wallets = nil
		for _, w := range c.StringSlice("wallet") {
			cfg.Wallets = append(cfg.Wallets, config.ParseWallets(w)...)
		}
	}
	if c.IsSet("api-key") {
		cfg.RPC.APIKey = c.String("api-key")
	}
	if c.IsSet("storage") {
		cfg.Storage.Backend = c.String("storage")
	}
	if c.IsSet("project") {
		cfg.ProjectID = c.String("project")
	}
	return cfg, nil
}
