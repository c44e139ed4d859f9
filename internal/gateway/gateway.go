// Package gateway issues rate-limited, batched and deduplicated queries
// against the ledger provider and the market aggregator.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/market"
	"solana-wallet-tracker/internal/solana"
)

// TransferClassifier reduces a raw transaction to a wallet transfer.
type TransferClassifier interface {
	Classify(tx *solana.Transaction, wallet, assetID string) (*domain.ClassifiedTransfer, error)
}

// QuoteSource returns the best trading pair of an asset.
type QuoteSource interface {
	BestPair(ctx context.Context, assetID string) (*market.Quote, error)
}

// ProgressFunc receives batch progress after each group completes.
type ProgressFunc func(domain.BatchProgress)

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Gateway is the single caller of the remote ledger and aggregator.
type Gateway struct {
	rpc        solana.RPCClient
	quotes     QuoteSource
	classifier TransferClassifier
	policy     BatchPolicy
	ttls       CacheTTLs
	limiter    *rate.Limiter
	cache      *responseCache
	flight     singleflight.Group
	now        func() time.Time
	sleep      SleepFunc
	logger     *zap.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPolicy sets the batch policy.
func WithPolicy(p BatchPolicy) Option {
	return func(g *Gateway) { g.policy = p }
}

// WithCacheTTLs sets the response cache lifetimes.
func WithCacheTTLs(t CacheTTLs) Option {
	return func(g *Gateway) { g.ttls = t }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithSleep overrides the inter-group pause.
func WithSleep(fn SleepFunc) Option {
	return func(g *Gateway) { g.sleep = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l.Named("gateway")
		}
	}
}

// New creates a Gateway. quotes may be nil, in which case price lookups fail
// and metadata comes from the chain only.
func New(rpc solana.RPCClient, quotes QuoteSource, classifier TransferClassifier, opts ...Option) *Gateway {
	g := &Gateway{
		rpc:        rpc,
		quotes:     quotes,
		classifier: classifier,
		policy:     PublicPolicy(),
		ttls:       DefaultCacheTTLs(),
		now:        time.Now,
		sleep:      sleepCtx,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.policy = g.policy.withDefaults()
	g.cache = newResponseCache(g.now)

	limit := rate.Inf
	if g.policy.RequestsPerSecond > 0 {
		limit = rate.Limit(g.policy.RequestsPerSecond)
	}
	g.limiter = rate.NewLimiter(limit, g.policy.Burst)
	return g
}

// Policy returns the active batch policy.
func (g *Gateway) Policy() BatchPolicy {
	return g.policy
}

// InvalidateAsset drops every cached response of an asset.
func (g *Gateway) InvalidateAsset(assetID string) {
	g.cache.dropAsset(assetID)
}

// wait takes one token from the request bucket.
func (g *Gateway) wait(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx)
		}
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// warnRemote logs a provider failure, pointing at the credential when throttled.
func (g *Gateway) warnRemote(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.Is(err, domain.ErrRateLimited) {
		g.logger.Warn(msg+": rate limited, configure a provider API key for higher throughput", fields...)
		return
	}
	g.logger.Warn(msg, fields...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// cancelled wraps the context error as ErrCancelled.
func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
}

// errKind labels an error for metrics.
func errKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrRemoteUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrParseFailure):
		return "parse"
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "other"
	}
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return done * 100 / total
}
