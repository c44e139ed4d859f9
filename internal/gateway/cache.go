package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"solana-wallet-tracker/internal/observability"
)

type cacheEntry struct {
	value   any
	expires time.Time
}

// responseCache is a short-lived response cache keyed by "op|asset|account".
type responseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func newResponseCache(now func() time.Time) *responseCache {
	return &responseCache{entries: make(map[string]cacheEntry), now: now}
}

func (c *responseCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *responseCache) set(key string, v any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: v, expires: c.now().Add(ttl)}
}

// dropAsset removes every entry of one asset.
func (c *responseCache) dropAsset(assetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.Contains(k, "|"+assetID+"|") {
			delete(c.entries, k)
		}
	}
}

func cacheKey(op, assetID, account string) string {
	return op + "|" + assetID + "|" + account
}

// cached serves key from the response cache, or runs fn once for all
// concurrent callers of the same key and caches a successful result.
func cached[T any](ctx context.Context, g *Gateway, op, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if v, ok := g.cache.get(key); ok {
		observability.RecordCacheLookup(op, true)
		return v.(T), nil
	}
	observability.RecordCacheLookup(op, false)

	v, err := share(ctx, g, op, key, func(ctx context.Context) (any, error) {
		r, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		g.cache.set(key, r, ttl)
		return r, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// share runs fn once per key for all concurrent callers. The call is detached
// from the caller that started it, so cancelling one caller never fails the
// others; each caller stops waiting when its own ctx is done.
func share(ctx context.Context, g *Gateway, op, key string, fn func(context.Context) (any, error)) (any, error) {
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}
	ch := g.flight.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, cancelled(ctx)
	case r := <-ch:
		if r.Shared {
			observability.RecordSharedCall(op)
		}
		return r.Val, r.Err
	}
}
