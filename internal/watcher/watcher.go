// Package watcher turns live ledger activity on watched wallets into
// refresh triggers.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"solana-wallet-tracker/internal/observability"
	"solana-wallet-tracker/internal/solana"
)

// seenCap bounds the signature dedup set.
const seenCap = 1024

// TriggerFunc is called once per new signature touching a watched wallet.
type TriggerFunc func(wallet, signature string)

// Watcher subscribes to transactions mentioning each wallet.
type Watcher struct {
	ws      solana.WSClient
	trigger TriggerFunc
	logger  *zap.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates a Watcher.
func New(ws solana.WSClient, trigger TriggerFunc, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		ws:      ws,
		trigger: trigger,
		logger:  logger.Named("watcher"),
		seen:    make(map[string]struct{}),
	}
}

type event struct {
	wallet string
	n      solana.LogNotification
}

// Watch subscribes every wallet and fires the trigger for each successful
// transaction until ctx is done or every subscription closes. Wallets whose
// subscription fails are logged and skipped; it fails only when none subscribe.
func (w *Watcher) Watch(ctx context.Context, wallets []string) error {
	if len(wallets) == 0 {
		return errors.New("watcher: no wallets")
	}

	events := make(chan event)
	var wg sync.WaitGroup
	var subErrs []error
	for _, wallet := range wallets {
		ch, err := w.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: wallet})
		if err != nil {
			w.logger.Warn("subscribe failed", zap.String("wallet", wallet), zap.Error(err))
			subErrs = append(subErrs, fmt.Errorf("%s: %w", wallet, err))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case n, ok := <-ch:
					if !ok {
						return
					}
					select {
					case events <- event{wallet: wallet, n: n}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}
	if len(subErrs) == len(wallets) {
		return fmt.Errorf("watcher: no subscription: %w", errors.Join(subErrs...))
	}
	w.logger.Info("watching wallets", zap.Int("subscribed", len(wallets)-len(subErrs)))

	closed := make(chan struct{})
	go func() {
		wg.Wait()
		close(closed)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return nil
		case e := <-events:
			w.handle(e)
		}
	}
}

func (w *Watcher) handle(e event) {
	if e.n.Err != nil || e.n.Signature == "" {
		return
	}
	if !w.markSeen(e.n.Signature) {
		return
	}
	observability.RecordWatcherNotification()
	w.logger.Debug("wallet activity", zap.String("wallet", e.wallet), zap.String("signature", e.n.Signature))
	w.trigger(e.wallet, e.n.Signature)
}

// markSeen reports whether sig is new. The set is reset when full.
func (w *Watcher) markSeen(sig string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[sig]; ok {
		return false
	}
	if len(w.seen) >= seenCap {
		w.seen = make(map[string]struct{})
	}
	w.seen[sig] = struct{}{}
	return true
}
