// Package scheduler turns timer ticks and trigger requests into refresh
// cycles. Requests arriving within the debounce window are coalesced into
// one queued cycle; a queued cycle is never dropped.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/observability"
	"solana-wallet-tracker/internal/orchestrator"
)

// Defaults.
const (
	DefaultInterval = 60 * time.Second
	DefaultDebounce = 500 * time.Millisecond
)

// Refresher runs one refresh cycle.
type Refresher interface {
	Refresh(ctx context.Context, opts orchestrator.RefreshOptions) (*orchestrator.Result, error)
}

// Request asks for a refresh cycle.
type Request struct {
	Foreground bool
	Force      bool
	Reason     string
}

func (r Request) merge(o Request) Request {
	r.Foreground = r.Foreground || o.Foreground
	r.Force = r.Force || o.Force
	if r.Reason == "" {
		r.Reason = o.Reason
	}
	return r
}

// Options configures a Scheduler.
type Options struct {
	// Interval between timer ticks. Zero disables the timer.
	Interval time.Duration
	// Debounce is the coalescing window opened by the first queued request.
	Debounce time.Duration
	// OnResult, if set, receives every finished cycle.
	OnResult func(*orchestrator.Result, error)
	Logger   *zap.Logger
}

// Scheduler queues refresh requests and runs them one at a time.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	debounce  time.Duration
	onResult  func(*orchestrator.Result, error)
	logger    *zap.Logger

	wake chan struct{}

	mu      sync.Mutex
	pending *Request
	merged  int
	runs    int
}

// New creates a Scheduler. A zero Debounce uses DefaultDebounce.
func New(r Refresher, opts Options) *Scheduler {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scheduler{
		refresher: r,
		interval:  opts.Interval,
		debounce:  opts.Debounce,
		onResult:  opts.OnResult,
		logger:    opts.Logger.Named("scheduler"),
		wake:      make(chan struct{}, 1),
	}
}

// Enqueue queues a request, merging it into an already queued one.
// It never blocks.
func (s *Scheduler) Enqueue(req Request) {
	s.mu.Lock()
	if s.pending == nil {
		s.pending = &req
	} else {
		merged := s.pending.merge(req)
		s.pending = &merged
		s.merged++
		observability.RecordRefreshCoalesced()
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Runs returns how many cycles were started.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Coalesced returns how many requests were merged into a queued one.
func (s *Scheduler) Coalesced() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merged
}

func (s *Scheduler) take() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Request{}, false
	}
	req := *s.pending
	s.pending = nil
	s.runs++
	return req, true
}

// Run serves requests until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var (
		timer  *time.Timer
		window <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval), zap.Duration("debounce", s.debounce))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-tick:
			s.Enqueue(Request{Reason: "timer"})

		case <-s.wake:
			if window == nil {
				timer = time.NewTimer(s.debounce)
				window = timer.C
			}

		case <-window:
			window = nil
			req, ok := s.take()
			if !ok {
				continue
			}
			s.run(ctx, req)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, req Request) {
	s.logger.Debug("starting refresh",
		zap.String("reason", req.Reason),
		zap.Bool("foreground", req.Foreground),
		zap.Bool("force", req.Force))

	res, err := s.refresher.Refresh(ctx, orchestrator.RefreshOptions{Foreground: req.Foreground, Force: req.Force})
	if errors.Is(err, domain.ErrRefreshInProgress) {
		s.logger.Debug("cycle in progress, requeueing", zap.String("reason", req.Reason))
		s.mu.Lock()
		s.runs--
		s.mu.Unlock()
		s.Enqueue(req)
		return
	}
	if err != nil && ctx.Err() == nil {
		s.logger.Error("refresh failed", zap.String("reason", req.Reason), zap.Error(err))
	}
	if s.onResult != nil {
		s.onResult(res, err)
	}
}
