package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-tracker/internal/classifier"
	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/gateway"
	"solana-wallet-tracker/internal/market"
	"solana-wallet-tracker/internal/solana/stub"
	"solana-wallet-tracker/internal/storage/memory"
	"solana-wallet-tracker/internal/synccache"
)

const (
	mint   = "EWn7dE93GeQJu72WEkEmC5MZpm5FhiJzkcJEf1xpRdWP"
	seller = "p2Yicb86aZig616Eav2VWG9vuXR5mEqhtzshZYBxzsV"
)

var wallets = []string{
	"4vJ9JU1bJJE96FWSJKvHsmmFADCg4gpZQff4P3bkLKi",
	"8qbHbw2BbbTHBW1sbeqakYXVKRQM8Ne7pLK7m6CVfeR",
	"CktRuQ2mttgRGkXJtyksdKHjUdc2C4TgDzyB98oEzy8",
	"GgBaCs3NCBuZN12kCJgAW63ydqohFkHEdfdEXBPzLHq",
	"LbUiWL3xVV8hTFYBVdbTNrpDo41NKS6o3LHHuDzjfcY",
	"QWmroo4YnnMqYW3cnxWkFdaTxGD3P7vMSzwMHGbUzwF",
	"US517G5965aydkZ46HS38QLi7UQiSojurfbQfKCELFx",
	"YMN9Qj5jPNp7j14VPcML1B6xGgcPWVZUGLFU3Mnyfaf",
	"cGfHiC6Kgg3FpFZvgwGcswsCRtp4aBP2fzuXRQPizuN",
	"gBxS1f6uyyGPuW5MzGBukidSb71jdsCb5fZaoSzULE5",
	"k7FaK87WHGVXzkaoHb7CdVPgkKDQhZ29VLDeBVbDfYn",
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type quotes struct{}

func (quotes) BestPair(_ context.Context, assetID string) (*market.Quote, error) {
	return &market.Quote{
		Price:    domain.AssetPrice{AssetID: assetID, PriceUSD: decimal.RequireFromString("0.5")},
		Metadata: domain.AssetMetadata{AssetID: assetID, Name: "Test", Symbol: "TST"},
	}, nil
}

type harness struct {
	rpc      *stub.RPCClient
	clock    *clock
	cache    *synccache.Cache
	projects *memory.ProjectStore
	settings *memory.SettingsStore
	orch     *Orchestrator

	mu      sync.Mutex
	onSleep func()
}

func newHarness(t *testing.T, addrs []string, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		rpc:      stub.NewRPCClient(),
		clock:    &clock{t: time.Unix(1_700_000_000, 0)},
		projects: memory.NewProjectStore(),
		settings: memory.NewSettingsStore(),
	}
	h.cache = synccache.New(memory.NewRecordStore(), synccache.WithClock(h.clock.Now))

	gw := gateway.New(h.rpc, quotes{}, classifier.New(classifier.DefaultPolicy()),
		gateway.WithPolicy(gateway.BatchPolicy{GroupSize: 5, DetailBatchSize: 15}),
		gateway.WithClock(h.clock.Now),
		gateway.WithSleep(func(ctx context.Context, _ time.Duration) error {
			h.mu.Lock()
			fn := h.onSleep
			h.mu.Unlock()
			if fn != nil {
				fn()
			}
			return ctx.Err()
		}),
	)

	accounts := make([]domain.WatchedAccount, len(addrs))
	for i, a := range addrs {
		accounts[i] = domain.WatchedAccount{Address: a}
	}
	opts := Options{
		Ledger:   gw,
		Cache:    h.cache,
		Settings: h.settings,
		Projects: h.projects,
		AssetID:  mint,
		Accounts: accounts,
		Now:      h.clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}
	orch, err := New(opts)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func (h *harness) setOnSleep(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onSleep = fn
}

// buy adds a purchase of whole tokens by wallet at the given unix time.
func (h *harness) buy(sig, wallet string, at int64, pre, post uint64) {
	tx := stub.TokenTx(sig, at, mint, 6,
		stub.Party{Owner: wallet, PreToken: pre * 1_000_000, PostToken: post * 1_000_000, LamportDelta: -500_000_000},
		stub.Party{Owner: seller, PreToken: 1_000_000_000, PostToken: 1_000_000_000 - (post-pre)*1_000_000, LamportDelta: 500_000_000},
	)
	h.rpc.AddTokenTx(tx, wallet)
}

// sell adds a sale of whole tokens by wallet at the given unix time.
func (h *harness) sell(sig, wallet string, at int64, pre, post uint64) {
	tx := stub.TokenTx(sig, at, mint, 6,
		stub.Party{Owner: wallet, PreToken: pre * 1_000_000, PostToken: post * 1_000_000, LamportDelta: 200_000_000},
		stub.Party{Owner: seller, PreToken: 0, PostToken: (pre - post) * 1_000_000, LamportDelta: -200_000_000},
	)
	h.rpc.AddTokenTx(tx, wallet)
}

func TestRefresh_BuyThenSell(t *testing.T) {
	h := newHarness(t, wallets[:1], nil)
	w := wallets[0]
	now := h.clock.Now().Unix()

	h.buy("buy", w, now-12*60, 0, 100)
	h.sell("sell", w, now-2*60, 100, 20)
	h.rpc.SetTokenBalance(w, mint, "20000000", 6)

	res, err := h.orch.Refresh(context.Background(), RefreshOptions{Foreground: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StageDone, res.Stage)
	assert.Equal(t, ModeFull, res.Mode)
	assert.Equal(t, 1, res.BalancesFetched)
	assert.Equal(t, 2, res.TransfersAdded)

	view, err := h.orch.View(context.Background())
	require.NoError(t, err)
	require.Len(t, view.Rows, 1)
	row := view.Rows[0]
	assert.Equal(t, domain.StatusSelling, row.Status)
	assert.False(t, row.Pending)
	require.NotNil(t, row.Balance)
	assert.True(t, row.Balance.UIAmount.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "TST", view.AssetInfo.Metadata.Symbol)

	h.clock.Advance(time.Hour)
	view, err = h.orch.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSold, view.Rows[0].Status)
}

func TestRefresh_IncrementalAfterFull(t *testing.T) {
	h := newHarness(t, wallets[:1], nil)
	w := wallets[0]
	now := h.clock.Now().Unix()
	ctx := context.Background()

	h.buy("b1", w, now-3600, 0, 10)
	h.buy("b2", w, now-1800, 10, 20)
	h.rpc.SetTokenBalance(w, mint, "20000000", 6)

	res, err := h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeFull, res.Mode, "empty cache forces full mode")
	assert.Equal(t, 2, res.TransfersAdded)

	h.buy("b3", w, now-60, 20, 30)
	before := h.rpc.Calls("getTransaction")

	res, err = h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeIncremental, res.Mode)
	assert.Equal(t, 1, res.TransfersAdded)
	assert.Equal(t, 3, res.TransfersTotal)
	assert.Equal(t, before+1, h.rpc.Calls("getTransaction"), "only the new signature is fetched")

	// Nothing new: incremental cycle adds nothing.
	res, err = h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.TransfersAdded)
}

func TestRefresh_ForceFullAfterDestructiveChange(t *testing.T) {
	h := newHarness(t, wallets[:1], nil)
	ctx := context.Background()
	h.buy("b1", wallets[0], h.clock.Now().Unix()-60, 0, 1)

	_, err := h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)

	res, err := h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	require.Equal(t, ModeIncremental, res.Mode)

	require.NoError(t, h.orch.SetAccounts([]domain.WatchedAccount{{Address: wallets[0]}, {Address: wallets[1]}}))
	res, err = h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeFull, res.Mode)

	res, err = h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeIncremental, res.Mode, "flag clears after a completed full cycle")

	h.orch.ForceFullRefresh()
	res, err = h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeFull, res.Mode)

	require.NoError(t, h.orch.ClearData(ctx))
	load, err := h.cache.InstantLoad(ctx, mint)
	require.NoError(t, err)
	assert.False(t, load.HasData)
	res, err = h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeFull, res.Mode)
	assert.Equal(t, 1, res.TransfersAdded)
}

func TestRefresh_BlockingErrors(t *testing.T) {
	h := newHarness(t, nil, nil)
	res, err := h.orch.Refresh(context.Background(), RefreshOptions{})
	assert.ErrorIs(t, err, domain.ErrEmptyWatchList)
	assert.Equal(t, domain.StageError, res.Stage)
	assert.False(t, h.orch.Running())

	bad := newHarness(t, wallets[:1], func(o *Options) { o.AssetID = "bogus" })
	res, err = bad.orch.Refresh(context.Background(), RefreshOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
	assert.Equal(t, domain.StageError, res.Stage)
	assert.Zero(t, bad.rpc.Calls("getTokenAccountsByOwner"))

	assert.ErrorIs(t, h.orch.SetAsset("bogus"), domain.ErrInvalidAddress)
	assert.ErrorIs(t, h.orch.SetAccounts([]domain.WatchedAccount{{Address: wallets[0]}, {Address: wallets[0]}}), domain.ErrDuplicateAccount)
}

func TestRefresh_CancelBetweenGroups(t *testing.T) {
	h := newHarness(t, wallets, nil)
	for _, w := range wallets {
		h.rpc.SetTokenBalance(w, mint, "1000000", 6)
	}
	h.setOnSleep(func() { h.orch.Cancel() })

	res, err := h.orch.Refresh(context.Background(), RefreshOptions{Foreground: true})
	require.NoError(t, err, "cancellation is not an error")
	assert.Equal(t, domain.StageCancelled, res.Stage)
	assert.Equal(t, 5, res.BalancesFetched)
	assert.Equal(t, int64(5), h.rpc.Calls("getTokenAccountsByOwner"))
	assert.Zero(t, h.rpc.Calls("getSignaturesForAddress"))
	assert.False(t, h.orch.Running())

	balances, err := h.cache.Balances(context.Background(), mint)
	require.NoError(t, err)
	assert.Len(t, balances.Balances, 5, "completed group stays merged")

	view, err := h.orch.View(context.Background())
	require.NoError(t, err)
	for _, r := range view.Rows {
		assert.False(t, r.Pending, "cleanup clears pending placeholders")
	}

	// The interrupted full cycle is retried in full.
	h.setOnSleep(nil)
	res, err = h.orch.Refresh(context.Background(), RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeFull, res.Mode)
	assert.Equal(t, domain.StageDone, res.Stage)
}

func TestRefresh_SingleInFlight(t *testing.T) {
	h := newHarness(t, wallets[:1], nil)
	h.rpc.SetTokenBalance(wallets[0], mint, "1", 0)

	gate := make(chan struct{})
	entered := make(chan struct{}, 4)
	h.rpc.OnCall = func(method, _ string) {
		if method == "getTokenAccountsByOwner" {
			entered <- struct{}{}
			<-gate
		}
	}

	first := make(chan *Result, 1)
	go func() {
		res, err := h.orch.Refresh(context.Background(), RefreshOptions{})
		assert.NoError(t, err)
		first <- res
	}()
	<-entered

	_, err := h.orch.Refresh(context.Background(), RefreshOptions{})
	assert.ErrorIs(t, err, domain.ErrRefreshInProgress)

	second := make(chan *Result, 1)
	go func() {
		res, err := h.orch.Refresh(context.Background(), RefreshOptions{Force: true})
		assert.NoError(t, err)
		second <- res
	}()
	require.Eventually(t, func() bool {
		h.orch.mu.Lock()
		defer h.orch.mu.Unlock()
		return h.orch.cycle == 2
	}, time.Second, 5*time.Millisecond)
	close(gate)

	r1, r2 := <-first, <-second
	assert.Equal(t, domain.StageCancelled, r1.Stage)
	assert.Equal(t, domain.StageDone, r2.Stage)
	assert.False(t, h.orch.Running())
}

func TestRefresh_OverrideOwnsCycleState(t *testing.T) {
	h := newHarness(t, wallets[:1], nil)
	ctx := context.Background()
	h.rpc.SetTokenBalance(wallets[0], mint, "1", 0)
	h.buy("b1", wallets[0], h.clock.Now().Unix()-60, 0, 1)

	_, err := h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	h.clock.Advance(time.Minute)

	gate := make(chan struct{})
	entered := make(chan struct{}, 4)
	h.rpc.OnCall = func(method, _ string) {
		if method == "getTokenAccountsByOwner" {
			entered <- struct{}{}
			<-gate
		}
	}

	first := make(chan *Result, 1)
	go func() {
		res, _ := h.orch.Refresh(ctx, RefreshOptions{Foreground: true})
		first <- res
	}()
	<-entered

	second := make(chan *Result, 1)
	go func() {
		res, err := h.orch.Refresh(ctx, RefreshOptions{Force: true})
		assert.NoError(t, err)
		second <- res
	}()
	r1 := <-first
	close(gate)
	r2 := <-second
	h.rpc.OnCall = nil

	assert.Equal(t, domain.StageCancelled, r1.Stage)
	assert.Equal(t, domain.StageDone, r2.Stage)
	assert.Equal(t, 1, r2.BalancesFetched, "joined balance fetch survives the cancelled cycle")
	assert.Equal(t, ModeFull, r2.Mode, "override inherits the full fetch it replaced")
	assert.Same(t, r2, h.orch.LastResult())

	res, err := h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeIncremental, res.Mode)
}

func TestRefresh_AllHistoryFailuresKeepTransfersStale(t *testing.T) {
	h := newHarness(t, wallets[:1], nil)
	ctx := context.Background()
	w := wallets[0]
	h.rpc.SetTokenBalance(w, mint, "1000000", 6)
	h.buy("b1", w, h.clock.Now().Unix()-60, 0, 1)

	_, err := h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	view, err := h.cache.Transfers(ctx, mint)
	require.NoError(t, err)
	require.False(t, view.IsStale)
	stamped := view.LastSync

	h.clock.Advance(10 * time.Minute)
	h.rpc.FailMethod("getSignaturesForAddress", w, domain.ErrRemoteUnavailable)
	res, err := h.orch.Refresh(ctx, RefreshOptions{})
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.Equal(t, domain.StageError, res.Stage)
	assert.Equal(t, 1, res.BalancesFetched)
	assert.Equal(t, 1, res.HistoryFailures)

	view, err = h.cache.Transfers(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, stamped, view.LastSync)
	assert.True(t, view.IsStale)
	assert.Len(t, view.Transfers, 1, "cached transfers survive")

	// Recovery stamps again.
	h.rpc.FailMethod("getSignaturesForAddress", w, nil)
	res, err = h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StageDone, res.Stage)
	view, err = h.cache.Transfers(ctx, mint)
	require.NoError(t, err)
	assert.False(t, view.IsStale)
}

func TestRefresh_PendingOnlyInForeground(t *testing.T) {
	h := newHarness(t, wallets[:2], nil)
	for _, w := range wallets[:2] {
		h.rpc.SetTokenBalance(w, mint, "1", 0)
	}

	gate := make(chan struct{})
	entered := make(chan struct{}, 4)
	h.rpc.OnCall = func(method, _ string) {
		if method == "getTokenAccountsByOwner" {
			entered <- struct{}{}
			<-gate
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.orch.Refresh(context.Background(), RefreshOptions{Foreground: true})
	}()
	<-entered

	view, err := h.orch.View(context.Background())
	require.NoError(t, err)
	for _, r := range view.Rows {
		assert.True(t, r.Pending)
		assert.Equal(t, domain.StatusUnknown, r.Status)
	}
	assert.True(t, view.Running)
	close(gate)
	<-done

	// Background cycle over existing data never blanks rows.
	h.clock.Advance(time.Minute)
	gate2 := make(chan struct{})
	h.rpc.OnCall = func(method, _ string) {
		if method == "getTokenAccountsByOwner" {
			entered <- struct{}{}
			<-gate2
		}
	}
	done = make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.orch.Refresh(context.Background(), RefreshOptions{})
	}()
	<-entered

	view, err = h.orch.View(context.Background())
	require.NoError(t, err)
	for _, r := range view.Rows {
		assert.False(t, r.Pending)
		assert.NotNil(t, r.Balance)
	}
	close(gate2)
	<-done
}

func TestRefresh_FailuresKeepCachedData(t *testing.T) {
	h := newHarness(t, wallets[:2], nil)
	ctx := context.Background()
	h.rpc.SetTokenBalance(wallets[0], mint, "5", 0)
	h.rpc.SetTokenBalance(wallets[1], mint, "7", 0)

	_, err := h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	h.rpc.Fail(wallets[1], domain.ErrRateLimited)
	res, err := h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.BalanceFailures)
	assert.Equal(t, 1, res.HistoryFailures)

	h.clock.Advance(time.Minute)
	h.rpc.Fail(wallets[0], domain.ErrRemoteUnavailable)
	res, err = h.orch.Refresh(ctx, RefreshOptions{})
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.Equal(t, domain.StageError, res.Stage)

	view, err := h.orch.View(ctx)
	require.NoError(t, err)
	require.Len(t, view.Rows, 2)
	for i, want := range []int64{5, 7} {
		require.NotNil(t, view.Rows[i].Balance)
		assert.True(t, view.Rows[i].Balance.UIAmount.Equal(decimal.NewFromInt(want)))
		assert.NotEmpty(t, view.Rows[i].Balance.Error)
	}
}

func TestRefresh_BackgroundReusesFreshBalances(t *testing.T) {
	h := newHarness(t, wallets[:2], func(o *Options) { o.BalanceMaxAge = 10 * time.Minute })
	ctx := context.Background()
	for _, w := range wallets[:2] {
		h.rpc.SetTokenBalance(w, mint, "1", 0)
	}

	_, err := h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(2), h.rpc.Calls("getTokenAccountsByOwner"))

	h.clock.Advance(time.Minute)
	res, err := h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.BalancesFetched)
	assert.Equal(t, int64(2), h.rpc.Calls("getTokenAccountsByOwner"))

	h.clock.Advance(10 * time.Minute)
	res, err = h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.BalancesFetched)
}

func TestRefresh_ProgressStream(t *testing.T) {
	h := newHarness(t, wallets, nil)
	for i, w := range wallets {
		h.rpc.SetTokenBalance(w, mint, "1", 0)
		h.buy(fmt.Sprintf("b%d", i), w, h.clock.Now().Unix()-int64(i)*60, 0, 1)
	}

	events, unsubscribe := h.orch.Progress().Subscribe(256)
	defer unsubscribe()
	<-events // current state

	_, err := h.orch.Refresh(context.Background(), RefreshOptions{Foreground: true})
	require.NoError(t, err)

	var got []domain.Progress
	for p := range events {
		got = append(got, p)
		if p.Stage.Terminal() {
			break
		}
	}

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, domain.StageDone, last.Stage)
	assert.Equal(t, 100, last.Percent)

	seen := map[domain.Stage]bool{}
	for i, p := range got {
		seen[p.Stage] = true
		if i > 0 {
			assert.GreaterOrEqual(t, p.Percent, got[i-1].Percent, "percent must not decrease")
		}
		if p.Stage == domain.StageFetchBalances {
			assert.GreaterOrEqual(t, p.Percent, 15)
			assert.LessOrEqual(t, p.Percent, 55)
		}
	}
	for _, s := range []domain.Stage{domain.StageFetchMetadataPrice, domain.StageFetchBalances, domain.StageFetchTransfers} {
		assert.True(t, seen[s], "missing stage %s", s)
	}
	assert.Equal(t, domain.StageDone, h.orch.Progress().Last().Stage)
}

func TestRefresh_StampsAndSnapshots(t *testing.T) {
	h := newHarness(t, wallets[:1], func(o *Options) { o.ProjectID = "p1" })
	ctx := context.Background()
	h.rpc.SetTokenBalance(wallets[0], mint, "3", 0)
	h.buy("b1", wallets[0], h.clock.Now().Unix()-60, 0, 3)

	_, err := h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)

	s, err := h.settings.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().UnixMilli(), s.LastUpdatedAt)

	p, err := h.projects.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "TST", p.Name)
	assert.Equal(t, mint, p.AssetID)
	require.Len(t, p.Wallets, 1)
	require.NotNil(t, p.Snapshot)
	assert.Len(t, p.Snapshot.Balances, 1)
	assert.Len(t, p.Snapshot.Transfers, 1)

	// A fresh cache for the same asset cold-starts from the snapshot.
	cold := synccache.New(memory.NewRecordStore(), synccache.WithProjectStore(h.projects))
	load, err := cold.InstantLoad(ctx, mint)
	require.NoError(t, err)
	assert.True(t, load.HasData)
	assert.Equal(t, "p1", load.FromProject)
}

func TestLoadProject(t *testing.T) {
	h := newHarness(t, wallets[:1], nil)
	ctx := context.Background()
	saved, err := h.orch.SaveProject(ctx, "", "mine")
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	require.NoError(t, h.orch.SetAccounts([]domain.WatchedAccount{{Address: wallets[2]}}))
	p, err := h.orch.LoadProject(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", p.Name)
	assert.Equal(t, []string{wallets[0]}, addresses(h.orch.Accounts()))
}

func addresses(accs []domain.WatchedAccount) []string {
	out := make([]string, len(accs))
	for i, a := range accs {
		out[i] = a.Address
	}
	return out
}

func TestDeepFetch(t *testing.T) {
	h := newHarness(t, wallets[:1], func(o *Options) {
		o.History = gateway.HistoryOptions{PageSize: 20, MaxPages: 1}
	})
	ctx := context.Background()
	w := wallets[0]
	base := h.clock.Now().Unix() - 10_000
	for i := 0; i < 150; i++ {
		h.buy(fmt.Sprintf("s%03d", i), w, base+int64(i), uint64(i), uint64(i+1))
	}
	h.rpc.SetTokenBalance(w, mint, "150000000", 6)

	res, err := h.orch.Refresh(ctx, RefreshOptions{})
	require.NoError(t, err)
	assert.Equal(t, 20, res.TransfersTotal)

	deep, err := h.orch.DeepFetch(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, domain.StageDone, deep.Stage)
	assert.Equal(t, 130, deep.TransfersAdded)
	assert.Equal(t, 150, deep.TransfersTotal)

	_, err = h.orch.DeepFetch(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(1)
	<-a
	<-c

	b.Publish(domain.Progress{Stage: domain.StageFetchBalances, Percent: 20})
	b.Publish(domain.Progress{Stage: domain.StageDone, Percent: 100})

	assert.Equal(t, 20, (<-a).Percent)
	assert.Equal(t, 100, (<-a).Percent)
	assert.Equal(t, 20, (<-c).Percent, "slow subscriber drops newer events")
	assert.Equal(t, domain.StageDone, b.Last().Stage)

	unsubA()
	unsubA()
	_, open := <-a
	assert.False(t, open)

	b.Close()
	_, open = <-c
	assert.False(t, open)
	unsubC()

	late, _ := b.Subscribe(1)
	_, open = <-late
	assert.False(t, open)
}

func TestWatchListChanged(t *testing.T) {
	h := newHarness(t, wallets[:1], nil)

	changed := h.orch.WatchListChanged()
	select {
	case <-changed:
		t.Fatal("closed before any change")
	default:
	}

	require.NoError(t, h.orch.SetAccounts([]domain.WatchedAccount{{Address: wallets[0]}, {Address: wallets[1]}}))
	select {
	case <-changed:
	default:
		t.Fatal("SetAccounts did not signal")
	}

	next := h.orch.WatchListChanged()
	_, err := h.orch.AddAccount(wallets[2], "", "")
	require.NoError(t, err)
	select {
	case <-next:
	default:
		t.Fatal("AddAccount did not signal")
	}
	assert.Len(t, h.orch.Accounts(), 3)

	// A rejected list leaves the signal untouched.
	last := h.orch.WatchListChanged()
	assert.Error(t, h.orch.SetAccounts([]domain.WatchedAccount{{Address: "bogus"}}))
	select {
	case <-last:
		t.Fatal("rejected list signalled a change")
	default:
	}
}
