package synccache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-wallet-tracker/internal/domain"
	"solana-wallet-tracker/internal/storage"
	"solana-wallet-tracker/internal/storage/memory"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, opts ...Option) (*Cache, *fakeClock, *memory.RecordStore) {
	t.Helper()
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	store := memory.NewRecordStore()
	c := New(store, append([]Option{WithClock(clock.Now)}, opts...)...)
	return c, clock, store
}

func ok(addr string, amount int64) domain.BalanceResult {
	return domain.BalanceResult{
		Address:   addr,
		RawAmount: decimal.NewFromInt(amount * 1_000_000).String(),
		Decimals:  6,
		UIAmount:  decimal.NewFromInt(amount),
	}
}

func transfer(sig, wallet string, ts int64) domain.ClassifiedTransfer {
	return domain.ClassifiedTransfer{
		SignatureID:   sig,
		WalletAddress: wallet,
		Timestamp:     ts,
		Category:      domain.CategoryTransferIn,
		Amount:        decimal.NewFromInt(1),
	}
}

func TestMergeBalances_PreviousAndHistory(t *testing.T) {
	ctx := context.Background()
	c, clock, _ := newTestCache(t)

	first := clock.Now().UnixMilli()
	_, err := c.MergeBalances(ctx, "mintA", []domain.BalanceResult{ok("w1", 100)})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	view, err := c.MergeBalances(ctx, "mintA", []domain.BalanceResult{ok("w1", 80)})
	require.NoError(t, err)

	require.Len(t, view.Balances, 1)
	b := view.Balances[0]
	assert.True(t, b.UIAmount.Equal(decimal.NewFromInt(80)))
	require.NotNil(t, b.PreviousUIAmount)
	assert.True(t, b.PreviousUIAmount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, -1, b.Change())
	assert.Equal(t, first, b.FirstSeenAt)
	assert.Equal(t, clock.Now().UnixMilli(), b.LastUpdatedAt)
	assert.Len(t, b.History, 2)
}

func TestMergeBalances_HistoryCapped(t *testing.T) {
	ctx := context.Background()
	c, clock, _ := newTestCache(t)

	for i := 1; i <= domain.BalanceHistoryCap+5; i++ {
		clock.Advance(time.Second)
		_, err := c.MergeBalances(ctx, "mintA", []domain.BalanceResult{ok("w1", int64(i))})
		require.NoError(t, err)
	}

	view, err := c.Balances(ctx, "mintA")
	require.NoError(t, err)
	h := view.Balances[0].History
	require.Len(t, h, domain.BalanceHistoryCap)
	assert.True(t, h[0].Amount.Equal(decimal.NewFromInt(6)), "oldest kept: %s", h[0].Amount)
	assert.True(t, h[len(h)-1].Amount.Equal(decimal.NewFromInt(15)))
}

func TestMergeBalances_FailureAnnotatesOnly(t *testing.T) {
	ctx := context.Background()
	c, clock, _ := newTestCache(t)

	_, err := c.MergeBalances(ctx, "mintA", []domain.BalanceResult{ok("w1", 10)})
	require.NoError(t, err)
	stamp := clock.Now().UnixMilli()

	clock.Advance(time.Minute)
	view, err := c.MergeBalances(ctx, "mintA", []domain.BalanceResult{
		{Address: "w1", Err: domain.ErrRateLimited},
		{Address: "w2", Err: domain.ErrRemoteUnavailable},
	})
	require.NoError(t, err)

	require.Len(t, view.Balances, 1, "failed fetch must not create an account")
	assert.True(t, view.Balances[0].UIAmount.Equal(decimal.NewFromInt(10)))
	assert.NotEmpty(t, view.Balances[0].Error)
	assert.Equal(t, stamp, view.LastSync, "all-failed merge must not advance the sync stamp")

	view, err = c.MergeBalances(ctx, "mintA", []domain.BalanceResult{ok("w1", 11)})
	require.NoError(t, err)
	assert.Empty(t, view.Balances[0].Error)
}

func TestMergeTransfers_Idempotent(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t)

	set := []domain.ClassifiedTransfer{
		transfer("s1", "w1", 1000),
		transfer("s2", "w1", 3000),
		transfer("s3", "w2", 2000),
	}

	res, err := c.MergeTransfers(ctx, "mintA", set, true)
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Added: 3, Total: 3}, res)

	res, err = c.MergeTransfers(ctx, "mintA", set, true)
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Added: 0, Total: 3}, res)

	view, err := c.Transfers(ctx, "mintA")
	require.NoError(t, err)
	got := []string{view.Transfers[0].SignatureID, view.Transfers[1].SignatureID, view.Transfers[2].SignatureID}
	assert.Equal(t, []string{"s2", "s3", "s1"}, got)
}

func TestMergeTransfers_OverlapAndSameSignatureOtherWallet(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t)

	_, err := c.MergeTransfers(ctx, "mintA", []domain.ClassifiedTransfer{transfer("s1", "w1", 1000)}, true)
	require.NoError(t, err)

	res, err := c.MergeTransfers(ctx, "mintA", []domain.ClassifiedTransfer{
		transfer("s1", "w1", 1000),
		transfer("s1", "w2", 1000), // other side of a transfer between two watched wallets
		transfer("s4", "w1", 5000),
		transfer("s4", "w1", 5000), // duplicate inside one batch
	}, true)
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Added: 2, Total: 3}, res)
}

func TestMergeTransfers_UnstampedKeepsStaleness(t *testing.T) {
	ctx := context.Background()
	c, clock, _ := newTestCache(t)

	_, err := c.MergeTransfers(ctx, "mintA", []domain.ClassifiedTransfer{transfer("s1", "w1", 1000)}, true)
	require.NoError(t, err)
	before, err := c.Transfers(ctx, "mintA")
	require.NoError(t, err)
	require.False(t, before.IsStale)

	clock.Advance(c.TTLs().Transfers + time.Second)
	res, err := c.MergeTransfers(ctx, "mintA", []domain.ClassifiedTransfer{transfer("s2", "w1", 2000)}, false)
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Added: 1, Total: 2}, res)

	after, err := c.Transfers(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, before.LastSync, after.LastSync)
	assert.True(t, after.IsStale)
	assert.Len(t, after.Transfers, 2, "unstamped merges still keep the data")
}

func TestMergeTransfers_NeverReclassifies(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t)

	orig := transfer("s1", "w1", 1000)
	_, err := c.MergeTransfers(ctx, "mintA", []domain.ClassifiedTransfer{orig}, true)
	require.NoError(t, err)

	changed := orig
	changed.Category = domain.CategoryAcquire
	_, err = c.MergeTransfers(ctx, "mintA", []domain.ClassifiedTransfer{changed}, true)
	require.NoError(t, err)

	view, err := c.Transfers(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryTransferIn, view.Transfers[0].Category)
}

func TestMergeIsolation(t *testing.T) {
	ctx := context.Background()
	c, clock, _ := newTestCache(t)

	_, err := c.MergeBalances(ctx, "mintB", []domain.BalanceResult{ok("w1", 5)})
	require.NoError(t, err)
	_, err = c.MergeTransfers(ctx, "mintB", []domain.ClassifiedTransfer{transfer("b1", "w1", 10)}, true)
	require.NoError(t, err)

	beforeBal, err := c.Balances(ctx, "mintB")
	require.NoError(t, err)
	beforeTx, err := c.Transfers(ctx, "mintB")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = c.MergeBalances(ctx, "mintA", []domain.BalanceResult{ok("w1", 99), ok("w2", 1)})
	require.NoError(t, err)
	_, err = c.MergeTransfers(ctx, "mintA", []domain.ClassifiedTransfer{transfer("a1", "w1", 20)}, true)
	require.NoError(t, err)
	require.NoError(t, c.ClearAsset(ctx, "mintA"))

	afterBal, err := c.Balances(ctx, "mintB")
	require.NoError(t, err)
	afterTx, err := c.Transfers(ctx, "mintB")
	require.NoError(t, err)

	assert.Equal(t, mustJSON(t, beforeBal.Balances), mustJSON(t, afterBal.Balances))
	assert.Equal(t, mustJSON(t, beforeTx.Transfers), mustJSON(t, afterTx.Transfers))
}

func TestStalenessMonotonic(t *testing.T) {
	ctx := context.Background()
	ttls := TTLs{Balances: time.Minute, Transfers: 2 * time.Minute, Metadata: 3 * time.Minute, Price: 4 * time.Minute}
	c, clock, _ := newTestCache(t, WithTTLs(ttls))

	st, err := c.Staleness(ctx, "mintA")
	require.NoError(t, err)
	for _, kind := range domain.CacheKinds {
		assert.True(t, st[kind], "%s should be stale before any merge", kind)
	}

	_, err = c.MergeBalances(ctx, "mintA", []domain.BalanceResult{ok("w1", 1)})
	require.NoError(t, err)
	_, err = c.MergeTransfers(ctx, "mintA", nil, true)
	require.NoError(t, err)
	_, err = c.MergeMetadata(ctx, "mintA", domain.AssetMetadata{AssetID: "mintA", Symbol: "TKN"})
	require.NoError(t, err)
	_, err = c.MergePrice(ctx, "mintA", domain.AssetPrice{AssetID: "mintA", PriceUSD: decimal.NewFromFloat(0.5)})
	require.NoError(t, err)

	st, err = c.Staleness(ctx, "mintA")
	require.NoError(t, err)
	for _, kind := range domain.CacheKinds {
		assert.False(t, st[kind], "%s should be fresh right after merge", kind)
	}

	expected := map[time.Duration]map[domain.DataKind]bool{
		61 * time.Second:  {domain.KindBalances: true, domain.KindTransfers: false, domain.KindMetadata: false, domain.KindPrice: false},
		121 * time.Second: {domain.KindBalances: true, domain.KindTransfers: true, domain.KindMetadata: false, domain.KindPrice: false},
		181 * time.Second: {domain.KindBalances: true, domain.KindTransfers: true, domain.KindMetadata: true, domain.KindPrice: false},
		241 * time.Second: {domain.KindBalances: true, domain.KindTransfers: true, domain.KindMetadata: true, domain.KindPrice: true},
	}
	start := clock.Now()
	for _, after := range []time.Duration{61 * time.Second, 121 * time.Second, 181 * time.Second, 241 * time.Second} {
		clock.t = start.Add(after)
		st, err = c.Staleness(ctx, "mintA")
		require.NoError(t, err)
		assert.Equal(t, expected[after], st, "after %s", after)
	}

	md, err := c.Metadata(ctx, "mintA")
	require.NoError(t, err)
	assert.True(t, md.IsStale)
}

func TestIsStale(t *testing.T) {
	now := time.UnixMilli(10_000)
	assert.True(t, IsStale(0, time.Hour, now))
	assert.False(t, IsStale(9_000, time.Second, now))
	assert.True(t, IsStale(8_999, time.Second, now))
}

func TestGetStaleAccounts(t *testing.T) {
	ctx := context.Background()
	c, clock, _ := newTestCache(t)

	_, err := c.MergeBalances(ctx, "mintA", []domain.BalanceResult{ok("w1", 1)})
	require.NoError(t, err)
	clock.Advance(90 * time.Second)
	_, err = c.MergeBalances(ctx, "mintA", []domain.BalanceResult{ok("w2", 1)})
	require.NoError(t, err)

	stale, err := c.GetStaleAccounts(ctx, "mintA", []string{"w3", "w2", "w1"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"w3", "w1"}, stale)
}

func TestMergePrice_HistoryCapped(t *testing.T) {
	ctx := context.Background()
	c, clock, _ := newTestCache(t)

	for i := 0; i < domain.PriceHistoryCap+3; i++ {
		clock.Advance(time.Second)
		_, err := c.MergePrice(ctx, "mintA", domain.AssetPrice{AssetID: "mintA", PriceUSD: decimal.NewFromInt(int64(i))})
		require.NoError(t, err)
	}

	view, err := c.Price(ctx, "mintA")
	require.NoError(t, err)
	require.NotNil(t, view.Entry)
	assert.Len(t, view.Entry.History, domain.PriceHistoryCap)
	assert.True(t, view.Entry.Price.PriceUSD.Equal(decimal.NewFromInt(int64(domain.PriceHistoryCap+2))))
}

func TestClearAsset(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(t)

	_, err := c.MergeBalances(ctx, "mintA", []domain.BalanceResult{ok("w1", 1)})
	require.NoError(t, err)
	_, err = c.MergeTransfers(ctx, "mintA", []domain.ClassifiedTransfer{transfer("s1", "w1", 1)}, true)
	require.NoError(t, err)
	_, err = c.MergeMetadata(ctx, "mintA", domain.AssetMetadata{AssetID: "mintA"})
	require.NoError(t, err)

	require.NoError(t, c.ClearAsset(ctx, "mintA"))

	load, err := c.InstantLoad(ctx, "mintA")
	require.NoError(t, err)
	assert.False(t, load.HasData)
	assert.Empty(t, load.LastSync)
	assert.Nil(t, load.AssetInfo.Metadata)
}

func TestLoad_NewerSchemaIsMiss(t *testing.T) {
	ctx := context.Background()
	c, _, store := newTestCache(t)

	require.NoError(t, store.Put(ctx, &storage.Record{
		AssetID:       "mintA",
		Kind:          domain.KindBalances,
		SchemaVersion: storage.CurrentSchemaVersion + 1,
		Payload:       []byte(`[{"address":"w1","uiAmount":"5"}]`),
	}))

	view, err := c.Balances(ctx, "mintA")
	require.NoError(t, err)
	assert.Empty(t, view.Balances)
	assert.True(t, view.IsStale)
}

type failingStore struct {
	storage.RecordStore
}

func (failingStore) Get(context.Context, string, domain.DataKind) (*storage.Record, error) {
	return nil, errors.New("disk gone")
}

func TestLoad_StoreErrorPropagates(t *testing.T) {
	c := New(failingStore{})
	_, err := c.Transfers(context.Background(), "mintA")
	assert.Error(t, err)
}

func TestTransfersView_Cursor(t *testing.T) {
	view := TransfersView{Transfers: []domain.ClassifiedTransfer{
		transfer("s3", "w1", 3000),
		transfer("s2", "w2", 2500),
		transfer("s1", "w1", 1000),
	}}

	since, known := view.Cursor("w1")
	assert.Equal(t, int64(3000), since)
	assert.Len(t, known, 2)
	assert.Contains(t, known, "s1")

	since, known = view.Cursor("w9")
	assert.Zero(t, since)
	assert.Empty(t, known)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
