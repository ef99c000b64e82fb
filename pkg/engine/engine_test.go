package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galaswap/agent/pkg/arb"
	"github.com/galaswap/agent/pkg/balance"
	"github.com/galaswap/agent/pkg/config"
	"github.com/galaswap/agent/pkg/gateway"
	"github.com/galaswap/agent/pkg/pool"
	"github.com/galaswap/agent/pkg/token"
	"github.com/galaswap/agent/pkg/trade"
)

// stubTransport satisfies the balance, pool, and trade transport slices with
// canned responses and counts every call.
type stubTransport struct {
	calls int64
}

func (s *stubTransport) GetUserAssets(ctx context.Context, address string, page, limit int) (*gateway.UserAssetsPageDTO, error) {
	atomic.AddInt64(&s.calls, 1)
	return &gateway.UserAssetsPageDTO{
		Tokens: []gateway.UserAssetDTO{
			{Symbol: "GALA", Quantity: "500"},
		},
		Count: 1,
	}, nil
}

func (s *stubTransport) GetCompositePool(ctx context.Context, t0, t1 token.Key, fee uint32) (*gateway.CompositePoolDTO, error) {
	atomic.AddInt64(&s.calls, 1)
	return &gateway.CompositePoolDTO{
		Token0:    gateway.ClassFromKey(t0),
		Token1:    gateway.ClassFromKey(t1),
		Fee:       fee,
		SqrtPrice: "1.0",
		Liquidity: "100000",
	}, nil
}

func (s *stubTransport) GetPoolData(ctx context.Context, t0, t1 token.Key, fee uint32) (*gateway.PoolDataDTO, error) {
	atomic.AddInt64(&s.calls, 1)
	return &gateway.PoolDataDTO{Fee: fee, SqrtPrice: "1.0", Liquidity: "100000"}, nil
}

func (s *stubTransport) QuoteExactInput(ctx context.Context, tIn, tOut token.Key, fee uint32, amountIn math.LegacyDec) (*gateway.QuoteDTO, error) {
	atomic.AddInt64(&s.calls, 1)
	return &gateway.QuoteDTO{AmountIn: amountIn.String(), AmountOut: amountIn.String(), Fee: fee}, nil
}

func (s *stubTransport) SubmitSwap(ctx context.Context, req gateway.SwapRequest) (*gateway.PendingTx, error) {
	atomic.AddInt64(&s.calls, 1)
	return &gateway.PendingTx{ID: "tx-test"}, nil
}

func testEngine(t *testing.T, arbitrage bool) (*Engine, *stubTransport) {
	t.Helper()

	cfg := &config.Config{
		PreferredTokenKey:      "GALA|Unit|none|none",
		PreferredTokenName:     "$GALA",
		GalaTokenKey:           "GALA|Unit|none|none",
		MinGalaBalance:         math.LegacyNewDec(100),
		TradeInterval:          time.Hour,
		MaxSlippagePercent:     math.LegacyNewDec(5),
		TradeAmountPercent:     math.LegacyNewDec(10),
		EnableArbitrage:        arbitrage,
		ArbitrageCheckInterval: time.Hour,
		ArbitrageMinProfitPct:  math.LegacyNewDec(1),
		ArbitrageMaxTradeSize:  math.LegacyNewDec(100),
		ArbitrageMaxHops:       3,
		ArbitrageMinLiquidity:  math.LegacyNewDec(1000),
		WalletAddress:          "eth|abc123",
		HistoryLimit:           100,
	}

	gala := token.KeyFromSymbol("GALA")
	transport := &stubTransport{}
	registry := token.NewRegistry(nil, nil)
	history := trade.NewHistory(cfg.HistoryLimit)
	executor := trade.NewExecutor(trade.Config{
		MaxSlippagePct: cfg.MaxSlippagePercent,
		TxTimeout:      time.Second,
		GasToken:       gala,
	}, transport, nil, registry, history)
	balances := balance.NewManager(transport, cfg.WalletAddress, gala, gala, cfg.MinGalaBalance, cfg.TradeAmountPercent)
	cache := pool.NewCache(transport, time.Minute)
	detector := arb.NewDetector(arb.Config{
		BaseToken:    gala,
		MaxHops:      cfg.ArbitrageMaxHops,
		TradeSize:    cfg.ArbitrageMaxTradeSize,
		MinProfitPct: cfg.ArbitrageMinProfitPct,
		MinLiquidity: cfg.ArbitrageMinLiquidity,
		HistoryLimit: cfg.HistoryLimit,
	}, cache, registry, arb.OfflineQuoter{})

	return New(cfg, gala, gala, Deps{
		Balances: balances,
		Executor: executor,
		Detector: detector,
		Cache:    cache,
		History:  history,
	}), transport
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestStartStopIdempotent(t *testing.T) {
	eng, _ := testEngine(t, false)

	require.NoError(t, eng.Start())
	require.NoError(t, eng.Start(), "second start is a benign no-op")
	assert.True(t, eng.Running())

	eng.Stop()
	eng.Stop()
	assert.False(t, eng.Running())
}

func TestRebalanceLoopTicksImmediately(t *testing.T) {
	eng, transport := testEngine(t, false)

	require.NoError(t, eng.Start())
	defer eng.Stop()

	waitFor(t, func() bool {
		return eng.Status().LastBalance != nil
	})
	assert.Positive(t, atomic.LoadInt64(&transport.calls))
}

func TestArbitrageLoopGatedByConfig(t *testing.T) {
	eng, _ := testEngine(t, false)
	require.NoError(t, eng.Start())
	defer eng.Stop()

	waitFor(t, func() bool { return eng.Status().LastBalance != nil })
	assert.True(t, eng.Status().LastArbScanAt.IsZero(), "disabled loop never scans")
}

func TestArbitrageLoopRunsWhenEnabled(t *testing.T) {
	eng, _ := testEngine(t, true)
	require.NoError(t, eng.Start())
	defer eng.Stop()

	waitFor(t, func() bool { return !eng.Status().LastArbScanAt.IsZero() })
}

func TestStatusIsPure(t *testing.T) {
	eng, transport := testEngine(t, false)

	require.NoError(t, eng.Start())
	waitFor(t, func() bool { return eng.Status().LastBalance != nil })
	eng.Stop()

	before := atomic.LoadInt64(&transport.calls)
	for i := 0; i < 5; i++ {
		_ = eng.Status()
	}
	assert.Equal(t, before, atomic.LoadInt64(&transport.calls), "status never touches the transport")
}

func TestStatusEchoesConfig(t *testing.T) {
	eng, _ := testEngine(t, false)

	st := eng.Status()
	assert.False(t, st.Running)
	assert.Equal(t, "GALA|Unit|none|none", st.Config.PreferredToken)
	assert.Equal(t, "$GALA", st.Config.PreferredTokenName)
	assert.Equal(t, "eth|abc123", st.Config.WalletAddress)
	assert.Equal(t, int64(time.Hour/time.Millisecond), st.Config.TradeIntervalMs)
	assert.Equal(t, 3, st.Config.ArbitrageMaxHops)
	assert.Zero(t, st.UptimeSeconds)
}

func TestStatusAfterStopKeepsLastBalance(t *testing.T) {
	eng, _ := testEngine(t, false)

	require.NoError(t, eng.Start())
	waitFor(t, func() bool { return eng.Status().LastBalance != nil })
	eng.Stop()

	st := eng.Status()
	assert.False(t, st.Running)
	require.NotNil(t, st.LastBalance)
	assert.True(t, st.LastBalance.Gas.Equal(math.LegacyNewDec(500)))
}
