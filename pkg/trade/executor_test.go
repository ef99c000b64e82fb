package trade

import (
	"context"
	"strings"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galaswap/agent/pkg/agenterr"
	"github.com/galaswap/agent/pkg/arb"
	"github.com/galaswap/agent/pkg/balance"
	"github.com/galaswap/agent/pkg/gateway"
	"github.com/galaswap/agent/pkg/pool"
	"github.com/galaswap/agent/pkg/stream"
	"github.com/galaswap/agent/pkg/token"
)

func dec(s string) math.LegacyDec {
	return math.LegacyMustNewDecFromStr(s)
}

func pairKey(a, b token.Key) string {
	lo, hi := a, b
	if hi.Less(lo) {
		lo, hi = hi, lo
	}
	return lo.String() + "/" + hi.String()
}

// fakeGateway serves pool probes from a static table and records submissions.
type fakeGateway struct {
	// liquidity by normalized pair; pairs absent from the map have no pools.
	liquidity map[string]string
	quoteOut  string
	quoteErr  error

	submissions []gateway.SwapRequest
	nextTxID    string
}

func (f *fakeGateway) GetPoolData(ctx context.Context, t0, t1 token.Key, fee uint32) (*gateway.PoolDataDTO, error) {
	liq, ok := f.liquidity[pairKey(t0, t1)]
	if !ok {
		return nil, nil
	}
	// One pool per pair, on the 3000 tier.
	if fee != 3000 {
		return nil, nil
	}
	return &gateway.PoolDataDTO{Fee: fee, SqrtPrice: "1.0", Liquidity: liq}, nil
}

func (f *fakeGateway) QuoteExactInput(ctx context.Context, tIn, tOut token.Key, fee uint32, amountIn math.LegacyDec) (*gateway.QuoteDTO, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return &gateway.QuoteDTO{AmountIn: amountIn.String(), AmountOut: f.quoteOut, Fee: fee}, nil
}

func (f *fakeGateway) SubmitSwap(ctx context.Context, req gateway.SwapRequest) (*gateway.PendingTx, error) {
	f.submissions = append(f.submissions, req)
	id := f.nextTxID
	if id == "" {
		id = "tx-1"
	}
	return &gateway.PendingTx{ID: id}, nil
}

// fakeAwaiter resolves every transaction with a fixed outcome.
type fakeAwaiter struct {
	status stream.Status
	err    error
}

func (f *fakeAwaiter) Await(ctx context.Context, txID string, timeout time.Duration) (stream.Event, error) {
	if f.err != nil {
		return stream.Event{}, f.err
	}
	return stream.Event{TxID: txID, Status: f.status}, nil
}

var (
	gala  = token.KeyFromSymbol("GALA")
	silk  = token.KeyFromSymbol("SILK")
	gusdc = token.KeyFromSymbol("GUSDC")
	gwbtc = token.KeyFromSymbol("GWBTC")
)

func testRegistry() *token.Registry {
	mk := func(a, b token.Key) token.PoolSpec {
		return token.PoolSpec{Token0: a, Token1: b, Fee: 3000, Liquidity: math.LegacyNewDec(100000)}
	}
	return token.NewRegistry(nil, []token.PoolSpec{
		mk(gala, silk),
		mk(gala, gusdc),
		mk(gwbtc, gala),
	})
}

func newExecutor(gw Gateway, awaiter Awaiter, live bool) (*Executor, *History) {
	history := NewHistory(100)
	e := NewExecutor(Config{
		EnableTrading:   live,
		MaxSlippagePct:  dec("5"),
		InterTradeDelay: time.Millisecond,
		TxTimeout:       time.Second,
		GasToken:        gala,
		Intermediates:   []token.Key{gala, gusdc},
	}, gw, awaiter, testRegistry(), history)
	return e, history
}

func TestExecuteDirectAppliesSlippageBound(t *testing.T) {
	gw := &fakeGateway{
		liquidity: map[string]string{pairKey(gala, silk): "100000"},
		quoteOut:  "100",
	}
	e, history := newExecutor(gw, &fakeAwaiter{status: stream.StatusProcessed}, true)

	res := e.ExecuteDirect(context.Background(), gala, silk, dec("500"), nil, balance.ReasonDCAToPreferred)
	require.True(t, res.Success, "error: %s", res.Error)

	require.Len(t, gw.submissions, 1)
	sub := gw.submissions[0]
	assert.True(t, sub.AmountOutMinimum.Equal(dec("95")),
		"expected 100 less 5%% slippage, got %s", sub.AmountOutMinimum)
	assert.True(t, res.AmountOut.Equal(dec("100")), "quoted amount reported")
	assert.Equal(t, "tx-1", res.TxID)
	assert.Len(t, history.Recent(10), 1)
}

func TestExecuteDirectFailedSettlement(t *testing.T) {
	gw := &fakeGateway{
		liquidity: map[string]string{pairKey(gala, silk): "100000"},
		quoteOut:  "100",
	}
	e, history := newExecutor(gw, &fakeAwaiter{status: stream.StatusFailed}, true)

	res := e.ExecuteDirect(context.Background(), gala, silk, dec("500"), nil, balance.ReasonDCAToPreferred)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "FAILED")
	assert.Len(t, history.Recent(10), 1, "failures are recorded")
}

func TestExecuteDirectNoRoute(t *testing.T) {
	gw := &fakeGateway{liquidity: map[string]string{}}
	e, _ := newExecutor(gw, nil, false)

	res := e.ExecuteDirect(context.Background(), gwbtc, silk, dec("1"), nil, balance.ReasonDCAToPreferred)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no pool with liquidity")
}

func TestExecuteDirectRejectsNonPositiveAmount(t *testing.T) {
	gw := &fakeGateway{liquidity: map[string]string{pairKey(gala, silk): "100000"}}
	e, _ := newExecutor(gw, nil, false)

	res := e.ExecuteDirect(context.Background(), gala, silk, dec("0"), nil, balance.ReasonDCAToPreferred)
	assert.False(t, res.Success)
}

func TestExecuteDirectDryRunNeverSubmits(t *testing.T) {
	gw := &fakeGateway{liquidity: map[string]string{pairKey(gala, silk): "100000"}}
	e, history := newExecutor(gw, nil, false)

	res := e.ExecuteDirect(context.Background(), gala, silk, dec("100"), nil, balance.ReasonDCAToPreferred)
	require.True(t, res.Success)

	assert.Empty(t, gw.submissions, "dry run must not touch the bundler")
	assert.True(t, res.AmountOut.Equal(dec("98")), "synthetic 0.98 fill rate")
	assert.True(t, strings.HasPrefix(res.TxID, "dry-run-"))
	assert.Len(t, history.Recent(10), 1, "dry-run results are still recorded")
}

func TestExecuteDirectDryRunStillRequiresRoute(t *testing.T) {
	gw := &fakeGateway{liquidity: map[string]string{}}
	e, _ := newExecutor(gw, nil, false)

	res := e.ExecuteDirect(context.Background(), gwbtc, silk, dec("1"), nil, balance.ReasonDCAToPreferred)
	assert.False(t, res.Success, "dry run resolves routes and can fail on them")
}

func TestExecuteDirectCancelledNotRecorded(t *testing.T) {
	gw := &fakeGateway{
		liquidity: map[string]string{pairKey(gala, silk): "100000"},
		quoteOut:  "100",
	}
	awaiter := &fakeAwaiter{err: agenterr.ErrCancelled.Wrap("shutting down")}
	e, history := newExecutor(gw, awaiter, true)

	res := e.ExecuteDirect(context.Background(), gala, silk, dec("500"), nil, balance.ReasonDCAToPreferred)
	assert.False(t, res.Success)
	assert.Empty(t, history.Recent(10), "cancelled operations are not history")
}

func TestExecuteRoutedFallsBackToTwoHops(t *testing.T) {
	// No GWBTC/SILK pool; GWBTC-GALA and GALA-SILK exist. Dry run: each hop
	// fills at 0.98, so the combined fill is 0.9604 of the input.
	gw := &fakeGateway{liquidity: map[string]string{
		pairKey(gwbtc, gala): "100000",
		pairKey(gala, silk):  "100000",
	}}
	e, _ := newExecutor(gw, nil, false)

	res := e.ExecuteRouted(context.Background(), gwbtc, silk, dec("10"), balance.ReasonDCAToPreferred)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.True(t, res.Source.Equal(gwbtc))
	assert.True(t, res.Target.Equal(silk))
	assert.True(t, res.AmountIn.Equal(dec("10")))
	assert.True(t, res.AmountOut.Equal(dec("9.604")), "got %s", res.AmountOut)
}

func TestExecuteRoutedDirectWinsWhenAvailable(t *testing.T) {
	gw := &fakeGateway{liquidity: map[string]string{
		pairKey(gala, silk): "100000",
	}}
	e, _ := newExecutor(gw, nil, false)

	res := e.ExecuteRouted(context.Background(), gala, silk, dec("10"), balance.ReasonDCAToPreferred)
	require.True(t, res.Success)
	assert.True(t, res.AmountOut.Equal(dec("9.8")), "single dry-run hop")
}

func TestExecuteRoutedNoIntermediates(t *testing.T) {
	gw := &fakeGateway{liquidity: map[string]string{}}
	e, _ := newExecutor(gw, nil, false)

	res := e.ExecuteRouted(context.Background(), gwbtc, gusdc, dec("10"), balance.ReasonDCAToPreferred)
	assert.False(t, res.Success)
}

func TestExecuteArbitrageDryRunCycle(t *testing.T) {
	gw := &fakeGateway{liquidity: map[string]string{
		pairKey(gala, silk): "100000",
	}}
	e, _ := newExecutor(gw, nil, false)

	snapA := &pool.Snapshot{Token0: gala, Token1: silk, Fee: 3000}
	snapB := &pool.Snapshot{Token0: gala, Token1: silk, Fee: 500}
	opp := &arb.Opportunity{
		Path: arb.Path{
			Tokens: []token.Key{gala, silk, gala},
			Pools:  []int{0, 1},
		},
		Snapshots:   []*pool.Snapshot{snapA, snapB},
		InputAmount: dec("100"),
	}

	rec := e.ExecuteArbitrage(context.Background(), opp)
	require.True(t, rec.Success, "error: %s", rec.Error)
	require.Len(t, rec.TxIDs, 2)

	assert.True(t, rec.ActualOut.Equal(dec("96.04")), "got %s", rec.ActualOut)
	assert.True(t, rec.RealizedProfit.Equal(dec("-3.96")))
	assert.True(t, rec.RealizedPct.Equal(dec("-3.96")))
}

func TestExecuteBatchOrdersGasRefillFirst(t *testing.T) {
	gw := &fakeGateway{liquidity: map[string]string{
		pairKey(gala, silk):  "100000",
		pairKey(gala, gusdc): "100000",
	}}
	e, _ := newExecutor(gw, nil, false)

	intents := []balance.Intent{
		{Source: gusdc, Target: silk, Amount: dec("5"), Reason: balance.ReasonDCAToPreferred},
		{Source: gusdc, Target: gala, Amount: dec("5"), Reason: balance.ReasonRefillGas},
	}

	results := e.ExecuteBatch(context.Background(), intents)
	require.Len(t, results, 2)
	assert.Equal(t, balance.ReasonRefillGas, results[0].Reason, "gas refill runs first")
	assert.Equal(t, balance.ReasonDCAToPreferred, results[1].Reason)
}

func TestExecuteBatchStopsOnCancelledContext(t *testing.T) {
	gw := &fakeGateway{liquidity: map[string]string{pairKey(gala, silk): "100000"}}
	e, _ := newExecutor(gw, nil, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	intents := []balance.Intent{
		{Source: gala, Target: silk, Amount: dec("1"), Reason: balance.ReasonDCAToPreferred},
		{Source: gala, Target: silk, Amount: dec("1"), Reason: balance.ReasonDCAToPreferred},
	}
	results := e.ExecuteBatch(ctx, intents)
	assert.LessOrEqual(t, len(results), 1, "the inter-trade delay observes cancellation")
}

func TestHistoryAccounting(t *testing.T) {
	h := NewHistory(2)
	h.Add(Result{Success: true, AmountIn: dec("10"), Timestamp: time.Now()})
	h.Add(Result{Success: false, AmountIn: dec("99"), Timestamp: time.Now()})
	h.Add(Result{Success: true, AmountIn: dec("20"), Timestamp: time.Now()})

	recent := h.Recent(10)
	require.Len(t, recent, 2, "bounded at the cap")
	assert.True(t, h.SuccessRate().Equal(dec("0.5")))
	assert.True(t, h.Volume().Equal(dec("20")), "evicted trades leave the volume")
	assert.False(t, h.LastTradeTime().IsZero())
}
