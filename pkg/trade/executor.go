package trade

import (
	"context"
	"sort"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/galaswap/agent/pkg/agenterr"
	"github.com/galaswap/agent/pkg/arb"
	"github.com/galaswap/agent/pkg/balance"
	"github.com/galaswap/agent/pkg/gateway"
	"github.com/galaswap/agent/pkg/metrics"
	"github.com/galaswap/agent/pkg/stream"
	"github.com/galaswap/agent/pkg/token"
)

// Gateway is the slice of the transport client the executor needs.
type Gateway interface {
	GetPoolData(ctx context.Context, t0, t1 token.Key, fee uint32) (*gateway.PoolDataDTO, error)
	QuoteExactInput(ctx context.Context, tIn, tOut token.Key, fee uint32, amountIn math.LegacyDec) (*gateway.QuoteDTO, error)
	SubmitSwap(ctx context.Context, req gateway.SwapRequest) (*gateway.PendingTx, error)
}

// Awaiter resolves a submitted transaction id to its terminal outcome.
type Awaiter interface {
	Await(ctx context.Context, txID string, timeout time.Duration) (stream.Event, error)
}

// Config holds the executor's trading parameters.
type Config struct {
	EnableTrading   bool
	MaxSlippagePct  math.LegacyDec
	InterTradeDelay time.Duration
	TxTimeout       time.Duration
	GasToken        token.Key
	// Intermediates are tried in order for two-hop fallback routing: the gas
	// token first, then major stables.
	Intermediates []token.Key
}

// dryRunRate is the synthetic fill rate applied in dry-run mode.
var dryRunRate = math.LegacyMustNewDecFromStr("0.98")

// Executor drives the swap lifecycle: probe, quote, bound slippage, submit,
// await settlement. One executor instance serves both scheduler loops.
type Executor struct {
	cfg      Config
	gw       Gateway
	awaiter  Awaiter
	registry *token.Registry
	history  *History
}

// NewExecutor builds an executor. awaiter may be nil only in dry-run mode.
func NewExecutor(cfg Config, gw Gateway, awaiter Awaiter, registry *token.Registry, history *History) *Executor {
	if len(cfg.Intermediates) == 0 && !cfg.GasToken.IsZero() {
		cfg.Intermediates = []token.Key{cfg.GasToken}
	}
	return &Executor{
		cfg:      cfg,
		gw:       gw,
		awaiter:  awaiter,
		registry: registry,
		history:  history,
	}
}

// ExecuteDirect swaps amount of src into dst through a single pool. When fee
// is nil all three tiers are probed and the deepest pool wins. The result is
// recorded to history unless the operation was cancelled.
func (e *Executor) ExecuteDirect(ctx context.Context, src, dst token.Key, amount math.LegacyDec, fee *uint32, reason balance.Reason) Result {
	res, err := e.executeDirect(ctx, src, dst, amount, fee, reason)
	if agenterr.ErrCancelled.Is(err) {
		return res
	}
	e.record(res)
	return res
}

func (e *Executor) executeDirect(ctx context.Context, src, dst token.Key, amount math.LegacyDec, feeOpt *uint32, reason balance.Reason) (Result, error) {
	res := Result{
		Source:    src,
		Target:    dst,
		AmountIn:  amount,
		AmountOut: math.LegacyZeroDec(),
		Reason:    reason,
		Timestamp: time.Now(),
	}
	if !amount.IsPositive() {
		err := agenterr.ErrQuote.Wrap("amount must be positive")
		res.Error = err.Error()
		return res, err
	}

	fee, err := e.resolveFee(ctx, src, dst, feeOpt)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}

	if !e.cfg.EnableTrading {
		// Dry run: the route is resolved for realism but no quote is needed
		// and the signer and submission endpoints are never touched.
		res.Success = true
		res.AmountOut = amount.Mul(dryRunRate)
		res.TxID = "dry-run-" + uuid.NewString()
		log.WithFields(log.Fields{
			"in":     src.Symbol(),
			"out":    dst.Symbol(),
			"amount": amount.String(),
			"fee":    fee,
		}).Info("Dry-run swap")
		return res, nil
	}

	quote, err := e.gw.QuoteExactInput(ctx, src, dst, fee, amount)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}
	expected, err := math.LegacyNewDecFromStr(quote.AmountOut)
	if err != nil {
		qerr := agenterr.ErrQuote.Wrapf("bad quoted amount %q", quote.AmountOut)
		res.Error = qerr.Error()
		return res, qerr
	}
	minOut := expected.Mul(math.LegacyNewDec(100).Sub(e.cfg.MaxSlippagePct)).Quo(math.LegacyNewDec(100))

	timer := metrics.NewTimer()
	pending, err := e.gw.SubmitSwap(ctx, gateway.SwapRequest{
		TokenIn:          src,
		TokenOut:         dst,
		Fee:              fee,
		AmountIn:         amount,
		AmountOutMinimum: minOut,
	})
	if err != nil {
		res.Error = err.Error()
		return res, err
	}
	res.TxID = pending.ID

	ev, err := e.awaiter.Await(ctx, pending.ID, e.cfg.TxTimeout)
	metrics.SwapLatency.Observe(timer.Seconds())
	if err != nil {
		res.Error = err.Error()
		return res, err
	}
	if ev.Status != stream.StatusProcessed {
		serr := agenterr.ErrSubmission.Wrapf("tx %s settled as %s", pending.ID, ev.Status)
		res.Error = serr.Error()
		return res, serr
	}

	// The settlement payload does not carry the actual output; report the
	// quoted expectation. Prefer the settled amount if the payload ever
	// grows one.
	res.Success = true
	res.AmountOut = expected
	return res, nil
}

// resolveFee picks the fee tier: the explicit one if given, otherwise the
// positive-liquidity pool with the deepest liquidity across all tiers.
func (e *Executor) resolveFee(ctx context.Context, src, dst token.Key, feeOpt *uint32) (uint32, error) {
	if feeOpt != nil {
		if !token.ValidFee(*feeOpt) {
			return 0, agenterr.ErrNoRoute.Wrapf("unknown fee tier %d", *feeOpt)
		}
		return *feeOpt, nil
	}

	best := uint32(0)
	bestLiquidity := math.LegacyZeroDec()
	for _, fee := range token.FeeTiers {
		dto, err := e.gw.GetPoolData(ctx, src, dst, fee)
		if err != nil {
			if agenterr.ErrCancelled.Is(err) {
				return 0, err
			}
			log.WithFields(log.Fields{"fee": fee, "pair": src.Symbol() + "/" + dst.Symbol()}).
				WithError(err).Debug("Fee tier probe failed")
			continue
		}
		if dto == nil {
			continue
		}
		liquidity, err := math.LegacyNewDecFromStr(dto.Liquidity)
		if err != nil || !liquidity.IsPositive() {
			continue
		}
		if liquidity.GT(bestLiquidity) {
			best = fee
			bestLiquidity = liquidity
		}
	}
	if best == 0 {
		return 0, agenterr.ErrNoRoute.Wrapf("no pool with liquidity for %s -> %s", src.Symbol(), dst.Symbol())
	}
	return best, nil
}

// ExecuteRouted tries a direct swap first and falls back to two-hop routes
// through well-known intermediates. A succeeded first hop is never unwound;
// the intermediate balance surfaces on the next rebalance cycle.
func (e *Executor) ExecuteRouted(ctx context.Context, src, dst token.Key, amount math.LegacyDec, reason balance.Reason) Result {
	direct := e.ExecuteDirect(ctx, src, dst, amount, nil, reason)
	if direct.Success {
		return direct
	}

	for _, mid := range e.registry.IntermediariesFor(src, dst, e.cfg.Intermediates) {
		log.WithFields(log.Fields{
			"src": src.Symbol(),
			"mid": mid.Symbol(),
			"dst": dst.Symbol(),
		}).Info("Direct route failed, trying two-hop route")

		hop1 := e.ExecuteDirect(ctx, src, mid, amount, nil, reason)
		if !hop1.Success {
			continue
		}
		hop2 := e.ExecuteDirect(ctx, mid, dst, hop1.AmountOut, nil, reason)
		if hop2.Success {
			return Result{
				Success:   true,
				Source:    src,
				Target:    dst,
				AmountIn:  amount,
				AmountOut: hop2.AmountOut,
				TxID:      hop2.TxID,
				Reason:    reason,
				Timestamp: time.Now(),
			}
		}
		// Hop 1 bought the intermediate; it stays in the wallet.
		return Result{
			Source:    src,
			Target:    dst,
			AmountIn:  amount,
			AmountOut: math.LegacyZeroDec(),
			Error:     hop2.Error,
			Reason:    reason,
			Timestamp: time.Now(),
		}
	}
	return direct
}

// ExecuteArbitrage runs each hop of the opportunity as a direct swap with
// the hop's chosen fee tier, stopping on the first failure.
func (e *Executor) ExecuteArbitrage(ctx context.Context, opp *arb.Opportunity) arb.ExecutionRecord {
	rec := arb.ExecutionRecord{
		Opportunity:    opp,
		ActualOut:      math.LegacyZeroDec(),
		RealizedProfit: math.LegacyZeroDec(),
		RealizedPct:    math.LegacyZeroDec(),
		ExecutedAt:     time.Now(),
	}

	amount := opp.InputAmount
	for i := 0; i < opp.Path.Hops(); i++ {
		fee := opp.Snapshots[i].Fee
		res := e.ExecuteDirect(ctx, opp.Path.Tokens[i], opp.Path.Tokens[i+1], amount, &fee, balance.ReasonArbitrage)
		if res.TxID != "" {
			rec.TxIDs = append(rec.TxIDs, res.TxID)
		}
		if !res.Success {
			rec.Error = res.Error
			metrics.ArbitrageExecutions.WithLabelValues("failed").Inc()
			return rec
		}
		amount = res.AmountOut
	}

	rec.Success = true
	rec.ActualOut = amount
	rec.RealizedProfit = amount.Sub(opp.InputAmount)
	if opp.InputAmount.IsPositive() {
		rec.RealizedPct = rec.RealizedProfit.Quo(opp.InputAmount).Mul(math.LegacyNewDec(100))
	}
	metrics.ArbitrageExecutions.WithLabelValues("success").Inc()
	return rec
}

// ExecuteBatch runs intents serially with the configured inter-trade delay,
// gas-refill intents first regardless of input order.
func (e *Executor) ExecuteBatch(ctx context.Context, intents []balance.Intent) []Result {
	ordered := make([]balance.Intent, len(intents))
	copy(ordered, intents)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Reason == balance.ReasonRefillGas && ordered[j].Reason != balance.ReasonRefillGas
	})

	results := make([]Result, 0, len(ordered))
	for i, intent := range ordered {
		if i > 0 {
			select {
			case <-time.After(e.cfg.InterTradeDelay):
			case <-ctx.Done():
				return results
			}
		}
		res := e.ExecuteRouted(ctx, intent.Source, intent.Target, intent.Amount, intent.Reason)
		results = append(results, res)
	}
	return results
}

// record appends to history and bumps metrics.
func (e *Executor) record(res Result) {
	if e.history != nil {
		e.history.Add(res)
	}

	outcome := "failed"
	if res.Success {
		outcome = "success"
		metrics.TradeVolume.WithLabelValues(res.Source.Symbol()).Add(mustFloat(res.AmountIn))
	}
	metrics.TradesTotal.WithLabelValues(outcome, reasonLabel(res.Reason)).Inc()
}

func reasonLabel(r balance.Reason) string {
	switch r {
	case balance.ReasonRefillGas:
		return "refill_gas"
	case balance.ReasonDCAToPreferred:
		return "dca"
	case balance.ReasonSpendExcessGas:
		return "excess_gas"
	case balance.ReasonArbitrage:
		return "arbitrage"
	default:
		return "unknown"
	}
}

func mustFloat(d math.LegacyDec) float64 {
	f, err := d.Float64()
	if err != nil {
		return 0
	}
	return f
}
