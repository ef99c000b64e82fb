// Package quote computes exact-input swap outcomes locally from a pool
// snapshot, reproducing the AMM's tick-walking behavior over the snapshot's
// concentrated-liquidity state. All arithmetic is decimal; results are
// deterministic for identical inputs.
package quote

import (
	"cosmossdk.io/math"

	"github.com/galaswap/agent/pkg/agenterr"
	"github.com/galaswap/agent/pkg/pool"
	"github.com/galaswap/agent/pkg/token"
)

// Result is the outcome of an offline exact-input quote.
type Result struct {
	AmountIn           math.LegacyDec
	AmountOut          math.LegacyDec
	CurrentSqrtPrice   math.LegacyDec
	NewSqrtPrice       math.LegacyDec
	PriceImpactPercent math.LegacyDec
}

var (
	one     = math.LegacyOneDec()
	hundred = math.LegacyNewDec(100)
	// tickBase is 1.0001; each tick moves price by one basis point of a percent.
	tickBase = math.LegacyMustNewDecFromStr("1.0001")
)

// ExactInput simulates swapping amountIn of tokenIn against the snapshot.
// The walk consumes liquidity tick by tick in the swap direction, applying
// the pool's fee tier to the input, until the input is exhausted. It fails
// with a quote error when the snapshot lacks liquidity to absorb the input.
func ExactInput(snap *pool.Snapshot, tokenIn token.Key, amountIn math.LegacyDec) (Result, error) {
	if !snap.Contains(tokenIn) {
		return Result{}, agenterr.ErrQuote.Wrapf("token %s not in pool %s/%s", tokenIn.Symbol(), snap.Token0.Symbol(), snap.Token1.Symbol())
	}
	if !amountIn.IsPositive() {
		return Result{}, agenterr.ErrQuote.Wrap("input amount must be positive")
	}
	if !snap.SqrtPrice.IsPositive() {
		return Result{}, agenterr.ErrQuote.Wrap("snapshot has no price")
	}

	zeroForOne := snap.Token0.Equal(tokenIn)
	feeRate := snap.FeeRate()
	feeFactor := one.Sub(feeRate)

	sqrtP := snap.SqrtPrice
	liquidity := snap.Liquidity
	remaining := amountIn
	amountOut := math.LegacyZeroDec()

	// Boundary sqrt prices for initialized ticks, in walk order.
	bounds, err := tickBounds(snap, zeroForOne, sqrtP)
	if err != nil {
		return Result{}, err
	}
	boundIdx := 0

	for remaining.IsPositive() {
		if !liquidity.IsPositive() {
			// No active liquidity at this price. Jump to the next initialized
			// tick if one remains; otherwise the pool cannot absorb the input.
			if boundIdx >= len(bounds) {
				return Result{}, agenterr.ErrQuote.Wrapf("insufficient liquidity: %s of %s unabsorbed", remaining, amountIn)
			}
			sqrtP = bounds[boundIdx].sqrtPrice
			liquidity = crossLiquidity(liquidity, bounds[boundIdx].tick, zeroForOne)
			boundIdx++
			continue
		}

		var target math.LegacyDec
		haveTarget := boundIdx < len(bounds)
		if haveTarget {
			target = bounds[boundIdx].sqrtPrice
		}

		if haveTarget {
			// Gross input needed to push the price all the way to the boundary.
			segIn := segmentInput(liquidity, sqrtP, target, zeroForOne)
			grossNeeded := segIn.Quo(feeFactor)
			if remaining.GTE(grossNeeded) && grossNeeded.IsPositive() {
				amountOut = amountOut.Add(segmentOutput(liquidity, sqrtP, target, zeroForOne))
				remaining = remaining.Sub(grossNeeded)
				sqrtP = target
				liquidity = crossLiquidity(liquidity, bounds[boundIdx].tick, zeroForOne)
				boundIdx++
				continue
			}
		}

		// The remaining input settles within the current tick range.
		effIn := remaining.Mul(feeFactor)
		next := advanceSqrtPrice(liquidity, sqrtP, effIn, zeroForOne)
		amountOut = amountOut.Add(segmentOutput(liquidity, sqrtP, next, zeroForOne))
		sqrtP = next
		remaining = math.LegacyZeroDec()
	}

	impact := priceImpact(snap.SqrtPrice, sqrtP)
	return Result{
		AmountIn:           amountIn,
		AmountOut:          amountOut,
		CurrentSqrtPrice:   snap.SqrtPrice,
		NewSqrtPrice:       sqrtP,
		PriceImpactPercent: impact,
	}, nil
}

type boundary struct {
	tick      pool.TickInfo
	sqrtPrice math.LegacyDec
}

// tickBounds returns the initialized ticks strictly beyond the current price
// in the walk direction, ordered by traversal: descending for zeroForOne,
// ascending otherwise.
func tickBounds(snap *pool.Snapshot, zeroForOne bool, sqrtP math.LegacyDec) ([]boundary, error) {
	var out []boundary
	if zeroForOne {
		for i := len(snap.Ticks) - 1; i >= 0; i-- {
			sp, err := TickSqrtPrice(snap.Ticks[i].Index)
			if err != nil {
				return nil, err
			}
			if sp.LT(sqrtP) {
				out = append(out, boundary{tick: snap.Ticks[i], sqrtPrice: sp})
			}
		}
	} else {
		for i := 0; i < len(snap.Ticks); i++ {
			sp, err := TickSqrtPrice(snap.Ticks[i].Index)
			if err != nil {
				return nil, err
			}
			if sp.GT(sqrtP) {
				out = append(out, boundary{tick: snap.Ticks[i], sqrtPrice: sp})
			}
		}
	}
	return out, nil
}

// TickSqrtPrice returns sqrt(1.0001^tick).
func TickSqrtPrice(tick int32) (math.LegacyDec, error) {
	abs := tick
	if abs < 0 {
		abs = -abs
	}
	ratio := tickBase.Power(uint64(abs))
	if tick < 0 {
		ratio = one.Quo(ratio)
	}
	sqrt, err := ratio.ApproxSqrt()
	if err != nil {
		return math.LegacyDec{}, agenterr.ErrQuote.Wrapf("tick %d: sqrt failed: %v", tick, err)
	}
	return sqrt, nil
}

// segmentInput is the input amount consumed moving the price from sqrtP to
// target within constant liquidity.
//
//	zeroForOne  (price down, token0 in): L * (P - Q) / (P * Q)
//	oneForZero  (price up, token1 in):   L * (Q - P)
func segmentInput(liquidity, sqrtP, target math.LegacyDec, zeroForOne bool) math.LegacyDec {
	if zeroForOne {
		return liquidity.Mul(sqrtP.Sub(target)).Quo(sqrtP.Mul(target))
	}
	return liquidity.Mul(target.Sub(sqrtP))
}

// segmentOutput is the output amount released moving the price from sqrtP to
// target within constant liquidity.
//
//	zeroForOne  (token1 out): L * (P - Q)
//	oneForZero  (token0 out): L * (Q - P) / (P * Q)
func segmentOutput(liquidity, sqrtP, target math.LegacyDec, zeroForOne bool) math.LegacyDec {
	if zeroForOne {
		return liquidity.Mul(sqrtP.Sub(target))
	}
	return liquidity.Mul(target.Sub(sqrtP)).Quo(sqrtP.Mul(target))
}

// advanceSqrtPrice computes the price after consuming effIn of input within
// constant liquidity.
//
//	zeroForOne: Q = L*P / (L + x*P)
//	oneForZero: Q = P + x/L
func advanceSqrtPrice(liquidity, sqrtP, effIn math.LegacyDec, zeroForOne bool) math.LegacyDec {
	if zeroForOne {
		return liquidity.Mul(sqrtP).Quo(liquidity.Add(effIn.Mul(sqrtP)))
	}
	return sqrtP.Add(effIn.Quo(liquidity))
}

// crossLiquidity applies a tick's net liquidity when the walk crosses it:
// added when crossing upward, removed when crossing downward. Negative
// results clamp to zero; a snapshot rounding artifact must not produce
// negative liquidity.
func crossLiquidity(liquidity math.LegacyDec, t pool.TickInfo, zeroForOne bool) math.LegacyDec {
	var next math.LegacyDec
	if zeroForOne {
		next = liquidity.Sub(t.LiquidityNet)
	} else {
		next = liquidity.Add(t.LiquidityNet)
	}
	if next.IsNegative() {
		return math.LegacyZeroDec()
	}
	return next
}

// priceImpact is |Q^2 - P^2| / P^2 * 100.
func priceImpact(sqrtBefore, sqrtAfter math.LegacyDec) math.LegacyDec {
	before := sqrtBefore.Mul(sqrtBefore)
	after := sqrtAfter.Mul(sqrtAfter)
	return after.Sub(before).Abs().Quo(before).Mul(hundred)
}
