package arb

import (
	"sort"
	"time"

	"cosmossdk.io/math"

	"github.com/galaswap/agent/pkg/pool"
	"github.com/galaswap/agent/pkg/quote"
	"github.com/galaswap/agent/pkg/token"
)

// Quoter simulates one exact-input hop. The production implementation is the
// offline quote engine; tests substitute fixed-rate stubs.
type Quoter interface {
	ExactInput(snap *pool.Snapshot, tokenIn token.Key, amountIn math.LegacyDec) (quote.Result, error)
}

// OfflineQuoter adapts the quote package to the Quoter interface.
type OfflineQuoter struct{}

func (OfflineQuoter) ExactInput(snap *pool.Snapshot, tokenIn token.Key, amountIn math.LegacyDec) (quote.Result, error) {
	return quote.ExactInput(snap, tokenIn, amountIn)
}

// Opportunity is a simulated circular trade, all amounts denominated in the
// base token.
type Opportunity struct {
	Path              Path
	Snapshots         []*pool.Snapshot
	InputAmount       math.LegacyDec
	ExpectedOut       math.LegacyDec
	GrossProfit       math.LegacyDec
	FeeAdjustedProfit math.LegacyDec
	ProfitPercent     math.LegacyDec
	PriceImpacts      []math.LegacyDec
	DetectedAt        time.Time
}

// feeHaircut approximates per-hop on-chain cost as a 2% multiplicative cut
// on gross profit. Subtracting gas-denominated fees from a profit in the
// preferred token would need a conversion rate through the pool cache; until
// that exists this stays a documented approximation.
var feeHaircut = math.LegacyMustNewDecFromStr("0.98")

// Simulate chains the quoter along the path, feeding each hop's output into
// the next hop's input, and derives profit figures.
func Simulate(q Quoter, pools []*pool.Snapshot, p Path, input math.LegacyDec) (*Opportunity, error) {
	snaps := make([]*pool.Snapshot, p.Hops())
	impacts := make([]math.LegacyDec, p.Hops())

	amount := input
	for i := 0; i < p.Hops(); i++ {
		snap := pools[p.Pools[i]]
		res, err := q.ExactInput(snap, p.Tokens[i], amount)
		if err != nil {
			return nil, err
		}
		snaps[i] = snap
		impacts[i] = res.PriceImpactPercent
		amount = res.AmountOut
	}

	gross := amount.Sub(input)
	net := gross
	if gross.IsPositive() {
		net = gross.Mul(feeHaircut)
	}
	pct := math.LegacyZeroDec()
	if input.IsPositive() {
		pct = net.Quo(input).Mul(math.LegacyNewDec(100))
	}

	return &Opportunity{
		Path:              p,
		Snapshots:         snaps,
		InputAmount:       input,
		ExpectedOut:       amount,
		GrossProfit:       gross,
		FeeAdjustedProfit: net,
		ProfitPercent:     pct,
		PriceImpacts:      impacts,
		DetectedAt:        time.Now(),
	}, nil
}

// FilterAndRank drops opportunities with non-positive net profit or profit
// percent below minProfitPct, then sorts by descending profit percent, ties
// broken by fewer hops, then by earliest detection.
func FilterAndRank(opps []*Opportunity, minProfitPct math.LegacyDec) []*Opportunity {
	var kept []*Opportunity
	for _, o := range opps {
		if !o.FeeAdjustedProfit.IsPositive() {
			continue
		}
		if o.ProfitPercent.LT(minProfitPct) {
			continue
		}
		kept = append(kept, o)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if !kept[i].ProfitPercent.Equal(kept[j].ProfitPercent) {
			return kept[i].ProfitPercent.GT(kept[j].ProfitPercent)
		}
		if kept[i].Path.Hops() != kept[j].Path.Hops() {
			return kept[i].Path.Hops() < kept[j].Path.Hops()
		}
		return kept[i].DetectedAt.Before(kept[j].DetectedAt)
	})
	return kept
}
