package arb

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galaswap/agent/pkg/pool"
	"github.com/galaswap/agent/pkg/token"
)

func snap(t0, t1 string, fee uint32, gross int64) *pool.Snapshot {
	return &pool.Snapshot{
		Token0:         token.KeyFromSymbol(t0),
		Token1:         token.KeyFromSymbol(t1),
		Fee:            fee,
		SqrtPrice:      math.LegacyOneDec(),
		Liquidity:      math.LegacyNewDec(gross),
		GrossLiquidity: math.LegacyNewDec(gross),
	}
}

func TestFindCyclesTriangleGraph(t *testing.T) {
	pools := []*pool.Snapshot{
		snap("A", "B", 500, 1000),
		snap("A", "B", 3000, 1000),
		snap("B", "C", 3000, 1000),
		snap("C", "A", 10000, 1000),
	}
	base := token.KeyFromSymbol("A")

	cycles := FindCycles(base, 3, pools, math.LegacyZeroDec())
	require.Len(t, cycles, 3)

	// One 2-cycle through the two distinct A/B pools.
	assert.Equal(t, []int{0, 1}, cycles[0].Pools)
	assert.Equal(t, 2, cycles[0].Hops())

	// One 3-cycle per choice of A/B pool; the reversed orientations are the
	// same route and are not re-emitted.
	assert.Equal(t, []int{0, 2, 3}, cycles[1].Pools)
	assert.Equal(t, []int{1, 2, 3}, cycles[2].Pools)

	for _, c := range cycles {
		assert.True(t, c.Tokens[0].Equal(base))
		assert.True(t, c.Tokens[len(c.Tokens)-1].Equal(base))
		assert.Len(t, c.Tokens, c.Hops()+1)
	}
}

func TestFindCyclesDeterministic(t *testing.T) {
	pools := []*pool.Snapshot{
		snap("A", "B", 500, 1000),
		snap("A", "B", 3000, 1000),
		snap("B", "C", 3000, 1000),
		snap("C", "A", 10000, 1000),
		snap("A", "C", 3000, 1000),
	}
	base := token.KeyFromSymbol("A")

	first := FindCycles(base, 4, pools, math.LegacyZeroDec())
	second := FindCycles(base, 4, pools, math.LegacyZeroDec())
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Pools, second[i].Pools)
	}
}

func TestFindCyclesNoTwoCycleThroughSinglePool(t *testing.T) {
	pools := []*pool.Snapshot{
		snap("A", "B", 3000, 1000),
	}
	cycles := FindCycles(token.KeyFromSymbol("A"), 3, pools, math.LegacyZeroDec())
	assert.Empty(t, cycles, "a 2-cycle needs two distinct pools")
}

func TestFindCyclesRespectsMaxHops(t *testing.T) {
	pools := []*pool.Snapshot{
		snap("A", "B", 3000, 1000),
		snap("B", "C", 3000, 1000),
		snap("C", "D", 3000, 1000),
		snap("D", "A", 3000, 1000),
	}
	base := token.KeyFromSymbol("A")

	assert.Empty(t, FindCycles(base, 3, pools, math.LegacyZeroDec()))

	four := FindCycles(base, 4, pools, math.LegacyZeroDec())
	require.Len(t, four, 1)
	assert.Equal(t, 4, four[0].Hops())
}

func TestFindCyclesLiquidityFloor(t *testing.T) {
	pools := []*pool.Snapshot{
		snap("A", "B", 500, 1000),
		snap("A", "B", 3000, 10), // below floor, unusable
	}
	cycles := FindCycles(token.KeyFromSymbol("A"), 3, pools, math.LegacyNewDec(100))
	assert.Empty(t, cycles)
}

func TestFindCyclesRejectsRepeatedIntermediate(t *testing.T) {
	// B appears once per cycle even though two B edges exist off the cycle.
	pools := []*pool.Snapshot{
		snap("A", "B", 500, 1000),
		snap("B", "C", 3000, 1000),
		snap("C", "B", 10000, 1000),
		snap("B", "A", 3000, 1000),
	}
	cycles := FindCycles(token.KeyFromSymbol("A"), 4, pools, math.LegacyZeroDec())
	for _, c := range cycles {
		seen := map[string]int{}
		for _, tok := range c.Tokens[:len(c.Tokens)-1] {
			seen[tok.String()]++
		}
		for sym, n := range seen {
			assert.Equal(t, 1, n, "token %s repeats", sym)
		}
	}
}
