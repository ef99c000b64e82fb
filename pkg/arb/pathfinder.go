// Package arb detects circular arbitrage opportunities: it enumerates simple
// cycles over the cached pool graph, simulates them with the offline quote
// engine, and ranks the survivors by fee-adjusted profit.
package arb

import (
	"strconv"

	"cosmossdk.io/math"

	"github.com/galaswap/agent/pkg/pool"
	"github.com/galaswap/agent/pkg/token"
)

// Path is a circular route through the pool graph. Tokens has one more
// element than Pools; the first and last token are the base. Pools holds
// indices into the snapshot slice the finder ran over, never snapshot
// references, so paths stay valid value types.
type Path struct {
	Tokens []token.Key
	Pools  []int
}

// Hops is the cycle length.
func (p Path) Hops() int {
	return len(p.Pools)
}

type edge struct {
	neighbor token.Key
	poolIdx  int
}

// FindCycles enumerates all simple cycles of length 2 up to maxHops that
// begin and end at base, over pools whose global liquidity exceeds
// minLiquidity. Cycles differing only in pool choice on a hop are distinct;
// a cycle and its reversal are the same route and are emitted once, in the
// orientation encountered first. Traversal follows the input order of pools,
// so identical inputs produce an identical candidate list.
func FindCycles(base token.Key, maxHops int, pools []*pool.Snapshot, minLiquidity math.LegacyDec) []Path {
	if maxHops < 2 {
		return nil
	}
	if maxHops > 4 {
		maxHops = 4
	}

	adjacency := make(map[token.Key][]edge)
	for i, p := range pools {
		if !p.GrossLiquidity.GT(minLiquidity) {
			continue
		}
		adjacency[p.Token0] = append(adjacency[p.Token0], edge{neighbor: p.Token1, poolIdx: i})
		adjacency[p.Token1] = append(adjacency[p.Token1], edge{neighbor: p.Token0, poolIdx: i})
	}

	var cycles []Path
	seen := make(map[string]bool)
	tokens := make([]token.Key, 1, maxHops+1)
	tokens[0] = base
	poolsUsed := make([]int, 0, maxHops)

	var walk func(current token.Key)
	walk = func(current token.Key) {
		depth := len(poolsUsed)
		for _, e := range adjacency[current] {
			if containsPool(poolsUsed, e.poolIdx) {
				continue
			}
			if e.neighbor.Equal(base) {
				// Closing hop. A cycle needs at least 2 hops.
				if depth+1 >= 2 {
					pools := appendCopyInt(poolsUsed, e.poolIdx)
					sig := cycleSignature(pools)
					if !seen[sig] {
						seen[sig] = true
						cycles = append(cycles, Path{
							Tokens: appendCopy(tokens, base),
							Pools:  pools,
						})
					}
				}
				continue
			}
			if depth+1 >= maxHops {
				// No room left for the closing hop.
				continue
			}
			if containsToken(tokens, e.neighbor) {
				continue
			}
			tokens = append(tokens, e.neighbor)
			poolsUsed = append(poolsUsed, e.poolIdx)
			walk(e.neighbor)
			tokens = tokens[:len(tokens)-1]
			poolsUsed = poolsUsed[:len(poolsUsed)-1]
		}
	}
	walk(base)

	return cycles
}

// cycleSignature is the lexicographically smaller of the pool sequence and
// its reversal, so a route and its reversal collapse to one signature.
func cycleSignature(pools []int) string {
	forward := make([]byte, 0, len(pools)*4)
	backward := make([]byte, 0, len(pools)*4)
	for i := range pools {
		forward = strconv.AppendInt(forward, int64(pools[i]), 10)
		forward = append(forward, ',')
		backward = strconv.AppendInt(backward, int64(pools[len(pools)-1-i]), 10)
		backward = append(backward, ',')
	}
	if string(backward) < string(forward) {
		return string(backward)
	}
	return string(forward)
}

func containsPool(used []int, idx int) bool {
	for _, u := range used {
		if u == idx {
			return true
		}
	}
	return false
}

func containsToken(tokens []token.Key, k token.Key) bool {
	for _, t := range tokens {
		if t.Equal(k) {
			return true
		}
	}
	return false
}

func appendCopy(tokens []token.Key, last token.Key) []token.Key {
	out := make([]token.Key, len(tokens), len(tokens)+1)
	copy(out, tokens)
	return append(out, last)
}

func appendCopyInt(used []int, last int) []int {
	out := make([]int, len(used), len(used)+1)
	copy(out, used)
	return append(out, last)
}
