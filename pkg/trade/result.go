// Package trade executes swaps against the DEX: direct single-pool swaps,
// two-hop routed fallbacks, multi-hop arbitrage cycles, and serial intent
// batches. Failures are always returned inside a non-success Result; nothing
// panics across the public boundary.
package trade

import (
	"sync"
	"time"

	"cosmossdk.io/math"

	"github.com/galaswap/agent/pkg/balance"
	"github.com/galaswap/agent/pkg/token"
)

// Result is one trade outcome, appended to the shared history.
type Result struct {
	Success   bool           `json:"success"`
	Source    token.Key      `json:"source"`
	Target    token.Key      `json:"target"`
	AmountIn  math.LegacyDec `json:"amountIn"`
	AmountOut math.LegacyDec `json:"amountOut"`
	TxID      string         `json:"txId,omitempty"`
	Error     string         `json:"error,omitempty"`
	Reason    balance.Reason `json:"reason"`
	Timestamp time.Time      `json:"timestamp"`
}

// History is a cap-bounded append-only trade log safe for concurrent use by
// the two scheduler loops.
type History struct {
	mu    sync.Mutex
	items []Result
	limit int
}

// NewHistory builds a history with the given cap.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 1000
	}
	return &History{limit: limit}
}

// Add appends a result, evicting the oldest entry past the cap.
func (h *History) Add(r Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, r)
	if len(h.items) > h.limit {
		h.items = h.items[len(h.items)-h.limit:]
	}
}

// Recent returns up to n most recent results, newest last.
func (h *History) Recent(n int) []Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.items) {
		n = len(h.items)
	}
	out := make([]Result, n)
	copy(out, h.items[len(h.items)-n:])
	return out
}

// SuccessRate is the fraction of recorded trades that succeeded.
func (h *History) SuccessRate() math.LegacyDec {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.items) == 0 {
		return math.LegacyZeroDec()
	}
	succeeded := 0
	for _, r := range h.items {
		if r.Success {
			succeeded++
		}
	}
	return math.LegacyNewDec(int64(succeeded)).Quo(math.LegacyNewDec(int64(len(h.items))))
}

// Volume sums the input amounts of successful trades.
func (h *History) Volume() math.LegacyDec {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := math.LegacyZeroDec()
	for _, r := range h.items {
		if r.Success {
			total = total.Add(r.AmountIn)
		}
	}
	return total
}

// LastTradeTime reports the timestamp of the most recent recorded trade.
func (h *History) LastTradeTime() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.items) == 0 {
		return time.Time{}
	}
	return h.items[len(h.items)-1].Timestamp
}
