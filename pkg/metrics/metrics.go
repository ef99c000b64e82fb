// Package metrics provides Prometheus metrics for the trading agent.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TradesTotal counts executed trades by outcome and reason.
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_trades_total",
			Help: "Executed trades by outcome and reason",
		},
		[]string{"outcome", "reason"}, // outcome: success, failed; reason: refill_gas, dca, excess_gas, arbitrage
	)

	// TradeVolume accumulates input amounts of successful trades, by source symbol.
	TradeVolume = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_trade_volume_total",
			Help: "Input volume of successful trades by source token",
		},
		[]string{"token"},
	)

	// SwapLatency observes wall time from submission to terminal notification.
	SwapLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_swap_latency_seconds",
			Help:    "Swap submission to settlement latency",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	// OpportunitiesDetected counts arbitrage opportunities surviving the
	// profitability filter.
	OpportunitiesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_arbitrage_opportunities_total",
			Help: "Arbitrage opportunities detected",
		},
	)

	// ArbitrageExecutions counts arbitrage executions by outcome.
	ArbitrageExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_arbitrage_executions_total",
			Help: "Arbitrage executions by outcome",
		},
		[]string{"outcome"},
	)

	// PoolCacheLookups counts snapshot cache lookups by result.
	PoolCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_pool_cache_lookups_total",
			Help: "Pool snapshot cache lookups by result",
		},
		[]string{"result"}, // hit, miss, error
	)

	// LoopTickDuration observes tick durations per loop.
	LoopTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_loop_tick_seconds",
			Help:    "Duration of scheduler loop ticks",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"loop"}, // rebalance, arbitrage
	)

	// GasBalance tracks the last observed gas-token balance.
	GasBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_gas_balance",
			Help: "Last observed gas token balance",
		},
	)

	// PreferredBalance tracks the last observed preferred-token balance.
	PreferredBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_preferred_balance",
			Help: "Last observed preferred token balance",
		},
	)
)

// Timer measures elapsed time for histogram observations.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Seconds returns the elapsed time in seconds.
func (t *Timer) Seconds() float64 {
	return time.Since(t.start).Seconds()
}
