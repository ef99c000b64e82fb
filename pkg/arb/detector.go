package arb

import (
	"context"
	"sync"
	"time"

	"cosmossdk.io/math"
	log "github.com/sirupsen/logrus"

	"github.com/galaswap/agent/pkg/metrics"
	"github.com/galaswap/agent/pkg/pool"
	"github.com/galaswap/agent/pkg/token"
)

// ExecutionRecord is one attempted arbitrage execution.
type ExecutionRecord struct {
	Opportunity    *Opportunity   `json:"opportunity"`
	Success        bool           `json:"success"`
	ActualOut      math.LegacyDec `json:"actualOut"`
	RealizedProfit math.LegacyDec `json:"realizedProfit"`
	RealizedPct    math.LegacyDec `json:"realizedPct"`
	TxIDs          []string       `json:"txIds,omitempty"`
	Error          string         `json:"error,omitempty"`
	ExecutedAt     time.Time      `json:"executedAt"`
}

// Stats summarizes detection and execution history.
type Stats struct {
	TotalDetected    int            `json:"totalDetected"`
	TotalExecuted    int            `json:"totalExecuted"`
	SuccessRate      math.LegacyDec `json:"successRate"`
	RealizedProfit   math.LegacyDec `json:"realizedProfit"`
	AvgRealizedPct   math.LegacyDec `json:"avgRealizedPct"`
	LastScanDuration time.Duration  `json:"lastScanDuration"`
}

// Config holds the detector's scan parameters.
type Config struct {
	BaseToken    token.Key
	MaxHops      int
	TradeSize    math.LegacyDec
	MinProfitPct math.LegacyDec
	MinLiquidity math.LegacyDec
	HistoryLimit int
}

// Detector orchestrates a scan: refresh pool snapshots, enumerate cycles
// from the base token, simulate each, and keep the profitable remainder.
// Detection and execution histories are cap-bounded append-only lists safe
// for concurrent use.
type Detector struct {
	cfg      Config
	cache    *pool.Cache
	registry *token.Registry
	quoter   Quoter

	mu            sync.Mutex
	detected      []*Opportunity
	executions    []ExecutionRecord
	totalDetected int
	lastScan      time.Time
	lastScanTook  time.Duration
}

// NewDetector builds a detector over the snapshot cache and registry.
func NewDetector(cfg Config, cache *pool.Cache, registry *token.Registry, quoter Quoter) *Detector {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 1000
	}
	return &Detector{
		cfg:      cfg,
		cache:    cache,
		registry: registry,
		quoter:   quoter,
	}
}

// Scan runs one detection pass and returns surviving opportunities, best
// first. Individual pool fetch failures are logged and skipped; the scan
// aborts only on context cancellation.
func (d *Detector) Scan(ctx context.Context) ([]*Opportunity, error) {
	start := time.Now()

	for _, spec := range d.registry.PoolsAboveLiquidity(d.cfg.MinLiquidity) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if _, err := d.cache.Get(ctx, spec.Token0, spec.Token1, spec.Fee); err != nil {
			log.WithFields(log.Fields{
				"token0": spec.Token0.Symbol(),
				"token1": spec.Token1.Symbol(),
				"fee":    spec.Fee,
			}).WithError(err).Warn("Skipping pool, snapshot fetch failed")
		}
	}

	snapshots := d.cache.SnapshotAll()
	paths := FindCycles(d.cfg.BaseToken, d.cfg.MaxHops, snapshots, d.cfg.MinLiquidity)

	var opps []*Opportunity
	for _, p := range paths {
		opp, err := Simulate(d.quoter, snapshots, p, d.cfg.TradeSize)
		if err != nil {
			log.WithField("hops", p.Hops()).WithError(err).Debug("Path simulation failed")
			continue
		}
		opps = append(opps, opp)
	}
	ranked := FilterAndRank(opps, d.cfg.MinProfitPct)

	d.mu.Lock()
	for _, o := range ranked {
		d.detected = appendCapped(d.detected, o, d.cfg.HistoryLimit)
	}
	d.totalDetected += len(ranked)
	d.lastScan = time.Now()
	d.lastScanTook = time.Since(start)
	d.mu.Unlock()

	metrics.OpportunitiesDetected.Add(float64(len(ranked)))
	log.WithFields(log.Fields{
		"pools":         len(snapshots),
		"paths":         len(paths),
		"opportunities": len(ranked),
		"took":          time.Since(start),
	}).Info("Arbitrage scan complete")
	return ranked, nil
}

// RecordExecution appends an execution outcome to history.
func (d *Detector) RecordExecution(rec ExecutionRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.executions = appendCapped(d.executions, rec, d.cfg.HistoryLimit)
}

// RecentDetections returns up to n most recent detected opportunities,
// newest last.
func (d *Detector) RecentDetections(n int) []*Opportunity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return tail(d.detected, n)
}

// RecentExecutions returns up to n most recent execution records, newest
// last.
func (d *Detector) RecentExecutions(n int) []ExecutionRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return tail(d.executions, n)
}

// LastScan reports when the most recent scan finished.
func (d *Detector) LastScan() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastScan
}

// Stats computes summary statistics over the recorded history.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Stats{
		TotalDetected:    d.totalDetected,
		TotalExecuted:    len(d.executions),
		SuccessRate:      math.LegacyZeroDec(),
		RealizedProfit:   math.LegacyZeroDec(),
		AvgRealizedPct:   math.LegacyZeroDec(),
		LastScanDuration: d.lastScanTook,
	}
	if len(d.executions) == 0 {
		return s
	}

	succeeded := 0
	pctSum := math.LegacyZeroDec()
	for _, rec := range d.executions {
		if !rec.Success {
			continue
		}
		succeeded++
		s.RealizedProfit = s.RealizedProfit.Add(rec.RealizedProfit)
		pctSum = pctSum.Add(rec.RealizedPct)
	}
	s.SuccessRate = math.LegacyNewDec(int64(succeeded)).Quo(math.LegacyNewDec(int64(len(d.executions))))
	if succeeded > 0 {
		s.AvgRealizedPct = pctSum.Quo(math.LegacyNewDec(int64(succeeded)))
	}
	return s
}

func appendCapped[T any](list []T, item T, limit int) []T {
	list = append(list, item)
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}

func tail[T any](list []T, n int) []T {
	if n <= 0 || n > len(list) {
		n = len(list)
	}
	out := make([]T, n)
	copy(out, list[len(list)-n:])
	return out
}
