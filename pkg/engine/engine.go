// Package engine owns the agent lifecycle: the periodic rebalance loop, the
// periodic arbitrage loop, and the observable status snapshot the control
// surface serves.
package engine

import (
	"context"
	"sync"
	"time"

	"cosmossdk.io/math"
	log "github.com/sirupsen/logrus"

	"github.com/galaswap/agent/pkg/arb"
	"github.com/galaswap/agent/pkg/balance"
	"github.com/galaswap/agent/pkg/config"
	"github.com/galaswap/agent/pkg/metrics"
	"github.com/galaswap/agent/pkg/pool"
	"github.com/galaswap/agent/pkg/stream"
	"github.com/galaswap/agent/pkg/token"
	"github.com/galaswap/agent/pkg/trade"
)

// Engine wires the balance manager, executor, and detector under two
// independent periodic loops. The loops share no mutable state except the
// append-only histories.
type Engine struct {
	cfg       *config.Config
	preferred token.Key
	gas       token.Key

	balances *balance.Manager
	executor *trade.Executor
	detector *arb.Detector
	cache    *pool.Cache
	notifier *stream.Notifier
	history  *trade.History

	mu            sync.Mutex
	running       bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	startedAt     time.Time
	lastBalance   *balance.Summary
	lastBalanceAt time.Time
}

// Deps collects the engine's collaborators.
type Deps struct {
	Balances *balance.Manager
	Executor *trade.Executor
	Detector *arb.Detector
	Cache    *pool.Cache
	// Notifier may be nil in dry-run mode.
	Notifier *stream.Notifier
	History  *trade.History
}

// New builds a stopped engine.
func New(cfg *config.Config, preferred, gas token.Key, deps Deps) *Engine {
	return &Engine{
		cfg:       cfg,
		preferred: preferred,
		gas:       gas,
		balances:  deps.Balances,
		executor:  deps.Executor,
		detector:  deps.Detector,
		cache:     deps.Cache,
		notifier:  deps.Notifier,
		history:   deps.History,
	}
}

// Start launches the loops. Starting a running engine is a benign no-op.
// Both loops execute their first tick immediately.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		log.Info("Engine already running, start ignored")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	if e.notifier != nil {
		if err := e.notifier.Open(ctx); err != nil {
			cancel()
			return err
		}
	}

	e.cancel = cancel
	e.running = true
	e.startedAt = time.Now()

	e.wg.Add(1)
	go e.rebalanceLoop(ctx)

	if e.cfg.EnableArbitrage {
		e.wg.Add(1)
		go e.arbitrageLoop(ctx)
	}

	log.WithFields(log.Fields{
		"tradeInterval": e.cfg.TradeInterval,
		"arbitrage":     e.cfg.EnableArbitrage,
		"dryRun":        !e.cfg.EnableTrading,
	}).Info("Engine started")
	return nil
}

// Stop cancels both loops at their next suspension point and waits for them
// to return. Stopping a stopped engine is a benign no-op. An in-flight swap
// continues on-chain regardless.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		log.Info("Engine not running, stop ignored")
		return
	}
	cancel := e.cancel
	e.running = false
	e.mu.Unlock()

	cancel()
	e.wg.Wait()
	if e.notifier != nil {
		e.notifier.Close()
	}
	log.Info("Engine stopped")
}

// Running reports whether the loops are live.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) rebalanceLoop(ctx context.Context) {
	defer e.wg.Done()

	e.rebalanceTick(ctx)
	ticker := time.NewTicker(e.cfg.TradeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Ticks run serially within the loop; a tick that outlasts the
			// interval defers the next one instead of overlapping it.
			e.rebalanceTick(ctx)
		}
	}
}

func (e *Engine) rebalanceTick(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		metrics.LoopTickDuration.WithLabelValues("rebalance").Observe(timer.Seconds())
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Rebalance tick panicked, loop continues")
		}
	}()

	summary, err := e.balances.Fetch(ctx)
	if err != nil {
		log.WithError(err).Warn("Balance fetch failed, keeping last known balance")
		return
	}
	e.recordBalance(summary)

	intents := e.balances.DeriveIntents(summary)
	if len(intents) == 0 {
		log.Info("No trades needed this cycle")
		return
	}

	results := e.executor.ExecuteBatch(ctx, intents)
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	log.WithFields(log.Fields{
		"intents":   len(intents),
		"executed":  len(results),
		"succeeded": succeeded,
	}).Info("Rebalance tick complete")

	if refreshed, err := e.balances.Fetch(ctx); err == nil {
		e.recordBalance(refreshed)
	}
}

func (e *Engine) arbitrageLoop(ctx context.Context) {
	defer e.wg.Done()

	e.arbitrageTick(ctx)
	ticker := time.NewTicker(e.cfg.ArbitrageCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.arbitrageTick(ctx)
		}
	}
}

func (e *Engine) arbitrageTick(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		metrics.LoopTickDuration.WithLabelValues("arbitrage").Observe(timer.Seconds())
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Arbitrage tick panicked, loop continues")
		}
	}()

	opps, err := e.detector.Scan(ctx)
	if err != nil {
		log.WithError(err).Warn("Arbitrage scan failed")
		return
	}
	if len(opps) > 0 {
		top := opps[0]
		log.WithFields(log.Fields{
			"hops":      top.Path.Hops(),
			"profitPct": top.ProfitPercent.String(),
		}).Info("Executing top arbitrage opportunity")
		rec := e.executor.ExecuteArbitrage(ctx, top)
		if ctx.Err() == nil {
			e.detector.RecordExecution(rec)
		}
	}

	e.cache.EvictExpired()
}

func (e *Engine) recordBalance(summary *balance.Summary) {
	e.mu.Lock()
	e.lastBalance = summary
	e.lastBalanceAt = time.Now()
	e.mu.Unlock()

	if f, err := summary.Gas.Float64(); err == nil {
		metrics.GasBalance.Set(f)
	}
	if f, err := summary.Preferred.Float64(); err == nil {
		metrics.PreferredBalance.Set(f)
	}
}

// ConfigEcho is the non-secret configuration slice surfaced over HTTP.
type ConfigEcho struct {
	PreferredToken        string         `json:"preferredToken"`
	PreferredTokenName    string         `json:"preferredTokenName"`
	GasToken              string         `json:"gasToken"`
	MinGasBalance         math.LegacyDec `json:"minGasBalance"`
	TradeIntervalMs       int64          `json:"tradeIntervalMs"`
	MaxSlippagePercent    math.LegacyDec `json:"maxSlippagePercent"`
	TradeAmountPercent    math.LegacyDec `json:"tradeAmountPercent"`
	EnableTrading         bool           `json:"enableTrading"`
	EnableArbitrage       bool           `json:"enableArbitrage"`
	ArbitrageIntervalMs   int64          `json:"arbitrageIntervalMs"`
	ArbitrageMinProfitPct math.LegacyDec `json:"arbitrageMinProfitPct"`
	ArbitrageMaxTradeSize math.LegacyDec `json:"arbitrageMaxTradeSize"`
	ArbitrageMaxHops      int            `json:"arbitrageMaxHops"`
	WalletAddress         string         `json:"walletAddress"`
}

// Status is the engine's observable state. Building it never touches the
// transport.
type Status struct {
	Running             bool                  `json:"running"`
	Config              ConfigEcho            `json:"config"`
	UptimeSeconds       float64               `json:"uptimeSeconds"`
	LastBalance         *balance.Summary      `json:"lastBalance,omitempty"`
	LastBalanceAt       time.Time             `json:"lastBalanceAt"`
	LastTradeAt         time.Time             `json:"lastTradeAt"`
	LastArbScanAt       time.Time             `json:"lastArbScanAt"`
	SuccessRate         math.LegacyDec        `json:"successRate"`
	TradeVolume         math.LegacyDec        `json:"tradeVolume"`
	RecentTrades        []trade.Result        `json:"recentTrades"`
	RecentOpportunities []*arb.Opportunity    `json:"recentOpportunities"`
	RecentExecutions    []arb.ExecutionRecord `json:"recentExecutions"`
	ArbitrageStats      arb.Stats             `json:"arbitrageStats"`
}

const statusHistoryWindow = 50

// Status assembles the snapshot from in-memory state only.
func (e *Engine) Status() Status {
	e.mu.Lock()
	running := e.running
	startedAt := e.startedAt
	lastBalance := e.lastBalance
	lastBalanceAt := e.lastBalanceAt
	e.mu.Unlock()

	uptime := 0.0
	if running {
		uptime = time.Since(startedAt).Seconds()
	}

	return Status{
		Running: running,
		Config: ConfigEcho{
			PreferredToken:        e.preferred.String(),
			PreferredTokenName:    e.cfg.PreferredTokenName,
			GasToken:              e.gas.String(),
			MinGasBalance:         e.cfg.MinGalaBalance,
			TradeIntervalMs:       e.cfg.TradeInterval.Milliseconds(),
			MaxSlippagePercent:    e.cfg.MaxSlippagePercent,
			TradeAmountPercent:    e.cfg.TradeAmountPercent,
			EnableTrading:         e.cfg.EnableTrading,
			EnableArbitrage:       e.cfg.EnableArbitrage,
			ArbitrageIntervalMs:   e.cfg.ArbitrageCheckInterval.Milliseconds(),
			ArbitrageMinProfitPct: e.cfg.ArbitrageMinProfitPct,
			ArbitrageMaxTradeSize: e.cfg.ArbitrageMaxTradeSize,
			ArbitrageMaxHops:      e.cfg.ArbitrageMaxHops,
			WalletAddress:         e.cfg.WalletAddress,
		},
		UptimeSeconds:       uptime,
		LastBalance:         lastBalance,
		LastBalanceAt:       lastBalanceAt,
		LastTradeAt:         e.history.LastTradeTime(),
		LastArbScanAt:       e.detector.LastScan(),
		SuccessRate:         e.history.SuccessRate(),
		TradeVolume:         e.history.Volume(),
		RecentTrades:        e.history.Recent(statusHistoryWindow),
		RecentOpportunities: e.detector.RecentDetections(statusHistoryWindow),
		RecentExecutions:    e.detector.RecentExecutions(statusHistoryWindow),
		ArbitrageStats:      e.detector.Stats(),
	}
}
