// agentd is the autonomous GalaSwap trading agent: a scheduled rebalancer
// and arbitrage scanner with an HTTP control surface.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/galaswap/agent/pkg/api"
	"github.com/galaswap/agent/pkg/arb"
	"github.com/galaswap/agent/pkg/balance"
	"github.com/galaswap/agent/pkg/config"
	"github.com/galaswap/agent/pkg/engine"
	"github.com/galaswap/agent/pkg/gateway"
	"github.com/galaswap/agent/pkg/pool"
	"github.com/galaswap/agent/pkg/stream"
	"github.com/galaswap/agent/pkg/token"
	"github.com/galaswap/agent/pkg/trade"
)

const (
	exitConfigError   = 1
	exitMissingSecret = 2
)

func main() {
	root := &cobra.Command{
		Use:   "agentd",
		Short: "GalaSwap autonomous trading agent",
		Long: `agentd rebalances a GalaChain wallet toward a preferred token on a
schedule, maintains a gas reserve, and scans cached pool state for circular
arbitrage. An HTTP control surface exposes status and start/stop.`,
		RunE: run,
	}
	root.SilenceUsage = true

	if err := root.Execute(); err != nil {
		if errors.Is(err, config.ErrMissingSecret) {
			log.Error("GALACHAIN_PRIVATE_KEY is required when trading is enabled")
			os.Exit(exitMissingSecret)
		}
		log.WithError(err).Error("Startup failed")
		os.Exit(exitConfigError)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := godotenv.Load(); err == nil {
		log.Info("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	preferred, err := token.ParseKey(cfg.PreferredTokenKey)
	if err != nil {
		return err
	}
	gas, err := token.ParseKey(cfg.GalaTokenKey)
	if err != nil {
		return err
	}

	registry, err := token.LoadRegistry(cfg.TokenFile, cfg.PoolFile)
	if err != nil {
		return err
	}

	var signer gateway.Signer
	if cfg.EnableTrading {
		signer, err = gateway.NewPrivateKeySigner(cfg.PrivateKey)
		if err != nil {
			return err
		}
		if err := gateway.VerifyWalletAddress(signer, cfg.WalletAddress); err != nil {
			return err
		}
	}
	client := gateway.NewClient(cfg, signer)

	var notifier *stream.Notifier
	var awaiter trade.Awaiter
	if cfg.EnableTrading {
		notifier = stream.NewNotifier(cfg.BundlerURL)
		awaiter = notifier
	}

	history := trade.NewHistory(cfg.HistoryLimit)
	executor := trade.NewExecutor(trade.Config{
		EnableTrading:   cfg.EnableTrading,
		MaxSlippagePct:  cfg.MaxSlippagePercent,
		InterTradeDelay: cfg.InterTradeDelay,
		TxTimeout:       cfg.TransactionTimeout,
		GasToken:        gas,
		Intermediates:   []token.Key{gas, token.KeyFromSymbol("GUSDC"), token.KeyFromSymbol("GUSDT")},
	}, client, awaiter, registry, history)

	balances := balance.NewManager(client, cfg.WalletAddress, preferred, gas, cfg.MinGalaBalance, cfg.TradeAmountPercent)

	cache := pool.NewCache(client, cfg.PoolCacheTTL)
	detector := arb.NewDetector(arb.Config{
		BaseToken:    preferred,
		MaxHops:      cfg.ArbitrageMaxHops,
		TradeSize:    cfg.ArbitrageMaxTradeSize,
		MinProfitPct: cfg.ArbitrageMinProfitPct,
		MinLiquidity: cfg.ArbitrageMinLiquidity,
		HistoryLimit: cfg.HistoryLimit,
	}, cache, registry, arb.OfflineQuoter{})

	eng := engine.New(cfg, preferred, gas, engine.Deps{
		Balances: balances,
		Executor: executor,
		Detector: detector,
		Cache:    cache,
		Notifier: notifier,
		History:  history,
	})

	log.WithFields(log.Fields{
		"wallet":    cfg.WalletAddress,
		"preferred": preferred.Symbol(),
		"dryRun":    !cfg.EnableTrading,
		"arbitrage": cfg.EnableArbitrage,
	}).Info("Starting agent")

	if err := eng.Start(); err != nil {
		return err
	}

	server := api.NewServer(eng, cfg.Port)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("Control surface failed")
		}
	}

	eng.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Control surface shutdown incomplete")
	}
	log.Info("Agent stopped")
	return nil
}
