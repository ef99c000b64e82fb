// Package config loads the agent configuration from environment variables.
// Configuration is immutable after Load; the engine and executors hold it by
// value and never mutate it.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"cosmossdk.io/math"

	"github.com/galaswap/agent/pkg/agenterr"
)

// ErrMissingSecret distinguishes an absent required secret from other config
// failures so main can exit with the dedicated code.
var ErrMissingSecret = agenterr.ErrConfig.Wrap("missing required secret")

// Config holds all agent configuration.
type Config struct {
	// Token selection
	PreferredTokenKey  string
	PreferredTokenName string
	GalaTokenKey       string
	MinGalaBalance     math.LegacyDec

	// Rebalancing
	TradeInterval      time.Duration
	MaxSlippagePercent math.LegacyDec
	TradeAmountPercent math.LegacyDec
	EnableTrading      bool
	InterTradeDelay    time.Duration
	TransactionTimeout time.Duration

	// Arbitrage
	EnableArbitrage        bool
	ArbitrageCheckInterval time.Duration
	ArbitrageMinProfitPct  math.LegacyDec
	ArbitrageMaxTradeSize  math.LegacyDec
	ArbitrageMaxHops       int
	ArbitrageMinLiquidity  math.LegacyDec
	PoolCacheTTL           time.Duration

	// Identity
	WalletAddress string
	PrivateKey    string

	// Endpoints
	GatewayURL            string
	DexContractBasePath   string
	TokenContractBasePath string
	DexBackendURL         string
	BundlerURL            string
	BundlingBasePath      string

	// Control surface
	Port int

	// Catalog files
	TokenFile string
	PoolFile  string

	// History cap shared by trade and opportunity histories.
	HistoryLimit int
}

// Load reads configuration from the environment, applying documented defaults.
func Load() (*Config, error) {
	cfg := &Config{
		PreferredTokenKey:  getEnv("PREFERRED_TOKEN_KEY", "GALA|Unit|none|none"),
		PreferredTokenName: getEnv("PREFERRED_TOKEN_NAME", "$GALA"),
		GalaTokenKey:       getEnv("GALA_TOKEN_KEY", "GALA|Unit|none|none"),
		MinGalaBalance:     getEnvDec("MINIMUM_GALA_BALANCE", "100"),

		TradeInterval:      getEnvMillis("TRADE_INTERVAL_MS", 60000),
		MaxSlippagePercent: getEnvDec("MAX_SLIPPAGE", "5"),
		TradeAmountPercent: getEnvDec("TRADE_AMOUNT_PERCENTAGE", "10"),
		EnableTrading:      getEnvBool("ENABLE_TRADING", false),
		InterTradeDelay:    getEnvMillis("INTER_TRADE_DELAY_MS", 5000),
		TransactionTimeout: getEnvMillis("TRANSACTION_TIMEOUT_MS", 600000),

		EnableArbitrage:        getEnvBool("ENABLE_ARBITRAGE", false),
		ArbitrageCheckInterval: getEnvMillis("ARBITRAGE_CHECK_INTERVAL_MS", 120000),
		ArbitrageMinProfitPct:  getEnvDec("ARBITRAGE_MIN_PROFIT_PERCENT", "1.0"),
		ArbitrageMaxTradeSize:  getEnvDec("ARBITRAGE_MAX_TRADE_SIZE", "100"),
		ArbitrageMaxHops:       getEnvInt("ARBITRAGE_MAX_HOPS", 3),
		ArbitrageMinLiquidity:  getEnvDec("ARBITRAGE_MIN_LIQUIDITY", "1000"),
		PoolCacheTTL:           getEnvMillis("ARBITRAGE_POOL_CACHE_TTL", 60000),

		WalletAddress: getEnv("WALLET_ADDRESS", ""),
		PrivateKey:    getEnv("GALACHAIN_PRIVATE_KEY", ""),

		GatewayURL:            getEnv("GSWAP_GATEWAY_URL", "https://gateway-mainnet.galachain.com/api"),
		DexContractBasePath:   getEnv("GSWAP_DEX_CONTRACT_BASE_PATH", "/asset/dexv3-contract"),
		TokenContractBasePath: getEnv("GSWAP_TOKEN_CONTRACT_BASE_PATH", "/asset/token-contract"),
		DexBackendURL:         getEnv("GSWAP_DEX_BACKEND_URL", "https://dex-backend-prod1.defi.gala.com"),
		BundlerURL:            getEnv("GSWAP_BUNDLER_URL", "https://bundle-backend-prod1.defi.gala.com"),
		BundlingBasePath:      getEnv("GSWAP_BUNDLING_BASE_PATH", "/bundle"),

		Port: getEnvInt("PORT", 3000),

		TokenFile: getEnv("TOKEN_FILE", "tokens.csv"),
		PoolFile:  getEnv("POOL_FILE", "pools.csv"),

		HistoryLimit: getEnvInt("HISTORY_LIMIT", 1000),
	}
	return cfg, nil
}

// Validate checks the loaded configuration. Missing required secrets return
// ErrMissingSecret; all other failures are plain config errors.
func (c *Config) Validate() error {
	if c.WalletAddress == "" {
		return agenterr.ErrConfig.Wrap("WALLET_ADDRESS is required")
	}
	if !strings.HasPrefix(c.WalletAddress, "eth|") && !strings.HasPrefix(c.WalletAddress, "client|") {
		return agenterr.ErrConfig.Wrapf("WALLET_ADDRESS must be eth|<hex> or client|<id>, got %q", c.WalletAddress)
	}
	if c.EnableTrading && c.PrivateKey == "" {
		return ErrMissingSecret
	}
	if c.TradeInterval <= 0 {
		return agenterr.ErrConfig.Wrap("TRADE_INTERVAL_MS must be positive")
	}
	if c.ArbitrageCheckInterval <= 0 {
		return agenterr.ErrConfig.Wrap("ARBITRAGE_CHECK_INTERVAL_MS must be positive")
	}
	if c.ArbitrageMaxHops < 2 || c.ArbitrageMaxHops > 4 {
		return agenterr.ErrConfig.Wrapf("ARBITRAGE_MAX_HOPS must be 2..4, got %d", c.ArbitrageMaxHops)
	}
	if c.MaxSlippagePercent.IsNegative() || c.MaxSlippagePercent.GTE(hundred) {
		return agenterr.ErrConfig.Wrapf("MAX_SLIPPAGE must be in [0,100), got %s", c.MaxSlippagePercent)
	}
	if c.TradeAmountPercent.IsNegative() || c.TradeAmountPercent.GT(hundred) {
		return agenterr.ErrConfig.Wrapf("TRADE_AMOUNT_PERCENTAGE must be in [0,100], got %s", c.TradeAmountPercent)
	}
	if c.HistoryLimit <= 0 {
		return agenterr.ErrConfig.Wrap("HISTORY_LIMIT must be positive")
	}
	return nil
}

var hundred = math.LegacyNewDec(100)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback int64) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return time.Duration(fallback) * time.Millisecond
}

func getEnvDec(key, fallback string) math.LegacyDec {
	if v := os.Getenv(key); v != "" {
		if parsed, err := math.LegacyNewDecFromStr(v); err == nil {
			return parsed
		}
	}
	return math.LegacyMustNewDecFromStr(fallback)
}
