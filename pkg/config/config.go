// Package config loads the process-level, environment-driven settings
// that must be known before the declarative YAML document (spec §6,
// internal/config) can even be read: which venue to trade against, in
// what mode, and where. This mirrors the teacher's split between an
// env-var bootstrap layer (pkg/config) and a richer declarative layer.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading core.
type Config struct {
	Port string

	// Binance spot venue credentials.
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceSymbols   []string
	UseMockFeed      bool

	// DryRun runs against the SimulatedBroker instead of the live venue.
	DryRun               bool
	DryRunInitialBalance float64
	DryRunFeeRate        float64 // decimal (e.g. 0.0004 = 4 bps)

	// EngineConfigPath points at the declarative YAML document
	// (internal/config.Load) describing symbols_to_trade and every
	// tunable default spec §6 enumerates.
	EngineConfigPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		BinanceTestnet:       getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceAPIKey:        os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:     os.Getenv("BINANCE_API_SECRET"),
		BinanceSymbols:       splitAndTrim(getEnv("BINANCE_SYMBOLS", "BTCUSDT,ETHUSDT")),
		UseMockFeed:          getEnv("USE_MOCK_FEED", "true") == "true",
		DryRun:               getEnv("DRY_RUN", "true") == "true",
		DryRunInitialBalance: getEnvFloat("DRY_RUN_INITIAL_BALANCE", 10000.0),
		DryRunFeeRate:        getEnvFloat("DRY_RUN_FEE_RATE", 0.0004),
		EngineConfigPath:     getEnv("ENGINE_CONFIG_PATH", "./config/engine.yaml"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
