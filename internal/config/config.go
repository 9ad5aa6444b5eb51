// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every tunable named in the external interfaces and
// concurrency/resource sections of the engine specification.
type Config struct {
	// Ops HTTP surface
	Port    int
	DevMode bool

	// Database
	DatabasePath string

	// Broker (C1)
	BrokerBaseURL              string
	BrokerRateIntervalSeconds  int
	BrokerCacheTTLSeconds      int
	EnableSSLVerification      bool

	// Market stream (C2/C3)
	MarketStreamSymbols         []string
	MarketStreamIntervalSeconds float64
	MarketStreamRetentionSeconds int
	PriceCacheTTLSeconds        int
	PriceHistorySeconds         int

	// Decision pipeline (C5)
	OracleRequestTimeoutSeconds int
	OracleMaxRetries            int
	OracleBackoffBaseSeconds    float64

	// Trade executor (C6)
	CommissionRate float64
	MinCommission  float64

	// Asset snapshots / broadcaster (C7/C8)
	AssetSnapshotRetentionDays     int
	BroadcastSnapshotIntervalSecs int

	LogLevel string
}

// Load reads configuration from the environment, applying a ".env" file
// first if one is present in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:    getEnvAsInt("HTTP_PORT", 8090),
		DevMode: getEnvAsBool("DEV_MODE", false),

		DatabasePath: getEnv("DATABASE_PATH", "./data/engine.db"),

		BrokerBaseURL:             getEnv("BROKER_BASE_URL", "https://api.binance.com"),
		BrokerRateIntervalSeconds: getEnvAsInt("BROKER_RATE_INTERVAL_SECONDS", 10),
		BrokerCacheTTLSeconds:     getEnvAsInt("BROKER_CACHE_TTL_SECONDS", 5),
		EnableSSLVerification:     getEnvAsBool("ENABLE_SSL_VERIFICATION", false),

		MarketStreamSymbols:          getEnvAsList("MARKET_STREAM_SYMBOLS", []string{"BTC", "ETH", "SOL", "BNB", "XRP", "DOGE"}),
		MarketStreamIntervalSeconds:  getEnvAsFloat("MARKET_STREAM_INTERVAL_SECONDS", 1.5),
		MarketStreamRetentionSeconds: getEnvAsInt("MARKET_STREAM_RETENTION_SECONDS", 3600),
		PriceCacheTTLSeconds:         getEnvAsInt("PRICE_CACHE_TTL_SECONDS", 30),
		PriceHistorySeconds:          getEnvAsInt("PRICE_HISTORY_SECONDS", 3600),

		OracleRequestTimeoutSeconds: getEnvAsInt("ORACLE_REQUEST_TIMEOUT_SECONDS", 30),
		OracleMaxRetries:            getEnvAsInt("ORACLE_MAX_RETRIES", 3),
		OracleBackoffBaseSeconds:    getEnvAsFloat("ORACLE_BACKOFF_BASE_SECONDS", 1.0),

		CommissionRate: getEnvAsFloat("COMMISSION_RATE", 0.001),
		MinCommission:  getEnvAsFloat("MIN_COMMISSION", 0.1),

		AssetSnapshotRetentionDays:     getEnvAsInt("ASSET_SNAPSHOT_RETENTION_DAYS", 30),
		BroadcastSnapshotIntervalSecs: getEnvAsInt("BROADCAST_SNAPSHOT_INTERVAL_SECONDS", 30),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants that must hold before the engine starts.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if len(c.MarketStreamSymbols) == 0 {
		return fmt.Errorf("MARKET_STREAM_SYMBOLS must name at least one symbol")
	}
	if c.BrokerRateIntervalSeconds < 0 {
		return fmt.Errorf("BROKER_RATE_INTERVAL_SECONDS must be non-negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
