package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (defaults to "./data")
	LogLevel string
	Port     int
	DevMode  bool
	// CacheTTLMinutes bounds how long cached analysis reports are kept.
	CacheTTLMinutes int
	// SyncPeriod is the Yahoo period string the history sync fetches, e.g. "10y".
	SyncPeriod string
	// ProxyTickers overrides the default factor proxy ETFs.
	ProxyTickers map[string]string
	Analysis     AnalysisConfig
}

// AnalysisConfig holds the knobs of the risk pipeline. Computation functions
// never read ambient state; these values are threaded into constructors at
// call time.
type AnalysisConfig struct {
	// NormalizeWeights rescales input weights to gross exposure 1 before
	// aggregation. When false, weights pass through unchanged.
	NormalizeWeights bool
	// MinObservations is the per-factor minimum of aligned monthly
	// observations for a single-factor regression. Factors below it are
	// omitted from the beta table entirely.
	MinObservations int
	// RateMinObservations gates the joint yield-curve regression; below it
	// rate analytics are omitted outright, never zero-filled.
	RateMinObservations int
	// ComplianceLookbackYears is the window used to find each factor
	// proxy's worst historical monthly loss.
	ComplianceLookbackYears int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "")
	if dataDir == "" {
		if _, err := os.Stat("../data"); err == nil {
			dataDir = "../data"
		} else {
			dataDir = "./data"
		}
	}

	cfg := &Config{
		DataDir:         dataDir,
		Port:            getEnvAsInt("PORT", 8011),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CacheTTLMinutes: getEnvAsInt("CACHE_TTL_MINUTES", 720),
		SyncPeriod:      getEnv("SYNC_PERIOD", "10y"),
		ProxyTickers: map[string]string{
			"market":   getEnv("MARKET_PROXY", "SPY"),
			"momentum": getEnv("MOMENTUM_PROXY", "MTUM"),
			"value":    getEnv("VALUE_PROXY", "VTV"),
		},
		Analysis: AnalysisConfig{
			NormalizeWeights:        getEnvAsBool("NORMALIZE_WEIGHTS", true),
			MinObservations:         getEnvAsInt("MIN_OBSERVATIONS", 12),
			RateMinObservations:     getEnvAsInt("RATE_MIN_OBSERVATIONS", 6),
			ComplianceLookbackYears: getEnvAsInt("COMPLIANCE_LOOKBACK_YEARS", 10),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.CacheTTLMinutes < 1 {
		return fmt.Errorf("CACHE_TTL_MINUTES must be at least 1, got %d", c.CacheTTLMinutes)
	}
	if c.Analysis.MinObservations < 2 {
		return fmt.Errorf("MIN_OBSERVATIONS must be at least 2, got %d", c.Analysis.MinObservations)
	}
	if c.Analysis.RateMinObservations < 2 {
		return fmt.Errorf("RATE_MIN_OBSERVATIONS must be at least 2, got %d", c.Analysis.RateMinObservations)
	}
	if c.Analysis.ComplianceLookbackYears < 1 {
		return fmt.Errorf("COMPLIANCE_LOOKBACK_YEARS must be at least 1, got %d", c.Analysis.ComplianceLookbackYears)
	}
	return nil
}

// Helper functions
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
