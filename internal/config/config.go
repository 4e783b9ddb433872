// Package config loads runtime configuration from environment
// variables and the markets YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/efreitasn/papertrade/internal/domain"
)

// Config holds all runtime configuration for the trading backend.
type Config struct {
	Port             int
	LogLevel         string
	SQLitePath       string // empty means in-memory ledger
	MarketsPath      string // empty means built-in defaults
	SweepInterval    time.Duration
	SnapshotInterval time.Duration
	QuoteBaseURL     string
	QuoteTimeout     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
}

// Load reads configuration from environment variables, applies
// defaults, and validates values. It returns an error for any invalid
// value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	sweepInterval, err := getDuration("ORDER_SWEEP_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid ORDER_SWEEP_INTERVAL: %w", err)
	}

	snapshotInterval, err := getDuration("SNAPSHOT_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SNAPSHOT_INTERVAL: %w", err)
	}

	quoteTimeout, err := getDuration("QUOTE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid QUOTE_TIMEOUT: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:             port,
		LogLevel:         logLevel,
		SQLitePath:       getStr("SQLITE_PATH", ""),
		MarketsPath:      getStr("MARKETS_PATH", ""),
		SweepInterval:    sweepInterval,
		SnapshotInterval: snapshotInterval,
		QuoteBaseURL:     getStr("QUOTE_BASE_URL", "https://stock.xueqiu.com"),
		QuoteTimeout:     quoteTimeout,
		ReadTimeout:      readTimeout,
		WriteTimeout:     writeTimeout,
		IdleTimeout:      idleTimeout,
		ShutdownTimeout:  shutdownTimeout,
	}, nil
}

// marketsFile is the YAML shape of the markets configuration file.
type marketsFile struct {
	Markets map[string]struct {
		LotSize          int64   `yaml:"lot_size"`
		MinOrderQuantity int64   `yaml:"min_order_quantity"`
		CommissionRate   float64 `yaml:"commission_rate"`
		MinCommission    float64 `yaml:"min_commission"` // dollars
	} `yaml:"markets"`
}

// LoadMarkets reads market configurations from a YAML file, or returns
// the built-in defaults when path is empty.
func LoadMarkets(path string) (map[string]domain.MarketConfig, error) {
	if path == "" {
		return DefaultMarkets(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading markets file: %w", err)
	}

	var mf marketsFile
	if err := yaml.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("parsing markets file: %w", err)
	}
	if len(mf.Markets) == 0 {
		return nil, fmt.Errorf("markets file %s defines no markets", path)
	}

	markets := make(map[string]domain.MarketConfig, len(mf.Markets))
	for name, m := range mf.Markets {
		if m.LotSize <= 0 {
			return nil, fmt.Errorf("market %s: lot_size must be positive", name)
		}
		if m.MinOrderQuantity <= 0 {
			return nil, fmt.Errorf("market %s: min_order_quantity must be positive", name)
		}
		if m.CommissionRate < 0 {
			return nil, fmt.Errorf("market %s: commission_rate must not be negative", name)
		}
		minCommission, err := domain.DollarsToCents(m.MinCommission)
		if err != nil || minCommission < 0 {
			return nil, fmt.Errorf("market %s: invalid min_commission", name)
		}
		markets[name] = domain.MarketConfig{
			LotSize:          m.LotSize,
			MinOrderQuantity: m.MinOrderQuantity,
			CommissionRate:   m.CommissionRate,
			MinCommission:    minCommission,
		}
	}
	return markets, nil
}

// DefaultMarkets returns the built-in market table: US equities with
// single-share lots and a 0.1% commission floored at $1.
func DefaultMarkets() map[string]domain.MarketConfig {
	return map[string]domain.MarketConfig{
		"US": {
			LotSize:          1,
			MinOrderQuantity: 1,
			CommissionRate:   0.001,
			MinCommission:    100,
		},
		"HK": {
			LotSize:          100,
			MinOrderQuantity: 100,
			CommissionRate:   0.0025,
			MinCommission:    300,
		},
	}
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
