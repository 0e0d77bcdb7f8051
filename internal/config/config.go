package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/fred-data-proxy/internal/logger"
)

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

var errMissingAPIKey = errors.New("a FRED API key is required (FRED_API_KEY or --fred-api-key)")

type AppConfig struct {
	FredAPIKey  string
	FredBaseURL string

	// HTTPTimeout bounds every outbound FRED call.
	HTTPTimeout time.Duration

	// Outbound token bucket.
	UpstreamRateLimit float64
	UpstreamRateBurst int

	StoreBackend string
	SQLitePath   string

	// Series kept warm by the scheduler.
	WarmSeries   []string
	WarmInterval time.Duration

	LogLevel  string
	LogFormat string
	LogOutput string
	LogMaxAge int // days

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logger.GetLogger().WithComponent("config").Infof("no .env file loaded: %v", err)
	}
	cfg := &AppConfig{}

	cfg.FredAPIKey = os.Getenv("FRED_API_KEY")
	cfg.FredBaseURL = getenvDefault("FRED_BASE_URL", "https://api.stlouisfed.org/fred")

	timeout, err := time.ParseDuration(getenvDefault("HTTP_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	// FRED documents roughly 120 requests per minute per key.
	cfg.UpstreamRateLimit, err = strconv.ParseFloat(getenvDefault("UPSTREAM_RATE_LIMIT", "2"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid UPSTREAM_RATE_LIMIT: %w", err)
	}
	if cfg.UpstreamRateBurst, err = getenvInt("UPSTREAM_RATE_BURST", 5); err != nil {
		return nil, err
	}

	cfg.StoreBackend = strings.ToLower(getenvDefault("STORE_BACKEND", BackendSQLite))
	switch cfg.StoreBackend {
	case BackendSQLite, BackendMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q: want %s or %s", cfg.StoreBackend, BackendSQLite, BackendMemory)
	}
	cfg.SQLitePath = getenvDefault("FRED_OBSERVATIONS_DB", "fred.db")

	cfg.WarmSeries = splitList(os.Getenv("WARM_SERIES"))
	warm, err := time.ParseDuration(getenvDefault("WARM_INTERVAL", "6h"))
	if err != nil {
		return nil, fmt.Errorf("invalid WARM_INTERVAL: %w", err)
	}
	cfg.WarmInterval = warm

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "json")
	cfg.LogOutput = getenvDefault("LOG_OUTPUT", "stdout")
	if cfg.LogMaxAge, err = getenvInt("LOG_MAX_AGE", 0); err != nil {
		return nil, err
	}

	cfg.Port = getenvDefault("PORT", "9001")

	return cfg, nil
}

// Validate checks the settings needed to serve traffic.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.FredAPIKey) == "" {
		return errMissingAPIKey
	}
	if c.UpstreamRateLimit <= 0 {
		return fmt.Errorf("upstream rate limit must be positive, got %v", c.UpstreamRateLimit)
	}
	if c.UpstreamRateBurst < 1 {
		return fmt.Errorf("upstream rate burst must be at least 1, got %d", c.UpstreamRateBurst)
	}
	if c.StoreBackend == BackendSQLite && c.SQLitePath == "" {
		return errors.New("sqlite backend needs a database path")
	}
	if len(c.WarmSeries) > 0 && c.WarmInterval <= 0 {
		return fmt.Errorf("warm interval must be positive, got %s", c.WarmInterval)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
