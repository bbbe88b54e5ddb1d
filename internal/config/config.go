// Package config loads catalog-service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DriverSQLite selects the embedded SQLite cache.
	DriverSQLite = "sqlite3"
	// DriverPostgres selects a PostgreSQL cache.
	DriverPostgres = "postgres"

	defaultListenAddr   = ":27780"
	defaultDSN          = "file:catalog.db?_busy_timeout=5000"
	defaultAPIBaseURL   = "https://rickandmortyapi.com/api"
	defaultAPITimeout   = 20 * time.Second
	defaultAPIRetries   = 2
	defaultAPIRateLimit = 5
	defaultAPIRateBurst = 5
	defaultPageSize     = 20
	defaultNATSSubject  = "catalog.characters.synced"
)

// Config holds service configuration values.
type Config struct {
	ListenAddr string
	LogLevel   string
	DevMode    bool

	DBDriver string
	DBDSN    string

	APIBaseURL    string
	APITimeout    time.Duration
	APIMaxRetries int
	APIRateLimit  int
	APIRateBurst  int

	PageSize             int
	MaxWindow            int
	DetailRemoteFallback bool

	NATSURL     string
	NATSSubject string

	MetricsEnabled bool
}

// Load reads configuration from environment variables. When CATALOG_ENV_FILE
// names a file, its values are loaded first without overriding variables that
// are already set.
func Load() (Config, error) {
	if envFile := strings.TrimSpace(os.Getenv("CATALOG_ENV_FILE")); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("loading env file %q: %w", envFile, err)
		}
	}

	cfg := Config{
		ListenAddr:           envOrDefault("CATALOG_LISTEN_ADDR", defaultListenAddr),
		LogLevel:             strings.ToLower(envOrDefault("CATALOG_LOG_LEVEL", "info")),
		DevMode:              envBool("CATALOG_DEV_MODE", false),
		DBDriver:             strings.ToLower(strings.TrimSpace(envOrDefault("CATALOG_DB_DRIVER", DriverSQLite))),
		DBDSN:                envOrDefault("CATALOG_DB_DSN", defaultDSN),
		APIBaseURL:           envOrDefault("CATALOG_API_BASE_URL", defaultAPIBaseURL),
		APITimeout:           envPositiveDuration("CATALOG_API_TIMEOUT", defaultAPITimeout),
		APIMaxRetries:        envNonNegativeInt("CATALOG_API_MAX_RETRIES", defaultAPIRetries),
		APIRateLimit:         envPositiveInt("CATALOG_API_RATE_LIMIT", defaultAPIRateLimit),
		APIRateBurst:         envPositiveInt("CATALOG_API_RATE_BURST", defaultAPIRateBurst),
		PageSize:             envPositiveInt("CATALOG_PAGE_SIZE", defaultPageSize),
		MaxWindow:            envNonNegativeInt("CATALOG_MAX_WINDOW", 0),
		DetailRemoteFallback: envBool("CATALOG_DETAIL_REMOTE_FALLBACK", false),
		NATSURL:              envOrDefault("CATALOG_NATS_URL", ""),
		NATSSubject:          envOrDefault("CATALOG_NATS_SUBJECT", defaultNATSSubject),
		MetricsEnabled:       envBool("CATALOG_METRICS_ENABLED", true),
	}

	switch cfg.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return Config{}, fmt.Errorf("invalid CATALOG_DB_DRIVER %q (allowed: %s|%s)", cfg.DBDriver, DriverSQLite, DriverPostgres)
	}
	if strings.TrimSpace(cfg.DBDSN) == "" {
		return Config{}, fmt.Errorf("CATALOG_DB_DSN is required")
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return Config{}, fmt.Errorf("CATALOG_API_BASE_URL is required")
	}
	if cfg.APIRateBurst < cfg.APIRateLimit {
		cfg.APIRateBurst = cfg.APIRateLimit
	}
	if cfg.MaxWindow > 0 && cfg.MaxWindow < cfg.PageSize*2 {
		cfg.MaxWindow = cfg.PageSize * 2
	}

	return cfg, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		switch strings.ToLower(v) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		default:
			return defaultVal
		}
	}
	return b
}

func envPositiveInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return defaultVal
	}
	return parsed
}

func envNonNegativeInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return defaultVal
	}
	return parsed
}

func envPositiveDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return defaultVal
	}
	return parsed
}
