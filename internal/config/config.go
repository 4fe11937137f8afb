package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
)

// Config holds service configuration.
type Config struct {
	StoreDriver         string        `toml:"store_driver"`
	DatabaseURL         string        `toml:"database_url"`
	SQLitePath          string        `toml:"sqlite_path"`
	MySQLDSN            string        `toml:"mysql_dsn"`
	PGMaxConns          int           `toml:"pg_max_conns"`
	PGMinConns          int           `toml:"pg_min_conns"`
	PGConnMaxLifetime   time.Duration `toml:"-"`
	ServerAddr          string        `toml:"server_addr"`
	SessionTTL          time.Duration `toml:"-"`
	SessionCookieName   string        `toml:"session_cookie_name"`
	SessionCookieSecure bool          `toml:"session_cookie_secure"`
	PushTimeout         time.Duration `toml:"-"`
	SSEBuffer           int           `toml:"sse_buffer"`
	PricePolicy         string        `toml:"price_policy"`
	LogLevel            string        `toml:"log_level"`
}

// fileConfig mirrors Config for TOML decoding; durations are strings there.
type fileConfig struct {
	Config
	SessionTTL        string `toml:"session_ttl"`
	PushTimeout       string `toml:"push_timeout"`
	PGConnMaxLifetime string `toml:"pg_conn_max_lifetime"`
}

// Load reads configuration from an optional TOML file and the environment.
// Environment variables override file values; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for the postgres store")
		}
		if c.PGMaxConns <= 0 || c.PGMinConns < 0 || c.PGMinConns > c.PGMaxConns {
			return fmt.Errorf("pg_min_conns must be between 0 and pg_max_conns, and pg_max_conns positive")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite store")
		}
	case DriverMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("mysql_dsn is required for the mysql store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.PushTimeout <= 0 {
		return fmt.Errorf("push_timeout must be positive")
	}
	if c.SSEBuffer <= 0 {
		return fmt.Errorf("sse_buffer must be positive")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		StoreDriver:       DriverPostgres,
		SQLitePath:        "moving-hub.db",
		PGMaxConns:        10,
		PGConnMaxLifetime: time.Hour,
		ServerAddr:        "0.0.0.0:8080",
		SessionTTL:        24 * time.Hour,
		SessionCookieName: "moving_hub_session",
		PushTimeout:       2 * time.Second,
		SSEBuffer:         64,
		PricePolicy:       "amount > 0",
		LogLevel:          "info",
	}
}

func loadFile(path string, cfg *Config) error {
	fc := fileConfig{Config: *cfg}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	*cfg = fc.Config
	cfg.SessionTTL = parseDuration(fc.SessionTTL, cfg.SessionTTL)
	cfg.PushTimeout = parseDuration(fc.PushTimeout, cfg.PushTimeout)
	cfg.PGConnMaxLifetime = parseDuration(fc.PGConnMaxLifetime, cfg.PGConnMaxLifetime)
	return nil
}

func applyEnv(cfg *Config) {
	cfg.StoreDriver = strings.ToLower(getenv("STORE_DRIVER", cfg.StoreDriver))
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.DatabaseURL = dsn
	} else if cfg.DatabaseURL == "" {
		user := getenv("POSTGRES_USER", "moving_hub")
		pass := getenv("POSTGRES_PASSWORD", "moving_hub_pass")
		db := getenv("POSTGRES_DB", "moving_hub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}
	cfg.SQLitePath = getenv("SQLITE_PATH", cfg.SQLitePath)
	cfg.MySQLDSN = getenv("MYSQL_DSN", cfg.MySQLDSN)
	cfg.PGMaxConns = parseInt(os.Getenv("PG_MAX_CONNS"), cfg.PGMaxConns)
	cfg.PGMinConns = parseInt(os.Getenv("PG_MIN_CONNS"), cfg.PGMinConns)
	cfg.PGConnMaxLifetime = parseDuration(os.Getenv("PG_CONN_MAX_LIFETIME"), cfg.PGConnMaxLifetime)
	cfg.ServerAddr = getenv("SERVER_ADDR", cfg.ServerAddr)
	cfg.SessionTTL = parseDuration(os.Getenv("SESSION_TTL"), cfg.SessionTTL)
	cfg.SessionCookieName = getenv("SESSION_COOKIE_NAME", cfg.SessionCookieName)
	cfg.SessionCookieSecure = parseBool(os.Getenv("SESSION_COOKIE_SECURE"), cfg.SessionCookieSecure)
	cfg.PushTimeout = parseDuration(os.Getenv("PUSH_TIMEOUT"), cfg.PushTimeout)
	cfg.SSEBuffer = parseInt(os.Getenv("SSE_BUFFER"), cfg.SSEBuffer)
	cfg.PricePolicy = getenv("PRICE_POLICY", cfg.PricePolicy)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
