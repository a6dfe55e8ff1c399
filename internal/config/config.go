// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/orderhistory/internal/plugins/orderlog"
	"github.com/keyxmakerx/orderhistory/internal/plugins/smtp"
)

// defaultAdminEmail is the development fallback sender. Rejected in production.
const defaultAdminEmail = "admin@localhost"

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// MigrationsPath is the directory holding golang-migrate SQL files.
	MigrationsPath string

	// TrustedProxies lists the CIDRs whose forwarding headers are believed.
	TrustedProxies []string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Log holds order log retention and notification settings.
	Log LogConfig

	// SMTP holds outbound mail transport settings.
	SMTP smtp.Settings
}

// DatabaseConfig holds MariaDB connection parameters. If DATABASE_URL is
// set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() so special characters in
// passwords are escaped.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string

	// LockTTL bounds how long a single writer may hold an order's log.
	LockTTL time.Duration

	// LockWait is how long a writer waits for a held lock before the
	// request fails with 423 Locked.
	LockWait time.Duration

	// LockPrefix namespaces the lock keys when Redis is shared.
	LockPrefix string
}

// LogConfig holds the order log settings read from the environment.
type LogConfig struct {
	// MaxRecordsPerOrder caps automated "Updated" entries per order.
	MaxRecordsPerOrder int

	// IgnoredEvents lists events that do not produce a log entry unless the
	// order's status changed or the write is forced.
	IgnoredEvents []string

	// ReceiptEmail is the preferred sender for notification emails.
	ReceiptEmail string

	// AdminEmail is the fallback sender when no receipt email is configured.
	AdminEmail string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing in production.
func Load() (*Config, error) {
	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "shop"),
			Password:        getEnv("DB_PASSWORD", "shop"),
			Name:            getEnv("DB_NAME", "shop"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL:        getEnv("REDIS_URL", "redis://localhost:6379"),
			LockTTL:    getEnvDuration("ORDER_LOCK_TTL", 10*time.Second),
			LockWait:   getEnvDuration("ORDER_LOCK_WAIT", 2*time.Second),
			LockPrefix: getEnv("ORDER_LOCK_PREFIX", "orderlog:lock"),
		},

		Log: LogConfig{
			MaxRecordsPerOrder: getEnvInt("ORDERLOG_MAX_RECORDS", orderlog.DefaultMaxRecordsPerOrder),
			IgnoredEvents:      getEnvList("ORDERLOG_IGNORED_EVENTS"),
			ReceiptEmail:       getEnv("ORDERLOG_RECEIPT_EMAIL", ""),
			AdminEmail:         getEnv("ADMIN_EMAIL", defaultAdminEmail),
		},

		SMTP: smtp.Settings{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvInt("SMTP_PORT", 587),
			Username:   getEnv("SMTP_USERNAME", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			Encryption: getEnv("SMTP_ENCRYPTION", "starttls"),
			FromName:   getEnv("SMTP_FROM_NAME", "Order Desk"),
		},
	}

	if cfg.TrustedProxies == nil {
		cfg.TrustedProxies = []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fd00::/8"}
	}

	if cfg.Log.MaxRecordsPerOrder < 1 {
		return nil, fmt.Errorf("ORDERLOG_MAX_RECORDS must be at least 1, got %d", cfg.Log.MaxRecordsPerOrder)
	}
	for _, ev := range cfg.Log.IgnoredEvents {
		if !orderlog.Event(ev).Valid() {
			return nil, fmt.Errorf("ORDERLOG_IGNORED_EVENTS: unknown event %q", ev)
		}
	}

	// Case-insensitive check catches common variants like "Production", "prod".
	if !cfg.IsDevelopment() {
		if cfg.SMTP.Host == "" {
			return nil, fmt.Errorf("SMTP_HOST is required in production")
		}
		if cfg.Log.AdminEmail == defaultAdminEmail {
			return nil, fmt.Errorf("ADMIN_EMAIL must be set in production")
		}
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev" || env == "test"
}

// OrderLog converts the loaded settings into the order log's own config,
// starting from its defaults so the status catalog stays intact.
func (c *Config) OrderLog() orderlog.Config {
	olc := orderlog.DefaultConfig()
	olc.MaxRecordsPerOrder = c.Log.MaxRecordsPerOrder
	olc.ReceiptEmail = c.Log.ReceiptEmail
	olc.AdminEmail = c.Log.AdminEmail
	olc.IgnoredEvents = make([]orderlog.Event, 0, len(c.Log.IgnoredEvents))
	for _, ev := range c.Log.IgnoredEvents {
		olc.IgnoredEvents = append(olc.IgnoredEvents, orderlog.Event(ev))
	}
	return olc
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "10s") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var. Blank items are dropped.
func getEnvList(key string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
