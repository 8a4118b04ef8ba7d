// Package config loads server and CLI settings from the environment. Every
// setting has a default; Validate fails fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	History    HistoryConfig
	Validation ValidationConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to.
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`

	// Port is the port to listen on.
	Port int `env:"SERVER_PORT" envDefault:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"5m"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining active runs.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// RequestTimeout is the middleware timeout for non-validation requests.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"60s"`
}

// DatabaseConfig holds settings for the optional run store.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Empty disables run history.
	URL string `env:"DATABASE_URL"`

	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// HistoryConfig controls pruning of stored runs.
type HistoryConfig struct {
	// Retention is how long runs are kept. Zero keeps them forever.
	Retention time.Duration `env:"HISTORY_RETENTION" envDefault:"720h"`

	// PruneInterval is how often the server deletes expired runs.
	PruneInterval time.Duration `env:"HISTORY_PRUNE_INTERVAL" envDefault:"1h"`
}

// ValidationConfig holds limits for validation runs.
type ValidationConfig struct {
	// MaxFileSize is the largest accepted upload, summed over all parts.
	MaxFileSize int64 `env:"VALIDATION_MAX_FILE_SIZE" envDefault:"104857600"`

	// MaxConcurrent is the number of runs processed at once.
	MaxConcurrent int `env:"VALIDATION_MAX_CONCURRENT" envDefault:"4"`

	// MaxWaitTime is how long a run waits for a free slot.
	MaxWaitTime time.Duration `env:"VALIDATION_MAX_WAIT_TIME" envDefault:"30s"`

	// Parallelism is the number of tables read at once within one run.
	Parallelism int `env:"VALIDATION_PARALLELISM" envDefault:"4"`

	// Timeout bounds a single run.
	Timeout time.Duration `env:"VALIDATION_TIMEOUT" envDefault:"5m"`

	// StrictHeaders turns header title mismatches into errors.
	StrictHeaders bool `env:"VALIDATION_STRICT_HEADERS" envDefault:"false"`
}

// RateLimitConfig holds per-IP rate limits.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`

	// RequestsPerMinute applies to read endpoints.
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" envDefault:"100"`

	// ValidateLimit applies to POST /api/validate.
	ValidateLimit int `env:"RATE_LIMIT_VALIDATE" envDefault:"20"`
}

// SecurityConfig holds API access settings.
type SecurityConfig struct {
	// RequireAPIKey rejects /api requests without a valid X-API-Key.
	RequireAPIKey bool `env:"REQUIRE_API_KEY" envDefault:"false"`

	// APIKeys are the accepted keys, comma separated.
	APIKeys []string `env:"API_KEYS" envSeparator:","`

	// TrustedProxies are CIDRs whose X-Real-IP and X-Forwarded-For headers
	// are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Format is text or json.
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
