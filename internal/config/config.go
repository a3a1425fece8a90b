// Package config provides centralized configuration for the inference service.
// Settings come from environment variables with defaults and are validated on
// startup so a misconfigured process never starts serving.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Compute  ComputeConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	History  HistoryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing the response (default: 2m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"2m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 2m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"2m"`
}

// DatabaseConfig holds settings for the optional run history database.
// When URL is empty, run history is kept in memory.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database URL was configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// UploadConfig holds limits applied while reading uploaded tables.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// MaxRows caps the number of data rows loaded from one file (default: 200000)
	MaxRows int `env:"UPLOAD_MAX_ROWS" default:"200000"`
}

// ComputeConfig holds engine execution settings.
type ComputeConfig struct {
	// MaxConcurrent is the maximum number of engine runs in flight (default: 4)
	MaxConcurrent int `env:"COMPUTE_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a request waits for a compute slot (default: 15s)
	MaxWaitTime time.Duration `env:"COMPUTE_MAX_WAIT_TIME" default:"15s"`

	// Timeout bounds a single engine run (default: 60s)
	Timeout time.Duration `env:"COMPUTE_TIMEOUT" default:"60s"`

	// ReductMaxAttributes is the ceiling for exhaustive reduct search (default: 16)
	ReductMaxAttributes int `env:"REDUCT_MAX_ATTRIBUTES" default:"16"`

	// Workers is the parallelism used inside a single run (default: 4)
	Workers int `env:"COMPUTE_WORKERS" default:"4"`

	// KMeansMaxIter and KMeansTolerance are the defaults for omitted parameters.
	KMeansMaxIter   int     `env:"KMEANS_DEFAULT_MAX_ITER" default:"100"`
	KMeansTolerance float64 `env:"KMEANS_DEFAULT_TOL" default:"0.0001"`
}

// ReductHardCeiling is the largest ReductMaxAttributes accepted.
const ReductHardCeiling = 24

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the sustained rate per IP (default: 60)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"60"`

	// Burst is the bucket capacity per IP (default: 20)
	Burst int `env:"RATE_LIMIT_BURST" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// AllowedOrigins is a comma-separated list of CORS origins for the UI
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// HistoryConfig holds run history retention settings.
type HistoryConfig struct {
	// RetentionDays is how long run records are kept (default: 30)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"30"`

	// CheckInterval is how often expired runs are purged (default: 6h)
	CheckInterval time.Duration `env:"HISTORY_CHECK_INTERVAL" default:"6h"`

	// MemoryCapacity bounds the in-memory store (default: 1000)
	MemoryCapacity int `env:"HISTORY_MEMORY_CAPACITY" default:"1000"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
