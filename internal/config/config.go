// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all service settings. Every field maps to an environment
// variable; defaults are tuned for the public PNCP consulta API.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"ADDR" envDefault:":8080"`

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `env:"DATABASE_URL,required"`

	// RedisAddr is the Redis host:port for freshness bookkeeping.
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// PNCPBaseURL is the consulta API root.
	PNCPBaseURL string `env:"PNCP_BASE_URL" envDefault:"https://pncp.gov.br/api/consulta"`

	// UserAgent identifies this client to PNCP.
	UserAgent string `env:"USER_AGENT" envDefault:"pncp-aggregator/1.0"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogPretty enables human-readable console logs.
	LogPretty bool `env:"LOG_PRETTY" envDefault:"false"`

	// StalenessWindow is the maximum age of a cached result set before a
	// query forces an upstream refresh.
	StalenessWindow time.Duration `env:"STALENESS_WINDOW" envDefault:"6h"`

	// RequestTimeout is the per-request upstream deadline.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`

	// QueryTimeout bounds a whole caller query, refresh included.
	QueryTimeout time.Duration `env:"QUERY_TIMEOUT" envDefault:"2m"`

	// MinRequestInterval spaces physical upstream requests.
	MinRequestInterval time.Duration `env:"MIN_REQUEST_INTERVAL" envDefault:"200ms"`

	// MaxRetries is the upstream retry ceiling.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"3"`

	// InitialBackoff seeds the exponential 429 backoff.
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"1s"`

	// MaxConcurrency caps in-flight partition fetches.
	MaxConcurrency int `env:"MAX_CONCURRENCY" envDefault:"4"`

	// PageCap bounds pages fetched per modality.
	PageCap int `env:"PAGE_CAP" envDefault:"20"`

	// PageSize is the caller-facing page size.
	PageSize int `env:"PAGE_SIZE" envDefault:"10"`

	// UpstreamPageSize is the page size requested from PNCP.
	UpstreamPageSize int `env:"UPSTREAM_PAGE_SIZE" envDefault:"50"`

	// LookbackDays bounds the publication date range of a refresh cycle.
	LookbackDays int `env:"LOOKBACK_DAYS" envDefault:"30"`
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
