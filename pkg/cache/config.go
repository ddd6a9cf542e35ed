package cache

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the read cache.
type Config struct {
	// Enabled controls whether caching is active. When false, reads go
	// straight to the registry.
	Enabled bool

	// TTL bounds how long a response may be served after it was cached.
	// Local writes invalidate immediately; the TTL bounds staleness of
	// writes made through other replicas.
	TTL time.Duration

	// MaxSize is the maximum number of cached responses.
	MaxSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		TTL:     10 * time.Second,
		MaxSize: 512,
	}
}

// ConfigFromEnv reads cache configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - EDITION_CACHE_ENABLED: "true" or "false" (default: "true")
//   - EDITION_CACHE_TTL: duration in seconds (default: 10)
//   - EDITION_CACHE_MAX_SIZE: max cached responses (default: 512)
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("EDITION_CACHE_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("EDITION_CACHE_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.TTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("EDITION_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}

	return cfg
}
