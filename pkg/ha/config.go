// Package ha provides the primitives needed to run several edition server
// replicas against one database: a migration lock so that only one replica
// changes the schema at a time.
package ha

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultLockName identifies the server's migration lock.
const DefaultLockName = "edition-server-migration"

// Config holds configuration for high-availability features.
type Config struct {
	// MigrationLockEnabled controls whether schema migrations run under a
	// database lock.
	MigrationLockEnabled bool

	// LockName names the lock. Replicas of one deployment must agree.
	LockName string

	// LockTimeout bounds how long a replica waits for the lock.
	LockTimeout time.Duration

	// Identity is recorded as the lock holder by the table-based lock.
	Identity string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MigrationLockEnabled: true,
		LockName:             DefaultLockName,
		LockTimeout:          30 * time.Second,
		Identity:             defaultIdentity(),
	}
}

// ConfigFromEnv reads HA configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - EDITION_MIGRATION_LOCK_ENABLED: "true" or "false" (default: "true")
//   - EDITION_MIGRATION_LOCK_NAME: lock name (default: "edition-server-migration")
//   - EDITION_MIGRATION_LOCK_TIMEOUT: seconds (default: 30)
//   - POD_NAME: holder identity (default: hostname)
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("EDITION_MIGRATION_LOCK_ENABLED"); v != "" {
		cfg.MigrationLockEnabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("EDITION_MIGRATION_LOCK_NAME"); v != "" {
		cfg.LockName = v
	}
	if v := os.Getenv("EDITION_MIGRATION_LOCK_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.LockTimeout = time.Duration(secs) * time.Second
		}
	}

	return cfg
}

func defaultIdentity() string {
	if v := os.Getenv("POD_NAME"); v != "" {
		return v
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "unknown"
	}
	return hostname
}
