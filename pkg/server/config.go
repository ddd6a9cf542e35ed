package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server settings that are not owned by a component
// package.
type Config struct {
	// ContractAddress overrides the address served by GET /config. When
	// empty the registry's own address is used.
	ContractAddress string

	// MetadataHash is the IPFS hash of the token metadata, served by
	// GET /config for the mint page.
	MetadataHash string

	// AllowedOrigins for CORS.
	AllowedOrigins []string

	// WriteInterval is the minimum time between two mutations by the same
	// caller. Zero disables limiting.
	WriteInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		AllowedOrigins: []string{"https://*", "http://*"},
	}
}

// ConfigFromEnv reads server configuration from environment variables.
//
// Environment variables:
//   - CONTRACT_ADDRESS: address served by /config
//   - IPFS_HASH_METADATA: metadata hash served by /config
//   - EDITION_CORS_ORIGINS: comma-separated origins (default: any)
//   - EDITION_WRITE_INTERVAL: seconds between writes per caller (default: 0)
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.ContractAddress = os.Getenv("CONTRACT_ADDRESS")
	cfg.MetadataHash = os.Getenv("IPFS_HASH_METADATA")

	if v := os.Getenv("EDITION_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.AllowedOrigins = origins
		}
	}
	if v := os.Getenv("EDITION_WRITE_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.WriteInterval = time.Duration(secs) * time.Second
		}
	}
	return cfg
}
