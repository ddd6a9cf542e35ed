package authz

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Mode selects how callers are identified.
type Mode string

const (
	// ModeNone treats every request as anonymous.
	ModeNone Mode = "none"
	// ModeHeader trusts X-Remote-User from an authenticating proxy.
	ModeHeader Mode = "header"
	// ModeJWT reads the caller from a bearer token's subject.
	ModeJWT Mode = "jwt"
	// ModeSignature verifies requests signed with the caller's key.
	ModeSignature Mode = "signature"
)

// Config holds caller identification settings.
type Config struct {
	Mode    Mode
	MaxSkew time.Duration
	JWT     JWTConfig
}

// ConfigFromEnv loads config from environment variables.
// EDITION_AUTH_MODE (default "signature"), EDITION_AUTH_MAX_SKEW,
// EDITION_JWT_SECRET, EDITION_JWT_PUBLIC_KEY_PATH, EDITION_JWT_ISSUER,
// EDITION_JWT_AUDIENCE
func ConfigFromEnv() *Config {
	cfg := &Config{
		Mode:    ModeSignature,
		MaxSkew: DefaultMaxSkew,
	}
	if v := os.Getenv("EDITION_AUTH_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("EDITION_AUTH_MAX_SKEW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.MaxSkew = d
		}
	}
	if v := os.Getenv("EDITION_JWT_SECRET"); v != "" {
		cfg.JWT.Secret = []byte(v)
	}
	cfg.JWT.PublicKeyPath = os.Getenv("EDITION_JWT_PUBLIC_KEY_PATH")
	cfg.JWT.Issuer = os.Getenv("EDITION_JWT_ISSUER")
	cfg.JWT.Audience = os.Getenv("EDITION_JWT_AUDIENCE")
	return cfg
}

// NewAuthenticator builds the authenticator for cfg.Mode. ModeNone returns
// nil, which IdentityMiddleware treats as "everyone is anonymous".
func NewAuthenticator(cfg *Config, logger *slog.Logger) (Authenticator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Mode {
	case ModeNone:
		logger.Warn("caller authentication disabled, owner-gated operations will be rejected")
		return nil, nil
	case ModeHeader:
		logger.Info("using header-based caller identity", "header", HeaderRemoteUser)
		return HeaderAuthenticator{}, nil
	case ModeJWT:
		jwtCfg := cfg.JWT
		jwtCfg.Logger = logger
		return NewJWTAuthenticator(jwtCfg)
	case ModeSignature, "":
		logger.Info("using signed-request caller identity", "maxSkew", cfg.MaxSkew)
		return SignatureAuthenticator{MaxSkew: cfg.MaxSkew}, nil
	}
	return nil, fmt.Errorf("unknown auth mode %q (expected none, header, jwt or signature)", cfg.Mode)
}
