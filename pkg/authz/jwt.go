package authz

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures the JWT bearer authenticator. The caller address is
// taken from the "sub" claim.
type JWTConfig struct {
	// Secret verifies HS256 tokens, such as those minted by IssueToken.
	Secret []byte

	// PublicKeyPath is the path to a PEM-encoded RSA public key for RS256
	// verification.
	PublicKeyPath string

	// Issuer is the expected token issuer (iss claim). If empty, issuer is not validated.
	Issuer string

	// Audience is the expected token audience (aud claim). If empty, audience is not validated.
	Audience string

	// Logger for debugging. If nil, uses slog.Default().
	Logger *slog.Logger
}

// JWTAuthenticator reads the caller from an "Authorization: Bearer" token.
type JWTAuthenticator struct {
	secret    []byte
	publicKey *rsa.PublicKey
	opts      []jwt.ParserOption
}

// NewJWTAuthenticator creates a JWTAuthenticator. At least one of Secret or
// PublicKeyPath must be set.
func NewJWTAuthenticator(cfg JWTConfig) (*JWTAuthenticator, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &JWTAuthenticator{secret: cfg.Secret}

	if cfg.PublicKeyPath != "" {
		keyData, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read JWT public key from %s: %w", cfg.PublicKeyPath, err)
		}
		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("decode PEM block from %s", cfg.PublicKeyPath)
		}
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is not RSA (got %T)", parsed)
		}
		a.publicKey = rsaKey
	}
	if a.publicKey == nil && len(a.secret) == 0 {
		return nil, fmt.Errorf("jwt auth needs a secret or a public key")
	}
	cfg.Logger.Info("JWT authentication enabled",
		"hs256", len(a.secret) > 0, "rs256", a.publicKey != nil)

	a.opts = []jwt.ParserOption{jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		a.opts = append(a.opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		a.opts = append(a.opts, jwt.WithAudience(cfg.Audience))
	}
	return a, nil
}

// Authenticate implements Authenticator.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return Identity{}, ErrNoCredentials
	}

	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, &claims, a.keyFunc, a.opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid bearer token: %w", err)
	}
	if !common.IsHexAddress(claims.Subject) {
		return Identity{}, fmt.Errorf("token subject is not an address: %q", claims.Subject)
	}
	return Identity{Address: common.HexToAddress(claims.Subject), Method: string(ModeJWT)}, nil
}

func (a *JWTAuthenticator) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(a.secret) > 0 {
			return a.secret, nil
		}
	case *jwt.SigningMethodRSA:
		if a.publicKey != nil {
			return a.publicKey, nil
		}
	}
	return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
}

// IssueToken mints an HS256 token naming addr as subject.
func IssueToken(secret []byte, addr common.Address, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   addr.Hex(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
