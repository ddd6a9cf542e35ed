package authz

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// identityCtxKey is an unexported type used as the context key for Identity.
type identityCtxKey struct{}

// WithIdentity returns a new context with the given Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns the zero value and false if no identity is set.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// CallerFromContext returns the caller address, or the zero address for
// anonymous requests.
func CallerFromContext(ctx context.Context) common.Address {
	id, _ := IdentityFromContext(ctx)
	return id.Address
}

// IdentityMiddleware authenticates every request with a. Requests without
// credentials continue without an identity; requests with invalid
// credentials are answered with 401, oversized signed bodies with 413.
func IdentityMiddleware(a Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a == nil {
				next.ServeHTTP(w, r)
				return
			}
			id, err := a.Authenticate(r)
			if errors.Is(err, ErrNoCredentials) {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				logger.Debug("authentication failed", "path", r.URL.Path, "error", err)
				status, code := http.StatusUnauthorized, "UNAUTHENTICATED"
				if errors.Is(err, ErrBodyTooLarge) {
					status, code = http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE"
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"code":    code,
					"message": err.Error(),
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
