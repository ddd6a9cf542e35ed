package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/tokenizart/edition/pkg/authz"
	"github.com/tokenizart/edition/pkg/edition"
)

// WriteRateLimiter allows each caller one mutation per interval. Reads are
// never limited.
type WriteRateLimiter struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval time.Duration
	now      func() time.Time
}

// NewWriteRateLimiter returns nil when interval is not positive, which
// disables limiting.
func NewWriteRateLimiter(interval time.Duration) *WriteRateLimiter {
	if interval <= 0 {
		return nil
	}
	return &WriteRateLimiter{
		last:     make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether key may write now, or how long it must wait.
func (rl *WriteRateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if last, ok := rl.last[key]; ok {
		if next := last.Add(rl.interval); now.Before(next) {
			return false, next.Sub(now)
		}
	}
	rl.last[key] = now
	rl.prune(now)
	return true, 0
}

// prune drops callers idle for longer than the interval so the map stays
// bounded by recent writers. Must be called with rl.mu held.
func (rl *WriteRateLimiter) prune(now time.Time) {
	if len(rl.last) < 1024 {
		return
	}
	for k, t := range rl.last {
		if now.Sub(t) > rl.interval {
			delete(rl.last, k)
		}
	}
}

// Middleware rejects mutations over the limit with 429 and Retry-After. It
// must run after authz.IdentityMiddleware. A nil limiter passes everything.
func (rl *WriteRateLimiter) Middleware(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		key := authz.CallerFromContext(r.Context()).Hex()
		if ok, wait := rl.Allow(key); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeJSON(w, http.StatusTooManyRequests, edition.ErrorResponse{
				Code:    "RATE_LIMITED",
				Message: "too many write requests, retry after " + wait.Round(time.Second).String(),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
