package cache

import (
	"bytes"
	"net/http"
)

// cacheResponseWriter captures the status and body so they can be stored.
type cacheResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (w *cacheResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cacheResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.statusCode = http.StatusOK
		w.written = true
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Middleware caches GET responses in c, keyed by path and query.
//
// Behavior:
//   - Only GET requests are cached; all other methods pass through.
//   - On a hit the cached body is written with its original Content-Type,
//     status 200 and X-Cache: HIT.
//   - On a miss the handler runs with X-Cache: MISS and a 200 response is
//     stored, unless the cache was invalidated while the handler ran.
//     Non-200 responses are never cached.
func Middleware(c *LRUCache, stats *Stats) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := r.URL.RequestURI()
			if cached, ok := c.Get(key); ok {
				stats.hit()
				if cached.ContentType != "" {
					w.Header().Set("Content-Type", cached.ContentType)
				}
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(cached.Body)
				return
			}

			stats.miss()
			// Read before the handler so a mutation committed while it runs
			// keeps its possibly stale response out of the cache.
			gen := c.Generation()
			crw := &cacheResponseWriter{ResponseWriter: w}
			crw.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(crw, r)

			if crw.statusCode == http.StatusOK {
				c.SetIfGeneration(key, Entry{
					Body:        bytes.Clone(crw.body.Bytes()),
					ContentType: crw.Header().Get("Content-Type"),
				}, gen)
			}
		})
	}
}
