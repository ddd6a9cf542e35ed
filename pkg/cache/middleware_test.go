package cache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCacheMiddleware(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"GETCachedOnSecondCall", testGETCachedOnSecondCall},
		{"ContentTypePreserved", testContentTypePreserved},
		{"POSTNotCached", testPOSTNotCached},
		{"Non200NotCached", testNon200NotCached},
		{"DifferentQueriesCachedSeparately", testDifferentQueriesCachedSeparately},
		{"InvalidatedDuringHandlerNotCached", testInvalidatedDuringHandlerNotCached},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func testGETCachedOnSecondCall(t *testing.T) {
	callCount := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"exists":true}`))
	})

	reg := prometheus.NewRegistry()
	stats := NewStats(reg)
	wrapped := Middleware(NewLRUCache(10, 5*time.Second), stats)(handler)

	rec1 := serve(wrapped, http.MethodGet, "/api/edition/v1/exists")
	if rec1.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("expected X-Cache: MISS, got %q", rec1.Header().Get("X-Cache"))
	}

	rec2 := serve(wrapped, http.MethodGet, "/api/edition/v1/exists")
	if callCount != 1 {
		t.Fatalf("expected handler called once, got %d", callCount)
	}
	if rec2.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("expected X-Cache: HIT, got %q", rec2.Header().Get("X-Cache"))
	}
	body, _ := io.ReadAll(rec2.Result().Body)
	if string(body) != `{"exists":true}` {
		t.Fatalf("expected cached body, got %q", string(body))
	}

	if got := testutil.ToFloat64(stats.hits); got != 1 {
		t.Fatalf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(stats.misses); got != 1 {
		t.Fatalf("expected 1 miss, got %v", got)
	}
}

func testContentTypePreserved(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("data:application/vnd.edition.descriptor;v=1,"))
	})
	wrapped := Middleware(NewLRUCache(10, 5*time.Second), nil)(handler)

	serve(wrapped, http.MethodGet, "/uri")
	rec := serve(wrapped, http.MethodGet, "/uri")
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("expected text/plain, got %q", ct)
	}
}

func testPOSTNotCached(t *testing.T) {
	callCount := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		_, _ = w.Write([]byte(`ok`))
	})
	wrapped := Middleware(NewLRUCache(10, 5*time.Second), nil)(handler)

	serve(wrapped, http.MethodPost, "/mint")
	serve(wrapped, http.MethodPost, "/mint")
	if callCount != 2 {
		t.Fatalf("expected handler called twice, got %d", callCount)
	}
}

func testNon200NotCached(t *testing.T) {
	callCount := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"TOKEN_NOT_FOUND"}`))
	})
	wrapped := Middleware(NewLRUCache(10, 5*time.Second), nil)(handler)

	serve(wrapped, http.MethodGet, "/tokens/1/uri")
	serve(wrapped, http.MethodGet, "/tokens/1/uri")
	if callCount != 2 {
		t.Fatalf("expected handler called twice, got %d", callCount)
	}
}

func testDifferentQueriesCachedSeparately(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Query().Get("pageToken")))
	})
	wrapped := Middleware(NewLRUCache(10, 5*time.Second), nil)(handler)

	serve(wrapped, http.MethodGet, "/events?pageToken=1")
	rec := serve(wrapped, http.MethodGet, "/events?pageToken=2")
	if rec.Body.String() != "2" {
		t.Fatalf("expected body 2, got %q", rec.Body.String())
	}
}

func TestManager(t *testing.T) {
	if NewManager(nil, nil) != nil {
		t.Fatal("expected nil manager for nil config")
	}
	if NewManager(&Config{Enabled: false}, nil) != nil {
		t.Fatal("expected nil manager when disabled")
	}

	var nilManager *Manager
	nilManager.InvalidateAll()
	calls := 0
	passthrough := nilManager.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	serve(passthrough, http.MethodGet, "/")
	serve(passthrough, http.MethodGet, "/")
	if calls != 2 {
		t.Fatalf("expected nil manager to pass through, got %d calls", calls)
	}

	m := NewManager(DefaultConfig(), nil)
	calls = 0
	h := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte("x"))
	}))
	serve(h, http.MethodGet, "/")
	serve(h, http.MethodGet, "/")
	m.InvalidateAll()
	serve(h, http.MethodGet, "/")
	if calls != 2 {
		t.Fatalf("expected invalidation to force a refetch, got %d calls", calls)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("EDITION_CACHE_ENABLED", "false")
	t.Setenv("EDITION_CACHE_TTL", "30")
	t.Setenv("EDITION_CACHE_MAX_SIZE", "7")

	cfg := ConfigFromEnv()
	if cfg.Enabled {
		t.Fatal("expected cache disabled")
	}
	if cfg.TTL != 30*time.Second {
		t.Fatalf("expected 30s TTL, got %v", cfg.TTL)
	}
	if cfg.MaxSize != 7 {
		t.Fatalf("expected max size 7, got %d", cfg.MaxSize)
	}

	t.Setenv("EDITION_CACHE_TTL", "nope")
	if got := ConfigFromEnv().TTL; got != DefaultConfig().TTL {
		t.Fatalf("expected default TTL for invalid value, got %v", got)
	}
}

func testInvalidatedDuringHandlerNotCached(t *testing.T) {
	c := NewLRUCache(10, time.Minute)
	minted := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The state is read, then a mutation commits and invalidates
		// before the response is stored.
		exists := minted
		minted = true
		c.InvalidateAll()
		if exists {
			io.WriteString(w, "true")
			return
		}
		io.WriteString(w, "false")
	})
	h := Middleware(c, nil)(handler)

	if got := serve(h, http.MethodGet, "/exists").Body.String(); got != "false" {
		t.Fatalf("first call: got %q", got)
	}
	if c.Size() != 0 {
		t.Fatalf("stale response was cached")
	}
	rec := serve(h, http.MethodGet, "/exists")
	if rec.Header().Get("X-Cache") != "MISS" || rec.Body.String() != "true" {
		t.Fatalf("second call: X-Cache=%s body=%q", rec.Header().Get("X-Cache"), rec.Body.String())
	}
}
