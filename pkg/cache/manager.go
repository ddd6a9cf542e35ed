package cache

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stats counts cache hits and misses. A nil *Stats records nothing.
type Stats struct {
	hits   prometheus.Counter
	misses prometheus.Counter
}

// NewStats registers the cache counters with reg. A nil reg returns nil.
func NewStats(reg prometheus.Registerer) *Stats {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &Stats{
		hits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "edition",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Read requests served from the cache.",
		}),
		misses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "edition",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Read requests that reached the registry.",
		}),
	}
}

func (s *Stats) hit() {
	if s != nil {
		s.hits.Inc()
	}
}

func (s *Stats) miss() {
	if s != nil {
		s.misses.Inc()
	}
}

// Manager owns the read cache of the edition API.
type Manager struct {
	reads *LRUCache
	stats *Stats
}

// NewManager creates a Manager from cfg. A nil or disabled config returns
// nil; every method of a nil Manager is a no-op.
func NewManager(cfg *Config, stats *Stats) *Manager {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return &Manager{
		reads: NewLRUCache(cfg.MaxSize, cfg.TTL),
		stats: stats,
	}
}

// InvalidateAll clears the cache. It is subscribed to registry events so
// any committed mutation drops every cached read.
func (m *Manager) InvalidateAll() {
	if m == nil {
		return
	}
	m.reads.InvalidateAll()
}

// Middleware returns the caching middleware, or a pass-through when m is
// nil.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	if m == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return Middleware(m.reads, m.stats)
}
