// Package server assembles the edition HTTP server: the registry API, the
// read-only frontend endpoints (/abi, /config), health probes and metrics.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/tokenizart/edition/pkg/authz"
	"github.com/tokenizart/edition/pkg/cache"
	"github.com/tokenizart/edition/pkg/contract"
	"github.com/tokenizart/edition/pkg/edition"
)

// APIPrefix is where the registry API is mounted.
const APIPrefix = "/api/edition/v1"

// Server serves one registry.
type Server struct {
	reg       *edition.Registry
	db        *gorm.DB
	cfg       *Config
	edition   *edition.EditionConfig
	auth      authz.Authenticator
	cache     *cache.Manager
	limiter   *WriteRateLimiter
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	startedAt time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithAuthenticator sets how callers are identified. Without one every
// request is anonymous.
func WithAuthenticator(a authz.Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithCache enables the read cache. The cache is cleared after every
// committed mutation.
func WithCache(m *cache.Manager) Option {
	return func(s *Server) { s.cache = m }
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithEditionConfig sets the defaults used by deploy.
func WithEditionConfig(c *edition.EditionConfig) Option {
	return func(s *Server) { s.edition = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server. db is used by the readiness probe and may be nil.
func New(reg *edition.Registry, db *gorm.DB, cfg *Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		reg:       reg,
		db:        db,
		cfg:       cfg,
		edition:   edition.DefaultEditionConfig(),
		gatherer:  prometheus.DefaultGatherer,
		logger:    slog.Default(),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter = NewWriteRateLimiter(cfg.WriteInterval)
	if s.cache != nil {
		reg.Subscribe(func(ev edition.Event) {
			s.cache.InvalidateAll()
		})
	}
	return s
}

// Routes builds the HTTP handler.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type",
			authz.HeaderAddress, authz.HeaderTimestamp, authz.HeaderSignature,
		},
		ExposedHeaders:   []string{"X-Cache", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route(APIPrefix, func(r chi.Router) {
		r.Use(authz.IdentityMiddleware(s.auth, s.logger))
		r.Use(s.limiter.Middleware)
		r.Use(s.cache.Middleware())
		r.Mount("/", edition.Router(s.reg, s.edition))
	})
	s.logger.Info("mounted registry routes",
		"basePath", APIPrefix,
		"variant", s.reg.Variant().Name(),
		"cache", s.cache != nil,
		"writeInterval", s.cfg.WriteInterval)

	r.Get("/abi", s.abiHandler)
	r.Get("/config", s.configHandler)

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

func (s *Server) abiHandler(w http.ResponseWriter, r *http.Request) {
	data, err := contract.JSON(s.reg.Variant())
	if err != nil {
		s.logger.Error("failed to build ABI", "error", err)
		writeJSON(w, http.StatusInternalServerError, edition.ErrorResponse{Code: "INTERNAL", Message: "unable to load ABI"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"abi": data})
}

// frontendConfig is the body of GET /config.
type frontendConfig struct {
	ContractAddress string `json:"contractAddress"`
	MetadataURI     string `json:"metadataURI"`
}

func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	out := frontendConfig{
		ContractAddress: s.cfg.ContractAddress,
		MetadataURI:     s.cfg.MetadataHash,
	}
	if out.ContractAddress == "" {
		addr, err := s.reg.ContractAddress(r.Context())
		if err != nil {
			s.logger.Error("failed to read contract address", "error", err)
			writeJSON(w, http.StatusInternalServerError, edition.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
			return
		}
		if addr != (common.Address{}) {
			out.ContractAddress = addr.Hex()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// readyHandler checks database connectivity and that the registry state
// can be read.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	allReady := true

	dbStatus := map[string]string{"status": "up"}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			dbStatus["status"] = "down"
			dbStatus["error"] = err.Error()
			allReady = false
		} else if err := sqlDB.PingContext(r.Context()); err != nil {
			dbStatus["status"] = "down"
			dbStatus["error"] = err.Error()
			allReady = false
		}
	} else {
		dbStatus["status"] = "not_configured"
	}

	registryStatus := map[string]any{"status": "up"}
	if info, err := s.reg.Info(r.Context()); err != nil {
		registryStatus["status"] = "down"
		registryStatus["error"] = err.Error()
		allReady = false
	} else {
		registryStatus["deployed"] = info.Deployed
		registryStatus["exists"] = info.Exists
	}

	status := http.StatusOK
	overall := "ready"
	if !allReady {
		status = http.StatusServiceUnavailable
		overall = "not_ready"
	}
	writeJSON(w, status, map[string]any{
		"status":   overall,
		"database": dbStatus,
		"registry": registryStatus,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
