package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vertextoedge/sharelink/internal/port"
	"github.com/vertextoedge/sharelink/internal/service/maintenance"
	"github.com/vertextoedge/sharelink/internal/service/notifier"
	"github.com/vertextoedge/sharelink/internal/service/sharing"
	"github.com/vertextoedge/sharelink/internal/util/ratelimiter"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr      string
	BaseURL       string
	AdminUsername string
	AdminPassword string
	TrustProxy    bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration

	// AdminTriggerInterval is the minimum gap between two manual runs of the same job
	AdminTriggerInterval time.Duration

	// PublicRateInterval and PublicRateBurst bound share link requests per client IP
	PublicRateInterval time.Duration
	PublicRateBurst    int
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:             "0.0.0.0:8080",
		BaseURL:              "http://localhost:8080",
		ReadTimeout:          30 * time.Second,
		WriteTimeout:         5 * time.Minute,
		IdleTimeout:          60 * time.Second,
		AdminTriggerInterval: 10 * time.Second,
		PublicRateInterval:   100 * time.Millisecond,
		PublicRateBurst:      30,
	}
}

// Deps are the services the HTTP surface exposes
type Deps struct {
	Store       port.Store
	Sharing     *sharing.Service
	Notifier    *notifier.Service
	Maintenance *maintenance.Service
	Auth        Authenticator

	// Registerer and Gatherer back the HTTP metrics and /metrics.
	// Both default to the prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Server represents the HTTP API server
type Server struct {
	config *Config
	store  port.Store
	logger *zap.Logger
	router chi.Router
	server *http.Server
}

// New creates a new HTTP server
func New(cfg *Config, deps Deps, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Registerer == nil {
		deps.Registerer = prometheus.DefaultRegisterer
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	adminLimiter, err := ratelimiter.NewKeyed(cfg.AdminTriggerInterval, 1, 16)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin rate limiter: %w", err)
	}
	publicLimiter, err := ratelimiter.NewKeyed(cfg.PublicRateInterval, cfg.PublicRateBurst, 10000)
	if err != nil {
		return nil, fmt.Errorf("failed to create public rate limiter: %w", err)
	}

	s := &Server{
		config: cfg,
		store:  deps.Store,
		logger: logger,
	}

	shareHandler := NewShareHandler(deps.Sharing, logger)
	ownerHandler := NewOwnerHandler(deps.Sharing, deps.Notifier, cfg.BaseURL, logger)
	adminHandler := NewAdminHandler(deps.Maintenance, logger)

	r := chi.NewRouter()
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(logger, NewHTTPMetrics(deps.Registerer)))

	// Health check and metrics
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	// Public share links
	r.Route("/s/{token}", func(r chi.Router) {
		r.Use(RateLimitMiddleware(publicLimiter, clientIP, logger))
		r.Get("/", shareHandler.HandleStatus)
		r.Get("/view", shareHandler.HandleView)
		r.Get("/download", shareHandler.HandleDownload)
	})

	// Owner API
	if deps.Auth != nil {
		r.Route("/api/shares", func(r chi.Router) {
			r.Use(BearerAuthMiddleware(deps.Auth, logger))
			r.Post("/", ownerHandler.HandleCreate)
			r.Get("/", ownerHandler.HandleList)
			r.Get("/{id}", ownerHandler.HandleGet)
			r.Delete("/{id}", ownerHandler.HandleRevoke)
			r.Get("/{id}/analytics", ownerHandler.HandleAnalytics)
			r.Post("/{id}/notifications", ownerHandler.HandleNotify)
		})
	} else {
		logger.Warn("owner API disabled: no authenticator configured")
	}

	// Admin endpoints
	if cfg.AdminUsername != "" && cfg.AdminPassword != "" && deps.Maintenance != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(BasicAuthMiddleware(cfg.AdminUsername, cfg.AdminPassword, logger))
			r.With(RateLimitMiddleware(adminLimiter, func(r *http.Request) string {
				return chi.URLParam(r, "job")
			}, logger)).Post("/maintenance/{job}", adminHandler.HandleMaintenance)
			r.Get("/suspicious", adminHandler.HandleSuspicious)
			r.Get("/usage", adminHandler.HandleUsage)
		})
	} else {
		logger.Warn("admin API disabled: credentials not configured")
	}

	s.router = r
	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
