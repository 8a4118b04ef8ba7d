// Package web provides the HTTP API for running validations and reading
// run history.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/JonMunkholm/csvlint/internal/config"
	"github.com/JonMunkholm/csvlint/internal/core"
	"github.com/JonMunkholm/csvlint/internal/metrics"
	"github.com/JonMunkholm/csvlint/internal/store"
	webmw "github.com/JonMunkholm/csvlint/internal/web/middleware"
)

// RunHistory is the read side of the run store.
type RunHistory interface {
	GetRun(ctx context.Context, id uuid.UUID) (*core.Report, error)
	ListRuns(ctx context.Context, limit int) ([]store.RunSummary, error)
	KindCounts(ctx context.Context, id uuid.UUID) ([]store.KindCount, error)
}

// Server is the HTTP server for the validation API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	history RunHistory
	metrics *metrics.Collector
	router  *chi.Mux
	server  *http.Server

	readLimiter     *rateLimiter
	validateLimiter *rateLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithHistory enables the /api/runs endpoints.
func WithHistory(h RunHistory) Option { return func(s *Server) { s.history = h } }

// WithMetrics serves m on /metrics and counts rate limit rejections.
func WithMetrics(m *metrics.Collector) Option { return func(s *Server) { s.metrics = m } }

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.Rate.Enabled {
		s.readLimiter = newRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.validateLimiter = newRateLimiter(cfg.Rate.ValidateLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)

	// Security hardening
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(webmw.APIKeyAuth(&s.cfg.Security))

		// Validation runs are bounded by the service timeout, not the
		// request timeout.
		r.With(s.rateLimit(s.validateLimiter)).Post("/validate", s.handleValidate)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
			r.Use(s.rateLimit(s.readLimiter))
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{runID}", s.handleGetRun)
			r.Get("/runs/{runID}/kinds", s.handleRunKinds)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, waits for active validation runs to
// finish, and stops the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.readLimiter.stop()
	defer s.validateLimiter.stop()

	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	if l := s.service.Limiter(); l != nil {
		return l.WaitForDrain(ctx)
	}
	return nil
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		// The API serves no documents; nothing may be loaded from a response.
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
