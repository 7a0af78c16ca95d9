// Package server exposes the ATLAS HTTP API: the execute endpoint,
// receipt queries, undo and resume, provider and registry introspection,
// health, and Prometheus metrics. Routing is chi; auth is a bearer token
// on /v1/* only, and only when a token is configured.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/atlas/config"
	"github.com/c360studio/atlas/engine"
	"github.com/c360studio/atlas/llm"
	"github.com/c360studio/atlas/skills"
	"github.com/c360studio/atlas/storage"
	"github.com/c360studio/atlas/tools"
)

// maxRequestBodySize caps POST bodies.
const maxRequestBodySize = 1 << 20 // 1 MB

// Server is the ATLAS HTTP front end. Handlers tolerate missing
// dependencies by answering 503, mirroring a partially initialized
// process rather than panicking.
type Server struct {
	cfg       *config.Config
	version   string
	executor  *engine.Executor
	store     *storage.ReceiptStore
	providers *llm.Registry
	skills    *skills.Registry
	tools     *tools.Registry
	gatherer  prometheus.Gatherer
	logger    *slog.Logger

	router     chi.Router
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version string reported by /health and /version.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithExecutor attaches the execution engine.
func WithExecutor(e *engine.Executor) Option {
	return func(s *Server) { s.executor = e }
}

// WithStore attaches the receipt store backing the query endpoints.
func WithStore(st *storage.ReceiptStore) Option {
	return func(s *Server) { s.store = st }
}

// WithProviders attaches the provider registry for introspection routes.
func WithProviders(r *llm.Registry) Option {
	return func(s *Server) { s.providers = r }
}

// WithSkills attaches the skill registry for /api/skills.
func WithSkills(r *skills.Registry) Option {
	return func(s *Server) { s.skills = r }
}

// WithTools attaches the tool registry for /api/tools.
func WithTools(r *tools.Registry) Option {
	return func(s *Server) { s.tools = r }
}

// WithGatherer sets the Prometheus gatherer served at /metrics. Without
// one the process-default registry is used.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a server over cfg. The route table is fixed at construction.
func New(cfg *config.Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	s := &Server{
		cfg:     cfg,
		version: "dev",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.routes()
	return s
}

// routes assembles the router. /v1/* carries the auth middleware; the
// /api/* aliases predate versioning and stay open by contract.
func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.recoverPanics)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Method(http.MethodGet, "/metrics", s.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/execute", s.handleExecute)
		r.Get("/receipts", s.handleListReceipts)
		r.Get("/receipts/{id}", s.handleGetReceipt)
		r.Post("/receipts/{id}/undo", s.handleUndo)
		r.Post("/receipts/{id}/resume", s.handleResume)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/providers", s.handleProviders)
		r.Get("/providers/{name}/health", s.handleProviderHealth)
		r.Get("/providers/{name}/models", s.handleProviderModels)
		r.Get("/skills", s.handleSkills)
		r.Get("/tools", s.handleTools)

		// Legacy aliases.
		r.Post("/execute", s.handleExecute)
		r.Get("/receipts", s.handleListReceipts)
		r.Get("/receipts/{id}", s.handleGetReceipt)
		r.Post("/receipts/{id}/undo", s.handleUndo)
	})

	return r
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) metricsHandler() http.Handler {
	if s.gatherer != nil {
		return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("HTTP server listening",
		"addr", s.cfg.ListenAddr(),
		"auth", s.cfg.AuthEnabled())

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
