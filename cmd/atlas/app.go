package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/atlas/config"
	"github.com/c360studio/atlas/engine"
	"github.com/c360studio/atlas/events"
	"github.com/c360studio/atlas/llm"
	"github.com/c360studio/atlas/llm/providers"
	"github.com/c360studio/atlas/metrics"
	"github.com/c360studio/atlas/routing"
	"github.com/c360studio/atlas/server"
	"github.com/c360studio/atlas/skills"
	"github.com/c360studio/atlas/storage"
	"github.com/c360studio/atlas/tools"
)

const shutdownTimeout = 30 * time.Second

// app holds every wired process dependency so shutdown can release them
// in the right order.
type app struct {
	cfg       *config.Config
	db        *sqlx.DB
	providers *llm.Registry
	publisher events.Publisher
	watcher   *routing.Watcher
	server    *server.Server
	logger    *slog.Logger
}

func run(ctx context.Context, logLevel string) error {
	printBanner()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := configureLogging(logLevel, cfg.Debug)

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	// Probe providers once up front so the first request doesn't discover
	// a dead Ollama. Failures are informational; routing skips unhealthy
	// providers on its own.
	healthCtx, healthCancel := context.WithTimeout(ctx, 10*time.Second)
	for name, health := range a.providers.CheckAllHealth(healthCtx) {
		logger.Info("provider health",
			"provider", name,
			"status", string(health.Status),
			"latency_ms", health.LatencyMS)
	}
	healthCancel()

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if a.watcher != nil {
		go func() {
			if err := a.watcher.Start(signalCtx); err != nil {
				logger.Error("routing config watcher stopped", "error", err)
			}
		}()
		defer a.watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	logger.Info("ATLAS ready",
		"version", Version,
		"addr", cfg.ListenAddr(),
		"providers", a.providers.List(),
		"database", dbBackend(cfg))

	select {
	case <-signalCtx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}

	logger.Info("ATLAS shutdown complete")
	return nil
}

// buildApp wires storage, providers, routing, tools, skills, metrics,
// events, the executor, and the HTTP server into a runnable process.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, wrapDatabaseError(err, cfg)
	}
	if err := storage.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	store := storage.NewReceiptStore(db)

	registry := buildProviders(cfg, logger)

	fallback := routing.NewManager(routing.WithLogger(logger))
	if cfg.RoutingConfig != "" {
		if err := fallback.ApplyOverridesFile(cfg.RoutingConfig); err != nil {
			logger.Warn("routing config not applied, using default chains",
				"path", cfg.RoutingConfig,
				"error", err)
		}
	}

	var watcher *routing.Watcher
	if cfg.RoutingConfig != "" {
		w, err := routing.NewWatcher(fallback, cfg.RoutingConfig, logger)
		if err != nil {
			logger.Warn("routing config watcher not started", "error", err)
		} else {
			watcher = w
		}
	}

	toolRegistry := tools.NewRegistry()
	tools.RegisterAll(toolRegistry, tools.NewStore(), cfg.ToolsDisabled, logger)

	skillRegistry := skills.NewRegistry()
	skills.RegisterAll(skillRegistry)

	promRegistry := prometheus.NewRegistry()
	engineMetrics := metrics.New(promRegistry)

	var publisher events.Publisher = events.Noop{}
	if cfg.NATSURL != "" {
		pub, err := events.Connect(cfg.NATSURL, events.WithLogger(logger))
		if err != nil {
			db.Close()
			return nil, wrapNATSError(err, cfg.NATSURL)
		}
		publisher = pub
		logger.Info("receipt events enabled", "url", cfg.NATSURL)
	}

	executor := engine.New(registry, fallback,
		engine.WithSkills(skillRegistry),
		engine.WithTools(toolRegistry),
		engine.WithStore(store),
		engine.WithMetrics(engineMetrics),
		engine.WithEvents(publisher),
		engine.WithLogger(logger),
	)

	srv := server.New(cfg,
		server.WithVersion(Version),
		server.WithExecutor(executor),
		server.WithStore(store),
		server.WithProviders(registry),
		server.WithSkills(skillRegistry),
		server.WithTools(toolRegistry),
		server.WithGatherer(promRegistry),
		server.WithLogger(logger),
	)

	return &app{
		cfg:       cfg,
		db:        db,
		providers: registry,
		publisher: publisher,
		watcher:   watcher,
		server:    srv,
		logger:    logger,
	}, nil
}

// buildProviders registers every provider the configuration enables.
// Ollama is always registered; hosted providers require an API key.
func buildProviders(cfg *config.Config, logger *slog.Logger) *llm.Registry {
	registry := llm.NewRegistry(llm.WithLogger(logger))

	registry.Register(providers.NewOllama(cfg.OllamaBaseURL))
	if cfg.OpenAIAPIKey != "" {
		registry.Register(providers.NewOpenAI(cfg.OpenAIAPIKey))
	}
	if cfg.GroqAPIKey != "" {
		registry.Register(providers.NewGroq(cfg.GroqAPIKey))
	}
	if cfg.AnthropicAPIKey != "" {
		registry.Register(providers.NewAnthropic(cfg.AnthropicAPIKey))
	}

	return registry
}

func runMigrate(ctx context.Context, logLevel string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := configureLogging(logLevel, cfg.Debug)

	db, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		return wrapDatabaseError(err, cfg)
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	logger.Info("migrations applied", "backend", dbBackend(cfg))
	return nil
}

func (a *app) close() {
	if err := a.providers.CloseAll(); err != nil {
		a.logger.Warn("close providers", "error", err)
	}
	a.publisher.Close()
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}

// dbBackend names the store backend without echoing credentials that may
// be embedded in a postgres URL.
func dbBackend(cfg *config.Config) string {
	if cfg.IsPostgres() {
		return "postgres"
	}
	return "sqlite:" + cfg.SQLitePath()
}

// wrapDatabaseError provides helpful guidance when the database is unreachable.
func wrapDatabaseError(err error, cfg *config.Config) error {
	if cfg.IsPostgres() && strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf(`database connection failed: %w

PostgreSQL is not reachable.

To start PostgreSQL:
  docker compose up -d postgres

Or leave DATABASE_URL unset to use local SQLite.`, err)
	}

	return fmt.Errorf("open database: %w", err)
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or unset NATS_URL to run without receipt events.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}
