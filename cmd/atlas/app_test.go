package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/c360studio/atlas/config"
	"github.com/c360studio/atlas/events"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.DatabaseURL = "sqlite::memory:"
	return cfg
}

func TestBuildApp(t *testing.T) {
	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))

	a, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.close()

	if a.server == nil {
		t.Error("server not initialized")
	}
	if a.db == nil {
		t.Error("database not initialized")
	}
	if a.watcher != nil {
		t.Error("watcher should be nil without ROUTING_CONFIG")
	}
	if _, ok := a.publisher.(events.Noop); !ok {
		t.Errorf("publisher = %T, want events.Noop without NATS_URL", a.publisher)
	}

	names := a.providers.List()
	if len(names) != 1 || names[0] != "ollama" {
		t.Errorf("providers = %v, want [ollama]", names)
	}
}

func TestBuildProvidersWithKeys(t *testing.T) {
	cfg := testConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.GroqAPIKey = "gsk-test"
	cfg.AnthropicAPIKey = "ant-test"

	registry := buildProviders(cfg, slog.Default())

	want := []string{"anthropic", "groq", "ollama", "openai"}
	got := registry.List()
	if len(got) != len(want) {
		t.Fatalf("providers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("providers[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConfigureLogging(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		debug     bool
		wantDebug bool
	}{
		{"default info", "info", false, false},
		{"explicit debug", "debug", false, true},
		{"env debug wins", "warn", true, true},
		{"warn suppresses info", "warn", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := configureLogging(tt.level, tt.debug)
			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
		})
	}
}

func TestDBBackend(t *testing.T) {
	cfg := testConfig()
	cfg.DatabaseURL = "postgres://user:secret@db:5432/atlas"
	if got := dbBackend(cfg); got != "postgres" {
		t.Errorf("dbBackend = %q, want postgres", got)
	}
	if strings.Contains(dbBackend(cfg), "secret") {
		t.Error("dbBackend leaked credentials")
	}

	cfg.DatabaseURL = "sqlite://./atlas.db"
	if got := dbBackend(cfg); got != "sqlite:./atlas.db" {
		t.Errorf("dbBackend = %q", got)
	}
}

func TestWrapNATSError(t *testing.T) {
	err := wrapNATSError(errors.New("dial tcp: connection refused"), "nats://localhost:4222")
	if !strings.Contains(err.Error(), "NATS is not running") {
		t.Errorf("want startup guidance, got: %v", err)
	}

	err = wrapNATSError(errors.New("authorization violation"), "nats://localhost:4222")
	if strings.Contains(err.Error(), "NATS is not running") {
		t.Errorf("auth errors should not suggest starting NATS: %v", err)
	}
}

func TestWrapDatabaseError(t *testing.T) {
	cfg := testConfig()
	cfg.DatabaseURL = "postgres://localhost:5432/atlas"

	err := wrapDatabaseError(errors.New("dial tcp: connection refused"), cfg)
	if !strings.Contains(err.Error(), "PostgreSQL is not reachable") {
		t.Errorf("want startup guidance, got: %v", err)
	}

	cfg.DatabaseURL = "sqlite://./atlas.db"
	err = wrapDatabaseError(errors.New("unable to open database file"), cfg)
	if strings.Contains(err.Error(), "PostgreSQL") {
		t.Errorf("sqlite errors should not mention postgres: %v", err)
	}
}

// testWriter routes logger output through the test log so failures show
// the wiring chatter.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
