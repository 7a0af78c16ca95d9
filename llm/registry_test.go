package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"
)

// fakeAdapter is a scriptable Adapter for registry tests.
type fakeAdapter struct {
	name      string
	health    *Health
	healthErr error
	models    []string
	modelsErr error
	closeErr  error
	closed    bool
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Content: "{}", Model: req.Model, Provider: f.name}, nil
}

func (f *fakeAdapter) HealthCheck(context.Context) (*Health, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	if f.health != nil {
		return f.health, nil
	}
	return &Health{Status: HealthHealthy, LatencyMS: 3, LastCheck: time.Now().UTC()}, nil
}

func (f *fakeAdapter) Capabilities(string) Capabilities { return DefaultCapabilities() }

func (f *fakeAdapter) ListModels(context.Context) ([]string, error) {
	if f.modelsErr != nil {
		return nil, f.modelsErr
	}
	return f.models, nil
}

func (f *fakeAdapter) Close() error {
	f.closed = true
	return f.closeErr
}

func quietRegistry() *Registry {
	return NewRegistry(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestRegistryRegisterSeedsUnknownHealth(t *testing.T) {
	r := quietRegistry()
	r.Register(&fakeAdapter{name: "ollama"})

	health, ok := r.CachedHealth("ollama")
	if !ok {
		t.Fatal("expected cached health for registered provider")
	}
	if health.Status != HealthUnknown {
		t.Errorf("expected UNKNOWN before first check, got %s", health.Status)
	}
	if !r.IsAvailable("ollama") {
		t.Error("unchecked provider should count as available")
	}
	if _, ok := r.Status()["ollama"]; !ok {
		t.Error("Status snapshot should include never-checked providers")
	}
}

func TestRegistryReregisterResetsHealth(t *testing.T) {
	r := quietRegistry()
	r.Register(&fakeAdapter{name: "ollama", healthErr: errors.New("boom")})
	if _, err := r.CheckHealth(context.Background(), "ollama"); err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if r.IsAvailable("ollama") {
		t.Fatal("failed check should mark provider unavailable")
	}

	r.Register(&fakeAdapter{name: "ollama"})
	health, _ := r.CachedHealth("ollama")
	if health.Status != HealthUnknown {
		t.Errorf("re-registering should reset health to UNKNOWN, got %s", health.Status)
	}
	if !r.IsAvailable("ollama") {
		t.Error("re-registered provider should be available again")
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := quietRegistry()
	for _, name := range []string{"openai", "anthropic", "ollama"} {
		r.Register(&fakeAdapter{name: name})
	}
	want := []string{"anthropic", "ollama", "openai"}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestRegistryCheckHealth(t *testing.T) {
	tests := []struct {
		name          string
		adapter       *fakeAdapter
		wantStatus    HealthStatus
		wantAvailable bool
	}{
		{
			name:          "healthy result cached",
			adapter:       &fakeAdapter{name: "ollama"},
			wantStatus:    HealthHealthy,
			wantAvailable: true,
		},
		{
			name: "degraded still routable",
			adapter: &fakeAdapter{
				name:   "ollama",
				health: &Health{Status: HealthDegraded, LastCheck: time.Now().UTC()},
			},
			wantStatus:    HealthDegraded,
			wantAvailable: true,
		},
		{
			name:          "adapter failure cached as unhealthy",
			adapter:       &fakeAdapter{name: "ollama", healthErr: errors.New("connection refused")},
			wantStatus:    HealthUnhealthy,
			wantAvailable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := quietRegistry()
			r.Register(tt.adapter)

			health, err := r.CheckHealth(context.Background(), "ollama")
			if err != nil {
				t.Fatalf("CheckHealth: %v", err)
			}
			if health.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", health.Status, tt.wantStatus)
			}
			cached, _ := r.CachedHealth("ollama")
			if cached.Status != tt.wantStatus {
				t.Errorf("cached status = %s, want %s", cached.Status, tt.wantStatus)
			}
			if got := r.IsAvailable("ollama"); got != tt.wantAvailable {
				t.Errorf("IsAvailable = %v, want %v", got, tt.wantAvailable)
			}
		})
	}
}

func TestRegistryCheckHealthFailureKeepsErrorMessage(t *testing.T) {
	r := quietRegistry()
	r.Register(&fakeAdapter{name: "openai", healthErr: errors.New("dial tcp: connection refused")})

	health, err := r.CheckHealth(context.Background(), "openai")
	if err != nil {
		t.Fatalf("adapter failure must be cached, not returned: %v", err)
	}
	if !strings.Contains(health.Error, "connection refused") {
		t.Errorf("expected adapter error preserved, got %q", health.Error)
	}
	if health.LastCheck.IsZero() {
		t.Error("failed check should still stamp LastCheck")
	}
}

func TestRegistryCheckHealthUnregistered(t *testing.T) {
	r := quietRegistry()
	_, err := r.CheckHealth(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error for unregistered provider")
	}
	if !strings.Contains(err.Error(), "provider not registered: nope") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRegistryCheckAllHealth(t *testing.T) {
	r := quietRegistry()
	r.Register(&fakeAdapter{name: "ollama"})
	r.Register(&fakeAdapter{name: "groq", healthErr: errors.New("401")})

	results := r.CheckAllHealth(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results["ollama"].Status != HealthHealthy {
		t.Errorf("ollama = %s, want HEALTHY", results["ollama"].Status)
	}
	if results["groq"].Status != HealthUnhealthy {
		t.Errorf("groq = %s, want UNHEALTHY", results["groq"].Status)
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := quietRegistry()
	r.Register(&fakeAdapter{name: "ollama"})
	r.Unregister("ollama")

	if _, ok := r.Get("ollama"); ok {
		t.Error("Get should miss after Unregister")
	}
	if _, ok := r.CachedHealth("ollama"); ok {
		t.Error("cached health should be dropped with the adapter")
	}
	if r.IsAvailable("ollama") {
		t.Error("unregistered provider is never available")
	}

	// Unknown names are a no-op.
	r.Unregister("ghost")
}

func TestRegistryListModels(t *testing.T) {
	r := quietRegistry()
	r.Register(&fakeAdapter{name: "ollama", models: []string{"llama3.2:1b", "mistral"}})

	models, err := r.ListModels(context.Background(), "ollama")
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if !reflect.DeepEqual(models, []string{"llama3.2:1b", "mistral"}) {
		t.Errorf("unexpected models: %v", models)
	}

	if _, err := r.ListModels(context.Background(), "nope"); err == nil {
		t.Error("expected error for unregistered provider")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := quietRegistry()
	good := &fakeAdapter{name: "ollama"}
	bad := &fakeAdapter{name: "openai", closeErr: errors.New("already closed")}
	r.Register(good)
	r.Register(bad)

	err := r.CloseAll()
	if err == nil {
		t.Fatal("expected joined close errors")
	}
	if !strings.Contains(err.Error(), "close provider openai") {
		t.Errorf("expected wrapped provider name, got %v", err)
	}
	if !good.closed || !bad.closed {
		t.Error("CloseAll must close every adapter even when one fails")
	}
}
