package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry is a process-wide store of provider adapters with a last-known
// health cache per provider. Health is refreshed on demand via CheckHealth;
// the registry never schedules checks on its own.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	health   map[string]*Health
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets a custom logger for the registry.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty provider registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter),
		health:   make(map[string]*Health),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an adapter under its own name, replacing any previous
// adapter with that name. Health starts as UNKNOWN until the first check.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := adapter.Name()
	r.adapters[name] = adapter
	r.health[name] = &Health{Status: HealthUnknown}
	r.logger.Info("provider registered", "provider", name)
}

// Unregister removes an adapter and its cached health. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.adapters, name)
	delete(r.health, name)
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[name]
	return adapter, ok
}

// List returns the registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckHealth probes one provider and caches the result. An adapter failure
// is cached as UNHEALTHY rather than returned; the only error case is an
// unregistered name.
func (r *Registry) CheckHealth(ctx context.Context, name string) (*Health, error) {
	r.mu.RLock()
	adapter, ok := r.adapters[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider not registered: %s", name)
	}

	health, err := adapter.HealthCheck(ctx)
	if err != nil {
		health = &Health{
			Status:    HealthUnhealthy,
			LastCheck: time.Now().UTC(),
			Error:     err.Error(),
		}
	}

	r.mu.Lock()
	r.health[name] = health
	r.mu.Unlock()

	r.logger.Debug("provider health checked",
		"provider", name,
		"status", string(health.Status),
		"latency_ms", health.LatencyMS,
	)
	return health, nil
}

// CheckAllHealth probes every registered provider and returns the results.
func (r *Registry) CheckAllHealth(ctx context.Context) map[string]*Health {
	results := make(map[string]*Health)
	for _, name := range r.List() {
		health, err := r.CheckHealth(ctx, name)
		if err != nil {
			// Unregistered between List and CheckHealth.
			continue
		}
		results[name] = health
	}
	return results
}

// CachedHealth returns the last known health for a provider without probing.
func (r *Registry) CachedHealth(name string) (*Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health, ok := r.health[name]
	return health, ok
}

// IsAvailable reports whether a provider is usable for routing. A provider
// is available when registered and its cached health is anything other than
// UNHEALTHY; an unchecked provider (UNKNOWN) counts as available.
func (r *Registry) IsAvailable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.adapters[name]; !ok {
		return false
	}
	health, ok := r.health[name]
	if !ok {
		return true
	}
	return health.Status != HealthUnhealthy
}

// ListModels returns the models served by the named provider.
func (r *Registry) ListModels(ctx context.Context, name string) ([]string, error) {
	adapter, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("provider not registered: %s", name)
	}
	return adapter.ListModels(ctx)
}

// CloseAll closes every registered adapter and joins their errors.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, adapter := range r.adapters {
		if err := adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close provider %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Status returns a snapshot of cached health for every registered provider.
func (r *Registry) Status() map[string]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]Health, len(r.health))
	for name, health := range r.health {
		snapshot[name] = *health
	}
	return snapshot
}
