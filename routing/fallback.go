// Package routing holds the deterministic retry and fallback policy: which
// model handles a job first, when a failed attempt is retried with a repair
// prompt, and which model is tried next when one is exhausted.
package routing

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360studio/atlas/intent"
	"github.com/c360studio/atlas/receipt"
)

// Retry caps. These are deliberately constants, not configuration: every
// request is bounded to the same worst case regardless of deployment.
const (
	// MaxAttemptsPerModel is the attempt budget per (provider, model) pair:
	// one normal attempt plus one with the repair prompt.
	MaxAttemptsPerModel = 2

	// MaxModelsPerRequest bounds how many distinct models one request may touch.
	MaxModelsPerRequest = 3
)

// JobClass classifies the work a model is being asked to do, so chains can
// prefer cheap models for routing and stronger ones for planning.
type JobClass string

const (
	JobIntentRouting    JobClass = "INTENT_ROUTING"
	JobPlanning         JobClass = "PLANNING"
	JobExtraction       JobClass = "EXTRACTION"
	JobSummarization    JobClass = "SUMMARIZATION"
	JobWorkflowBuilding JobClass = "WORKFLOW_BUILDING"
)

// JobClasses lists every job class, in a stable order.
func JobClasses() []JobClass {
	return []JobClass{
		JobIntentRouting,
		JobPlanning,
		JobExtraction,
		JobSummarization,
		JobWorkflowBuilding,
	}
}

// IsValid reports whether j is a known job class.
func (j JobClass) IsValid() bool {
	switch j {
	case JobIntentRouting, JobPlanning, JobExtraction, JobSummarization, JobWorkflowBuilding:
		return true
	}
	return false
}

// ModelRef identifies one (provider, model) pair in a chain.
type ModelRef struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
}

func (m ModelRef) String() string {
	return m.Provider + "/" + m.Model
}

// ultimateFallback is the chain of last resort when no table entry matches.
var ultimateFallback = ModelRef{Provider: "ollama", Model: "llama3.2:1b"}

// Action is what the manager recommends after a failed attempt.
type Action string

const (
	ActionRetrySameModel    Action = "RETRY_SAME_MODEL"
	ActionFallbackNextModel Action = "FALLBACK_NEXT_MODEL"
	ActionFail              Action = "FAIL"
)

// Decision is the manager's recommendation after a failure.
type Decision struct {
	Action          Action
	Reason          string
	NextProvider    string
	NextModel       string
	UseRepairPrompt bool
}

type chainKey struct {
	profile intent.RoutingProfile
	job     JobClass
}

// Manager holds the model chain table and applies the retry policy.
// Safe for concurrent use; chain reconfiguration affects subsequent
// decisions only.
type Manager struct {
	mu     sync.RWMutex
	chains map[chainKey][]ModelRef
	logger *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for chain reconfiguration events.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager with the default chain table. Combinations
// not listed explicitly inherit their profile's INTENT_ROUTING chain.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		chains: defaultChains(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.fillDefaults()
	return m
}

// defaultChains is the built-in chain table: local models only for OFFLINE,
// cloud-first with a local fallback otherwise.
func defaultChains() map[chainKey][]ModelRef {
	offline := []ModelRef{
		{Provider: "ollama", Model: "llama3.2:1b"},
		{Provider: "ollama", Model: "llama3.2"},
		{Provider: "ollama", Model: "mistral"},
	}

	return map[chainKey][]ModelRef{
		{intent.ProfileOffline, JobIntentRouting}: offline,
		{intent.ProfileOffline, JobPlanning}:      offline,
		{intent.ProfileOffline, JobExtraction}:    offline,

		{intent.ProfileBalanced, JobIntentRouting}: {
			{Provider: "openai", Model: "gpt-4o-mini"},
			{Provider: "openai", Model: "gpt-4o"},
			{Provider: "ollama", Model: "llama3.2:1b"},
		},
		{intent.ProfileBalanced, JobPlanning}: {
			{Provider: "openai", Model: "gpt-4o-mini"},
			{Provider: "openai", Model: "gpt-4o"},
			{Provider: "ollama", Model: "llama3.2:1b"},
		},
		{intent.ProfileBalanced, JobExtraction}: {
			{Provider: "openai", Model: "gpt-4o-mini"},
			{Provider: "ollama", Model: "llama3.2:1b"},
		},

		{intent.ProfileAccuracy, JobIntentRouting}: {
			{Provider: "openai", Model: "gpt-4o"},
			{Provider: "openai", Model: "gpt-4o-mini"},
			{Provider: "ollama", Model: "llama3.2:1b"},
		},
		{intent.ProfileAccuracy, JobPlanning}: {
			{Provider: "openai", Model: "gpt-4o"},
			{Provider: "openai", Model: "gpt-4o-mini"},
		},
		{intent.ProfileAccuracy, JobExtraction}: {
			{Provider: "openai", Model: "gpt-4o"},
			{Provider: "openai", Model: "gpt-4o-mini"},
		},
	}
}

// fillDefaults completes the table: missing combinations inherit the
// profile's INTENT_ROUTING chain, or the ultimate fallback.
func (m *Manager) fillDefaults() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, profile := range intent.RoutingProfiles() {
		for _, job := range JobClasses() {
			key := chainKey{profile, job}
			if _, ok := m.chains[key]; ok {
				continue
			}
			if chain, ok := m.chains[chainKey{profile, JobIntentRouting}]; ok {
				m.chains[key] = chain
				continue
			}
			m.chains[key] = []ModelRef{ultimateFallback}
		}
	}
}

// Chain returns the model chain for a profile and job class, capped at
// MaxModelsPerRequest. The returned slice is a copy.
func (m *Manager) Chain(profile intent.RoutingProfile, job JobClass) []ModelRef {
	m.mu.RLock()
	chain, ok := m.chains[chainKey{profile, job}]
	m.mu.RUnlock()

	if !ok || len(chain) == 0 {
		return []ModelRef{ultimateFallback}
	}

	if len(chain) > MaxModelsPerRequest {
		chain = chain[:MaxModelsPerRequest]
	}

	out := make([]ModelRef, len(chain))
	copy(out, chain)
	return out
}

// FirstModel returns the first model to try for a profile and job class.
func (m *Manager) FirstModel(profile intent.RoutingProfile, job JobClass) ModelRef {
	chain := m.Chain(profile, job)
	return chain[0]
}

// ConfigureChain replaces the chain for one (profile, job) combination.
// The change applies to subsequent requests only.
func (m *Manager) ConfigureChain(profile intent.RoutingProfile, job JobClass, models []ModelRef) {
	chain := make([]ModelRef, len(models))
	copy(chain, models)

	m.mu.Lock()
	m.chains[chainKey{profile, job}] = chain
	m.mu.Unlock()

	m.logger.Info("routing chain configured",
		"profile", string(profile),
		"job_class", string(job),
		"models", len(chain))
}

// Decide recommends the next step after a failed attempt.
//
// Retrying the same model is reserved for content failures (bad JSON,
// validation errors) where a repair prompt can help; transport failures skip
// straight to the next model in the chain. Chain order is preserved when
// falling back regardless of which triggers fired along the way.
func (m *Manager) Decide(trigger receipt.FallbackTrigger, attempts []receipt.ModelAttempt, profile intent.RoutingProfile, job JobClass) Decision {
	if len(attempts) == 0 {
		return Decision{
			Action: ActionFail,
			Reason: "no attempts recorded - invalid state",
		}
	}

	current := attempts[len(attempts)-1]
	currentModel := ModelRef{Provider: current.Provider, Model: current.Model}

	currentAttempts := 0
	for _, a := range attempts {
		if a.Provider == current.Provider && a.Model == current.Model {
			currentAttempts++
		}
	}

	if currentAttempts < MaxAttemptsPerModel &&
		(trigger == receipt.TriggerInvalidJSON || trigger == receipt.TriggerValidationError) {
		return Decision{
			Action:          ActionRetrySameModel,
			Reason:          fmt.Sprintf("retry with repair prompt (attempt %d/%d)", currentAttempts+1, MaxAttemptsPerModel),
			NextProvider:    current.Provider,
			NextModel:       current.Model,
			UseRepairPrompt: true,
		}
	}

	tried := make(map[ModelRef]bool, len(attempts))
	for _, a := range attempts {
		tried[ModelRef{Provider: a.Provider, Model: a.Model}] = true
	}

	if len(tried) >= MaxModelsPerRequest {
		return Decision{
			Action: ActionFail,
			Reason: fmt.Sprintf("exhausted all %d models", MaxModelsPerRequest),
		}
	}

	for _, ref := range m.Chain(profile, job) {
		if !tried[ref] {
			return Decision{
				Action:       ActionFallbackNextModel,
				Reason:       fmt.Sprintf("falling back from %s to %s", currentModel, ref),
				NextProvider: ref.Provider,
				NextModel:    ref.Model,
			}
		}
	}

	return Decision{
		Action: ActionFail,
		Reason: "no more models in chain to try",
	}
}
