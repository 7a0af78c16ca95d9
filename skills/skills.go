// Package skills implements the deterministic programs that translate a
// classified intent into tool calls. A skill never free-forms with a model;
// it composes tools through the dispatcher and reports every call, change,
// and undo step so the executor can assemble a complete receipt.
package skills

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/c360studio/atlas/intent"
	"github.com/c360studio/atlas/llm"
	"github.com/c360studio/atlas/receipt"
	"github.com/c360studio/atlas/tools"
)

// Context carries everything a skill may consult during execution.
type Context struct {
	// Intent is the validated classification driving this execution.
	Intent *intent.Intent

	// Receipt is the in-progress audit record. Skills may read it for
	// correlation; the executor owns all writes.
	Receipt *receipt.Receipt

	// Providers gives access to model adapters for bounded sub-tasks.
	// The shipped skills never call a model.
	Providers *llm.Registry

	// Tools dispatches tool calls through the confirmation policy.
	Tools *tools.Registry

	// UserID identifies the requesting user, empty when unauthenticated.
	UserID string
}

// Result is the outcome of one skill execution. The executor merges it
// into the receipt verbatim: tool calls, changes, and undo steps keep
// their append order.
type Result struct {
	Success   bool
	ToolCalls []receipt.ToolCall
	Changes   []receipt.Change
	UndoSteps []receipt.UndoStep
	Data      map[string]any
	Errors    []string
	Warnings  []string
}

func newResult() *Result {
	return &Result{Success: true, Data: map[string]any{}}
}

// record appends a dispatched tool call and, when the call succeeded,
// absorbs the result's changes and undo step. Keeping both appends in one
// place preserves the pairing of every Change with its UndoStep.
func (r *Result) record(call receipt.ToolCall, res *tools.Result) {
	r.ToolCalls = append(r.ToolCalls, call)
	if res == nil || !res.Success {
		return
	}
	r.Changes = append(r.Changes, res.Changes...)
	if res.UndoStep != nil {
		r.UndoSteps = append(r.UndoSteps, *res.UndoStep)
	}
}

func (r *Result) fail(msg string) *Result {
	r.Success = false
	r.Errors = append(r.Errors, msg)
	return r
}

// Skill is a deterministic program keyed by intent type.
type Skill interface {
	// Name is the unique skill identifier, e.g. "capture_tasks".
	Name() string

	// IntentTypes lists the intent types this skill handles.
	IntentTypes() []intent.Type

	// RiskLevel is the highest risk of any tool the skill may invoke.
	RiskLevel() intent.RiskLevel

	// Description is a short human-readable summary.
	Description() string

	// Execute runs the skill. A non-nil error means the skill itself
	// misbehaved; domain failures are reported via Result.Success=false.
	Execute(ctx context.Context, sc *Context) (*Result, error)
}

// funcSkill adapts a function to the Skill interface. All shipped skills
// are built this way.
type funcSkill struct {
	name        string
	intentTypes []intent.Type
	risk        intent.RiskLevel
	description string
	fn          func(ctx context.Context, sc *Context) (*Result, error)
}

func (s *funcSkill) Name() string                { return s.name }
func (s *funcSkill) RiskLevel() intent.RiskLevel { return s.risk }
func (s *funcSkill) Description() string         { return s.description }

func (s *funcSkill) IntentTypes() []intent.Type {
	out := make([]intent.Type, len(s.intentTypes))
	copy(out, s.intentTypes)
	return out
}

func (s *funcSkill) Execute(ctx context.Context, sc *Context) (*Result, error) {
	return s.fn(ctx, sc)
}

// requireTools guards skills against a context wired without a tool
// registry. The second return is non-nil when the guard failed.
func requireTools(sc *Context) (*tools.Registry, *Result) {
	if sc.Tools == nil {
		return nil, newResult().fail("tools registry not available")
	}
	return sc.Tools, nil
}

// Info describes a registered skill for introspection endpoints.
type Info struct {
	Name        string   `json:"name"`
	IntentTypes []string `json:"intent_types"`
	RiskLevel   string   `json:"risk_level"`
	Description string   `json:"description"`
}

// Registry maps intent types to skills. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	skills   map[string]Skill
	byIntent map[intent.Type]Skill
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for registration and dispatch events.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty skill registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		skills:   make(map[string]Skill),
		byIntent: make(map[intent.Type]Skill),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a skill and claims its intent types, replacing any previous
// claims. Last registration wins per intent type.
func (r *Registry) Register(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.skills[s.Name()] = s
	for _, t := range s.IntentTypes() {
		r.byIntent[t] = s
	}
	r.logger.Info("skill registered",
		"skill", s.Name(),
		"risk", s.RiskLevel().String())
}

// Unregister removes a skill by name and releases its intent types.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.skills[name]
	if !ok {
		return false
	}
	delete(r.skills, name)
	for _, t := range s.IntentTypes() {
		if r.byIntent[t] == s {
			delete(r.byIntent, t)
		}
	}
	return true
}

// Get returns a skill by name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// ForIntent returns the skill registered for an intent type.
func (r *Registry) ForIntent(t intent.Type) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byIntent[t]
	return s, ok
}

// List returns registered skill names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SkillInfo describes every registered skill, sorted by name.
func (r *Registry) SkillInfo() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.skills))
	for _, s := range r.skills {
		types := s.IntentTypes()
		typeNames := make([]string, len(types))
		for i, t := range types {
			typeNames[i] = t.String()
		}
		infos = append(infos, Info{
			Name:        s.Name(),
			IntentTypes: typeNames,
			RiskLevel:   s.RiskLevel().String(),
			Description: s.Description(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Execute routes the context to the skill claiming its intent type. An
// unclaimed intent type is a domain failure reported in the result, not an
// error.
func (r *Registry) Execute(ctx context.Context, sc *Context) (*Result, error) {
	s, ok := r.ForIntent(sc.Intent.Type)
	if !ok {
		return newResult().fail(fmt.Sprintf("no skill registered for intent type: %s", sc.Intent.Type)), nil
	}

	r.logger.Debug("executing skill", "skill", s.Name(), "intent", sc.Intent.Type.String())
	return s.Execute(ctx, sc)
}

// RegisterAll registers the five shipped skills.
func RegisterAll(registry *Registry) {
	registry.Register(NewCaptureTasks())
	registry.Register(NewSearchSummarize())
	registry.Register(NewPlanDay())
	registry.Register(NewProcessMeetingNotes())
	registry.Register(NewBuildWorkflow())
}

// Skill data flows through map[string]any on both sides of the dispatcher,
// so the same shape coercers tools use are needed here.

func stringsFromAny(v any) []string {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func mapsFromAny(v any) []map[string]any {
	switch list := v.(type) {
	case []map[string]any:
		return list
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
