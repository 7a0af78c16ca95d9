// Package tools provides the deterministic operations ATLAS skills invoke.
// Tools take validated arguments, perform a single operation, and return
// results with undo information. They never make model calls.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360studio/atlas/intent"
	"github.com/c360studio/atlas/receipt"
)

// Tool is a single deterministic operation.
type Tool interface {
	// Name is the unique tool identifier, e.g. "TASK_CREATE".
	Name() string

	// Description is a short human-readable summary.
	Description() string

	// RiskLevel drives the confirmation policy: MEDIUM and HIGH risk
	// tools are held for confirmation before executing.
	RiskLevel() intent.RiskLevel

	// Execute runs the tool. A non-nil error means the tool itself
	// misbehaved; domain failures (entity not found) are reported via
	// Result.Success=false with Result.Error set.
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Result is the outcome of one tool execution.
type Result struct {
	Success bool
	Data    map[string]any
	Changes []receipt.Change
	// UndoStep reverses this execution's mutation, nil for read-only tools.
	UndoStep *receipt.UndoStep
	Error    string
}

// RequiresConfirmation reports whether a tool is held for user confirmation.
func RequiresConfirmation(t Tool) bool {
	rl := t.RiskLevel()
	return rl == intent.RiskMedium || rl == intent.RiskHigh
}

// Info describes a registered tool for introspection endpoints.
type Info struct {
	Name                 string `json:"name"`
	Description          string `json:"description"`
	RiskLevel            string `json:"risk_level"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
}

// Registry holds the registered tools and dispatches calls through the
// confirmation policy. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for dispatch events.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty tool registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:  make(map[string]Tool),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool, replacing any previous tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	r.tools[t.Name()] = t
	r.mu.Unlock()
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return false
	}
	delete(r.tools, name)
	return true
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToolInfo describes every registered tool, sorted by name.
func (r *Registry) ToolInfo() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, Info{
			Name:                 t.Name(),
			Description:          t.Description(),
			RiskLevel:            t.RiskLevel().String(),
			RequiresConfirmation: RequiresConfirmation(t),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Dispatch executes a tool by name and returns the audit record for the
// call. The contract:
//
//   - unknown tool: FAILED record, nil result, the tool never ran
//   - confirmation required and not skipped: PENDING_CONFIRM record,
//     nil result, the tool never ran
//   - otherwise the tool runs: OK on success, FAILED with the error
//     message on failure
func (r *Registry) Dispatch(ctx context.Context, toolName string, args map[string]any, skipConfirmation bool) (receipt.ToolCall, *Result) {
	call := receipt.ToolCall{
		ToolName:     toolName,
		Args:         args,
		TimestampUTC: time.Now().UTC(),
	}

	tool, ok := r.Get(toolName)
	if !ok {
		call.Status = receipt.CallFailed
		call.Error = fmt.Sprintf("tool not found: %s", toolName)
		return call, nil
	}

	if RequiresConfirmation(tool) && !skipConfirmation {
		call.Status = receipt.CallPendingConfirm
		r.logger.Info("tool call held for confirmation",
			"tool", toolName,
			"risk", tool.RiskLevel().String())
		return call, nil
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		call.Status = receipt.CallFailed
		call.Error = err.Error()
		r.logger.Error("tool execution error", "tool", toolName, "error", err)
		return call, nil
	}

	if result.Success {
		call.Status = receipt.CallOK
	} else {
		call.Status = receipt.CallFailed
	}
	call.Result = result.Data
	call.Error = result.Error

	return call, result
}
