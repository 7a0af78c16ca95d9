package tools

import (
	"context"
	"fmt"

	"github.com/c360studio/atlas/intent"
)

// funcTool adapts a function to the Tool interface. All shipped tools are
// built this way; the struct form is only needed for tools carrying extra
// dependencies.
type funcTool struct {
	name        string
	description string
	risk        intent.RiskLevel
	fn          func(ctx context.Context, args map[string]any) (*Result, error)
}

func (t *funcTool) Name() string                { return t.name }
func (t *funcTool) Description() string         { return t.description }
func (t *funcTool) RiskLevel() intent.RiskLevel { return t.risk }

func (t *funcTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	return t.fn(ctx, args)
}

// failure builds a domain-failure result (tool ran, operation refused).
func failure(format string, args ...any) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Tool args arrive from model JSON output, so numbers are float64 and
// lists are []any. These helpers coerce without panicking on bad shapes.

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func stringArgDefault(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func intArgDefault(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func stringSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func mapArg(args map[string]any, key string) map[string]any {
	if v, ok := args[key].(map[string]any); ok {
		return v
	}
	return nil
}

func mapSliceArg(args map[string]any, key string) []map[string]any {
	switch v := args[key].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
