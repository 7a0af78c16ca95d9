// Package llm defines the adapter contract for model providers plus the
// shared request, response, capability, and health types. Concrete adapters
// live in llm/providers; the Registry tracks registered adapters and caches
// their last known health.
package llm

import (
	"context"
	"time"
)

// DefaultMaxTokens is the completion budget used when a request does not set one.
const DefaultMaxTokens = 2048

// Message is a single chat message sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes one model invocation.
type CompletionRequest struct {
	// Messages is the conversation, in order. A leading system message is
	// allowed; adapters translate it to their provider's convention.
	Messages []Message `json:"messages"`

	// Model is the provider-specific model identifier.
	Model string `json:"model"`

	// Temperature controls sampling randomness.
	Temperature float64 `json:"temperature"`

	// MaxTokens caps the completion length. Zero means DefaultMaxTokens.
	MaxTokens int `json:"max_tokens"`

	// JSONMode asks the provider to constrain output to valid JSON where
	// the provider supports it. Providers without a JSON mode ignore it.
	JSONMode bool `json:"json_mode"`
}

// TokenUsage reports token consumption for one completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the normalized result of a completion call.
type CompletionResponse struct {
	Content      string     `json:"content"`
	Model        string     `json:"model"`
	Provider     string     `json:"provider"`
	Usage        TokenUsage `json:"usage"`
	LatencyMS    int64      `json:"latency_ms"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

// Capabilities describes what a provider/model pair can do.
type Capabilities struct {
	// StrictJSON reports whether the model produces valid JSON reliably.
	StrictJSON bool `json:"strict_json"`

	// ToolCalls reports whether the model supports function calling.
	ToolCalls bool `json:"tool_calls"`

	// Streaming reports whether the provider can stream responses.
	Streaming bool `json:"streaming"`

	// MaxTokens is the maximum output length.
	MaxTokens int `json:"max_tokens"`

	// ContextWindow is the maximum total context size in tokens.
	ContextWindow int `json:"context_window"`
}

// DefaultCapabilities is the conservative baseline reported for models an
// adapter does not recognize.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Streaming:     true,
		MaxTokens:     4096,
		ContextWindow: 8192,
	}
}

// HealthStatus classifies provider availability.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "HEALTHY"
	HealthDegraded  HealthStatus = "DEGRADED"
	HealthUnhealthy HealthStatus = "UNHEALTHY"
	HealthUnknown   HealthStatus = "UNKNOWN"
)

// Health is a point-in-time provider health report.
type Health struct {
	Status          HealthStatus `json:"status"`
	LatencyMS       int64        `json:"latency_ms,omitempty"`
	LastCheck       time.Time    `json:"last_check"`
	Error           string       `json:"error,omitempty"`
	ModelsAvailable []string     `json:"models_available,omitempty"`
}

// Adapter is the contract every provider implements.
type Adapter interface {
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string

	// Complete sends a completion request and returns the normalized result.
	// Failures are classified: rate limiting surfaces as *RateLimitError,
	// connectivity and auth problems as *ProviderDownError.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// HealthCheck probes the provider and reports availability.
	HealthCheck(ctx context.Context) (*Health, error)

	// Capabilities reports what the given model can do.
	Capabilities(model string) Capabilities

	// ListModels returns the models the provider currently serves.
	ListModels(ctx context.Context) ([]string, error)

	// Close releases provider resources.
	Close() error
}
