package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/atlas/llm"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	anthropicTimeout        = 120 * time.Second

	// anthropicProbeModel is the cheapest model, used for health probes.
	anthropicProbeModel = "claude-3-haiku-20240307"
)

// Anthropic adapts the Anthropic Messages API. The API takes the system
// prompt as a top-level field rather than a message, and returns content as
// a list of typed blocks.
type Anthropic struct {
	apiKey  string
	baseURL string
	client  *http.Client
	caps    map[string]llm.Capabilities
}

// AnthropicOption configures an Anthropic adapter.
type AnthropicOption func(*Anthropic)

// WithAnthropicBaseURL overrides the API base URL. Used in tests.
func WithAnthropicBaseURL(u string) AnthropicOption {
	return func(a *Anthropic) {
		a.baseURL = strings.TrimSuffix(u, "/")
	}
}

// NewAnthropic creates an adapter authenticated with the given API key.
func NewAnthropic(apiKey string, opts ...AnthropicOption) *Anthropic {
	a := &Anthropic{
		apiKey:  apiKey,
		baseURL: defaultAnthropicBaseURL,
		client:  newHTTPClient(anthropicTimeout),
		caps: map[string]llm.Capabilities{
			"claude-3-opus-20240229": {
				StrictJSON:    true,
				ToolCalls:     true,
				Streaming:     true,
				MaxTokens:     4096,
				ContextWindow: 200000,
			},
			"claude-3-sonnet-20240229": {
				StrictJSON:    true,
				ToolCalls:     true,
				Streaming:     true,
				MaxTokens:     4096,
				ContextWindow: 200000,
			},
			"claude-3-haiku-20240307": {
				StrictJSON:    true,
				ToolCalls:     true,
				Streaming:     true,
				MaxTokens:     4096,
				ContextWindow: 200000,
			},
			"claude-3-5-sonnet-20241022": {
				StrictJSON:    true,
				ToolCalls:     true,
				Streaming:     true,
				MaxTokens:     8192,
				ContextWindow: 200000,
			},
		},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Name returns the provider identifier.
func (a *Anthropic) Name() string {
	return "anthropic"
}

func (a *Anthropic) headers() map[string]string {
	return map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

type anthropicMessagesRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      string        `json:"system,omitempty"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a messages request, hoisting any system message into the
// top-level system field.
func (a *Anthropic) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if a.apiKey == "" {
		return nil, llm.NewProviderDownError(a.Name(), errors.New("Anthropic API key not configured"))
	}

	var system string
	messages := make([]llm.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			system = msg.Content
			continue
		}
		messages = append(messages, msg)
	}

	payload := anthropicMessagesRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   maxTokens(req),
		Temperature: req.Temperature,
		System:      system,
	}

	start := time.Now()
	res, err := postJSON(ctx, a.client, a.baseURL+"/v1/messages", a.headers(), payload)
	if err != nil {
		return nil, llm.NewProviderDownError(a.Name(), fmt.Errorf("cannot connect to Anthropic API: %w", err))
	}

	switch {
	case res.status == http.StatusTooManyRequests:
		return nil, llm.NewRateLimitError(a.Name(), retryAfter(res.header), errors.New("Anthropic rate limit exceeded"))
	case res.status == http.StatusUnauthorized:
		return nil, llm.NewProviderDownError(a.Name(), errors.New("invalid Anthropic API key"))
	case res.status != http.StatusOK:
		return nil, llm.NewProviderDownError(a.Name(), fmt.Errorf("anthropic returned status %d: %s", res.status, snippet(res.body)))
	}

	var data anthropicMessagesResponse
	if err := json.Unmarshal(res.body, &data); err != nil {
		return nil, llm.NewProviderDownError(a.Name(), fmt.Errorf("decode Anthropic response: %w", err))
	}

	var content strings.Builder
	for _, block := range data.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &llm.CompletionResponse{
		Content:   content.String(),
		Model:     req.Model,
		Provider:  a.Name(),
		LatencyMS: time.Since(start).Milliseconds(),
		Usage: llm.TokenUsage{
			PromptTokens:     data.Usage.InputTokens,
			CompletionTokens: data.Usage.OutputTokens,
			TotalTokens:      data.Usage.InputTokens + data.Usage.OutputTokens,
		},
		FinishReason: data.StopReason,
	}, nil
}

// HealthCheck sends a one-token probe request. Anthropic has no free
// listing endpoint, so this is the cheapest way to exercise auth.
func (a *Anthropic) HealthCheck(ctx context.Context) (*llm.Health, error) {
	if a.apiKey == "" {
		return &llm.Health{
			Status:    llm.HealthUnhealthy,
			LastCheck: time.Now().UTC(),
			Error:     "API key not configured",
		}, nil
	}

	probe := anthropicMessagesRequest{
		Model:     anthropicProbeModel,
		Messages:  []llm.Message{{Role: "user", Content: "Hi"}},
		MaxTokens: 1,
	}

	start := time.Now()
	res, err := postJSON(ctx, a.client, a.baseURL+"/v1/messages", a.headers(), probe)
	if err != nil {
		return &llm.Health{
			Status:    llm.HealthUnhealthy,
			LastCheck: time.Now().UTC(),
			Error:     "cannot connect to Anthropic API",
		}, nil
	}

	latency := time.Since(start).Milliseconds()
	switch {
	case res.status == http.StatusOK:
		return &llm.Health{
			Status:          llm.HealthHealthy,
			LatencyMS:       latency,
			LastCheck:       time.Now().UTC(),
			ModelsAvailable: a.knownModels(),
		}, nil
	case res.status == http.StatusUnauthorized:
		return &llm.Health{
			Status:    llm.HealthUnhealthy,
			LatencyMS: latency,
			LastCheck: time.Now().UTC(),
			Error:     "invalid API key",
		}, nil
	default:
		return &llm.Health{
			Status:    llm.HealthDegraded,
			LatencyMS: latency,
			LastCheck: time.Now().UTC(),
			Error:     fmt.Sprintf("unexpected status: %d", res.status),
		}, nil
	}
}

// Capabilities reports what the given model can do.
func (a *Anthropic) Capabilities(model string) llm.Capabilities {
	if caps, ok := a.caps[model]; ok {
		return caps
	}
	return llm.DefaultCapabilities()
}

// ListModels returns the known Claude models. The API has no public listing
// endpoint compatible with this surface.
func (a *Anthropic) ListModels(_ context.Context) ([]string, error) {
	return a.knownModels(), nil
}

func (a *Anthropic) knownModels() []string {
	models := make([]string, 0, len(a.caps))
	for model := range a.caps {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// Close releases idle connections.
func (a *Anthropic) Close() error {
	a.client.CloseIdleConnections()
	return nil
}
