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
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
	groqTimeout        = 60 * time.Second
)

// Groq adapts the Groq API, which serves open models behind an
// OpenAI-compatible surface.
type Groq struct {
	apiKey  string
	baseURL string
	client  *http.Client
	caps    map[string]llm.Capabilities
}

// GroqOption configures a Groq adapter.
type GroqOption func(*Groq)

// WithGroqBaseURL overrides the API base URL. Used in tests.
func WithGroqBaseURL(u string) GroqOption {
	return func(g *Groq) {
		g.baseURL = strings.TrimSuffix(u, "/")
	}
}

// NewGroq creates an adapter authenticated with the given API key.
func NewGroq(apiKey string, opts ...GroqOption) *Groq {
	g := &Groq{
		apiKey:  apiKey,
		baseURL: defaultGroqBaseURL,
		client:  newHTTPClient(groqTimeout),
		caps: map[string]llm.Capabilities{
			"llama-3.3-70b-versatile": {
				StrictJSON:    true,
				ToolCalls:     true,
				Streaming:     true,
				MaxTokens:     8192,
				ContextWindow: 128000,
			},
			"llama-3.1-8b-instant": {
				StrictJSON:    true,
				ToolCalls:     true,
				Streaming:     true,
				MaxTokens:     8192,
				ContextWindow: 128000,
			},
			"llama3-70b-8192": {
				StrictJSON:    true,
				ToolCalls:     true,
				Streaming:     true,
				MaxTokens:     8192,
				ContextWindow: 8192,
			},
			"llama3-8b-8192": {
				StrictJSON:    true,
				ToolCalls:     true,
				Streaming:     true,
				MaxTokens:     8192,
				ContextWindow: 8192,
			},
			"mixtral-8x7b-32768": {
				StrictJSON:    true,
				ToolCalls:     true,
				Streaming:     true,
				MaxTokens:     32768,
				ContextWindow: 32768,
			},
			"gemma2-9b-it": {
				StrictJSON:    true,
				ToolCalls:     true,
				Streaming:     true,
				MaxTokens:     8192,
				ContextWindow: 8192,
			},
		},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Name returns the provider identifier.
func (g *Groq) Name() string {
	return "groq"
}

func (g *Groq) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + g.apiKey}
}

// Complete sends a chat completions request in the OpenAI dialect.
func (g *Groq) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if g.apiKey == "" {
		return nil, llm.NewProviderDownError(g.Name(), errors.New("Groq API key not configured"))
	}

	payload := openAIChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens(req),
	}
	if req.JSONMode {
		payload.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	start := time.Now()
	res, err := postJSON(ctx, g.client, g.baseURL+"/chat/completions", g.headers(), payload)
	if err != nil {
		return nil, llm.NewProviderDownError(g.Name(), fmt.Errorf("cannot connect to Groq API: %w", err))
	}

	switch {
	case res.status == http.StatusTooManyRequests:
		return nil, llm.NewRateLimitError(g.Name(), retryAfter(res.header), errors.New("Groq rate limit exceeded"))
	case res.status == http.StatusUnauthorized:
		return nil, llm.NewProviderDownError(g.Name(), errors.New("invalid Groq API key"))
	case res.status != http.StatusOK:
		return nil, llm.NewProviderDownError(g.Name(), fmt.Errorf("groq returned status %d: %s", res.status, snippet(res.body)))
	}

	var data openAIChatResponse
	if err := json.Unmarshal(res.body, &data); err != nil {
		return nil, llm.NewProviderDownError(g.Name(), fmt.Errorf("decode Groq response: %w", err))
	}
	if len(data.Choices) == 0 {
		return nil, llm.NewProviderDownError(g.Name(), errors.New("no choices in Groq response"))
	}

	return &llm.CompletionResponse{
		Content:   data.Choices[0].Message.Content,
		Model:     req.Model,
		Provider:  g.Name(),
		LatencyMS: time.Since(start).Milliseconds(),
		Usage: llm.TokenUsage{
			PromptTokens:     data.Usage.PromptTokens,
			CompletionTokens: data.Usage.CompletionTokens,
			TotalTokens:      data.Usage.TotalTokens,
		},
		FinishReason: data.Choices[0].FinishReason,
	}, nil
}

// HealthCheck probes the models endpoint.
func (g *Groq) HealthCheck(ctx context.Context) (*llm.Health, error) {
	start := time.Now()
	res, err := getJSON(ctx, g.client, g.baseURL+"/models", g.headers())
	if err != nil {
		return &llm.Health{
			Status:    llm.HealthUnhealthy,
			LastCheck: time.Now().UTC(),
			Error:     "cannot connect to Groq API",
		}, nil
	}

	latency := time.Since(start).Milliseconds()
	switch {
	case res.status == http.StatusOK:
		var data openAIModelsResponse
		if err := json.Unmarshal(res.body, &data); err != nil {
			return &llm.Health{
				Status:    llm.HealthUnhealthy,
				LatencyMS: latency,
				LastCheck: time.Now().UTC(),
				Error:     fmt.Sprintf("decode models response: %v", err),
			}, nil
		}
		models := make([]string, 0, len(data.Data))
		for _, m := range data.Data {
			models = append(models, m.ID)
		}
		return &llm.Health{
			Status:          llm.HealthHealthy,
			LatencyMS:       latency,
			LastCheck:       time.Now().UTC(),
			ModelsAvailable: models,
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
func (g *Groq) Capabilities(model string) llm.Capabilities {
	if caps, ok := g.caps[model]; ok {
		return caps
	}
	return llm.DefaultCapabilities()
}

// ListModels returns the models Groq currently serves, falling back to the
// known capability table when the API is unreachable.
func (g *Groq) ListModels(ctx context.Context) ([]string, error) {
	res, err := getJSON(ctx, g.client, g.baseURL+"/models", g.headers())
	if err == nil && res.status == http.StatusOK {
		var data openAIModelsResponse
		if err := json.Unmarshal(res.body, &data); err == nil {
			models := make([]string, 0, len(data.Data))
			for _, m := range data.Data {
				models = append(models, m.ID)
			}
			return models, nil
		}
	}

	known := make([]string, 0, len(g.caps))
	for model := range g.caps {
		known = append(known, model)
	}
	sort.Strings(known)
	return known, nil
}

// Close releases idle connections.
func (g *Groq) Close() error {
	g.client.CloseIdleConnections()
	return nil
}
