package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/atlas/llm"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	openAITimeout        = 120 * time.Second
)

// openAIChatRequest is the chat completions request format. Groq speaks the
// same dialect, so both adapters share these types.
type openAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []llm.Message         `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// OpenAI adapts the OpenAI chat completions API. Requires an API key.
type OpenAI struct {
	apiKey  string
	baseURL string
	client  *http.Client
	caps    map[string]llm.Capabilities
}

// OpenAIOption configures an OpenAI adapter.
type OpenAIOption func(*OpenAI)

// WithOpenAIBaseURL overrides the API base URL. Used for OpenAI-compatible
// gateways and tests.
func WithOpenAIBaseURL(u string) OpenAIOption {
	return func(a *OpenAI) {
		a.baseURL = strings.TrimSuffix(u, "/")
	}
}

// NewOpenAI creates an adapter authenticated with the given API key.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAI {
	a := &OpenAI{
		apiKey:  apiKey,
		baseURL: defaultOpenAIBaseURL,
		client:  newHTTPClient(openAITimeout),
		caps: map[string]llm.Capabilities{
			"gpt-4o": {
				StrictJSON:    true,
				ToolCalls:     true,
				Streaming:     true,
				MaxTokens:     16384,
				ContextWindow: 128000,
			},
			"gpt-4o-mini": {
				StrictJSON:    true,
				ToolCalls:     true,
				Streaming:     true,
				MaxTokens:     16384,
				ContextWindow: 128000,
			},
			"gpt-4-turbo": {
				StrictJSON:    true,
				ToolCalls:     true,
				Streaming:     true,
				MaxTokens:     4096,
				ContextWindow: 128000,
			},
			"gpt-3.5-turbo": {
				StrictJSON:    true,
				ToolCalls:     true,
				Streaming:     true,
				MaxTokens:     4096,
				ContextWindow: 16385,
			},
		},
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Name returns the provider identifier.
func (a *OpenAI) Name() string {
	return "openai"
}

func (a *OpenAI) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.apiKey}
}

// Complete sends a chat completions request.
func (a *OpenAI) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if a.apiKey == "" {
		return nil, llm.NewProviderDownError(a.Name(), errors.New("OpenAI API key not configured"))
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
	res, err := postJSON(ctx, a.client, a.baseURL+"/chat/completions", a.headers(), payload)
	if err != nil {
		return nil, llm.NewProviderDownError(a.Name(), fmt.Errorf("cannot connect to OpenAI API: %w", err))
	}

	switch {
	case res.status == http.StatusTooManyRequests:
		return nil, llm.NewRateLimitError(a.Name(), retryAfter(res.header), errors.New("OpenAI rate limit exceeded"))
	case res.status == http.StatusUnauthorized:
		return nil, llm.NewProviderDownError(a.Name(), errors.New("invalid OpenAI API key"))
	case res.status != http.StatusOK:
		return nil, llm.NewProviderDownError(a.Name(), fmt.Errorf("OpenAI returned status %d: %s", res.status, snippet(res.body)))
	}

	var data openAIChatResponse
	if err := json.Unmarshal(res.body, &data); err != nil {
		return nil, llm.NewProviderDownError(a.Name(), fmt.Errorf("decode OpenAI response: %w", err))
	}
	if len(data.Choices) == 0 {
		return nil, llm.NewProviderDownError(a.Name(), errors.New("no choices in OpenAI response"))
	}

	model := data.Model
	if model == "" {
		model = req.Model
	}

	return &llm.CompletionResponse{
		Content:   data.Choices[0].Message.Content,
		Model:     model,
		Provider:  a.Name(),
		LatencyMS: time.Since(start).Milliseconds(),
		Usage: llm.TokenUsage{
			PromptTokens:     data.Usage.PromptTokens,
			CompletionTokens: data.Usage.CompletionTokens,
			TotalTokens:      data.Usage.TotalTokens,
		},
		FinishReason: data.Choices[0].FinishReason,
	}, nil
}

// HealthCheck probes the models endpoint, which exercises auth without
// consuming tokens.
func (a *OpenAI) HealthCheck(ctx context.Context) (*llm.Health, error) {
	if a.apiKey == "" {
		return &llm.Health{
			Status:    llm.HealthUnhealthy,
			LastCheck: time.Now().UTC(),
			Error:     "API key not configured",
		}, nil
	}

	start := time.Now()
	res, err := getJSON(ctx, a.client, a.baseURL+"/models", a.headers())
	if err != nil {
		return &llm.Health{
			Status:    llm.HealthUnhealthy,
			LastCheck: time.Now().UTC(),
			Error:     "cannot connect to OpenAI API",
		}, nil
	}

	latency := time.Since(start).Milliseconds()
	switch {
	case res.status == http.StatusOK:
		return &llm.Health{
			Status:          llm.HealthHealthy,
			LatencyMS:       latency,
			LastCheck:       time.Now().UTC(),
			ModelsAvailable: chatModels(res.body, 10),
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

// Capabilities reports what the given model can do. OpenAI chat models all
// honor JSON mode, so even unknown models are assumed strict.
func (a *OpenAI) Capabilities(model string) llm.Capabilities {
	if caps, ok := a.caps[model]; ok {
		return caps
	}
	caps := llm.DefaultCapabilities()
	caps.StrictJSON = true
	return caps
}

// ListModels returns the chat models the account can use.
func (a *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	if a.apiKey == "" {
		return nil, errors.New("OpenAI API key not configured")
	}

	res, err := getJSON(ctx, a.client, a.baseURL+"/models", a.headers())
	if err != nil {
		return nil, fmt.Errorf("list OpenAI models: %w", err)
	}
	if res.status != http.StatusOK {
		return nil, fmt.Errorf("list OpenAI models: status %d", res.status)
	}

	return chatModels(res.body, 0), nil
}

// chatModels decodes a models listing and keeps the chat-capable entries.
// A positive limit caps the result.
func chatModels(body []byte, limit int) []string {
	var data openAIModelsResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil
	}

	models := make([]string, 0, len(data.Data))
	for _, m := range data.Data {
		if strings.Contains(strings.ToLower(m.ID), "gpt") {
			models = append(models, m.ID)
		}
	}
	if limit > 0 && len(models) > limit {
		models = models[:limit]
	}
	return models
}

// Close releases idle connections.
func (a *OpenAI) Close() error {
	a.client.CloseIdleConnections()
	return nil
}
