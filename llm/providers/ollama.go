package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/atlas/llm"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"

	// Local inference can be slow on modest hardware.
	ollamaTimeout = 120 * time.Second
)

// Ollama adapts a local Ollama server. It speaks Ollama's native chat API,
// which supports a format=json constraint but no structured tool calls.
type Ollama struct {
	baseURL string
	client  *http.Client
	caps    map[string]llm.Capabilities
}

// NewOllama creates an adapter for the Ollama server at baseURL. An empty
// baseURL falls back to the default local address.
func NewOllama(baseURL string) *Ollama {
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  newHTTPClient(ollamaTimeout),
		caps: map[string]llm.Capabilities{
			"llama3.2": {
				Streaming:     true,
				MaxTokens:     4096,
				ContextWindow: 128000,
			},
			"llama3.2:1b": {
				Streaming:     true,
				MaxTokens:     4096,
				ContextWindow: 128000,
			},
			"mistral": {
				Streaming:     true,
				MaxTokens:     4096,
				ContextWindow: 32000,
			},
			"phi3": {
				Streaming:     true,
				MaxTokens:     4096,
				ContextWindow: 128000,
			},
		},
	}
}

// Name returns the provider identifier.
func (o *Ollama) Name() string {
	return "ollama"
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Complete sends a chat request to the Ollama server.
func (o *Ollama) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	payload := ollamaChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  maxTokens(req),
		},
	}
	if req.JSONMode {
		payload.Format = "json"
	}

	start := time.Now()
	res, err := postJSON(ctx, o.client, o.baseURL+"/api/chat", nil, payload)
	if err != nil {
		return nil, llm.NewProviderDownError(o.Name(), fmt.Errorf("cannot connect to Ollama server: %w", err))
	}
	if res.status != http.StatusOK {
		return nil, llm.NewProviderDownError(o.Name(), fmt.Errorf("ollama returned status %d: %s", res.status, snippet(res.body)))
	}

	var data ollamaChatResponse
	if err := json.Unmarshal(res.body, &data); err != nil {
		return nil, llm.NewProviderDownError(o.Name(), fmt.Errorf("decode ollama response: %w", err))
	}

	return &llm.CompletionResponse{
		Content:   data.Message.Content,
		Model:     req.Model,
		Provider:  o.Name(),
		LatencyMS: time.Since(start).Milliseconds(),
		Usage: llm.TokenUsage{
			PromptTokens:     data.PromptEvalCount,
			CompletionTokens: data.EvalCount,
			TotalTokens:      data.PromptEvalCount + data.EvalCount,
		},
		FinishReason: data.DoneReason,
	}, nil
}

// HealthCheck probes the tags endpoint, which also yields the installed models.
func (o *Ollama) HealthCheck(ctx context.Context) (*llm.Health, error) {
	start := time.Now()
	res, err := getJSON(ctx, o.client, o.baseURL+"/api/tags", nil)
	if err != nil {
		return &llm.Health{
			Status:    llm.HealthUnhealthy,
			LastCheck: time.Now().UTC(),
			Error:     "cannot connect to Ollama server",
		}, nil
	}

	latency := time.Since(start).Milliseconds()
	if res.status != http.StatusOK {
		return &llm.Health{
			Status:    llm.HealthDegraded,
			LatencyMS: latency,
			LastCheck: time.Now().UTC(),
			Error:     fmt.Sprintf("unexpected status: %d", res.status),
		}, nil
	}

	var tags ollamaTagsResponse
	if err := json.Unmarshal(res.body, &tags); err != nil {
		return &llm.Health{
			Status:    llm.HealthUnhealthy,
			LatencyMS: latency,
			LastCheck: time.Now().UTC(),
			Error:     fmt.Sprintf("decode tags response: %v", err),
		}, nil
	}

	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}

	return &llm.Health{
		Status:          llm.HealthHealthy,
		LatencyMS:       latency,
		LastCheck:       time.Now().UTC(),
		ModelsAvailable: models,
	}, nil
}

// Capabilities reports what the given model can do. Unknown tags fall back to
// the base model entry (llama3.2:3b matches llama3.2).
func (o *Ollama) Capabilities(model string) llm.Capabilities {
	if caps, ok := o.caps[model]; ok {
		return caps
	}
	if base, _, found := strings.Cut(model, ":"); found {
		if caps, ok := o.caps[base]; ok {
			return caps
		}
	}
	return llm.DefaultCapabilities()
}

// ListModels returns the models installed on the Ollama server.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	res, err := getJSON(ctx, o.client, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("list ollama models: %w", err)
	}
	if res.status != http.StatusOK {
		return nil, fmt.Errorf("list ollama models: status %d", res.status)
	}

	var tags ollamaTagsResponse
	if err := json.Unmarshal(res.body, &tags); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}

	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

// Close releases idle connections.
func (o *Ollama) Close() error {
	o.client.CloseIdleConnections()
	return nil
}
