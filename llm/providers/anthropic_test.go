package providers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/atlas/llm"
	"github.com/c360studio/atlas/llm/providers"
)

func TestAnthropicComplete(t *testing.T) {
	var captured map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "anthropic-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "part one "},
				{"type": "text", "text": "part two"},
			},
			"stop_reason": "end_turn",
			"usage": map[string]int{
				"input_tokens":  80,
				"output_tokens": 12,
			},
		})
	}))
	defer server.Close()

	adapter := providers.NewAnthropic("anthropic-key", providers.WithAnthropicBaseURL(server.URL))
	defer adapter.Close()

	resp, err := adapter.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "You classify intents."},
			{Role: "user", Content: "add a task"},
		},
		Model:       "claude-3-haiku-20240307",
		Temperature: 0.3,
	})
	require.NoError(t, err)

	// Text blocks are concatenated in order.
	assert.Equal(t, "part one part two", resp.Content)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, 80, resp.Usage.PromptTokens)
	assert.Equal(t, 12, resp.Usage.CompletionTokens)
	assert.Equal(t, 92, resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.FinishReason)

	// The system message is hoisted to the top-level field and removed
	// from the messages list.
	assert.Equal(t, "You classify intents.", captured["system"])
	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	first, ok := messages[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "user", first["role"])
}

func TestAnthropicCompleteRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	adapter := providers.NewAnthropic("anthropic-key", providers.WithAnthropicBaseURL(server.URL))
	defer adapter.Close()

	_, err := adapter.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
		Model:    "claude-3-haiku-20240307",
	})
	require.Error(t, err)
	assert.True(t, llm.IsRateLimit(err))
}

func TestAnthropicHealthCheckInvalidKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	adapter := providers.NewAnthropic("bad-key", providers.WithAnthropicBaseURL(server.URL))
	defer adapter.Close()

	health, err := adapter.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, llm.HealthUnhealthy, health.Status)
	assert.Equal(t, "invalid API key", health.Error)
}

func TestAnthropicListModels(t *testing.T) {
	adapter := providers.NewAnthropic("anthropic-key")
	defer adapter.Close()

	models, err := adapter.ListModels(context.Background())
	require.NoError(t, err)
	assert.Contains(t, models, "claude-3-haiku-20240307")
	assert.Contains(t, models, "claude-3-5-sonnet-20241022")
}
