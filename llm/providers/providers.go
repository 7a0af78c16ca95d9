// Package providers contains the concrete llm.Adapter implementations.
// Each adapter owns its HTTP client, speaks its provider's wire dialect,
// and classifies failures into the shared llm error types so the fallback
// logic can decide what to do next.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/c360studio/atlas/llm"
)

// maxResponseSize limits provider response bodies to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// httpResult carries the pieces of a provider response that adapters need to
// classify and decode.
type httpResult struct {
	status int
	body   []byte
	header http.Header
}

// newHTTPClient builds a pooled HTTP client with the given request timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// postJSON sends a JSON POST and returns the status, capped body, and headers.
// A non-nil error means the request never completed (network, DNS, timeout).
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) (*httpResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return do(client, req)
}

// getJSON sends a GET and returns the status, capped body, and headers.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string) (*httpResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return do(client, req)
}

func do(client *http.Client, req *http.Request) (*httpResult, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &httpResult{status: resp.StatusCode, body: data, header: resp.Header}, nil
}

// snippet truncates a response body for inclusion in error messages.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// retryAfter parses a Retry-After header given in seconds. Returns zero when
// the header is absent or malformed.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// maxTokens resolves the completion budget for a request.
func maxTokens(req llm.CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return llm.DefaultMaxTokens
}
