package llm

import (
	"errors"
	"fmt"
	"time"
)

// Error types for classifying provider failures. The fallback logic keys on
// these to choose between retrying, switching models, and failing.

// RateLimitError reports that a provider rejected a request for quota reasons.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	err        error
}

func (e *RateLimitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Provider)
}

func (e *RateLimitError) Unwrap() error {
	return e.err
}

// NewRateLimitError wraps err as a rate-limit failure for the named provider.
// retryAfter is zero when the provider did not say how long to wait.
func NewRateLimitError(provider string, retryAfter time.Duration, err error) error {
	return &RateLimitError{Provider: provider, RetryAfter: retryAfter, err: err}
}

// ProviderDownError reports that a provider is unreachable or misconfigured.
type ProviderDownError struct {
	Provider string
	err      error
}

func (e *ProviderDownError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("provider %s unavailable", e.Provider)
}

func (e *ProviderDownError) Unwrap() error {
	return e.err
}

// NewProviderDownError wraps err as a provider-unavailable failure.
func NewProviderDownError(provider string, err error) error {
	return &ProviderDownError{Provider: provider, err: err}
}

// IsRateLimit returns true if the error chain contains a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// IsProviderDown returns true if the error chain contains a ProviderDownError.
func IsProviderDown(err error) bool {
	var down *ProviderDownError
	return errors.As(err, &down)
}
