// Package receipt defines the audit record produced by every execute call.
// A Receipt proves which models were attempted, which intent was finalized,
// which tools ran, what state changed, and how to undo it. Receipts are
// append-only during execution and immutable once persisted, except for
// confirmation-completion updates.
package receipt

import (
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/atlas/intent"
)

// Status is the overall outcome of an execute call.
type Status string

const (
	StatusSuccess        Status = "SUCCESS"
	StatusPartial        Status = "PARTIAL"
	StatusFailed         Status = "FAILED"
	StatusPendingConfirm Status = "PENDING_CONFIRM"
)

// IsValid checks if the status is a known receipt status.
func (s Status) IsValid() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed, StatusPendingConfirm:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ToolCallStatus is the outcome of a single tool invocation.
type ToolCallStatus string

const (
	CallPendingConfirm ToolCallStatus = "PENDING_CONFIRM"
	CallOK             ToolCallStatus = "OK"
	CallFailed         ToolCallStatus = "FAILED"
	CallSkipped        ToolCallStatus = "SKIPPED"
)

// String returns the string representation of the tool call status.
func (s ToolCallStatus) String() string {
	return string(s)
}

// FallbackTrigger names the reason a model attempt failed, driving the
// retry/fallback decision.
type FallbackTrigger string

const (
	TriggerInvalidJSON        FallbackTrigger = "INVALID_JSON"
	TriggerValidationError    FallbackTrigger = "VALIDATION_ERROR"
	TriggerTimeout            FallbackTrigger = "TIMEOUT"
	TriggerRateLimit          FallbackTrigger = "RATE_LIMIT"
	TriggerProviderDown       FallbackTrigger = "PROVIDER_DOWN"
	TriggerCapabilityMismatch FallbackTrigger = "CAPABILITY_MISMATCH"
)

// String returns the string representation of the trigger.
func (f FallbackTrigger) String() string {
	return string(f)
}

// ModelAttempt records one model invocation. Attempt numbers are 1-based
// and counted per (provider, model) pair.
type ModelAttempt struct {
	Provider        string          `json:"provider"`
	Model           string          `json:"model"`
	AttemptNumber   int             `json:"attempt_number"`
	Success         bool            `json:"success"`
	FallbackTrigger FallbackTrigger `json:"fallback_trigger,omitempty"`
	LatencyMS       int64           `json:"latency_ms,omitempty"`
	TimestampUTC    time.Time       `json:"timestamp_utc"`
}

// ToolCall records a tool invocation and its outcome.
type ToolCall struct {
	ToolName     string         `json:"tool_name"`
	Args         map[string]any `json:"args"`
	Status       ToolCallStatus `json:"status"`
	Result       any            `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	TimestampUTC time.Time      `json:"timestamp_utc"`
}

// Change records a state mutation made by a tool.
type Change struct {
	// EntityType tags the entity kind: "task", "note", "calendar_block",
	// or "workflow".
	EntityType string `json:"entity_type"`

	EntityID string `json:"entity_id"`

	// Action is "created", "updated", or "deleted".
	Action string `json:"action"`

	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// UndoStep is a reverse operation. Executing ToolName with Args must
// restore the state that preceded the paired Change.
type UndoStep struct {
	ToolName    string         `json:"tool_name"`
	Args        map[string]any `json:"args"`
	Description string         `json:"description"`
}

// Receipt is the root audit aggregate for one execute call.
type Receipt struct {
	ReceiptID    string    `json:"receipt_id"`
	TimestampUTC time.Time `json:"timestamp_utc"`
	ProfileID    string    `json:"profile_id,omitempty"`
	Status       Status    `json:"status"`

	// UserInput is the original request text.
	UserInput string `json:"user_input"`

	// ModelsAttempted is append-order and chronological.
	ModelsAttempted []ModelAttempt `json:"models_attempted"`

	// IntentFinal is the validated intent, nil when classification failed.
	IntentFinal *intent.Intent `json:"intent_final,omitempty"`

	ToolCalls []ToolCall `json:"tool_calls"`
	Changes   []Change   `json:"changes"`

	// Undo holds reverse operations; executing them last-to-first restores
	// the pre-execution state.
	Undo []UndoStep `json:"undo"`

	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

// New opens a receipt for a request. The id is assigned here and never
// changes; status starts at PENDING_CONFIRM until the executor finalizes.
func New(userInput, profileID string) *Receipt {
	return &Receipt{
		ReceiptID:       uuid.New().String(),
		TimestampUTC:    time.Now().UTC(),
		ProfileID:       profileID,
		Status:          StatusPendingConfirm,
		UserInput:       userInput,
		ModelsAttempted: []ModelAttempt{},
		ToolCalls:       []ToolCall{},
		Changes:         []Change{},
		Undo:            []UndoStep{},
		Warnings:        []string{},
		Errors:          []string{},
	}
}

// HasPendingConfirmations reports whether any tool call awaits confirmation.
func (r *Receipt) HasPendingConfirmations() bool {
	for _, tc := range r.ToolCalls {
		if tc.Status == CallPendingConfirm {
			return true
		}
	}
	return false
}

// PendingToolCalls returns the indices of tool calls awaiting confirmation.
func (r *Receipt) PendingToolCalls() []int {
	var pending []int
	for i, tc := range r.ToolCalls {
		if tc.Status == CallPendingConfirm {
			pending = append(pending, i)
		}
	}
	return pending
}

// DistinctModels counts unique (provider, model) pairs across attempts.
func (r *Receipt) DistinctModels() int {
	seen := make(map[string]struct{}, len(r.ModelsAttempted))
	for _, a := range r.ModelsAttempted {
		seen[a.Provider+"/"+a.Model] = struct{}{}
	}
	return len(seen)
}

// AttemptsFor counts attempts made against one (provider, model) pair.
func (r *Receipt) AttemptsFor(provider, model string) int {
	n := 0
	for _, a := range r.ModelsAttempted {
		if a.Provider == provider && a.Model == model {
			n++
		}
	}
	return n
}
