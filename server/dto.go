package server

import (
	"encoding/json"
	"net/http"

	"github.com/c360studio/atlas/llm"
	"github.com/c360studio/atlas/receipt"
)

// ExecuteRequest is the body of POST /v1/execute. An unknown or empty
// routing_profile coerces to BALANCED.
type ExecuteRequest struct {
	Text           string `json:"text"`
	RoutingProfile string `json:"routing_profile"`
	ProfileID      string `json:"profile_id,omitempty"`
}

// ResumeRequest is the body of POST /v1/receipts/{id}/resume. Approved
// holds indices into the receipt's tool_calls list.
type ResumeRequest struct {
	Approved []int `json:"approved"`
}

// ReceiptListResponse pages receipts newest-first.
type ReceiptListResponse struct {
	Receipts []*receipt.Receipt `json:"receipts"`
	Total    int                `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

type statusResponse struct {
	Version       string                `json:"version"`
	Providers     map[string]llm.Health `json:"providers"`
	ReceiptsCount int                   `json:"receipts_count"`
	Config        statusConfig          `json:"config"`
}

type statusConfig struct {
	RoutingCaps routingCaps `json:"routing_caps"`
}

type routingCaps struct {
	MaxAttemptsPerModel int `json:"max_attempts_per_model"`
	MaxModelsPerRequest int `json:"max_models_per_request"`
}

type providerHealthResponse struct {
	Provider        string   `json:"provider"`
	Status          string   `json:"status"`
	LatencyMS       int64    `json:"latency_ms"`
	ModelsAvailable []string `json:"models_available"`
	Error           string   `json:"error,omitempty"`
}

type providerModelsResponse struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// writeJSON marshals v to w with the given status. Encoding failures are
// unrecoverable at this point (the status line is already out).
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// httpError writes a JSON error body in the {"detail": ...} shape.
func httpError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
