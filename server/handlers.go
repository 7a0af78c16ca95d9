package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/c360studio/atlas/engine"
	"github.com/c360studio/atlas/intent"
	"github.com/c360studio/atlas/llm"
	"github.com/c360studio/atlas/receipt"
	"github.com/c360studio/atlas/routing"
	"github.com/c360studio/atlas/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.version,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    s.cfg.AppName,
		"version": s.version,
	})
}

// handleExecute runs one request through the pipeline. The response is
// always a receipt, including failure receipts; only an uninitialized
// process answers 503.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if s.executor == nil || s.store == nil {
		httpError(w, http.StatusServiceUnavailable, "Service not initialized")
		return
	}

	var req ExecuteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Text == "" {
		httpError(w, http.StatusBadRequest, "text is required")
		return
	}

	profile := intent.ParseRoutingProfile(strings.ToUpper(req.RoutingProfile))

	rec := s.executor.Execute(r.Context(), req.Text, profile, req.ProfileID)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httpError(w, http.StatusServiceUnavailable, "Service not initialized")
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	// An unknown status filter is ignored, not rejected.
	var status receipt.Status
	if v := r.URL.Query().Get("status"); v != "" {
		if candidate := receipt.Status(strings.ToUpper(v)); candidate.IsValid() {
			status = candidate
		}
	}

	ctx := r.Context()

	receipts, err := s.store.List(ctx, limit, offset, status)
	if err != nil {
		s.logger.Error("list receipts", "error", err)
		httpError(w, http.StatusInternalServerError, "Failed to list receipts")
		return
	}
	total, err := s.store.Count(ctx, status)
	if err != nil {
		s.logger.Error("count receipts", "error", err)
		httpError(w, http.StatusInternalServerError, "Failed to list receipts")
		return
	}

	writeJSON(w, http.StatusOK, ReceiptListResponse{
		Receipts: receipts,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httpError(w, http.StatusServiceUnavailable, "Service not initialized")
		return
	}

	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "Receipt not found")
		return
	case err != nil:
		s.logger.Error("get receipt", "error", err)
		httpError(w, http.StatusInternalServerError, "Failed to load receipt")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	if s.executor == nil || s.store == nil {
		httpError(w, http.StatusServiceUnavailable, "Service not initialized")
		return
	}

	outcome, err := s.executor.Undo(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "Receipt not found")
		return
	case err != nil:
		s.logger.Error("undo receipt", "error", err)
		httpError(w, http.StatusInternalServerError, "Undo failed")
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if s.executor == nil || s.store == nil {
		httpError(w, http.StatusServiceUnavailable, "Service not initialized")
		return
	}

	var req ResumeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := s.executor.Resume(r.Context(), chi.URLParam(r, "id"), req.Approved)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "Receipt not found")
		return
	case errors.Is(err, engine.ErrInvalidApproval):
		httpError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("resume receipt", "error", err)
		httpError(w, http.StatusInternalServerError, "Resume failed")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	providers := map[string]llm.Health{}
	if s.providers != nil {
		providers = s.providers.Status()
	}

	count := 0
	if s.store != nil {
		n, err := s.store.Count(r.Context(), "")
		if err != nil {
			s.logger.Warn("count receipts for status", "error", err)
		} else {
			count = n
		}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Version:       s.version,
		Providers:     providers,
		ReceiptsCount: count,
		Config: statusConfig{
			RoutingCaps: routingCaps{
				MaxAttemptsPerModel: routing.MaxAttemptsPerModel,
				MaxModelsPerRequest: routing.MaxModelsPerRequest,
			},
		},
	})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	providers := map[string]llm.Health{}
	if s.providers != nil {
		providers = s.providers.Status()
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": providers})
}

// handleProviderHealth probes the named provider on demand and returns the
// fresh result.
func (s *Server) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	if s.providers == nil {
		httpError(w, http.StatusServiceUnavailable, "Service not initialized")
		return
	}

	name := chi.URLParam(r, "name")
	health, err := s.providers.CheckHealth(r.Context(), name)
	if err != nil {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, providerHealthResponse{
		Provider:        name,
		Status:          string(health.Status),
		LatencyMS:       health.LatencyMS,
		ModelsAvailable: health.ModelsAvailable,
		Error:           health.Error,
	})
}

func (s *Server) handleProviderModels(w http.ResponseWriter, r *http.Request) {
	if s.providers == nil {
		httpError(w, http.StatusServiceUnavailable, "Service not initialized")
		return
	}

	name := chi.URLParam(r, "name")
	if _, ok := s.providers.Get(name); !ok {
		httpError(w, http.StatusNotFound, "provider not registered: "+name)
		return
	}

	models, err := s.providers.ListModels(r.Context(), name)
	if err != nil {
		s.logger.Warn("list provider models", "provider", name, "error", err)
		httpError(w, http.StatusBadGateway, "Failed to list models")
		return
	}

	writeJSON(w, http.StatusOK, providerModelsResponse{
		Provider: name,
		Models:   models,
	})
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	var infos any = []struct{}{}
	if s.skills != nil {
		infos = s.skills.SkillInfo()
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": infos})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	var infos any = []struct{}{}
	if s.tools != nil {
		infos = s.tools.ToolInfo()
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": infos})
}

// decodeJSON reads a capped request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
