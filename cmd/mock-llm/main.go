// Package main implements a mock model server for local development and
// end-to-end testing. It answers both wire dialects the ATLAS providers
// speak, Ollama's native chat API and the OpenAI chat completions API,
// from JSON fixture files routed by the request's "model" field. Pointing
// OLLAMA_BASE_URL at it runs the full classification pipeline offline
// and deterministically.
//
// Usage:
//
//	mock-llm -fixtures ./fixtures -port 11434
//
// Fixture files are JSON named by model; a colon in the model name may be
// written as an underscore ("llama3.2_1b.json" serves llama3.2:1b), and a
// "default.json" file answers any model without its own fixture.
//
// Sequential fixtures: numbered files ("llama3.2_1b.1.json",
// "llama3.2_1b.2.json") are served in order per model, then the base file
// repeats. Make the first entry malformed and the second valid to drive
// the JSON repair-and-retry path.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest covers the fields shared by both dialects; everything else
// in the request body is ignored.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

// --- Ollama dialect ---

type ollamaChatResponse struct {
	Model           string  `json:"model"`
	Message         message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// --- OpenAI dialect ---

type openAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
}

type openAIChoice struct {
	Index        int     `json:"index"`
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// capturedRequest stores the key fields of an incoming request for test
// verification, e.g. asserting that a repair prompt reached the model.
type capturedRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	CallIndex int       `json:"call_index"` // 1-indexed per-model call number
	Timestamp int64     `json:"timestamp"`
}

type server struct {
	fixtures map[string][]string // fixture key → ordered response contents
	calls    atomic.Int64        // total completions served

	// Per-model call counters for sequential fixture selection.
	modelCalls   map[string]*atomic.Int64
	modelCallsMu sync.Mutex

	// Per-model request capture for the /requests endpoint.
	modelRequests   map[string][]capturedRequest
	modelRequestsMu sync.Mutex
}

func newServer(fixtures map[string][]string) *server {
	return &server{
		fixtures:      fixtures,
		modelCalls:    make(map[string]*atomic.Int64),
		modelRequests: make(map[string][]capturedRequest),
	}
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	// Allow env var override
	if envDir := os.Getenv("MOCK_LLM_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}
	if *fixtureDir == "" {
		*fixtureDir = "./fixtures"
	}

	fixtures, err := loadFixtures(*fixtureDir)
	if err != nil {
		log.Fatalf("Failed to load fixtures from %s: %v", *fixtureDir, err)
	}
	log.Printf("Loaded %d model(s) from %s", len(fixtures), *fixtureDir)
	for model, seq := range fixtures {
		log.Printf("  model: %s (%d fixture(s))", model, len(seq))
	}

	s := newServer(fixtures)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock model server listening on %s (Ollama + OpenAI dialects)", addr)
	if err := http.ListenAndServe(addr, s.routes()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/chat", s.handleOllamaChat)
	mux.HandleFunc("/api/tags", s.handleOllamaTags)
	mux.HandleFunc("/v1/chat/completions", s.handleOpenAIChat)
	mux.HandleFunc("/v1/models", s.handleOpenAIModels)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/requests", s.handleRequests)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// nextContent resolves the fixture content for one completion call and
// captures the request. The empty second return marks an unknown model.
func (s *server) nextContent(req chatRequest) (string, bool) {
	key, seq, ok := s.resolve(req.Model)
	if !ok {
		return "", false
	}

	counter := s.getModelCounter(key)
	callIndex := int(counter.Add(1) - 1) // 0-indexed

	s.captureRequest(key, req, callIndex+1)

	if callIndex < len(seq) {
		return seq[callIndex], true
	}
	return seq[len(seq)-1], true // repeat last fixture
}

// resolve maps a requested model to a fixture sequence. Lookup order:
// exact name, colon written as underscore, base name before the colon,
// then "default".
func (s *server) resolve(model string) (string, []string, bool) {
	candidates := []string{
		model,
		strings.ReplaceAll(model, ":", "_"),
	}
	if base, _, found := strings.Cut(model, ":"); found {
		candidates = append(candidates, base)
	}
	candidates = append(candidates, "default")

	for _, key := range candidates {
		if seq, ok := s.fixtures[key]; ok {
			return key, seq, true
		}
	}
	return "", nil, false
}

func (s *server) handleOllamaChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	content, found := s.nextContent(req)
	if !found {
		http.Error(w, fmt.Sprintf("model %q not found", req.Model), http.StatusNotFound)
		return
	}

	resp := ollamaChatResponse{
		Model: req.Model,
		Message: message{
			Role:    "assistant",
			Content: content,
		},
		Done:            true,
		DoneReason:      "stop",
		PromptEvalCount: promptTokens(req.Messages),
		EvalCount:       len(content) / 4, // rough estimate
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *server) handleOpenAIChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	content, found := s.nextContent(req)
	if !found {
		http.Error(w, fmt.Sprintf("no fixture for model %q", req.Model), http.StatusNotFound)
		return
	}

	resp := openAIChatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []openAIChoice{
			{
				Index: 0,
				Message: message{
					Role:    "assistant",
					Content: content,
				},
				FinishReason: "stop",
			},
		},
		Usage: openAIUsage{
			PromptTokens:     promptTokens(req.Messages),
			CompletionTokens: len(content) / 4,
			TotalTokens:      promptTokens(req.Messages) + len(content)/4,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *server) decodeChat(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return chatRequest{}, false
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return chatRequest{}, false
	}

	callNum := s.calls.Add(1)
	log.Printf("[call %d] model=%s messages=%d", callNum, req.Model, len(req.Messages))
	return req, true
}

// handleOllamaTags lists fixture keys in Ollama's installed-models format.
func (s *server) handleOllamaTags(w http.ResponseWriter, _ *http.Request) {
	type tagEntry struct {
		Name string `json:"name"`
	}
	models := make([]tagEntry, 0, len(s.fixtures))
	for name := range s.fixtures {
		models = append(models, tagEntry{Name: name})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"models": models})
}

// handleOpenAIModels lists fixture keys in the OpenAI models format.
func (s *server) handleOpenAIModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	models := make([]modelEntry, 0, len(s.fixtures))
	for name := range s.fixtures {
		models = append(models, modelEntry{ID: name, Object: "model", OwnedBy: "mock-llm"})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   models,
	})
}

// handleStats returns call counts for test assertions.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.modelCallsMu.Lock()
	callsByModel := make(map[string]int64, len(s.modelCalls))
	for model, counter := range s.modelCalls {
		callsByModel[model] = counter.Load()
	}
	s.modelCallsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_calls":    s.calls.Load(),
		"calls_by_model": callsByModel,
	})
}

// handleRequests returns captured request bodies for test assertions.
// Query params:
//   - model: filter by fixture key (optional)
//   - call: filter by call index, 1-indexed (optional)
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")
	callFilter := r.URL.Query().Get("call")

	s.modelRequestsMu.Lock()
	result := make(map[string][]capturedRequest)
	for model, reqs := range s.modelRequests {
		if modelFilter != "" && model != modelFilter {
			continue
		}
		if callFilter != "" {
			callIdx, err := strconv.Atoi(callFilter)
			if err == nil {
				for _, req := range reqs {
					if req.CallIndex == callIdx {
						result[model] = append(result[model], req)
					}
				}
				continue
			}
		}
		result[model] = reqs
	}
	s.modelRequestsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"requests_by_model": result,
	})
}

// captureRequest stores a request for later retrieval via /requests.
func (s *server) captureRequest(key string, req chatRequest, callIndex int) {
	s.modelRequestsMu.Lock()
	defer s.modelRequestsMu.Unlock()
	s.modelRequests[key] = append(s.modelRequests[key], capturedRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		CallIndex: callIndex,
		Timestamp: time.Now().UnixMilli(),
	})
}

// getModelCounter returns the call counter for a fixture key, creating it lazily.
func (s *server) getModelCounter(key string) *atomic.Int64 {
	s.modelCallsMu.Lock()
	defer s.modelCallsMu.Unlock()
	if c, ok := s.modelCalls[key]; ok {
		return c
	}
	c := &atomic.Int64{}
	s.modelCalls[key] = c
	return c
}

func promptTokens(messages []message) int {
	n := 0
	for _, m := range messages {
		n += len(m.Content) / 4
	}
	return n
}

// numberedFileRe matches files like "llama3.2_1b.1.json", "default.2.json".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// loadFixtures reads JSON files from dir and returns a map of fixture
// key → ordered content sequence.
//
// For each key, fixtures are ordered:
//  1. Numbered files (key.1.json, key.2.json, ...) in numeric order
//  2. Base file (key.json) appended as the final, repeating fallback
func loadFixtures(dir string) (map[string][]string, error) {
	baseFiles := make(map[string]string)
	numberedFiles := make(map[string]map[int]string)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		content := string(data)

		if matches := numberedFileRe.FindStringSubmatch(info.Name()); matches != nil {
			key := matches[1]
			index, _ := strconv.Atoi(matches[2])
			if numberedFiles[key] == nil {
				numberedFiles[key] = make(map[int]string)
			}
			numberedFiles[key][index] = content
			return nil
		}

		key := strings.TrimSuffix(info.Name(), ".json")
		baseFiles[key] = content
		return nil
	})
	if err != nil {
		return nil, err
	}

	fixtures := make(map[string][]string)

	allKeys := make(map[string]bool)
	for k := range baseFiles {
		allKeys[k] = true
	}
	for k := range numberedFiles {
		allKeys[k] = true
	}

	for key := range allKeys {
		var seq []string

		if numbered, ok := numberedFiles[key]; ok {
			indices := make([]int, 0, len(numbered))
			for idx := range numbered {
				indices = append(indices, idx)
			}
			sort.Ints(indices)
			for _, idx := range indices {
				seq = append(seq, numbered[idx])
			}
		}

		if base, ok := baseFiles[key]; ok {
			seq = append(seq, base)
		}

		if len(seq) > 0 {
			fixtures[key] = seq
		}
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}

	return fixtures, nil
}
