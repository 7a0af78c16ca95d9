package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Pre-compiled patterns for JSON extraction from model output.
var (
	// markdownBlockPattern matches fenced code blocks with an optional json tag.
	markdownBlockPattern = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")
	// jsonObjectPattern matches a JSON object (greedy across newlines).
	jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)
	// jsonArrayPattern matches a JSON array (greedy across newlines).
	jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)
	// trailingCommaPattern matches commas immediately preceding } or ].
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
	// unquotedKeyPattern matches bare identifier keys after { or , and before :.
	unquotedKeyPattern = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)(\s*:)`)
)

// NormalizeResult is the outcome of one normalization pass.
type NormalizeResult struct {
	Success        bool           `json:"success"`
	Data           map[string]any `json:"data,omitempty"`
	Error          string         `json:"error,omitempty"`
	RepairsApplied []string       `json:"repairs_applied,omitempty"`
}

// Normalize extracts a JSON mapping from raw model output. Models commonly
// wrap JSON in markdown fences, surround it with commentary, or emit small
// syntax defects; each recovery step beyond a direct parse is recorded in
// RepairsApplied. Arrays are lifted to {"items": [...]} so callers always
// receive a mapping. The function is pure: same input, same result.
func Normalize(raw string) NormalizeResult {
	if strings.TrimSpace(raw) == "" {
		return NormalizeResult{Success: false, Error: "empty input"}
	}

	var repairs []string

	// Step 1: direct parse.
	result := tryParse(raw)
	if result.Success {
		return result
	}

	// Step 2: extract from markdown code blocks. The first fenced body that
	// parses wins; otherwise the first JSON-shaped body becomes the new
	// working text.
	if candidates := markdownCandidates(raw); len(candidates) > 0 {
		repairs = append(repairs, "extracted_from_markdown")
		for _, candidate := range candidates {
			result = tryParse(candidate)
			if result.Success {
				result.RepairsApplied = repairs
				return result
			}
		}
		raw = candidates[0]
	}

	// Step 3: find a JSON-like structure in surrounding text.
	if extracted := findJSONStructure(raw); extracted != "" && extracted != raw {
		repairs = append(repairs, "extracted_json_structure")
		result = tryParse(extracted)
		if result.Success {
			result.RepairsApplied = repairs
			return result
		}
		raw = extracted
	}

	// Step 4: apply syntax repairs in fixed order.
	repaired, applied := applyRepairs(raw)
	repairs = append(repairs, applied...)

	result = tryParse(repaired)
	if result.Success {
		result.RepairsApplied = repairs
		return result
	}

	return NormalizeResult{
		Success:        false,
		Error:          fmt.Sprintf("failed to normalize JSON after repairs: %v", repairs),
		RepairsApplied: repairs,
	}
}

// tryParse parses text as JSON and requires a mapping or sequence result.
func tryParse(text string) NormalizeResult {
	var parsed any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed); err != nil {
		return NormalizeResult{Success: false, Error: err.Error()}
	}

	switch v := parsed.(type) {
	case map[string]any:
		return NormalizeResult{Success: true, Data: v}
	case []any:
		return NormalizeResult{Success: true, Data: map[string]any{"items": v}}
	default:
		return NormalizeResult{Success: false, Error: fmt.Sprintf("unexpected JSON type: %T", v)}
	}
}

// markdownCandidates returns the trimmed bodies of fenced code blocks that
// begin with { or [, in document order.
func markdownCandidates(text string) []string {
	var candidates []string
	for _, match := range markdownBlockPattern.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(match[1])
		if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
			candidates = append(candidates, body)
		}
	}
	return candidates
}

// findJSONStructure returns the first JSON object in text, else the first
// array, else the empty string.
func findJSONStructure(text string) string {
	if match := jsonObjectPattern.FindString(text); match != "" {
		return match
	}
	if match := jsonArrayPattern.FindString(text); match != "" {
		return match
	}
	return ""
}

// applyRepairs fixes common model JSON defects. Order is fixed so the same
// input always yields the same output and repair list.
func applyRepairs(text string) (string, []string) {
	var repairs []string
	result := text

	if trailingCommaPattern.MatchString(result) {
		result = trailingCommaPattern.ReplaceAllString(result, "${1}")
		repairs = append(repairs, "removed_trailing_commas")
	}

	if unquotedKeyPattern.MatchString(result) {
		result = unquotedKeyPattern.ReplaceAllString(result, `${1}"${2}"${3}`)
		repairs = append(repairs, "quoted_keys")
	}

	if strings.Contains(result, "'") && !strings.Contains(result, `"`) {
		result = strings.ReplaceAll(result, "'", `"`)
		repairs = append(repairs, "single_to_double_quotes")
	}

	return result, repairs
}
