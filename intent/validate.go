package intent

import (
	"fmt"
	"time"
)

// Validation error codes.
const (
	CodeMissingField      = "MISSING_FIELD"
	CodeInvalidIntentType = "INVALID_INTENT_TYPE"
	CodeInvalidType       = "INVALID_TYPE"
	CodeOutOfRange        = "OUT_OF_RANGE"
	CodeInvalidDate       = "INVALID_DATE"
)

// dateFormats are the accepted layouts for date parameters.
var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
}

// ValidationError is a single contract violation found in intent data.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult carries all findings from a validation pass.
// Errors are collected, not thrown, so the caller can surface or repair.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	Intent   *Intent           `json:"intent,omitempty"`
	Risk     RiskLevel         `json:"risk_level"`
}

// ValidateIntent checks a normalized mapping against the intent contract
// and returns the parsed Intent when it conforms.
//
// Checks run in order: required fields (short-circuit when missing),
// intent type membership, confidence range, intent-specific parameters,
// and raw_entities shape.
func ValidateIntent(data map[string]any) ValidationResult {
	var errs []ValidationError
	var warnings []string

	for _, required := range []string{"type", "confidence"} {
		if _, ok := data[required]; !ok {
			errs = append(errs, ValidationError{
				Field:   required,
				Message: fmt.Sprintf("Missing required field: %s", required),
				Code:    CodeMissingField,
			})
		}
	}
	if len(errs) > 0 {
		return ValidationResult{Valid: false, Errors: errs, Risk: RiskLow}
	}

	intentType := validateIntentType(data["type"], &errs)
	confidence := validateConfidence(data["confidence"], &errs)

	parameters, _ := data["parameters"].(map[string]any)
	if parameters == nil {
		parameters = map[string]any{}
	}
	if intentType != "" {
		validateParameters(intentType, parameters, &errs, &warnings)
	}

	entities := validateEntities(data["raw_entities"], &errs)

	if len(errs) > 0 {
		return ValidationResult{Valid: false, Errors: errs, Warnings: warnings, Risk: RiskLow}
	}

	if intentType == "" {
		intentType = TypeUnknown
	}
	parsed := &Intent{
		Type:        intentType,
		Confidence:  confidence,
		Parameters:  parameters,
		RawEntities: entities,
	}

	return ValidationResult{
		Valid:    true,
		Intent:   parsed,
		Risk:     RiskForType(parsed.Type),
		Warnings: warnings,
	}
}

// validateIntentType checks membership in the allowed set.
// A nil value is tolerated here; the caller maps it to TypeUnknown.
func validateIntentType(value any, errs *[]ValidationError) Type {
	if value == nil {
		return ""
	}

	s, ok := value.(string)
	if ok {
		t := Type(s)
		if t.IsValid() {
			return t
		}
	}

	*errs = append(*errs, ValidationError{
		Field:   "type",
		Message: fmt.Sprintf("Invalid intent type: %v. Allowed: %v", value, AllTypes),
		Code:    CodeInvalidIntentType,
	})
	return ""
}

// validateConfidence checks the confidence is numeric and within [0,1].
// Bounds are inclusive.
func validateConfidence(value any, errs *[]ValidationError) float64 {
	if value == nil {
		*errs = append(*errs, ValidationError{
			Field:   "confidence",
			Message: "Confidence is required",
			Code:    CodeMissingField,
		})
		return 0
	}

	var conf float64
	switch v := value.(type) {
	case float64:
		conf = v
	case float32:
		conf = float64(v)
	case int:
		conf = float64(v)
	case int64:
		conf = float64(v)
	default:
		*errs = append(*errs, ValidationError{
			Field:   "confidence",
			Message: fmt.Sprintf("Confidence must be a number, got: %T", value),
			Code:    CodeInvalidType,
		})
		return 0
	}

	if conf < 0.0 || conf > 1.0 {
		*errs = append(*errs, ValidationError{
			Field:   "confidence",
			Message: fmt.Sprintf("Confidence must be between 0 and 1, got: %v", conf),
			Code:    CodeOutOfRange,
		})
		return 0
	}
	return conf
}

// validateParameters runs intent-specific parameter checks.
func validateParameters(t Type, params map[string]any, errs *[]ValidationError, warnings *[]string) {
	switch t {
	case TypePlanDay:
		if date, ok := params["date"]; ok {
			validateDate(date, "parameters.date", errs)
		}
	case TypeProcessMeetingNotes:
		// Missing content is survivable; the skill falls back to entities.
		if isEmptyParam(params["content"]) && isEmptyParam(params["notes"]) {
			*warnings = append(*warnings, "Meeting notes intent has no content/notes parameter")
		}
	}
}

func isEmptyParam(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// validateDate accepts date strings in the supported layouts.
func validateDate(value any, field string, errs *[]ValidationError) {
	if value == nil {
		return
	}

	s, ok := value.(string)
	if !ok {
		*errs = append(*errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("Date must be a string, got: %T", value),
			Code:    CodeInvalidType,
		})
		return
	}

	for _, layout := range dateFormats {
		if _, err := time.Parse(layout, s); err == nil {
			return
		}
	}

	*errs = append(*errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf("Invalid date format: %s", s),
		Code:    CodeInvalidDate,
	})
}

// validateEntities checks raw_entities is a sequence of strings and
// returns the converted slice. Per-index violations name the offending
// element.
func validateEntities(value any, errs *[]ValidationError) []string {
	if value == nil {
		return []string{}
	}

	list, ok := value.([]any)
	if !ok {
		// Already-typed string slices pass through unchanged.
		if typed, ok := value.([]string); ok {
			return typed
		}
		*errs = append(*errs, ValidationError{
			Field:   "raw_entities",
			Message: "raw_entities must be a list",
			Code:    CodeInvalidType,
		})
		return []string{}
	}

	entities := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			*errs = append(*errs, ValidationError{
				Field:   fmt.Sprintf("raw_entities[%d]", i),
				Message: fmt.Sprintf("Entity must be string, got: %T", item),
				Code:    CodeInvalidType,
			})
			continue
		}
		entities = append(entities, s)
	}
	return entities
}
