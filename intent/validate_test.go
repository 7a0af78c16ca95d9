package intent

import (
	"fmt"
	"testing"
)

func TestValidateIntentRequiredFields(t *testing.T) {
	tests := []struct {
		name       string
		data       map[string]any
		wantFields []string
	}{
		{
			name:       "missing type",
			data:       map[string]any{"confidence": 0.9},
			wantFields: []string{"type"},
		},
		{
			name:       "missing confidence",
			data:       map[string]any{"type": "CAPTURE_TASKS"},
			wantFields: []string{"confidence"},
		},
		{
			name:       "missing both",
			data:       map[string]any{},
			wantFields: []string{"type", "confidence"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateIntent(tt.data)
			if result.Valid {
				t.Fatal("expected invalid result")
			}
			if len(result.Errors) != len(tt.wantFields) {
				t.Fatalf("expected %d errors, got %d: %v", len(tt.wantFields), len(result.Errors), result.Errors)
			}
			for i, field := range tt.wantFields {
				if result.Errors[i].Field != field {
					t.Errorf("error %d: expected field %q, got %q", i, field, result.Errors[i].Field)
				}
				if result.Errors[i].Code != CodeMissingField {
					t.Errorf("error %d: expected code %s, got %s", i, CodeMissingField, result.Errors[i].Code)
				}
			}
		})
	}
}

func TestValidateIntentType(t *testing.T) {
	tests := []struct {
		name     string
		typeVal  any
		wantOK   bool
		wantCode string
	}{
		{name: "capture tasks", typeVal: "CAPTURE_TASKS", wantOK: true},
		{name: "plan day", typeVal: "PLAN_DAY", wantOK: true},
		{name: "unknown is allowed", typeVal: "UNKNOWN", wantOK: true},
		{name: "not in closed set", typeVal: "DO_EVERYTHING", wantCode: CodeInvalidIntentType},
		{name: "lowercase rejected", typeVal: "capture_tasks", wantCode: CodeInvalidIntentType},
		{name: "non-string rejected", typeVal: 42.0, wantCode: CodeInvalidIntentType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateIntent(map[string]any{
				"type":       tt.typeVal,
				"confidence": 0.8,
			})
			if tt.wantOK {
				if !result.Valid {
					t.Fatalf("expected valid, got errors: %v", result.Errors)
				}
				if result.Intent == nil {
					t.Fatal("expected parsed intent")
				}
				return
			}
			if result.Valid {
				t.Fatal("expected invalid result")
			}
			if result.Errors[0].Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, result.Errors[0].Code)
			}
		})
	}
}

func TestValidateConfidenceBounds(t *testing.T) {
	tests := []struct {
		name       string
		confidence any
		wantOK     bool
		wantCode   string
	}{
		{name: "zero is inclusive", confidence: 0.0, wantOK: true},
		{name: "one is inclusive", confidence: 1.0, wantOK: true},
		{name: "mid range", confidence: 0.95, wantOK: true},
		{name: "integer confidence", confidence: 1, wantOK: true},
		{name: "just below zero", confidence: -0.0001, wantCode: CodeOutOfRange},
		{name: "just above one", confidence: 1.0001, wantCode: CodeOutOfRange},
		{name: "string confidence", confidence: "0.9", wantCode: CodeInvalidType},
		{name: "bool confidence", confidence: true, wantCode: CodeInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateIntent(map[string]any{
				"type":       "SEARCH_SUMMARIZE",
				"confidence": tt.confidence,
			})
			if tt.wantOK {
				if !result.Valid {
					t.Fatalf("expected valid, got errors: %v", result.Errors)
				}
				return
			}
			if result.Valid {
				t.Fatal("expected invalid result")
			}
			if result.Errors[0].Field != "confidence" {
				t.Errorf("expected confidence error, got field %q", result.Errors[0].Field)
			}
			if result.Errors[0].Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, result.Errors[0].Code)
			}
		})
	}
}

func TestValidatePlanDayDate(t *testing.T) {
	tests := []struct {
		name    string
		date    any
		wantOK  bool
		wantErr string
	}{
		{name: "date only", date: "2025-03-14", wantOK: true},
		{name: "date time", date: "2025-03-14T09:30:00", wantOK: true},
		{name: "date time zulu", date: "2025-03-14T09:30:00Z", wantOK: true},
		{name: "garbage date", date: "next tuesday", wantErr: CodeInvalidDate},
		{name: "numeric date", date: 20250314.0, wantErr: CodeInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateIntent(map[string]any{
				"type":       "PLAN_DAY",
				"confidence": 0.9,
				"parameters": map[string]any{"date": tt.date},
			})
			if tt.wantOK {
				if !result.Valid {
					t.Fatalf("expected valid, got errors: %v", result.Errors)
				}
				return
			}
			if result.Valid {
				t.Fatal("expected invalid result")
			}
			if result.Errors[0].Field != "parameters.date" {
				t.Errorf("expected parameters.date error, got field %q", result.Errors[0].Field)
			}
			if result.Errors[0].Code != tt.wantErr {
				t.Errorf("expected code %s, got %s", tt.wantErr, result.Errors[0].Code)
			}
		})
	}
}

func TestValidateMeetingNotesWarning(t *testing.T) {
	result := ValidateIntent(map[string]any{
		"type":       "PROCESS_MEETING_NOTES",
		"confidence": 0.85,
	})
	if !result.Valid {
		t.Fatalf("expected valid, got errors: %v", result.Errors)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", result.Warnings)
	}

	// Content present suppresses the warning.
	result = ValidateIntent(map[string]any{
		"type":       "PROCESS_MEETING_NOTES",
		"confidence": 0.85,
		"parameters": map[string]any{"content": "Discussed roadmap"},
	})
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}
}

func TestValidateRawEntities(t *testing.T) {
	t.Run("non-list", func(t *testing.T) {
		result := ValidateIntent(map[string]any{
			"type":         "CAPTURE_TASKS",
			"confidence":   0.9,
			"raw_entities": "buy milk",
		})
		if result.Valid {
			t.Fatal("expected invalid result")
		}
		if result.Errors[0].Field != "raw_entities" {
			t.Errorf("expected raw_entities error, got %q", result.Errors[0].Field)
		}
	})

	t.Run("non-string element named by index", func(t *testing.T) {
		result := ValidateIntent(map[string]any{
			"type":         "CAPTURE_TASKS",
			"confidence":   0.9,
			"raw_entities": []any{"buy milk", 7.0, "call dentist"},
		})
		if result.Valid {
			t.Fatal("expected invalid result")
		}
		want := fmt.Sprintf("raw_entities[%d]", 1)
		if result.Errors[0].Field != want {
			t.Errorf("expected field %q, got %q", want, result.Errors[0].Field)
		}
	})

	t.Run("valid entities converted", func(t *testing.T) {
		result := ValidateIntent(map[string]any{
			"type":         "CAPTURE_TASKS",
			"confidence":   0.9,
			"raw_entities": []any{"buy milk", "call dentist"},
		})
		if !result.Valid {
			t.Fatalf("expected valid, got errors: %v", result.Errors)
		}
		if len(result.Intent.RawEntities) != 2 {
			t.Fatalf("expected 2 entities, got %v", result.Intent.RawEntities)
		}
		if result.Intent.RawEntities[0] != "buy milk" {
			t.Errorf("unexpected first entity: %q", result.Intent.RawEntities[0])
		}
	})
}

func TestRiskMapping(t *testing.T) {
	tests := []struct {
		intentType Type
		want       RiskLevel
	}{
		{TypeCaptureTasks, RiskLow},
		{TypeSearchSummarize, RiskLow},
		{TypeUnknown, RiskLow},
		{TypePlanDay, RiskMedium},
		{TypeProcessMeetingNotes, RiskMedium},
		{TypeBuildWorkflow, RiskHigh},
	}

	for _, tt := range tests {
		t.Run(string(tt.intentType), func(t *testing.T) {
			if got := RiskForType(tt.intentType); got != tt.want {
				t.Errorf("RiskForType(%s) = %s, want %s", tt.intentType, got, tt.want)
			}

			result := ValidateIntent(map[string]any{
				"type":       string(tt.intentType),
				"confidence": 0.9,
			})
			if result.Risk != tt.want {
				t.Errorf("validated risk = %s, want %s", result.Risk, tt.want)
			}
		})
	}
}

func TestEnvelopeVersionCheck(t *testing.T) {
	env := NewEnvelope(Intent{Type: TypeCaptureTasks, Confidence: 0.9}, "buy milk", ProfileOffline)
	if err := env.Validate(); err != nil {
		t.Fatalf("expected valid envelope: %v", err)
	}

	env.Version = "2.0"
	if err := env.Validate(); err == nil {
		t.Fatal("expected version rejection")
	}
}

func TestParseRoutingProfile(t *testing.T) {
	tests := []struct {
		input string
		want  RoutingProfile
	}{
		{"OFFLINE", ProfileOffline},
		{"BALANCED", ProfileBalanced},
		{"ACCURACY", ProfileAccuracy},
		{"TURBO", ProfileBalanced},
		{"", ProfileBalanced},
		{"offline", ProfileBalanced},
	}

	for _, tt := range tests {
		if got := ParseRoutingProfile(tt.input); got != tt.want {
			t.Errorf("ParseRoutingProfile(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}
