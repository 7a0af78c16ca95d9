// Package intent defines the closed intent contract: the allowed intent
// types, routing profiles, job classes, risk levels, and the envelope
// exchanged between the transport layer and the engine. The intent type
// set is locked; unknown values hard-fail validation rather than being
// carried through.
package intent

import (
	"fmt"
	"time"
)

// EnvelopeVersion is the only envelope version this engine accepts.
const EnvelopeVersion = "2.1"

// Type represents an allowed intent classification.
type Type string

const (
	TypeCaptureTasks        Type = "CAPTURE_TASKS"
	TypePlanDay             Type = "PLAN_DAY"
	TypeProcessMeetingNotes Type = "PROCESS_MEETING_NOTES"
	TypeSearchSummarize     Type = "SEARCH_SUMMARIZE"
	TypeBuildWorkflow       Type = "BUILD_WORKFLOW"
	TypeUnknown             Type = "UNKNOWN"
)

// AllTypes lists every allowed intent type, in declaration order.
// Used for validation error messages and prompt construction.
var AllTypes = []Type{
	TypeCaptureTasks,
	TypePlanDay,
	TypeProcessMeetingNotes,
	TypeSearchSummarize,
	TypeBuildWorkflow,
	TypeUnknown,
}

// IsValid checks if the intent type is in the allowed set.
func (t Type) IsValid() bool {
	switch t {
	case TypeCaptureTasks, TypePlanDay, TypeProcessMeetingNotes,
		TypeSearchSummarize, TypeBuildWorkflow, TypeUnknown:
		return true
	}
	return false
}

// String returns the string representation of the intent type.
func (t Type) String() string {
	return string(t)
}

// RoutingProfile selects which model chains serve a request.
type RoutingProfile string

const (
	// ProfileOffline routes to local models only.
	ProfileOffline RoutingProfile = "OFFLINE"

	// ProfileBalanced prefers cloud models with a local fallback.
	ProfileBalanced RoutingProfile = "BALANCED"

	// ProfileAccuracy routes to the best cloud models.
	ProfileAccuracy RoutingProfile = "ACCURACY"
)

// IsValid checks if the routing profile is a known profile.
func (p RoutingProfile) IsValid() bool {
	switch p {
	case ProfileOffline, ProfileBalanced, ProfileAccuracy:
		return true
	}
	return false
}

// String returns the string representation of the routing profile.
func (p RoutingProfile) String() string {
	return string(p)
}

// ParseRoutingProfile converts a string to a RoutingProfile.
// Unknown values coerce to ProfileBalanced.
func ParseRoutingProfile(s string) RoutingProfile {
	p := RoutingProfile(s)
	if p.IsValid() {
		return p
	}
	return ProfileBalanced
}

// RoutingProfiles lists every routing profile, in declaration order.
func RoutingProfiles() []RoutingProfile {
	return []RoutingProfile{ProfileOffline, ProfileBalanced, ProfileAccuracy}
}

// RiskLevel drives the confirmation policy for skills and tools.
type RiskLevel string

const (
	// RiskLow operations run without confirmation.
	RiskLow RiskLevel = "LOW"

	// RiskMedium operations require confirmation before mutating state.
	RiskMedium RiskLevel = "MEDIUM"

	// RiskHigh operations always require confirmation.
	RiskHigh RiskLevel = "HIGH"
)

// String returns the string representation of the risk level.
func (r RiskLevel) String() string {
	return string(r)
}

// intentRisk is the fixed risk classification per intent type.
var intentRisk = map[Type]RiskLevel{
	TypeCaptureTasks:        RiskLow,
	TypeSearchSummarize:     RiskLow,
	TypeUnknown:             RiskLow,
	TypePlanDay:             RiskMedium,
	TypeProcessMeetingNotes: RiskMedium,
	TypeBuildWorkflow:       RiskHigh,
}

// RiskForType returns the risk level for an intent type.
// Unknown types default to RiskLow.
func RiskForType(t Type) RiskLevel {
	if r, ok := intentRisk[t]; ok {
		return r
	}
	return RiskLow
}

// Intent is a parsed classification of a user request.
// Immutable once validated.
type Intent struct {
	// Type is the closed-set classification.
	Type Type `json:"type"`

	// Confidence is the model's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Parameters carries intent-specific structured arguments.
	Parameters map[string]any `json:"parameters"`

	// RawEntities are the extracted entity strings, in model order.
	RawEntities []string `json:"raw_entities"`
}

// Validate checks the intent against its contract.
func (i *Intent) Validate() error {
	if !i.Type.IsValid() {
		return fmt.Errorf("invalid intent type: %s", i.Type)
	}
	if i.Confidence < 0.0 || i.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0 and 1, got %v", i.Confidence)
	}
	return nil
}

// Envelope wraps a validated intent with the request context.
// Version is hard-checked against EnvelopeVersion.
type Envelope struct {
	Version        string         `json:"version"`
	Intent         Intent         `json:"intent"`
	UserInput      string         `json:"user_input"`
	TimestampUTC   time.Time      `json:"timestamp_utc"`
	ProfileID      string         `json:"profile_id,omitempty"`
	RoutingProfile RoutingProfile `json:"routing_profile"`
}

// NewEnvelope builds a versioned envelope around a validated intent.
func NewEnvelope(in Intent, userInput string, profile RoutingProfile) *Envelope {
	return &Envelope{
		Version:        EnvelopeVersion,
		Intent:         in,
		UserInput:      userInput,
		TimestampUTC:   time.Now().UTC(),
		RoutingProfile: profile,
	}
}

// Validate checks the envelope version, routing profile, and intent.
func (e *Envelope) Validate() error {
	if e.Version != EnvelopeVersion {
		return fmt.Errorf("unsupported envelope version: %s", e.Version)
	}
	if !e.RoutingProfile.IsValid() {
		return fmt.Errorf("invalid routing profile: %s", e.RoutingProfile)
	}
	return e.Intent.Validate()
}
