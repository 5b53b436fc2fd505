// Package domain defines the persistent entities, value types, error kinds and
// rule evaluation primitives used by mocacore.
package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence collections.
const (
	// EntityUser identifies a test taker.
	EntityUser EntityType = "user"
	// EntitySession identifies one assessment attempt.
	EntitySession EntityType = "session"
	// EntityResult identifies an immutable section result.
	EntityResult EntityType = "section_result"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Interpretation is the ordinal clinical band derived from a session total.
// The empty value means no interpretation is available yet.
type Interpretation string

// Interpretation bands ordered from least to most impaired.
const (
	InterpretationNormal   Interpretation = "Normal"
	InterpretationMild     Interpretation = "Mild"
	InterpretationModerate Interpretation = "Moderate"
	InterpretationSevere   Interpretation = "Severe"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a test taker.
type User struct {
	Base
	Email          string         `json:"email"`
	Name           string         `json:"name"`
	EducationYears int            `json:"education_years"`
	EducationLevel EducationLevel `json:"education_level"`
}

// SessionScores is the aggregate state folded from section results.
type SessionScores struct {
	SectionScores        map[string]float64            `json:"section_scores"`
	SubsectionScores     map[string]map[string]float64 `json:"subsection_scores"`
	CompletedSections    []string                      `json:"completed_sections"`
	TotalScore           float64                       `json:"total_score"`
	Interpretation       Interpretation                `json:"interpretation,omitempty"`
	RequiresManualReview bool                          `json:"requires_manual_review"`
}

// IsCompleted reports whether the bucket has been marked complete.
func (s SessionScores) IsCompleted(bucket string) bool {
	for _, name := range s.CompletedSections {
		if name == bucket {
			return true
		}
	}
	return false
}

// Session is one assessment attempt and carries the running aggregate.
type Session struct {
	Base
	UserID         string         `json:"user_id"`
	EducationLevel EducationLevel `json:"education_level,omitempty"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        *time.Time     `json:"end_time,omitempty"`
	SessionScores
	ReviewNotes string `json:"review_notes,omitempty"`
	Version     int64  `json:"version"`
}

// SectionResult is the immutable record of one scored section submission.
type SectionResult struct {
	Base
	SessionID            string          `json:"session_id"`
	UserID               string          `json:"user_id"`
	SectionName          string          `json:"section_name"`
	RawScore             float64         `json:"raw_score"`
	MaxScore             *float64        `json:"max_score,omitempty"`
	Confidence           float64         `json:"confidence"`
	RequiresManualReview bool            `json:"requires_manual_review"`
	Details              json.RawMessage `json:"details,omitempty"`
	IdempotencyKey       string          `json:"idempotency_key"`
	// Sequence is the session version this result produced; it orders replay.
	Sequence int64 `json:"sequence"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity   EntityType
	Action   Action
	EntityID string
	Before   any
	After    any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
