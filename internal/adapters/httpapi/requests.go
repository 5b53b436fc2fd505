package httpapi

import (
	"encoding/json"

	"mocacore/internal/scoring/sections"
)

type createUserRequest struct {
	Email          string `json:"email" binding:"required,email"`
	Name           string `json:"name" binding:"required,max=200"`
	EducationYears int    `json:"education_years" binding:"min=0,max=40"`
}

type createSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type recordResultRequest struct {
	UserID               string          `json:"user_id" binding:"required"`
	SectionName          string          `json:"section_name" binding:"required,moca_section"`
	RawScore             *float64        `json:"raw_score" binding:"required"`
	MaxScore             *float64        `json:"max_score"`
	Confidence           *float64        `json:"confidence"`
	RequiresManualReview bool            `json:"requires_manual_review"`
	Details              json.RawMessage `json:"details"`
	IdempotencyKey       string          `json:"idempotency_key"`
}

// scoreTarget is embedded by every scoring request.
type scoreTarget struct {
	SessionID      string `json:"session_id" binding:"required"`
	UserID         string `json:"user_id" binding:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

type trailMakingRequest struct {
	scoreTarget
	Path           []string `json:"path" binding:"required"`
	CrossingErrors int      `json:"crossing_errors" binding:"min=0"`
}

type cubeCopyRequest struct {
	scoreTarget
	Image          string   `json:"image_data" binding:"required"`
	DetectedShapes []string `json:"detected_shapes"`
}

type clockDrawingRequest struct {
	scoreTarget
	Image      string `json:"image_data" binding:"required"`
	TargetTime string `json:"target_time"`
}

type namingRequest struct {
	scoreTarget
	Responses []sections.NamingResponse `json:"responses" binding:"required,dive"`
}

type digitSpanRequest struct {
	scoreTarget
	Response []int `json:"response"`
	Sequence []int `json:"sequence" binding:"required"`
}

type vigilanceRequest struct {
	scoreTarget
	Taps    []int `json:"taps"`
	Targets []int `json:"targets" binding:"required"`
}

type sentenceRequest struct {
	scoreTarget
	Attempts []sections.SentenceAttempt `json:"attempts" binding:"required"`
}

type fluencyRequest struct {
	scoreTarget
	Transcript string `json:"transcript"`
}

type abstractionRequest struct {
	scoreTarget
	Answers []sections.AbstractionAnswer `json:"answers" binding:"required"`
}

type delayedRecallRequest struct {
	scoreTarget
	Original []string `json:"original_words" binding:"required"`
	Recalled []string `json:"recalled_words"`
}

type orientationRequest struct {
	scoreTarget
	sections.OrientationAnswer
}

type locationRequest struct {
	City string `json:"city" binding:"required"`
}

type reviewRequest struct {
	RequiresReview *bool  `json:"requires_review" binding:"required"`
	Notes          string `json:"notes" binding:"max=2000"`
}

type listSessionsQuery struct {
	RequiresReview *bool `form:"requires_review"`
	Limit          int   `form:"limit" binding:"min=0"`
	Skip           int   `form:"skip" binding:"min=0"`
}
