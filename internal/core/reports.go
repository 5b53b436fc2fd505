package core

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"mocacore/internal/scoring"
	"mocacore/pkg/domain"
)

// Report labels carry the long clinical wording shown to test takers.
const (
	ReportNormal   = "Normal"
	ReportMild     = "Mild Cognitive Impairment"
	ReportModerate = "Moderate Cognitive Impairment"
	ReportSevere   = "Severe Cognitive Impairment"
)

// AdjustedTotal adds the one point education correction, capped at the
// instrument maximum.
func AdjustedTotal(total float64, level EducationLevel) float64 {
	if level.QualifiesForAdjustment() {
		total++
	}
	return math.Min(total, scoring.MaxTotal)
}

// ReportLabel maps an adjusted total to its report wording. Unlike the
// stored interpretation a zero total is labelled Severe.
func ReportLabel(total float64) string {
	label, ok := scoring.Interpret(total)
	if !ok {
		return ReportSevere
	}
	switch label {
	case domain.InterpretationNormal:
		return ReportNormal
	case domain.InterpretationMild:
		return ReportMild
	case domain.InterpretationModerate:
		return ReportModerate
	default:
		return ReportSevere
	}
}

// ReportResult is one recorded section in a report.
type ReportResult struct {
	ResultID             string          `json:"result_id"`
	SectionName          string          `json:"section_name"`
	RawScore             float64         `json:"raw_score"`
	MaxScore             *float64        `json:"max_score,omitempty"`
	Confidence           float64         `json:"confidence"`
	Details              json.RawMessage `json:"details,omitempty"`
	RequiresManualReview bool            `json:"requires_manual_review"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Report is the detailed result of one session.
type Report struct {
	SessionID            string                        `json:"session_id"`
	UserID               string                        `json:"user_id"`
	UserName             string                        `json:"user_name"`
	EducationLevel       EducationLevel                `json:"education_level"`
	RawTotal             float64                       `json:"raw_total"`
	TotalScore           float64                       `json:"total_score"`
	MaxScore             float64                       `json:"max_score"`
	Interpretation       string                        `json:"interpretation"`
	SectionScores        map[string]float64            `json:"section_scores"`
	SubsectionScores     map[string]map[string]float64 `json:"subsection_scores"`
	CompletedSections    []string                      `json:"completed_sections"`
	RequiresManualReview bool                          `json:"requires_manual_review"`
	CompletedAt          time.Time                     `json:"completed_at"`
	IndividualResults    []ReportResult                `json:"individual_results"`
}

// ResultSummary is one row of a user's history.
type ResultSummary struct {
	SessionID            string             `json:"session_id"`
	UserID               string             `json:"user_id"`
	UserName             string             `json:"user_name"`
	EducationLevel       EducationLevel     `json:"education_level"`
	TotalScore           float64            `json:"total_score"`
	Interpretation       string             `json:"interpretation"`
	SectionScores        map[string]float64 `json:"section_scores"`
	RequiresManualReview bool               `json:"requires_manual_review"`
	CompletedAt          time.Time          `json:"completed_at"`
}

// Report builds the detailed result of a session.
func (s *Service) Report(ctx context.Context, sessionID string) (Report, error) {
	var report Report
	err := s.run(ctx, "session_report", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			session, ok := v.FindSession(sessionID)
			if !ok {
				return domain.NotFoundError{Entity: EntitySession, ID: sessionID}
			}
			user, ok := v.FindUser(session.UserID)
			if !ok {
				return domain.NotFoundError{Entity: EntityUser, ID: session.UserID}
			}
			adjusted := AdjustedTotal(session.TotalScore, user.EducationLevel)
			report = Report{
				SessionID:            session.ID,
				UserID:               user.ID,
				UserName:             user.Name,
				EducationLevel:       user.EducationLevel,
				RawTotal:             session.TotalScore,
				TotalScore:           adjusted,
				MaxScore:             scoring.MaxTotal,
				Interpretation:       ReportLabel(adjusted),
				SectionScores:        session.SectionScores,
				SubsectionScores:     session.SubsectionScores,
				CompletedSections:    session.CompletedSections,
				RequiresManualReview: session.RequiresManualReview,
				CompletedAt:          session.UpdatedAt,
			}
			for _, res := range v.ListSessionResults(session.ID) {
				report.IndividualResults = append(report.IndividualResults, ReportResult{
					ResultID:             res.ID,
					SectionName:          res.SectionName,
					RawScore:             res.RawScore,
					MaxScore:             res.MaxScore,
					Confidence:           res.Confidence,
					Details:              res.Details,
					RequiresManualReview: res.RequiresManualReview,
					CreatedAt:            res.CreatedAt,
				})
			}
			return nil
		})
	})
	return report, err
}

// UserHistory summarizes every session of a user, newest first.
func (s *Service) UserHistory(ctx context.Context, userID string) ([]ResultSummary, error) {
	var history []ResultSummary
	err := s.run(ctx, "user_history", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			user, ok := v.FindUser(userID)
			if !ok {
				return domain.NotFoundError{Entity: EntityUser, ID: userID}
			}
			history = make([]ResultSummary, 0)
			for _, session := range newestFirst(v.ListUserSessions(userID)) {
				adjusted := AdjustedTotal(session.TotalScore, user.EducationLevel)
				history = append(history, ResultSummary{
					SessionID:            session.ID,
					UserID:               user.ID,
					UserName:             user.Name,
					EducationLevel:       user.EducationLevel,
					TotalScore:           adjusted,
					Interpretation:       ReportLabel(adjusted),
					SectionScores:        session.SectionScores,
					RequiresManualReview: session.RequiresManualReview,
					CompletedAt:          session.UpdatedAt,
				})
			}
			return nil
		})
	})
	return history, err
}
