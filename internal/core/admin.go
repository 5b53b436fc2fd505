package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"mocacore/internal/blob"
	"mocacore/internal/scoring"
	"mocacore/pkg/domain"
)

// Admin list paging defaults.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// pendingInterpretation is shown for sessions without a label yet.
const pendingInterpretation = "Pending"

// DashboardStats summarizes every stored session.
type DashboardStats struct {
	TotalSessions              int            `json:"total_sessions"`
	SessionsRequiringReview    int            `json:"sessions_requiring_review"`
	TotalUsers                 int            `json:"total_users"`
	AvgScore                   float64        `json:"avg_score"`
	InterpretationDistribution map[string]int `json:"interpretation_distribution"`
}

// SessionFilter selects sessions for the admin list.
type SessionFilter struct {
	RequiresReview *bool
	Limit          int
	Skip           int
}

// SessionSummary is one row of the admin session list.
type SessionSummary struct {
	SessionID            string         `json:"session_id"`
	UserID               string         `json:"user_id"`
	UserName             string         `json:"user_name"`
	UserEmail            string         `json:"user_email"`
	EducationLevel       EducationLevel `json:"education_level"`
	TotalScore           float64        `json:"total_score"`
	Interpretation       string         `json:"interpretation"`
	RequiresManualReview bool           `json:"requires_manual_review"`
	CompletedSections    []string       `json:"completed_sections"`
	StartTime            time.Time      `json:"start_time"`
	EndTime              *time.Time     `json:"end_time,omitempty"`
}

// SessionDetail is the review view of one session.
type SessionDetail struct {
	Session          DetailSession           `json:"session"`
	User             DetailUser              `json:"user"`
	ResultsBySection map[string]DetailResult `json:"results_by_section"`
}

// DetailSession is the session block of SessionDetail.
type DetailSession struct {
	SessionID            string     `json:"session_id"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	CompletedSections    []string   `json:"completed_sections"`
	TotalScore           float64    `json:"total_score"`
	AdjustedScore        float64    `json:"adjusted_score"`
	Interpretation       string     `json:"interpretation"`
	RequiresManualReview bool       `json:"requires_manual_review"`
	ReviewNotes          string     `json:"review_notes,omitempty"`
	Version              int64      `json:"version"`
}

// DetailUser is the user block of SessionDetail.
type DetailUser struct {
	UserID         string         `json:"user_id"`
	Name           string         `json:"name"`
	Email          string         `json:"email"`
	EducationYears int            `json:"education_years"`
	EducationLevel EducationLevel `json:"education_level"`
}

// DetailResult is the latest result recorded for a section.
type DetailResult struct {
	ResultID             string          `json:"result_id"`
	RawScore             float64         `json:"raw_score"`
	Confidence           float64         `json:"confidence"`
	Details              json.RawMessage `json:"details,omitempty"`
	RequiresManualReview bool            `json:"requires_manual_review"`
	CreatedAt            time.Time       `json:"created_at"`
	ArtifactKey          string          `json:"artifact_key,omitempty"`
}

// ReviewUpdate is an administrative override of the review flag.
type ReviewUpdate struct {
	RequiresReview bool
	Notes          string
}

// DashboardStats counts sessions, users and the interpretation spread.
func (s *Service) DashboardStats(ctx context.Context) (DashboardStats, error) {
	var stats DashboardStats
	err := s.run(ctx, "dashboard_stats", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			sessions := v.ListSessions()
			stats = DashboardStats{
				TotalSessions: len(sessions),
				TotalUsers:    len(v.ListUsers()),
				InterpretationDistribution: map[string]int{
					string(domain.InterpretationNormal):   0,
					string(domain.InterpretationMild):     0,
					string(domain.InterpretationModerate): 0,
					string(domain.InterpretationSevere):   0,
				},
			}
			var sum float64
			var scored int
			for _, sess := range sessions {
				if sess.RequiresManualReview {
					stats.SessionsRequiringReview++
				}
				if sess.TotalScore > 0 {
					sum += sess.TotalScore
					scored++
				}
				stats.InterpretationDistribution[distributionKey(sess)]++
			}
			if scored > 0 {
				stats.AvgScore = math.Round(sum/float64(scored)*100) / 100
			}
			return nil
		})
	})
	return stats, err
}

// distributionKey uses the stored label when it is a known band and falls
// back to the score band otherwise. Unlabelled zero totals count as Severe.
func distributionKey(sess Session) string {
	switch sess.Interpretation {
	case domain.InterpretationNormal, domain.InterpretationMild, domain.InterpretationModerate, domain.InterpretationSevere:
		return string(sess.Interpretation)
	case "":
		if label, ok := scoring.Interpret(sess.TotalScore); ok {
			return string(label)
		}
	}
	return string(domain.InterpretationSevere)
}

// ListSessions pages through sessions newest first. Sessions whose user no
// longer exists are skipped.
func (s *Service) ListSessions(ctx context.Context, filter SessionFilter) ([]SessionSummary, error) {
	var out []SessionSummary
	err := s.run(ctx, "list_sessions", func(ctx context.Context) error {
		limit := filter.Limit
		switch {
		case limit == 0:
			limit = DefaultListLimit
		case limit < 0 || limit > MaxListLimit:
			return fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidInput, MaxListLimit)
		}
		if filter.Skip < 0 {
			return fmt.Errorf("%w: skip must not be negative", domain.ErrInvalidInput)
		}
		return s.view(ctx, func(v TransactionView) error {
			var matched []Session
			for _, sess := range newestFirst(v.ListSessions()) {
				if filter.RequiresReview != nil && sess.RequiresManualReview != *filter.RequiresReview {
					continue
				}
				matched = append(matched, sess)
			}
			out = make([]SessionSummary, 0)
			if filter.Skip >= len(matched) {
				return nil
			}
			matched = matched[filter.Skip:]
			if len(matched) > limit {
				matched = matched[:limit]
			}
			for _, sess := range matched {
				user, ok := v.FindUser(sess.UserID)
				if !ok {
					continue
				}
				interpretation := string(sess.Interpretation)
				if interpretation == "" {
					interpretation = pendingInterpretation
				}
				out = append(out, SessionSummary{
					SessionID:            sess.ID,
					UserID:               user.ID,
					UserName:             user.Name,
					UserEmail:            user.Email,
					EducationLevel:       user.EducationLevel,
					TotalScore:           sess.TotalScore,
					Interpretation:       interpretation,
					RequiresManualReview: sess.RequiresManualReview,
					CompletedSections:    sess.CompletedSections,
					StartTime:            sess.StartTime,
					EndTime:              sess.EndTime,
				})
			}
			return nil
		})
	})
	return out, err
}

// SessionDetail returns the review view of a session. Each section shows
// its most recent result.
func (s *Service) SessionDetail(ctx context.Context, sessionID string) (SessionDetail, error) {
	var detail SessionDetail
	var drawings []string
	err := s.run(ctx, "session_detail", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			sess, ok := v.FindSession(sessionID)
			if !ok {
				return domain.NotFoundError{Entity: EntitySession, ID: sessionID}
			}
			user, ok := v.FindUser(sess.UserID)
			if !ok {
				return domain.NotFoundError{Entity: EntityUser, ID: sess.UserID}
			}
			interpretation := string(sess.Interpretation)
			if interpretation == "" {
				interpretation = pendingInterpretation
			}
			detail = SessionDetail{
				Session: DetailSession{
					SessionID:            sess.ID,
					StartTime:            sess.StartTime,
					EndTime:              sess.EndTime,
					CompletedSections:    sess.CompletedSections,
					TotalScore:           sess.TotalScore,
					AdjustedScore:        AdjustedTotal(sess.TotalScore, user.EducationLevel),
					Interpretation:       interpretation,
					RequiresManualReview: sess.RequiresManualReview,
					ReviewNotes:          sess.ReviewNotes,
					Version:              sess.Version,
				},
				User: DetailUser{
					UserID:         user.ID,
					Name:           user.Name,
					Email:          user.Email,
					EducationYears: user.EducationYears,
					EducationLevel: user.EducationLevel,
				},
				ResultsBySection: make(map[string]DetailResult),
			}
			for _, res := range v.ListSessionResults(sess.ID) {
				detail.ResultsBySection[res.SectionName] = DetailResult{
					ResultID:             res.ID,
					RawScore:             res.RawScore,
					Confidence:           res.Confidence,
					Details:              res.Details,
					RequiresManualReview: res.RequiresManualReview,
					CreatedAt:            res.CreatedAt,
				}
			}
			for name := range detail.ResultsBySection {
				if drawingSection(name) {
					drawings = append(drawings, name)
				}
			}
			return nil
		})
	})
	if err != nil {
		return SessionDetail{}, err
	}
	s.attachArtifacts(ctx, &detail, drawings)
	return detail, nil
}

// attachArtifacts links archived canvases to the drawing sections that have one.
func (s *Service) attachArtifacts(ctx context.Context, detail *SessionDetail, drawings []string) {
	if s.artifacts == nil || len(drawings) == 0 {
		return
	}
	infos, err := s.artifacts.List(ctx, blob.SessionPrefix(detail.Session.SessionID))
	if err != nil {
		return
	}
	sort.Strings(drawings)
	for _, name := range drawings {
		res := detail.ResultsBySection[name]
		prefix := blob.SessionPrefix(detail.Session.SessionID) + name + "/" + res.ResultID + "."
		for _, info := range infos {
			if strings.HasPrefix(info.Key, prefix) {
				res.ArtifactKey = info.Key
				detail.ResultsBySection[name] = res
				break
			}
		}
	}
}

// UpdateReview sets or clears the review flag. It is the only path that may
// clear a flag raised by a section result. Empty notes keep the stored notes.
func (s *Service) UpdateReview(ctx context.Context, sessionID string, update ReviewUpdate) (Session, error) {
	var session Session
	err := s.run(ctx, "update_review", func(ctx context.Context) error {
		return s.transact(ctx, func(tx Transaction) error {
			updated, err := tx.UpdateSession(sessionID, func(sess *Session) error {
				sess.RequiresManualReview = update.RequiresReview
				if notes := strings.TrimSpace(update.Notes); notes != "" {
					sess.ReviewNotes = notes
				}
				return nil
			})
			session = updated
			return err
		})
	})
	return session, err
}
