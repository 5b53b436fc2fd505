package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mocacore/internal/blob"
	"mocacore/internal/scoring"
	"mocacore/internal/scoring/sections"
	"mocacore/pkg/domain"
)

// ScoreRequest identifies the session a scored section is recorded against.
type ScoreRequest struct {
	SessionID      string
	UserID         string
	IdempotencyKey string
}

// ScoreOutcome pairs a section's heuristic verdict with the recorded aggregate.
type ScoreOutcome struct {
	sections.Outcome
	Record RecordOutcome `json:"record"`
	// ArtifactKey names the archived drawing, when one was stored.
	ArtifactKey string `json:"artifact_key,omitempty"`
}

// ScoreTrailMaking scores the connected trail path.
func (s *Service) ScoreTrailMaking(ctx context.Context, req ScoreRequest, path []string, crossingErrors int) (ScoreOutcome, error) {
	return s.recordOutcome(ctx, req, sections.TrailMaking(path, crossingErrors))
}

// ScoreCubeCopy scores a cube drawing and archives the canvas.
func (s *Service) ScoreCubeCopy(ctx context.Context, req ScoreRequest, image string, shapes []string) (ScoreOutcome, error) {
	outcome, drawing := sections.CubeCopy(image, shapes)
	return s.recordDrawing(ctx, req, outcome, drawing)
}

// ScoreClockDrawing scores a clock drawing and archives the canvas.
func (s *Service) ScoreClockDrawing(ctx context.Context, req ScoreRequest, image, targetTime string) (ScoreOutcome, error) {
	outcome, drawing := sections.ClockDrawing(image, targetTime)
	return s.recordDrawing(ctx, req, outcome, drawing)
}

// ScoreNaming scores the animal naming answers.
func (s *Service) ScoreNaming(ctx context.Context, req ScoreRequest, responses []sections.NamingResponse) (ScoreOutcome, error) {
	return s.recordOutcome(ctx, req, sections.Naming(responses))
}

// ScoreAttentionForward scores forward digit span.
func (s *Service) ScoreAttentionForward(ctx context.Context, req ScoreRequest, response, sequence []int) (ScoreOutcome, error) {
	return s.recordOutcome(ctx, req, sections.DigitSpanForward(response, sequence))
}

// ScoreAttentionBackward scores backward digit span.
func (s *Service) ScoreAttentionBackward(ctx context.Context, req ScoreRequest, response, sequence []int) (ScoreOutcome, error) {
	return s.recordOutcome(ctx, req, sections.DigitSpanBackward(response, sequence))
}

// ScoreAttentionVigilance scores the letter tapping task.
func (s *Service) ScoreAttentionVigilance(ctx context.Context, req ScoreRequest, taps, targets []int) (ScoreOutcome, error) {
	return s.recordOutcome(ctx, req, sections.Vigilance(taps, targets))
}

// ScoreSentenceRepetition scores repeated sentences.
func (s *Service) ScoreSentenceRepetition(ctx context.Context, req ScoreRequest, attempts []sections.SentenceAttempt) (ScoreOutcome, error) {
	return s.recordOutcome(ctx, req, sections.SentenceRepetition(attempts))
}

// ScoreVerbalFluency scores an F-word fluency transcript.
func (s *Service) ScoreVerbalFluency(ctx context.Context, req ScoreRequest, transcript string) (ScoreOutcome, error) {
	return s.recordOutcome(ctx, req, sections.VerbalFluency(transcript))
}

// ScoreAbstraction scores the similarity pairs.
func (s *Service) ScoreAbstraction(ctx context.Context, req ScoreRequest, answers []sections.AbstractionAnswer) (ScoreOutcome, error) {
	return s.recordOutcome(ctx, req, sections.Abstraction(answers))
}

// ScoreDelayedRecall scores recalled words against the original list.
func (s *Service) ScoreDelayedRecall(ctx context.Context, req ScoreRequest, original, recalled []string) (ScoreOutcome, error) {
	return s.recordOutcome(ctx, req, sections.DelayedRecall(original, recalled))
}

// ScoreOrientation checks orientation answers against the service clock.
func (s *Service) ScoreOrientation(ctx context.Context, req ScoreRequest, ans sections.OrientationAnswer) (ScoreOutcome, error) {
	return s.recordOutcome(ctx, req, sections.Orientation(ans, s.clock.Now(), s.expectedCity))
}

// DateTimeCheck is the verdict of a stand-alone date and time verification.
type DateTimeCheck struct {
	DateCorrect  bool    `json:"date_correct"`
	MonthCorrect bool    `json:"month_correct"`
	YearCorrect  bool    `json:"year_correct"`
	DayCorrect   bool    `json:"day_correct"`
	Score        int     `json:"score"`
	Confidence   float64 `json:"confidence"`
}

// VerifyDateTime checks date answers without recording anything.
func (s *Service) VerifyDateTime(ans sections.OrientationAnswer) DateTimeCheck {
	ans.City = ""
	check := sections.CheckOrientation(ans, s.clock.Now(), s.expectedCity)
	check.CityCorrect = false
	return DateTimeCheck{
		DateCorrect:  check.DateCorrect,
		MonthCorrect: check.MonthCorrect,
		YearCorrect:  check.YearCorrect,
		DayCorrect:   check.DayCorrect,
		Score:        check.Points(),
		Confidence:   1.0,
	}
}

// LocationCheck is the verdict of a stand-alone city verification.
type LocationCheck struct {
	CityCorrect  bool    `json:"city_correct"`
	Confidence   float64 `json:"confidence"`
	DetectedCity string  `json:"detected_city"`
}

// VerifyLocation checks a spoken city against the configured location.
func (s *Service) VerifyLocation(city string) LocationCheck {
	check := sections.CheckOrientation(sections.OrientationAnswer{City: city}, s.clock.Now(), s.expectedCity)
	return LocationCheck{
		CityCorrect:  check.CityCorrect,
		Confidence:   0.8,
		DetectedCity: strings.TrimSpace(city),
	}
}

func (s *Service) recordOutcome(ctx context.Context, req ScoreRequest, outcome sections.Outcome) (ScoreOutcome, error) {
	details, err := json.Marshal(outcome.Details)
	if err != nil {
		return ScoreOutcome{}, fmt.Errorf("encode %s details: %w", outcome.Section, err)
	}
	maxScore := outcome.MaxScore
	rec, err := s.RecordSectionResult(ctx, RecordInput{
		SessionID:            req.SessionID,
		UserID:               req.UserID,
		SectionName:          outcome.Section,
		RawScore:             outcome.Score,
		MaxScore:             &maxScore,
		Confidence:           outcome.Confidence,
		RequiresManualReview: outcome.RequiresManualReview,
		Details:              details,
		IdempotencyKey:       req.IdempotencyKey,
	})
	if err != nil {
		return ScoreOutcome{}, err
	}
	return ScoreOutcome{Outcome: outcome, Record: rec}, nil
}

// recordDrawing records the outcome and then archives the canvas. Archiving
// is best effort: the result is already committed when it runs.
func (s *Service) recordDrawing(ctx context.Context, req ScoreRequest, outcome sections.Outcome, drawing sections.Drawing) (ScoreOutcome, error) {
	out, err := s.recordOutcome(ctx, req, outcome)
	if err != nil || s.artifacts == nil || len(drawing.Data) == 0 {
		return out, err
	}
	key := blob.ArtifactKey(out.Record.Session.ID, outcome.Section, out.Record.Result.ID, drawing.Format)
	_, err = s.artifacts.Put(ctx, key, bytes.NewReader(drawing.Data), blob.PutOptions{
		ContentType: blob.ContentTypeFor(drawing.Format),
		Metadata: map[string]string{
			"session_id": out.Record.Session.ID,
			"section":    outcome.Section,
			"result_id":  out.Record.Result.ID,
		},
	})
	switch {
	case err == nil, errors.Is(err, blob.ErrExists):
		out.ArtifactKey = key
	default:
		s.logger.Warn("archive drawing failed",
			zap.String("key", key),
			zap.String("driver", string(s.artifacts.Driver())),
			zap.Error(err),
		)
	}
	return out, nil
}

// ListArtifacts lists the archived drawings of a session.
func (s *Service) ListArtifacts(ctx context.Context, sessionID string) ([]blob.Info, error) {
	if s.artifacts == nil {
		return nil, nil
	}
	if _, ok := s.store.GetSession(sessionID); !ok {
		return nil, domain.NotFoundError{Entity: EntitySession, ID: sessionID}
	}
	return s.artifacts.List(ctx, blob.SessionPrefix(sessionID))
}

// drawingSection reports whether a section carries an archived canvas.
func drawingSection(name string) bool {
	return name == scoring.SectionCubeCopy || name == scoring.SectionClockDrawing
}
