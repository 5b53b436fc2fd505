package core

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"mocacore/internal/scoring"
	"mocacore/pkg/domain"
)

// RecordInput is one section result submitted for a session.
type RecordInput struct {
	SessionID            string
	UserID               string
	SectionName          string
	RawScore             float64
	MaxScore             *float64
	Confidence           float64
	RequiresManualReview bool
	Details              json.RawMessage
	// IdempotencyKey is optional. Without one, only a repeat of the section's
	// latest result is treated as a retry.
	IdempotencyKey string
}

// RecordOutcome is the aggregate view returned after recording.
type RecordOutcome struct {
	Result         SectionResult  `json:"result"`
	Session        Session        `json:"session"`
	TotalScore     float64        `json:"total_score"`
	Interpretation Interpretation `json:"interpretation,omitempty"`
	// Duplicate is set when the key matched an earlier submission and nothing was written.
	Duplicate bool `json:"duplicate"`
}

// RecordSectionResult stores an immutable section result and folds it into
// the session aggregate within one transaction.
func (s *Service) RecordSectionResult(ctx context.Context, in RecordInput) (RecordOutcome, error) {
	var out RecordOutcome
	err := s.run(ctx, "record_section_result", func(ctx context.Context) error {
		section, err := validateRecordInput(&in)
		if err != nil {
			return err
		}
		return s.transact(ctx, func(tx Transaction) error {
			res, err := s.recordInTx(tx, section, in)
			out = res
			return err
		})
	})
	if err != nil {
		return RecordOutcome{}, err
	}
	if !out.Duplicate {
		s.logger.Info("section result recorded",
			zap.String("session_id", out.Session.ID),
			zap.String("section", out.Result.SectionName),
			zap.Float64("total_score", out.TotalScore),
			zap.Int64("version", out.Session.Version),
		)
	}
	return out, nil
}

func validateRecordInput(in *RecordInput) (scoring.Section, error) {
	section, err := scoring.Lookup(in.SectionName)
	if err != nil {
		return scoring.Section{}, err
	}
	if in.SessionID == "" {
		return scoring.Section{}, fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}
	if in.UserID == "" {
		return scoring.Section{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if math.IsNaN(in.RawScore) || math.IsInf(in.RawScore, 0) {
		return scoring.Section{}, fmt.Errorf("%w: raw score must be finite", domain.ErrInvalidScore)
	}
	if in.MaxScore != nil && (*in.MaxScore < 0 || math.IsNaN(*in.MaxScore)) {
		return scoring.Section{}, fmt.Errorf("%w: max score must not be negative", domain.ErrInvalidScore)
	}
	if in.RawScore < 0 {
		in.RawScore = 0
	}
	switch {
	case math.IsNaN(in.Confidence) || in.Confidence < 0:
		in.Confidence = 0
	case in.Confidence > 1:
		in.Confidence = 1
	}
	details, err := compactDetails(in.Details)
	if err != nil {
		return scoring.Section{}, err
	}
	in.Details = details
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	return section, nil
}

func (s *Service) recordInTx(tx Transaction, section scoring.Section, in RecordInput) (RecordOutcome, error) {
	session, ok := tx.FindSession(in.SessionID)
	if !ok {
		return RecordOutcome{}, domain.NotFoundError{Entity: EntitySession, ID: in.SessionID}
	}
	if session.UserID != in.UserID {
		return RecordOutcome{}, domain.OwnershipError{SessionID: session.ID, UserID: in.UserID}
	}

	if in.IdempotencyKey == "" {
		latest, ok := latestResult(tx.Snapshot().ListSessionResults(session.ID), section.Name)
		if ok && strings.HasPrefix(latest.IdempotencyKey, derivedKeyPrefix) && samePayload(latest, in) {
			return outcomeFor(latest, session, true), nil
		}
		in.IdempotencyKey = DeriveIdempotencyKey(session.ID, section.Name, in.RawScore, in.Details) +
			"-" + strconv.FormatInt(session.Version+1, 10)
	} else if prior, ok := tx.FindResultByKey(session.ID, in.IdempotencyKey); ok {
		if !samePayload(prior, in) {
			return RecordOutcome{}, fmt.Errorf("%w: key %q", domain.ErrIdempotencyConflict, in.IdempotencyKey)
		}
		return outcomeFor(prior, session, true), nil
	}

	result, err := tx.CreateResult(SectionResult{
		SessionID:            session.ID,
		UserID:               session.UserID,
		SectionName:          section.Name,
		RawScore:             in.RawScore,
		MaxScore:             in.MaxScore,
		Confidence:           in.Confidence,
		RequiresManualReview: in.RequiresManualReview,
		Details:              in.Details,
		IdempotencyKey:       in.IdempotencyKey,
		Sequence:             session.Version + 1,
	})
	if err != nil {
		return RecordOutcome{}, err
	}

	snap, err := s.aggregator.Apply(session.SessionScores, scoring.Submission{
		Section:              section.Name,
		RawScore:             in.RawScore,
		RequiresManualReview: in.RequiresManualReview,
	})
	if err != nil {
		return RecordOutcome{}, err
	}
	updated, err := tx.UpdateSession(session.ID, func(sess *Session) error {
		sess.SessionScores = snap.SessionScores
		if sess.EducationLevel == "" {
			if user, ok := tx.FindUser(sess.UserID); ok {
				sess.EducationLevel = user.EducationLevel
			}
		}
		return nil
	})
	if err != nil {
		return RecordOutcome{}, err
	}
	return outcomeFor(result, updated, false), nil
}

func outcomeFor(result SectionResult, session Session, duplicate bool) RecordOutcome {
	return RecordOutcome{
		Result:         result,
		Session:        session,
		TotalScore:     session.TotalScore,
		Interpretation: session.Interpretation,
		Duplicate:      duplicate,
	}
}

// latestResult returns the section's result with the highest sequence.
func latestResult(results []SectionResult, section string) (SectionResult, bool) {
	var latest SectionResult
	found := false
	for _, r := range results {
		if r.SectionName != section {
			continue
		}
		if !found || r.Sequence > latest.Sequence {
			latest, found = r, true
		}
	}
	return latest, found
}

func samePayload(prior SectionResult, in RecordInput) bool {
	return prior.SectionName == in.SectionName &&
		prior.RawScore == in.RawScore &&
		bytes.Equal(prior.Details, in.Details)
}

func compactDetails(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("%w: details: %v", domain.ErrInvalidInput, err)
	}
	if buf.String() == "null" {
		return nil, nil
	}
	return buf.Bytes(), nil
}

const derivedKeyPrefix = "derived-"

// DeriveIdempotencyKey hashes the identifying fields of a submission. details
// is expected in compact form. Stored keys append the result sequence so a
// later resubmission of an earlier payload is written again.
func DeriveIdempotencyKey(sessionID, section string, rawScore float64, details json.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(sessionID))
	h.Write([]byte{'|'})
	h.Write([]byte(section))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatFloat(rawScore, 'g', -1, 64)))
	h.Write([]byte{'|'})
	h.Write(details)
	return derivedKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
