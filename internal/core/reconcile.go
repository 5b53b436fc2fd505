package core

import (
	"context"

	"go.uber.org/zap"

	"mocacore/internal/scoring"
	"mocacore/pkg/domain"
)

// ReconcileReport describes one session checked against its result log.
type ReconcileReport struct {
	SessionID string   `json:"session_id"`
	Drift     []string `json:"drift,omitempty"`
	Rewritten bool     `json:"rewritten"`
}

// ReconcileSummary aggregates a pass over all sessions.
type ReconcileSummary struct {
	Checked   int               `json:"checked"`
	Rewritten int               `json:"rewritten"`
	Failed    int               `json:"failed"`
	Reports   []ReconcileReport `json:"reports,omitempty"`
}

// ReconcileSession replays a session's results and rewrites the stored
// aggregate when it differs. The stored review flag is kept since
// administrators may have cleared it.
func (s *Service) ReconcileSession(ctx context.Context, sessionID string) (ReconcileReport, error) {
	report := ReconcileReport{SessionID: sessionID}
	err := s.run(ctx, "reconcile_session", func(ctx context.Context) error {
		return s.transact(ctx, func(tx Transaction) error {
			session, ok := tx.FindSession(sessionID)
			if !ok {
				return domain.NotFoundError{Entity: EntitySession, ID: sessionID}
			}
			snap, err := s.aggregator.Replay(tx.Snapshot().ListSessionResults(sessionID))
			if err != nil {
				return err
			}
			report.Drift = scoring.Drift(session.SessionScores, snap.SessionScores)
			if len(report.Drift) == 0 {
				return nil
			}
			_, err = tx.UpdateSession(sessionID, func(sess *Session) error {
				review := sess.RequiresManualReview
				sess.SessionScores = snap.SessionScores
				sess.RequiresManualReview = review
				return nil
			})
			report.Rewritten = err == nil
			return err
		})
	})
	if err != nil {
		return ReconcileReport{}, err
	}
	if report.Rewritten {
		s.logger.Warn("session aggregate rewritten",
			zap.String("session_id", sessionID),
			zap.Strings("drift", report.Drift),
		)
	}
	return report, nil
}

// ReconcileAll reconciles every session. A failing session is counted and
// logged; the pass continues unless ctx is done.
func (s *Service) ReconcileAll(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary
	for _, session := range s.store.ListSessions() {
		if err := ctx.Err(); err != nil {
			return summary, domain.TransientError{Op: "reconcile all", Err: err}
		}
		summary.Checked++
		report, err := s.ReconcileSession(ctx, session.ID)
		if err != nil {
			if domain.IsNotFound(err, EntitySession) {
				summary.Checked--
				continue
			}
			summary.Failed++
			s.logger.Error("reconcile session failed", zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		if report.Rewritten {
			summary.Rewritten++
			summary.Reports = append(summary.Reports, report)
		}
	}
	s.logger.Info("reconcile pass finished",
		zap.Int("checked", summary.Checked),
		zap.Int("rewritten", summary.Rewritten),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}
