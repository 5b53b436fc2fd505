package core

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"mocacore/internal/blob"
	"mocacore/pkg/domain"
)

// CreateSession starts a new assessment for an existing user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	var session Session
	err := s.run(ctx, "create_session", func(ctx context.Context) error {
		return s.transact(ctx, func(tx Transaction) error {
			user, ok := tx.FindUser(userID)
			if !ok {
				return domain.NotFoundError{Entity: EntityUser, ID: userID}
			}
			created, err := tx.CreateSession(Session{UserID: user.ID, EducationLevel: user.EducationLevel})
			session = created
			return err
		})
	})
	return session, err
}

// GetSession returns a session by id.
func (s *Service) GetSession(ctx context.Context, id string) (Session, error) {
	var session Session
	err := s.run(ctx, "get_session", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			sess, ok := v.FindSession(id)
			if !ok {
				return domain.NotFoundError{Entity: EntitySession, ID: id}
			}
			session = sess
			return nil
		})
	})
	return session, err
}

// ListUserSessions returns a user's sessions, newest first.
func (s *Service) ListUserSessions(ctx context.Context, userID string) ([]Session, error) {
	var out []Session
	err := s.run(ctx, "list_user_sessions", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			if _, ok := v.FindUser(userID); !ok {
				return domain.NotFoundError{Entity: EntityUser, ID: userID}
			}
			out = newestFirst(v.ListUserSessions(userID))
			return nil
		})
	})
	return out, err
}

// CompleteSession stamps the end time. Completing twice keeps the first stamp.
func (s *Service) CompleteSession(ctx context.Context, id string) (Session, error) {
	var session Session
	err := s.run(ctx, "complete_session", func(ctx context.Context) error {
		return s.transact(ctx, func(tx Transaction) error {
			current, ok := tx.FindSession(id)
			if !ok {
				return domain.NotFoundError{Entity: EntitySession, ID: id}
			}
			if current.EndTime != nil {
				session = current
				return nil
			}
			now := s.clock.Now()
			updated, err := tx.UpdateSession(id, func(sess *Session) error {
				sess.EndTime = &now
				return nil
			})
			session = updated
			return err
		})
	})
	return session, err
}

// DeleteSession removes a session, its results and archived artifacts.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	err := s.run(ctx, "delete_session", func(ctx context.Context) error {
		return s.transact(ctx, func(tx Transaction) error {
			if _, ok := tx.FindSession(id); !ok {
				return domain.NotFoundError{Entity: EntitySession, ID: id}
			}
			return deleteSessionTx(tx, id)
		})
	})
	if err != nil {
		return err
	}
	s.purgeArtifacts(ctx, id)
	return nil
}

func deleteSessionTx(tx Transaction, sessionID string) error {
	for _, res := range tx.Snapshot().ListSessionResults(sessionID) {
		if err := tx.DeleteResult(res.ID); err != nil {
			return err
		}
	}
	return tx.DeleteSession(sessionID)
}

// purgeArtifacts removes archived drawings after their session is gone.
// Failures leave orphans behind and are only logged.
func (s *Service) purgeArtifacts(ctx context.Context, sessionID string) {
	if s.artifacts == nil {
		return
	}
	infos, err := s.artifacts.List(ctx, blob.SessionPrefix(sessionID))
	if err != nil {
		s.logger.Warn("list artifacts failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	for _, info := range infos {
		if _, err := s.artifacts.Delete(ctx, info.Key); err != nil {
			s.logger.Warn("delete artifact failed", zap.String("key", info.Key), zap.Error(err))
		}
	}
}

func newestFirst(list []Session) []Session {
	out := append([]Session(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
