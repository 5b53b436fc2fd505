package core

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"mocacore/pkg/domain"
)

// NewUser carries the registration fields of a test taker.
type NewUser struct {
	Email          string
	Name           string
	EducationYears int
}

// Registration is the outcome of CreateUser.
type Registration struct {
	User      User   `json:"user"`
	SessionID string `json:"session_id"`
}

// CreateUser registers a test taker and provisions their first session.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (Registration, error) {
	var reg Registration
	err := s.run(ctx, "create_user", func(ctx context.Context) error {
		email, err := normalizeEmail(in.Email)
		if err != nil {
			return err
		}
		if in.EducationYears < 0 || in.EducationYears > domain.MaxEducationYears {
			return fmt.Errorf("%w: education years must be between 0 and %d", domain.ErrInvalidInput, domain.MaxEducationYears)
		}
		return s.transact(ctx, func(tx Transaction) error {
			if _, exists := tx.Snapshot().FindUserByEmail(email); exists {
				return fmt.Errorf("%w: %s", domain.ErrDuplicateEmail, email)
			}
			level := domain.ClassifyEducationLevel(in.EducationYears)
			user, err := tx.CreateUser(User{
				Email:          email,
				Name:           strings.TrimSpace(in.Name),
				EducationYears: in.EducationYears,
				EducationLevel: level,
			})
			if err != nil {
				return err
			}
			session, err := tx.CreateSession(Session{UserID: user.ID, EducationLevel: level})
			if err != nil {
				return err
			}
			reg = Registration{User: user, SessionID: session.ID}
			return nil
		})
	})
	return reg, err
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	var user User
	err := s.run(ctx, "get_user", func(ctx context.Context) error {
		return s.view(ctx, func(v TransactionView) error {
			u, ok := v.FindUser(id)
			if !ok {
				return domain.NotFoundError{Entity: EntityUser, ID: id}
			}
			user = u
			return nil
		})
	})
	return user, err
}

// GetUserByEmail returns a user by email, compared case-insensitively.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.run(ctx, "get_user_by_email", func(ctx context.Context) error {
		normalized := strings.ToLower(strings.TrimSpace(email))
		return s.view(ctx, func(v TransactionView) error {
			u, ok := v.FindUserByEmail(normalized)
			if !ok {
				return domain.NotFoundError{Entity: EntityUser, ID: email}
			}
			user = u
			return nil
		})
	})
	return user, err
}

// DeleteUser removes a user together with their sessions, results and artifacts.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	var sessionIDs []string
	err := s.run(ctx, "delete_user", func(ctx context.Context) error {
		return s.transact(ctx, func(tx Transaction) error {
			if _, ok := tx.FindUser(id); !ok {
				return domain.NotFoundError{Entity: EntityUser, ID: id}
			}
			for _, sess := range tx.Snapshot().ListUserSessions(id) {
				if err := deleteSessionTx(tx, sess.ID); err != nil {
					return err
				}
				sessionIDs = append(sessionIDs, sess.ID)
			}
			return tx.DeleteUser(id)
		})
	})
	if err != nil {
		return err
	}
	for _, sid := range sessionIDs {
		s.purgeArtifacts(ctx, sid)
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email %q", domain.ErrInvalidInput, raw)
	}
	return email, nil
}
