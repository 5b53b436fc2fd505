package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the service matches exactly one of
// these through errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrSessionNotFound     = fmt.Errorf("session %w", ErrNotFound)
	ErrUnknownSection      = errors.New("unknown section")
	ErrOwnershipMismatch   = errors.New("session does not belong to user")
	ErrInvalidScore        = errors.New("invalid score")
	ErrInvalidInput        = errors.New("invalid input")
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different payload")
	ErrDuplicateEmail      = errors.New("user with this email already exists")
	ErrTransient           = errors.New("transient storage failure")
)

// NotFoundError reports a missing record.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is matches ErrNotFound and the entity-specific kind.
func (e NotFoundError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return true
	case ErrUserNotFound:
		return e.Entity == EntityUser
	case ErrSessionNotFound:
		return e.Entity == EntitySession
	}
	return false
}

// IsNotFound reports whether err is a NotFoundError for the given entity.
func IsNotFound(err error, entity EntityType) bool {
	var nf NotFoundError
	return errors.As(err, &nf) && nf.Entity == entity
}

// UnknownSectionError is returned for section names outside the registry.
type UnknownSectionError struct {
	Section string
}

func (e UnknownSectionError) Error() string {
	return fmt.Sprintf("unknown section %q", e.Section)
}

// Is matches ErrUnknownSection.
func (e UnknownSectionError) Is(target error) bool { return target == ErrUnknownSection }

// OwnershipError is returned when a submission names a session owned by another user.
type OwnershipError struct {
	SessionID string
	UserID    string
}

func (e OwnershipError) Error() string {
	return fmt.Sprintf("session %q does not belong to user %q", e.SessionID, e.UserID)
}

// Is matches ErrOwnershipMismatch.
func (e OwnershipError) Is(target error) bool { return target == ErrOwnershipMismatch }

// TransientError wraps storage failures that are safe to retry.
type TransientError struct {
	Op  string
	Err error
}

func (e TransientError) Error() string {
	if e.Err == nil {
		return e.Op + ": transient storage failure"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause.
func (e TransientError) Unwrap() error { return e.Err }

// Is matches ErrTransient.
func (e TransientError) Is(target error) bool { return target == ErrTransient }
