package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindsMatchThroughWrapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind error
	}{
		{"not found", NotFoundError{Entity: EntitySession, ID: "s1"}, ErrNotFound},
		{"session not found", NotFoundError{Entity: EntitySession, ID: "s1"}, ErrSessionNotFound},
		{"user not found", NotFoundError{Entity: EntityUser, ID: "u1"}, ErrUserNotFound},
		{"unknown section", UnknownSectionError{Section: "juggling"}, ErrUnknownSection},
		{"ownership", OwnershipError{SessionID: "s1", UserID: "u2"}, ErrOwnershipMismatch},
		{"transient", TransientError{Op: "persist", Err: context.DeadlineExceeded}, ErrTransient},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("record: %w", tc.err)
		if !errors.Is(wrapped, tc.kind) {
			t.Fatalf("%s: expected errors.Is to match kind", tc.name)
		}
		if tc.err.Error() == "" {
			t.Fatalf("%s: expected message", tc.name)
		}
	}
}

func TestNotFoundKindsAreEntitySpecific(t *testing.T) {
	err := NotFoundError{Entity: EntityUser, ID: "u1"}
	if errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("user not found must not match session kind")
	}
	if !errors.Is(ErrSessionNotFound, ErrNotFound) {
		t.Fatalf("entity kinds wrap ErrNotFound")
	}
}

func TestTransientErrorUnwrapsCause(t *testing.T) {
	err := TransientError{Op: "sqlite persist", Err: context.DeadlineExceeded}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause to be reachable")
	}
	if (TransientError{Op: "noop"}).Error() != "noop: transient storage failure" {
		t.Fatalf("unexpected message for nil cause")
	}
}

func TestIsNotFoundChecksEntity(t *testing.T) {
	err := fmt.Errorf("load: %w", NotFoundError{Entity: EntitySession, ID: "s1"})
	if !IsNotFound(err, EntitySession) {
		t.Fatalf("expected session not found")
	}
	if IsNotFound(err, EntityUser) {
		t.Fatalf("expected entity mismatch")
	}
	if got := (NotFoundError{Entity: EntityUser, ID: "u1"}).Error(); got != `user "u1" not found` {
		t.Fatalf("unexpected message %q", got)
	}
}
