package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"mocacore/pkg/domain"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.UnknownSectionError{Section: "x"}, http.StatusBadRequest},
		{fmt.Errorf("raw: %w", domain.ErrInvalidScore), http.StatusBadRequest},
		{domain.OwnershipError{SessionID: "s", UserID: "u"}, http.StatusForbidden},
		{domain.NotFoundError{Entity: domain.EntitySession, ID: "s"}, http.StatusNotFound},
		{domain.ErrIdempotencyConflict, http.StatusConflict},
		{domain.ErrDuplicateEmail, http.StatusConflict},
		{domain.RuleViolationError{}, http.StatusConflict},
		{domain.TransientError{Op: "x"}, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
