package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mocacore/pkg/domain"
)

func TestCreateUserClassifiesEducationAndProvisionsSession(t *testing.T) {
	cases := map[int]domain.EducationLevel{
		0:  domain.EducationNotEducated,
		8:  domain.EducationBasicSchooling,
		12: domain.EducationBasicSchooling,
		13: domain.EducationCollegeLevel,
	}
	svc := newTestService(t)
	ctx := context.Background()
	for years, level := range cases {
		reg, err := svc.CreateUser(ctx, NewUser{Email: fmt.Sprintf("u%d@example.com", years), Name: " Ada ", EducationYears: years})
		require.NoError(t, err)
		assert.Equal(t, level, reg.User.EducationLevel)
		assert.Equal(t, "Ada", reg.User.Name)

		sess, err := svc.GetSession(ctx, reg.SessionID)
		require.NoError(t, err)
		assert.Equal(t, reg.User.ID, sess.UserID)
		assert.Equal(t, level, sess.EducationLevel)
		assert.Zero(t, sess.TotalScore)
		assert.Equal(t, int64(1), sess.Version)
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	register(t, svc, "taken@example.com", 10)

	_, err := svc.CreateUser(ctx, NewUser{Email: " TAKEN@example.com ", EducationYears: 10})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	_, err = svc.CreateUser(ctx, NewUser{Email: "not-an-email", EducationYears: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.CreateUser(ctx, NewUser{Email: "old@example.com", EducationYears: domain.MaxEducationYears + 1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.CreateUser(ctx, NewUser{Email: "neg@example.com", EducationYears: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Len(t, svc.Store().ListUsers(), 1)
}

func TestGetUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	reg := register(t, svc, "find@example.com", 14)

	got, err := svc.GetUser(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.User, got)

	got, err = svc.GetUserByEmail(ctx, "FIND@example.com")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, got.ID)

	_, err = svc.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = svc.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestDeleteUserCascades(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	reg := register(t, svc, "cascade@example.com", 10)
	keep := register(t, svc, "keep@example.com", 10)
	record(t, svc, reg, "naming", 2)
	second, err := svc.CreateSession(ctx, reg.User.ID)
	require.NoError(t, err)
	record(t, svc, Registration{User: reg.User, SessionID: second.ID}, "trail_making", 1)

	require.NoError(t, svc.DeleteUser(ctx, reg.User.ID))

	_, err = svc.GetUser(ctx, reg.User.ID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	sessions := svc.Store().ListSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, keep.SessionID, sessions[0].ID)
	assert.Empty(t, svc.Store().ListSessionResults(reg.SessionID))
	assert.Empty(t, svc.Store().ListSessionResults(second.ID))

	assert.ErrorIs(t, svc.DeleteUser(ctx, reg.User.ID), domain.ErrUserNotFound)
}
