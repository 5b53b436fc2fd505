package badger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mocacore/pkg/domain"
)

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{}, nil)
	assert.ErrorContains(t, err, "path is required")
}

func TestBadgerStorePersistAndReload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "kv")
	store, err := Open(Config{Path: dir, SyncWrites: true, Logger: zap.NewNop()}, domain.NewRulesEngine())
	require.NoError(t, err)
	ctx := context.Background()

	var userID, sessionID string
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		u, err := tx.CreateUser(domain.User{Email: "kv@example.com"})
		if err != nil {
			return err
		}
		userID = u.ID
		s, err := tx.CreateSession(domain.Session{UserID: u.ID})
		sessionID = s.ID
		return err
	})
	require.NoError(t, err)
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateResult(domain.SectionResult{SessionID: sessionID, UserID: userID, SectionName: "abstraction", RawScore: 2})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, store.RunGC())
	require.NoError(t, store.Close())

	reopened, err := Open(Config{Path: dir}, domain.NewRulesEngine())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	assert.Len(t, reopened.ListUsers(), 1)
	results := reopened.ListSessionResults(sessionID)
	require.Len(t, results, 1)
	assert.Equal(t, 2.0, results[0].RawScore)

	_, err = reopened.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.DeleteResult(results[0].ID); err != nil {
			return err
		}
		if err := tx.DeleteSession(sessionID); err != nil {
			return err
		}
		return tx.DeleteUser(userID)
	})
	require.NoError(t, err)
	assert.Empty(t, reopened.ListUsers())
}

func TestBadgerInMemory(t *testing.T) {
	store, err := Open(Config{InMemory: true}, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateUser(domain.User{Email: "mem@example.com"})
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, store.RunGC())
	assert.Len(t, store.ListUsers(), 1)
}
