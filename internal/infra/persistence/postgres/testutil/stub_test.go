package testutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubUpsertDeleteSelect(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	require.NoError(t, db.PingContext(ctx))

	_, err := conn.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS users (id TEXT PRIMARY KEY, payload JSONB NOT NULL)", nil)
	require.NoError(t, err)

	upsert := "INSERT INTO users(id,payload) VALUES($1,$2) ON CONFLICT(id) DO UPDATE SET payload=EXCLUDED.payload"
	for _, payload := range []string{`{"v":1}`, `{"v":2}`} {
		_, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "u-1"}, {Value: []byte(payload)}})
		require.NoError(t, err)
	}
	docs := conn.Documents("users")
	require.Len(t, docs, 1)
	assert.JSONEq(t, `{"v":2}`, string(docs[0].Payload))

	_, err = conn.ExecContext(ctx, "DELETE FROM users WHERE id=$1", []driver.NamedValue{{Value: "u-1"}})
	require.NoError(t, err)
	assert.Empty(t, conn.Documents("users"))

	conn.Seed("sessions", "s-2", []byte(`{}`))
	conn.Seed("sessions", "s-1", []byte(`{}`))
	rows, err := conn.QueryContext(ctx, "SELECT id, payload FROM sessions", nil)
	require.NoError(t, err)
	dest := make([]driver.Value, 2)
	require.NoError(t, rows.Next(dest))
	assert.Equal(t, "s-1", dest[0])
	require.NoError(t, rows.Next(dest))
	assert.ErrorIs(t, rows.Next(dest), io.EOF)
	assert.Equal(t, []string{"id", "payload"}, rows.Columns())
}

func TestStubVersionGuardedUpsert(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.Seed("sessions", "s-1", []byte(`{"id":"s-1","version":4}`))
	guarded := "INSERT INTO sessions(id,payload) VALUES($1,$2) ON CONFLICT(id) DO UPDATE SET payload=EXCLUDED.payload WHERE (sessions.payload->>'version')::bigint = $3"

	res, err := conn.ExecContext(ctx, guarded, []driver.NamedValue{{Value: "s-1"}, {Value: []byte(`{"id":"s-1","version":3}`)}, {Value: int64(2)}})
	require.NoError(t, err)
	n, _ := res.RowsAffected()
	assert.Zero(t, n)
	assert.JSONEq(t, `{"id":"s-1","version":4}`, string(conn.Documents("sessions")[0].Payload))

	res, err = conn.ExecContext(ctx, guarded, []driver.NamedValue{{Value: "s-1"}, {Value: []byte(`{"id":"s-1","version":5}`)}, {Value: int64(4)}})
	require.NoError(t, err)
	n, _ = res.RowsAffected()
	assert.Equal(t, int64(1), n)
	assert.JSONEq(t, `{"id":"s-1","version":5}`, string(conn.Documents("sessions")[0].Payload))
}

func TestStubRejectsUnknownStatements(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	_, err := conn.ExecContext(ctx, "TRUNCATE TABLE users", nil)
	assert.ErrorContains(t, err, "unsupported statement")
	_, err = conn.QueryContext(ctx, "SELECT count(*) FROM users", nil)
	assert.ErrorContains(t, err, "unsupported query")
	_, err = conn.ExecContext(ctx, "INSERT INTO users(id,payload) VALUES($1,$2)", []driver.NamedValue{{Value: 7}, {Value: "x"}})
	assert.ErrorContains(t, err, "id is int")
}

func TestStubFailureToggles(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailBegin = true
	_, err := conn.BeginTx(ctx, driver.TxOptions{})
	assert.Error(t, err)

	conn.FailBegin = false
	conn.FailCommit = true
	tx, err := conn.BeginTx(ctx, driver.TxOptions{})
	require.NoError(t, err)
	assert.Error(t, tx.Commit())

	conn.FailTables = map[string]bool{"users": true}
	_, err = conn.QueryContext(ctx, "SELECT id, payload FROM users", nil)
	assert.Error(t, err)
	_, err = conn.ExecContext(ctx, "INSERT INTO users(id,payload) VALUES($1,$2)", []driver.NamedValue{{Value: "a"}, {Value: "b"}})
	assert.Error(t, err)

	conn.RowsErr = errors.New("cursor lost")
	rows, err := conn.QueryContext(ctx, "SELECT id, payload FROM sessions", nil)
	require.NoError(t, err)
	assert.ErrorContains(t, rows.Next(make([]driver.Value, 2)), "cursor lost")

	conn.FailExec = true
	assert.Error(t, conn.Ping(ctx))
}
