// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics and writes every committed change through to one JSONB
// table per collection.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"mocacore/internal/infra/persistence/memory"
	"mocacore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/mocacore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// ErrStaleWrite reports a session row that another writer advanced since this
// store loaded it. It arrives wrapped in a domain.TransientError.
var ErrStaleWrite = errors.New("stale session write")

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It ensures the collection tables exist and hydrates the in-memory store from them.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, domain.TransientError{Op: "ping postgres", Err: err}
	}
	if err := ensureTables(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	s.Store = memory.NewStore(engine, append(opts, memory.WithCommitHook(s.persist))...)
	s.ImportState(snapshot)
	return s, nil
}

// RunInTransaction commits through the in-memory engine. When a session row
// turns out to be stale the store reloads from Postgres, so a retry computes
// against the newer row.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil && errors.Is(err, ErrStaleWrite) {
		if snapshot, loadErr := loadSnapshot(ctx, s.db); loadErr == nil {
			s.ImportState(snapshot)
		}
	}
	return res, err
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func ensureTables(ctx context.Context, db *sql.DB) error {
	for _, table := range memory.Collections {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`, table)
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure %s table: %w", table, err)
		}
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	builder := memory.NewSnapshotBuilder()
	for _, table := range memory.Collections {
		if err := loadTable(ctx, db, table, builder); err != nil {
			return memory.Snapshot{}, err
		}
	}
	return builder.Snapshot(), nil
}

func loadTable(ctx context.Context, db *sql.DB, table string, builder *memory.SnapshotBuilder) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT id, payload FROM %s`, table))
	if err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		if len(payload) == 0 {
			continue
		}
		if err := builder.Add(table, payload); err != nil {
			return fmt.Errorf("row %s: %w", id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", table, err)
	}
	return nil
}

func (s *Store) persist(ctx context.Context, changes []domain.Change) error {
	writes, err := memory.RowWrites(changes)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.TransientError{Op: "postgres begin", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, w := range writes {
		if err := write(ctx, tx, w); err != nil {
			return domain.TransientError{Op: "postgres write " + w.Collection, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.TransientError{Op: "postgres commit", Err: err}
	}
	committed = true
	return nil
}

// write applies one row. Versioned session updates only replace a row that
// still holds the version they were computed from.
func write(ctx context.Context, tx *sql.Tx, w memory.RowWrite) error {
	switch {
	case w.Deleted():
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, w.Collection), w.ID)
		return err
	case w.ExpectVersion > 0:
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %[1]s(id,payload) VALUES($1,$2) ON CONFLICT(id) DO UPDATE SET payload=EXCLUDED.payload WHERE (%[1]s.payload->>'version')::bigint = $3`, w.Collection), w.ID, w.Payload, w.ExpectVersion)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s %s is past version %d", ErrStaleWrite, w.Collection, w.ID, w.ExpectVersion)
		}
		return nil
	default:
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s(id,payload) VALUES($1,$2) ON CONFLICT(id) DO UPDATE SET payload=EXCLUDED.payload`, w.Collection), w.ID, w.Payload)
		return err
	}
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
