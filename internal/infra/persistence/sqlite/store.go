// Package sqlite provides a SQLite-backed persistent store. Transactions run
// against the in-memory engine; committed changes are written through to one
// table per collection before the new state becomes visible.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"mocacore/internal/infra/persistence/memory"
	"mocacore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "mocacore.db"

// Store persists committed changes to SQLite as JSON documents.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the database at path and hydrates state from it.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; sqlite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := ensureTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db, path: path}
	s.Store = memory.NewStore(engine, append(opts, memory.WithCommitHook(s.persist))...)
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func ensureTables(db *sql.DB) error {
	for _, table := range memory.Collections {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`, table)
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("create %s table: %w", table, err)
		}
	}
	return nil
}

func (s *Store) load() error {
	builder := memory.NewSnapshotBuilder()
	for _, table := range memory.Collections {
		if err := s.loadTable(table, builder); err != nil {
			return err
		}
	}
	s.ImportState(builder.Snapshot())
	return nil
}

func (s *Store) loadTable(table string, builder *memory.SnapshotBuilder) error {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT id, payload FROM %s ORDER BY id`, table))
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
		if err := builder.Add(table, payload); err != nil {
			return fmt.Errorf("row %s: %w", id, err)
		}
	}
	return rows.Err()
}

// persist writes the transaction's changes in one SQL transaction. Failures are
// transient: the in-memory state is left untouched and callers may retry.
func (s *Store) persist(ctx context.Context, changes []domain.Change) (retErr error) {
	writes, err := memory.RowWrites(changes)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.TransientError{Op: "sqlite begin", Err: err}
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, w := range writes {
		if w.Deleted() {
			_, err = tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=?`, w.Collection), w.ID)
		} else {
			_, err = tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s(id,payload) VALUES(?,?) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`, w.Collection), w.ID, w.Payload)
		}
		if err != nil {
			return domain.TransientError{Op: "sqlite write " + w.Collection, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.TransientError{Op: "sqlite commit", Err: err}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
