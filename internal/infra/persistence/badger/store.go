// Package badger provides an embedded key-value persistent store. Documents are
// stored under "<collection>/<id>" keys and written through on every commit.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"mocacore/internal/infra/persistence/memory"
	"mocacore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultGCDiscardRatio is the value-log rewrite threshold used by RunGC.
const DefaultGCDiscardRatio = 0.5

// Config selects the database location.
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *zap.Logger
}

// zapLogger adapts zap to badger's logger interface.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Errorf(format string, args ...any)   { l.s.Errorf(format, args...) }
func (l zapLogger) Warningf(format string, args ...any) { l.s.Warnf(format, args...) }
func (l zapLogger) Infof(format string, args ...any)    { l.s.Debugf(format, args...) }
func (l zapLogger) Debugf(format string, args ...any)   { l.s.Debugf(format, args...) }

// Store keeps state in memory and mirrors committed changes to badger.
type Store struct {
	*memory.Store
	db       *badgerdb.DB
	inMemory bool
}

// Open opens the database described by cfg and hydrates state from it.
func Open(cfg Config, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for persistent database")
	}
	var bopts badgerdb.Options
	if cfg.InMemory {
		bopts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		bopts = badgerdb.DefaultOptions(cfg.Path)
	}
	bopts = bopts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		bopts = bopts.WithLogger(zapLogger{s: cfg.Logger.Named("badger").Sugar()})
	} else {
		bopts = bopts.WithLogger(nil)
	}
	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	s := &Store{db: db, inMemory: cfg.InMemory}
	snapshot, err := s.load()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.Store = memory.NewStore(engine, append(opts, memory.WithCommitHook(s.persist))...)
	s.ImportState(snapshot)
	return s, nil
}

func key(collection, id string) []byte {
	return []byte(collection + "/" + id)
}

func (s *Store) load() (memory.Snapshot, error) {
	builder := memory.NewSnapshotBuilder()
	err := s.db.View(func(txn *badgerdb.Txn) error {
		for _, collection := range memory.Collections {
			prefix := []byte(collection + "/")
			it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				err := item.Value(func(val []byte) error {
					return builder.Add(collection, val)
				})
				if err != nil {
					it.Close()
					return fmt.Errorf("row %s: %w", strings.TrimPrefix(string(item.Key()), string(prefix)), err)
				}
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, err
	}
	return builder.Snapshot(), nil
}

func (s *Store) persist(_ context.Context, changes []domain.Change) error {
	writes, err := memory.RowWrites(changes)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		for _, w := range writes {
			k := key(w.Collection, w.ID)
			if w.Deleted() {
				if err := txn.Delete(k); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(k, w.Payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.TransientError{Op: "badger write", Err: err}
	}
	return nil
}

// RunGC compacts the value log once. It is a no-op for in-memory databases
// and when nothing was worth rewriting.
func (s *Store) RunGC() error {
	if s.inMemory {
		return nil
	}
	err := s.db.RunValueLogGC(DefaultGCDiscardRatio)
	if err == nil || errors.Is(err, badgerdb.ErrNoRewrite) {
		return nil
	}
	return err
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }
