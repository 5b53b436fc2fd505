package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	badgerstore "mocacore/internal/infra/persistence/badger"
	"mocacore/internal/infra/persistence/memory"
	"mocacore/internal/infra/persistence/postgres"
	"mocacore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageBadger   StorageDriver = "badger"   // embedded key-value store
)

// StorageConfig selects and parameterizes the storage backend.
type StorageConfig struct {
	Driver         StorageDriver
	SQLitePath     string
	PostgresDSN    string
	BadgerPath     string
	BadgerInMemory bool
}

// OpenPersistentStore opens the configured backend. An empty driver means sqlite.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *RulesEngine, clock Clock, logger *zap.Logger) (PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts []memory.Option
	if clock != nil {
		opts = append(opts, memory.WithClock(clock.Now))
	}
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	logger.Info("opening storage", zap.String("driver", string(driver)))
	var (
		store PersistentStore
		err   error
	)
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine, opts...), nil
	case StorageSQLite:
		var s *sqlite.Store
		if s, err = sqlite.NewStore(cfg.SQLitePath, engine, opts...); err == nil {
			store = s
		}
	case StoragePostgres:
		var s *postgres.Store
		if s, err = postgres.NewStore(ctx, cfg.PostgresDSN, engine, opts...); err == nil {
			store = s
		}
	case StorageBadger:
		var s *badgerstore.Store
		s, err = badgerstore.Open(badgerstore.Config{
			Path:     cfg.BadgerPath,
			InMemory: cfg.BadgerInMemory,
			Logger:   logger,
		}, engine, opts...)
		if err == nil {
			store = s
		}
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", driver, err)
	}
	return store, nil
}
