package core

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mocacore/internal/infra/persistence/postgres"
	"mocacore/internal/infra/persistence/postgres/testutil"
)

func TestOpenPersistentStoreDrivers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, _ := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)

	cases := map[StorageDriver]StorageConfig{
		StorageMemory:   {Driver: StorageMemory},
		StorageSQLite:   {Driver: StorageSQLite, SQLitePath: filepath.Join(dir, "mocacore.db")},
		StoragePostgres: {Driver: StoragePostgres, PostgresDSN: "postgres://stub"},
		StorageBadger:   {Driver: StorageBadger, BadgerInMemory: true},
	}
	for driver, cfg := range cases {
		t.Run(string(driver), func(t *testing.T) {
			store, err := OpenPersistentStore(ctx, cfg, nil, newTestClock(), nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })

			svc := NewService(store, WithClock(newTestClock()))
			reg := register(t, svc, "store-"+string(driver)+"@example.com", 16)
			out := record(t, svc, reg, "naming", 2)
			assert.Equal(t, 2.0, out.TotalScore)
		})
	}
}

func TestOpenPersistentStoreErrors(t *testing.T) {
	_, err := OpenPersistentStore(context.Background(), StorageConfig{Driver: "cassandra"}, nil, nil, nil)
	assert.ErrorContains(t, err, "unknown storage driver")

	store, err := OpenPersistentStore(context.Background(), StorageConfig{Driver: StorageBadger}, nil, nil, nil)
	assert.Error(t, err, "badger needs a path unless in memory")
	assert.Nil(t, store)
}
