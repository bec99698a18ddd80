// Package integration holds tests that exercise the coordinator against
// a real PostgreSQL instance. They skip unless FLOTILLA_TEST_DATABASE_URL
// is set.
package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	botapp "github.com/rezkam/flotilla/internal/application/bot"
	jobapp "github.com/rezkam/flotilla/internal/application/job"
	"github.com/rezkam/flotilla/internal/datalake"
	"github.com/rezkam/flotilla/internal/infrastructure/persistence/postgres"
	"github.com/rezkam/flotilla/internal/operation"
)

// SetupTestStore connects to the test database, applies migrations, and
// registers cleanup that truncates every table.
func SetupTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("FLOTILLA_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("set FLOTILLA_TEST_DATABASE_URL to run integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := postgres.NewStoreWithConfig(ctx, postgres.DBConfig{
		DSN:         dsn,
		MinConns:    1,
		MaxConns:    10,
		AutoMigrate: true,
	})
	require.NoError(t, err)

	truncate(t, store)
	t.Cleanup(func() {
		truncate(t, store)
		store.Close()
	})

	return store
}

func truncate(t *testing.T, store *postgres.Store) {
	t.Helper()

	_, err := store.Pool().Exec(context.Background(), "TRUNCATE TABLE results, bots, jobs CASCADE")
	require.NoError(t, err)
}

// testServices wires real services against the store with a temp-dir
// datalake sink.
type testServices struct {
	Store    *postgres.Store
	Jobs     *jobapp.Service
	Bots     *botapp.Service
	Registry *operation.Registry
	Sink     *datalake.FileSink
}

// SetupTestServices builds the full application stack on a clean
// database.
func SetupTestServices(t *testing.T) *testServices {
	t.Helper()

	store := SetupTestStore(t)
	registry := operation.NewRegistry()

	sink, err := datalake.NewFileSink(t.TempDir())
	require.NoError(t, err)

	jobs := jobapp.NewService(postgres.JobStore{Store: store}, registry, sink, jobapp.Config{})
	bots := botapp.NewService(postgres.BotStore{Store: store}, jobs, registry, botapp.Config{})

	return &testServices{
		Store:    store,
		Jobs:     jobs,
		Bots:     bots,
		Registry: registry,
		Sink:     sink,
	}
}
