//go:build integration

package sql_test

import (
	"context"
	"testing"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/storage"
	sqlstore "github.com/bcnelson/agent-access-manager/internal/storage/sql"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a throwaway PostgreSQL container and returns its DSN.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("aam_test"),
		postgres.WithUsername("aam"),
		postgres.WithPassword("aam"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminating postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	return dsn
}

func TestPostgresStore(t *testing.T) {
	dsn := startPostgres(t)

	// One container for the whole suite; tables are emptied between cases.
	s, err := sqlstore.New("postgres", dsn, quietLogger())
	if err != nil {
		t.Fatalf("opening postgres store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	runStoreSuite(t, func(t *testing.T) storage.Storage {
		if err := s.Truncate(context.Background()); err != nil {
			t.Fatalf("truncating tables: %v", err)
		}
		return s
	})
}
