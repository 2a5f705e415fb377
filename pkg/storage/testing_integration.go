//go:build integration

package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SetupPostgresContainer starts a disposable PostgreSQL container and returns an open
// handle plus a cleanup func that closes the handle and terminates the container.
// The test is skipped when no container runtime is reachable.
func SetupPostgresContainer(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("masthead_test"),
		postgres.WithUsername("masthead"),
		postgres.WithPassword("masthead_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("failed to start postgres container: %v", err)
	}

	terminate := func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate()
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		terminate()
		t.Fatalf("failed to open database: %v", err)
	}

	return db, func() {
		db.Close()
		terminate()
	}
}
