//go:build integration

// Package dbtest starts a migrated Postgres container for repository integration tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"opsgate/internal/db"
	"opsgate/internal/db/migrate"
)

// NewPostgres starts postgres:16-alpine, applies the embedded migrations and returns an open handle.
// The container and handle are released with t.Cleanup.
func NewPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("opsgate"),
		tcpostgres.WithUsername("opsgate"),
		tcpostgres.WithPassword("opsgate"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if v, dirty, err := migrate.Version(dsn); err != nil || dirty || v == 0 {
		t.Fatalf("schema version = %d dirty=%v err=%v", v, dirty, err)
	}
	conn, err := db.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
