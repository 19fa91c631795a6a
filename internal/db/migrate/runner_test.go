package migrate

import (
	"errors"
	"testing"

	"opsgate/internal/db"
)

func TestRun_EmptyDSN(t *testing.T) {
	for _, dsn := range []string{"", "   "} {
		err := Run(dsn, "up")
		if !errors.Is(err, db.ErrEmptyDSN) {
			t.Errorf("Run(%q): want ErrEmptyDSN, got %v", dsn, err)
		}
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "sideways", "UP", "Down"} {
		t.Run(direction, func(t *testing.T) {
			if err := Run("postgres://localhost/test", direction); err == nil {
				t.Errorf("Run with direction %q should return error", direction)
			}
		})
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	for _, name := range []string{
		"migrations/000001_init.up.sql", "migrations/000001_init.down.sql",
		"migrations/000002_refresh_tokens_consumed.up.sql", "migrations/000002_refresh_tokens_consumed.down.sql",
	} {
		b, err := db.MigrationFS.ReadFile(name)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", name, err)
		}
		if len(b) == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestPgxURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@h:5432/db", "pgx5://u:p@h:5432/db"},
		{"postgresql://u@h/db?sslmode=disable", "pgx5://u@h/db?sslmode=disable"},
		{"pgx5://h/db", "pgx5://h/db"},
	}
	for _, tt := range tests {
		if got := pgxURL(tt.in); got != tt.want {
			t.Errorf("pgxURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVersion_EmptyDSN(t *testing.T) {
	if _, _, err := Version(""); !errors.Is(err, db.ErrEmptyDSN) {
		t.Errorf("Version: want ErrEmptyDSN, got %v", err)
	}
}
