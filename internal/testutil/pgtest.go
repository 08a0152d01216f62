// Package testutil provides shared test infrastructure for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	_ "github.com/lib/pq"
)

// PGTest opens a test database connection and returns the *sql.DB plus a
// cleanup function that deletes rows from the listed tables and closes the
// connection. Callers run their own store Migrate before use:
//
//	db, cleanup := testutil.PGTest(t, "transactions", "alerts")
//	defer cleanup()
//
// If POSTGRES_URL is not set, the test is skipped.
func PGTest(t *testing.T, tables ...string) (*sql.DB, func()) {
	t.Helper()

	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: connect to database: %v", err)
	}

	ctx := context.Background()
	cleanup := func() {
		if len(tables) > 0 {
			// Table names come from test code, not user input.
			stmt := "TRUNCATE " + strings.Join(tables, ", ") + " CASCADE" // #nosec G202
			_, _ = db.ExecContext(ctx, stmt)                             // #nosec G104 -- best-effort teardown
		}
		_ = db.Close()
	}

	return db, cleanup
}
