package testutil

import (
	"testing"

	"gcalvault/internal/database"
	"gcalvault/internal/gcalvault"
)

// NewTestDatabase creates a migrated in-memory SQLite database.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()
	return NewTestDatabaseWithClock(t, nil)
}

// NewTestDatabaseWithClock is NewTestDatabase with a controlled clock.
func NewTestDatabaseWithClock(t *testing.T, clock gcalvault.Clock) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", clock)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
