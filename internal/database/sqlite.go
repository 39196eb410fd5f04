package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gcalvault/internal/database/migrations"
	"gcalvault/internal/gcalvault"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Sync operation statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// SyncOperation is one recorded CLI run.
type SyncOperation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Operation  string
	Parameters string
	Status     string
	Fetched    int
	Skipped    int
	Removed    int
	Changes    int
	Pushed     bool
}

// SQLiteDatabase stores calendar version tags and the sync history in SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	path  string
	clock gcalvault.Clock
}

// NewSQLiteDatabase opens the database at path, applying pending migrations.
// path can be a file path or ":memory:" for an in-memory database.
// A nil clock uses the real time.
func NewSQLiteDatabase(path string, clock gcalvault.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}

	return NewSQLiteDatabaseFromDB(db, path, clock), nil
}

// NewSQLiteDatabaseFromDB wraps an existing, already migrated connection.
func NewSQLiteDatabaseFromDB(db *sql.DB, path string, clock gcalvault.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = gcalvault.RealClock{}
	}
	return &SQLiteDatabase{db: db, path: path, clock: clock}
}

// OpenConnection opens and configures a SQLite connection.
// The pool is limited to one connection so ":memory:" databases stay shared
// and writers never contend for the file lock.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Calendar tags

// GetTag returns the last version tag recorded for calendarID.
func (s *SQLiteDatabase) GetTag(calendarID string) (string, bool, error) {
	var tag string
	err := s.db.QueryRow("SELECT version_tag FROM calendar_tags WHERE calendar_id = ?", calendarID).Scan(&tag)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading calendar tag: %w", err)
	}
	return tag, true, nil
}

// PutTag upserts the version tag for calendarID in its own transaction.
func (s *SQLiteDatabase) PutTag(calendarID, tag string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO calendar_tags (calendar_id, version_tag, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (calendar_id) DO UPDATE SET
			version_tag = excluded.version_tag,
			updated_at = excluded.updated_at`,
		calendarID, tag, s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing calendar tag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing calendar tag: %w", err)
	}
	return nil
}

// Sync operation tracking

// CreateSyncOperation records the start of a run.
func (s *SQLiteDatabase) CreateSyncOperation(operation, parameters string) (*SyncOperation, error) {
	startedAt := s.clock.Now().UTC()
	res, err := s.db.Exec(
		"INSERT INTO sync_operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)",
		startedAt, operation, parameters, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("creating sync operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading sync operation id: %w", err)
	}
	return &SyncOperation{
		ID:         id,
		StartedAt:  startedAt,
		Operation:  operation,
		Parameters: parameters,
		Status:     StatusRunning,
	}, nil
}

// FinishSyncOperation records the outcome of a run. report may be nil.
func (s *SQLiteDatabase) FinishSyncOperation(id int64, status string, report *gcalvault.SyncReport) error {
	if report == nil {
		report = &gcalvault.SyncReport{}
	}
	_, err := s.db.Exec(`
		UPDATE sync_operations
		SET finished_at = ?, status = ?, fetched = ?, skipped = ?, removed = ?, changes = ?, pushed = ?
		WHERE id = ?`,
		s.clock.Now().UTC(), status, report.Fetched, report.Skipped, report.Removed, report.Changes, report.Pushed, id)
	if err != nil {
		return fmt.Errorf("finishing sync operation: %w", err)
	}
	return nil
}

// ListSyncOperations returns up to limit runs, most recent first.
func (s *SQLiteDatabase) ListSyncOperations(limit int) ([]*SyncOperation, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, operation, parameters, status, fetched, skipped, removed, changes, pushed
		FROM sync_operations
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync operations: %w", err)
	}
	defer rows.Close()

	var ops []*SyncOperation
	for rows.Next() {
		op := &SyncOperation{}
		if err := rows.Scan(&op.ID, &op.StartedAt, &op.FinishedAt, &op.Operation, &op.Parameters,
			&op.Status, &op.Fetched, &op.Skipped, &op.Removed, &op.Changes, &op.Pushed); err != nil {
			return nil, fmt.Errorf("scanning sync operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sync operations: %w", err)
	}
	return ops, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
