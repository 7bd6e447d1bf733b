// Package cache is the on-device read cache for journal entries, tasks and
// notes, backed by embedded SQLite.
//
// The cache is derived data: the remote store is the record of truth. A
// full resync clears each collection and bulk-inserts the hydrated set in
// one transaction; single edits go through the Put and Delete methods.
//
// Layout:
//   - Database file: <data dir>/<user>/cache.db
//   - WAL mode, so searches and listings read while a resync writes
//   - Tables: journal, tasks, notes, sync_meta
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Filename is the database file name inside the per-user directory.
const Filename = "cache.db"

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
	path string
}

// PathFor returns the cache path for an identity under dataDir. The demo
// identity (empty user) gets its own "demo" directory.
func PathFor(dataDir, user string) string {
	if user == "" {
		user = "demo"
	}
	return filepath.Join(dataDir, user, Filename)
}

// Open opens (creating if needed) the cache database at path and ensures
// the schema exists.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := cache.Open(cache.PathFor(dataDir, "alice"))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + path +
		"?_pragma=journal_mode(wal)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(normal)" +
		"&_txlock=immediate"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}
	if err := db.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}
	db.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. Idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the tables with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS journal (
		date TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		last_modified TEXT
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		status TEXT NOT NULL,
		priority TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		due_date TEXT,
		created_at TEXT NOT NULL,
		data TEXT NOT NULL,  -- full task JSON
		position INTEGER NOT NULL DEFAULT 0  -- board order
	);

	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		folder TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, completed);
	CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date);
	CREATE INDEX IF NOT EXISTS idx_notes_folder ON notes(folder);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return db.addTaskPosition(ctx)
}

// addTaskPosition upgrades caches created before tasks had a board position.
func (db *DB) addTaskPosition(ctx context.Context) error {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('tasks') WHERE name = 'position'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to inspect tasks table: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.conn.ExecContext(ctx, `ALTER TABLE tasks ADD COLUMN position INTEGER NOT NULL DEFAULT 0`); err != nil {
		return fmt.Errorf("failed to add task position: %w", err)
	}
	return nil
}

// Counts reports the number of rows per collection.
type Counts struct {
	Journal int `json:"journal"`
	Tasks   int `json:"tasks"`
	Notes   int `json:"notes"`
}

// CountsContext returns the row count of every collection.
func (db *DB) CountsContext(ctx context.Context) (Counts, error) {
	var c Counts
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM journal),
			(SELECT COUNT(*) FROM tasks),
			(SELECT COUNT(*) FROM notes)
	`).Scan(&c.Journal, &c.Tasks, &c.Notes)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count cache rows: %w", err)
	}
	return c, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// inTx runs fn inside a transaction.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func timeToNullString(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func nullStringToTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	return parseTime(ns.String)
}

func stringToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
