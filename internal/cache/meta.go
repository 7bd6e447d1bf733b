package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jotdeck/jotdeck/internal/schema"
)

const keyLastSync = "lastSync"

// SetLastSync records the time of the last full resync.
func (db *DB) SetLastSync(ctx context.Context, t time.Time) error {
	return setMeta(ctx, db.conn, keyLastSync, formatTime(t))
}

// LastSync returns the recorded resync time, or the zero time.
func (db *DB) LastSync(ctx context.Context) (time.Time, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = ?`, keyLastSync).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last sync: %w", err)
	}
	return parseTime(value), nil
}

func setMeta(ctx context.Context, ex execer, key, value string) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// ReplaceAll swaps every collection for the given sets and stamps lastSync,
// all in one transaction. Readers never observe a half-replaced cache.
func (db *DB) ReplaceAll(ctx context.Context, journal []schema.JournalEntry, tasks []schema.Task, notes []schema.Note, syncedAt time.Time) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if err := replaceJournal(ctx, tx, journal); err != nil {
			return err
		}
		if err := replaceTasks(ctx, tx, tasks); err != nil {
			return err
		}
		if err := replaceNotes(ctx, tx, notes); err != nil {
			return err
		}
		return setMeta(ctx, tx, keyLastSync, formatTime(syncedAt))
	})
}
