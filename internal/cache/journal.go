package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jotdeck/jotdeck/internal/schema"
)

const upsertJournal = `
	INSERT INTO journal (date, content, last_modified)
	VALUES (?, ?, ?)
	ON CONFLICT(date) DO UPDATE SET
		content = excluded.content,
		last_modified = excluded.last_modified
`

// PutJournal inserts or replaces one journal entry.
func (db *DB) PutJournal(ctx context.Context, e schema.JournalEntry) error {
	return putJournal(ctx, db.conn, e)
}

func putJournal(ctx context.Context, ex execer, e schema.JournalEntry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid journal entry: %w", err)
	}
	if _, err := ex.ExecContext(ctx, upsertJournal, e.Date, e.Content, timeToNullString(e.LastModified)); err != nil {
		return fmt.Errorf("failed to put journal %s: %w", e.Date, err)
	}
	return nil
}

// DeleteJournal removes one entry. Returns nil if it doesn't exist.
func (db *DB) DeleteJournal(ctx context.Context, date string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM journal WHERE date = ?`, date); err != nil {
		return fmt.Errorf("failed to delete journal %s: %w", date, err)
	}
	return nil
}

// GetJournal returns one entry. ok is false when the date is not cached.
func (db *DB) GetJournal(ctx context.Context, date string) (schema.JournalEntry, bool, error) {
	var (
		e   schema.JournalEntry
		mod sql.NullString
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT date, content, last_modified FROM journal WHERE date = ?`, date,
	).Scan(&e.Date, &e.Content, &mod)
	if err == sql.ErrNoRows {
		return schema.JournalEntry{}, false, nil
	}
	if err != nil {
		return schema.JournalEntry{}, false, fmt.Errorf("failed to get journal %s: %w", date, err)
	}
	e.LastModified = nullStringToTime(mod)
	return e, true, nil
}

// AllJournal returns every cached entry ordered by date.
func (db *DB) AllJournal(ctx context.Context) ([]schema.JournalEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT date, content, last_modified FROM journal ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := []schema.JournalEntry{}
	for rows.Next() {
		var (
			e   schema.JournalEntry
			mod sql.NullString
		)
		if err := rows.Scan(&e.Date, &e.Content, &mod); err != nil {
			return nil, fmt.Errorf("failed to scan journal: %w", err)
		}
		e.LastModified = nullStringToTime(mod)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal: %w", err)
	}
	return entries, nil
}

// ReplaceJournal clears the collection and inserts entries.
func (db *DB) ReplaceJournal(ctx context.Context, entries []schema.JournalEntry) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		return replaceJournal(ctx, tx, entries)
	})
}

func replaceJournal(ctx context.Context, tx *sql.Tx, entries []schema.JournalEntry) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM journal`); err != nil {
		return fmt.Errorf("failed to clear journal: %w", err)
	}
	for _, e := range entries {
		if err := putJournal(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}
