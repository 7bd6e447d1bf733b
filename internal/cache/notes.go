package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jotdeck/jotdeck/internal/schema"
)

const upsertNote = `
	INSERT INTO notes (id, title, folder, content, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		folder = excluded.folder,
		content = excluded.content,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
`

// PutNote inserts or replaces one note.
func (db *DB) PutNote(ctx context.Context, n schema.Note) error {
	return putNote(ctx, db.conn, n)
}

func putNote(ctx context.Context, ex execer, n schema.Note) error {
	if n.ID == "" {
		return fmt.Errorf("invalid note: id is required")
	}
	_, err := ex.ExecContext(ctx, upsertNote,
		n.ID, n.Title, n.Folder, n.Content, formatTime(n.CreatedAt), formatTime(n.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to put note %s: %w", n.ID, err)
	}
	return nil
}

// DeleteNote removes one note. Returns nil if it doesn't exist.
func (db *DB) DeleteNote(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete note %s: %w", id, err)
	}
	return nil
}

// AllNotes returns every cached note, most recently updated first.
func (db *DB) AllNotes(ctx context.Context) ([]schema.Note, error) {
	return db.queryNotes(ctx, `SELECT id, title, folder, content, created_at, updated_at FROM notes ORDER BY updated_at DESC, id`)
}

// NotesInFolder returns the notes of one folder.
func (db *DB) NotesInFolder(ctx context.Context, folder string) ([]schema.Note, error) {
	return db.queryNotes(ctx,
		`SELECT id, title, folder, content, created_at, updated_at FROM notes WHERE folder = ? ORDER BY updated_at DESC, id`,
		folder)
}

func (db *DB) queryNotes(ctx context.Context, query string, args ...any) ([]schema.Note, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	notes := []schema.Note{}
	for rows.Next() {
		var (
			n                  schema.Note
			created, updated string
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Folder, &n.Content, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n.CreatedAt = parseTime(created)
		n.UpdatedAt = parseTime(updated)
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

// ReplaceNotes clears the collection and inserts notes.
func (db *DB) ReplaceNotes(ctx context.Context, notes []schema.Note) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		return replaceNotes(ctx, tx, notes)
	})
}

func replaceNotes(ctx context.Context, tx *sql.Tx, notes []schema.Note) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes`); err != nil {
		return fmt.Errorf("failed to clear notes: %w", err)
	}
	for _, n := range notes {
		if err := putNote(ctx, tx, n); err != nil {
			return err
		}
	}
	return nil
}
