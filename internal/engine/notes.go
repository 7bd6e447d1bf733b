package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jotdeck/jotdeck/internal/remote"
	"github.com/jotdeck/jotdeck/internal/schema"
	"github.com/jotdeck/jotdeck/internal/search"
)

// Notes returns every note, most recently updated first.
func (e *Engine) Notes() []schema.Note {
	e.mu.Lock()
	notes := make([]schema.Note, 0, len(e.notes))
	for _, n := range e.notes {
		notes = append(notes, n)
	}
	e.mu.Unlock()

	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].UpdatedAt.Equal(notes[j].UpdatedAt) {
			return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
		}
		return notes[i].ID < notes[j].ID
	})
	return notes
}

// Note returns the note with the given ID.
func (e *Engine) Note(id string) (schema.Note, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.notes[id]
	return n, ok
}

// CreateNote adds a note. An empty folder means the root folder.
func (e *Engine) CreateNote(title, folder, content string) (schema.Note, error) {
	n := schema.Note{Title: title, Folder: folder, Content: content}
	n.SetDefaults(e.now())

	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return schema.Note{}, err
	}
	e.mu.Unlock()

	e.commitNote(n)
	return n, nil
}

// UpdateNote applies fn to the note with the given ID and stamps UpdatedAt
// when the title, folder or body changed.
func (e *Engine) UpdateNote(id string, fn func(n *schema.Note)) (schema.Note, error) {
	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return schema.Note{}, err
	}
	prev, ok := e.notes[id]
	e.mu.Unlock()
	if !ok {
		return schema.Note{}, fmt.Errorf("%w: %s", ErrNoSuchNote, id)
	}

	n := prev
	fn(&n)
	n.ID = prev.ID
	n.CreatedAt = prev.CreatedAt
	if n.Folder == "" {
		n.Folder = schema.DefaultFolder
	}
	if n.SameContent(prev) {
		return prev, nil
	}
	n.UpdatedAt = e.now()

	return e.commitNote(n), nil
}

// PutNote stores n as given, creating it or replacing the note with the
// same ID. Timestamps are kept unless missing. Used by imports.
func (e *Engine) PutNote(n schema.Note) (schema.Note, error) {
	if strings.ContainsAny(n.ID, `/\`) || strings.HasPrefix(n.ID, ".") {
		return schema.Note{}, fmt.Errorf("invalid note id %q", n.ID)
	}
	n.SetDefaults(e.now())

	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return schema.Note{}, err
	}
	prev, ok := e.notes[n.ID]
	e.mu.Unlock()
	if ok && prev.SameContent(n) {
		return prev, nil
	}
	return e.commitNote(n), nil
}

// commitNote stores n in memory and decides whether it needs a write.
// Returns the note as stored.
func (e *Engine) commitNote(n schema.Note) schema.Note {
	key := NoteKey(n.ID)

	e.mu.Lock()
	demo := e.identity.Demo()
	var schedule bool
	orig, hasOrig := e.notesOrig[n.ID]
	switch {
	case demo:
		e.notesOrig[n.ID] = n
	case hasOrig && orig.SameContent(n):
		// Edited back to what is stored remotely.
		n.UpdatedAt = orig.UpdatedAt
		delete(e.dirtyNotes, n.ID)
	default:
		e.dirtyNotes[n.ID] = true
		schedule = true
	}
	e.notes[n.ID] = n
	e.mu.Unlock()

	if e.cfg.Index != nil {
		e.cfg.Index.Update(search.NoteDocument(n))
	}
	e.persistLocal(func(ctx context.Context, c LocalCache) error { return c.PutNote(ctx, n) })

	if schedule {
		e.schedule(key)
	} else if !demo {
		e.timers.cancel(key)
	}
	return n
}

// DeleteNote removes a note locally and deletes its remote file. A save of
// the same note still in flight completes before the delete is sent.
func (e *Engine) DeleteNote(ctx context.Context, id string) error {
	key := NoteKey(id)

	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if _, ok := e.notes[id]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchNote, id)
	}
	delete(e.notes, id)
	delete(e.notesOrig, id)
	delete(e.dirtyNotes, id)
	delete(e.failed, key)
	demo := e.identity.Demo()
	e.mu.Unlock()

	e.timers.cancel(key)
	if e.cfg.Index != nil {
		e.cfg.Index.Remove(search.TypeNote, id)
	}
	e.persistLocal(func(ctx context.Context, c LocalCache) error { return c.DeleteNote(ctx, id) })

	if demo {
		return nil
	}

	err := e.authorized()
	var topo Topology
	if err == nil {
		topo, err = e.folders.resolve(ctx)
	}
	if err == nil {
		target := fileTarget{name: schema.NoteFilename(id), parentID: topo.Notes, mimeType: remote.MimeMarkdown}
		err = e.saver.remove(ctx, key, target)
	}
	if err != nil {
		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()
		return fmt.Errorf("failed to delete note %s: %w", id, err)
	}
	e.logger.Printf("Deleted note %s", id)
	return nil
}

// flushNote writes the note if it is dirty. A note deleted before the
// write starts is not written.
func (e *Engine) flushNote(ctx context.Context, id string) error {
	var note schema.Note
	n, wrote, err := e.persist(ctx, persistOp{
		key: NoteKey(id),
		snapshot: func() (string, bool, error) {
			current, ok := e.notes[id]
			if !ok || !e.dirtyNotes[id] {
				return "", false, nil
			}
			note = current
			return schema.FormatNote(current), true, nil
		},
		target: func(topo Topology) fileTarget {
			return fileTarget{name: schema.NoteFilename(id), parentID: topo.Notes, mimeType: remote.MimeMarkdown}
		},
		commit: func(string) {
			current, ok := e.notes[id]
			if !ok {
				return
			}
			e.notesOrig[id] = note
			if current.SameContent(note) {
				delete(e.dirtyNotes, id)
			}
		},
	})
	if err != nil {
		return err
	}
	if wrote {
		e.logger.Printf("Saved note %s (%d bytes)", id, n)
	}
	return nil
}
