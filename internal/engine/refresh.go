package engine

import (
	"context"
	"fmt"

	"github.com/jotdeck/jotdeck/internal/remote"
	"github.com/jotdeck/jotdeck/internal/schema"
	"github.com/jotdeck/jotdeck/internal/search"
)

// RefreshJournal re-reads the entry for date unless it has unsaved edits.
func (e *Engine) RefreshJournal(ctx context.Context, date string) (schema.JournalEntry, error) {
	if !schema.ValidDate(date) {
		return schema.JournalEntry{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	key := JournalKey(date)

	e.mu.Lock()
	if e.dirtyDates[date] || e.identity.Demo() {
		entry := e.journal[date]
		e.mu.Unlock()
		return entry, nil
	}
	gen := e.gen
	e.mu.Unlock()

	topo, err := e.remoteTopology(ctx)
	if err != nil {
		return e.journalOrEmpty(date), err
	}
	target := fileTarget{name: schema.JournalFilename(date), parentID: topo.Journal, mimeType: remote.MimeMarkdown}
	content, found, err := e.fetch(ctx, key, target)
	if err != nil {
		return e.journalOrEmpty(date), err
	}

	e.mu.Lock()
	if gen != e.gen || e.dirtyDates[date] || !found {
		entry := e.journal[date]
		e.mu.Unlock()
		return entry, nil
	}
	entry := e.journal[date]
	changed := entry.Content != content
	if changed {
		entry = schema.JournalEntry{Date: date, Content: content, LastModified: e.now()}
		e.journal[date] = entry
	}
	e.journalOrig[date] = content
	e.mu.Unlock()

	if changed {
		if e.cfg.Index != nil {
			e.cfg.Index.Update(search.JournalDocument(entry))
		}
		e.persistLocal(func(ctx context.Context, c LocalCache) error { return c.PutJournal(ctx, entry) })
	}
	return entry, nil
}

// RefreshTasks re-reads the task list unless it has unsaved edits. An
// unreadable remote document leaves the local list in place.
func (e *Engine) RefreshTasks(ctx context.Context) ([]schema.Task, error) {
	e.mu.Lock()
	if e.tasksDirty || e.identity.Demo() {
		tasks := schema.CloneTasks(e.tasks)
		e.mu.Unlock()
		return tasks, nil
	}
	gen := e.gen
	e.mu.Unlock()

	topo, err := e.remoteTopology(ctx)
	if err != nil {
		return e.Tasks(), err
	}
	target := fileTarget{name: schema.TasksFilename, parentID: topo.User, mimeType: remote.MimeJSON}
	raw, found, err := e.fetch(ctx, tasksKey, target)
	if err != nil || !found {
		return e.Tasks(), err
	}
	list, err := schema.ParseTaskList([]byte(raw))
	if err != nil {
		e.logger.Printf("Warning: ignoring unreadable %s: %v", schema.TasksFilename, err)
		return e.Tasks(), nil
	}

	e.mu.Lock()
	if gen != e.gen || e.tasksDirty {
		tasks := schema.CloneTasks(e.tasks)
		e.mu.Unlock()
		return tasks, nil
	}
	prev := e.tasks
	e.tasks = list.Tasks
	e.tasksOrig = schema.SerializeTasks(list.Tasks)
	tasks := schema.CloneTasks(list.Tasks)
	e.mu.Unlock()

	if e.cfg.Index != nil {
		kept := make(map[string]bool, len(tasks))
		for _, t := range tasks {
			kept[t.ID] = true
			e.cfg.Index.Update(search.TaskDocument(t))
		}
		for _, t := range prev {
			if !kept[t.ID] {
				e.cfg.Index.Remove(search.TypeTask, t.ID)
			}
		}
	}
	snapshot := schema.CloneTasks(tasks)
	e.persistLocal(func(ctx context.Context, c LocalCache) error { return c.ReplaceTasks(ctx, snapshot) })
	return tasks, nil
}

// RefreshNote re-reads a note unless it has unsaved edits. A clean note
// whose file is gone remotely is dropped and ErrNoSuchNote returned.
func (e *Engine) RefreshNote(ctx context.Context, id string) (schema.Note, error) {
	key := NoteKey(id)

	e.mu.Lock()
	if e.dirtyNotes[id] || e.identity.Demo() {
		n, ok := e.notes[id]
		e.mu.Unlock()
		if !ok {
			return schema.Note{}, fmt.Errorf("%w: %s", ErrNoSuchNote, id)
		}
		return n, nil
	}
	gen := e.gen
	e.mu.Unlock()

	topo, err := e.remoteTopology(ctx)
	if err != nil {
		n, _ := e.Note(id)
		return n, err
	}
	target := fileTarget{name: schema.NoteFilename(id), parentID: topo.Notes, mimeType: remote.MimeMarkdown}
	raw, found, err := e.fetch(ctx, key, target)
	if err != nil {
		n, _ := e.Note(id)
		return n, err
	}

	e.mu.Lock()
	if gen != e.gen || e.dirtyNotes[id] {
		n, ok := e.notes[id]
		e.mu.Unlock()
		if !ok {
			return schema.Note{}, fmt.Errorf("%w: %s", ErrNoSuchNote, id)
		}
		return n, nil
	}
	if !found {
		_, had := e.notes[id]
		delete(e.notes, id)
		delete(e.notesOrig, id)
		e.mu.Unlock()
		if had {
			if e.cfg.Index != nil {
				e.cfg.Index.Remove(search.TypeNote, id)
			}
			e.persistLocal(func(ctx context.Context, c LocalCache) error { return c.DeleteNote(ctx, id) })
		}
		return schema.Note{}, fmt.Errorf("%w: %s", ErrNoSuchNote, id)
	}
	n := schema.ParseNote(id, raw, e.now())
	e.notes[id] = n
	e.notesOrig[id] = n
	e.mu.Unlock()

	if e.cfg.Index != nil {
		e.cfg.Index.Update(search.NoteDocument(n))
	}
	e.persistLocal(func(ctx context.Context, c LocalCache) error { return c.PutNote(ctx, n) })
	return n, nil
}

// RefreshAll re-reads every clean entity. Dirty entities are neither
// downloaded nor replaced. Clean entities removed remotely are dropped, and
// the local cache and search index are rebuilt from the result.
func (e *Engine) RefreshAll(ctx context.Context) error {
	e.mu.Lock()
	if e.identity.Demo() {
		e.mu.Unlock()
		return nil
	}
	gen := e.gen
	skip := e.dirtySetLocked()
	e.mu.Unlock()

	st, err := e.pull(ctx, skip)
	if err != nil {
		return fmt.Errorf("failed to refresh: %w", err)
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return nil
	}
	applied := e.applyLocked(st, true)
	e.lastSync = e.now()
	e.mu.Unlock()

	e.logger.Printf("Refreshed %d entities (%d skipped with unsaved edits)", applied, len(skip))
	return e.SyncLocalCache(ctx)
}

// Topology resolves, creating if needed, the remote folders of the active
// identity.
func (e *Engine) Topology(ctx context.Context) (Topology, error) {
	if e.Identity().Demo() {
		return Topology{}, ErrDemo
	}
	return e.remoteTopology(ctx)
}

// remoteTopology fails fast without a credential, then resolves folders.
func (e *Engine) remoteTopology(ctx context.Context) (Topology, error) {
	if err := e.authorized(); err != nil {
		return Topology{}, err
	}
	return e.folders.resolve(ctx)
}

func (e *Engine) journalOrEmpty(date string) schema.JournalEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.journal[date]
}
