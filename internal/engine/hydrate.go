package engine

import (
	"context"
	"fmt"

	"github.com/jotdeck/jotdeck/internal/schema"
)

// Load hydrates the engine once per identity.
//
// For a signed-in user it lists and downloads every journal entry and note
// and the task list, seeding each persisted baseline with what was read so
// hydration never makes anything dirty. Entities edited before Load
// finishes keep their local value. The demo identity reads the local cache
// instead.
//
// The session is marked loaded even when hydration fails, so callers do not
// retry on every use; the error is returned and reported by Status. Later
// calls return the first result without doing any work.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.loaded {
		err := e.loadErr
		e.mu.Unlock()
		return err
	}
	if wait := e.loading; wait != nil {
		e.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.loadErr
	}
	done := make(chan struct{})
	e.loading = done
	gen := e.gen
	demo := e.identity.Demo()
	e.mu.Unlock()

	var err error
	if demo {
		err = e.loadLocal(ctx, gen)
	} else {
		err = e.hydrate(ctx, gen)
	}

	e.mu.Lock()
	if gen == e.gen {
		e.loaded = true
		e.loadErr = err
	}
	if e.loading == done {
		e.loading = nil
	}
	e.mu.Unlock()
	close(done)

	if err != nil {
		e.logger.Printf("Warning: failed to load data: %v", err)
		e.emit(Event{Type: EventHydrated, Error: err.Error()})
		return err
	}
	return nil
}

// Loaded reports whether Load has run for the current identity.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *Engine) hydrate(ctx context.Context, gen uint64) error {
	e.mu.Lock()
	skip := e.dirtySetLocked()
	e.mu.Unlock()

	st, err := e.pull(ctx, skip)
	if err != nil {
		return fmt.Errorf("failed to hydrate: %w", err)
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return nil
	}
	e.applyLocked(st, true)
	e.lastSync = e.now()
	journal, tasks, notes := len(e.journal), len(e.tasks), len(e.notes)
	dirty := e.dirtyCountLocked()
	e.mu.Unlock()

	if err := e.SyncLocalCache(ctx); err != nil {
		e.logger.Printf("Warning: %v", err)
	}
	e.logger.Printf("Hydrated %d journal entries, %d tasks, %d notes", journal, tasks, notes)
	e.emit(Event{Type: EventHydrated, Dirty: dirty})
	return nil
}

// loadLocal fills memory from the local cache. Used by the demo identity,
// whose data exists nowhere else.
func (e *Engine) loadLocal(ctx context.Context, gen uint64) error {
	e.mu.Lock()
	c := e.cache
	e.mu.Unlock()
	if c == nil {
		e.emit(Event{Type: EventHydrated})
		return nil
	}

	journal, err := c.AllJournal(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cached journal: %w", err)
	}
	tasks, err := c.AllTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cached tasks: %w", err)
	}
	notes, err := c.AllNotes(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cached notes: %w", err)
	}
	lastSync, err := c.LastSync(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last sync time: %w", err)
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return nil
	}
	for _, entry := range journal {
		e.journal[entry.Date] = entry
		e.journalOrig[entry.Date] = entry.Content
	}
	if len(tasks) > 0 {
		e.tasks = tasks
		e.tasksOrig = schema.SerializeTasks(tasks)
	}
	for _, n := range notes {
		e.notes[n.ID] = n
		e.notesOrig[n.ID] = n
	}
	e.lastSync = lastSync
	dirty := e.dirtyCountLocked()
	e.mu.Unlock()

	if e.cfg.Index != nil {
		if err := e.cfg.Index.Rebuild(ctx, c); err != nil {
			e.logger.Printf("Warning: failed to rebuild search index: %v", err)
		}
	}
	e.logger.Printf("Loaded %d journal entries, %d tasks, %d notes from local cache", len(journal), len(tasks), len(notes))
	e.emit(Event{Type: EventHydrated, Dirty: dirty})
	return nil
}
