package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jotdeck/jotdeck/internal/remote"
	"github.com/jotdeck/jotdeck/internal/schema"
)

// remoteState is what one pull read from the store.
type remoteState struct {
	// Every name present remotely, downloaded or not.
	journalNames map[string]bool
	noteNames    map[string]bool

	// Downloaded values. Keys that were dirty when the pull started are
	// never downloaded.
	journal      map[string]schema.JournalEntry
	notes        map[string]schema.Note
	tasks        []schema.Task
	tasksFetched bool

	fileIDs map[string]string
}

// pull reads every entity that is not dirty from the store. skip holds the
// keys dirty at the start; they are listed but not downloaded.
func (e *Engine) pull(ctx context.Context, skip map[string]bool) (*remoteState, error) {
	topo, err := e.remoteTopology(ctx)
	if err != nil {
		return nil, err
	}

	st := &remoteState{
		journalNames: make(map[string]bool),
		noteNames:    make(map[string]bool),
		journal:      make(map[string]schema.JournalEntry),
		notes:        make(map[string]schema.Note),
		fileIDs:      make(map[string]string),
	}

	journalRefs, err := e.cfg.Store.ListFiles(ctx, topo.Journal)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal files: %w", err)
	}
	noteRefs, err := e.cfg.Store.ListFiles(ctx, topo.Notes)
	if err != nil {
		return nil, fmt.Errorf("failed to list note files: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.DownloadConcurrency)

	for _, ref := range journalRefs {
		date, ok := schema.DateFromFilename(ref.Name)
		if !ok || ref.IsFolder() || st.journalNames[date] {
			continue
		}
		st.journalNames[date] = true
		key := JournalKey(date)
		st.fileIDs[key] = ref.ID
		if skip[key] {
			continue
		}
		g.Go(func() error {
			content, err := e.cfg.Store.DownloadFile(gctx, ref.ID)
			if err != nil {
				return fmt.Errorf("failed to download %s: %w", ref.Name, err)
			}
			modified := ref.Modified
			if modified.IsZero() {
				modified = e.now()
			}
			mu.Lock()
			st.journal[date] = schema.JournalEntry{Date: date, Content: content, LastModified: modified}
			mu.Unlock()
			return nil
		})
	}

	for _, ref := range noteRefs {
		id, ok := schema.IDFromNoteFilename(ref.Name)
		if !ok || ref.IsFolder() || st.noteNames[id] {
			continue
		}
		st.noteNames[id] = true
		key := NoteKey(id)
		st.fileIDs[key] = ref.ID
		if skip[key] {
			continue
		}
		g.Go(func() error {
			raw, err := e.cfg.Store.DownloadFile(gctx, ref.ID)
			if err != nil {
				return fmt.Errorf("failed to download %s: %w", ref.Name, err)
			}
			note := schema.ParseNote(id, raw, e.now())
			mu.Lock()
			st.notes[id] = note
			mu.Unlock()
			return nil
		})
	}

	if !skip[tasksKey] {
		g.Go(func() error {
			raw, ref, found, err := e.fetchByName(gctx, schema.TasksFilename, topo.User)
			if err != nil || !found {
				return err
			}
			list, perr := schema.ParseTaskList([]byte(raw))
			mu.Lock()
			defer mu.Unlock()
			st.fileIDs[tasksKey] = ref.ID
			if perr != nil {
				e.logger.Printf("Warning: ignoring unreadable %s: %v", schema.TasksFilename, perr)
				return nil
			}
			st.tasks = list.Tasks
			st.tasksFetched = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return st, nil
}

// applyLocked merges a pull into memory. Entities that are dirty now are
// left alone. With prune, clean entities that were once persisted and are
// gone remotely are dropped. Returns the number of entities replaced.
func (e *Engine) applyLocked(st *remoteState, prune bool) int {
	applied := 0

	for date, entry := range st.journal {
		if e.dirtyDates[date] {
			continue
		}
		e.journal[date] = entry
		e.journalOrig[date] = entry.Content
		applied++
	}
	for id, note := range st.notes {
		if e.dirtyNotes[id] {
			continue
		}
		e.notes[id] = note
		e.notesOrig[id] = note
		applied++
	}
	if st.tasksFetched && !e.tasksDirty {
		e.tasks = st.tasks
		e.tasksOrig = schema.SerializeTasks(st.tasks)
		applied++
	}

	if prune {
		for date := range e.journalOrig {
			if !st.journalNames[date] && !e.dirtyDates[date] {
				delete(e.journal, date)
				delete(e.journalOrig, date)
				e.saver.forget(JournalKey(date))
			}
		}
		for id := range e.notesOrig {
			if !st.noteNames[id] && !e.dirtyNotes[id] {
				delete(e.notes, id)
				delete(e.notesOrig, id)
				e.saver.forget(NoteKey(id))
			}
		}
	}

	for key, id := range st.fileIDs {
		e.saver.remember(key, id)
	}
	return applied
}

// fetchByName downloads the file called name in parentID. found is false
// when no such file exists.
func (e *Engine) fetchByName(ctx context.Context, name, parentID string) (content string, ref remote.Ref, found bool, err error) {
	ref, err = e.cfg.Store.FindFile(ctx, name, parentID)
	if errors.Is(err, remote.ErrNotFound) {
		return "", remote.Ref{}, false, nil
	}
	if err != nil {
		return "", remote.Ref{}, false, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	content, err = e.cfg.Store.DownloadFile(ctx, ref.ID)
	if errors.Is(err, remote.ErrNotFound) {
		return "", remote.Ref{}, false, nil
	}
	if err != nil {
		return "", remote.Ref{}, false, fmt.Errorf("failed to download %s: %w", name, err)
	}
	return content, ref, true, nil
}

// fetch downloads the file for key, preferring the cached file ID. A stale
// ID is dropped and the lookup retried once by name.
func (e *Engine) fetch(ctx context.Context, key string, target fileTarget) (string, bool, error) {
	if id := e.saver.fileID(key); id != "" {
		content, err := e.cfg.Store.DownloadFile(ctx, id)
		if err == nil {
			return content, true, nil
		}
		if !errors.Is(err, remote.ErrNotFound) {
			return "", false, fmt.Errorf("failed to download %s: %w", target.name, err)
		}
		e.saver.forget(key)
	}

	content, ref, found, err := e.fetchByName(ctx, target.name, target.parentID)
	if err != nil || !found {
		return "", false, err
	}
	e.saver.remember(key, ref.ID)
	return content, true, nil
}

// dirtySetLocked returns the dirty keys as a set.
func (e *Engine) dirtySetLocked() map[string]bool {
	set := make(map[string]bool)
	for _, key := range e.dirtyKeysLocked() {
		set[key] = true
	}
	return set
}
