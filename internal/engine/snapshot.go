package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jotdeck/jotdeck/internal/remote"
	"github.com/jotdeck/jotdeck/internal/schema"
	"github.com/jotdeck/jotdeck/internal/search"
)

// contents is a copy of the in-memory model.
type contents struct {
	journal  []schema.JournalEntry
	tasks    []schema.Task
	notes    []schema.Note
	lastSync time.Time
}

func (e *Engine) contentsLocked() contents {
	c := contents{
		journal:  make([]schema.JournalEntry, 0, len(e.journal)),
		tasks:    schema.CloneTasks(e.tasks),
		notes:    make([]schema.Note, 0, len(e.notes)),
		lastSync: e.lastSync,
	}
	for _, date := range sortedKeys(e.journal) {
		c.journal = append(c.journal, e.journal[date])
	}
	for _, id := range sortedKeys(e.notes) {
		c.notes = append(c.notes, e.notes[id])
	}
	return c
}

// AllJournal, AllTasks and AllNotes let the in-memory model stand in for
// the local cache as a search source.
func (c contents) AllJournal(context.Context) ([]schema.JournalEntry, error) { return c.journal, nil }
func (c contents) AllTasks(context.Context) ([]schema.Task, error)           { return c.tasks, nil }
func (c contents) AllNotes(context.Context) ([]schema.Note, error)           { return c.notes, nil }

// Contents returns a copy of everything in memory, unsaved edits included.
func (e *Engine) Contents() search.Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contentsLocked()
}

// Snapshot builds the metadata snapshot of the current model.
func (e *Engine) Snapshot() schema.Snapshot {
	e.mu.Lock()
	c := e.contentsLocked()
	e.mu.Unlock()
	return schema.BuildSnapshot(c.journal, c.tasks, c.notes, c.lastSync, e.cfg.PreviewLength, e.now())
}

// PushSnapshot writes metadata.json next to the task list. Other devices
// read it to learn what exists without downloading every body.
func (e *Engine) PushSnapshot(ctx context.Context) error {
	if e.Identity().Demo() {
		return nil
	}
	topo, err := e.remoteTopology(ctx)
	if err != nil {
		return fmt.Errorf("failed to push snapshot: %w", err)
	}

	release, err := e.saver.acquire(ctx, metadataKey)
	if err != nil {
		return fmt.Errorf("failed to push snapshot: %w", err)
	}
	defer release()
	// Built while holding the slot so a later push never loses to an
	// earlier one.
	data, err := schema.MarshalSnapshot(e.Snapshot())
	if err != nil {
		return err
	}
	target := fileTarget{name: schema.SnapshotFilename, parentID: topo.User, mimeType: remote.MimeJSON}
	if _, err := e.saver.write(ctx, metadataKey, target, string(data)); err != nil {
		return fmt.Errorf("failed to push snapshot: %w", err)
	}
	e.logger.Printf("Pushed snapshot (%d bytes)", len(data))
	return nil
}

// SyncLocalCache replaces the local cache with the in-memory model and
// rebuilds the search index from it. Without a cache the index is rebuilt
// from memory.
func (e *Engine) SyncLocalCache(ctx context.Context) error {
	e.mu.Lock()
	c := e.contentsLocked()
	cache := e.cache
	e.mu.Unlock()

	syncedAt := c.lastSync
	if syncedAt.IsZero() {
		syncedAt = e.now()
	}

	if cache != nil {
		if err := cache.ReplaceAll(ctx, c.journal, c.tasks, c.notes, syncedAt); err != nil {
			return fmt.Errorf("failed to replace local cache: %w", err)
		}
	}
	if e.cfg.Index == nil {
		return nil
	}
	var err error
	if cache != nil {
		err = e.cfg.Index.Rebuild(ctx, cache)
	} else {
		err = e.cfg.Index.Rebuild(ctx, c)
	}
	if err != nil {
		return fmt.Errorf("failed to rebuild search index: %w", err)
	}
	return nil
}

// SwitchIdentity makes id the active identity with cache as its local
// cache (nil for none).
//
// Dirty entities of the outgoing identity are flushed first; failures are
// logged and the switch goes ahead. In-flight saves are awaited, then every
// timer, the folder and file ID caches and all in-memory state are dropped,
// so nothing of the previous identity can be written under the new one.
// The caller runs Load afterwards.
func (e *Engine) SwitchIdentity(ctx context.Context, id Identity, cache LocalCache) error {
	if strings.ContainsAny(id.User, `/\`) {
		return fmt.Errorf("invalid user name %q", id.User)
	}
	if e.cfg.Store == nil && !id.Demo() {
		return fmt.Errorf("remote store is required for user %q", id.User)
	}

	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	prev := e.identity
	e.mu.Unlock()

	if err := e.ForceFlushAll(ctx); err != nil {
		e.logger.Printf("Warning: switching from %q with unsaved changes: %v", prev.User, err)
	}
	if err := e.saver.drain(ctx); err != nil {
		return fmt.Errorf("failed to wait for running saves: %w", err)
	}

	e.mu.Lock()
	e.identity = id
	e.gen++
	e.resetStateLocked()
	e.cache = cache
	ev := Event{Type: EventStatus, State: e.state}
	e.mu.Unlock()

	e.timers.cancelAll()
	e.saver.reset()
	e.folders.reset(id.User)

	if e.cfg.Index != nil {
		// Drop the previous identity's documents and supersede any rebuild
		// still scheduled against its cache.
		if err := e.cfg.Index.Rebuild(ctx, contents{}); err != nil {
			e.logger.Printf("Warning: failed to clear search index: %v", err)
		}
		if cache != nil {
			e.cfg.Index.ScheduleRebuild(cache)
		} else {
			e.cfg.Index.ScheduleRebuild(contents{})
		}
	}
	e.logger.Printf("Switched identity from %q to %q", prev.User, id.User)
	e.emit(ev)
	return nil
}

// Counts reports how many entities of each kind are in memory.
func (e *Engine) Counts() (journal, tasks, notes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.journal), len(e.tasks), len(e.notes)
}
