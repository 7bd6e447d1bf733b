package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// localTimeout bounds one local cache operation.
const localTimeout = 10 * time.Second

// ForceFlushAll writes every dirty entity now, one at a time.
//
// Pending debounce timers are cancelled first so they cannot fire a second
// write. A failure does not stop the remaining entities; all failures are
// returned together as a *FlushError and the failed entities stay dirty.
func (e *Engine) ForceFlushAll(ctx context.Context) error {
	e.timers.cancelAll()

	keys := e.DirtyKeys()
	if len(keys) == 0 {
		return nil
	}
	e.logger.Printf("Flushing %d dirty entities", len(keys))

	failures := make(map[string]error)
	for _, key := range keys {
		if err := e.flushKey(ctx, key); err != nil {
			failures[key] = err
		}
	}
	if len(failures) > 0 {
		return &FlushError{Failures: failures}
	}
	return nil
}

// Flush writes one entity now if it is dirty, cancelling its timer.
func (e *Engine) Flush(ctx context.Context, key string) error {
	e.timers.cancel(key)
	return e.flushKey(ctx, key)
}

// flushKey dispatches to the writer for the key's entity kind.
func (e *Engine) flushKey(ctx context.Context, key string) error {
	switch {
	case key == tasksKey:
		return e.flushTasks(ctx)
	case strings.HasPrefix(key, journalPrefix):
		return e.flushJournal(ctx, strings.TrimPrefix(key, journalPrefix))
	case strings.HasPrefix(key, notesPrefix):
		return e.flushNote(ctx, strings.TrimPrefix(key, notesPrefix))
	}
	return fmt.Errorf("unknown entity key %q", key)
}

// persistOp describes one write of an entity's remote file.
type persistOp struct {
	key string

	// snapshot runs under e.mu once the slot for key is held. It returns
	// the content to write, or false when the entity no longer needs one.
	snapshot func() (content string, ok bool, err error)

	target func(topo Topology) fileTarget

	// commit runs under e.mu, still holding the slot, after content was
	// written.
	commit func(content string)
}

// persist writes one entity. The entity is read only after the slot for
// its key is held, so of two overlapping flushes the later one always
// writes the latest value and the bookkeeping of each matches what it
// wrote. wrote is false when there was nothing to write.
func (e *Engine) persist(ctx context.Context, op persistOp) (bytes int, wrote bool, err error) {
	e.mu.Lock()
	if !e.isDirtyLocked(op.key) {
		e.mu.Unlock()
		return 0, false, nil
	}
	gen := e.gen
	ev := e.beginSaveLocked()
	e.mu.Unlock()
	e.emitIf(ev)

	release, err := e.saver.acquire(ctx, op.key)
	if err != nil {
		return 0, false, e.finishSave(op, gen, "", err)
	}
	defer release()

	e.mu.Lock()
	var (
		content string
		ok      bool
	)
	if gen == e.gen {
		content, ok, err = op.snapshot()
	}
	if err != nil {
		e.mu.Unlock()
		return 0, false, e.finishSave(op, gen, "", err)
	}
	if !ok {
		evs := e.abandonSaveLocked(gen)
		e.mu.Unlock()
		e.emitAll(evs)
		return 0, false, nil
	}
	e.mu.Unlock()

	err = e.authorized()
	var topo Topology
	if err == nil {
		topo, err = e.folders.resolve(ctx)
	}
	if err == nil {
		_, err = e.saver.write(ctx, op.key, op.target(topo), content)
	}
	return len(content), err == nil, e.finishSave(op, gen, content, err)
}

// finishSave records the outcome of a write started in generation gen.
func (e *Engine) finishSave(op persistOp, gen uint64, content string, err error) error {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return err
	}
	if err == nil {
		op.commit(content)
	}
	evs := e.endSaveLocked(op.key, len(content), err)
	e.mu.Unlock()
	e.emitAll(evs)
	return err
}

// abandonSaveLocked ends a save that found nothing left to write.
func (e *Engine) abandonSaveLocked(gen uint64) []Event {
	if gen != e.gen {
		return nil
	}
	e.active--
	if ev := e.setStateLocked(e.settledStateLocked()); ev != nil {
		return []Event{*ev}
	}
	return nil
}

// settledStateLocked is the state implied by failures and running saves.
func (e *Engine) settledStateLocked() State {
	switch {
	case len(e.failed) > 0:
		return StateError
	case e.active > 0:
		return StateSyncing
	}
	return StateSynced
}

// beginSaveLocked marks a save as running.
func (e *Engine) beginSaveLocked() *Event {
	e.active++
	return e.setStateLocked(StateSyncing)
}

// endSaveLocked records the outcome of a save and returns the events to
// emit after unlocking.
func (e *Engine) endSaveLocked(key string, bytes int, err error) []Event {
	e.active--
	var evs []Event
	if err != nil {
		e.failed[key] = true
		e.lastErr = err
		e.logger.Printf("Warning: failed to save %s: %v", key, err)
		evs = append(evs, Event{Type: EventSaveFailed, Key: key, Error: err.Error(), Dirty: e.dirtyCountLocked()})
	} else {
		delete(e.failed, key)
		evs = append(evs, Event{Type: EventSaved, Key: key, Bytes: bytes, Dirty: e.dirtyCountLocked()})
	}

	if ev := e.setStateLocked(e.settledStateLocked()); ev != nil {
		evs = append(evs, *ev)
	}
	return evs
}

func (e *Engine) emitAll(evs []Event) {
	for _, ev := range evs {
		e.emit(ev)
	}
}

// persistLocal applies fn to the local cache, if any, and schedules an
// index rebuild from it. The cache mirrors memory, unsaved edits included.
// Failures are logged, not returned: the next full resync repairs the cache.
func (e *Engine) persistLocal(fn func(ctx context.Context, c LocalCache) error) {
	e.mu.Lock()
	c := e.cache
	e.mu.Unlock()
	if c == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), localTimeout)
	defer cancel()
	if err := fn(ctx, c); err != nil {
		e.logger.Printf("Warning: failed to update local cache: %v", err)
		return
	}
	if e.cfg.Index != nil {
		e.cfg.Index.ScheduleRebuild(c)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
