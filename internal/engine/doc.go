// Package engine keeps the in-memory model, the remote file store, the local
// cache and the search index consistent.
//
// Overview
//
// Edits land in memory at once and are written to the remote store after a
// per-entity quiet period. The local cache and the search index follow every
// edit; the remote store is the data of record.
//
//	Edit ─→ memory ─┬─→ local cache ─→ search index (debounced rebuild)
//	                ├─→ search index (incremental)
//	                └─→ debounce timer (per key) ─→ saver ─→ remote store
//
// Entity keys
//
// Each journal date ("journal/2024-01-15"), each note ("notes/<id>") and the
// whole task list ("tasks") is one key. Keys have independent timers and at
// most one remote operation in flight each.
//
// Dirty tracking
//
// For every key the engine keeps the value it last wrote or read. A key is
// dirty while the current value differs from it. Edits that restore it are
// no-ops, and only a successful write of that exact value clears the marker.
// Refreshes skip dirty keys entirely: local edits win until written.
//
// Usage
//
//	eng, err := engine.New(engine.Config{
//	    Store:    store,
//	    Auth:     token,
//	    Identity: engine.Identity{User: "alice"},
//	    Cache:    db,
//	    Index:    index,
//	})
//	if err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
//	if err := eng.Load(ctx); err != nil {
//	    log.Printf("Warning: %v", err) // loaded anyway, see Status
//	}
//	_ = eng.AppendJournal("2024-01-15", "Walked the dog")
//
//	// Before exit: write everything now instead of waiting for timers.
//	if err := eng.ForceFlushAll(ctx); err != nil {
//	    var fe *engine.FlushError
//	    if errors.As(err, &fe) {
//	        log.Printf("still dirty: %v", fe.Keys())
//	    }
//	}
//
// The demo identity (empty user) never talks to the remote store. Its data
// lives in the local cache only and is never dirty.
package engine
