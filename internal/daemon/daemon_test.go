package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jotdeck/jotdeck/internal/engine"
	"github.com/jotdeck/jotdeck/internal/remote"
	"github.com/jotdeck/jotdeck/internal/schema"
)

// fakeEngine counts calls and satisfies Engine without a store.
type fakeEngine struct {
	mu       sync.Mutex
	calls    map[string]int
	user     string
	flushErr error
	loadErr  error
}

func newFakeEngine(user string) *fakeEngine {
	return &fakeEngine{calls: make(map[string]int), user: user}
}

func (f *fakeEngine) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeEngine) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeEngine) Load(context.Context) error { f.record("Load"); return f.loadErr }
func (f *fakeEngine) RefreshAll(context.Context) error {
	f.record("RefreshAll")
	return nil
}
func (f *fakeEngine) RefreshJournal(_ context.Context, date string) (schema.JournalEntry, error) {
	f.record("RefreshJournal")
	return schema.JournalEntry{Date: date}, nil
}
func (f *fakeEngine) RefreshNote(_ context.Context, id string) (schema.Note, error) {
	f.record("RefreshNote")
	return schema.Note{}, engine.ErrNoSuchNote
}
func (f *fakeEngine) RefreshTasks(context.Context) ([]schema.Task, error) {
	f.record("RefreshTasks")
	return nil, nil
}
func (f *fakeEngine) PushSnapshot(context.Context) error   { f.record("PushSnapshot"); return nil }
func (f *fakeEngine) SyncLocalCache(context.Context) error { f.record("SyncLocalCache"); return nil }
func (f *fakeEngine) ForceFlushAll(context.Context) error {
	f.record("ForceFlushAll")
	return f.flushErr
}
func (f *fakeEngine) Topology(context.Context) (engine.Topology, error) {
	return engine.Topology{}, errors.New("no folders")
}
func (f *fakeEngine) Identity() engine.Identity { return engine.Identity{User: f.user} }

func quietConfig() *Config {
	return &Config{
		DebounceInterval: 20 * time.Millisecond,
		ShutdownTimeout:  5 * time.Second,
		Logger:           log.New(io.Discard, "", 0),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// runDaemon starts d in the background and returns a stop function that
// cancels it and returns Start's result.
func runDaemon(t *testing.T, d *Daemon) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	var once sync.Once
	var err error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case err = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("daemon did not stop")
			}
		})
		return err
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func TestNewWithConfig_Validation(t *testing.T) {
	if _, err := NewWithConfig(nil, nil); err == nil {
		t.Error("expected error for nil engine")
	}
	cfg := quietConfig()
	cfg.SnapshotInterval = -time.Second
	if _, err := NewWithConfig(newFakeEngine("alice"), cfg); err == nil {
		t.Error("expected error for negative interval")
	}

	d, err := NewWithConfig(newFakeEngine("alice"), &Config{})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	if d.config.DebounceInterval != DefaultConfig().DebounceInterval {
		t.Errorf("DebounceInterval = %v, want default", d.config.DebounceInterval)
	}
	if d.config.Logger == nil {
		t.Error("Logger not defaulted")
	}
}

func TestDaemon_PeriodicWorkAndShutdownFlush(t *testing.T) {
	eng := newFakeEngine("alice")
	cfg := quietConfig()
	cfg.SnapshotInterval = 15 * time.Millisecond
	cfg.CacheResyncInterval = 15 * time.Millisecond
	d, err := NewWithConfig(eng, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	stop := runDaemon(t, d)
	waitFor(t, "periodic snapshot and resync", func() bool {
		s := d.Stats()
		return s.Snapshots >= 2 && s.Resyncs >= 2
	})
	if err := stop(); err != nil {
		t.Fatalf("Start() returned %v", err)
	}

	if eng.count("Load") != 1 {
		t.Errorf("Load calls = %d, want 1", eng.count("Load"))
	}
	if eng.count("ForceFlushAll") != 1 {
		t.Errorf("ForceFlushAll calls = %d, want 1", eng.count("ForceFlushAll"))
	}
	if d.Stats().Watching {
		t.Error("watching without a directory store")
	}
}

func TestDaemon_DemoSkipsSnapshots(t *testing.T) {
	eng := newFakeEngine("")
	cfg := quietConfig()
	cfg.SnapshotInterval = 10 * time.Millisecond
	d, err := NewWithConfig(eng, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	stop := runDaemon(t, d)
	time.Sleep(60 * time.Millisecond)
	if err := stop(); err != nil {
		t.Fatalf("Start() returned %v", err)
	}
	if got := eng.count("PushSnapshot"); got != 0 {
		t.Errorf("PushSnapshot calls = %d for the demo identity", got)
	}
}

func TestDaemon_LoadFailureKeepsRunning(t *testing.T) {
	eng := newFakeEngine("alice")
	eng.loadErr = remote.ErrNotAuthenticated
	d, err := NewWithConfig(eng, quietConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	stop := runDaemon(t, d)
	waitFor(t, "load attempt", func() bool { return eng.count("Load") == 1 })
	if err := stop(); err != nil {
		t.Fatalf("Start() returned %v", err)
	}
	if d.Stats().Errors != 1 {
		t.Errorf("Errors = %d, want 1", d.Stats().Errors)
	}
}

func TestDaemon_StopReportsFlushFailure(t *testing.T) {
	eng := newFakeEngine("alice")
	eng.flushErr = errors.New("offline")
	d, err := NewWithConfig(eng, quietConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	stop := runDaemon(t, d)
	waitFor(t, "load", func() bool { return eng.count("Load") == 1 })
	err = stop()
	if !errors.Is(err, eng.flushErr) {
		t.Fatalf("Start() = %v, want the flush failure", err)
	}
	if eng.count("PushSnapshot") != 0 {
		t.Error("snapshot pushed after a failed flush")
	}
	if err := d.Stop(); !errors.Is(err, eng.flushErr) {
		t.Errorf("second Stop() = %v, want the same failure", err)
	}
	if eng.count("ForceFlushAll") != 1 {
		t.Errorf("ForceFlushAll calls = %d, want 1", eng.count("ForceFlushAll"))
	}
}

func TestDaemon_RefreshEntityRoutesByType(t *testing.T) {
	eng := newFakeEngine("alice")
	d, err := NewWithConfig(eng, quietConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	d.queueChange(FileEvent{Type: TypeJournal, ID: "2024-01-15", Op: OpModify})
	d.queueChange(FileEvent{Type: TypeJournal, ID: "2024-01-15", Op: OpModify})
	d.queueChange(FileEvent{Type: TypeNote, ID: "gone", Op: OpDelete})
	d.queueChange(FileEvent{Type: TypeTasks, Op: OpCreate})

	d.processPendingChanges()
	if eng.count("RefreshJournal") != 0 {
		t.Fatal("refreshed before the quiet period elapsed")
	}

	time.Sleep(d.config.DebounceInterval + 10*time.Millisecond)
	d.processPendingChanges()

	for name, want := range map[string]int{"RefreshJournal": 1, "RefreshNote": 1, "RefreshTasks": 1} {
		if got := eng.count(name); got != want {
			t.Errorf("%s calls = %d, want %d", name, got, want)
		}
	}
	if s := d.Stats(); s.Refreshes != 3 || s.Errors != 0 {
		t.Errorf("stats = %+v, want 3 refreshes and no errors", s)
	}
}

func newDirEngine(t *testing.T, store remote.Store, debounce time.Duration) *engine.Engine {
	t.Helper()
	eng, err := engine.New(engine.Config{
		Store:    store,
		Identity: engine.Identity{User: "alice"},
		Debounce: debounce,
		Logger:   log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("engine.New() failed: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close(context.Background()) })
	return eng
}

func TestDaemon_WatchPicksUpRemoteEdits(t *testing.T) {
	store, err := remote.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore() failed: %v", err)
	}
	eng := newDirEngine(t, store, 30*time.Millisecond)

	cfg := quietConfig()
	cfg.Watch = store
	d, err := NewWithConfig(eng, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	runDaemon(t, d)
	waitFor(t, "watcher", func() bool { return d.Stats().Watching })

	topo, err := eng.Topology(context.Background())
	if err != nil {
		t.Fatalf("Topology() failed: %v", err)
	}
	path := filepath.Join(store.PathOf(topo.Journal), "2024-03-01.md")
	if err := os.WriteFile(path, []byte("written elsewhere"), 0644); err != nil {
		t.Fatalf("Failed to write journal file: %v", err)
	}

	waitFor(t, "journal refresh", func() bool {
		e, ok := eng.Journal("2024-03-01")
		return ok && e.Content == "written elsewhere"
	})
}

func TestDaemon_WatchNeverClobbersUnsavedEdits(t *testing.T) {
	store, err := remote.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore() failed: %v", err)
	}
	// long enough that the edit stays unsaved until shutdown
	eng := newDirEngine(t, store, time.Hour)

	cfg := quietConfig()
	cfg.Watch = store
	d, err := NewWithConfig(eng, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	stop := runDaemon(t, d)
	waitFor(t, "watcher", func() bool { return d.Stats().Watching })

	if err := eng.SetJournal("2024-03-01", "typed locally"); err != nil {
		t.Fatalf("SetJournal() failed: %v", err)
	}
	topo, err := eng.Topology(context.Background())
	if err != nil {
		t.Fatalf("Topology() failed: %v", err)
	}
	path := filepath.Join(store.PathOf(topo.Journal), "2024-03-01.md")
	if err := os.WriteFile(path, []byte("written elsewhere"), 0644); err != nil {
		t.Fatalf("Failed to write journal file: %v", err)
	}

	waitFor(t, "file event handled", func() bool { return d.Stats().Refreshes >= 1 })
	if e, _ := eng.Journal("2024-03-01"); e.Content != "typed locally" {
		t.Fatalf("content = %q, unsaved edit was overwritten", e.Content)
	}

	if err := stop(); err != nil {
		t.Fatalf("Start() returned %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read journal file: %v", err)
	}
	if string(data) != "typed locally" {
		t.Errorf("file after shutdown = %q, want the flushed local edit", data)
	}
}
