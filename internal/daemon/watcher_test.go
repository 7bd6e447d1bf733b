package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupDirs(t *testing.T) Dirs {
	t.Helper()
	root := t.TempDir()
	dirs := Dirs{
		User:    root,
		Journal: filepath.Join(root, "journal"),
		Notes:   filepath.Join(root, "notes"),
	}
	for _, d := range []string{dirs.Journal, dirs.Notes} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", d, err)
		}
	}
	return dirs
}

func startWatcher(t *testing.T, dirs Dirs) *FileWatcher {
	t.Helper()
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	t.Cleanup(func() { _ = fw.Stop() })
	if err := fw.Start(dirs); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	return fw
}

func nextEvent(t *testing.T, fw *FileWatcher) FileEvent {
	t.Helper()
	select {
	case ev := <-fw.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for file event")
		return FileEvent{}
	}
}

func TestFileWatcher_StartStop(t *testing.T) {
	dirs := setupDirs(t)
	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}

	if fw.IsRunning() {
		t.Error("watcher running before Start()")
	}
	if err := fw.Start(dirs); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !fw.IsRunning() {
		t.Error("watcher not running after Start()")
	}
	if err := fw.Start(dirs); err == nil {
		t.Error("second Start() should fail while running")
	}

	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if fw.IsRunning() {
		t.Error("watcher running after Stop()")
	}
	if err := fw.Stop(); err != nil {
		t.Errorf("second Stop() failed: %v", err)
	}
	if _, ok := <-fw.Events(); ok {
		t.Error("Events() channel still open after Stop()")
	}
}

func TestFileWatcher_MissingDirectory(t *testing.T) {
	dirs := setupDirs(t)
	dirs.Notes = filepath.Join(dirs.User, "missing")

	fw, err := NewFileWatcher()
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if err := fw.Start(dirs); err == nil {
		t.Fatal("Start() should fail for a missing directory")
	}
	if fw.IsRunning() {
		t.Error("watcher running after failed Start()")
	}
}

func TestFileWatcher_JournalCreated(t *testing.T) {
	dirs := setupDirs(t)
	fw := startWatcher(t, dirs)

	path := filepath.Join(dirs.Journal, "2024-01-15.md")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("Failed to write journal file: %v", err)
	}

	ev := nextEvent(t, fw)
	if ev.Type != TypeJournal {
		t.Errorf("Type = %v, want journal", ev.Type)
	}
	if ev.ID != "2024-01-15" {
		t.Errorf("ID = %q, want 2024-01-15", ev.ID)
	}
	if ev.Op != OpCreate {
		t.Errorf("Op = %v, want create", ev.Op)
	}
	if ev.Key() != "journal/2024-01-15" {
		t.Errorf("Key() = %q", ev.Key())
	}
}

func TestFileWatcher_NoteDeleted(t *testing.T) {
	dirs := setupDirs(t)
	path := filepath.Join(dirs.Notes, "n1.md")
	if err := os.WriteFile(path, []byte("note"), 0644); err != nil {
		t.Fatalf("Failed to write note file: %v", err)
	}
	fw := startWatcher(t, dirs)

	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove note file: %v", err)
	}

	ev := nextEvent(t, fw)
	if ev.Type != TypeNote || ev.ID != "n1" || ev.Op != OpDelete {
		t.Errorf("event = %+v, want note n1 delete", ev)
	}
}

func TestFileWatcher_IgnoresUnsyncedFiles(t *testing.T) {
	dirs := setupDirs(t)
	fw := startWatcher(t, dirs)

	ignored := []string{
		filepath.Join(dirs.Journal, "2024-01-15.md.tmp"),
		filepath.Join(dirs.Journal, "not-a-date.md"),
		filepath.Join(dirs.Notes, ".hidden.md"),
		filepath.Join(dirs.User, "metadata.json"),
	}
	for _, p := range ignored {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", p, err)
		}
	}
	// a synced file written last proves the ignored ones produced nothing
	if err := os.WriteFile(filepath.Join(dirs.User, "tasks.json"), []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write tasks.json: %v", err)
	}

	ev := nextEvent(t, fw)
	if ev.Type != TypeTasks {
		t.Fatalf("first event = %+v, want the task list", ev)
	}
	if ev.ID != "" {
		t.Errorf("task list event ID = %q, want empty", ev.ID)
	}
}

func TestEventOpString(t *testing.T) {
	tests := []struct {
		op   EventOp
		want string
	}{
		{OpCreate, "create"},
		{OpModify, "modify"},
		{OpDelete, "delete"},
		{EventOp(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("EventOp(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}
