package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemStore_AllowsDuplicateNames(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	first, _ := m.CreateFile(ctx, "tasks.json", "1", "", MimeJSON)
	m.CreateFile(ctx, "tasks.json", "2", "", MimeJSON)

	if n := m.Count("tasks.json", ""); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
	found, err := m.FindFile(ctx, "tasks.json", "")
	if err != nil || found.ID != first.ID {
		t.Errorf("FindFile() = %+v, %v, want oldest", found, err)
	}
}

func TestMemStore_CountsCalls(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	m.FindFile(ctx, "x", "")
	m.FindFile(ctx, "y", "")
	ref, _ := m.CreateFile(ctx, "x", "", "", MimeMarkdown)
	m.UpdateFile(ctx, ref.ID, "z")

	if got := m.Calls(OpFindFile); got != 2 {
		t.Errorf("Calls(find-file) = %d, want 2", got)
	}
	if got := m.CallCounts()[OpUpdateFile]; got != 1 {
		t.Errorf("update count = %d, want 1", got)
	}
	m.ResetCalls()
	if got := m.Calls(OpFindFile); got != 0 {
		t.Errorf("after reset Calls() = %d", got)
	}
}

func TestMemStore_FailWith(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	boom := &IOError{Op: OpCreateFile, Status: 503, Err: errors.New("unavailable")}

	m.FailWith(OpCreateFile, boom)
	if _, err := m.CreateFile(ctx, "a", "", "", MimeJSON); !errors.Is(err, boom) {
		t.Fatalf("CreateFile() = %v, want injected error", err)
	}
	if n := m.Count("a", ""); n != 0 {
		t.Errorf("failed create left %d files", n)
	}

	m.FailWith(OpCreateFile, nil)
	if _, err := m.CreateFile(ctx, "a", "", "", MimeJSON); err != nil {
		t.Errorf("CreateFile() after clearing = %v", err)
	}
}

func TestMemStore_LatencyHonoursContext(t *testing.T) {
	m := NewMemStore()
	m.SetLatency(func(Op) time.Duration { return time.Second })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.FindFolder(ctx, "x", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("FindFolder() = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("latency was not interrupted by the context")
	}
}

func TestMemStore_Helpers(t *testing.T) {
	m := NewMemStore()
	journal := m.MkdirAll("Jotdeck", "alice", "journal")
	again := m.MkdirAll("Jotdeck", "alice", "journal")
	if journal.ID != again.ID {
		t.Errorf("MkdirAll() not idempotent: %q vs %q", journal.ID, again.ID)
	}

	m.Put(journal.ID, "2024-01-15.md", "v1", MimeMarkdown)
	ref := m.Put(journal.ID, "2024-01-15.md", "v2", MimeMarkdown)
	if got, _ := m.Content(ref.ID); got != "v2" {
		t.Errorf("Content() = %q, want v2", got)
	}

	found, ok := m.Lookup("Jotdeck", "alice", "journal", "2024-01-15.md")
	if !ok || found.ID != ref.ID {
		t.Errorf("Lookup() = %+v, %v", found, ok)
	}
	if len(m.CallCounts()) != 0 {
		t.Errorf("helpers should not be counted: %v", m.CallCounts())
	}
}

func TestMemStore_ConcurrentUse(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := m.CreateFile(ctx, "f", "x", "", MimeJSON)
			if err != nil {
				t.Error(err)
				return
			}
			m.UpdateFile(ctx, ref.ID, "y")
			m.ListFiles(ctx, "")
		}()
	}
	wg.Wait()
	if n := m.Count("f", ""); n != 20 {
		t.Errorf("Count() = %d, want 20", n)
	}
}
