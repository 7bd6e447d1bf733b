package search

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jotdeck/jotdeck/internal/schema"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix := New(20*time.Millisecond, log.New(io.Discard, "", 0))
	t.Cleanup(ix.Close)
	return ix
}

func keys(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Key()
	}
	return out
}

func seed(t *testing.T, ix *Index) {
	t.Helper()
	docs := []Document{
		TaskDocument(schema.Task{ID: "t1", Title: "Buy milk", Description: "oat milk from the corner shop", Status: schema.StatusBacklog}),
		TaskDocument(schema.Task{ID: "t2", Title: "Call plumber", Description: "kitchen sink leaks", Status: schema.StatusTodo}),
		NoteDocument(schema.Note{ID: "n1", Title: "Recipes", Content: "pancakes need milk and eggs", Folder: "kitchen"}),
		NoteDocument(schema.Note{ID: "n2", Title: "Meeting notes", Content: "quarterly planning", Folder: "work"}),
		JournalDocument(schema.JournalEntry{Date: "2024-01-15", Content: "Ran out of milk again. Planning a shop run."}),
	}
	for _, d := range docs {
		if err := ix.Add(d); err != nil {
			t.Fatalf("Add(%s) error = %v", d.Key(), err)
		}
	}
}

func TestSearch_TitleOutranksBody(t *testing.T) {
	ix := newTestIndex(t)
	seed(t, ix)

	results := ix.Search("milk", Filters{})
	if len(results) != 3 {
		t.Fatalf("Search(milk) = %v, want 3 hits", keys(results))
	}
	if results[0].Key() != "task:t1" {
		t.Errorf("top hit = %s, want task:t1 (title match)", results[0].Key())
	}
}

func TestSearch_PrefixAndFuzzy(t *testing.T) {
	ix := newTestIndex(t)
	seed(t, ix)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "prefix", query: "plum", want: "task:t2"},
		{name: "fuzzy subsequence", query: "qtrly", want: "note:n2"},
		{name: "case insensitive", query: "PANCAKES", want: "note:n1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := ix.Search(tt.query, Filters{})
			if len(results) == 0 || results[0].Key() != tt.want {
				t.Errorf("Search(%q) = %v, want %s first", tt.query, keys(results), tt.want)
			}
		})
	}
}

func TestSearch_MoreTermsRankHigher(t *testing.T) {
	ix := newTestIndex(t)
	seed(t, ix)

	results := ix.Search("milk planning", Filters{})
	if len(results) == 0 || results[0].Key() != "journal:2024-01-15" {
		t.Errorf("Search() = %v, want the journal entry matching both terms first", keys(results))
	}
}

func TestSearch_Filters(t *testing.T) {
	ix := newTestIndex(t)
	seed(t, ix)

	tests := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{name: "notes only", filters: Filters{Types: []DocType{TypeNote}}, want: []string{"note:n1"}},
		{name: "folder", filters: Filters{Folder: "work"}, want: []string{}},
		{name: "status", filters: Filters{Status: "backlog"}, want: []string{"task:t1"}},
		{name: "limit", filters: Filters{Limit: 1}, want: []string{"task:t1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keys(ix.Search("milk", tt.filters))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Search() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIndex_UpdateAndRemove(t *testing.T) {
	ix := newTestIndex(t)
	seed(t, ix)

	if err := ix.Add(TaskDocument(schema.Task{ID: "t1"})); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Add() duplicate = %v, want ErrDuplicate", err)
	}

	ix.Update(TaskDocument(schema.Task{ID: "t1", Title: "Buy bread"}))
	for _, r := range ix.Search("milk", Filters{}) {
		if r.Key() == "task:t1" {
			t.Error("stale terms still indexed after Update")
		}
	}
	if got := keys(ix.Search("bread", Filters{})); len(got) != 1 || got[0] != "task:t1" {
		t.Errorf("Search(bread) = %v", got)
	}

	ix.Remove(TypeTask, "t1")
	if got := ix.Search("bread", Filters{}); len(got) != 0 {
		t.Errorf("Search(bread) after Remove = %v", keys(got))
	}
	ix.Remove(TypeTask, "never-indexed")
	if ix.Len() != 4 {
		t.Errorf("Len() = %d, want 4", ix.Len())
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	ix := newTestIndex(t)
	seed(t, ix)
	if got := ix.Search("  ,, ", Filters{}); got != nil {
		t.Errorf("Search() = %v, want nil", got)
	}
}

func TestSnippet(t *testing.T) {
	body := "The first part of a long body that goes on for a while before the interesting keyword appears and then continues after it for some time."
	s := snippet(body, []string{"keyword"})
	if s == "" || s[0:3] != "…" {
		t.Errorf("snippet() = %q, want leading ellipsis", s)
	}
	if got := snippet("", []string{"x"}); got != "" {
		t.Errorf("snippet(empty) = %q", got)
	}
}

type fakeSource struct {
	calls   atomic.Int32
	journal []schema.JournalEntry
	tasks   []schema.Task
	notes   []schema.Note
}

func (f *fakeSource) AllJournal(context.Context) ([]schema.JournalEntry, error) {
	f.calls.Add(1)
	return f.journal, nil
}
func (f *fakeSource) AllTasks(context.Context) ([]schema.Task, error) { return f.tasks, nil }
func (f *fakeSource) AllNotes(context.Context) ([]schema.Note, error) { return f.notes, nil }

func TestRebuild(t *testing.T) {
	ix := newTestIndex(t)
	seed(t, ix)

	src := &fakeSource{
		journal: []schema.JournalEntry{{Date: "2024-02-01", Content: "skiing trip"}},
		notes:   []schema.Note{{ID: "n9", Title: "Packing list", Content: "skis boots"}},
	}
	if err := ix.Rebuild(context.Background(), src); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if ix.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ix.Len())
	}
	if got := ix.Search("milk", Filters{}); len(got) != 0 {
		t.Errorf("old documents survived rebuild: %v", keys(got))
	}
	if got := ix.Search("ski", Filters{}); len(got) != 2 {
		t.Errorf("Search(ski) = %v, want 2", keys(got))
	}
}

func TestScheduleRebuild_Debounces(t *testing.T) {
	ix := newTestIndex(t)
	src := &fakeSource{journal: []schema.JournalEntry{{Date: "2024-02-01", Content: "x"}}}

	for i := 0; i < 5; i++ {
		ix.ScheduleRebuild(src)
		time.Sleep(2 * time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for src.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(60 * time.Millisecond)

	if n := src.calls.Load(); n != 1 {
		t.Errorf("rebuilds = %d, want 1", n)
	}
	if ix.Len() != 1 {
		t.Errorf("Len() = %d, want 1", ix.Len())
	}
}
