package schema

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFormatNote_Layout(t *testing.T) {
	n := Note{
		ID:        "n1",
		Title:     "Groceries",
		Folder:    "root",
		Content:   "- milk\n- eggs\n",
		CreatedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC),
	}

	want := "---\n" +
		"title: Groceries\n" +
		"folder: root\n" +
		"createdAt: 2024-01-15T10:00:00Z\n" +
		"updatedAt: 2024-01-15T10:05:00Z\n" +
		"---\n\n" +
		"- milk\n- eggs\n"

	if got := FormatNote(n); got != want {
		t.Errorf("FormatNote() mismatch (-want +got):\n%s", cmp.Diff(want, got))
	}
}

func TestNoteRoundTrip(t *testing.T) {
	created := time.Date(2024, 1, 15, 10, 0, 0, 123456789, time.UTC)
	updated := created.Add(90 * time.Minute)

	tests := []struct {
		name string
		note Note
	}{
		{
			name: "plain",
			note: Note{Title: "Plain", Folder: "work", Content: "hello world"},
		},
		{
			name: "delimiter inside body",
			note: Note{Title: "Delims", Folder: "root", Content: "intro\n---\ntitle: fake\n---\n\nmore"},
		},
		{
			name: "body starts with delimiter",
			note: Note{Title: "Leading", Folder: "root", Content: "---\n---\n"},
		},
		{
			name: "body starts with blank lines",
			note: Note{Title: "Blank", Folder: "root", Content: "\n\nindented"},
		},
		{
			name: "empty body",
			note: Note{Title: "Empty", Folder: "root", Content: ""},
		},
		{
			name: "title needing quotes",
			note: Note{Title: "Meeting: Q3 #planning", Folder: "a: b", Content: "x"},
		},
		{
			name: "title that looks like a delimiter",
			note: Note{Title: "---", Folder: "root", Content: "x"},
		},
		{
			name: "multiline title",
			note: Note{Title: "line one\nline two", Folder: "root", Content: "x"},
		},
		{
			name: "quoted and unicode",
			note: Note{Title: `"quoted" 'single' ünïcødé ✓`, Folder: "root", Content: "çà"},
		},
		{
			name: "empty title",
			note: Note{Title: "", Folder: "root", Content: "x"},
		},
		{
			name: "crlf body",
			note: Note{Title: "Windows", Folder: "root", Content: "a\r\nb\r\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.note
			in.ID = "note-1"
			in.CreatedAt = created
			in.UpdatedAt = updated

			raw := FormatNote(in)
			got := ParseNote(in.ID, raw, time.Now())

			if diff := cmp.Diff(in, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s\nraw:\n%s", diff, raw)
			}
		})
	}
}

func TestParseNote_NoHeader(t *testing.T) {
	now := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	raw := "just some text\nwith lines"

	got := ParseNote("abc", raw, now)

	want := Note{
		ID:        "abc",
		Title:     DefaultNoteTitle,
		Folder:    DefaultFolder,
		Content:   raw,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseNote() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseNote_UnclosedHeader(t *testing.T) {
	now := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	raw := "---\ntitle: never closed\nbody"

	got := ParseNote("abc", raw, now)
	if got.Content != raw {
		t.Errorf("Content = %q, want whole file", got.Content)
	}
	if got.Title != DefaultNoteTitle {
		t.Errorf("Title = %q, want %q", got.Title, DefaultNoteTitle)
	}
}

func TestParseNote_MissingFields(t *testing.T) {
	now := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	raw := "---\ntitle: Only title\n---\n\nbody"

	got := ParseNote("abc", raw, now)
	if got.Title != "Only title" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.Folder != DefaultFolder {
		t.Errorf("Folder = %q, want %q", got.Folder, DefaultFolder)
	}
	if !got.CreatedAt.Equal(now) || !got.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = %v/%v, want %v", got.CreatedAt, got.UpdatedAt, now)
	}
	if got.Content != "body" {
		t.Errorf("Content = %q, want %q", got.Content, "body")
	}
}

func TestParseNote_LegacyUnquotedHeader(t *testing.T) {
	// Not valid YAML: the title contains ": " without quotes.
	raw := "---\ntitle: Re: lunch\nfolder: inbox\ncreatedAt: 2024-01-15T10:00:00.000Z\nupdatedAt: 2024-01-15T11:00:00.000Z\n---\n\nsee you"

	got := ParseNote("abc", raw, time.Now())
	if got.Title != "Re: lunch" {
		t.Errorf("Title = %q, want %q", got.Title, "Re: lunch")
	}
	if got.Folder != "inbox" {
		t.Errorf("Folder = %q, want inbox", got.Folder)
	}
	want := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	if !got.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want)
	}
	if got.Content != "see you" {
		t.Errorf("Content = %q", got.Content)
	}
}

func TestNoteFilename(t *testing.T) {
	id, ok := IDFromNoteFilename(NoteFilename("0190f5"))
	if !ok || id != "0190f5" {
		t.Errorf("IDFromNoteFilename() = %q, %v", id, ok)
	}
	if _, ok := IDFromNoteFilename("tasks.json"); ok {
		t.Error("tasks.json should not be a note file")
	}
	if _, ok := IDFromNoteFilename(".md"); ok {
		t.Error(".md should not be a note file")
	}
}

func TestHeaderValueQuoting(t *testing.T) {
	for _, v := range []string{"plain", "2024-01-15T10:00:00Z", "with space"} {
		if got := headerValue(v); got != v {
			t.Errorf("headerValue(%q) = %q, want plain", v, got)
		}
	}
	for _, v := range []string{"", " lead", "a: b", "#tag", "end:", "two\nlines"} {
		got := headerValue(v)
		if !strings.HasPrefix(got, `"`) {
			t.Errorf("headerValue(%q) = %q, want double-quoted", v, got)
		}
	}
}
