package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"golang.org/x/mod/semver"
)

const (
	// SnapshotFilename is the remote name of the metadata snapshot.
	SnapshotFilename = "metadata.json"

	// SnapshotVersion is the format version written by this build.
	SnapshotVersion = "1.0.0"

	// DefaultPreviewLength bounds the text carried per entity.
	DefaultPreviewLength = 200
)

// Snapshot is a light projection of all entities that lets another device
// see what exists without downloading every body.
type Snapshot struct {
	Version    string           `json:"version"`
	ExportedAt time.Time        `json:"exportedAt"`
	LastSync   *time.Time       `json:"lastSync,omitempty"`
	Notes      []NoteSummary    `json:"notes"`
	Tasks      []TaskSummary    `json:"tasks"`
	Journal    []JournalSummary `json:"journal"`
}

// NoteSummary is the snapshot projection of a Note.
type NoteSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Folder    string    `json:"folder"`
	Preview   string    `json:"preview"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TaskSummary is the snapshot projection of a Task.
type TaskSummary struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Priority  Priority `json:"priority"`
	Status    Status   `json:"status"`
	Completed bool     `json:"completed"`
	DueDate   string   `json:"dueDate,omitempty"`
}

// JournalSummary is the snapshot projection of a JournalEntry.
type JournalSummary struct {
	Date         string    `json:"date"`
	Preview      string    `json:"preview"`
	LastModified time.Time `json:"lastModified"`
}

// BuildSnapshot projects the given entities. previewLen <= 0 uses
// DefaultPreviewLength. Output order is stable: journal by date, notes and
// tasks by ID.
func BuildSnapshot(journal []JournalEntry, tasks []Task, notes []Note, lastSync time.Time, previewLen int, now time.Time) Snapshot {
	if previewLen <= 0 {
		previewLen = DefaultPreviewLength
	}

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: now.UTC(),
		Notes:      make([]NoteSummary, 0, len(notes)),
		Tasks:      make([]TaskSummary, 0, len(tasks)),
		Journal:    make([]JournalSummary, 0, len(journal)),
	}
	if !lastSync.IsZero() {
		ls := lastSync.UTC()
		snap.LastSync = &ls
	}

	for _, e := range journal {
		snap.Journal = append(snap.Journal, JournalSummary{
			Date:         e.Date,
			Preview:      Preview(e.Content, previewLen),
			LastModified: e.LastModified,
		})
	}
	for _, t := range tasks {
		snap.Tasks = append(snap.Tasks, TaskSummary{
			ID:        t.ID,
			Title:     t.Title,
			Priority:  t.Priority,
			Status:    t.Status,
			Completed: t.Completed,
			DueDate:   t.DueDate,
		})
	}
	for _, n := range notes {
		snap.Notes = append(snap.Notes, NoteSummary{
			ID:        n.ID,
			Title:     n.Title,
			Folder:    n.Folder,
			Preview:   Preview(n.Content, previewLen),
			UpdatedAt: n.UpdatedAt,
		})
	}

	sort.Slice(snap.Journal, func(i, j int) bool { return snap.Journal[i].Date < snap.Journal[j].Date })
	sort.Slice(snap.Notes, func(i, j int) bool { return snap.Notes[i].ID < snap.Notes[j].ID })
	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].ID < snap.Tasks[j].ID })
	return snap
}

// Preview truncates s to at most n runes.
func Preview(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// MarshalSnapshot encodes a snapshot document.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// ParseSnapshot decodes a snapshot document. Snapshots from a newer major
// format version are rejected with ErrUnsupportedSnapshot.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: snapshot: %v", ErrParse, err)
	}
	v := "v" + s.Version
	if !semver.IsValid(v) {
		return Snapshot{}, fmt.Errorf("%w: snapshot version %q", ErrParse, s.Version)
	}
	if semver.Compare(semver.Major(v), semver.Major("v"+SnapshotVersion)) > 0 {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnsupportedSnapshot, s.Version)
	}
	return s, nil
}
