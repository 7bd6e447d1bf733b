// Package backup exports and imports journal entries, tasks and notes as
// JSON lines.
//
// Each line is one record: {"kind":"journal"|"task"|"note","data":{...}}.
// Imports go through the engine's mutators, so imported entities are
// marked dirty and written to the remote store like any user edit.
package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jotdeck/jotdeck/internal/schema"
	"github.com/jotdeck/jotdeck/internal/search"
)

// Kind names the entity a record holds.
type Kind string

const (
	KindJournal Kind = "journal"
	KindTask    Kind = "task"
	KindNote    Kind = "note"
)

// Record is one line of a backup file.
type Record struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// ExportResult contains statistics about an export
type ExportResult struct {
	Path    string
	Journal int
	Tasks   int
	Notes   int
}

// Export writes every entity of src to path. The file is replaced
// atomically, so a failed export never leaves a truncated backup.
func Export(ctx context.Context, src search.Source, path string) (*ExportResult, error) {
	journal, err := src.AllJournal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	tasks, err := src.AllTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	notes, err := src.AllNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read notes: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	write := func(kind Kind, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", kind, err)
		}
		return enc.Encode(Record{Kind: kind, Data: data})
	}

	res := &ExportResult{Path: path}
	err = func() error {
		for _, e := range journal {
			if err := write(KindJournal, e); err != nil {
				return err
			}
			res.Journal++
		}
		for _, t := range tasks {
			if err := write(KindTask, t); err != nil {
				return err
			}
			res.Tasks++
		}
		for _, n := range notes {
			if err := write(KindNote, n); err != nil {
				return err
			}
			res.Notes++
		}
		return w.Flush()
	}()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return res, nil
}

// ReadRecords parses a backup file.
func ReadRecords(path string) ([]Record, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()

	var records []Record
	decoder := json.NewDecoder(file)
	for lineNum := 1; ; lineNum++ {
		var rec Record
		if err := decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at record %d: %w", lineNum, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Target receives imported entities. *engine.Engine satisfies it.
type Target interface {
	SetJournal(date, content string) error
	Tasks() []schema.Task
	SetTasks(tasks []schema.Task) error
	PutNote(n schema.Note) (schema.Note, error)
}

// ImportOptions contains configuration for an import
type ImportOptions struct {
	From   string // backup file
	DryRun bool   // validate and count without changing anything
}

// ImportResult contains statistics about an import
type ImportResult struct {
	Journal int
	Tasks   int
	Notes   int
	Errors  []string
}

// Import applies the records of a backup file to dst. Journal days and
// notes replace the entity with the same key; tasks are merged into the
// list by ID. Invalid records are reported in Errors and skipped.
func Import(ctx context.Context, dst Target, opts ImportOptions) (*ImportResult, error) {
	records, err := ReadRecords(opts.From)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	var (
		tasks     []schema.Task
		taskIndex = make(map[string]int)
	)
	if !opts.DryRun {
		tasks = dst.Tasks()
		for i, t := range tasks {
			taskIndex[t.ID] = i
		}
	}
	fail := func(i int, format string, args ...any) {
		result.Errors = append(result.Errors, fmt.Sprintf("record %d: ", i+1)+fmt.Sprintf(format, args...))
	}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		switch rec.Kind {
		case KindJournal:
			var e schema.JournalEntry
			if err := json.Unmarshal(rec.Data, &e); err != nil {
				fail(i, "invalid journal entry: %v", err)
				continue
			}
			if err := e.Validate(); err != nil {
				fail(i, "%v", err)
				continue
			}
			if !opts.DryRun {
				if err := dst.SetJournal(e.Date, e.Content); err != nil {
					fail(i, "failed to import journal %s: %v", e.Date, err)
					continue
				}
			}
			result.Journal++

		case KindTask:
			var t schema.Task
			if err := json.Unmarshal(rec.Data, &t); err != nil {
				fail(i, "invalid task: %v", err)
				continue
			}
			if t.CreatedAt.IsZero() {
				t.CreatedAt = time.Now()
			}
			t.SetDefaults()
			if err := t.Validate(); err != nil {
				fail(i, "invalid task %s: %v", t.ID, err)
				continue
			}
			if !opts.DryRun {
				if j, ok := taskIndex[t.ID]; ok {
					tasks[j] = t
				} else {
					taskIndex[t.ID] = len(tasks)
					tasks = append(tasks, t)
				}
			}
			result.Tasks++

		case KindNote:
			var n schema.Note
			if err := json.Unmarshal(rec.Data, &n); err != nil {
				fail(i, "invalid note: %v", err)
				continue
			}
			if n.ID == "" {
				fail(i, "note without id")
				continue
			}
			if !opts.DryRun {
				if _, err := dst.PutNote(n); err != nil {
					fail(i, "failed to import note %s: %v", n.ID, err)
					continue
				}
			}
			result.Notes++

		default:
			fail(i, "unknown kind %q", rec.Kind)
		}
	}

	if !opts.DryRun && result.Tasks > 0 {
		if err := dst.SetTasks(tasks); err != nil {
			return result, fmt.Errorf("failed to import tasks: %w", err)
		}
	}
	return result, nil
}
