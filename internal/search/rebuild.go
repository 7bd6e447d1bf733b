package search

import (
	"context"
	"fmt"
	"time"
)

// Rebuild replaces the index with the documents currently in src.
func (ix *Index) Rebuild(ctx context.Context, src Source) error {
	start := time.Now()

	journal, err := src.AllJournal(ctx)
	if err != nil {
		return fmt.Errorf("failed to load journal for index: %w", err)
	}
	tasks, err := src.AllTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tasks for index: %w", err)
	}
	notes, err := src.AllNotes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load notes for index: %w", err)
	}

	docs := make([]Document, 0, len(journal)+len(tasks)+len(notes))
	for _, e := range journal {
		docs = append(docs, JournalDocument(e))
	}
	for _, t := range tasks {
		docs = append(docs, TaskDocument(t))
	}
	for _, n := range notes {
		docs = append(docs, NoteDocument(n))
	}
	ix.Replace(docs)

	ix.logger.Printf("Rebuilt index: %d documents in %v", len(docs), time.Since(start).Round(time.Millisecond))
	return nil
}

// ScheduleRebuild rebuilds from src once no further call has been made for
// the rebuild delay. Calls during the quiet period restart it.
func (ix *Index) ScheduleRebuild(src Source) {
	ix.rebuildMu.Lock()
	defer ix.rebuildMu.Unlock()
	if ix.closed {
		return
	}
	if ix.rebuildTimer != nil {
		ix.rebuildTimer.Stop()
	}
	ix.rebuildTimer = time.AfterFunc(ix.rebuildDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := ix.Rebuild(ctx, src); err != nil {
			ix.logger.Printf("Warning: scheduled rebuild failed: %v", err)
		}
	})
}

// Close cancels any scheduled rebuild.
func (ix *Index) Close() {
	ix.rebuildMu.Lock()
	defer ix.rebuildMu.Unlock()
	ix.closed = true
	if ix.rebuildTimer != nil {
		ix.rebuildTimer.Stop()
		ix.rebuildTimer = nil
	}
}
