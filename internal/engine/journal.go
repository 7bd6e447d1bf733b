package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jotdeck/jotdeck/internal/remote"
	"github.com/jotdeck/jotdeck/internal/schema"
	"github.com/jotdeck/jotdeck/internal/search"
)

// Journal returns the entry for date. ok is false when nothing was written
// on that date.
func (e *Engine) Journal(date string) (schema.JournalEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.journal[date]
	return entry, ok
}

// JournalDates returns every date with an entry, oldest first.
func (e *Engine) JournalDates() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	dates := make([]string, 0, len(e.journal))
	for date := range e.journal {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// SetJournal replaces the content of the entry for date.
//
// Content equal to the last persisted value is a no-op: nothing is marked
// dirty and no write is scheduled. If the entry was dirty, editing it back
// to the persisted value clears the marker and cancels the pending write.
func (e *Engine) SetJournal(date, content string) error {
	if !schema.ValidDate(date) {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	key := JournalKey(date)

	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	prev, existed := e.journal[date]
	if existed && prev.Content == content {
		e.mu.Unlock()
		return nil
	}

	entry := schema.JournalEntry{Date: date, Content: content, LastModified: e.now()}
	e.journal[date] = entry
	demo := e.identity.Demo()

	var schedule bool
	orig, hasOrig := e.journalOrig[date]
	switch {
	case demo:
		e.journalOrig[date] = content
	case (hasOrig && orig == content) || (!hasOrig && content == ""):
		delete(e.dirtyDates, date)
	default:
		e.dirtyDates[date] = true
		schedule = true
	}
	e.mu.Unlock()

	if e.cfg.Index != nil {
		e.cfg.Index.Update(search.JournalDocument(entry))
	}
	e.persistLocal(func(ctx context.Context, c LocalCache) error { return c.PutJournal(ctx, entry) })

	if schedule {
		e.schedule(key)
	} else if !demo {
		e.timers.cancel(key)
	}
	return nil
}

// AppendJournal appends text to the entry for date, separated from any
// existing content by a newline.
func (e *Engine) AppendJournal(date, text string) error {
	e.mu.Lock()
	current := e.journal[date].Content
	e.mu.Unlock()

	if current != "" && !strings.HasSuffix(current, "\n") {
		current += "\n"
	}
	return e.SetJournal(date, current+text)
}

// flushJournal writes the entry for date if it is dirty.
func (e *Engine) flushJournal(ctx context.Context, date string) error {
	n, wrote, err := e.persist(ctx, persistOp{
		key: JournalKey(date),
		snapshot: func() (string, bool, error) {
			if !e.dirtyDates[date] {
				return "", false, nil
			}
			return e.journal[date].Content, true, nil
		},
		target: func(topo Topology) fileTarget {
			return fileTarget{name: schema.JournalFilename(date), parentID: topo.Journal, mimeType: remote.MimeMarkdown}
		},
		commit: func(content string) {
			e.journalOrig[date] = content
			if e.journal[date].Content == content {
				delete(e.dirtyDates, date)
			}
		},
	})
	if err != nil {
		return err
	}
	if wrote {
		e.logger.Printf("Saved journal %s (%d bytes)", date, n)
	}
	return nil
}
