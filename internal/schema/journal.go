package schema

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the key format for journal entries.
const DateLayout = "2006-01-02"

// JournalExt is the extension of journal files.
const JournalExt = ".md"

// JournalEntry is one day of journal text. The date is both the key and the
// remote filename stem.
type JournalEntry struct {
	Date         string    `json:"date"`
	Content      string    `json:"content"`
	LastModified time.Time `json:"lastModified"`
}

// ValidDate reports whether date is a calendar date in YYYY-MM-DD form.
func ValidDate(date string) bool {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return false
	}
	// time.Parse accepts some non-canonical forms, insist on round-trip
	return t.Format(DateLayout) == date
}

// Today returns the journal key for the given instant in its location.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// JournalFilename returns the remote filename for a journal date.
func JournalFilename(date string) string {
	return date + JournalExt
}

// DateFromFilename extracts the journal date from a remote filename.
// Returns false for files that are not journal entries.
func DateFromFilename(name string) (string, bool) {
	if !strings.HasSuffix(name, JournalExt) {
		return "", false
	}
	date := strings.TrimSuffix(name, JournalExt)
	if !ValidDate(date) {
		return "", false
	}
	return date, true
}

// Validate checks the entry key.
func (e *JournalEntry) Validate() error {
	if !ValidDate(e.Date) {
		return fmt.Errorf("invalid journal date %q (want YYYY-MM-DD)", e.Date)
	}
	return nil
}
