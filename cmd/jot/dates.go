package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/jotdeck/jotdeck/internal/schema"
)

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseWhen resolves YYYY-MM-DD or a phrase such as "yesterday" or
// "next friday 5pm" against now. hasClock reports whether the phrase named
// a time of day.
func parseWhen(s string, now time.Time) (t time.Time, hasClock bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "today") {
		return now, false, nil
	}
	if schema.ValidDate(s) {
		d, _ := time.ParseInLocation(schema.DateLayout, s, now.Location())
		return d, false, nil
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	r, err := dateParser.Parse(s, midnight)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, false, fmt.Errorf("unrecognised date %q (want YYYY-MM-DD or a phrase like \"next monday\")", s)
	}
	return r.Time, r.Time.Hour() != 0 || r.Time.Minute() != 0, nil
}

// parseDate returns the journal date named by s.
func parseDate(s string, now time.Time) (string, error) {
	t, _, err := parseWhen(s, now)
	if err != nil {
		return "", err
	}
	return t.Format(schema.DateLayout), nil
}

// applyDue sets the due date of t from s, and its start time when s names
// one.
func applyDue(t *schema.Task, s string, now time.Time) error {
	at, hasClock, err := parseWhen(s, now)
	if err != nil {
		return err
	}
	t.DueDate = at.Format(schema.DateLayout)
	if hasClock {
		t.StartTime = at.Format("15:04")
		t.IsAllDay = false
	}
	return nil
}
