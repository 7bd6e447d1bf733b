package schema

import (
	"fmt"
	"time"
)

// Priority ranks a task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Status is the board column of a task. It is independent of Completed.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusBacklog, StatusTodo, StatusInProgress}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusInProgress:
		return true
	}
	return false
}

// Task is one entry of the task list. The whole list is persisted as a
// single document (see TaskList), never one file per task.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	Completed   bool      `json:"completed"`
	DueDate     string    `json:"dueDate,omitempty"` // YYYY-MM-DD
	IsAllDay    bool      `json:"isAllDay"`
	StartTime   string    `json:"startTime,omitempty"` // HH:MM
	EndTime     string    `json:"endTime,omitempty"`   // HH:MM
	CreatedAt   time.Time `json:"createdAt"`

	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CalendarEventID string     `json:"calendarEventId,omitempty"`
}

// SetDefaults fills optional fields that older clients may have omitted.
func (t *Task) SetDefaults() {
	if t.ID == "" {
		t.ID = NewID()
	}
	if !t.Priority.IsValid() {
		t.Priority = PriorityMedium
	}
	if !t.Status.IsValid() {
		t.Status = StatusTodo
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.DueDate != "" && t.StartTime == "" && t.EndTime == "" {
		t.IsAllDay = true
	}
}

// Validate checks the task fields.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q (want high, medium or low)", t.Priority)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status %q (want backlog, todo or in-progress)", t.Status)
	}
	if t.DueDate != "" && !ValidDate(t.DueDate) {
		return fmt.Errorf("invalid due date %q (want YYYY-MM-DD)", t.DueDate)
	}
	for _, clock := range []string{t.StartTime, t.EndTime} {
		if clock == "" {
			continue
		}
		if _, err := time.Parse("15:04", clock); err != nil {
			return fmt.Errorf("invalid time of day %q (want HH:MM)", clock)
		}
	}
	return nil
}

// SetCompleted toggles completion and keeps CompletedAt consistent with it.
func (t *Task) SetCompleted(done bool, now time.Time) {
	t.Completed = done
	if done {
		at := now
		t.CompletedAt = &at
		return
	}
	t.CompletedAt = nil
}
