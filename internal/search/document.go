package search

import (
	"github.com/jotdeck/jotdeck/internal/schema"
)

// DocType is the entity kind behind a document.
type DocType string

const (
	TypeJournal DocType = "journal"
	TypeTask    DocType = "task"
	TypeNote    DocType = "note"
)

// Document is one searchable entity.
type Document struct {
	ID     string  `json:"id"`
	Type   DocType `json:"type"`
	Title  string  `json:"title"`
	Body   string  `json:"body"`
	Folder string  `json:"folder,omitempty"` // notes
	Date   string  `json:"date,omitempty"`   // journal date or task due date
	Status string  `json:"status,omitempty"` // tasks
}

// Key identifies the document across entity kinds.
func (d Document) Key() string {
	return Key(d.Type, d.ID)
}

// Key builds the index key for an entity.
func Key(t DocType, id string) string {
	return string(t) + ":" + id
}

// JournalDocument indexes a journal entry under its date.
func JournalDocument(e schema.JournalEntry) Document {
	return Document{ID: e.Date, Type: TypeJournal, Title: e.Date, Body: e.Content, Date: e.Date}
}

// TaskDocument indexes a task's title and description.
func TaskDocument(t schema.Task) Document {
	return Document{
		ID:     t.ID,
		Type:   TypeTask,
		Title:  t.Title,
		Body:   t.Description,
		Date:   t.DueDate,
		Status: string(t.Status),
	}
}

// NoteDocument indexes a note's title and body.
func NoteDocument(n schema.Note) Document {
	return Document{ID: n.ID, Type: TypeNote, Title: n.Title, Body: n.Content, Folder: n.Folder}
}
