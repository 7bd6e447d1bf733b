// Package schema defines the entities jotdeck keeps in the user's file store
// and the wire formats they are written in.
//
// # Remote Layout
//
// Everything lives below a per-user container inside the application folder:
//
//	Jotdeck/
//	  └── <user>/
//	        ├── journal/2024-01-15.md   → JournalEntry (raw markdown)
//	        ├── notes/<id>.md           → Note (header block + markdown body)
//	        ├── tasks.json              → TaskList (whole list, one document)
//	        └── metadata.json           → Snapshot (previews only)
//
// # Note Format
//
// Notes carry a small header block in front of the body:
//
//	---
//	title: Groceries
//	folder: root
//	createdAt: 2024-01-15T10:00:00Z
//	updatedAt: 2024-01-15T10:05:00Z
//	---
//
//	- milk
//	- eggs
//
// Values that cannot be written as plain `key: value` text are double-quoted
// YAML scalars. A file without a header is still a note: its whole content is
// the body and the metadata falls back to defaults (see ParseNote).
//
// # Task List Format
//
//	{ "tasks": [ ... ], "lastModified": "2024-01-15T10:00:00Z" }
//
// A bare JSON array of tasks is accepted on read for older files.
//
// # Design Principles
//
//   - Flat JSON structures, camelCase keys shared with other clients
//   - Journal entries are keyed by date and the date is the filename stem
//   - IDs are time-ordered (UUIDv7) so listings sort by creation
//   - Parsing degrades to defaults instead of rejecting content
package schema
