package schema

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// NoteExt is the extension of note files.
	NoteExt = ".md"

	// DefaultFolder is the folder of notes that never had one.
	DefaultFolder = "root"

	// DefaultNoteTitle is used when a note file carries no title.
	DefaultNoteTitle = "Untitled"

	headerDelim = "---"
)

// Note is a markdown note in a flat folder namespace.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Folder    string    `json:"folder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NoteFilename returns the remote filename for a note ID.
func NoteFilename(id string) string {
	return id + NoteExt
}

// IDFromNoteFilename extracts the note ID from a remote filename.
func IDFromNoteFilename(name string) (string, bool) {
	if !strings.HasSuffix(name, NoteExt) {
		return "", false
	}
	id := strings.TrimSuffix(name, NoteExt)
	if id == "" {
		return "", false
	}
	return id, true
}

// SetDefaults fills missing metadata.
func (n *Note) SetDefaults(now time.Time) {
	if n.ID == "" {
		n.ID = NewID()
	}
	if n.Folder == "" {
		n.Folder = DefaultFolder
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
}

// SameContent reports whether two notes differ only in timestamps.
func (n Note) SameContent(other Note) bool {
	return n.Title == other.Title && n.Folder == other.Folder && n.Content == other.Content
}

// FormatNote renders a note in the header + body file format.
//
// The body is written verbatim after one blank line, so any text it contains,
// including lines of "---", survives ParseNote unchanged.
func FormatNote(n Note) string {
	var b strings.Builder
	b.WriteString(headerDelim + "\n")
	writeHeaderField(&b, "title", n.Title)
	writeHeaderField(&b, "folder", n.Folder)
	writeHeaderField(&b, "createdAt", formatStamp(n.CreatedAt))
	writeHeaderField(&b, "updatedAt", formatStamp(n.UpdatedAt))
	b.WriteString(headerDelim + "\n\n")
	b.WriteString(n.Content)
	return b.String()
}

// ParseNote decodes a note file. It never fails: a file without a header is
// a note whose body is the whole file, with title "Untitled", folder "root"
// and both timestamps set to now. Missing or unreadable header fields fall
// back to the same defaults individually.
func ParseNote(id, raw string, now time.Time) Note {
	note := Note{ID: id}

	header, body, ok := splitHeader(raw)
	if !ok {
		note.Content = raw
		note.Title = DefaultNoteTitle
		note.SetDefaults(now)
		return note
	}
	note.Content = body

	fields := parseHeader(header)

	if title, ok := fields["title"]; ok {
		note.Title = title
	} else {
		note.Title = DefaultNoteTitle
	}
	note.Folder = fields["folder"]
	note.CreatedAt = parseStamp(fields["createdAt"])
	note.UpdatedAt = parseStamp(fields["updatedAt"])
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	if note.UpdatedAt.IsZero() {
		note.UpdatedAt = now
	}
	note.SetDefaults(now)
	return note
}

// splitHeader separates the header block from the body. The body starts
// after the first closing delimiter line and loses exactly one leading
// newline (the separator FormatNote writes).
func splitHeader(raw string) (header, body string, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(raw, headerDelim+"\n"):
		rest = raw[len(headerDelim)+1:]
	case strings.HasPrefix(raw, headerDelim+"\r\n"):
		rest = raw[len(headerDelim)+2:]
	default:
		return "", "", false
	}

	// Header may be empty, in which case the closing line comes first.
	if strings.HasPrefix(rest, headerDelim+"\n") {
		return "", trimSeparator(rest[len(headerDelim)+1:]), true
	}
	if rest == headerDelim {
		return "", "", true
	}

	idx := strings.Index(rest, "\n"+headerDelim+"\n")
	if idx < 0 {
		if strings.HasSuffix(rest, "\n"+headerDelim) {
			return rest[:len(rest)-len(headerDelim)-1], "", true
		}
		return "", "", false
	}
	header = rest[:idx]
	body = rest[idx+len(headerDelim)+2:]
	return header, trimSeparator(body), true
}

func trimSeparator(body string) string {
	if strings.HasPrefix(body, "\r\n") {
		return body[2:]
	}
	return strings.TrimPrefix(body, "\n")
}

// parseHeader reads the header as a YAML mapping and falls back to splitting
// `key: value` lines when the block is not valid YAML (for instance an
// unquoted title containing ": ").
func parseHeader(header string) map[string]string {
	fields := make(map[string]string)
	if strings.TrimSpace(header) == "" {
		return fields
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(header), &doc); err == nil &&
		doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 &&
		doc.Content[0].Kind == yaml.MappingNode {
		m := doc.Content[0]
		for i := 0; i+1 < len(m.Content); i += 2 {
			k, v := m.Content[i], m.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				continue
			}
			fields[k.Value] = v.Value
		}
		return fields
	}

	scanner := bufio.NewScanner(strings.NewReader(header))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return fields
}

func writeHeaderField(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%s: %s\n", key, headerValue(value))
}

// headerValue writes value plain when a YAML reader would read it back as
// the same text, and as a double-quoted scalar otherwise.
func headerValue(value string) string {
	if plainSafe(value) {
		return value
	}
	// Go's quoting is a subset of YAML double-quoted escapes and never wraps.
	return strconv.Quote(value)
}

func plainSafe(v string) bool {
	if v == "" || v != strings.TrimSpace(v) {
		return false
	}
	if strings.ContainsAny(v, "\n\r\t\"") {
		return false
	}
	if strings.Contains(v, ": ") || strings.HasSuffix(v, ":") || strings.Contains(v, " #") {
		return false
	}
	if strings.ContainsRune("-?:,[]{}#&*!|>'%@`", rune(v[0])) {
		return false
	}
	return true
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z07:00", DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
