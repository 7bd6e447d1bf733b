package remote

import (
	"context"
	"time"
)

// MIME types used by the engine.
const (
	MimeFolder   = "application/vnd.google-apps.folder"
	MimeMarkdown = "text/markdown"
	MimeJSON     = "application/json"
)

// Ref identifies a folder or file in a Store.
type Ref struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	MimeType string    `json:"mimeType,omitempty"`
	Modified time.Time `json:"modifiedTime,omitempty"`
}

// IsFolder reports whether r refers to a folder.
func (r Ref) IsFolder() bool {
	return r.MimeType == MimeFolder
}

// Store is a hierarchical file store. An empty parentID means the store root.
//
// FindFolder and FindFile return ErrNotFound when nothing matches; that is
// the normal "does not exist yet" answer, not a failure. CreateFolder and
// CreateFile always create a new entry.
type Store interface {
	FindFolder(ctx context.Context, name, parentID string) (Ref, error)
	CreateFolder(ctx context.Context, name, parentID string) (Ref, error)
	FindFile(ctx context.Context, name, parentID string) (Ref, error)
	CreateFile(ctx context.Context, name, content, parentID, mimeType string) (Ref, error)
	UpdateFile(ctx context.Context, fileID, content string) (Ref, error)
	DownloadFile(ctx context.Context, fileID string) (string, error)
	DeleteFile(ctx context.Context, fileID string) error

	// ListFiles returns the files (not folders) directly inside parentID.
	ListFiles(ctx context.Context, parentID string) ([]Ref, error)
}
