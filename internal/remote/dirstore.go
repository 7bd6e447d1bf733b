package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// DirStore is a Store over a local directory tree. IDs are slash-separated
// paths relative to the root, so a file ID is also its location on disk.
//
// A directory cannot hold two entries with the same name, so CreateFile on
// an existing name overwrites it rather than adding a duplicate.
type DirStore struct {
	root string
}

// NewDirStore returns a DirStore rooted at dir, creating it if needed.
func NewDirStore(dir string) (*DirStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &DirStore{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (s *DirStore) Root() string {
	return s.root
}

// PathOf returns the on-disk path for an ID.
func (s *DirStore) PathOf(id string) string {
	return filepath.Join(s.root, filepath.FromSlash(id))
}

// IDOf converts an on-disk path under Root back into an ID.
func (s *DirStore) IDOf(p string) (string, bool) {
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// FindFolder implements Store.
func (s *DirStore) FindFolder(ctx context.Context, name, parentID string) (Ref, error) {
	return s.find(ctx, OpFindFolder, name, parentID, true)
}

// FindFile implements Store.
func (s *DirStore) FindFile(ctx context.Context, name, parentID string) (Ref, error) {
	return s.find(ctx, OpFindFile, name, parentID, false)
}

func (s *DirStore) find(ctx context.Context, op Op, name, parentID string, folder bool) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, &IOError{Op: op, Err: err}
	}
	id, err := childID(parentID, name)
	if err != nil {
		return Ref{}, &IOError{Op: op, Err: err}
	}
	info, err := os.Stat(s.PathOf(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Ref{}, ErrNotFound
	}
	if err != nil {
		return Ref{}, &IOError{Op: op, Err: err}
	}
	if info.IsDir() != folder {
		return Ref{}, ErrNotFound
	}
	return refFromInfo(id, info), nil
}

// CreateFolder implements Store.
func (s *DirStore) CreateFolder(ctx context.Context, name, parentID string) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, &IOError{Op: OpCreateFolder, Err: err}
	}
	id, err := childID(parentID, name)
	if err != nil {
		return Ref{}, &IOError{Op: OpCreateFolder, Err: err}
	}
	if err := os.MkdirAll(s.PathOf(id), 0755); err != nil {
		return Ref{}, &IOError{Op: OpCreateFolder, Err: err}
	}
	return Ref{ID: id, Name: name, MimeType: MimeFolder}, nil
}

// CreateFile implements Store.
func (s *DirStore) CreateFile(ctx context.Context, name, content, parentID, mimeType string) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, &IOError{Op: OpCreateFile, Err: err}
	}
	id, err := childID(parentID, name)
	if err != nil {
		return Ref{}, &IOError{Op: OpCreateFile, Err: err}
	}
	if parentID != "" {
		if info, err := os.Stat(s.PathOf(parentID)); err != nil || !info.IsDir() {
			return Ref{}, fmt.Errorf("remote %s: parent %s: %w", OpCreateFile, parentID, ErrNotFound)
		}
	}
	return s.write(OpCreateFile, id, content)
}

// UpdateFile implements Store.
func (s *DirStore) UpdateFile(ctx context.Context, fileID, content string) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, &IOError{Op: OpUpdateFile, Err: err}
	}
	if err := validID(fileID); err != nil {
		return Ref{}, &IOError{Op: OpUpdateFile, Err: err}
	}
	info, err := os.Stat(s.PathOf(fileID))
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return Ref{}, fmt.Errorf("remote %s %s: %w", OpUpdateFile, fileID, ErrNotFound)
	}
	if err != nil {
		return Ref{}, &IOError{Op: OpUpdateFile, Err: err}
	}
	return s.write(OpUpdateFile, fileID, content)
}

// write replaces the file atomically via a temp file and rename.
func (s *DirStore) write(op Op, id, content string) (Ref, error) {
	target := s.PathOf(id)
	tmpPath := target + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0644); err != nil {
		return Ref{}, &IOError{Op: op, Err: fmt.Errorf("failed to write temp file: %w", err)}
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return Ref{}, &IOError{Op: op, Err: fmt.Errorf("failed to rename temp file: %w", err)}
	}

	info, err := os.Stat(target)
	if err != nil {
		return Ref{ID: id, Name: path.Base(id)}, nil
	}
	return refFromInfo(id, info), nil
}

// DownloadFile implements Store.
func (s *DirStore) DownloadFile(ctx context.Context, fileID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &IOError{Op: OpDownloadFile, Err: err}
	}
	if err := validID(fileID); err != nil {
		return "", &IOError{Op: OpDownloadFile, Err: err}
	}
	data, err := os.ReadFile(s.PathOf(fileID))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("remote %s %s: %w", OpDownloadFile, fileID, ErrNotFound)
	}
	if err != nil {
		return "", &IOError{Op: OpDownloadFile, Err: err}
	}
	return string(data), nil
}

// DeleteFile implements Store.
func (s *DirStore) DeleteFile(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return &IOError{Op: OpDeleteFile, Err: err}
	}
	if err := validID(fileID); err != nil {
		return &IOError{Op: OpDeleteFile, Err: err}
	}
	err := os.Remove(s.PathOf(fileID))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remote %s %s: %w", OpDeleteFile, fileID, ErrNotFound)
	}
	if err != nil {
		return &IOError{Op: OpDeleteFile, Err: err}
	}
	return nil
}

// ListFiles implements Store. Hidden and temporary files are skipped.
func (s *DirStore) ListFiles(ctx context.Context, parentID string) ([]Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, &IOError{Op: OpListFiles, Err: err}
	}
	if parentID != "" {
		if err := validID(parentID); err != nil {
			return nil, &IOError{Op: OpListFiles, Err: err}
		}
	}
	entries, err := os.ReadDir(s.PathOf(parentID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remote %s %s: %w", OpListFiles, parentID, ErrNotFound)
	}
	if err != nil {
		return nil, &IOError{Op: OpListFiles, Err: err}
	}

	var refs []Ref
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || IgnoredName(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		refs = append(refs, refFromInfo(path.Join(parentID, name), info))
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// IgnoredName reports whether a directory entry is not part of the store:
// dotfiles and in-progress temp files.
func IgnoredName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp")
}

func refFromInfo(id string, info fs.FileInfo) Ref {
	ref := Ref{ID: id, Name: info.Name(), Modified: info.ModTime()}
	if info.IsDir() {
		ref.MimeType = MimeFolder
	} else {
		ref.MimeType = mimeByExt(info.Name())
	}
	return ref
}

func mimeByExt(name string) string {
	switch path.Ext(name) {
	case ".md":
		return MimeMarkdown
	case ".json":
		return MimeJSON
	}
	return "application/octet-stream"
}

func childID(parentID, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid name %q", name)
	}
	if parentID == "" {
		return name, nil
	}
	if err := validID(parentID); err != nil {
		return "", err
	}
	return parentID + "/" + name, nil
}

func validID(id string) error {
	if id == "" || path.IsAbs(id) || path.Clean(id) != id || strings.HasPrefix(id, "..") {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}
