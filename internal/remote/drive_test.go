package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeDrive is a minimal in-memory Drive v3 server.
type fakeDrive struct {
	mu       sync.Mutex
	files    []*fakeFile
	nextID   int
	pageSize int
	token    string
	requests atomic.Int32
	failWith int // status code returned for every request when non-zero
}

type fakeFile struct {
	driveFile
	parent  string
	content string
}

var (
	qName   = regexp.MustCompile(`name = '((?:[^'\\]|\\.)*)'`)
	qParent = regexp.MustCompile(`'((?:[^'\\]|\\.)*)' in parents`)
)

func unescapeQuery(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func newFakeDrive(t *testing.T) (*fakeDrive, *httptest.Server) {
	t.Helper()
	fd := &fakeDrive{pageSize: 100, token: "good"}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /drive/v3/files", fd.list)
	mux.HandleFunc("POST /drive/v3/files", fd.createFolder)
	mux.HandleFunc("GET /drive/v3/files/{id}", fd.download)
	mux.HandleFunc("DELETE /drive/v3/files/{id}", fd.delete)
	mux.HandleFunc("POST /upload/drive/v3/files", fd.createFile)
	mux.HandleFunc("PATCH /upload/drive/v3/files/{id}", fd.update)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fd.requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+fd.token {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		if fd.failWith != 0 {
			http.Error(w, "injected failure", fd.failWith)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return fd, srv
}

func (fd *fakeDrive) add(name, parent, mimeType, content string) *fakeFile {
	fd.nextID++
	f := &fakeFile{
		driveFile: driveFile{ID: "f" + strconv.Itoa(fd.nextID), Name: name, MimeType: mimeType, ModifiedTime: time.Now().UTC()},
		parent:    parent,
		content:   content,
	}
	fd.files = append(fd.files, f)
	return f
}

func (fd *fakeDrive) get(id string) *fakeFile {
	for _, f := range fd.files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (fd *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	q := r.URL.Query().Get("q")
	var name string
	if m := qName.FindStringSubmatch(q); m != nil {
		name = unescapeQuery(m[1])
	}
	parent := "root"
	if m := qParent.FindStringSubmatch(q); m != nil {
		parent = unescapeQuery(m[1])
	}
	wantFolder := strings.Contains(q, "mimeType = '"+MimeFolder+"'")

	var matched []driveFile
	for _, f := range fd.files {
		if f.parent != parent || (name != "" && f.Name != name) {
			continue
		}
		if (f.MimeType == MimeFolder) != wantFolder {
			continue
		}
		matched = append(matched, f.driveFile)
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))
	size := fd.pageSize
	if ps, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && ps < size {
		size = ps
	}
	resp := driveFileList{Files: []driveFile{}}
	end := offset + size
	if end < len(matched) {
		resp.NextPageToken = strconv.Itoa(end)
	} else {
		end = len(matched)
	}
	if offset < end {
		resp.Files = matched[offset:end]
	}
	json.NewEncoder(w).Encode(resp)
}

func (fd *fakeDrive) createFolder(w http.ResponseWriter, r *http.Request) {
	var meta struct {
		Name     string   `json:"name"`
		MimeType string   `json:"mimeType"`
		Parents  []string `json:"parents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fd.mu.Lock()
	f := fd.add(meta.Name, meta.Parents[0], meta.MimeType, "")
	fd.mu.Unlock()
	json.NewEncoder(w).Encode(f.driveFile)
}

func (fd *fakeDrive) createFile(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("uploadType") != "multipart" {
		http.Error(w, "want multipart upload", http.StatusBadRequest)
		return
	}
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/related" {
		http.Error(w, "want multipart/related", http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var meta struct {
		Name     string   `json:"name"`
		MimeType string   `json:"mimeType"`
		Parents  []string `json:"parents"`
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	contentPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	content, _ := io.ReadAll(contentPart)

	fd.mu.Lock()
	f := fd.add(meta.Name, meta.Parents[0], meta.MimeType, string(content))
	fd.mu.Unlock()
	json.NewEncoder(w).Encode(f.driveFile)
}

func (fd *fakeDrive) update(w http.ResponseWriter, r *http.Request) {
	content, _ := io.ReadAll(r.Body)
	fd.mu.Lock()
	defer fd.mu.Unlock()
	f := fd.get(r.PathValue("id"))
	if f == nil {
		http.NotFound(w, r)
		return
	}
	f.content = string(content)
	f.ModifiedTime = time.Now().UTC()
	json.NewEncoder(w).Encode(f.driveFile)
}

func (fd *fakeDrive) download(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	f := fd.get(r.PathValue("id"))
	if f == nil || r.URL.Query().Get("alt") != "media" {
		http.NotFound(w, r)
		return
	}
	io.WriteString(w, f.content)
}

func (fd *fakeDrive) delete(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	for i, f := range fd.files {
		if f.ID == r.PathValue("id") {
			fd.files = append(fd.files[:i], fd.files[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	http.NotFound(w, r)
}

func newTestDriveStore(srv *httptest.Server, token string) *DriveStore {
	return NewDriveStore(DriveConfig{
		BaseURL:    srv.URL,
		Token:      StaticToken{Token: token},
		HTTPClient: srv.Client(),
	})
}

func TestDriveStore_FolderLifecycle(t *testing.T) {
	_, srv := newFakeDrive(t)
	store := newTestDriveStore(srv, "good")
	ctx := context.Background()

	if _, err := store.FindFolder(ctx, "Jotdeck", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindFolder() on empty drive = %v, want ErrNotFound", err)
	}

	created, err := store.CreateFolder(ctx, "Jotdeck", "")
	if err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	if !created.IsFolder() {
		t.Errorf("created ref MimeType = %q", created.MimeType)
	}

	found, err := store.FindFolder(ctx, "Jotdeck", "")
	if err != nil {
		t.Fatalf("FindFolder() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("FindFolder() ID = %q, want %q", found.ID, created.ID)
	}

	// Folders are not files.
	if _, err := store.FindFile(ctx, "Jotdeck", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindFile() on a folder name = %v, want ErrNotFound", err)
	}
}

func TestDriveStore_FileLifecycle(t *testing.T) {
	_, srv := newFakeDrive(t)
	store := newTestDriveStore(srv, "good")
	ctx := context.Background()

	folder, err := store.CreateFolder(ctx, "journal", "")
	if err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}

	content := "# Monday\n\n--boundary-lookalike--\nline"
	file, err := store.CreateFile(ctx, "2024-01-15.md", content, folder.ID, MimeMarkdown)
	if err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}

	got, err := store.DownloadFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("DownloadFile() error = %v", err)
	}
	if got != content {
		t.Errorf("DownloadFile() = %q, want %q", got, content)
	}

	if _, err := store.UpdateFile(ctx, file.ID, "updated"); err != nil {
		t.Fatalf("UpdateFile() error = %v", err)
	}
	if got, _ := store.DownloadFile(ctx, file.ID); got != "updated" {
		t.Errorf("after update DownloadFile() = %q", got)
	}

	found, err := store.FindFile(ctx, "2024-01-15.md", folder.ID)
	if err != nil || found.ID != file.ID {
		t.Errorf("FindFile() = %+v, %v", found, err)
	}

	if err := store.DeleteFile(ctx, file.ID); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if _, err := store.DownloadFile(ctx, file.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DownloadFile() after delete = %v, want ErrNotFound", err)
	}
}

func TestDriveStore_ListFilesPaginates(t *testing.T) {
	fd, srv := newFakeDrive(t)
	fd.pageSize = 2
	store := newTestDriveStore(srv, "good")
	ctx := context.Background()

	folder, _ := store.CreateFolder(ctx, "notes", "")
	for _, name := range []string{"a.md", "b.md", "c.md", "d.md", "e.md"} {
		if _, err := store.CreateFile(ctx, name, name, folder.ID, MimeMarkdown); err != nil {
			t.Fatalf("CreateFile(%s) error = %v", name, err)
		}
	}
	if _, err := store.CreateFolder(ctx, "sub", folder.ID); err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}

	refs, err := store.ListFiles(ctx, folder.ID)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(refs) != 5 {
		t.Errorf("ListFiles() returned %d files, want 5", len(refs))
	}
}

func TestDriveStore_QueryEscaping(t *testing.T) {
	_, srv := newFakeDrive(t)
	store := newTestDriveStore(srv, "good")
	ctx := context.Background()

	name := `O'Brien's \notes`
	created, err := store.CreateFolder(ctx, name, "")
	if err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	found, err := store.FindFolder(ctx, name, "")
	if err != nil {
		t.Fatalf("FindFolder() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("FindFolder() = %+v", found)
	}
}

func TestDriveStore_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		failWith int
		check    func(error) bool
	}{
		{name: "401", token: "bad", check: func(err error) bool { return errors.Is(err, ErrAuthRejected) }},
		{name: "403", token: "good", failWith: http.StatusForbidden, check: func(err error) bool { return errors.Is(err, ErrAuthRejected) }},
		{name: "404", token: "good", failWith: http.StatusNotFound, check: func(err error) bool { return errors.Is(err, ErrNotFound) }},
		{name: "500", token: "good", failWith: http.StatusInternalServerError, check: func(err error) bool {
			var ioErr *IOError
			return errors.As(err, &ioErr) && ioErr.Status == 500 && IsRetryable(err)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd, srv := newFakeDrive(t)
			fd.failWith = tt.failWith
			store := newTestDriveStore(srv, tt.token)

			_, err := store.UpdateFile(context.Background(), "f1", "x")
			if err == nil || !tt.check(err) {
				t.Errorf("UpdateFile() error = %v", err)
			}
		})
	}
}

func TestDriveStore_NoTokenFailsFast(t *testing.T) {
	fd, srv := newFakeDrive(t)
	store := NewDriveStore(DriveConfig{BaseURL: srv.URL, HTTPClient: srv.Client()})

	_, err := store.FindFolder(context.Background(), "Jotdeck", "")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("FindFolder() error = %v, want ErrNotAuthenticated", err)
	}
	if n := fd.requests.Load(); n != 0 {
		t.Errorf("server saw %d requests, want 0", n)
	}
}

func TestDriveStore_NetworkError(t *testing.T) {
	_, srv := newFakeDrive(t)
	store := newTestDriveStore(srv, "good")
	srv.Close()

	_, err := store.DownloadFile(context.Background(), "f1")
	var ioErr *IOError
	if !errors.As(err, &ioErr) || ioErr.Status != 0 {
		t.Fatalf("DownloadFile() error = %v, want transport IOError", err)
	}
	if !IsRetryable(err) {
		t.Error("transport failures should be retryable")
	}
}
