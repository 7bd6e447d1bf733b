package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultDriveURL is the API host used when DriveConfig.BaseURL is empty.
const DefaultDriveURL = "https://www.googleapis.com"

const driveFields = "id,name,mimeType,modifiedTime"

// DriveConfig configures a DriveStore.
type DriveConfig struct {
	// BaseURL is the API host, without the /drive/v3 path.
	BaseURL string

	// Token supplies the bearer credential. Required.
	Token TokenSource

	// HTTPClient is used for requests. Defaults to a client with Timeout.
	HTTPClient *http.Client

	// Timeout bounds each request when HTTPClient is nil.
	Timeout time.Duration

	// Logger for request failures. Defaults to stderr.
	Logger *log.Logger
}

// DriveStore is a Store backed by a Drive-v3-shaped REST API.
type DriveStore struct {
	base   string
	token  TokenSource
	client *http.Client
	logger *log.Logger
}

// NewDriveStore creates a DriveStore.
func NewDriveStore(cfg DriveConfig) *DriveStore {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultDriveURL
	}
	token := cfg.Token
	if token == nil {
		token = NoToken{}
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &DriveStore{base: base, token: token, client: client, logger: logger}
}

type driveFile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

func (f driveFile) ref() Ref {
	return Ref{ID: f.ID, Name: f.Name, MimeType: f.MimeType, Modified: f.ModifiedTime}
}

type driveFileList struct {
	Files         []driveFile `json:"files"`
	NextPageToken string      `json:"nextPageToken"`
}

// FindFolder implements Store.
func (d *DriveStore) FindFolder(ctx context.Context, name, parentID string) (Ref, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(name), escapeQuery(parentOrRoot(parentID)), MimeFolder)
	return d.findOne(ctx, OpFindFolder, q)
}

// FindFile implements Store.
func (d *DriveStore) FindFile(ctx context.Context, name, parentID string) (Ref, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType != '%s' and trashed = false",
		escapeQuery(name), escapeQuery(parentOrRoot(parentID)), MimeFolder)
	return d.findOne(ctx, OpFindFile, q)
}

func (d *DriveStore) findOne(ctx context.Context, op Op, q string) (Ref, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("fields", "files("+driveFields+")")
	params.Set("pageSize", "1")

	var list driveFileList
	if err := d.doJSON(ctx, op, http.MethodGet, "/drive/v3/files?"+params.Encode(), nil, "", &list); err != nil {
		return Ref{}, err
	}
	if len(list.Files) == 0 {
		return Ref{}, ErrNotFound
	}
	return list.Files[0].ref(), nil
}

// ListFiles implements Store.
func (d *DriveStore) ListFiles(ctx context.Context, parentID string) ([]Ref, error) {
	q := fmt.Sprintf("'%s' in parents and mimeType != '%s' and trashed = false",
		escapeQuery(parentOrRoot(parentID)), MimeFolder)

	var refs []Ref
	pageToken := ""
	for {
		params := url.Values{}
		params.Set("q", q)
		params.Set("fields", "nextPageToken,files("+driveFields+")")
		params.Set("pageSize", "1000")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var list driveFileList
		if err := d.doJSON(ctx, OpListFiles, http.MethodGet, "/drive/v3/files?"+params.Encode(), nil, "", &list); err != nil {
			return nil, err
		}
		for _, f := range list.Files {
			refs = append(refs, f.ref())
		}
		if list.NextPageToken == "" {
			return refs, nil
		}
		pageToken = list.NextPageToken
	}
}

// CreateFolder implements Store.
func (d *DriveStore) CreateFolder(ctx context.Context, name, parentID string) (Ref, error) {
	meta := map[string]any{
		"name":     name,
		"mimeType": MimeFolder,
		"parents":  []string{parentOrRoot(parentID)},
	}
	body, err := json.Marshal(meta)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to encode folder metadata: %w", err)
	}

	var f driveFile
	path := "/drive/v3/files?fields=" + url.QueryEscape(driveFields)
	if err := d.doJSON(ctx, OpCreateFolder, http.MethodPost, path, body, "application/json", &f); err != nil {
		return Ref{}, err
	}
	return f.ref(), nil
}

// CreateFile implements Store. The file is uploaded in one multipart/related
// request carrying metadata and content.
func (d *DriveStore) CreateFile(ctx context.Context, name, content, parentID, mimeType string) (Ref, error) {
	meta, err := json.Marshal(map[string]any{
		"name":     name,
		"mimeType": mimeType,
		"parents":  []string{parentOrRoot(parentID)},
	})
	if err != nil {
		return Ref{}, fmt.Errorf("failed to encode file metadata: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	metaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return Ref{}, fmt.Errorf("failed to build upload: %w", err)
	}
	metaPart.Write(meta)

	contentPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {mimeType}})
	if err != nil {
		return Ref{}, fmt.Errorf("failed to build upload: %w", err)
	}
	io.WriteString(contentPart, content)

	if err := mw.Close(); err != nil {
		return Ref{}, fmt.Errorf("failed to build upload: %w", err)
	}

	var f driveFile
	path := "/upload/drive/v3/files?uploadType=multipart&fields=" + url.QueryEscape(driveFields)
	contentType := "multipart/related; boundary=" + mw.Boundary()
	if err := d.doJSON(ctx, OpCreateFile, http.MethodPost, path, buf.Bytes(), contentType, &f); err != nil {
		return Ref{}, err
	}
	return f.ref(), nil
}

// UpdateFile implements Store.
func (d *DriveStore) UpdateFile(ctx context.Context, fileID, content string) (Ref, error) {
	var f driveFile
	path := "/upload/drive/v3/files/" + url.PathEscape(fileID) + "?uploadType=media&fields=" + url.QueryEscape(driveFields)
	if err := d.doJSON(ctx, OpUpdateFile, http.MethodPatch, path, []byte(content), "text/plain; charset=UTF-8", &f); err != nil {
		return Ref{}, err
	}
	return f.ref(), nil
}

// DownloadFile implements Store.
func (d *DriveStore) DownloadFile(ctx context.Context, fileID string) (string, error) {
	resp, err := d.do(ctx, OpDownloadFile, http.MethodGet, "/drive/v3/files/"+url.PathEscape(fileID)+"?alt=media", nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &IOError{Op: OpDownloadFile, Status: resp.StatusCode, Err: err}
	}
	return string(data), nil
}

// DeleteFile implements Store.
func (d *DriveStore) DeleteFile(ctx context.Context, fileID string) error {
	resp, err := d.do(ctx, OpDeleteFile, http.MethodDelete, "/drive/v3/files/"+url.PathEscape(fileID), nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (d *DriveStore) doJSON(ctx context.Context, op Op, method, path string, body []byte, contentType string, out any) error {
	resp, err := d.do(ctx, op, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &IOError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// do sends one request. Non-2xx responses are turned into errors and their
// bodies closed; on success the caller owns resp.Body.
func (d *DriveStore) do(ctx context.Context, op Op, method, path string, body []byte, contentType string) (*http.Response, error) {
	token, ok := d.token.AccessToken()
	if !ok {
		return nil, fmt.Errorf("remote %s: %w", op, ErrNotAuthenticated)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.base+path, reader)
	if err != nil {
		return nil, &IOError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &IOError{Op: op, Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("remote %s: HTTP %d: %w", op, resp.StatusCode, ErrAuthRejected)
	case http.StatusNotFound:
		return nil, fmt.Errorf("remote %s: %w", op, ErrNotFound)
	}

	d.logger.Printf("Warning: %s %s returned HTTP %d", method, path, resp.StatusCode)
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return nil, &IOError{Op: op, Status: resp.StatusCode, Err: errors.New(msg)}
}

func parentOrRoot(parentID string) string {
	if parentID == "" {
		return "root"
	}
	return parentID
}

// escapeQuery escapes a value for use inside a single-quoted query string.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
