package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Errors returned by Store implementations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, remote.ErrNotFound) {
//	    // create instead of update
//	}
var (
	// ErrNotFound is returned when a lookup or download finds nothing.
	ErrNotFound = errors.New("not found")

	// ErrNotAuthenticated is returned before any request is made when no
	// valid credential is available.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrAuthRejected is returned when the remote refused the credential
	// (HTTP 401 or 403).
	ErrAuthRejected = errors.New("credential rejected by remote")
)

// Op names a Store operation in errors, counters and logs.
type Op string

const (
	OpFindFolder   Op = "find-folder"
	OpCreateFolder Op = "create-folder"
	OpFindFile     Op = "find-file"
	OpCreateFile   Op = "create-file"
	OpUpdateFile   Op = "update-file"
	OpDownloadFile Op = "download-file"
	OpDeleteFile   Op = "delete-file"
	OpListFiles    Op = "list-files"
)

// IOError reports a network or HTTP failure of a remote operation.
// Status is zero when no response was received.
type IOError struct {
	Op     Op
	Status int
	Err    error
}

func (e *IOError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s: HTTP %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is likely to succeed on retry:
// transport failures, timeouts, throttling and server errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Auth problems need a new token, not another attempt
	if IsAuthError(err) || errors.Is(err, ErrNotFound) {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ioErr *IOError
	if errors.As(err, &ioErr) {
		switch {
		case ioErr.Status == 0:
			return true
		case ioErr.Status == http.StatusTooManyRequests:
			return true
		case ioErr.Status >= 500:
			return true
		}
	}
	return false
}

// IsAuthError returns true if the error means the user has to sign in again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrAuthRejected)
}
