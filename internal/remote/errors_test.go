package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "not found", err: fmt.Errorf("lookup: %w", ErrNotFound), want: false},
		{name: "rejected", err: fmt.Errorf("x: %w", ErrAuthRejected), want: false},
		{name: "no token", err: ErrNotAuthenticated, want: false},
		{name: "network", err: &IOError{Op: OpUpdateFile, Err: errors.New("connection reset")}, want: true},
		{name: "server error", err: &IOError{Op: OpUpdateFile, Status: 503, Err: errors.New("busy")}, want: true},
		{name: "throttled", err: &IOError{Op: OpUpdateFile, Status: 429, Err: errors.New("slow down")}, want: true},
		{name: "bad request", err: &IOError{Op: OpUpdateFile, Status: 400, Err: errors.New("bad")}, want: false},
		{name: "deadline", err: &IOError{Op: OpFindFile, Err: context.DeadlineExceeded}, want: true},
		{name: "canceled", err: &IOError{Op: OpFindFile, Err: context.Canceled}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsAuthError(t *testing.T) {
	if !IsAuthError(fmt.Errorf("wrapped: %w", ErrNotAuthenticated)) {
		t.Error("ErrNotAuthenticated should be an auth error")
	}
	if !IsAuthError(fmt.Errorf("wrapped: %w", ErrAuthRejected)) {
		t.Error("ErrAuthRejected should be an auth error")
	}
	if IsAuthError(&IOError{Op: OpFindFile, Status: 500, Err: errors.New("x")}) {
		t.Error("server errors are not auth errors")
	}
}

func TestIOErrorMessage(t *testing.T) {
	err := &IOError{Op: OpDownloadFile, Status: 502, Err: errors.New("bad gateway")}
	if got, want := err.Error(), "remote download-file: HTTP 502: bad gateway"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
