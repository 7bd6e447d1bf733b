package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Errors returned by the engine.
var (
	// ErrRaceTimeout is returned when waiting for an in-flight save of the
	// same key takes longer than Config.SaveWaitTimeout.
	ErrRaceTimeout = errors.New("timed out waiting for in-flight save")

	// ErrInvalidDate is returned for journal keys that are not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid journal date")

	// ErrNoSuchTask is returned when a task ID is not in the list.
	ErrNoSuchTask = errors.New("no such task")

	// ErrNoSuchNote is returned when a note ID is unknown.
	ErrNoSuchNote = errors.New("no such note")

	// ErrDemo is returned by operations that need a remote identity.
	ErrDemo = errors.New("demo identity has no remote storage")

	// ErrClosed is returned by mutators after Close.
	ErrClosed = errors.New("engine closed")
)

// FlushError aggregates the per-entity failures of ForceFlushAll. The
// entities it names are still dirty.
type FlushError struct {
	Failures map[string]error // entity key -> error
}

func (e *FlushError) Error() string {
	keys := e.Keys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Failures[k]))
	}
	return fmt.Sprintf("failed to flush %d of the dirty entities: %s", len(keys), strings.Join(parts, "; "))
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *FlushError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, k := range e.Keys() {
		errs = append(errs, e.Failures[k])
	}
	return errs
}

// Keys returns the failed entity keys in sorted order.
func (e *FlushError) Keys() []string {
	keys := make([]string, 0, len(e.Failures))
	for k := range e.Failures {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
