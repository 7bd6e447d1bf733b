package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jotdeck/jotdeck/internal/remote"
)

// fileTarget says where a key's file lives.
type fileTarget struct {
	name     string
	parentID string
	mimeType string
}

// saver writes one file per key with at most one remote operation per key
// in flight. A caller that finds a save running for its key waits for it,
// then performs its own write with its own content.
type saver struct {
	store       remote.Store
	waitTimeout time.Duration

	mu       sync.Mutex
	fileIDs  map[string]string
	inflight map[string]chan struct{}
}

func newSaver(store remote.Store, waitTimeout time.Duration) *saver {
	return &saver{
		store:       store,
		waitTimeout: waitTimeout,
		fileIDs:     make(map[string]string),
		inflight:    make(map[string]chan struct{}),
	}
}

// acquire blocks until no operation is running for key, then claims it.
// The returned release must be called exactly once.
func (s *saver) acquire(ctx context.Context, key string) (release func(), err error) {
	var timeout <-chan time.Time
	if s.waitTimeout > 0 {
		t := time.NewTimer(s.waitTimeout)
		defer t.Stop()
		timeout = t.C
	}

	for {
		s.mu.Lock()
		busy, ok := s.inflight[key]
		if !ok {
			done := make(chan struct{})
			s.inflight[key] = done
			s.mu.Unlock()
			return func() {
				s.mu.Lock()
				delete(s.inflight, key)
				s.mu.Unlock()
				close(done)
			}, nil
		}
		s.mu.Unlock()

		select {
		case <-busy:
		case <-timeout:
			return nil, fmt.Errorf("%w: %s", ErrRaceTimeout, key)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// save writes content as the file for key, creating it on first use.
func (s *saver) save(ctx context.Context, key string, target fileTarget, content string) (remote.Ref, error) {
	release, err := s.acquire(ctx, key)
	if err != nil {
		return remote.Ref{}, err
	}
	defer release()
	return s.write(ctx, key, target, content)
}

// write is save for a caller that already holds the slot for key.
func (s *saver) write(ctx context.Context, key string, target fileTarget, content string) (remote.Ref, error) {
	id, err := s.lookup(ctx, key, target)
	if err != nil {
		return remote.Ref{}, err
	}

	if id != "" {
		ref, err := s.store.UpdateFile(ctx, id, content)
		if err == nil {
			return ref, nil
		}
		if !errors.Is(err, remote.ErrNotFound) {
			return remote.Ref{}, fmt.Errorf("failed to update %s: %w", target.name, err)
		}
		// Deleted remotely since we cached the ID; fall through to create.
		s.forget(key)
	}

	ref, err := s.store.CreateFile(ctx, target.name, content, target.parentID, target.mimeType)
	if err != nil {
		return remote.Ref{}, fmt.Errorf("failed to create %s: %w", target.name, err)
	}
	s.remember(key, ref.ID)
	return ref, nil
}

// remove deletes the file for key if it exists remotely.
func (s *saver) remove(ctx context.Context, key string, target fileTarget) error {
	release, err := s.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	id, err := s.lookup(ctx, key, target)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	if err := s.store.DeleteFile(ctx, id); err != nil && !errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("failed to delete %s: %w", target.name, err)
	}
	s.forget(key)
	return nil
}

// lookup returns the cached file ID for key, or finds it by name and
// caches it. An empty ID means no file exists yet.
func (s *saver) lookup(ctx context.Context, key string, target fileTarget) (string, error) {
	s.mu.Lock()
	id := s.fileIDs[key]
	s.mu.Unlock()
	if id != "" {
		return id, nil
	}

	ref, err := s.store.FindFile(ctx, target.name, target.parentID)
	if errors.Is(err, remote.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up %s: %w", target.name, err)
	}
	s.remember(key, ref.ID)
	return ref.ID, nil
}

func (s *saver) fileID(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileIDs[key]
}

func (s *saver) remember(key, id string) {
	s.mu.Lock()
	s.fileIDs[key] = id
	s.mu.Unlock()
}

func (s *saver) forget(key string) {
	s.mu.Lock()
	delete(s.fileIDs, key)
	s.mu.Unlock()
}

// inFlight returns the number of keys with a running operation.
func (s *saver) inFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// drain waits until no operation is running.
func (s *saver) drain(ctx context.Context) error {
	for {
		s.mu.Lock()
		var wait chan struct{}
		for _, ch := range s.inflight {
			wait = ch
			break
		}
		s.mu.Unlock()
		if wait == nil {
			return nil
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reset forgets every cached file ID.
func (s *saver) reset() {
	s.mu.Lock()
	s.fileIDs = make(map[string]string)
	s.mu.Unlock()
}
