package daemon

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/jotdeck/jotdeck/internal/remote"
	"github.com/jotdeck/jotdeck/internal/schema"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileType says which entity a watched file holds.
type FileType int

const (
	// TypeJournal is a journal/<date>.md file.
	TypeJournal FileType = iota
	// TypeNote is a notes/<id>.md file.
	TypeNote
	// TypeTasks is the per-user tasks.json.
	TypeTasks
)

// String returns a human-readable representation of the file type.
func (ft FileType) String() string {
	switch ft {
	case TypeJournal:
		return "journal"
	case TypeNote:
		return "note"
	case TypeTasks:
		return "tasks"
	default:
		return "unknown"
	}
}

// FileEvent is a change to a file the engine syncs.
type FileEvent struct {
	// Path is the absolute path to the file that changed.
	Path string
	// Type says which entity the file holds.
	Type FileType
	// ID is the journal date or note ID; empty for the task list.
	ID string
	// Op is the operation that occurred.
	Op EventOp
}

// Key identifies the entity, so repeated events for one file coalesce.
func (e FileEvent) Key() string {
	return e.Type.String() + "/" + e.ID
}

// ErrOverflow is sent on Errors when the kernel dropped events; the caller
// should fall back to a full refresh.
var ErrOverflow = fsnotify.ErrEventOverflow

// Dirs are the directories of one identity's remote folder tree.
type Dirs struct {
	User    string // holds tasks.json
	Journal string
	Notes   string
}

// FileWatcher watches a user's journal, notes and task files.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	dirs    Dirs
}

// NewFileWatcher creates a new FileWatcher instance.
// The watcher must be started with Start() before it will emit events.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the three directories.
func (fw *FileWatcher) Start(dirs Dirs) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return errors.New("watcher already running")
	}

	abs := func(p string) (string, error) {
		if p == "" {
			return "", errors.New("empty watch directory")
		}
		return filepath.Abs(p)
	}
	var err error
	if fw.dirs.User, err = abs(dirs.User); err != nil {
		return fmt.Errorf("failed to resolve user directory: %w", err)
	}
	if fw.dirs.Journal, err = abs(dirs.Journal); err != nil {
		return fmt.Errorf("failed to resolve journal directory: %w", err)
	}
	if fw.dirs.Notes, err = abs(dirs.Notes); err != nil {
		return fmt.Errorf("failed to resolve notes directory: %w", err)
	}

	var added []string
	for _, dir := range []string{fw.dirs.User, fw.dirs.Journal, fw.dirs.Notes} {
		if err := fw.watcher.Add(dir); err != nil {
			for _, a := range added {
				_ = fw.watcher.Remove(a)
			}
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
		added = append(added, dir)
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops watching and closes the Events and Errors channels. It blocks
// until the event loop has exited.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)

	return nil
}

// Events returns the channel that emits FileEvent notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the channel that emits error notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fileEvent, ok := fw.convertEvent(event); ok {
				select {
				case fw.events <- fileEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event to a FileEvent, or reports false for
// files the engine does not sync (temp files, metadata.json, stray names).
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	name := filepath.Base(event.Name)
	if remote.IgnoredName(name) {
		return FileEvent{}, false
	}

	fe := FileEvent{Path: event.Name}
	dir := filepath.Dir(event.Name)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	switch dir {
	case fw.dirs.Journal:
		date, ok := schema.DateFromFilename(name)
		if !ok {
			return FileEvent{}, false
		}
		fe.Type, fe.ID = TypeJournal, date
	case fw.dirs.Notes:
		id, ok := schema.IDFromNoteFilename(name)
		if !ok {
			return FileEvent{}, false
		}
		fe.Type, fe.ID = TypeNote, id
	case fw.dirs.User:
		if name != schema.TasksFilename {
			return FileEvent{}, false
		}
		fe.Type = TypeTasks
	default:
		return FileEvent{}, false
	}

	switch {
	case event.Has(fsnotify.Create):
		fe.Op = OpCreate
	case event.Has(fsnotify.Write):
		fe.Op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// the new name of a rename arrives as its own create
		fe.Op = OpDelete
	default:
		return FileEvent{}, false
	}
	return fe, true
}
