package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jotdeck/jotdeck/internal/remote"
	"github.com/jotdeck/jotdeck/internal/schema"
	"github.com/jotdeck/jotdeck/internal/search"
)

// Entity keys. Each key has its own debounce timer and save slot.
const (
	journalPrefix = "journal/"
	notesPrefix   = "notes/"
	tasksKey      = "tasks"
	metadataKey   = "metadata"
)

// JournalKey returns the entity key of a journal date.
func JournalKey(date string) string { return journalPrefix + date }

// NoteKey returns the entity key of a note.
func NoteKey(id string) string { return notesPrefix + id }

// TasksKey is the entity key of the whole task list.
const TasksKey = tasksKey

// Identity is the signed-in user. An empty User is the demo identity, whose
// data lives only on this device.
type Identity struct {
	User string
}

// Demo reports whether this is the local-only identity.
func (id Identity) Demo() bool {
	return id.User == ""
}

// LocalCache is the derived on-device store. *cache.DB satisfies it.
type LocalCache interface {
	search.Source
	ReplaceAll(ctx context.Context, journal []schema.JournalEntry, tasks []schema.Task, notes []schema.Note, syncedAt time.Time) error
	PutJournal(ctx context.Context, e schema.JournalEntry) error
	ReplaceTasks(ctx context.Context, tasks []schema.Task) error
	PutNote(ctx context.Context, n schema.Note) error
	DeleteNote(ctx context.Context, id string) error
	LastSync(ctx context.Context) (time.Time, error)
}

// Indexer is the search index the engine keeps live. *search.Index
// satisfies it.
type Indexer interface {
	Update(doc search.Document)
	Remove(t search.DocType, id string)
	Rebuild(ctx context.Context, src search.Source) error
	ScheduleRebuild(src search.Source)
}

// Config configures an Engine.
type Config struct {
	// Store is the remote file store. Required unless Identity is demo.
	Store remote.Store

	// Auth supplies the credential. When set, remote work fails fast with
	// remote.ErrNotAuthenticated while it has no valid token. Stores that
	// need no credential leave it nil.
	Auth remote.TokenSource

	// Identity selects whose data is synced.
	Identity Identity

	// Cache and Index are optional.
	Cache LocalCache
	Index Indexer

	// AppFolder is the root container name.
	AppFolder string

	// Debounce is the quiet period before an edit is written.
	Debounce time.Duration

	// SaveWaitTimeout bounds waiting behind an in-flight save of the same key.
	SaveWaitTimeout time.Duration

	// PreviewLength bounds snapshot previews.
	PreviewLength int

	// DownloadConcurrency bounds parallel downloads during hydration.
	DownloadConcurrency int

	// Logger for engine messages. Defaults to stderr.
	Logger *log.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		AppFolder:           "Jotdeck",
		Debounce:            time.Second,
		SaveWaitTimeout:     30 * time.Second,
		PreviewLength:       schema.DefaultPreviewLength,
		DownloadConcurrency: 4,
	}
}

// Engine keeps the in-memory model, the remote store, the local cache and
// the search index consistent.
//
// Edits apply to memory immediately and are written after a per-entity
// quiet period. An entity is dirty while its current value differs from
// the last value successfully written; refreshes never overwrite dirty
// entities, and dirty markers are only cleared by a successful write of
// that exact value.
type Engine struct {
	cfg    Config
	logger *log.Logger
	now    func() time.Time

	folders *folderResolver
	saver   *saver
	timers  *debouncer

	mu       sync.Mutex
	identity Identity
	gen      uint64 // bumped on identity switch
	closed   bool

	journal     map[string]schema.JournalEntry
	journalOrig map[string]string
	dirtyDates  map[string]bool

	tasks      []schema.Task
	tasksOrig  string
	tasksDirty bool

	notes      map[string]schema.Note
	notesOrig  map[string]schema.Note
	dirtyNotes map[string]bool

	loaded   bool
	loading  chan struct{}
	loadErr  error
	state    State
	active   int             // saves running
	failed   map[string]bool // keys whose last save failed
	lastErr  error
	lastSync time.Time

	cache LocalCache

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// New creates an Engine. No remote call is made until needed.
func New(cfg Config) (*Engine, error) {
	def := DefaultConfig()
	if cfg.AppFolder == "" {
		cfg.AppFolder = def.AppFolder
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.SaveWaitTimeout <= 0 {
		cfg.SaveWaitTimeout = def.SaveWaitTimeout
	}
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = def.PreviewLength
	}
	if cfg.DownloadConcurrency <= 0 {
		cfg.DownloadConcurrency = def.DownloadConcurrency
	}
	if cfg.Store == nil && !cfg.Identity.Demo() {
		return nil, fmt.Errorf("remote store is required for user %q", cfg.Identity.User)
	}
	if strings.ContainsAny(cfg.Identity.User, `/\`) {
		return nil, fmt.Errorf("invalid user name %q", cfg.Identity.User)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		now:      now,
		folders:  newFolderResolver(cfg.Store, cfg.AppFolder, cfg.Identity.User),
		saver:    newSaver(cfg.Store, cfg.SaveWaitTimeout),
		timers:   newDebouncer(cfg.Debounce),
		identity: cfg.Identity,
		cache:    cfg.Cache,
		state:    StateIdle,
		subs:     make(map[int]func(Event)),
	}
	e.resetStateLocked()
	return e, nil
}

func (e *Engine) resetStateLocked() {
	e.journal = make(map[string]schema.JournalEntry)
	e.journalOrig = make(map[string]string)
	e.dirtyDates = make(map[string]bool)
	e.tasks = []schema.Task{}
	e.tasksOrig = schema.SerializeTasks(nil)
	e.tasksDirty = false
	e.notes = make(map[string]schema.Note)
	e.notesOrig = make(map[string]schema.Note)
	e.dirtyNotes = make(map[string]bool)
	e.loaded = false
	e.loading = nil
	e.loadErr = nil
	e.active = 0
	e.failed = make(map[string]bool)
	e.lastErr = nil
	e.lastSync = time.Time{}
	e.state = StateIdle
}

// Identity returns the active identity.
func (e *Engine) Identity() Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identity
}

// Subscribe registers fn for engine events and returns a function that
// removes it. fn is called synchronously and must not block.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.subMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
}

func (e *Engine) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	e.subMu.Lock()
	subs := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// Status returns the current sync status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Status{
		State:    e.state,
		User:     e.identity.User,
		Demo:     e.identity.Demo(),
		Loaded:   e.loaded,
		Dirty:    e.dirtyCountLocked(),
		Pending:  e.timers.pending(),
		LastSync: e.lastSync,
	}
	if e.loadErr != nil {
		s.LoadError = e.loadErr.Error()
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	return s
}

// DirtyKeys returns the keys of every dirty entity, sorted.
func (e *Engine) DirtyKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirtyKeysLocked()
}

// IsDirty reports whether the entity with this key has unsaved changes.
func (e *Engine) IsDirty(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isDirtyLocked(key)
}

func (e *Engine) isDirtyLocked(key string) bool {
	switch {
	case key == tasksKey:
		return e.tasksDirty
	case strings.HasPrefix(key, journalPrefix):
		return e.dirtyDates[strings.TrimPrefix(key, journalPrefix)]
	case strings.HasPrefix(key, notesPrefix):
		return e.dirtyNotes[strings.TrimPrefix(key, notesPrefix)]
	}
	return false
}

func (e *Engine) dirtyKeysLocked() []string {
	keys := make([]string, 0, len(e.dirtyDates)+len(e.dirtyNotes)+1)
	for date := range e.dirtyDates {
		keys = append(keys, JournalKey(date))
	}
	for id := range e.dirtyNotes {
		keys = append(keys, NoteKey(id))
	}
	if e.tasksDirty {
		keys = append(keys, tasksKey)
	}
	sort.Strings(keys)
	return keys
}

func (e *Engine) dirtyCountLocked() int {
	n := len(e.dirtyDates) + len(e.dirtyNotes)
	if e.tasksDirty {
		n++
	}
	return n
}

// setStateLocked changes the indicator and returns the event to emit once
// the lock is released (nil when nothing changed).
func (e *Engine) setStateLocked(s State) *Event {
	if e.state == s {
		return nil
	}
	e.state = s
	return &Event{Type: EventStatus, State: s, Dirty: e.dirtyCountLocked()}
}

func (e *Engine) emitIf(ev *Event) {
	if ev != nil {
		e.emit(*ev)
	}
}

// authorized fails fast when a credential is required and unavailable.
func (e *Engine) authorized() error {
	if e.cfg.Auth == nil {
		return nil
	}
	if _, ok := e.cfg.Auth.AccessToken(); !ok {
		return remote.ErrNotAuthenticated
	}
	return nil
}

// schedule (re)starts the debounce timer for key.
func (e *Engine) schedule(key string) {
	e.timers.schedule(key, func() {
		if err := e.flushKey(context.Background(), key); err != nil {
			e.logger.Printf("Warning: autosave of %s failed: %v", key, err)
		}
	})
}

// Close writes every dirty entity, stops all timers and rejects further
// edits. The returned error is the flush result.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	err := e.ForceFlushAll(ctx)

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.timers.stop()
	return err
}

func (e *Engine) checkOpenLocked() error {
	if e.closed {
		return ErrClosed
	}
	return nil
}
