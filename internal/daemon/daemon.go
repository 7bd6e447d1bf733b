package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/jotdeck/jotdeck/internal/engine"
	"github.com/jotdeck/jotdeck/internal/remote"
	"github.com/jotdeck/jotdeck/internal/schema"
)

// Engine is the part of *engine.Engine the daemon drives.
type Engine interface {
	Load(ctx context.Context) error
	RefreshAll(ctx context.Context) error
	RefreshJournal(ctx context.Context, date string) (schema.JournalEntry, error)
	RefreshNote(ctx context.Context, id string) (schema.Note, error)
	RefreshTasks(ctx context.Context) ([]schema.Task, error)
	PushSnapshot(ctx context.Context) error
	SyncLocalCache(ctx context.Context) error
	ForceFlushAll(ctx context.Context) error
	Topology(ctx context.Context) (engine.Topology, error)
	Identity() engine.Identity
}

// Config holds configuration for the daemon.
type Config struct {
	// SnapshotInterval is how often metadata.json is pushed. Zero disables.
	SnapshotInterval time.Duration

	// CacheResyncInterval is how often the local cache and search index are
	// rebuilt from memory. Zero disables.
	CacheResyncInterval time.Duration

	// DebounceInterval is how long a watched file must stay quiet before
	// it is refreshed.
	DebounceInterval time.Duration

	// ShutdownTimeout bounds the final flush.
	ShutdownTimeout time.Duration

	// Watch is the directory store to watch for edits made by other
	// devices. Nil disables watching.
	Watch *remote.DirStore

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SnapshotInterval:    5 * time.Minute,
		CacheResyncInterval: 10 * time.Minute,
		DebounceInterval:    500 * time.Millisecond,
		ShutdownTimeout:     30 * time.Second,
		Logger:              log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Stats counts what the daemon has done since Start.
type Stats struct {
	FileEvents  int       `json:"file_events"`
	Refreshes   int       `json:"refreshes"`
	Snapshots   int       `json:"snapshots"`
	Resyncs     int       `json:"resyncs"`
	Errors      int       `json:"errors"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`
	Watching    bool      `json:"watching"`
}

// Daemon keeps one engine session alive.
type Daemon struct {
	eng    Engine
	config *Config

	watcher       *FileWatcher
	changeQueue   map[string]queuedChange // entity -> latest event
	changeQueueMu sync.Mutex

	statsMu sync.Mutex
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
	stopErr  error
}

var _ Engine = (*engine.Engine)(nil)

type queuedChange struct {
	event    FileEvent
	queuedAt time.Time
}

// New creates a daemon with the default configuration.
func New(eng Engine) (*Daemon, error) {
	return NewWithConfig(eng, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(eng Engine, config *Config) (*Daemon, error) {
	if eng == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	def := DefaultConfig()
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = def.DebounceInterval
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if config.SnapshotInterval < 0 || config.CacheResyncInterval < 0 {
		return nil, errors.New("intervals cannot be negative")
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		eng:         eng,
		config:      config,
		changeQueue: make(map[string]queuedChange),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start hydrates the engine, starts the background loops and blocks until
// ctx is cancelled, then shuts down.
//
// A failed hydration is logged and the session continues; the engine
// reports the failure in its status and refreshes retry later.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.eng.Load(ctx); err != nil {
		d.config.Logger.Printf("Warning: initial load failed: %v", err)
		d.countError()
	}

	if err := d.startWatcher(ctx); err != nil {
		d.config.Logger.Printf("Warning: not watching for remote changes: %v", err)
	}

	d.wg.Add(3)
	go d.processChangeQueue()
	go d.every(d.config.SnapshotInterval, d.pushSnapshot)
	go d.every(d.config.CacheResyncInterval, d.resyncCache)
	if d.watcher != nil {
		d.wg.Add(1)
		go d.watchFileEvents()
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop ends the background loops, then flushes every unsaved edit and
// pushes a final snapshot. It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()

		if d.watcher != nil {
			if err := d.watcher.Stop(); err != nil {
				d.config.Logger.Printf("Error closing watcher: %v", err)
			}
		}
		d.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), d.config.ShutdownTimeout)
		defer cancel()
		if err := d.eng.ForceFlushAll(ctx); err != nil {
			d.stopErr = fmt.Errorf("failed to flush on shutdown: %w", err)
		}
		if d.stopErr == nil && !d.eng.Identity().Demo() {
			if err := d.eng.PushSnapshot(ctx); err != nil {
				d.config.Logger.Printf("Warning: final snapshot failed: %v", err)
			}
		}

		d.config.Logger.Println("Daemon stopped")
	})
	return d.stopErr
}

// Stats returns a copy of the counters.
func (d *Daemon) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

func (d *Daemon) startWatcher(ctx context.Context) error {
	if d.config.Watch == nil || d.eng.Identity().Demo() {
		return nil
	}
	topo, err := d.eng.Topology(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve folders: %w", err)
	}
	w, err := NewFileWatcher()
	if err != nil {
		return err
	}
	dirs := Dirs{
		User:    d.config.Watch.PathOf(topo.User),
		Journal: d.config.Watch.PathOf(topo.Journal),
		Notes:   d.config.Watch.PathOf(topo.Notes),
	}
	if err := w.Start(dirs); err != nil {
		_ = w.watcher.Close()
		return err
	}
	d.watcher = w
	d.statsMu.Lock()
	d.stats.Watching = true
	d.statsMu.Unlock()
	d.config.Logger.Printf("Watching: %s, %s, %s", dirs.Journal, dirs.Notes, dirs.User)
	return nil
}

// watchFileEvents queues watched changes and turns overflows into a full
// refresh.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case ev, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.statsMu.Lock()
			d.stats.FileEvents++
			d.statsMu.Unlock()
			d.queueChange(ev)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			if errors.Is(err, ErrOverflow) {
				d.config.Logger.Println("Watcher overflowed, refreshing everything")
				d.refreshAll()
				continue
			}
			d.config.Logger.Printf("Watcher error: %v", err)
			d.countError()
		}
	}
}

// queueChange records an event; a newer event for the same entity resets
// its quiet period.
func (d *Daemon) queueChange(ev FileEvent) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[ev.Key()] = queuedChange{event: ev, queuedAt: time.Now()}
}

func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(max(d.config.DebounceInterval/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges refreshes the entities whose files have been quiet
// for a full debounce interval.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	now := time.Now()
	var due []FileEvent
	for key, qc := range d.changeQueue {
		if now.Sub(qc.queuedAt) < d.config.DebounceInterval {
			continue
		}
		due = append(due, qc.event)
		delete(d.changeQueue, key)
	}
	d.changeQueueMu.Unlock()

	for _, ev := range due {
		d.config.Logger.Printf("Processing change: %s %s", ev.Op, ev.Key())
		if err := d.refreshEntity(ev); err != nil {
			d.config.Logger.Printf("Error refreshing %s: %v", ev.Key(), err)
			d.countError()
			continue
		}
		d.statsMu.Lock()
		d.stats.Refreshes++
		d.stats.LastRefresh = time.Now()
		d.statsMu.Unlock()
	}
}

// refreshEntity re-reads one entity. The engine leaves entities with unsaved
// edits untouched, so a change from another device never clobbers local work.
func (d *Daemon) refreshEntity(ev FileEvent) error {
	ctx, cancel := context.WithTimeout(d.ctx, d.config.ShutdownTimeout)
	defer cancel()

	switch ev.Type {
	case TypeJournal:
		_, err := d.eng.RefreshJournal(ctx, ev.ID)
		return err
	case TypeNote:
		_, err := d.eng.RefreshNote(ctx, ev.ID)
		if errors.Is(err, engine.ErrNoSuchNote) {
			return nil
		}
		return err
	case TypeTasks:
		_, err := d.eng.RefreshTasks(ctx)
		return err
	default:
		return fmt.Errorf("unknown file type %d", ev.Type)
	}
}

func (d *Daemon) refreshAll() {
	ctx, cancel := context.WithTimeout(d.ctx, d.config.ShutdownTimeout)
	defer cancel()

	d.changeQueueMu.Lock()
	clear(d.changeQueue)
	d.changeQueueMu.Unlock()

	if err := d.eng.RefreshAll(ctx); err != nil {
		d.config.Logger.Printf("Error refreshing: %v", err)
		d.countError()
		return
	}
	d.statsMu.Lock()
	d.stats.Refreshes++
	d.stats.LastRefresh = time.Now()
	d.statsMu.Unlock()
}

// every runs fn on a ticker until shutdown. A non-positive interval
// disables the loop.
func (d *Daemon) every(interval time.Duration, fn func()) {
	defer d.wg.Done()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (d *Daemon) pushSnapshot() {
	if d.eng.Identity().Demo() {
		return
	}
	ctx, cancel := context.WithTimeout(d.ctx, d.config.ShutdownTimeout)
	defer cancel()
	if err := d.eng.PushSnapshot(ctx); err != nil {
		d.config.Logger.Printf("Error pushing snapshot: %v", err)
		d.countError()
		return
	}
	d.statsMu.Lock()
	d.stats.Snapshots++
	d.statsMu.Unlock()
}

func (d *Daemon) resyncCache() {
	ctx, cancel := context.WithTimeout(d.ctx, d.config.ShutdownTimeout)
	defer cancel()
	if err := d.eng.SyncLocalCache(ctx); err != nil {
		d.config.Logger.Printf("Error resyncing local cache: %v", err)
		d.countError()
		return
	}
	d.statsMu.Lock()
	d.stats.Resyncs++
	d.statsMu.Unlock()
}

func (d *Daemon) countError() {
	d.statsMu.Lock()
	d.stats.Errors++
	d.statsMu.Unlock()
}
