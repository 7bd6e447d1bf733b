// Package loadtest drives an edit storm through the sync engine.
//
// It simulates a user typing into many journal days at once (optionally
// while editing the task list) against an in-memory store with injected
// latency, then checks that every entity ended up as exactly one remote
// file holding its last edit, and reports write counts and latencies.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jotdeck/jotdeck/internal/engine"
	"github.com/jotdeck/jotdeck/internal/remote"
	"github.com/jotdeck/jotdeck/internal/schema"
)

const loadUser = "loadtest"

// Config controls the storm.
type Config struct {
	// Keys is the number of journal days edited concurrently.
	Keys int

	// EditsPerKey is the number of successive edits to each day.
	EditsPerKey int

	// EditInterval is the mean pause between edits to one day. Each pause
	// is jittered by up to half of it.
	EditInterval time.Duration

	// Debounce is the engine's autosave quiet period.
	Debounce time.Duration

	// WriteLatency is added to every remote create or update; ReadLatency
	// to every other remote call.
	WriteLatency time.Duration
	ReadLatency  time.Duration

	// Tasks also adds EditsPerKey tasks to the task list during the storm.
	Tasks bool

	// Seed makes the jitter reproducible.
	Seed int64

	// Logger for engine messages (default: discarded)
	Logger *log.Logger
}

// DefaultConfig returns a storm that runs in about a second.
func DefaultConfig() Config {
	return Config{
		Keys:         20,
		EditsPerKey:  25,
		EditInterval: 10 * time.Millisecond,
		Debounce:     50 * time.Millisecond,
		WriteLatency: 20 * time.Millisecond,
		ReadLatency:  2 * time.Millisecond,
		Seed:         42,
	}
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	P50     time.Duration // Median
	P95     time.Duration
	P99     time.Duration
	Samples int
}

// Result is the outcome of one storm.
type Result struct {
	Edits        int
	RemoteWrites int
	Creates      int
	Updates      int
	Duration     time.Duration

	// FilesPerKey counts remote files per entity key; every value must be 1.
	FilesPerKey map[string]int

	// Lost lists keys whose remote content is not their last edit.
	Lost []string

	// Write is the latency of individual remote writes; Settle is the time
	// from an entity's last edit until that edit was saved.
	Write  *LatencyStats
	Settle *LatencyStats
}

// Verify returns an error if any entity was duplicated or lost an edit.
func (r *Result) Verify() error {
	keys := make([]string, 0, len(r.FilesPerKey))
	for k := range r.FilesPerKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if n := r.FilesPerKey[k]; n != 1 {
			return fmt.Errorf("%s has %d remote files, want 1", k, n)
		}
	}
	if len(r.Lost) > 0 {
		return fmt.Errorf("%d entities lost their last edit: %v", len(r.Lost), r.Lost)
	}
	return nil
}

// timingStore records how long each remote write takes.
type timingStore struct {
	remote.Store

	mu     sync.Mutex
	writes []time.Duration
}

func (s *timingStore) record(start time.Time) {
	s.mu.Lock()
	s.writes = append(s.writes, time.Since(start))
	s.mu.Unlock()
}

func (s *timingStore) CreateFile(ctx context.Context, name, content, parentID, mimeType string) (remote.Ref, error) {
	defer s.record(time.Now())
	return s.Store.CreateFile(ctx, name, content, parentID, mimeType)
}

func (s *timingStore) UpdateFile(ctx context.Context, fileID, content string) (remote.Ref, error) {
	defer s.record(time.Now())
	return s.Store.UpdateFile(ctx, fileID, content)
}

// Run performs the storm and waits for autosave to settle.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Keys <= 0 || cfg.EditsPerKey <= 0 {
		return nil, fmt.Errorf("keys and edits per key must be positive")
	}
	if cfg.Keys > 365 {
		return nil, fmt.Errorf("at most 365 journal days per run (got %d)", cfg.Keys)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	mem := remote.NewMemStore()
	mem.SetLatency(func(op remote.Op) time.Duration {
		if op == remote.OpCreateFile || op == remote.OpUpdateFile {
			return cfg.WriteLatency
		}
		return cfg.ReadLatency
	})
	store := &timingStore{Store: mem}

	eng, err := engine.New(engine.Config{
		Store:    store,
		Identity: engine.Identity{User: loadUser},
		Debounce: cfg.Debounce,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	defer eng.Close(context.Background())

	var (
		savedMu sync.Mutex
		savedAt = make(map[string]time.Time)
	)
	unsubscribe := eng.Subscribe(func(ev engine.Event) {
		if ev.Type != engine.EventSaved {
			return
		}
		savedMu.Lock()
		savedAt[ev.Key] = time.Now()
		savedMu.Unlock()
	})
	defer unsubscribe()

	dates := journalDates(cfg.Keys)
	lastEdit := make(map[string]time.Time)
	finalContent := make(map[string]string, len(dates))
	var editMu sync.Mutex

	start := time.Now()
	var wg sync.WaitGroup
	errs := make(chan error, cfg.Keys+1)
	for i, date := range dates {
		wg.Add(1)
		go func(i int, date string) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
			for m := 0; m < cfg.EditsPerKey; m++ {
				if ctx.Err() != nil {
					errs <- ctx.Err()
					return
				}
				content := fmt.Sprintf("day %s, edit %d\n", date, m)
				if err := eng.SetJournal(date, content); err != nil {
					errs <- fmt.Errorf("edit %d of %s failed: %w", m, date, err)
					return
				}
				editMu.Lock()
				lastEdit[engine.JournalKey(date)] = time.Now()
				finalContent[date] = content
				editMu.Unlock()
				time.Sleep(jitter(rng, cfg.EditInterval))
			}
		}(i, date)
	}
	if cfg.Tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(cfg.Seed - 1))
			for m := 0; m < cfg.EditsPerKey; m++ {
				if _, err := eng.AddTask(schema.Task{Title: fmt.Sprintf("Load task %d", m)}); err != nil {
					errs <- fmt.Errorf("task %d failed: %w", m, err)
					return
				}
				editMu.Lock()
				lastEdit[engine.TasksKey] = time.Now()
				editMu.Unlock()
				time.Sleep(jitter(rng, cfg.EditInterval))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		return nil, err
	}

	if err := settle(ctx, eng, cfg.Debounce); err != nil {
		return nil, err
	}
	duration := time.Since(start)

	res := &Result{
		Edits:       cfg.Keys * cfg.EditsPerKey,
		Creates:     mem.Calls(remote.OpCreateFile),
		Updates:     mem.Calls(remote.OpUpdateFile),
		Duration:    duration,
		FilesPerKey: make(map[string]int),
	}
	if cfg.Tasks {
		res.Edits += cfg.EditsPerKey
	}
	res.RemoteWrites = res.Creates + res.Updates

	journalDir, _ := mem.Lookup(engine.DefaultConfig().AppFolder, loadUser, engine.JournalFolder)
	for _, date := range dates {
		key := engine.JournalKey(date)
		name := schema.JournalFilename(date)
		res.FilesPerKey[key] = mem.Count(name, journalDir.ID)
		ref, ok := mem.Lookup(engine.DefaultConfig().AppFolder, loadUser, engine.JournalFolder, name)
		content, _ := mem.Content(ref.ID)
		if !ok || content != finalContent[date] {
			res.Lost = append(res.Lost, key)
		}
	}
	if cfg.Tasks {
		userDir, _ := mem.Lookup(engine.DefaultConfig().AppFolder, loadUser)
		res.FilesPerKey[engine.TasksKey] = mem.Count(schema.TasksFilename, userDir.ID)
		ref, _ := mem.Lookup(engine.DefaultConfig().AppFolder, loadUser, schema.TasksFilename)
		raw, _ := mem.Content(ref.ID)
		list, err := schema.ParseTaskList([]byte(raw))
		if err != nil || len(list.Tasks) != cfg.EditsPerKey {
			res.Lost = append(res.Lost, engine.TasksKey)
		}
	}

	store.mu.Lock()
	res.Write = computeLatencyStats(store.writes)
	store.mu.Unlock()

	var settles []time.Duration
	savedMu.Lock()
	for key, at := range lastEdit {
		if saved, ok := savedAt[key]; ok && saved.After(at) {
			settles = append(settles, saved.Sub(at))
		}
	}
	savedMu.Unlock()
	res.Settle = computeLatencyStats(settles)

	return res, nil
}

// settle waits for autosave to write everything, then force-flushes
// whatever is left.
func settle(ctx context.Context, eng *engine.Engine, debounce time.Duration) error {
	deadline := time.Now().Add(10*debounce + 5*time.Second)
	for time.Now().Before(deadline) {
		st := eng.Status()
		if st.Dirty == 0 && st.Pending == 0 && st.State != engine.StateSyncing {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	if err := eng.ForceFlushAll(ctx); err != nil {
		return fmt.Errorf("failed to flush after the storm: %w", err)
	}
	return nil
}

func journalDates(n int) []string {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]string, n)
	for i := range dates {
		dates[i] = base.AddDate(0, 0, i).Format(schema.DateLayout)
	}
	return dates
}

func jitter(rng *rand.Rand, mean time.Duration) time.Duration {
	if mean <= 0 {
		return 0
	}
	half := int64(mean / 2)
	return mean - time.Duration(half) + time.Duration(rng.Int63n(2*half+1))
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		Mean:    sum / time.Duration(len(sorted)),
		P50:     sorted[len(sorted)*50/100],
		P95:     sorted[len(sorted)*95/100],
		P99:     sorted[len(sorted)*99/100],
		Samples: len(sorted),
	}
}

// Print writes a human-readable report.
func (r *Result) Print(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "Edit storm:\n")
	fmt.Fprintf(w, "  Edits:          %d\n", r.Edits)
	fmt.Fprintf(w, "  Remote writes:  %d (%d creates, %d updates)\n", r.RemoteWrites, r.Creates, r.Updates)
	if r.Edits > 0 {
		fmt.Fprintf(w, "  Coalesced:      %.1f%%\n", 100*(1-float64(r.RemoteWrites)/float64(r.Edits)))
	}
	fmt.Fprintf(w, "  Duration:       %v\n", r.Duration.Round(time.Millisecond))
	if err := r.Verify(); err != nil {
		fmt.Fprintf(w, "  Integrity:      FAILED: %v\n", err)
	} else {
		fmt.Fprintf(w, "  Integrity:      one file per entity, last edit saved\n")
	}
	r.Write.print(w, "Remote write latency")
	r.Settle.print(w, "Edit-to-saved latency")
}

func (s *LatencyStats) print(w io.Writer, title string) {
	if s == nil || s.Samples == 0 {
		return
	}
	fmt.Fprintf(w, "%s (%d samples):\n", title, s.Samples)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
