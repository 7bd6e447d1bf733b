package engine

import (
	"sort"
	"sync"
	"time"
)

// debouncer runs one delayed action per key. Scheduling a key again before
// its timer fires replaces the pending action.
type debouncer struct {
	mu     sync.Mutex
	delay  time.Duration
	timers map[string]*pendingTimer
	closed bool
	wg     sync.WaitGroup // fired actions still running
}

type pendingTimer struct {
	timer *time.Timer
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay, timers: make(map[string]*pendingTimer)}
}

// schedule (re)starts the timer for key.
func (d *debouncer) schedule(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if prev, ok := d.timers[key]; ok {
		prev.timer.Stop()
	}

	entry := &pendingTimer{}
	d.timers[key] = entry
	// The callback takes d.mu, so it cannot observe entry before the timer
	// field is set below.
	entry.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.closed || d.timers[key] != entry {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.wg.Add(1)
		d.mu.Unlock()

		defer d.wg.Done()
		fn()
	})
}

// cancel stops the timer for key. Reports whether one was pending.
func (d *debouncer) cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.timers[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(d.timers, key)
	return true
}

// cancelAll stops every timer and returns the keys that were pending.
func (d *debouncer) cancelAll() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.timers))
	for key, entry := range d.timers {
		entry.timer.Stop()
		keys = append(keys, key)
	}
	d.timers = make(map[string]*pendingTimer)
	sort.Strings(keys)
	return keys
}

func (d *debouncer) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// stop cancels everything, refuses new work and waits for running actions.
func (d *debouncer) stop() {
	d.mu.Lock()
	d.closed = true
	for _, entry := range d.timers {
		entry.timer.Stop()
	}
	d.timers = make(map[string]*pendingTimer)
	d.mu.Unlock()

	d.wg.Wait()
}
