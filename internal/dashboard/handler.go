package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/jotdeck/jotdeck/internal/daemon"
	"github.com/jotdeck/jotdeck/internal/engine"
)

// Source is the engine view the handler reports on. *engine.Engine
// satisfies it.
type Source interface {
	Subscribe(fn func(engine.Event)) (unsubscribe func())
	Status() engine.Status
	Counts() (journal, tasks, notes int)
}

// EntityData describes a saved or failed entity.
type EntityData struct {
	Key   string `json:"key"`
	Bytes int    `json:"bytes,omitempty"`
	Error string `json:"error,omitempty"`
	Dirty int    `json:"dirty"`
}

// StatusData is the sync indicator after a change.
type StatusData struct {
	State engine.State `json:"state"`
	Dirty int          `json:"dirty"`
	Error string       `json:"error,omitempty"`
}

// StatsData is a full picture of the session.
type StatsData struct {
	engine.Status
	Journal int           `json:"journal"`
	Tasks   int           `json:"tasks"`
	Notes   int           `json:"notes"`
	Saves   int           `json:"saves"`
	Failed  int           `json:"failed"`
	Daemon  *daemon.Stats `json:"daemon,omitempty"`
}

// Handler subscribes to engine events and turns them into dashboard
// messages.
type Handler struct {
	server *Server
	src    Source
	logger *log.Logger

	// DaemonStats, when set, adds daemon counters to StatsData.
	DaemonStats func() daemon.Stats

	mu          sync.Mutex
	saves       int
	failed      int
	unsubscribe func()
}

// NewHandler creates an event handler connected to a dashboard server. The
// server's welcome message and /health read the handler's statistics.
func NewHandler(server *Server, src Source, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	h := &Handler{
		server: server,
		src:    src,
		logger: logger,
	}
	server.setStats(h.Stats)
	return h
}

// Attach subscribes to the engine. Detach undoes it.
func (h *Handler) Attach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unsubscribe != nil {
		return
	}
	h.unsubscribe = h.src.Subscribe(h.OnEvent)
}

// Detach stops forwarding engine events.
func (h *Handler) Detach() {
	h.mu.Lock()
	unsub := h.unsubscribe
	h.unsubscribe = nil
	h.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// OnEvent formats one engine event and broadcasts it.
func (h *Handler) OnEvent(ev engine.Event) {
	var (
		typ  MessageType
		data any
	)
	switch ev.Type {
	case engine.EventStatus:
		typ = MessageTypeStatus
		data = StatusData{State: ev.State, Dirty: ev.Dirty, Error: ev.Error}
	case engine.EventSaved:
		h.mu.Lock()
		h.saves++
		h.mu.Unlock()
		typ = MessageTypeSaved
		data = EntityData{Key: ev.Key, Bytes: ev.Bytes, Dirty: ev.Dirty}
	case engine.EventSaveFailed:
		h.mu.Lock()
		h.failed++
		h.mu.Unlock()
		h.logger.Printf("Save failed: %s: %s", ev.Key, ev.Error)
		typ = MessageTypeSaveFailed
		data = EntityData{Key: ev.Key, Error: ev.Error, Dirty: ev.Dirty}
	case engine.EventHydrated:
		h.logger.Println("Session hydrated")
		h.BroadcastStats()
		return
	default:
		return
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: ts, Data: dataJSON})
}

// Stats assembles the current statistics.
func (h *Handler) Stats() StatsData {
	journal, tasks, notes := h.src.Counts()
	h.mu.Lock()
	stats := StatsData{
		Status:  h.src.Status(),
		Journal: journal,
		Tasks:   tasks,
		Notes:   notes,
		Saves:   h.saves,
		Failed:  h.failed,
	}
	h.mu.Unlock()
	if h.DaemonStats != nil {
		ds := h.DaemonStats()
		stats.Daemon = &ds
	}
	return stats
}

// BroadcastStats sends the current statistics to all clients.
func (h *Handler) BroadcastStats() {
	dataJSON, err := json.Marshal(h.Stats())
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return
	}
	h.server.Broadcast(Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

// Run broadcasts statistics every interval until ctx is done.
func (h *Handler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.BroadcastStats()
		}
	}
}
