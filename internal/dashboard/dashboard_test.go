package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/jotdeck/jotdeck/internal/daemon"
	"github.com/jotdeck/jotdeck/internal/engine"
	"github.com/jotdeck/jotdeck/internal/remote"
	"github.com/jotdeck/jotdeck/internal/schema"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{Port: 0, Host: "127.0.0.1", Logger: quietLogger()})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func newEngine(t *testing.T, store remote.Store) *engine.Engine {
	t.Helper()
	eng, err := engine.New(engine.Config{
		Store:    store,
		Identity: engine.Identity{User: "alice"},
		Debounce: time.Hour,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("engine.New() failed: %v", err)
	}
	return eng
}

func taskNamed(title string) schema.Task {
	return schema.Task{Title: title}
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, server *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", server.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: quietLogger()})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketWelcomeCarriesStats(t *testing.T) {
	server := startServer(t)
	eng := newEngine(t, remote.NewMemStore())
	h := NewHandler(server, eng, quietLogger())
	h.DaemonStats = func() daemon.Stats { return daemon.Stats{Refreshes: 7} }
	if _, err := eng.AddTask(taskNamed("Buy milk")); err != nil {
		t.Fatalf("AddTask() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("welcome type = %s, want %s", msg.Type, MessageTypeStats)
	}
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.Tasks != 1 || stats.Dirty != 1 || stats.User != "alice" {
		t.Errorf("stats = %+v, want 1 dirty task for alice", stats)
	}
	if stats.Daemon == nil || stats.Daemon.Refreshes != 7 {
		t.Errorf("daemon stats = %+v, want 7 refreshes", stats.Daemon)
	}
	waitForClients(t, server, 1)
}

func TestMultipleClients(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numClients = 3
	for i := 0; i < numClients; i++ {
		conn := dial(t, ctx, server)
		readMessage(t, ctx, conn)
	}
	waitForClients(t, server, numClients)
}

func TestEngineEventsAreBroadcast(t *testing.T) {
	server := startServer(t)
	mem := remote.NewMemStore()
	eng := newEngine(t, mem)
	h := NewHandler(server, eng, quietLogger())
	h.Attach()
	defer h.Detach()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn)
	waitForClients(t, server, 1)

	if err := eng.SetJournal("2024-01-15", "hello"); err != nil {
		t.Fatalf("SetJournal() failed: %v", err)
	}
	if err := eng.ForceFlushAll(ctx); err != nil {
		t.Fatalf("ForceFlushAll() failed: %v", err)
	}

	var types []MessageType
	var saved EntityData
	for len(types) < 3 {
		msg := readMessage(t, ctx, conn)
		types = append(types, msg.Type)
		if msg.Type == MessageTypeSaved {
			if err := json.Unmarshal(msg.Data, &saved); err != nil {
				t.Fatalf("Failed to unmarshal entity data: %v", err)
			}
		}
	}
	want := []MessageType{MessageTypeStatus, MessageTypeSaved, MessageTypeStatus}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("message types = %v, want %v", types, want)
		}
	}
	if saved.Key != engine.JournalKey("2024-01-15") || saved.Bytes != len("hello") || saved.Dirty != 0 {
		t.Errorf("saved = %+v", saved)
	}
	if got := h.Stats().Saves; got != 1 {
		t.Errorf("Saves = %d, want 1", got)
	}
}

func TestSaveFailureIsBroadcastAndCounted(t *testing.T) {
	server := startServer(t)
	mem := remote.NewMemStore()
	mem.FailWith(remote.OpCreateFile, &remote.IOError{Op: remote.OpCreateFile, Status: 503, Err: errors.New("unavailable")})
	eng := newEngine(t, mem)
	h := NewHandler(server, eng, quietLogger())
	h.Attach()
	defer h.Detach()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn)
	waitForClients(t, server, 1)

	if err := eng.SetJournal("2024-01-15", "hello"); err != nil {
		t.Fatalf("SetJournal() failed: %v", err)
	}
	if err := eng.ForceFlushAll(ctx); err == nil {
		t.Fatal("ForceFlushAll() succeeded against a failing store")
	}

	for {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeSaveFailed {
			continue
		}
		var data EntityData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			t.Fatalf("Failed to unmarshal entity data: %v", err)
		}
		if data.Key != engine.JournalKey("2024-01-15") || data.Error == "" || data.Dirty != 1 {
			t.Errorf("save_failed data = %+v", data)
		}
		break
	}
	if got := h.Stats().Failed; got != 1 {
		t.Errorf("Failed = %d, want 1", got)
	}
}

func TestHealthReportsSyncState(t *testing.T) {
	server := startServer(t)
	mem := remote.NewMemStore()
	eng := newEngine(t, mem)
	NewHandler(server, eng, quietLogger())

	if err := eng.SetJournal("2024-01-15", "hello"); err != nil {
		t.Fatalf("SetJournal() failed: %v", err)
	}

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health.Status != "ok" || health.Dirty != 1 || health.Sync != string(engine.StateIdle) {
		t.Errorf("health = %+v, want ok with one dirty entity", health)
	}
}

func TestRootServesPage(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.GetAddr() + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d", resp.StatusCode)
	}

	resp, err = http.Get("http://" + server.GetAddr() + "/nope")
	if err != nil {
		t.Fatalf("GET /nope failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", resp.StatusCode)
	}
}
