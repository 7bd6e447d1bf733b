package engine

import "time"

// State is the sync indicator shown to the user.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateSynced  State = "synced"
	StateError   State = "error"
)

// Status is a point-in-time view of the engine.
type Status struct {
	State     State     `json:"state"`
	User      string    `json:"user,omitempty"`
	Demo      bool      `json:"demo"`
	Loaded    bool      `json:"loaded"`
	LoadError string    `json:"loadError,omitempty"`
	Dirty     int       `json:"dirty"`
	Pending   int       `json:"pending"` // debounce timers waiting to fire
	LastError string    `json:"lastError,omitempty"`
	LastSync  time.Time `json:"lastSync,omitempty"`
}

// EventType classifies engine events.
type EventType string

const (
	EventStatus     EventType = "status"
	EventSaved      EventType = "entity_saved"
	EventSaveFailed EventType = "save_failed"
	EventHydrated   EventType = "hydrated"
)

// Event is delivered to subscribers.
type Event struct {
	Type  EventType `json:"type"`
	Key   string    `json:"key,omitempty"`
	State State     `json:"state,omitempty"`
	Bytes int       `json:"bytes,omitempty"`
	Dirty int       `json:"dirty"`
	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
}
