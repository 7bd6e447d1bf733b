package remote

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemStore is an in-memory Store. Like a cloud drive, it allows several
// entries with the same name in one folder; lookups return the oldest.
//
// Every operation is counted, may be delayed by a latency hook and may be
// made to fail, which makes it the fake of choice for exercising the engine.
type MemStore struct {
	mu      sync.Mutex
	nodes   map[string]*memNode
	order   []string
	nextID  int
	calls   map[Op]int
	failure map[Op]error
	latency func(Op) time.Duration
	now     func() time.Time
}

type memNode struct {
	ref     Ref
	parent  string
	content string
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes:   make(map[string]*memNode),
		calls:   make(map[Op]int),
		failure: make(map[Op]error),
		now:     time.Now,
	}
}

// SetLatency installs a hook returning the delay applied before each
// operation. A nil hook removes delays.
func (m *MemStore) SetLatency(fn func(Op) time.Duration) {
	m.mu.Lock()
	m.latency = fn
	m.mu.Unlock()
}

// FailWith makes every subsequent op fail with err until called again with
// a nil error.
func (m *MemStore) FailWith(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failure, op)
		return
	}
	m.failure[op] = err
}

// Calls returns how many times op was invoked.
func (m *MemStore) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// CallCounts returns a copy of all counters.
func (m *MemStore) CallCounts() map[Op]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Op]int, len(m.calls))
	for op, n := range m.calls {
		out[op] = n
	}
	return out
}

// ResetCalls zeroes the counters.
func (m *MemStore) ResetCalls() {
	m.mu.Lock()
	m.calls = make(map[Op]int)
	m.mu.Unlock()
}

// Count returns how many files named name exist directly in parentID.
func (m *MemStore) Count(name, parentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range m.order {
		node := m.nodes[id]
		if node.parent == parentID && node.ref.Name == name && !node.ref.IsFolder() {
			n++
		}
	}
	return n
}

// Lookup walks a path of names from the root and returns the final entry.
func (m *MemStore) Lookup(names ...string) (Ref, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parent := ""
	var ref Ref
	for _, name := range names {
		node := m.firstLocked(name, parent, nil)
		if node == nil {
			return Ref{}, false
		}
		ref = node.ref
		parent = node.ref.ID
	}
	return ref, len(names) > 0
}

// Content returns the content of a file.
func (m *MemStore) Content(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[id]
	if !ok {
		return "", false
	}
	return node.content, true
}

// MkdirAll creates the folder path from the root as needed and returns the
// last folder. It is not counted.
func (m *MemStore) MkdirAll(names ...string) Ref {
	m.mu.Lock()
	defer m.mu.Unlock()
	parent := ""
	var ref Ref
	isFolder := true
	for _, name := range names {
		node := m.firstLocked(name, parent, &isFolder)
		if node == nil {
			node = m.addLocked(name, parent, MimeFolder, "")
		}
		ref = node.ref
		parent = ref.ID
	}
	return ref
}

// Put creates or overwrites a file without counting the call.
func (m *MemStore) Put(parentID, name, content, mimeType string) Ref {
	m.mu.Lock()
	defer m.mu.Unlock()
	isFolder := false
	if node := m.firstLocked(name, parentID, &isFolder); node != nil {
		node.content = content
		node.ref.Modified = m.now()
		return node.ref
	}
	return m.addLocked(name, parentID, mimeType, content).ref
}

// FindFolder implements Store.
func (m *MemStore) FindFolder(ctx context.Context, name, parentID string) (Ref, error) {
	if err := m.enter(ctx, OpFindFolder); err != nil {
		return Ref{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	isFolder := true
	node := m.firstLocked(name, parentID, &isFolder)
	if node == nil {
		return Ref{}, ErrNotFound
	}
	return node.ref, nil
}

// CreateFolder implements Store.
func (m *MemStore) CreateFolder(ctx context.Context, name, parentID string) (Ref, error) {
	if err := m.enter(ctx, OpCreateFolder); err != nil {
		return Ref{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkParentLocked(OpCreateFolder, parentID); err != nil {
		return Ref{}, err
	}
	return m.addLocked(name, parentID, MimeFolder, "").ref, nil
}

// FindFile implements Store.
func (m *MemStore) FindFile(ctx context.Context, name, parentID string) (Ref, error) {
	if err := m.enter(ctx, OpFindFile); err != nil {
		return Ref{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	isFolder := false
	node := m.firstLocked(name, parentID, &isFolder)
	if node == nil {
		return Ref{}, ErrNotFound
	}
	return node.ref, nil
}

// CreateFile implements Store.
func (m *MemStore) CreateFile(ctx context.Context, name, content, parentID, mimeType string) (Ref, error) {
	if err := m.enter(ctx, OpCreateFile); err != nil {
		return Ref{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkParentLocked(OpCreateFile, parentID); err != nil {
		return Ref{}, err
	}
	return m.addLocked(name, parentID, mimeType, content).ref, nil
}

// UpdateFile implements Store.
func (m *MemStore) UpdateFile(ctx context.Context, fileID, content string) (Ref, error) {
	if err := m.enter(ctx, OpUpdateFile); err != nil {
		return Ref{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[fileID]
	if !ok || node.ref.IsFolder() {
		return Ref{}, fmt.Errorf("remote %s %s: %w", OpUpdateFile, fileID, ErrNotFound)
	}
	node.content = content
	node.ref.Modified = m.now()
	return node.ref, nil
}

// DownloadFile implements Store.
func (m *MemStore) DownloadFile(ctx context.Context, fileID string) (string, error) {
	if err := m.enter(ctx, OpDownloadFile); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[fileID]
	if !ok || node.ref.IsFolder() {
		return "", fmt.Errorf("remote %s %s: %w", OpDownloadFile, fileID, ErrNotFound)
	}
	return node.content, nil
}

// DeleteFile implements Store.
func (m *MemStore) DeleteFile(ctx context.Context, fileID string) error {
	if err := m.enter(ctx, OpDeleteFile); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[fileID]; !ok {
		return fmt.Errorf("remote %s %s: %w", OpDeleteFile, fileID, ErrNotFound)
	}
	delete(m.nodes, fileID)
	for i, id := range m.order {
		if id == fileID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// ListFiles implements Store.
func (m *MemStore) ListFiles(ctx context.Context, parentID string) ([]Ref, error) {
	if err := m.enter(ctx, OpListFiles); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var refs []Ref
	for _, id := range m.order {
		node := m.nodes[id]
		if node.parent == parentID && !node.ref.IsFolder() {
			refs = append(refs, node.ref)
		}
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// enter counts the call, applies latency and injected failures.
func (m *MemStore) enter(ctx context.Context, op Op) error {
	m.mu.Lock()
	m.calls[op]++
	latency := m.latency
	failure := m.failure[op]
	m.mu.Unlock()

	if latency != nil {
		if d := latency(op); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return &IOError{Op: op, Err: ctx.Err()}
			case <-timer.C:
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return &IOError{Op: op, Err: err}
	}
	return failure
}

func (m *MemStore) firstLocked(name, parentID string, folder *bool) *memNode {
	for _, id := range m.order {
		node := m.nodes[id]
		if node.parent != parentID || node.ref.Name != name {
			continue
		}
		if folder != nil && node.ref.IsFolder() != *folder {
			continue
		}
		return node
	}
	return nil
}

func (m *MemStore) checkParentLocked(op Op, parentID string) error {
	if parentID == "" {
		return nil
	}
	node, ok := m.nodes[parentID]
	if !ok || !node.ref.IsFolder() {
		return fmt.Errorf("remote %s: parent %s: %w", op, parentID, ErrNotFound)
	}
	return nil
}

func (m *MemStore) addLocked(name, parentID, mimeType, content string) *memNode {
	m.nextID++
	id := "m" + strconv.Itoa(m.nextID)
	node := &memNode{
		ref:     Ref{ID: id, Name: name, MimeType: mimeType, Modified: m.now()},
		parent:  parentID,
		content: content,
	}
	m.nodes[id] = node
	m.order = append(m.order, id)
	return node
}
