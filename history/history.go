// Package history implements the per-connection bounded undo/redo
// stack.
package history

import (
	"sync"

	"github.com/Polqt/crdtcollab/crdt"
)

// Entry is one undo-stack slot: the forward ops that were applied and
// the inverse ops that undo them, accumulated in reverse (LIFO) order
// when the entry spans a batch.
type Entry struct {
	Forward []crdt.Op
	Inverse []crdt.Op
}

// DefaultCap is the default stack depth.
const DefaultCap = 100

// Manager is a bounded undo/redo stack with batching and a pause guard
// so the room engine can apply remote ops locally without polluting a
// connection's own history.
type Manager struct {
	mu     sync.Mutex
	cap    int
	undo   []Entry
	redo   []Entry
	paused bool

	batching bool
	batch    Entry

	subs []func()
}

// New creates a Manager with the given cap (<=0 uses DefaultCap).
func New(cap int) *Manager {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Manager{cap: cap}
}

// Subscribe registers cb to be called on record (non-batched),
// end_batch, undo, redo, and clear.
func (m *Manager) Subscribe(cb func()) (unsubscribe func()) {
	m.mu.Lock()
	idx := len(m.subs)
	m.subs = append(m.subs, cb)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if idx < len(m.subs) {
			m.subs[idx] = nil
		}
	}
}

func (m *Manager) notifyLocked() {
	subs := m.subs
	m.mu.Unlock()
	for _, cb := range subs {
		if cb != nil {
			cb()
		}
	}
	m.mu.Lock()
}

// Record pushes a single-op entry and clears the redo stack. A no-op
// while paused.
func (m *Manager) Record(forward, inverse crdt.Op) {
	m.mu.Lock()
	if m.paused {
		m.mu.Unlock()
		return
	}

	if m.batching {
		m.batch.Forward = append(m.batch.Forward, forward)
		// Inverses inside a batch accumulate LIFO: the most recent
		// forward op's inverse must be undone first.
		m.batch.Inverse = append([]crdt.Op{inverse}, m.batch.Inverse...)
		m.mu.Unlock()
		return
	}

	m.push(Entry{Forward: []crdt.Op{forward}, Inverse: []crdt.Op{inverse}})
	m.redo = nil
	m.notifyLocked()
	m.mu.Unlock()
}

// StartBatch begins coalescing subsequent Record calls into one entry.
func (m *Manager) StartBatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batching = true
	m.batch = Entry{}
}

// EndBatch closes the batch, pushing it as one entry unless it was
// empty (discarded).
func (m *Manager) EndBatch() {
	m.mu.Lock()
	m.batching = false
	entry := m.batch
	m.batch = Entry{}
	if len(entry.Forward) == 0 {
		m.mu.Unlock()
		return
	}
	m.push(entry)
	m.redo = nil
	m.notifyLocked()
	m.mu.Unlock()
}

// push appends entry to the undo stack, evicting the oldest entry if
// the cap is exceeded.
func (m *Manager) push(entry Entry) {
	m.undo = append(m.undo, entry)
	if len(m.undo) > m.cap {
		m.undo = m.undo[len(m.undo)-m.cap:]
	}
}

// Undo pops the undo stack, pushes to redo, and returns the inverse ops
// to apply (nil if the undo stack is empty).
func (m *Manager) Undo() []crdt.Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.undo) == 0 {
		return nil
	}
	entry := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	m.redo = append(m.redo, entry)
	m.notifyLocked()
	return entry.Inverse
}

// Redo pops the redo stack, pushes to undo, and returns the forward ops
// to re-apply (nil if the redo stack is empty).
func (m *Manager) Redo() []crdt.Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.redo) == 0 {
		return nil
	}
	entry := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	m.undo = append(m.undo, entry)
	m.notifyLocked()
	return entry.Forward
}

// Pause suppresses Record while remote ops are being applied locally.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Resume lifts the Pause guard.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
}

// Clear empties both stacks.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.undo = nil
	m.redo = nil
	m.notifyLocked()
	m.mu.Unlock()
}

// CanUndo reports whether Undo would return a non-nil entry.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo) > 0
}

// CanRedo reports whether Redo would return a non-nil entry.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo) > 0
}
