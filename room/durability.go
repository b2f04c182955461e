package room

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Polqt/crdtcollab/clock"
	"github.com/Polqt/crdtcollab/crdt"
)

// Hook is the durability collaborator contract: an external system
// through which the room engine loads an initial snapshot and reports
// op batches and membership events for persistence. Hooks must never
// hold a room's lock; the room calls them only after releasing it.
type Hook interface {
	// InitialStorage returns a previously-saved serialized root for
	// roomID, or nil if none exists (the room starts fresh).
	InitialStorage(ctx context.Context, roomID RoomID) ([]byte, error)
	// OnOpsChange is called with a debounced batch of applied ops.
	// Implementations typically diff against their own snapshot.
	OnOpsChange(ctx context.Context, roomID RoomID, ops []crdt.Op) error
	OnJoin(ctx context.Context, roomID RoomID, userID string)
	OnLeave(ctx context.Context, roomID RoomID, userID string)
}

// NoopHook discards everything; useful for tests and for rooms that opt
// out of persistence entirely.
type NoopHook struct{}

func (NoopHook) InitialStorage(context.Context, RoomID) ([]byte, error) { return nil, nil }
func (NoopHook) OnOpsChange(context.Context, RoomID, []crdt.Op) error   { return nil }
func (NoopHook) OnJoin(context.Context, RoomID, string)                 {}
func (NoopHook) OnLeave(context.Context, RoomID, string)                {}

// FileHook is a default file-backed Hook: one JSON file per room under
// Dir, holding the latest serialized root. Since on_ops_change only
// receives an op batch (not a full snapshot), FileHook keeps an
// in-memory mirror tree per room and replays each batch into it before
// persisting, diffing against that snapshot rather than trusting the
// batch alone. The on-disk format is opaque to callers; a version
// mismatch or corruption on decode yields a nil InitialStorage result
// and the room starts fresh.
type FileHook struct {
	Dir string

	mu     sync.Mutex
	mirror map[RoomID]*crdt.Tree
}

// NewFileHook ensures Dir exists and returns a FileHook rooted there.
func NewFileHook(dir string) (*FileHook, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("room: create durability dir: %w", err)
	}
	return &FileHook{Dir: dir, mirror: make(map[RoomID]*crdt.Tree)}, nil
}

func (h *FileHook) path(roomID RoomID) string {
	return filepath.Join(h.Dir, string(roomID)+".json")
}

type fileHookRecord struct {
	Version int             `json:"version"`
	Root    json.RawMessage `json:"root,omitempty"`
}

const fileHookVersion = 1

func (h *FileHook) InitialStorage(_ context.Context, roomID RoomID) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := os.ReadFile(h.path(roomID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec fileHookRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.Version != fileHookVersion {
		// Version mismatch or corruption: start fresh.
		return nil, nil
	}

	node, err := crdt.DeserializeNode(rec.Root)
	if err != nil {
		return nil, nil
	}
	mirror := crdt.NewTree(clock.New())
	if root, ok := node.(*crdt.Record); ok {
		mirror.Seed(root)
	}
	h.mirror[roomID] = mirror
	return rec.Root, nil
}

func (h *FileHook) OnOpsChange(_ context.Context, roomID RoomID, ops []crdt.Op) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	mirror, ok := h.mirror[roomID]
	if !ok {
		mirror = crdt.NewTree(clock.New())
		h.mirror[roomID] = mirror
	}
	for _, op := range ops {
		mirror.Apply(op)
	}

	root, err := mirror.Serialize()
	if err != nil {
		return err
	}
	rec := fileHookRecord{Version: fileHookVersion, Root: root}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(h.path(roomID), data, 0o644)
}

func (h *FileHook) OnJoin(context.Context, RoomID, string)  {}
func (h *FileHook) OnLeave(context.Context, RoomID, string) {}
