package crdt

import (
	"fmt"
	"sync"

	"github.com/Polqt/crdtcollab/clock"
	"github.com/google/uuid"
)

// Tree is the arena owning every node of one room's CRDT document.
// Nodes never point at their parent document directly — emission and
// id allocation are owned here, and children hold only their parent's
// NodeID.
type Tree struct {
	mu     sync.RWMutex
	nodes  map[NodeID]Node
	root   NodeID
	clock  *clock.Clock
	subs   *subscriptionRegistry
}

// NewTree creates a tree rooted at an empty Record, merging clk as the
// owning room's logical clock.
func NewTree(clk *clock.Clock) *Tree {
	root := NewRecord(RootID)
	t := &Tree{
		nodes: map[NodeID]Node{RootID: root},
		root:  RootID,
		clock: clk,
		subs:  newSubscriptionRegistry(),
	}
	return t
}

// Root returns the tree's root Record.
func (t *Tree) Root() *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[t.root].(*Record)
}

// Subscribe registers cb on nodeID; see subscribe.go for semantics.
func (t *Tree) Subscribe(nodeID NodeID, deep bool, cb func()) (unsubscribe func()) {
	return t.subs.subscribe(nodeID, deep, cb)
}

func (t *Tree) newNodeID() NodeID {
	return NodeID(uuid.NewString())
}

// lookup returns the node for id, if present in the arena.
func (t *Tree) lookup(id NodeID) (Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

func (t *Tree) register(n Node, parent NodeID) {
	t.mu.Lock()
	n.setParent(parent)
	t.nodes[n.ID()] = n
	t.mu.Unlock()
}

// resolve walks path from the root, returning the node the path
// addresses (the root for an empty path). A path resolves
// segment-by-segment through Record/Map field values that are
// themselves nodes.
func (t *Tree) resolve(path []string) (Node, error) {
	cur, ok := t.lookup(t.root)
	if !ok {
		return nil, fmt.Errorf("%w: root missing", ErrSchemaViolation)
	}
	for _, seg := range path {
		switch n := cur.(type) {
		case *Record:
			e, ok := n.Get(seg)
			if !ok || e.Tombstone {
				return nil, fmt.Errorf("%w: path segment %q missing or tombstoned", ErrUnknownPath, seg)
			}
			if !e.Value.IsNode() {
				return nil, fmt.Errorf("%w: path segment %q is not a node", ErrSchemaViolation, seg)
			}
			cur = e.Value.Node
		case *Map:
			e, ok := n.Get(seg)
			if !ok || e.Tombstone {
				return nil, fmt.Errorf("%w: path segment %q missing or tombstoned", ErrUnknownPath, seg)
			}
			if !e.Value.IsNode() {
				return nil, fmt.Errorf("%w: path segment %q is not a node", ErrSchemaViolation, seg)
			}
			cur = e.Value.Node
		default:
			return nil, fmt.Errorf("%w: path segment %q addresses a non-container node", ErrSchemaViolation, seg)
		}
	}
	return cur, nil
}

// graft recursively registers a freshly-deserialized sub-tree into this
// arena, minting fresh NodeIDs (nodes have no cross-tree identity) and
// merging every internal clock into the room clock so the room clock
// always strictly exceeds every clock in the tree.
func (t *Tree) graft(n Node, parent NodeID) Node {
	switch v := n.(type) {
	case *Record:
		fresh := NewRecord(t.newNodeID())
		for k, e := range v.rawEntries() {
			t.clock.Merge(e.Clock)
			if e.Value.IsNode() {
				e.Value.Node = t.graft(e.Value.Node, fresh.ID())
			}
			fresh.fields[k] = e
		}
		t.register(fresh, parent)
		return fresh
	case *Map:
		fresh := NewMap(t.newNodeID())
		for k, e := range v.rawEntries() {
			t.clock.Merge(e.Clock)
			if e.Value.IsNode() {
				e.Value.Node = t.graft(e.Value.Node, fresh.ID())
			}
			fresh.fields[k] = e
		}
		t.register(fresh, parent)
		return fresh
	case *List:
		fresh := NewList(t.newNodeID())
		for _, e := range v.rawEntries() {
			t.clock.Merge(e.Clock)
			if e.Value.IsNode() {
				e.Value.Node = t.graft(e.Value.Node, fresh.ID())
			}
			fresh.entries[e.Position] = e
		}
		t.register(fresh, parent)
		return fresh
	default:
		return n
	}
}

// Seed grafts root's fields onto the tree's existing (empty) root,
// preserving the root's identity (used only once, on first-seed; see
// room.Room.Attach and room.Room.SeedFromClient for the "first seed
// wins" race rule).
func (t *Tree) Seed(root *Record) {
	existing := t.Root()
	for k, e := range root.rawEntries() {
		t.clock.Merge(e.Clock)
		if e.Value.IsNode() {
			e.Value.Node = t.graft(e.Value.Node, existing.ID())
		}
		existing.setRaw(k, e)
	}
	t.notifyTouched([]NodeID{t.root})
}

func (t *Tree) notifyTouched(touched []NodeID) {
	t.subs.notify(touched, t.parentChain)
}

// parentChain returns id's ancestor chain including id itself, root
// last, used by the subscription registry's batch-end walk-up.
func (t *Tree) parentChain(id NodeID) []NodeID {
	chain := []NodeID{id}
	cur, ok := t.lookup(id)
	for ok {
		pid, has := cur.parentID()
		if !has || pid == "" {
			break
		}
		chain = append(chain, pid)
		cur, ok = t.lookup(pid)
	}
	return chain
}
