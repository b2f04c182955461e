package crdt

import (
	"encoding/json"
	"sort"
)

// wireValue is the JSON-compatible tagged-variant encoding of a Value,
// writing the kind tag explicitly so an arbitrary dynamic value shape
// round-trips without ambiguity.
type wireValue struct {
	Kind  Kind      `json:"kind"`
	Str   string    `json:"str,omitempty"`
	Num   float64   `json:"num,omitempty"`
	Bool  bool      `json:"bool,omitempty"`
	Bytes []byte    `json:"bytes,omitempty"`
	Node  *wireNode `json:"node,omitempty"`
}

// wireEntry is one (key|position, {value, clock, origin, tombstone?})
// slot.
type wireEntry struct {
	Key       string    `json:"key,omitempty"`
	Position  string    `json:"position,omitempty"`
	Value     wireValue `json:"value"`
	Clock     uint64    `json:"clock"`
	Origin    string    `json:"origin,omitempty"`
	Tombstone bool      `json:"tombstone,omitempty"`
}

// wireNode is the self-describing tagged-record wire encoding of a
// node: {kind, entries: [...]}. Nodes have no cross-tree identity, so
// no id travels on the wire — a fresh NodeID is minted whenever a
// wireNode is grafted into a tree's arena.
type wireNode struct {
	Kind    NodeKind    `json:"kind"`
	Entries []wireEntry `json:"entries"`
}

func valueToWire(v Value) wireValue {
	wv := wireValue{Kind: v.Kind, Str: v.Str, Num: v.Num, Bool: v.Bool, Bytes: v.Bytes}
	if v.IsNode() {
		n := nodeToWire(v.Node)
		wv.Node = &n
	}
	return wv
}

func wireToValue(wv wireValue) Value {
	v := Value{Kind: wv.Kind, Str: wv.Str, Num: wv.Num, Bool: wv.Bool, Bytes: wv.Bytes}
	if wv.Node != nil {
		v.Node = wireToNode(*wv.Node)
	}
	return v
}

func nodeToWire(n Node) wireNode {
	switch v := n.(type) {
	case *Record:
		return keyedToWire(RecordKind, v.rawEntries())
	case *Map:
		return keyedToWire(MapKind, v.rawEntries())
	case *List:
		entries := make([]wireEntry, 0)
		for _, e := range v.rawEntries() {
			entries = append(entries, wireEntry{
				Position:  e.Position,
				Value:     valueToWire(e.Value),
				Clock:     e.Clock,
				Origin:    e.Origin,
				Tombstone: e.Tombstone,
			})
		}
		return wireNode{Kind: ListKind, Entries: entries}
	default:
		return wireNode{}
	}
}

func keyedToWire(kind NodeKind, raw map[string]FieldEntry) wireNode {
	// Entries are written sorted by key so equal nodes serialize to
	// equal bytes.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]wireEntry, 0, len(raw))
	for _, k := range keys {
		e := raw[k]
		entries = append(entries, wireEntry{
			Key:       k,
			Value:     valueToWire(e.Value),
			Clock:     e.Clock,
			Origin:    e.Origin,
			Tombstone: e.Tombstone,
		})
	}
	return wireNode{Kind: kind, Entries: entries}
}

// wireToNode reconstructs a detached (unregistered, arena-less) node
// tree from wire format. Callers must graft the result into a Tree
// before use.
func wireToNode(wn wireNode) Node {
	switch wn.Kind {
	case RecordKind:
		n := NewRecord("")
		for _, e := range wn.Entries {
			n.fields[e.Key] = FieldEntry{Value: wireToValue(e.Value), Clock: e.Clock, Origin: e.Origin, Tombstone: e.Tombstone}
		}
		return n
	case MapKind:
		n := NewMap("")
		for _, e := range wn.Entries {
			n.fields[e.Key] = FieldEntry{Value: wireToValue(e.Value), Clock: e.Clock, Origin: e.Origin, Tombstone: e.Tombstone}
		}
		return n
	case ListKind:
		n := NewList("")
		for _, e := range wn.Entries {
			n.entries[e.Position] = ListEntry{Position: e.Position, Value: wireToValue(e.Value), Clock: e.Clock, Origin: e.Origin, Tombstone: e.Tombstone}
		}
		return n
	default:
		return NewRecord("")
	}
}

// SerializeNode losslessly encodes n as a self-describing JSON wire
// format.
func SerializeNode(n Node) ([]byte, error) {
	return json.Marshal(nodeToWire(n))
}

// DeserializeNode decodes data into a detached node tree. Callers graft
// it into a Tree (Tree.Seed for a root, or as a set/list-insert Value
// via NodeValue) before it participates in LWW.
func DeserializeNode(data []byte) (Node, error) {
	var wn wireNode
	if err := json.Unmarshal(data, &wn); err != nil {
		return nil, err
	}
	return wireToNode(wn), nil
}

// Serialize encodes the tree's current root, for snapshot persistence
// and late-joiner welcome payloads.
func (t *Tree) Serialize() ([]byte, error) {
	return SerializeNode(t.Root())
}

// MarshalJSON lets Value (and anything embedding it, such as Op)
// round-trip over wire envelopes using the same tagged-variant
// encoding as node serialization.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueToWire(v))
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var wv wireValue
	if err := json.Unmarshal(data, &wv); err != nil {
		return err
	}
	*v = wireToValue(wv)
	return nil
}
