package crdt

import "fmt"

// OpKind enumerates the wire op set.
type OpKind string

const (
	OpSet        OpKind = "set"
	OpDelete     OpKind = "delete"
	OpListInsert OpKind = "list-insert"
	OpListDelete OpKind = "list-delete"
	OpListMove   OpKind = "list-move"
)

// Op is the wire representation of a single CRDT mutation. Clock here
// is the *client-supplied* clock — the LWW authority used to compare
// against existing state. The room
// additionally stamps a separate, freshly-ticked room clock onto the
// outbound broadcast; that value never appears on this struct, it is
// carried alongside by the room engine (see room.Room.IngestOps, which
// puts it on the outbound storage:ops envelope). Origin is
// the id of the connection that produced Clock; it only matters when
// two ops tie on Clock, in which case the lexicographically greater
// Origin wins so every replica resolves the tie identically regardless
// of arrival order.
type Op struct {
	Kind       OpKind   `json:"kind"`
	Path       []string `json:"path"`
	Key        string   `json:"key,omitempty"`      // set, delete: field/key name
	Position   string   `json:"position,omitempty"` // list-insert, list-delete: target position; list-move: source position
	ToPosition string   `json:"to_position,omitempty"` // list-move: destination position
	Value      Value    `json:"value,omitempty"`      // set, list-insert, list-move
	Clock      uint64   `json:"clock"`
	Origin     string   `json:"origin,omitempty"`
}

// Apply applies op to tree, returning the inverse op for undo (nil if
// there is no meaningful inverse) and an error if the op was dropped.
// Dropped ops (stale clock, unknown path, schema violation) are not
// fatal to the connection — callers log and continue.
func (t *Tree) Apply(op Op) (*Op, error) {
	if op.Clock == 0 {
		return nil, fmt.Errorf("%w: non-positive clock", ErrStaleClock)
	}

	node, err := t.resolve(op.Path)
	if err != nil {
		return nil, err
	}

	inverse, err := t.applyTo(node, op)
	if err != nil {
		return nil, err
	}

	t.clock.Merge(op.Clock)
	t.notifyTouched([]NodeID{node.ID()})
	return inverse, nil
}

func (t *Tree) applyTo(node Node, op Op) (*Op, error) {
	switch op.Kind {
	case OpSet:
		kn, ok := asKeyed(node)
		if !ok {
			return nil, fmt.Errorf("%w: set requires a Record or Map", ErrSchemaViolation)
		}
		if op.Value.IsNode() {
			op.Value.Node = t.graft(op.Value.Node, kn.ID())
		}
		prior, existed, accepted := kn.applySet(op.Key, op.Value, op.Clock, op.Origin)
		if !accepted {
			return nil, ErrStaleClock
		}
		if existed {
			return &Op{Kind: OpSet, Path: op.Path, Key: op.Key, Value: prior.Value, Clock: prior.Clock, Origin: prior.Origin}, nil
		}
		return &Op{Kind: OpDelete, Path: op.Path, Key: op.Key, Clock: 0}, nil

	case OpDelete:
		kn, ok := asKeyed(node)
		if !ok {
			return nil, fmt.Errorf("%w: delete requires a Record or Map", ErrSchemaViolation)
		}
		prior, existed, accepted := kn.applyDelete(op.Key, op.Clock, op.Origin)
		if !accepted {
			if !existed {
				return nil, nil
			}
			return nil, ErrStaleClock
		}
		if !existed {
			return nil, nil
		}
		return &Op{Kind: OpSet, Path: op.Path, Key: op.Key, Value: prior.Value, Clock: prior.Clock, Origin: prior.Origin}, nil

	case OpListInsert:
		list, ok := node.(*List)
		if !ok {
			return nil, fmt.Errorf("%w: list-insert requires a List", ErrSchemaViolation)
		}
		if op.Value.IsNode() {
			op.Value.Node = t.graft(op.Value.Node, list.ID())
		}
		_, _, accepted := list.applyInsert(op.Position, op.Value, op.Clock, op.Origin)
		if !accepted {
			return nil, ErrStaleClock
		}
		return &Op{Kind: OpListDelete, Path: op.Path, Position: op.Position, Clock: op.Clock, Origin: op.Origin}, nil

	case OpListDelete:
		list, ok := node.(*List)
		if !ok {
			return nil, fmt.Errorf("%w: list-delete requires a List", ErrSchemaViolation)
		}
		prior, existed, accepted := list.applyDelete(op.Position, op.Clock, op.Origin)
		if !accepted {
			if !existed {
				return nil, nil
			}
			return nil, ErrStaleClock
		}
		if !existed {
			return nil, nil
		}
		return &Op{Kind: OpListInsert, Path: op.Path, Position: op.Position, Value: prior.Value, Clock: prior.Clock, Origin: prior.Origin}, nil

	case OpListMove:
		list, ok := node.(*List)
		if !ok {
			return nil, fmt.Errorf("%w: list-move requires a List", ErrSchemaViolation)
		}
		val, moved := list.applyMove(op.Position, op.ToPosition, op.Clock, op.Origin)
		if !moved {
			// Drop the move, leave both positions unchanged (covers a
			// tombstoned source and a destination whose clock/origin
			// would reject the insert half).
			return nil, nil
		}
		return &Op{
			Kind:       OpListMove,
			Path:       op.Path,
			Position:   op.ToPosition,
			ToPosition: op.Position,
			Value:      val,
			Clock:      op.Clock,
			Origin:     op.Origin,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown op kind %q", ErrSchemaViolation, op.Kind)
	}
}

func asKeyed(n Node) (*keyedNode, bool) {
	switch v := n.(type) {
	case *Record:
		return v.keyedNode, true
	case *Map:
		return v.keyedNode, true
	default:
		return nil, false
	}
}
