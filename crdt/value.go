package crdt

// Kind tags the variant a Value holds, written explicitly on the wire
// so a dynamic value shape round-trips without ambiguity.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindNull   Kind = "null"
	KindBytes  Kind = "bytes"
	KindNode   Kind = "node"
)

// Value is a tagged variant holding exactly one of: a primitive
// (string/number/bool/null), an opaque bytes blob (used by clients that
// embed an external sequence CRDT as an opaque byte array this core
// does not interpret), or a nested CRDT node (Record/Map/List).
type Value struct {
	Kind  Kind
	Str   string
	Num   float64
	Bool  bool
	Bytes []byte
	Node  Node
}

// String constructs a string-kinded Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number constructs a number-kinded Value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Bool constructs a bool-kinded Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Null returns the null-kinded Value.
func Null() Value { return Value{Kind: KindNull} }

// BytesValue constructs a bytes-kinded Value, for opaque embedded
// payloads such as a rich-text CRDT's own serialized state.
func BytesValue(b []byte) Value { return Value{Kind: KindBytes, Bytes: append([]byte(nil), b...)} }

// NodeValue wraps a nested CRDT node as a Value.
func NodeValue(n Node) Value { return Value{Kind: KindNode, Node: n} }

// IsNode reports whether this Value wraps a nested node.
func (v Value) IsNode() bool { return v.Kind == KindNode && v.Node != nil }
