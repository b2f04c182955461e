package crdt

import (
	"testing"

	"github.com/Polqt/crdtcollab/clock"
	"github.com/stretchr/testify/require"
)

func newTestTree() *Tree {
	return NewTree(clock.New())
}

// Concurrent set ops on the same field: a strictly higher clock always
// wins.
func Test_Set_LWW_HigherClockWins(t *testing.T) {
	tree := newTestTree()

	_, err := tree.Apply(Op{Kind: OpSet, Key: "counter", Value: Number(5), Clock: 1, Origin: "a"})
	require.NoError(t, err)

	_, err = tree.Apply(Op{Kind: OpSet, Key: "counter", Value: Number(9), Clock: 2, Origin: "a"})
	require.NoError(t, err)

	e, ok := tree.Root().Get("counter")
	require.True(t, ok)
	require.Equal(t, 9.0, e.Value.Num)
}

// Concurrent set ops that tie on clock converge to the same value
// regardless of which one is applied first: the lexicographically
// greater origin wins.
func Test_Set_LWW_EqualClock_OriginTieBreak_OrderIndependent(t *testing.T) {
	opA := Op{Kind: OpSet, Key: "counter", Value: Number(5), Clock: 1, Origin: "connA"}
	opB := Op{Kind: OpSet, Key: "counter", Value: Number(7), Clock: 1, Origin: "connB"}

	t1 := newTestTree()
	_, err := t1.Apply(opA)
	require.NoError(t, err)
	_, err = t1.Apply(opB)
	require.NoError(t, err, "higher origin at an equal clock must still win")

	t2 := newTestTree()
	_, err = t2.Apply(opB)
	require.NoError(t, err)
	_, err = t2.Apply(opA)
	require.Error(t, err, "lower origin at an equal clock must not overwrite")

	e1, _ := t1.Root().Get("counter")
	e2, _ := t2.Root().Get("counter")
	require.Equal(t, 7.0, e1.Value.Num)
	require.Equal(t, 7.0, e2.Value.Num)
}

// Testable property 3: clock monotone.
func Test_FieldClock_EqualsMaxAcceptedClock(t *testing.T) {
	tree := newTestTree()
	clocks := []uint64{3, 1, 5, 2, 5}
	for _, c := range clocks {
		tree.Apply(Op{Kind: OpSet, Key: "x", Value: Number(float64(c)), Clock: c})
	}
	e, _ := tree.Root().Get("x")
	require.Equal(t, uint64(5), e.Clock)
}

// Testable property 2: idempotence.
func Test_Apply_Idempotent(t *testing.T) {
	tree := newTestTree()
	op := Op{Kind: OpSet, Key: "a", Value: String("hello"), Clock: 4}

	_, err := tree.Apply(op)
	require.NoError(t, err)
	before, _ := tree.Serialize()

	_, err = tree.Apply(op)
	require.Error(t, err)
	after, _ := tree.Serialize()

	require.JSONEq(t, string(before), string(after))
}

// Testable property 1: convergence — two permutations of the same op
// multiset converge to equal serialized state.
func Test_Convergence_OrderIndependent(t *testing.T) {
	ops := []Op{
		{Kind: OpSet, Key: "a", Value: Number(1), Clock: 1},
		{Kind: OpSet, Key: "b", Value: Number(2), Clock: 1},
		{Kind: OpSet, Key: "a", Value: Number(10), Clock: 5},
		{Kind: OpDelete, Key: "b", Clock: 6},
	}

	t1 := newTestTree()
	for _, op := range ops {
		t1.Apply(op)
	}

	reordered := []Op{ops[2], ops[0], ops[3], ops[1]}
	t2 := newTestTree()
	for _, op := range reordered {
		t2.Apply(op)
	}

	s1, _ := t1.Serialize()
	s2, _ := t2.Serialize()
	require.JSONEq(t, string(s1), string(s2))
}

// Testable property 10 / tombstone LWW sequence.
func Test_Tombstone_LWW_Sequence(t *testing.T) {
	tree := newTestTree()

	_, err := tree.Apply(Op{Kind: OpSet, Key: "f", Value: String("v1"), Clock: 10})
	require.NoError(t, err)

	_, err = tree.Apply(Op{Kind: OpDelete, Key: "f", Clock: 11})
	require.NoError(t, err)

	e, ok := tree.Root().Get("f")
	require.True(t, ok)
	require.True(t, e.Tombstone)
	require.Equal(t, uint64(11), e.Clock)

	// Stale set (clock 9 < 11) is rejected; field stays tombstoned.
	_, err = tree.Apply(Op{Kind: OpSet, Key: "f", Value: String("stale"), Clock: 9})
	require.Error(t, err)
	e, _ = tree.Root().Get("f")
	require.True(t, e.Tombstone)

	// Newer set (clock 12 > 11) revives the field.
	_, err = tree.Apply(Op{Kind: OpSet, Key: "f", Value: String("v2"), Clock: 12})
	require.NoError(t, err)
	e, _ = tree.Root().Get("f")
	require.False(t, e.Tombstone)
	require.Equal(t, "v2", e.Value.Str)
}

// Scenario S5: pre-seeded list, list-delete, then a stale list-insert
// at the same (now-tombstoned) position is dropped.
func Test_Scenario_S5_StaleListInsertAfterDelete(t *testing.T) {
	tree := newTestTree()
	items := NewList("")
	items.applyInsert("a0", String("x"), 1, "seed")
	items.applyInsert("a1", String("y"), 1, "seed")
	root := NewRecord("")
	root.fields["items"] = FieldEntry{Value: NodeValue(items), Clock: 1}
	tree.Seed(root)

	_, err := tree.Apply(Op{Kind: OpListDelete, Path: []string{"items"}, Position: "a0", Clock: 99})
	require.NoError(t, err)

	_, err = tree.Apply(Op{Kind: OpListInsert, Path: []string{"items"}, Position: "a0", Value: String("z"), Clock: 50})
	require.Error(t, err)

	list := mustListAt(t, tree, "items")
	e, ok := list.get("a0")
	require.True(t, ok)
	require.True(t, e.Tombstone)
	require.Equal(t, uint64(99), e.Clock)
}

func Test_ListInsert_And_Delete(t *testing.T) {
	tree := newTestTree()
	root := NewRecord("")
	root.fields["xs"] = FieldEntry{Value: NodeValue(NewList("")), Clock: 1}
	tree.Seed(root)

	_, err := tree.Apply(Op{Kind: OpListInsert, Path: []string{"xs"}, Position: "m", Value: String("mid"), Clock: 1})
	require.NoError(t, err)

	inv, err := tree.Apply(Op{Kind: OpListDelete, Path: []string{"xs"}, Position: "m", Clock: 2})
	require.NoError(t, err)
	require.Equal(t, OpListInsert, inv.Kind)
	require.Equal(t, "mid", inv.Value.Str)
}

func Test_ListMove_Basic(t *testing.T) {
	tree := newTestTree()
	list := NewList("")
	list.applyInsert("a", String("A"), 1, "seed")
	list.applyInsert("b", String("B"), 1, "seed")
	root := NewRecord("")
	root.fields["xs"] = FieldEntry{Value: NodeValue(list), Clock: 1}
	tree.Seed(root)

	inv, err := tree.Apply(Op{Kind: OpListMove, Path: []string{"xs"}, Position: "a", ToPosition: "c", Clock: 5})
	require.NoError(t, err)
	require.Equal(t, OpListMove, inv.Kind)
	require.Equal(t, "c", inv.Position)
	require.Equal(t, "a", inv.ToPosition)

	l := mustListAt(t, tree, "xs")
	_, ok := l.get("c")
	require.True(t, ok)
	old, ok := l.get("a")
	require.True(t, ok)
	require.True(t, old.Tombstone)
}

func Test_ListMove_TombstonedSource_IsDropped(t *testing.T) {
	tree := newTestTree()
	list := NewList("")
	list.applyInsert("a", String("A"), 1, "seed")
	list.applyDelete("a", 2, "seed")
	root := NewRecord("")
	root.fields["xs"] = FieldEntry{Value: NodeValue(list), Clock: 2}
	tree.Seed(root)

	inv, err := tree.Apply(Op{Kind: OpListMove, Path: []string{"xs"}, Position: "a", ToPosition: "z", Clock: 5})
	require.NoError(t, err)
	require.Nil(t, inv)

	l := mustListAt(t, tree, "xs")
	_, ok := l.get("z")
	require.False(t, ok)
}

func Test_Apply_UnknownPath_Dropped(t *testing.T) {
	tree := newTestTree()
	_, err := tree.Apply(Op{Kind: OpSet, Path: []string{"missing"}, Key: "x", Value: Number(1), Clock: 1})
	require.ErrorIs(t, err, ErrUnknownPath)
}

func Test_Apply_NonPositiveClock_Dropped(t *testing.T) {
	tree := newTestTree()
	_, err := tree.Apply(Op{Kind: OpSet, Key: "x", Value: Number(1), Clock: 0})
	require.ErrorIs(t, err, ErrStaleClock)
}

func mustListAt(t *testing.T, tree *Tree, key string) *List {
	t.Helper()
	e, ok := tree.Root().Get(key)
	require.True(t, ok)
	require.True(t, e.Value.IsNode())
	l, ok := e.Value.Node.(*List)
	require.True(t, ok)
	return l
}
