package crdt

import (
	"encoding/json"
	"testing"

	"github.com/Polqt/crdtcollab/clock"
	"github.com/stretchr/testify/require"
)

func Test_SerializeNode_RoundTrip(t *testing.T) {
	list := NewList("")
	list.applyInsert("a0", String("x"), 1, "")
	list.applyInsert("a1", Number(42), 2, "")

	root := NewRecord("")
	root.fields["title"] = FieldEntry{Value: String("doc"), Clock: 1}
	root.fields["items"] = FieldEntry{Value: NodeValue(list), Clock: 1}
	root.fields["gone"] = FieldEntry{Value: String("was here"), Clock: 2, Tombstone: true}

	data, err := SerializeNode(root)
	require.NoError(t, err)

	back, err := DeserializeNode(data)
	require.NoError(t, err)

	reRecord, ok := back.(*Record)
	require.True(t, ok)

	e, ok := reRecord.Get("title")
	require.True(t, ok)
	require.Equal(t, "doc", e.Value.Str)

	gone, ok := reRecord.rawEntries()["gone"]
	require.True(t, ok)
	require.True(t, gone.Tombstone)
	require.Equal(t, uint64(2), gone.Clock)

	itemsEntry, ok := reRecord.Get("items")
	require.True(t, ok)
	require.True(t, itemsEntry.Value.IsNode())
	reList, ok := itemsEntry.Value.Node.(*List)
	require.True(t, ok)
	ordered := reList.Ordered()
	require.Len(t, ordered, 2)
	require.Equal(t, "a0", ordered[0].Position)
}

// Testable property 9: late-joiner consistency — a client attaching
// after N ops receives a snapshot equal (by serialization) to applying
// those ops from empty.
func Test_LateJoiner_SnapshotEqualsReplay(t *testing.T) {
	ops := []Op{
		{Kind: OpSet, Key: "a", Value: Number(1), Clock: 1},
		{Kind: OpSet, Key: "b", Value: String("x"), Clock: 2},
		{Kind: OpDelete, Key: "a", Clock: 3},
	}

	live := NewTree(clock.New())
	for _, op := range ops {
		_, err := live.Apply(op)
		require.NoError(t, err)
	}
	snapshot, err := live.Serialize()
	require.NoError(t, err)

	replay := NewTree(clock.New())
	for _, op := range ops {
		_, err := replay.Apply(op)
		require.NoError(t, err)
	}
	replayed, err := replay.Serialize()
	require.NoError(t, err)

	require.JSONEq(t, string(snapshot), string(replayed))
}

func Test_Value_JSON_RoundTrip(t *testing.T) {
	values := []Value{
		String("hello"),
		Number(3.14),
		Bool(true),
		Null(),
		BytesValue([]byte{1, 2, 3}),
	}
	for _, v := range values {
		data, err := json.Marshal(v)
		require.NoError(t, err)

		var back Value
		require.NoError(t, json.Unmarshal(data, &back))
		require.Equal(t, v, back)
	}
}

func Test_Op_JSON_RoundTrip(t *testing.T) {
	op := Op{Kind: OpSet, Path: []string{"a", "b"}, Key: "k", Value: String("v"), Clock: 7}
	data, err := json.Marshal(op)
	require.NoError(t, err)

	var back Op
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, op, back)
}
