package fracindex_test

import (
	"testing"

	"github.com/Polqt/crdtcollab/fracindex"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func Test_Between_BothNil_ReturnsCanonicalMidpoint(t *testing.T) {
	k, err := fracindex.Between(nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, k)
}

func Test_Between_StrictlyBetween(t *testing.T) {
	a, b := "a0", "a1"
	k, err := fracindex.Between(&a, &b)
	require.NoError(t, err)
	require.Greater(t, k, a)
	require.Less(t, k, b)
}

func Test_Between_OpenLeft(t *testing.T) {
	b := "m"
	k, err := fracindex.Between(nil, &b)
	require.NoError(t, err)
	require.Less(t, k, b)
}

func Test_Between_OpenRight(t *testing.T) {
	a := "m"
	k, err := fracindex.Between(&a, nil)
	require.NoError(t, err)
	require.Greater(t, k, a)
}

func Test_Between_AdjacentDigitsExtendsKey(t *testing.T) {
	a, b := "0", "1"
	k, err := fracindex.Between(&a, &b)
	require.NoError(t, err)
	require.Greater(t, k, a)
	require.Less(t, k, b)
	require.Greater(t, len(k), 1)
}

func Test_Between_RejectsOutOfOrderEndpoints(t *testing.T) {
	a, b := "b", "a"
	_, err := fracindex.Between(&a, &b)
	require.Error(t, err)
}

// Density: iterated generation between a and the previous result
// converges without error for many iterations at a shared gap (spec
// testable property #4).
func Test_Density_ManyIterationsAtSharedGap(t *testing.T) {
	a, b := "a0", "a1"
	lo := &a
	prev := a
	for i := 0; i < 1000; i++ {
		k, err := fracindex.Between(lo, &b)
		require.NoError(t, err, "iteration %d", i)
		require.Greater(t, k, prev)
		require.Less(t, k, b)
		prev = k
		lo = &prev
	}
}

func Test_NBetween_ReturnsSortedDistinctKeys(t *testing.T) {
	a, b := "a", "b"
	keys, err := fracindex.NBetween(&a, &b, 5)
	require.NoError(t, err)
	require.Len(t, keys, 5)
	for i := 1; i < len(keys); i++ {
		require.Less(t, keys[i-1], keys[i])
	}
}

func Test_DistinctCallersProduceDistinctKeys(t *testing.T) {
	a, b := "a0", "a1"
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		k, err := fracindex.Between(&a, &b)
		require.NoError(t, err)
		seen[k] = true
	}
	// Randomness should yield more than one distinct result across 50 draws.
	require.Greater(t, len(seen), 1)
}
