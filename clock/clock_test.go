package clock_test

import (
	"sync"
	"testing"

	"github.com/Polqt/crdtcollab/clock"
	"github.com/stretchr/testify/require"
)

func Test_Tick_Monotone(t *testing.T) {
	c := clock.New()
	require.Equal(t, uint64(1), c.Tick())
	require.Equal(t, uint64(2), c.Tick())
	require.Equal(t, uint64(3), c.Tick())
}

func Test_Merge_ExceedsIncoming(t *testing.T) {
	c := clock.New()
	c.Tick() // 1

	require.Equal(t, uint64(11), c.Merge(10))
	require.Greater(t, c.Peek(), uint64(10))
}

func Test_Merge_KeepsLocalLead(t *testing.T) {
	c := clock.New()
	for i := 0; i < 5; i++ {
		c.Tick()
	}
	require.Equal(t, uint64(6), c.Merge(2))
}

func Test_Clock_ConcurrentTicksAreUnique(t *testing.T) {
	c := clock.New()
	const n = 200
	seen := make(chan uint64, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			seen <- c.Tick()
		}()
	}
	wg.Wait()
	close(seen)

	values := make(map[uint64]bool, n)
	for v := range seen {
		require.False(t, values[v], "duplicate clock value %d", v)
		values[v] = true
	}
	require.Len(t, values, n)
}
