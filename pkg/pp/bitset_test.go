package pp_test

import (
	"sync"
	"testing"

	"github.com/malbeclabs/pingpong-bench/pkg/pp"
	"github.com/stretchr/testify/require"
)

func TestBitset_SetClearTest(t *testing.T) {
	bs := pp.NewBitset(128)
	for _, bit := range []int{0, 1, 31, 32, 63, 127} {
		require.False(t, bs.Test(bit))
		bs.Set(bit)
		require.True(t, bs.Test(bit))
		bs.Clear(bit)
		require.False(t, bs.Test(bit))
	}
}

func TestBitset_IndependentBits(t *testing.T) {
	bs := pp.NewBitset(128)
	bs.Set(5)
	bs.Set(37)
	require.True(t, bs.Test(5))
	require.True(t, bs.Test(37))
	bs.Clear(5)
	require.False(t, bs.Test(5))
	require.True(t, bs.Test(37))
}

func TestBitset_ConcurrentDisjointSlots(t *testing.T) {
	const n = 128
	bs := pp.NewBitset(n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(bit int) {
			defer wg.Done()
			bs.Set(bit)
			require.True(t, bs.Test(bit))
			bs.Clear(bit)
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		require.False(t, bs.Test(i))
	}
}

func FuzzBitset_SetClear(f *testing.F) {
	f.Add(0)
	f.Add(127)
	f.Fuzz(func(t *testing.T, bit int) {
		if bit < 0 {
			bit = -bit
		}
		bit %= 128
		bs := pp.NewBitset(128)
		bs.Set(bit)
		if !bs.Test(bit) {
			t.Fatalf("bit %d not set", bit)
		}
		bs.Clear(bit)
		if bs.Test(bit) {
			t.Fatalf("bit %d still set", bit)
		}
	})
}
