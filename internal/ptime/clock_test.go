package ptime_test

import (
	"testing"
	"time"

	"github.com/malbeclabs/pingpong-bench/internal/ptime"
	"github.com/stretchr/testify/require"
)

func TestNowNS_Monotonic(t *testing.T) {
	a := ptime.NowNS()
	b := ptime.NowNS()
	require.LessOrEqual(t, a, b)
}

func TestSleep_Zero_ReturnsImmediately(t *testing.T) {
	start := time.Now()
	ptime.Sleep(0, 1_000_000)
	require.Less(t, time.Since(start), 5*time.Millisecond)
}

func TestSleep_ApproximatesRequestedDuration(t *testing.T) {
	const want = 5 * time.Millisecond
	start := time.Now()
	ptime.Sleep(uint64(want.Nanoseconds()), 1_000_000)
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, want-time.Millisecond)
	require.Less(t, elapsed, want+20*time.Millisecond)
}
