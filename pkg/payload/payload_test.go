package payload_test

import (
	"testing"

	"github.com/malbeclabs/pingpong-bench/pkg/payload"
	"github.com/stretchr/testify/require"
)

func TestPayload_New(t *testing.T) {
	p := payload.New(7)
	require.Equal(t, uint64(7), p.ID)
	require.Equal(t, [4]uint64{0, 0, 0, 0}, p.TS)
	require.Equal(t, uint32(payload.PhaseClientFresh), p.Phase)
	require.True(t, p.IsValid())
}

func TestPayload_SerializeDeserialize_RoundTrip(t *testing.T) {
	p := payload.Payload{ID: 12345, TS: [4]uint64{1, 2, 3, 4}, Phase: payload.PhaseServerReplied, Magic: payload.Magic}
	buf := p.Serialize()
	require.Len(t, buf, payload.Size)

	got := payload.Deserialize(buf[:])
	require.Equal(t, p, got)
}

func TestPayload_IsValid(t *testing.T) {
	p := payload.New(1)
	require.True(t, p.IsValid())

	p.Magic ^= 0x1
	require.False(t, p.IsValid())
}

func TestPayload_ComputeLatency(t *testing.T) {
	p := payload.Payload{TS: [4]uint64{0, 100, 200, 300}}
	require.Equal(t, uint64(100), p.ComputeLatency())
}

func TestPayload_ComputeLatency_NonNegativeForOrderedTimestamps(t *testing.T) {
	cases := []payload.Payload{
		{TS: [4]uint64{0, 0, 0, 0}},
		{TS: [4]uint64{0, 5, 5, 10}},
		{TS: [4]uint64{10, 20, 30, 1000}},
	}
	for _, p := range cases {
		want := ((p.TS[3] - p.TS[0]) - (p.TS[2] - p.TS[1])) / 2
		require.Equal(t, want, p.ComputeLatency())
	}
}

func TestPayload_Monotonic(t *testing.T) {
	prev := payload.Payload{TS: [4]uint64{10, 10, 10, 10}}
	next := payload.Payload{TS: [4]uint64{11, 10, 10, 10}}
	require.Equal(t, -1, payload.Monotonic(prev, next))

	regressed := payload.Payload{TS: [4]uint64{9, 10, 10, 10}}
	require.Equal(t, 0, payload.Monotonic(prev, regressed))
}

func FuzzPayload_SerializeDeserialize_RoundTrip(f *testing.F) {
	f.Add(uint64(1), uint64(0), uint64(0), uint64(0), uint64(0), uint32(0), uint32(payload.Magic))
	f.Fuzz(func(t *testing.T, id, t0, t1, t2, t3 uint64, phase, magic uint32) {
		p := payload.Payload{ID: id, TS: [4]uint64{t0, t1, t2, t3}, Phase: phase, Magic: magic}
		buf := p.Serialize()
		got := payload.Deserialize(buf[:])
		if got != p {
			t.Fatalf("round-trip mismatch: got %+v want %+v", got, p)
		}
	})
}
