// Package payload implements the 48-byte ping-pong wire record shared by
// every transport backend.
package payload

import "encoding/binary"

// Size is the fixed on-wire length of a Payload.
const Size = 48

// Magic is the fixed sentinel that marks a payload as well-formed.
const Magic = 0x8BADBEEF

// Phase markers.
const (
	PhaseClientFresh   = 0
	PhaseServerReplied = 2
)

// Payload is the ping-pong record carried inside every datapath:
// UDP, RDMA RC/UD, and AF_XDP.
//
//	[id u64][ts u64x4][phase u32][magic u32]
type Payload struct {
	ID    uint64
	TS    [4]uint64 // t0 (client send), t1 (server recv), t2 (server send), t3 (client recv)
	Phase uint32
	Magic uint32
}

// New returns a fresh, client-side payload for the given 1-based id.
func New(id uint64) Payload {
	return Payload{ID: id, Phase: PhaseClientFresh, Magic: Magic}
}

// IsValid reports whether the payload carries the expected magic sentinel.
func (p Payload) IsValid() bool {
	return p.Magic == Magic
}

// ComputeLatency returns the one-way-corrected round-trip latency in
// nanoseconds. Callers must only call this once all four timestamps are
// populated.
func (p Payload) ComputeLatency() uint64 {
	return ((p.TS[3] - p.TS[0]) - (p.TS[2] - p.TS[1])) / 2
}

// Serialize writes the little-endian wire representation of p.
func (p Payload) Serialize() [Size]byte {
	var buf [Size]byte
	binary.LittleEndian.PutUint64(buf[0:8], p.ID)
	binary.LittleEndian.PutUint64(buf[8:16], p.TS[0])
	binary.LittleEndian.PutUint64(buf[16:24], p.TS[1])
	binary.LittleEndian.PutUint64(buf[24:32], p.TS[2])
	binary.LittleEndian.PutUint64(buf[32:40], p.TS[3])
	binary.LittleEndian.PutUint32(buf[40:44], p.Phase)
	binary.LittleEndian.PutUint32(buf[44:48], p.Magic)
	return buf
}

// Deserialize is the exact inverse of Serialize. buf must be at least Size
// bytes; only the first Size bytes are read.
func Deserialize(buf []byte) Payload {
	var p Payload
	_ = buf[:Size] // bounds check hint, panics like the rest of this package's siblings if short
	p.ID = binary.LittleEndian.Uint64(buf[0:8])
	p.TS[0] = binary.LittleEndian.Uint64(buf[8:16])
	p.TS[1] = binary.LittleEndian.Uint64(buf[16:24])
	p.TS[2] = binary.LittleEndian.Uint64(buf[24:32])
	p.TS[3] = binary.LittleEndian.Uint64(buf[32:40])
	p.Phase = binary.LittleEndian.Uint32(buf[40:44])
	p.Magic = binary.LittleEndian.Uint32(buf[44:48])
	return p
}

// Monotonic reports whether every ts[i] in next is >= the corresponding
// ts[i] in prev, as required across successive payloads observed on the
// same endpoint. It returns the index of the first violation, or -1 if
// none.
func Monotonic(prev, next Payload) int {
	for i := range next.TS {
		if next.TS[i] < prev.TS[i] {
			return i
		}
	}
	return -1
}
