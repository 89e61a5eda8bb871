package filter_test

import (
	"testing"

	"github.com/malbeclabs/pingpong-bench/pkg/payload"
	"github.com/malbeclabs/pingpong-bench/pkg/pp/xdp/filter"
	"github.com/stretchr/testify/require"
)

func buildFrame(etherType uint16, p payload.Payload, valid bool) []byte {
	frame := make([]byte, 14+20+payload.Size)
	frame[12] = byte(etherType >> 8)
	frame[13] = byte(etherType)
	body := p.Serialize()
	if !valid {
		body[payload.Size-1] = 0 // corrupt the magic
	}
	copy(frame[34:], body[:])
	return frame
}

func TestAccept_ValidFrame(t *testing.T) {
	frame := buildFrame(filter.EtherType, payload.New(1), true)
	require.True(t, filter.Accept(frame))
}

func TestAccept_RejectsWrongEtherType(t *testing.T) {
	frame := buildFrame(0x0800, payload.New(1), true)
	require.False(t, filter.Accept(frame))
}

func TestAccept_RejectsInvalidPayload(t *testing.T) {
	frame := buildFrame(filter.EtherType, payload.New(1), false)
	require.False(t, filter.Accept(frame))
}

func TestAccept_RejectsShortFrame(t *testing.T) {
	require.False(t, filter.Accept(make([]byte, 10)))
}

func FuzzAccept_NeverPanics(f *testing.F) {
	f.Add(buildFrame(filter.EtherType, payload.New(1), true))
	f.Add([]byte{})
	f.Fuzz(func(t *testing.T, frame []byte) {
		filter.Accept(frame)
	})
}
