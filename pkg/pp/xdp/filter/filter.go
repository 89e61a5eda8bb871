// Package filter implements, as a plain Go predicate, the same
// accept/reject decision the kernel-side XDP program applies to every
// frame arriving on the measurement interface. Loading actual eBPF
// bytecode is out of scope here; this package exists so the decision
// logic has one definition that both the (externally supplied) XDP
// program and any user-space test harness agree on.
package filter

import (
	"encoding/binary"

	"github.com/malbeclabs/pingpong-bench/pkg/payload"
)

// EtherType is the project-specific "ping-pong" EtherType frames must
// carry to be redirected into the XSK ring instead of following the
// normal network stack.
const EtherType = 0x2002

const (
	ethHdrLen  = 14
	ipv4HdrLen = 20
	minFrame   = ethHdrLen + ipv4HdrLen + payload.Size
)

// Accept reports whether frame should be redirected to the XSK ring:
// long enough to hold Ethernet + IPv4 + PingPongPayload, carrying
// EtherType, and carrying a structurally valid payload. Anything else
// falls through to XDP_PASS on the kernel side.
func Accept(frame []byte) bool {
	if len(frame) < minFrame {
		return false
	}
	if binary.BigEndian.Uint16(frame[12:14]) != EtherType {
		return false
	}
	p := payload.Deserialize(frame[ethHdrLen+ipv4HdrLen:])
	return p.IsValid()
}
