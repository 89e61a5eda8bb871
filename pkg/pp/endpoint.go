// Package pp defines the transport-endpoint capability set shared by every
// ping-pong backend (UDP, RDMA RC/UD, AF_XDP) and the small set of
// concurrency primitives (the pending-send bitset) those backends share
// between their sender and completion paths.
package pp

import (
	"context"

	"github.com/malbeclabs/pingpong-bench/pkg/payload"
)

// PostSendOptions carries the optional, backend-specific knobs for a single
// PostSend call. Only UD reads any of them: it uses QueueIdx, modulo its
// ring size, to pick a send slot. UDP, RC and XSK ignore all three, and
// no backend currently reads LKey or Buf.
type PostSendOptions struct {
	QueueIdx int
	LKey     uint32
	Buf      []byte
}

// Completion describes one polled completion: the payload that was
// sent or received, whether it was a send or a receive, and — for RDMA
// backends with hardware timestamping — the completion timestamp in
// nanoseconds (zero when unavailable).
type Completion struct {
	Payload     payload.Payload
	IsSend      bool
	HasHWStamp  bool
	HWStampNS   uint64
	ReceivedRaw []byte // raw frame bytes, populated by backends that parse from wire (XSK); nil otherwise
}

// Endpoint is the uniform "post send / post receive / poll completion"
// surface every backend implements. The pkg/bench pacer and receiver loops
// hold a value of this interface and make their per-packet send and poll
// calls through it; they do not call the concrete backend types directly.
type Endpoint interface {
	// SetSendPayload copies p into the endpoint's next outgoing send slot.
	SetSendPayload(p payload.Payload)

	// PostSend enqueues the current send slot for transmission.
	PostSend(opts PostSendOptions) error

	// PostRecv posts up to n receive descriptors (UDP ignores n and always
	// maintains exactly one outstanding receive). It returns how many were
	// actually posted.
	PostRecv(n int) (int, error)

	// PollOnce blocks for at least one completion (subject to ctx) and
	// returns everything observed in this poll cycle.
	PollOnce(ctx context.Context) ([]Completion, error)

	// Base exposes whatever immutable context (keys, device handles) the
	// experiment driver needs for logging or teardown.
	Base() any

	// Close releases the endpoint's resources.
	Close() error
}
