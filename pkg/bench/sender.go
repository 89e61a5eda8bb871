// Package bench wires the transport-agnostic sender pacer and
// receiver/completion loops together into the client and server
// experiment drivers: pacer and receiver over an already-open
// pp.Endpoint, plus optional persistence. Rendezvous and endpoint setup
// happen beforehand, in internal/transport.
package bench

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/malbeclabs/pingpong-bench/internal/ptime"
	"github.com/malbeclabs/pingpong-bench/pkg/payload"
	"github.com/malbeclabs/pingpong-bench/pkg/pp"
)

// Sender runs the hybrid-paced send loop on its own goroutine, locked to
// an OS thread so the pacer's busy-wait tail isn't preempted mid-spin by
// an unrelated goroutine landing on the same thread.
type Sender struct {
	Log         *slog.Logger
	Endpoint    pp.Endpoint
	Iters       uint64
	IntervalNS  uint64
	ThresholdNS uint64
	Realtime    bool
	// StampTS1 sends the server-initiated leg's timestamp into ts[1]
	// instead of the client-initiated leg's ts[0]. The default
	// client-driven experiment never sets this.
	StampTS1 bool
}

// Run sends Iters payloads, pacing each send to IntervalNS apart, until
// ctx is canceled or a send fails. It is meant to run on its own
// goroutine; callers typically `go sender.Run(ctx)` and select on an
// error channel.
func (s *Sender) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if s.Realtime {
		if err := ptime.SetRealtimePriority(10); err != nil {
			s.Log.Warn("bench: could not raise sender to realtime priority", "error", err)
		}
	}

	for id := uint64(1); id <= s.Iters; id++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start := ptime.NowNS()
		p := payload.New(id)
		if s.StampTS1 {
			p.TS[1] = ptime.NowNS()
		} else {
			p.TS[0] = ptime.NowNS()
		}
		s.Endpoint.SetSendPayload(p)
		// QueueIdx rotates with the packet id; UD uses it modulo its send
		// ring size, the other backends (UDP, RC, XSK) ignore it.
		if err := s.Endpoint.PostSend(pp.PostSendOptions{QueueIdx: int(id - 1)}); err != nil {
			return fmt.Errorf("bench: sender: post_send id=%d: %w", id, err)
		}

		elapsed := ptime.NowNS() - start
		if elapsed < s.IntervalNS {
			ptime.Sleep(s.IntervalNS-elapsed, s.ThresholdNS)
		}
	}
	return nil
}
