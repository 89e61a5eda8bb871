package bench

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/pingpong-bench/internal/ptime"
	"github.com/malbeclabs/pingpong-bench/pkg/persistence"
	"github.com/malbeclabs/pingpong-bench/pkg/pp"
)

// ClientConfig configures one client-side experiment run.
type ClientConfig struct {
	Iters       uint64
	IntervalNS  uint64
	ThresholdNS uint64
	Realtime    bool
}

// Client drives the client side of an experiment: spawn the sender,
// drain completions, stamp ts[3], and forward to persistence until
// recv_count reaches Iters.
type Client struct {
	Log      *slog.Logger
	Endpoint pp.Endpoint
	Reducer  *persistence.Reducer
	Cfg      ClientConfig
}

// Run blocks until the client has observed Iters completions (by id,
// taking the max so out-of-order arrivals don't undercount) or ctx is
// canceled.
func (c *Client) Run(ctx context.Context) error {
	senderCtx, cancelSender := context.WithCancel(ctx)
	defer cancelSender()

	sender := &Sender{
		Log: c.Log, Endpoint: c.Endpoint, Iters: c.Cfg.Iters,
		IntervalNS: c.Cfg.IntervalNS, ThresholdNS: c.Cfg.ThresholdNS, Realtime: c.Cfg.Realtime,
	}
	senderErr := make(chan error, 1)
	go func() { senderErr <- sender.Run(senderCtx) }()

	var recvCount uint64
	for recvCount < c.Cfg.Iters {
		select {
		case err := <-senderErr:
			if err != nil {
				c.Log.Error("bench: client sender aborted", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		completions, err := c.Endpoint.PollOnce(ctx)
		if err != nil {
			return fmt.Errorf("bench: client: poll: %w", err)
		}
		for _, comp := range completions {
			if comp.IsSend {
				continue
			}
			p := comp.Payload
			if !p.IsValid() {
				c.Log.Warn("bench: client: dropping invalid payload", "id", p.ID)
				continue
			}
			p.TS[3] = ptime.NowNS()
			if p.ID > recvCount {
				recvCount = p.ID
			}
			if c.Reducer != nil {
				if err := c.Reducer.Write(p); err != nil {
					c.Log.Warn("bench: client: persistence write failed", "id", p.ID, "error", err)
				}
			}
		}
	}
	return nil
}
