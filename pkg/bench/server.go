package bench

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/pingpong-bench/internal/ptime"
	"github.com/malbeclabs/pingpong-bench/pkg/payload"
	"github.com/malbeclabs/pingpong-bench/pkg/persistence"
	"github.com/malbeclabs/pingpong-bench/pkg/pp"
)

// ServerConfig configures one server-side experiment run.
type ServerConfig struct {
	Iters uint64
}

// Server drives the server side: receive a client-initiated payload,
// stamp ts[1]/ts[2], echo it back, and terminate once recv_count
// reaches Iters. Persistence is optional — most deployments only
// persist on the client, but a server-side latency reducer is useful
// for one-way or asymmetric-path measurements.
type Server struct {
	Log      *slog.Logger
	Endpoint pp.Endpoint
	Reducer  *persistence.Reducer
	Cfg      ServerConfig
}

func (s *Server) Run(ctx context.Context) error {
	var recvCount uint64
	for recvCount < s.Cfg.Iters {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		completions, err := s.Endpoint.PollOnce(ctx)
		if err != nil {
			return fmt.Errorf("bench: server: poll: %w", err)
		}
		for _, comp := range completions {
			if comp.IsSend {
				continue
			}
			p := comp.Payload
			if !p.IsValid() {
				s.Log.Warn("bench: server: dropping invalid payload", "id", p.ID)
				continue
			}
			if p.Phase != payload.PhaseClientFresh {
				s.Log.Warn("bench: server: dropping payload with unexpected phase", "id", p.ID, "phase", p.Phase)
				continue
			}

			if comp.HasHWStamp {
				p.TS[1] = comp.HWStampNS
			} else {
				p.TS[1] = ptime.NowNS()
			}
			p.Phase = payload.PhaseServerReplied
			p.TS[2] = ptime.NowNS()

			s.Endpoint.SetSendPayload(p)
			if err := s.Endpoint.PostSend(pp.PostSendOptions{QueueIdx: int(p.ID - 1)}); err != nil {
				return fmt.Errorf("bench: server: post_send id=%d: %w", p.ID, err)
			}

			if p.ID > recvCount {
				recvCount = p.ID
			}
			if s.Reducer != nil {
				if err := s.Reducer.Write(p); err != nil {
					s.Log.Warn("bench: server: persistence write failed", "id", p.ID, "error", err)
				}
			}
		}
	}
	return nil
}
