// Package rc implements the RDMA Reliable Connected ping-pong backend: a
// single outstanding send, a 500-deep receive queue re-posted as it
// drains, and (on the server) hardware completion timestamps for ts[1]
// when the completion queue's timestamp extension reports one.
package rc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/pingpong-bench/pkg/payload"
	"github.com/malbeclabs/pingpong-bench/pkg/pp"
	"github.com/malbeclabs/pingpong-bench/pkg/pp/rdma"
	"github.com/malbeclabs/pingpong-bench/pkg/pp/rdma/verbs"
)

const (
	recvWRID      = 1
	sendWRID      = 2
	receiveDepth  = 500
	bufferSize    = 1024
	defaultPortNo = 1
)

// Config carries the local setup parameters a caller resolves before
// dialing: the GID index and service level to bring the queue pair up
// with, and the role. The device (the first one enumerated) and port
// (defaultPortNo) are fixed, not configured here.
type Config struct {
	GIDIndex int
	SL       uint8
	IsServer bool
}

// Endpoint implements pp.Endpoint over an RDMA RC queue pair.
type Endpoint struct {
	log *slog.Logger
	cfg Config

	ctx *verbs.Context
	pd  *verbs.PD
	cq  *verbs.CQEx
	qp  *verbs.QP

	sendMR, recvMR *verbs.MR
	sendBuf        [bufferSize]byte
	recvBuf        [bufferSize]byte
	postedRecv     int
	sendSlot       payload.Payload
	localLID       uint16
	localGID       [16]byte
	isInfiniBand   bool
}

// Open opens the device and brings the QP to INIT; callers then exchange
// LocalNodeInfo over pkg/rendezvous and call Connect to finish RTR/RTS.
func Open(log *slog.Logger, cfg Config) (*Endpoint, error) {
	dctx, err := verbs.OpenFirstDevice()
	if err != nil {
		return nil, err
	}
	pd, err := dctx.AllocPD()
	if err != nil {
		dctx.Close()
		return nil, err
	}
	e := &Endpoint{log: log, cfg: cfg, ctx: dctx, pd: pd}

	e.sendMR, err = pd.RegisterMR(e.sendBuf[:])
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("rc: register send MR: %w", err)
	}
	e.recvMR, err = pd.RegisterMR(e.recvBuf[:])
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("rc: register recv MR: %w", err)
	}
	e.cq, err = dctx.CreateCQEx(receiveDepth + 1)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("rc: create CQ: %w", err)
	}
	e.qp, err = pd.CreateQP(e.cq.AsCQ(), verbs.QPTypeRC, 1, receiveDepth)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("rc: create QP: %w", err)
	}
	if err := e.qp.ModifyInit(defaultPortNo, 0); err != nil {
		e.Close()
		return nil, fmt.Errorf("rc: modify INIT: %w", err)
	}
	e.localLID, err = dctx.QueryPortLID(defaultPortNo)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("rc: query LID: %w", err)
	}
	e.localGID, err = dctx.QueryGID(defaultPortNo, cfg.GIDIndex)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("rc: query GID: %w", err)
	}
	e.isInfiniBand, err = dctx.QueryPortIsInfiniBand(defaultPortNo)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("rc: query link layer: %w", err)
	}

	if _, err := e.PostRecv(receiveDepth); err != nil {
		e.Close()
		return nil, fmt.Errorf("rc: initial post_recv: %w", err)
	}
	return e, nil
}

// LocalNodeInfo returns the record to send the peer over the rendezvous
// handshake.
func (e *Endpoint) LocalNodeInfo(localPSN uint32) rdma.NodeInfo {
	return rdma.NodeInfo{LID: e.localLID, QPN: e.qp.QPN(), PSN: localPSN, GID: e.localGID}
}

// Connect brings the queue pair from INIT to RTS using the peer's node
// info and a freshly seeded local PSN.
func (e *Endpoint) Connect(peer rdma.NodeInfo) error {
	if err := peer.Validate(e.isInfiniBand); err != nil {
		return fmt.Errorf("rc: peer node info: %w", err)
	}
	localPSN := rdma.SeedPSN()
	var dgid *[16]byte
	if peer.GID != ([16]byte{}) {
		g := peer.GID
		dgid = &g
	}
	if err := e.qp.ModifyRTR(defaultPortNo, e.cfg.SL, e.cfg.GIDIndex, peer.LID, peer.QPN, peer.PSN, dgid); err != nil {
		return fmt.Errorf("rc: modify RTR: %w", err)
	}
	if err := e.qp.ModifyRTS(localPSN); err != nil {
		return fmt.Errorf("rc: modify RTS: %w", err)
	}
	return nil
}

func (e *Endpoint) SetSendPayload(p payload.Payload) { e.sendSlot = p }

func (e *Endpoint) PostSend(_ pp.PostSendOptions) error {
	buf := e.sendSlot.Serialize()
	copy(e.sendBuf[:], buf[:])
	if err := e.qp.PostSend(sendWRID, e.sendBuf[:payload.Size], e.sendMR.LKey, nil, 0, 0); err != nil {
		return fmt.Errorf("rc: post_send: %w", err)
	}
	return nil
}

// PostRecv tops up the posted-receive count by up to n, capped at
// receiveDepth. Every posted descriptor aliases the same recv buffer: the
// ping-pong protocol never has more than one receive in flight, so
// reusing one registered region across all 500 pre-posted descriptors is
// safe and keeps the memory budget at two 1KB regions.
func (e *Endpoint) PostRecv(n int) (int, error) {
	posted := 0
	for posted < n && e.postedRecv < receiveDepth {
		if err := e.qp.PostRecv(recvWRID, e.recvBuf[:], e.recvMR.LKey); err != nil {
			return posted, fmt.Errorf("rc: post_recv: %w", err)
		}
		e.postedRecv++
		posted++
	}
	return posted, nil
}

func (e *Endpoint) PollOnce(ctx context.Context) ([]pp.Completion, error) {
	var wcs [8]verbs.WC
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		n, err := e.cq.Poll(wcs[:])
		if err != nil {
			return nil, fmt.Errorf("rc: poll_cq: %w", err)
		}
		if n == 0 {
			continue // ENOENT: no completion yet, not an error
		}

		completions := make([]pp.Completion, 0, n)
		for i := 0; i < n; i++ {
			wc := wcs[i]
			switch wc.WRID {
			case sendWRID:
				completions = append(completions, pp.Completion{Payload: e.sendSlot, IsSend: true})
			case recvWRID:
				p := payload.Deserialize(e.recvBuf[:payload.Size])
				c := pp.Completion{Payload: p, IsSend: false}
				if wc.HasTimestamp {
					c.HasHWStamp = true
					c.HWStampNS = wc.TimestampNS
				}
				completions = append(completions, c)
				e.postedRecv--
				if e.postedRecv < 1 {
					if _, err := e.PostRecv(receiveDepth); err != nil {
						return nil, fmt.Errorf("rc: re-post recv: %w", err)
					}
				}
			default:
				e.log.Warn("rc: unknown work request id", "wr_id", wc.WRID)
			}
		}
		return completions, nil
	}
}

func (e *Endpoint) Base() any { return e.qp }

func (e *Endpoint) Close() error {
	if e.qp != nil {
		e.qp.Destroy()
	}
	if e.cq != nil {
		e.cq.Destroy()
	}
	if e.sendMR != nil {
		e.sendMR.Dereg()
	}
	if e.recvMR != nil {
		e.recvMR.Dereg()
	}
	if e.pd != nil {
		e.pd.Dealloc()
	}
	if e.ctx != nil {
		e.ctx.Close()
	}
	return nil
}
