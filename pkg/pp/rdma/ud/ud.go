// Package ud implements the RDMA Unreliable Datagram ping-pong backend: a
// 128-deep send/receive ring addressed by an address handle rather than a
// connected queue pair, with a lock-free pending-send bitset shared
// between the sender and completion paths.
package ud

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
	queueSize     = 128
	packetSize    = 1024
	grhSize       = 40 // Global Routing Header prefix on every UD receive
	qkey          = 0x11111111
	defaultPortNo = 1
)

type Config struct {
	GIDIndex int
	SL       uint8
}

// Endpoint implements pp.Endpoint over an RDMA UD queue pair. Receive
// buffers are one contiguous arena of queueSize slots; send completions
// and receive completions are told apart by work-request ID range: recv
// WRIDs are queueSize+i, send WRIDs are i.
type Endpoint struct {
	log *slog.Logger
	cfg Config

	ctx *verbs.Context
	pd  *verbs.PD
	cq  *verbs.CQ
	qp  *verbs.QP

	recvArena [queueSize * packetSize]byte
	recvMR    *verbs.MR

	sendArena []byte
	sendMR    *verbs.MR
	pending   *pp.Bitset
	sendSlot  payload.Payload

	// queued holds receive completions observed by a PostSend busy-wait
	// (see waitForSlot) so PollOnce can still deliver them in order; the
	// busy-wait is the only thing draining the CQ while PostSend blocks.
	queued []pp.Completion

	peerAH  *verbs.AH
	peerQPN uint32

	localLID     uint16
	localGID     [16]byte
	isInfiniBand bool
}

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
	e := &Endpoint{log: log, cfg: cfg, ctx: dctx, pd: pd, pending: pp.NewBitset(queueSize)}

	e.recvMR, err = pd.RegisterMR(e.recvArena[:])
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("ud: register recv MR: %w", err)
	}
	// Every send slot must land in one registered region, so register a
	// second arena the same shape as the receive one and slice it.
	e.sendArena = make([]byte, queueSize*packetSize)
	e.sendMR, err = pd.RegisterMR(e.sendArena)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("ud: register send MR: %w", err)
	}

	e.cq, err = dctx.CreateCQ(2 * queueSize)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("ud: create CQ: %w", err)
	}
	e.qp, err = pd.CreateQP(e.cq, verbs.QPTypeUD, queueSize, queueSize)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("ud: create QP: %w", err)
	}
	if err := e.qp.ModifyInit(defaultPortNo, qkey); err != nil {
		e.Close()
		return nil, fmt.Errorf("ud: modify INIT: %w", err)
	}
	e.localLID, err = dctx.QueryPortLID(defaultPortNo)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("ud: query LID: %w", err)
	}
	e.localGID, err = dctx.QueryGID(defaultPortNo, cfg.GIDIndex)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("ud: query GID: %w", err)
	}
	e.isInfiniBand, err = dctx.QueryPortIsInfiniBand(defaultPortNo)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("ud: query link layer: %w", err)
	}

	if _, err := e.PostRecv(queueSize); err != nil {
		e.Close()
		return nil, fmt.Errorf("ud: initial post_recv: %w", err)
	}
	return e, nil
}

func (e *Endpoint) LocalNodeInfo(localPSN uint32) rdma.NodeInfo {
	return rdma.NodeInfo{LID: e.localLID, QPN: e.qp.QPN(), PSN: localPSN, GID: e.localGID}
}

// Connect brings the QP to RTS and builds the address handle used for
// every send. UD's RTR transition needs no peer QPN — only UD sends,
// which carry the destination in the work request via the handle, need
// one.
func (e *Endpoint) Connect(peer rdma.NodeInfo) error {
	if err := peer.Validate(e.isInfiniBand); err != nil {
		return fmt.Errorf("ud: peer node info: %w", err)
	}
	localPSN := rdma.SeedPSN()
	if err := e.qp.ModifyRTR(defaultPortNo, e.cfg.SL, e.cfg.GIDIndex, 0, 0, 0, nil); err != nil {
		return fmt.Errorf("ud: modify RTR: %w", err)
	}
	if err := e.qp.ModifyRTS(localPSN); err != nil {
		return fmt.Errorf("ud: modify RTS: %w", err)
	}
	var dgid *[16]byte
	if peer.GID != ([16]byte{}) {
		g := peer.GID
		dgid = &g
	}
	ah, err := e.pd.CreateAH(defaultPortNo, e.cfg.SL, e.cfg.GIDIndex, peer.LID, dgid)
	if err != nil {
		return fmt.Errorf("ud: create address handle: %w", err)
	}
	e.peerAH = ah
	e.peerQPN = peer.QPN
	return nil
}

func (e *Endpoint) SetSendPayload(p payload.Payload) { e.sendSlot = p }

// PostSend serializes the send slot into ring slot opts.QueueIdx and
// posts it, marking the slot pending in the bitset. Callers rotate
// QueueIdx across the queueSize ring themselves (bench.Sender and
// bench.Server pass the packet id minus one); PostSend busy-waits for a slot's
// previous send to be acknowledged before reusing it.
func (e *Endpoint) PostSend(opts pp.PostSendOptions) error {
	idx := opts.QueueIdx % queueSize
	if err := e.waitForSlot(idx); err != nil {
		return err
	}
	off := idx * packetSize
	slot := e.sendArena[off : off+packetSize]
	buf := e.sendSlot.Serialize()
	copy(slot, buf[:])
	e.pending.Set(idx)
	if err := e.qp.PostSend(uint64(idx), slot[:payload.Size], e.sendMR.LKey, e.peerAH, e.peerQPN, qkey); err != nil {
		e.pending.Clear(idx)
		return fmt.Errorf("ud: post_send: %w", err)
	}
	return nil
}

// waitForSlot busy-waits until ring slot idx's previous send has been
// acknowledged by the CQ. This endpoint is driven from a single
// goroutine (see pkg/bench), so nothing else polls the CQ while this
// call blocks; it polls the CQ itself and buffers any receive
// completions it observes in e.queued for the next PollOnce to deliver.
func (e *Endpoint) waitForSlot(idx int) error {
	var wcs [16]verbs.WC
	for e.pending.Test(idx) {
		n, err := e.cq.Poll(wcs[:])
		if err != nil {
			return fmt.Errorf("ud: poll_cq while waiting for slot %d: %w", idx, err)
		}
		for i := 0; i < n; i++ {
			c, err := e.handleWC(wcs[i])
			if err != nil {
				return err
			}
			if c != nil {
				e.queued = append(e.queued, *c)
			}
		}
	}
	return nil
}

// handleWC classifies one work completion, clearing/re-posting as
// needed, and returns the deliverable completion (receives only; send
// completions only clear the pending bit and return nil).
func (e *Endpoint) handleWC(wc verbs.WC) (*pp.Completion, error) {
	if wc.WRID >= queueSize {
		slotIdx := int(wc.WRID) - queueSize
		off := slotIdx * packetSize
		p := payload.Deserialize(e.recvArena[off+grhSize : off+grhSize+payload.Size])
		if err := e.qp.PostRecv(wc.WRID, e.recvArena[off:off+packetSize], e.recvMR.LKey); err != nil {
			return nil, fmt.Errorf("ud: re-post recv: %w", err)
		}
		return &pp.Completion{Payload: p, IsSend: false}, nil
	}
	idx := int(wc.WRID)
	if !e.pending.Test(idx) {
		e.log.Warn("ud: send completion for slot with no pending bit", "slot", idx)
		return nil, nil
	}
	e.pending.Clear(idx)
	return nil, nil
}

// PostRecv posts receive descriptors for ring slots 0..n-1 (at most
// queueSize of them). It does not track which slots are already
// outstanding; Open calls it once to fill the ring, and handleWC re-posts
// each consumed slot individually. Each descriptor's buffer covers the
// full slot including the 40-byte GRH prefix the hardware writes ahead
// of the payload.
func (e *Endpoint) PostRecv(n int) (int, error) {
	posted := 0
	for i := 0; i < queueSize && posted < n; i++ {
		off := i * packetSize
		if err := e.qp.PostRecv(uint64(queueSize+i), e.recvArena[off:off+packetSize], e.recvMR.LKey); err != nil {
			return posted, fmt.Errorf("ud: post_recv: %w", err)
		}
		posted++
	}
	return posted, nil
}

func (e *Endpoint) PollOnce(ctx context.Context) ([]pp.Completion, error) {
	if len(e.queued) > 0 {
		completions := e.queued
		e.queued = nil
		return completions, nil
	}

	var wcs [16]verbs.WC
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		n, err := e.cq.Poll(wcs[:])
		if err != nil {
			return nil, fmt.Errorf("ud: poll_cq: %w", err)
		}
		if n == 0 {
			continue
		}

		completions := make([]pp.Completion, 0, n)
		for i := 0; i < n; i++ {
			c, err := e.handleWC(wcs[i])
			if err != nil {
				return nil, err
			}
			if c != nil {
				completions = append(completions, *c)
			}
		}
		if len(completions) == 0 {
			continue
		}
		return completions, nil
	}
}

func (e *Endpoint) Base() any { return e.qp }

func (e *Endpoint) Close() error {
	if e.peerAH != nil {
		e.peerAH.Destroy()
	}
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
