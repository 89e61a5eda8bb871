//go:build linux

// Package xdp implements the AF_XDP ping-pong backend: a page-aligned
// UMEM shared with the kernel, fill/completion/RX/TX rings mapped via
// mmap, and an externally-attached XDP program that redirects matching
// frames into this process's socket.
package xdp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/malbeclabs/pingpong-bench/pkg/payload"
	"github.com/malbeclabs/pingpong-bench/pkg/pp"
	"github.com/malbeclabs/pingpong-bench/pkg/pp/xdp/filter"
)

// Config describes the interface and addressing the endpoint needs: which
// NIC queue to bind, and the Ethernet/IP addresses synthesized into every
// outgoing frame (learned from the address-exchange handshake).
type Config struct {
	Iface      string
	QueueID    uint32
	ZeroCopy   bool
	PollMode   bool
	SrcMAC     net.HardwareAddr
	DstMAC     net.HardwareAddr
	SrcIP      net.IP
	DstIP      net.IP
	ProgramObj string
}

// Endpoint implements pp.Endpoint over an AF_XDP socket.
type Endpoint struct {
	log *slog.Logger
	cfg Config

	fd       int
	umem     []byte
	free     *freeList
	fill     *ring
	comp     *ring
	rx       *ring
	tx       *ring
	attacher ProgramAttacher

	outstandingTX int
	sendSlot      payload.Payload
}

// Open allocates the UMEM, creates and binds the AF_XDP socket, attaches
// the caller-supplied XDP program, and pre-fills the fill ring.
func Open(log *slog.Logger, cfg Config) (*Endpoint, error) {
	iface, err := net.InterfaceByName(cfg.Iface)
	if err != nil {
		return nil, fmt.Errorf("xdp: lookup interface %q: %w", cfg.Iface, err)
	}

	fd, err := unix.Socket(afXDP, unix.SOCK_RAW, 0)
	if err != nil {
		return nil, fmt.Errorf("xdp: socket: %w", err)
	}
	e := &Endpoint{log: log, cfg: cfg, fd: fd, free: newFreeList()}

	umem, err := unix.Mmap(-1, 0, umemSize, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_POPULATE)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("xdp: mmap umem: %w", err)
	}
	e.umem = umem

	reg := xdpUmemRegT{Addr: uint64(uintptr(unsafe.Pointer(&umem[0]))), Len: umemSize, ChunkSz: frameSize}
	if err := setsockoptBytes(fd, solXDP, xdpUmemReg, structBytes(&reg)); err != nil {
		e.Close()
		return nil, fmt.Errorf("xdp: XDP_UMEM_REG: %w", err)
	}

	if err := e.setupRings(numDescs); err != nil {
		e.Close()
		return nil, err
	}

	flags := uint16(xdpCopy)
	if cfg.ZeroCopy {
		flags = xdpZeroCopy
	}
	sa := sockaddrXDP{Family: unix.AF_XDP, Flags: flags, Ifindex: uint32(iface.Index), QueueID: cfg.QueueID}
	if err := bindXDP(fd, &sa); err != nil {
		e.Close()
		return nil, fmt.Errorf("xdp: bind: %w", err)
	}

	if cfg.ProgramObj != "" {
		attacher, err := AttachProgram(cfg.ProgramObj, iface.Index)
		if err != nil {
			e.Close()
			return nil, err
		}
		if err := attacher.UpdateXSKMap(cfg.QueueID, fd); err != nil {
			attacher.Close()
			e.Close()
			return nil, err
		}
		e.attacher = attacher
	}

	if err := e.refill(numDescs); err != nil {
		e.Close()
		return nil, fmt.Errorf("xdp: initial fill: %w", err)
	}
	return e, nil
}

func (e *Endpoint) setupRings(entries uint32) error {
	for _, opt := range []int{xdpRxRing, xdpTxRing, xdpUmemFillRing, xdpUmemCompletionRing} {
		if err := setsockoptU32(e.fd, solXDP, opt, entries); err != nil {
			return fmt.Errorf("xdp: set ring size (opt %d): %w", opt, err)
		}
	}

	var off xdpMmapOffsetsT
	if err := getsockoptBytes(e.fd, solXDP, xdpMmapOffsets, structBytes(&off)); err != nil {
		return fmt.Errorf("xdp: XDP_MMAP_OFFSETS: %w", err)
	}

	var err error
	e.fill, err = mapRing(e.fd, off.Fr, xdpUmemPgoffFillRing, entries, false)
	if err != nil {
		return err
	}
	e.comp, err = mapRing(e.fd, off.Cr, xdpUmemPgoffCompletionRing, entries, false)
	if err != nil {
		return err
	}
	e.rx, err = mapRing(e.fd, off.Rx, xdpPgoffRxRing, entries, true)
	if err != nil {
		return err
	}
	e.tx, err = mapRing(e.fd, off.Tx, xdpPgoffTxRing, entries, true)
	if err != nil {
		return err
	}
	return nil
}

// refill hands up to n free UMEM frames to the kernel via the fill ring.
func (e *Endpoint) refill(n int) error {
	for i := 0; i < n; i++ {
		addr, ok := e.free.take()
		if !ok {
			break
		}
		idx := *e.fill.prod & e.fill.mask
		e.fill.descsU[idx] = addr
		*e.fill.prod++
	}
	return nil
}

func (e *Endpoint) SetSendPayload(p payload.Payload) { e.sendSlot = p }

// PostSend builds a frame for the current send slot, copies it into a
// free UMEM frame, and produces a TX descriptor.
func (e *Endpoint) PostSend(_ pp.PostSendOptions) error {
	addr, ok := e.free.take()
	if !ok {
		return fmt.Errorf("xdp: no free UMEM frame for send")
	}
	frame, err := buildFrame(e.cfg.SrcMAC, e.cfg.DstMAC, e.cfg.SrcIP, e.cfg.DstIP, e.sendSlot)
	if err != nil {
		e.free.give(addr)
		return err
	}
	copy(e.umem[addr:addr+uint64(len(frame))], frame)

	idx := *e.tx.prod & e.tx.mask
	e.tx.descsD[idx] = xdpDesc{Addr: addr, Len: uint32(len(frame))}
	*e.tx.prod++
	e.outstandingTX++

	if err := kick(e.fd); err != nil {
		return fmt.Errorf("xdp: wake tx ring: %w", err)
	}
	return nil
}

// completeTX drains the completion ring, returning frames to the free
// list and decrementing outstandingTX.
func (e *Endpoint) completeTX() {
	for *e.comp.cons != *e.comp.prod {
		idx := *e.comp.cons & e.comp.mask
		e.free.give(e.comp.descsU[idx])
		*e.comp.cons++
		e.outstandingTX--
	}
}

// PostRecv is a no-op for AF_XDP: the fill ring is kept topped up by
// refill as frames are recycled, not by an explicit per-call post.
func (e *Endpoint) PostRecv(n int) (int, error) { return 0, nil }

func (e *Endpoint) PollOnce(ctx context.Context) ([]pp.Completion, error) {
	e.completeTX()

	for *e.rx.cons == *e.rx.prod {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if e.cfg.PollMode {
			if err := pollFD(e.fd); err != nil {
				return nil, fmt.Errorf("xdp: poll: %w", err)
			}
		}
		e.completeTX()
	}

	var completions []pp.Completion
	for *e.rx.cons != *e.rx.prod {
		idx := *e.rx.cons & e.rx.mask
		desc := e.rx.descsD[idx]
		*e.rx.cons++

		frame := e.umem[desc.Addr : desc.Addr+uint64(desc.Len)]
		if filter.Accept(frame) {
			p := payload.Deserialize(frame[ethHdrLen+ipv4HdrLen:])
			completions = append(completions, pp.Completion{Payload: p, IsSend: false, ReceivedRaw: append([]byte(nil), frame...)})
		}
		e.free.give(desc.Addr)
	}
	if err := e.refill(len(completions)); err != nil {
		return nil, err
	}
	return completions, nil
}

const (
	ethHdrLen  = 14
	ipv4HdrLen = 20
)

func (e *Endpoint) Base() any { return e.fd }

func (e *Endpoint) Close() error {
	if e.attacher != nil {
		e.attacher.Close()
	}
	if e.fill != nil {
		e.fill.unmap()
	}
	if e.comp != nil {
		e.comp.unmap()
	}
	if e.rx != nil {
		e.rx.unmap()
	}
	if e.tx != nil {
		e.tx.unmap()
	}
	if e.umem != nil {
		unix.Munmap(e.umem)
	}
	if e.fd != 0 {
		return unix.Close(e.fd)
	}
	return nil
}
