// Package udptransport implements the UDP ping-pong backend: blocking
// sends and receives on one UDP socket (connected on the client, unconnected
// and bound to :1234 on the server), one outstanding send, and
// a 1024-byte receive buffer. It is the baseline transport every other
// backend is measured against — no pre-registration, no completion queue,
// no RDMA/XDP-specific setup.
package udptransport

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/malbeclabs/pingpong-bench/pkg/payload"
	"github.com/malbeclabs/pingpong-bench/pkg/pp"
	"github.com/malbeclabs/pingpong-bench/pkg/rendezvous"
)

const recvBufSize = 1024

// Endpoint implements pp.Endpoint over a single UDP socket. A client
// endpoint dials the server and uses Write; a server endpoint binds
// UNSPECIFIED:1234 and replies to whichever peer address the rendezvous
// handshake identified, via WriteToUDP. Both sides receive through the
// TimestampedReader.
type Endpoint struct {
	log    *slog.Logger
	conn   *net.UDPConn
	peer   *net.UDPAddr // non-nil for the server side, which has no "connected" socket
	reader TimestampedReader

	sendSlot payload.Payload
	recvBuf  [recvBufSize]byte
}

// NewClient dials serverAddr:1234, optionally pinned to iface. The local
// port is pinned to rendezvous.ClientPort, the same port the client's
// address-exchange handshake used, so the server (which learned the
// client's address from that handshake) replies to a port this socket is
// actually bound to.
func NewClient(ctx context.Context, log *slog.Logger, iface, serverAddr string) (*Endpoint, error) {
	remote, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", serverAddr, dataPort))
	if err != nil {
		return nil, fmt.Errorf("udptransport: resolve server addr: %w", err)
	}
	local := &net.UDPAddr{Port: rendezvous.ClientPort}
	conn, err := NewDialer().Dial(ctx, iface, local, remote)
	if err != nil {
		return nil, err
	}
	return &Endpoint{log: log, conn: conn, reader: NewTimestampedReader(log, conn)}, nil
}

// NewServer binds UNSPECIFIED:1234 and will reply to peer.
func NewServer(log *slog.Logger, peer *net.UDPAddr) (*Endpoint, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: dataPort})
	if err != nil {
		return nil, fmt.Errorf("udptransport: listen: %w", err)
	}
	return &Endpoint{log: log, conn: conn, peer: peer, reader: NewTimestampedReader(log, conn)}, nil
}

const dataPort = 1234

func (e *Endpoint) SetSendPayload(p payload.Payload) { e.sendSlot = p }

// PostSend transmits the current send slot immediately; UDP has no queue to
// post to, so the call is synchronous and opts is ignored beyond its
// existence in the pp.Endpoint signature.
func (e *Endpoint) PostSend(_ pp.PostSendOptions) error {
	buf := e.sendSlot.Serialize()
	var err error
	if e.peer != nil {
		_, err = e.conn.WriteToUDP(buf[:], e.peer)
	} else {
		_, err = e.conn.Write(buf[:])
	}
	if err != nil {
		return fmt.Errorf("udptransport: send: %w", err)
	}
	return nil
}

// PostRecv is a no-op: a UDP socket always has an implicit receive posted.
// n is ignored.
func (e *Endpoint) PostRecv(n int) (int, error) { return 1, nil }

// PollOnce blocks for exactly one datagram and returns it as a single
// receive completion. The arrival time reported by the reader is
// discarded: the completion carries no timestamp, and the payload's own
// logical timestamps are stamped by the bench layer with ptime.NowNS().
func (e *Endpoint) PollOnce(ctx context.Context) ([]pp.Completion, error) {
	n, _, err := e.reader.Read(ctx, e.recvBuf[:])
	if err != nil {
		return nil, fmt.Errorf("udptransport: recv: %w", err)
	}
	if n < payload.Size {
		return nil, fmt.Errorf("udptransport: short read: got %d bytes, want %d", n, payload.Size)
	}
	p := payload.Deserialize(e.recvBuf[:n])
	return []pp.Completion{{Payload: p, IsSend: false}}, nil
}

func (e *Endpoint) Base() any { return e.conn }

func (e *Endpoint) Close() error { return e.conn.Close() }
