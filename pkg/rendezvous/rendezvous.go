// Package rendezvous implements the one-shot UDP address exchange that
// precedes every ping-pong experiment: client and server swap either a
// 10-byte Ethernet/IPv4 record (AF_XDP) or a 26-byte RDMA peer-info
// record (RC/UD) before bringing up the real transport. The UDP backend
// sends a one-byte placeholder and uses the exchange only so the server
// learns the client's address.
package rendezvous

import (
	"context"
	"fmt"
	"log/slog"
	"net"
)

// Well-known rendezvous ports, per spec: server listens on the first,
// client binds the second as its ephemeral-but-fixed source.
const (
	ServerPort = 1234
	ClientPort = 1235
)

// ClientExchange sends localPayload to serverIP:ServerPort from
// 0.0.0.0:ClientPort and returns the server's reply. It is a single
// round trip; cancelling ctx aborts the wait.
func ClientExchange(ctx context.Context, log *slog.Logger, serverIP string, localPayload []byte) ([]byte, error) {
	laddr := &net.UDPAddr{IP: net.IPv4zero, Port: ClientPort}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("rendezvous: bind client port %d: %w", ClientPort, err)
	}
	defer conn.Close()

	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", serverIP, ServerPort))
	if err != nil {
		return nil, fmt.Errorf("rendezvous: resolve server %q: %w", serverIP, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	log.Debug("rendezvous: sending to server", "server", raddr, "len", len(localPayload))
	if _, err := conn.WriteToUDP(localPayload, raddr); err != nil {
		return nil, fmt.Errorf("rendezvous: send to server: %w", err)
	}

	buf := make([]byte, 1024)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, fmt.Errorf("rendezvous: read server reply: %w", err)
	}
	log.Debug("rendezvous: received server reply", "len", n)
	return buf[:n], nil
}

// ServerExchange waits for a single client datagram on 0.0.0.0:ServerPort,
// replies with localPayload into the client's source address, and returns
// both the client's payload and its address.
func ServerExchange(ctx context.Context, log *slog.Logger, localPayload []byte) (peer []byte, clientAddr *net.UDPAddr, err error) {
	laddr := &net.UDPAddr{IP: net.IPv4zero, Port: ServerPort}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, nil, fmt.Errorf("rendezvous: bind server port %d: %w", ServerPort, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	log.Debug("rendezvous: waiting for client")
	buf := make([]byte, 1024)
	n, caddr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("rendezvous: read client hello: %w", err)
	}

	if _, err := conn.WriteToUDP(localPayload, caddr); err != nil {
		return nil, nil, fmt.Errorf("rendezvous: reply to client: %w", err)
	}
	log.Debug("rendezvous: replied to client", "client", caddr)

	return buf[:n], caddr, nil
}
