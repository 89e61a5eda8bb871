package udptransport

import (
	"context"
	"fmt"
	"net"
)

// Dialer opens the client-side UDP socket, optionally pinned to a specific
// egress interface.
type Dialer interface {
	Dial(ctx context.Context, iface string, local, remote *net.UDPAddr) (*net.UDPConn, error)
}

// NewDialer returns the kernel-assisted dialer (SO_BINDTODEVICE) where
// available, falling back to a plain net.Dialer otherwise — mirroring the
// teacher's udp.NewDialer fallback chain.
func NewDialer() Dialer {
	if kd, err := newKernelDialer(); err == nil {
		return kd
	}
	return &standardDialer{}
}

type standardDialer struct{}

func (d *standardDialer) Dial(ctx context.Context, iface string, local, remote *net.UDPAddr) (*net.UDPConn, error) {
	if iface != "" {
		if _, err := net.InterfaceByName(iface); err != nil {
			return nil, fmt.Errorf("udptransport: lookup interface %q: %w", iface, err)
		}
	}
	dialer := net.Dialer{LocalAddr: local}
	conn, err := dialer.DialContext(ctx, "udp", remote.String())
	if err != nil {
		return nil, fmt.Errorf("udptransport: dial: %w", err)
	}
	return conn.(*net.UDPConn), nil
}
