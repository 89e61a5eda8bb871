//go:build linux

package udptransport

import (
	"context"
	"fmt"
	"net"
	"syscall"
)

type kernelDialer struct{}

func newKernelDialer() (*kernelDialer, error) {
	return &kernelDialer{}, nil
}

// Dial pins the socket to iface via SO_BINDTODEVICE before connecting, so a
// host with multiple NICs measures latency over the one the caller asked
// for rather than whatever route the kernel picks.
func (d *kernelDialer) Dial(ctx context.Context, iface string, local, remote *net.UDPAddr) (*net.UDPConn, error) {
	dialer := net.Dialer{
		LocalAddr: local,
		Control: func(network, address string, c syscall.RawConn) error {
			if iface == "" {
				return nil
			}
			var controlErr error
			if err := c.Control(func(fd uintptr) {
				controlErr = syscall.SetsockoptString(int(fd), syscall.SOL_SOCKET, syscall.SO_BINDTODEVICE, iface)
			}); err != nil {
				return fmt.Errorf("udptransport: setsockopt: %w", err)
			}
			return controlErr
		},
	}
	conn, err := dialer.DialContext(ctx, "udp", remote.String())
	if err != nil {
		return nil, fmt.Errorf("udptransport: dial: %w", err)
	}
	return conn.(*net.UDPConn), nil
}
