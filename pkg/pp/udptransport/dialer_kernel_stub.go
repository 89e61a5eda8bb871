//go:build !linux

package udptransport

import (
	"context"
	"errors"
	"net"
)

// ErrPlatformNotSupported is returned by the Linux-only kernel-assisted
// dialer and timestamp reader on every other platform.
var ErrPlatformNotSupported = errors.New("udptransport: not supported on this platform")

type kernelDialer struct{}

func newKernelDialer() (*kernelDialer, error) {
	return nil, ErrPlatformNotSupported
}

func (d *kernelDialer) Dial(ctx context.Context, iface string, local, remote *net.UDPAddr) (*net.UDPConn, error) {
	return nil, ErrPlatformNotSupported
}
