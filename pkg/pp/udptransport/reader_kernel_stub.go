//go:build !linux

package udptransport

import (
	"context"
	"log/slog"
	"net"
	"time"
)

type kernelTimestampedReader struct{}

func newKernelTimestampedReader(_ *slog.Logger, _ *net.UDPConn) (*kernelTimestampedReader, error) {
	return nil, ErrPlatformNotSupported
}

func (r *kernelTimestampedReader) Now() time.Time { return time.Time{} }

func (r *kernelTimestampedReader) Read(ctx context.Context, buf []byte) (int, time.Time, error) {
	return 0, time.Time{}, ErrPlatformNotSupported
}
