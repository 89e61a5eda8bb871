package udptransport

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// TimestampedReader reads one UDP datagram and reports the time it arrived,
// preferring a kernel RX timestamp over a wall-clock read at the syscall
// boundary.
type TimestampedReader interface {
	Now() time.Time
	Read(ctx context.Context, buf []byte) (n int, t time.Time, err error)
}

// NewTimestampedReader picks the kernel SO_TIMESTAMPNS reader where the
// platform supports it, falling back to wall-clock timestamps otherwise.
func NewTimestampedReader(log *slog.Logger, conn *net.UDPConn) TimestampedReader {
	kr, err := newKernelTimestampedReader(log, conn)
	if err == nil {
		log.Debug("udptransport: using kernel RX timestamp reader")
		return kr
	}
	log.Debug("udptransport: falling back to wall-clock reader", "error", err)
	return newWallclockTimestampedReader(conn)
}
