package udptransport

import (
	"context"
	"fmt"
	"net"
	"time"
)

type wallclockTimestampedReader struct {
	conn *net.UDPConn
}

func newWallclockTimestampedReader(conn *net.UDPConn) *wallclockTimestampedReader {
	return &wallclockTimestampedReader{conn: conn}
}

func (r *wallclockTimestampedReader) Now() time.Time { return time.Now() }

func (r *wallclockTimestampedReader) Read(ctx context.Context, buf []byte) (int, time.Time, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := r.conn.SetReadDeadline(deadline); err != nil {
			return 0, time.Time{}, fmt.Errorf("udptransport: set read deadline: %w", err)
		}
	}
	n, err := r.conn.Read(buf)
	return n, time.Now(), err
}
