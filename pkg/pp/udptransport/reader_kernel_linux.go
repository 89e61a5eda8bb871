//go:build linux

package udptransport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// kernelTimestampedReader reads RX timestamps off SO_TIMESTAMPNS control
// messages, reporting when the kernel actually saw the packet rather than
// when the application goroutine got scheduled to read it.
type kernelTimestampedReader struct {
	log  *slog.Logger
	conn *net.UDPConn
	fd   int
}

func newKernelTimestampedReader(log *slog.Logger, conn *net.UDPConn) (*kernelTimestampedReader, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return nil, err
	}
	var fd int
	if err := rawConn.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMPNS, 1); err != nil {
		return nil, fmt.Errorf("udptransport: set SO_TIMESTAMPNS: %w", err)
	}
	return &kernelTimestampedReader{log: log, conn: conn, fd: fd}, nil
}

func (r *kernelTimestampedReader) Now() time.Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return time.Time{}
	}
	return time.Unix(ts.Sec, ts.Nsec)
}

func (r *kernelTimestampedReader) Read(ctx context.Context, buf []byte) (int, time.Time, error) {
	oob := make([]byte, 512)
	for {
		select {
		case <-ctx.Done():
			return 0, time.Time{}, ctx.Err()
		default:
		}

		n, oobn, _, _, err := unix.Recvmsg(r.fd, buf, oob, 0)
		if err != nil {
			if errno, ok := err.(syscall.Errno); ok && (errno == syscall.EAGAIN || errno == syscall.EWOULDBLOCK) {
				time.Sleep(time.Millisecond)
				continue
			}
			return 0, time.Time{}, fmt.Errorf("udptransport: recvmsg: %w", err)
		}

		cmsgs, _ := syscall.ParseSocketControlMessage(oob[:oobn])
		for _, cmsg := range cmsgs {
			if cmsg.Header.Level != syscall.SOL_SOCKET || cmsg.Header.Type != syscall.SO_TIMESTAMPNS {
				continue
			}
			if len(cmsg.Data) < int(unsafe.Sizeof(syscall.Timespec{})) {
				continue
			}
			ts := *(*syscall.Timespec)(unsafe.Pointer(&cmsg.Data[0]))
			return n, time.Unix(int64(ts.Sec), int64(ts.Nsec)), nil
		}
		return n, time.Time{}, fmt.Errorf("udptransport: no timestamp in control message")
	}
}
