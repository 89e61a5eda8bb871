//go:build !linux

package xdp

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/malbeclabs/pingpong-bench/pkg/payload"
	"github.com/malbeclabs/pingpong-bench/pkg/pp"
)

var ErrPlatformNotSupported = errors.New("xdp: AF_XDP is only supported on linux")

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

type Endpoint struct{}

func Open(log *slog.Logger, cfg Config) (*Endpoint, error) { return nil, ErrPlatformNotSupported }

func (e *Endpoint) SetSendPayload(p payload.Payload)            {}
func (e *Endpoint) PostSend(pp.PostSendOptions) error            { return ErrPlatformNotSupported }
func (e *Endpoint) PostRecv(n int) (int, error)                  { return 0, ErrPlatformNotSupported }
func (e *Endpoint) PollOnce(ctx context.Context) ([]pp.Completion, error) {
	return nil, ErrPlatformNotSupported
}
func (e *Endpoint) Base() any    { return nil }
func (e *Endpoint) Close() error { return nil }
