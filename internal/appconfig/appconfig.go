// Package appconfig holds the CLI-facing experiment configuration
// shared by cmd/pingpong-client and cmd/pingpong-server, and its
// fail-fast Validate, matching the teacher's
// SenderConfig/ListenerConfig.Validate convention.
package appconfig

import (
	"fmt"
	"net"
	"time"
)

// Config is the flag surface common to both roles. Not every field
// applies to every --transport; Validate enforces the subset each
// backend actually needs.
type Config struct {
	Transport   string
	Packets     uint64
	Interval    time.Duration
	Threshold   time.Duration
	ServerIP    string
	Measurament string
	Out         string
	Realtime    bool

	Iface string

	Device   string
	GIDIndex int
	SL       uint8

	Queue      uint32
	ProgramObj string
	ZeroCopy   bool
	PollMode   bool
	DstMAC     string
}

// Validate fails fast on configuration that can never produce a
// working experiment, per spec.md's "bad IP, missing device, unknown
// --measurament" requirement. isServer is false for
// cmd/pingpong-client, true for cmd/pingpong-server.
func (c *Config) Validate(isServer bool) error {
	switch c.Transport {
	case "udp", "rc", "ud", "xdp":
	default:
		return fmt.Errorf("appconfig: unknown --transport %q (want udp, rc, ud, or xdp)", c.Transport)
	}
	if c.Packets == 0 {
		return fmt.Errorf("appconfig: --packets must be > 0")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("appconfig: --interval must be > 0")
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("appconfig: --threshold must be > 0")
	}
	if !isServer && c.ServerIP == "" {
		return fmt.Errorf("appconfig: --server is required")
	}
	if !isServer && net.ParseIP(c.ServerIP).To4() == nil {
		return fmt.Errorf("appconfig: --server %q is not an IPv4 address", c.ServerIP)
	}
	switch c.Measurament {
	case "all", "latency", "buckets":
	default:
		return fmt.Errorf("appconfig: unknown --measurament %q (want all, latency, or buckets)", c.Measurament)
	}

	switch c.Transport {
	case "udp", "xdp":
		if c.Iface == "" {
			return fmt.Errorf("appconfig: --iface is required for transport %q", c.Transport)
		}
	}
	if c.Transport == "xdp" {
		if c.ProgramObj == "" {
			return fmt.Errorf("appconfig: --prog is required for transport \"xdp\"")
		}
		if c.DstMAC != "" {
			if _, err := net.ParseMAC(c.DstMAC); err != nil {
				return fmt.Errorf("appconfig: --dst-mac: %w", err)
			}
		}
	}
	return nil
}
