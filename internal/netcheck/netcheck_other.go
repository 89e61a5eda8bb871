//go:build !linux

package netcheck

import (
	"fmt"
	"net"
)

// RequireInterfaceUp is the non-Linux fallback: vishvananda/netlink only
// builds on Linux, so elsewhere we fall back to the stdlib's coarser
// per-interface flag check.
func RequireInterfaceUp(name string) error {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return fmt.Errorf("netcheck: lookup interface %q: %w", name, err)
	}
	if iface.Flags&net.FlagUp == 0 {
		return fmt.Errorf("netcheck: interface %q is down", name)
	}
	return nil
}

func OperState(name string) string {
	return "unknown"
}
