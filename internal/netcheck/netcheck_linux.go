//go:build linux

// Package netcheck fails fast when a caller-named interface can't
// carry an experiment: missing, or administratively/operationally
// down. This is the "bad device" half of spec.md's configuration
// fail-fast requirement — iface name typos and unplugged NICs are
// otherwise surfaced late, as an opaque socket/bind error deep inside
// a transport backend.
package netcheck

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// RequireInterfaceUp resolves name via netlink and returns an error
// unless the link is administratively up. Operational state (carrier)
// is logged by the caller rather than enforced here: a link that's
// administratively up but has no carrier yet (e.g. still negotiating)
// shouldn't block startup, only an absent or disabled interface should.
func RequireInterfaceUp(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("netcheck: lookup interface %q: %w", name, err)
	}
	attrs := link.Attrs()
	if attrs.Flags&net.FlagUp == 0 {
		return fmt.Errorf("netcheck: interface %q is administratively down", name)
	}
	return nil
}

// OperState returns a human-readable operational state string for
// --verbose startup logging (e.g. "up", "down", "unknown").
func OperState(name string) string {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return "unknown"
	}
	return link.Attrs().OperState.String()
}
