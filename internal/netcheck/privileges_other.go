//go:build !linux

package netcheck

// RequirePrivileges is a no-op outside Linux: capability checks are a
// Linux-specific concept, and the backends that need CAP_NET_RAW/
// CAP_NET_ADMIN (AF_XDP, SO_BINDTODEVICE) only build on Linux anyway.
func RequirePrivileges(bindingToIface bool) error { return nil }
