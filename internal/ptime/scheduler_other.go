//go:build !linux

package ptime

import "errors"

// ErrPlatformNotSupported is returned by the scheduling helpers on
// non-Linux platforms.
var ErrPlatformNotSupported = errors.New("ptime: not supported on this platform")

func SetRealtimePriority(priority int) error {
	return ErrPlatformNotSupported
}

func PinCurrentThreadToCPU(cpu int) error {
	return ErrPlatformNotSupported
}
