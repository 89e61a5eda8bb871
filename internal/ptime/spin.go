package ptime

import "runtime"

// spinHint is called on every iteration of the busy-wait tail in Sleep.
// It carries no delay of its own; it exists so the busy loop yields the
// P between NowNS() calls instead of monopolizing the OS thread when
// GOMAXPROCS is constrained.
func spinHint() {
	runtime.Gosched()
}
