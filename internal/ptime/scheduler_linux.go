//go:build linux

package ptime

/*
#define _GNU_SOURCE
#include <pthread.h>
#include <sched.h>
#include <unistd.h>

int pingpong_set_realtime_priority(int prio) {
	struct sched_param param;
	param.sched_priority = prio;
	return pthread_setschedparam(pthread_self(), SCHED_FIFO, &param);
}
*/
import "C"

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// SetRealtimePriority pins the calling goroutine to its OS thread and
// raises that thread to SCHED_FIFO at the given priority, reducing
// scheduling jitter for the sender pacer loop. It requires CAP_SYS_NICE
// or root; callers should treat failure as non-fatal (the pacer still
// functions, just with looser jitter bounds).
func SetRealtimePriority(priority int) error {
	runtime.LockOSThread()
	if ret := C.pingpong_set_realtime_priority(C.int(priority)); ret != 0 {
		return fmt.Errorf("pthread_setschedparam failed: %d", ret)
	}
	return nil
}

// PinCurrentThreadToCPU pins the calling goroutine's OS thread to a single
// CPU, matching the teacher's affinity helper.
func PinCurrentThreadToCPU(cpu int) error {
	runtime.LockOSThread()
	var mask unix.CPUSet
	mask.Set(cpu)
	return unix.SchedSetaffinity(0, &mask)
}
