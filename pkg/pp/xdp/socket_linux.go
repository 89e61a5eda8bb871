//go:build linux

package xdp

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux UAPI constants for AF_XDP (linux/if_xdp.h). x/sys/unix does not
// expose typed helpers for every XDP sockopt, so these are the raw
// values a libxdp-equivalent binding sets directly via setsockopt/mmap,
// the same way the kernel timestamp reader falls back to raw
// unix.Recvmsg where net doesn't have a typed helper either.
const (
	afXDP = 44

	solXDP = 283

	xdpMmapOffsets         = 1
	xdpRxRing              = 2
	xdpTxRing              = 3
	xdpUmemReg             = 4
	xdpUmemFillRing        = 5
	xdpUmemCompletionRing  = 6

	xdpPgoffRxRing             = 0
	xdpPgoffTxRing             = 0x80000000
	xdpUmemPgoffFillRing       = 0x100000000
	xdpUmemPgoffCompletionRing = 0x180000000

	xdpCopy     = 1 << 1
	xdpZeroCopy = 1 << 2
)

type xdpRingOffset struct {
	Producer, Consumer, Desc, Flags uint64
}

type xdpMmapOffsetsT struct {
	Rx, Tx, Fr, Cr xdpRingOffset
}

type xdpUmemRegT struct {
	Addr     uint64
	Len      uint64
	ChunkSz  uint32
	Headroom uint32
	Flags    uint32
	_        uint32
}

type xdpDesc struct {
	Addr    uint64
	Len     uint32
	Options uint32
}

type sockaddrXDP struct {
	Family       uint16
	Flags        uint16
	Ifindex      uint32
	QueueID      uint32
	SharedUmemFD uint32
}

// ring is a lock-free single-producer/single-consumer ring shared with
// the kernel via an mmap'd region. prod/cons point at the kernel's
// producer/consumer cursors; descs points at the ring's descriptor (or
// uint64 address, for fill/completion rings) array.
type ring struct {
	mem    []byte
	prod   *uint32
	cons   *uint32
	flags  *uint32
	descsU []uint64 // used by fill/completion rings
	descsD []xdpDesc // used by RX/TX rings
	mask   uint32
}

func mapRing(fd int, off xdpRingOffset, pgoff int64, entries uint32, isDescRing bool) (*ring, error) {
	elemSize := uint64(8)
	if isDescRing {
		elemSize = uint64(unsafe.Sizeof(xdpDesc{}))
	}
	mmapLen := off.Desc + uint64(entries)*elemSize
	mem, err := unix.Mmap(fd, pgoff, int(mmapLen), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return nil, fmt.Errorf("xdp: mmap ring: %w", err)
	}
	r := &ring{
		mem:  mem,
		prod: (*uint32)(unsafe.Pointer(&mem[off.Producer])),
		cons: (*uint32)(unsafe.Pointer(&mem[off.Consumer])),
		mask: entries - 1,
	}
	if isDescRing {
		r.descsD = unsafe.Slice((*xdpDesc)(unsafe.Pointer(&mem[off.Desc])), entries)
	} else {
		r.descsU = unsafe.Slice((*uint64)(unsafe.Pointer(&mem[off.Desc])), entries)
	}
	return r, nil
}

func (r *ring) unmap() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	return err
}

func setsockoptBytes(fd, level, opt int, data []byte) error {
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(fd), uintptr(level), uintptr(opt),
		uintptr(unsafe.Pointer(&data[0])), uintptr(len(data)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func getsockoptBytes(fd, level, opt int, data []byte) error {
	l := uint32(len(data))
	_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT, uintptr(fd), uintptr(level), uintptr(opt),
		uintptr(unsafe.Pointer(&data[0])), uintptr(unsafe.Pointer(&l)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func setsockoptU32(fd, level, opt int, v uint32) error {
	return unix.SetsockoptUint64(fd, level, opt, uint64(v))
}

// structBytes views a fixed C-layout struct as a byte slice for use with
// setsockopt/getsockopt, the same unsafe-pointer trick the kernel
// timestamp reader uses to read a syscall.Timespec out of a cmsg.
func structBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

func bindXDP(fd int, sa *sockaddrXDP) error {
	_, _, errno := unix.Syscall(unix.SYS_BIND, uintptr(fd), uintptr(unsafe.Pointer(sa)), unsafe.Sizeof(*sa))
	if errno != 0 {
		return errno
	}
	return nil
}

// kick nudges the kernel to drain the TX ring. AF_XDP wakes the TX path
// via a zero-length sendto rather than a dedicated ioctl.
func kick(fd int) error {
	_, _, errno := unix.Syscall6(unix.SYS_SENDTO, uintptr(fd), 0, 0, uintptr(unix.MSG_DONTWAIT), 0, 0)
	if errno != 0 && errno != unix.EAGAIN && errno != unix.EBUSY && errno != unix.ENOBUFS {
		return errno
	}
	return nil
}

func pollFD(fd int) error {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	_, err := unix.Poll(pfd, -1)
	return err
}
