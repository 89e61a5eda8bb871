//go:build linux

package xdp

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
)

// ProgramAttacher owns the compiled XDP program's lifecycle: attaching it
// to an interface and publishing an AF_XDP socket's file descriptor into
// its XSK map. Generating the program's bytecode is out of scope — the
// object file it loads is built and shipped separately; this type only
// knows how to load, attach, and wire it.
type ProgramAttacher interface {
	UpdateXSKMap(queueID uint32, sockFD int) error
	Close() error
}

// ebpfAttacher loads a pre-compiled XDP object via cilium/ebpf, attaches
// its program named "xdp_pingpong_filter" to ifaceIndex, and exposes the
// map named "xsks_map" for UpdateXSKMap.
type ebpfAttacher struct {
	coll *ebpf.Collection
	link link.Link
	xsks *ebpf.Map
}

// AttachProgram loads objPath (an object file produced by an external
// clang/libbpf build) and attaches its xdp_pingpong_filter program to the
// interface at ifaceIndex.
func AttachProgram(objPath string, ifaceIndex int) (ProgramAttacher, error) {
	spec, err := ebpf.LoadCollectionSpec(objPath)
	if err != nil {
		return nil, fmt.Errorf("xdp: load collection spec: %w", err)
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("xdp: new collection: %w", err)
	}
	prog, ok := coll.Programs["xdp_pingpong_filter"]
	if !ok {
		coll.Close()
		return nil, fmt.Errorf("xdp: object missing program xdp_pingpong_filter")
	}
	xsks, ok := coll.Maps["xsks_map"]
	if !ok {
		coll.Close()
		return nil, fmt.Errorf("xdp: object missing map xsks_map")
	}
	l, err := link.AttachXDP(link.XDPOptions{Program: prog, Interface: ifaceIndex})
	if err != nil {
		coll.Close()
		return nil, fmt.Errorf("xdp: attach program: %w", err)
	}
	return &ebpfAttacher{coll: coll, link: l, xsks: xsks}, nil
}

// UpdateXSKMap publishes the XSK socket's file descriptor into slot
// queueID of the XDP map, so the kernel-side program's redirect targets
// this socket for that RX queue.
func (a *ebpfAttacher) UpdateXSKMap(queueID uint32, sockFD int) error {
	if err := a.xsks.Update(queueID, uint32(sockFD), ebpf.UpdateAny); err != nil {
		return fmt.Errorf("xdp: update xsks_map: %w", err)
	}
	return nil
}

func (a *ebpfAttacher) Close() error {
	if a.link != nil {
		a.link.Close()
	}
	if a.coll != nil {
		a.coll.Close()
	}
	return nil
}
