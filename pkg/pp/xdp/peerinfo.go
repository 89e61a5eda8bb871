package xdp

import (
	"fmt"
	"net"
)

// PeerInfoSize is the wire size of PeerInfo: mac(6) + ipv4(4).
const PeerInfoSize = 10

// PeerInfo is the address-exchange record the AF_XDP backend swaps over
// pkg/rendezvous before either side can build an outgoing frame: the
// peer's source MAC (learned from its interface) and its IPv4 address.
type PeerInfo struct {
	MAC net.HardwareAddr
	IP  net.IP
}

// Serialize encodes p as the 10-byte record: 6 bytes of MAC followed by
// the 4-byte IPv4 address, in source byte order.
func (p PeerInfo) Serialize() [PeerInfoSize]byte {
	var buf [PeerInfoSize]byte
	copy(buf[0:6], p.MAC[:6])
	copy(buf[6:10], p.IP.To4())
	return buf
}

// DeserializePeerInfo decodes a 10-byte record produced by Serialize.
func DeserializePeerInfo(buf []byte) (PeerInfo, error) {
	if len(buf) < PeerInfoSize {
		return PeerInfo{}, fmt.Errorf("xdp: short peer info: got %d bytes, want %d", len(buf), PeerInfoSize)
	}
	mac := make(net.HardwareAddr, 6)
	copy(mac, buf[0:6])
	ip := make(net.IP, 4)
	copy(ip, buf[6:10])
	return PeerInfo{MAC: mac, IP: ip}, nil
}
