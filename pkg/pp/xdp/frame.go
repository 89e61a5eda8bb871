package xdp

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/malbeclabs/pingpong-bench/pkg/payload"
)

// etherTypePingPong is the project-specific EtherType the XDP filter
// matches on; it carries no real IP payload so IPv4's protocol field is
// set to a reserved sentinel rather than a real transport protocol.
const (
	etherTypePingPong  = 0x2002
	reservedIPProtocol = 0xFD // IANA-reserved "for experimentation"
)

// buildFrame synthesizes a minimal Ethernet+IPv4 header around p and
// returns the wire bytes. The IPv4 header carries no meaningful payload
// semantics — it exists only so the frame is long enough and shaped
// enough for the XDP filter's length/EtherType check.
func buildFrame(srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP net.IP, p payload.Payload) ([]byte, error) {
	eth := layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetType(etherTypePingPong),
	}
	ip := layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocol(reservedIPProtocol),
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	body := p.Serialize()

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &ip, gopacket.Payload(body[:])); err != nil {
		return nil, fmt.Errorf("xdp: serialize frame: %w", err)
	}
	return buf.Bytes(), nil
}
