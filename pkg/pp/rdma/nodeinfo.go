// Package rdma holds the pieces shared by the RC and UD backends: the
// wire-format peer node info exchanged over pkg/rendezvous, and the PSN
// seeding used to bring a queue pair up without a prior handshake.
package rdma

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// NodeInfoSize is the wire size of NodeInfo: lid(2) + qpn(4) + psn(4) + gid(16).
const NodeInfoSize = 26

// NodeInfo is the peer-identifying record RC and UD endpoints exchange
// over the rendezvous handshake before bringing their queue pair to RTR.
type NodeInfo struct {
	LID uint16
	QPN uint32
	PSN uint32
	GID [16]byte
}

// SeedPSN derives a 24-bit starting packet sequence number from the
// process ID and the wall-clock second, so repeated runs on the same host
// don't collide on a stale PSN left over from a prior RC connection.
func SeedPSN() uint32 {
	seed := uint32(os.Getpid()) * uint32(time.Now().Unix())
	return seed & 0xFFFFFF
}

// Serialize encodes n as the 26-byte little-endian wire record.
func (n NodeInfo) Serialize() [NodeInfoSize]byte {
	var buf [NodeInfoSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], n.LID)
	binary.LittleEndian.PutUint32(buf[2:6], n.QPN)
	binary.LittleEndian.PutUint32(buf[6:10], n.PSN)
	copy(buf[10:26], n.GID[:])
	return buf
}

// DeserializeNodeInfo decodes a 26-byte little-endian wire record.
func DeserializeNodeInfo(buf []byte) (NodeInfo, error) {
	if len(buf) < NodeInfoSize {
		return NodeInfo{}, fmt.Errorf("rdma: short node info: got %d bytes, want %d", len(buf), NodeInfoSize)
	}
	var n NodeInfo
	n.LID = binary.LittleEndian.Uint16(buf[0:2])
	n.QPN = binary.LittleEndian.Uint32(buf[2:6])
	n.PSN = binary.LittleEndian.Uint32(buf[6:10])
	copy(n.GID[:], buf[10:26])
	return n, nil
}

// Validate rejects a node whose link layer is InfiniBand but whose LID is
// unassigned (0) — the subnet manager hasn't brought the port up, and a
// queue pair built from this record can never reach RTR.
func (n NodeInfo) Validate(isInfiniBand bool) error {
	if isInfiniBand && n.LID == 0 {
		return fmt.Errorf("rdma: node info has LID 0 on an InfiniBand port")
	}
	return nil
}

func (n NodeInfo) String() string {
	return fmt.Sprintf("NodeInfo{lid=%#04x qpn=%d psn=%d gid=%x}", n.LID, n.QPN, n.PSN, n.GID)
}
