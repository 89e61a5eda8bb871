package xdp_test

import (
	"net"
	"testing"

	"github.com/malbeclabs/pingpong-bench/pkg/pp/xdp"
	"github.com/stretchr/testify/require"
)

func TestPeerInfo_SerializeDeserialize_RoundTrip(t *testing.T) {
	p := xdp.PeerInfo{
		MAC: net.HardwareAddr{0x02, 0x11, 0x22, 0x33, 0x44, 0x55},
		IP:  net.IPv4(10, 0, 0, 7),
	}
	buf := p.Serialize()
	require.Len(t, buf, xdp.PeerInfoSize)

	got, err := xdp.DeserializePeerInfo(buf[:])
	require.NoError(t, err)
	require.Equal(t, p.MAC, got.MAC)
	require.True(t, p.IP.Equal(got.IP))
}

func TestPeerInfo_Deserialize_ShortBufferFails(t *testing.T) {
	_, err := xdp.DeserializePeerInfo([]byte{1, 2, 3})
	require.Error(t, err)
}
