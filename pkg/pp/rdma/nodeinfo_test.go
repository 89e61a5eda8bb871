package rdma_test

import (
	"testing"

	"github.com/malbeclabs/pingpong-bench/pkg/pp/rdma"
	"github.com/stretchr/testify/require"
)

func TestNodeInfo_SerializeDeserialize_RoundTrip(t *testing.T) {
	n := rdma.NodeInfo{
		LID: 0x1234,
		QPN: 0xAABBCC,
		PSN: 0x00FFEE,
		GID: [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
	}
	buf := n.Serialize()
	require.Len(t, buf, rdma.NodeInfoSize)

	got, err := rdma.DeserializeNodeInfo(buf[:])
	require.NoError(t, err)
	require.Equal(t, n, got)
}

func TestDeserializeNodeInfo_ShortBuffer(t *testing.T) {
	_, err := rdma.DeserializeNodeInfo(make([]byte, 10))
	require.Error(t, err)
}

func TestNodeInfo_Validate_RejectsZeroLIDOnInfiniBand(t *testing.T) {
	n := rdma.NodeInfo{LID: 0}
	require.Error(t, n.Validate(true))
	require.NoError(t, n.Validate(false))
}

func TestSeedPSN_Within24Bits(t *testing.T) {
	psn := rdma.SeedPSN()
	require.LessOrEqual(t, psn, uint32(0xFFFFFF))
}
