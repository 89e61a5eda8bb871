package appconfig_test

import (
	"testing"
	"time"

	"github.com/malbeclabs/pingpong-bench/internal/appconfig"
	"github.com/stretchr/testify/require"
)

func valid() appconfig.Config {
	return appconfig.Config{
		Transport:   "udp",
		Packets:     10,
		Interval:    time.Millisecond,
		Threshold:   50 * time.Microsecond,
		ServerIP:    "127.0.0.1",
		Measurament: "all",
		Iface:       "eth0",
	}
}

func TestValidate_AcceptsWellFormedClientConfig(t *testing.T) {
	c := valid()
	require.NoError(t, c.Validate(false))
}

func TestValidate_ServerDoesNotRequireServerIP(t *testing.T) {
	c := valid()
	c.ServerIP = ""
	require.NoError(t, c.Validate(true))
}

func TestValidate_RejectsUnknownTransport(t *testing.T) {
	c := valid()
	c.Transport = "quic"
	require.Error(t, c.Validate(false))
}

func TestValidate_RejectsZeroPackets(t *testing.T) {
	c := valid()
	c.Packets = 0
	require.Error(t, c.Validate(false))
}

func TestValidate_RejectsUnknownMeasurament(t *testing.T) {
	c := valid()
	c.Measurament = "p99"
	require.Error(t, c.Validate(false))
}

func TestValidate_ClientRequiresServerIP(t *testing.T) {
	c := valid()
	c.ServerIP = ""
	require.Error(t, c.Validate(false))
}

func TestValidate_XDPRequiresProgramObject(t *testing.T) {
	c := valid()
	c.Transport = "xdp"
	c.ProgramObj = ""
	require.Error(t, c.Validate(false))
}

func TestValidate_XDPRejectsMalformedDstMAC(t *testing.T) {
	c := valid()
	c.Transport = "xdp"
	c.ProgramObj = "/tmp/xsk.o"
	c.DstMAC = "not-a-mac"
	require.Error(t, c.Validate(false))
}

func TestValidate_RDMATransportsDoNotRequireIface(t *testing.T) {
	c := valid()
	c.Transport = "rc"
	c.Iface = ""
	require.NoError(t, c.Validate(false))
}
