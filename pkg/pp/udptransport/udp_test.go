package udptransport_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/malbeclabs/pingpong-bench/pkg/payload"
	"github.com/malbeclabs/pingpong-bench/pkg/pp"
	"github.com/malbeclabs/pingpong-bench/pkg/pp/udptransport"
	"github.com/malbeclabs/pingpong-bench/pkg/rendezvous"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEndpoint_ClientServer_SendReceiveRoundTrip(t *testing.T) {
	log := testLogger()
	clientAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: rendezvous.ClientPort}

	server, err := udptransport.NewServer(log, clientAddr)
	require.NoError(t, err)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := udptransport.NewClient(ctx, log, "", "127.0.0.1")
	require.NoError(t, err)
	defer client.Close()

	sent := payload.New(42)
	client.SetSendPayload(sent)
	require.NoError(t, client.PostSend(pp.PostSendOptions{}))

	completions, err := server.PollOnce(ctx)
	require.NoError(t, err)
	require.Len(t, completions, 1)
	require.Equal(t, sent, completions[0].Payload)
}

func TestEndpoint_Close_SecondCloseReturnsError(t *testing.T) {
	log := testLogger()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	client, err := udptransport.NewClient(ctx, log, "", "127.0.0.1")
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.Error(t, client.Close())
}
