package transport_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/malbeclabs/pingpong-bench/internal/appconfig"
	"github.com/malbeclabs/pingpong-bench/internal/transport"
	"github.com/malbeclabs/pingpong-bench/pkg/payload"
	"github.com/malbeclabs/pingpong-bench/pkg/pp"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type openResult struct {
	ep  pp.Endpoint
	err error
}

func TestOpen_UDP_ClientServer_RoundTripThroughRendezvous(t *testing.T) {
	log := testLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	cfg := appconfig.Config{Transport: "udp", ServerIP: "127.0.0.1"}

	serverDone := make(chan openResult, 1)
	go func() {
		ep, err := transport.Open(ctx, log, cfg, true)
		serverDone <- openResult{ep, err}
	}()

	time.Sleep(50 * time.Millisecond) // let the server bind before the client dials

	clientEP, err := transport.Open(ctx, log, cfg, false)
	require.NoError(t, err)
	defer clientEP.Close()

	sres := <-serverDone
	require.NoError(t, sres.err)
	defer sres.ep.Close()

	sent := payload.New(7)
	clientEP.SetSendPayload(sent)
	require.NoError(t, clientEP.PostSend(pp.PostSendOptions{}))

	completions, err := sres.ep.PollOnce(ctx)
	require.NoError(t, err)
	require.Len(t, completions, 1)
	require.Equal(t, sent, completions[0].Payload)
}

func TestOpen_UnknownTransportFails(t *testing.T) {
	log := testLogger()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := transport.Open(ctx, log, appconfig.Config{Transport: "carrier-pigeon"}, false)
	require.Error(t, err)
}
