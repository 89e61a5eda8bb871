package rendezvous_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/malbeclabs/pingpong-bench/pkg/rendezvous"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExchange_ClientServer_RoundTrip(t *testing.T) {
	log := testLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	serverPayload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	clientPayload := []byte{9, 9, 9, 9, 9, 9, 9, 9, 9, 9}

	serverDone := make(chan struct {
		peer []byte
		err  error
	}, 1)
	go func() {
		peer, _, err := rendezvous.ServerExchange(ctx, log, serverPayload)
		serverDone <- struct {
			peer []byte
			err  error
		}{peer, err}
	}()

	time.Sleep(50 * time.Millisecond) // let the server bind before the client sends

	reply, err := rendezvous.ClientExchange(ctx, log, "127.0.0.1", clientPayload)
	require.NoError(t, err)
	require.Equal(t, serverPayload, reply)

	result := <-serverDone
	require.NoError(t, result.err)
	require.Equal(t, clientPayload, result.peer)
}
