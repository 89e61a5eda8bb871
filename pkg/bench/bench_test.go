package bench_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/malbeclabs/pingpong-bench/pkg/bench"
	"github.com/malbeclabs/pingpong-bench/pkg/payload"
	"github.com/malbeclabs/pingpong-bench/pkg/persistence"
	"github.com/malbeclabs/pingpong-bench/pkg/pp"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pipeEndpoint implements pp.Endpoint over a pair of Go channels, letting
// the client and server drivers exercise the real bench.Client/Server
// wiring without any real transport.
type pipeEndpoint struct {
	send    chan payload.Payload
	recv    chan payload.Payload
	slot    payload.Payload
}

func newPipe() (client, server *pipeEndpoint) {
	c2s := make(chan payload.Payload, 16)
	s2c := make(chan payload.Payload, 16)
	return &pipeEndpoint{send: c2s, recv: s2c}, &pipeEndpoint{send: s2c, recv: c2s}
}

func (e *pipeEndpoint) SetSendPayload(p payload.Payload) { e.slot = p }
func (e *pipeEndpoint) PostSend(pp.PostSendOptions) error {
	e.send <- e.slot
	return nil
}
func (e *pipeEndpoint) PostRecv(n int) (int, error) { return n, nil }
func (e *pipeEndpoint) PollOnce(ctx context.Context) ([]pp.Completion, error) {
	select {
	case p := <-e.recv:
		return []pp.Completion{{Payload: p, IsSend: false}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
func (e *pipeEndpoint) Base() any   { return nil }
func (e *pipeEndpoint) Close() error { return nil }

// scriptedEndpoint replays a fixed sequence of completions from PollOnce,
// one per call, ignoring sends entirely. It lets a test exercise
// Client.Run's per-completion validity handling without a real sender.
type scriptedEndpoint struct {
	completions []pp.Completion
	i           int
}

func (e *scriptedEndpoint) SetSendPayload(payload.Payload)    {}
func (e *scriptedEndpoint) PostSend(pp.PostSendOptions) error { return nil }
func (e *scriptedEndpoint) PostRecv(n int) (int, error)       { return n, nil }
func (e *scriptedEndpoint) Base() any                         { return nil }
func (e *scriptedEndpoint) Close() error                      { return nil }
func (e *scriptedEndpoint) PollOnce(ctx context.Context) ([]pp.Completion, error) {
	if e.i >= len(e.completions) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c := e.completions[e.i]
	e.i++
	return []pp.Completion{c}, nil
}

func TestClient_Run_DropsInvalidPayloadInsteadOfForwardingIt(t *testing.T) {
	valid := payload.New(1)
	invalid := payload.New(2)
	invalid.Magic = invalid.Magic + 1 // corrupt the magic so IsValid() is false

	ep := &scriptedEndpoint{completions: []pp.Completion{
		{Payload: invalid, IsSend: false},
		{Payload: valid, IsSend: false},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	path := filepath.Join(t.TempDir(), "out.txt")
	reducer, err := persistence.Open(testLogger(), persistence.ModeRaw, path, 1_000)
	require.NoError(t, err)

	client := &bench.Client{
		Log: testLogger(), Endpoint: ep, Reducer: reducer,
		Cfg: bench.ClientConfig{Iters: 1, IntervalNS: 1_000, ThresholdNS: 500},
	}
	require.NoError(t, client.Run(ctx))
	require.NoError(t, reducer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	require.True(t, strings.HasPrefix(lines[0], "1 "))
}

func TestClientServer_EndToEnd_OverInMemoryPipe(t *testing.T) {
	clientEP, serverEP := newPipe()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const iters = 20

	client := &bench.Client{
		Log: testLogger(), Endpoint: clientEP,
		Cfg: bench.ClientConfig{Iters: iters, IntervalNS: 1_000, ThresholdNS: 500},
	}
	server := &bench.Server{
		Log: testLogger(), Endpoint: serverEP,
		Cfg: bench.ServerConfig{Iters: iters},
	}

	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Run(ctx) }()

	require.NoError(t, client.Run(ctx))
	require.NoError(t, <-serverDone)
}
