package persistence_test

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/malbeclabs/pingpong-bench/pkg/payload"
	"github.com/malbeclabs/pingpong-bench/pkg/persistence"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mkPayload(id uint64, ts0, ts1, ts2, ts3 uint64) payload.Payload {
	p := payload.New(id)
	p.TS = [4]uint64{ts0, ts1, ts2, ts3}
	return p
}

func TestParseMode(t *testing.T) {
	require.Equal(t, persistence.ModeRaw, persistence.ParseMode("all"))
	require.Equal(t, persistence.ModeMinMax, persistence.ParseMode("latency"))
	require.Equal(t, persistence.ModeBuckets, persistence.ParseMode("buckets"))
	require.Equal(t, persistence.ModeRaw, persistence.ParseMode("nonsense"))
}

func TestReducer_Raw_WritesOneLinePerPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	r, err := persistence.Open(testLogger(), persistence.ModeRaw, path, 1000)
	require.NoError(t, err)

	require.NoError(t, r.Write(mkPayload(1, 10, 20, 30, 40)))
	require.NoError(t, r.Write(mkPayload(2, 11, 21, 31, 41)))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "1 10 20 30 40", lines[0])
}

func TestReducer_MinMax_TracksExtremeLatencies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	r, err := persistence.Open(testLogger(), persistence.ModeMinMax, path, 1000)
	require.NoError(t, err)

	// latency = ((ts3-ts0)-(ts2-ts1))/2
	require.NoError(t, r.Write(mkPayload(1, 0, 0, 0, 100))) // latency 50
	require.NoError(t, r.Write(mkPayload(2, 0, 0, 0, 10)))  // latency 5
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "2:")
	require.Contains(t, lines[1], "1:")
}

func TestReducer_Buckets_EmitsHeaderAndAllBuckets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	r, err := persistence.Open(testLogger(), persistence.ModeBuckets, path, 1000)
	require.NoError(t, err)

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, r.Write(mkPayload(i, i*100, i*100, i*100, i*100+50)))
	}
	require.NoError(t, r.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.True(t, strings.HasPrefix(lines[0], "TOT 5"))
	require.True(t, strings.HasPrefix(lines[1], "REL"))
	require.True(t, strings.HasPrefix(lines[2], "ABS"))
	require.True(t, strings.HasPrefix(lines[3], "MIN"))
	require.True(t, strings.HasPrefix(lines[4], "MAX"))
	require.Len(t, lines, 5+persistence.NumBuckets+2)
}

func TestReducer_Buckets_RangesBelowOffsetClampRelMinToZero(t *testing.T) {
	// interval=100_000 < Offset=1_000_000: REL range is [0, interval+Offset],
	// not [0, 2*Offset].
	path := filepath.Join(t.TempDir(), "out.txt")
	r, err := persistence.Open(testLogger(), persistence.ModeBuckets, path, 100_000)
	require.NoError(t, err)
	require.NoError(t, r.Write(mkPayload(1, 100, 200, 300, 400)))
	require.NoError(t, r.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	relMax := 100_000 + int(persistence.Offset)
	require.Equal(t, fmt.Sprintf("REL 0 %d %d", relMax, relMax/persistence.NumBuckets), lines[1])
}

func TestReducer_Buckets_NonMonotoneTimestampIsDiagnosedNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	r, err := persistence.Open(testLogger(), persistence.ModeBuckets, path, 1000)
	require.NoError(t, err)

	require.NoError(t, r.Write(mkPayload(1, 100, 100, 100, 150)))
	err = r.Write(mkPayload(2, 50, 100, 100, 150)) // ts[0] went backwards
	require.Error(t, err)
	require.NoError(t, r.Write(mkPayload(3, 200, 200, 200, 250)))
	require.NoError(t, r.Close())
}

func TestReducer_Buckets_InvalidPayloadIsDiagnosedNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	r, err := persistence.Open(testLogger(), persistence.ModeBuckets, path, 1000)
	require.NoError(t, err)

	bad := mkPayload(1, 100, 100, 100, 150)
	bad.Magic = 0
	err = r.Write(bad)
	require.Error(t, err)
	require.NoError(t, r.Write(mkPayload(2, 200, 200, 200, 250)))
	require.NoError(t, r.Close())
}
