// Package persistence implements the three ping-pong result reducers:
// raw per-payload lines, a running min/max latency witness, and a
// dual-axis latency histogram. The arithmetic is grounded line-for-line
// on the original Rust persistence agent; the shape (io.Writer sink,
// slog diagnostics, explicit Close) follows this module's ambient
// logging and config idiom instead of a panic-on-write-error one.
package persistence

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/malbeclabs/pingpong-bench/pkg/payload"
)

// NumBuckets is the histogram resolution on both axes; two extra buckets
// (index 0 and NumBuckets+1) catch values below min and above max.
const NumBuckets = 20000

// Offset widens the bucket range around the nominal send interval so
// jitter on either side of it still lands inside the histogram.
const Offset uint64 = 1_000_000

// Mode selects which reducer Write/Close exercise.
type Mode int

const (
	ModeRaw Mode = iota
	ModeMinMax
	ModeBuckets
)

// ParseMode maps the CLI's --measurament value to a Mode, defaulting to
// raw for anything unrecognized (matching the original's fallback).
func ParseMode(s string) Mode {
	switch s {
	case "latency":
		return ModeMinMax
	case "buckets":
		return ModeBuckets
	default:
		return ModeRaw
	}
}

// Reducer accumulates ping-pong payloads and emits a summary on Close.
type Reducer struct {
	log  *slog.Logger
	mode Mode
	w    *bufio.Writer
	c    io.Closer

	minmax  *minMaxState
	buckets *bucketState
}

// Open creates the reducer's output sink: filename, or stdout when
// filename is empty.
func Open(log *slog.Logger, mode Mode, filename string, sendIntervalNS uint64) (*Reducer, error) {
	var w io.WriteCloser
	if filename == "" {
		w = os.Stdout
	} else {
		f, err := os.Create(filename)
		if err != nil {
			return nil, fmt.Errorf("persistence: create %q: %w", filename, err)
		}
		w = f
	}

	r := &Reducer{log: log, mode: mode, w: bufio.NewWriter(w), c: w}
	switch mode {
	case ModeMinMax:
		r.minmax = newMinMaxState()
	case ModeBuckets:
		r.buckets = newBucketState(sendIntervalNS)
	}
	return r, nil
}

// Write feeds one payload to the active reducer.
func (r *Reducer) Write(p payload.Payload) error {
	switch r.mode {
	case ModeMinMax:
		r.minmax.write(p)
		return nil
	case ModeBuckets:
		return r.buckets.write(r.log, p)
	default:
		_, err := fmt.Fprintf(r.w, "%d %d %d %d %d\n", p.ID, p.TS[0], p.TS[1], p.TS[2], p.TS[3])
		return err
	}
}

// Close finalizes the reducer (writing the minmax/buckets summary, if
// applicable), flushes, and closes the sink.
func (r *Reducer) Close() error {
	switch r.mode {
	case ModeMinMax:
		r.minmax.writeTo(r.w)
	case ModeBuckets:
		r.buckets.writeTo(r.w)
	}
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("persistence: flush: %w", err)
	}
	return r.c.Close()
}

type minMaxState struct {
	min, max               uint64
	minPayload, maxPayload payload.Payload
	haveMin, haveMax       bool
}

func newMinMaxState() *minMaxState {
	return &minMaxState{min: ^uint64(0)}
}

func (s *minMaxState) write(p payload.Payload) {
	lat := p.ComputeLatency()
	if lat < s.min {
		s.min = lat
		s.minPayload = p
		s.haveMin = true
	}
	if lat > s.max {
		s.max = lat
		s.maxPayload = p
		s.haveMax = true
	}
}

func (s *minMaxState) writeTo(w io.Writer) {
	if s.haveMin {
		p := s.minPayload
		fmt.Fprintf(w, "%X: %X %X %X %X (LATENCY %X ns)\n", p.ID, p.TS[0], p.TS[1], p.TS[2], p.TS[3], s.min)
	}
	if s.haveMax {
		p := s.maxPayload
		fmt.Fprintf(w, "%X: %X %X %X %X (LATENCY %X ns)\n", p.ID, p.TS[0], p.TS[1], p.TS[2], p.TS[3], s.max)
	}
}

type bucket struct {
	rel [4]uint64
	abs uint64
}

type bucketState struct {
	totalPackets  uint64
	sendInterval  uint64
	min, max      bucket
	buckets       [NumBuckets + 2]bucket
	prev          payload.Payload
	havePrev      bool
}

func newBucketState(sendIntervalNS uint64) *bucketState {
	s := &bucketState{sendInterval: sendIntervalNS}
	s.min = bucket{rel: [4]uint64{^uint64(0), ^uint64(0), ^uint64(0), ^uint64(0)}, abs: ^uint64(0)}
	return s
}

// bucketRanges derives the relative and absolute axis ranges from the
// configured send interval, widened by Offset on both sides.
func bucketRanges(interval uint64) (relMin, relMax, absMin, absMax uint64) {
	absMin = 0
	absMax = interval + Offset
	if interval < Offset {
		return 0, interval + Offset, absMin, absMax
	}
	return interval - Offset, interval + Offset, absMin, absMax
}

// bucketIndex classifies val against [min,max] into NumBuckets+2 slots:
// 0 for underflow, NumBuckets+1 for overflow, otherwise a proportional
// bucket in between.
func bucketIndex(val, min, max uint64) int {
	if val < min {
		return 0
	}
	if val > max {
		return NumBuckets + 1
	}
	bucketSize := (max - min) / NumBuckets
	idx := int((val-min)/bucketSize) + 1
	if idx > NumBuckets {
		// (max-min) is rarely an exact multiple of NumBuckets, so values at
		// the top of the range would otherwise spill past the last bucket.
		idx = NumBuckets
	}
	return idx
}

func (s *bucketState) write(log *slog.Logger, p payload.Payload) error {
	s.totalPackets++
	if !p.IsValid() {
		s.prev = p
		s.havePrev = true
		return fmt.Errorf("persistence: invalid payload id=%d", p.ID)
	}

	var tsDiff [4]uint64
	if s.havePrev {
		if idx := payload.Monotonic(s.prev, p); idx != -1 {
			log.Error("timestamps are not monotonically increasing", "ts_index", idx, "id", p.ID)
			s.prev = p
			return fmt.Errorf("persistence: non-monotone ts[%d] at id=%d", idx, p.ID)
		}
		for i := range tsDiff {
			tsDiff[i] = p.TS[i] - s.prev.TS[i]
		}
	}

	relMin, relMax, absMin, absMax := bucketRanges(s.sendInterval)
	for i := 0; i < 4; i++ {
		if tsDiff[i] < s.min.rel[i] {
			s.min.rel[i] = tsDiff[i]
		}
		if tsDiff[i] > s.max.rel[i] {
			s.max.rel[i] = tsDiff[i]
		}
		s.buckets[bucketIndex(tsDiff[i], relMin, relMax)].rel[i]++
	}

	absLatency := p.ComputeLatency()
	if absLatency < s.min.abs {
		s.min.abs = absLatency
	}
	if absLatency > s.max.abs {
		s.max.abs = absLatency
	}
	s.buckets[bucketIndex(absLatency, absMin, absMax)].abs++

	s.prev = p
	s.havePrev = true
	return nil
}

func (s *bucketState) writeTo(w io.Writer) {
	relMin, relMax, absMin, absMax := bucketRanges(s.sendInterval)
	relBucketSize := (relMax - relMin) / NumBuckets
	absBucketSize := (absMax - absMin) / NumBuckets

	fmt.Fprintf(w, "TOT %d\n", s.totalPackets)
	fmt.Fprintf(w, "REL %d %d %d\n", relMin, relMax, relBucketSize)
	fmt.Fprintf(w, "ABS %d %d %d\n", absMin, absMax, absBucketSize)
	fmt.Fprintf(w, "MIN %d %d %d %d %d\n", s.min.rel[0], s.min.rel[1], s.min.rel[2], s.min.rel[3], s.min.abs)
	fmt.Fprintf(w, "MAX %d %d %d %d %d\n", s.max.rel[0], s.max.rel[1], s.max.rel[2], s.max.rel[3], s.max.abs)
	for _, b := range s.buckets {
		fmt.Fprintf(w, "%d %d %d %d %d\n", b.rel[0], b.rel[1], b.rel[2], b.rel[3], b.abs)
	}
}
