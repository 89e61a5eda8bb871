// Command pingpong-client drives the client side of a ping-pong
// latency experiment: it paces N sends at a target interval over the
// chosen transport, stamps each arrival, and reduces the results
// through one of the raw/minmax/bucket persistence modes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"github.com/malbeclabs/pingpong-bench/internal/appconfig"
	"github.com/malbeclabs/pingpong-bench/internal/netcheck"
	"github.com/malbeclabs/pingpong-bench/internal/transport"
	"github.com/malbeclabs/pingpong-bench/pkg/bench"
	"github.com/malbeclabs/pingpong-bench/pkg/persistence"
)

func main() {
	var (
		cfg        appconfig.Config
		verbose    bool
		intervalNS uint64
	)

	pflag.StringVarP(&cfg.Transport, "transport", "T", "udp", "backend: udp, rc, ud, or xdp")
	pflag.Uint64VarP(&cfg.Packets, "packets", "n", 1000, "number of packets to send (>0)")
	interval := pflag.DurationP("interval", "I", time.Millisecond, "target inter-send interval")
	threshold := pflag.Duration("threshold", 50*time.Microsecond, "pacer busy-wait spin threshold")
	pflag.StringVarP(&cfg.ServerIP, "server", "s", "", "server IPv4 address (required)")
	pflag.StringVarP(&cfg.Measurament, "measurament", "m", "all", "output mode: all, latency, or buckets")
	pflag.StringVarP(&cfg.Out, "out", "o", "", "output file (default: stdout)")
	pflag.BoolVar(&cfg.Realtime, "realtime", false, "raise the sender pacer to realtime scheduling priority")
	pflag.StringVarP(&cfg.Iface, "iface", "i", "", "egress interface (udp, xdp)")
	pflag.StringVarP(&cfg.Device, "dev", "d", "", "RDMA device name (rc, ud; informational — the first enumerated device is always used)")
	pflag.IntVarP(&cfg.GIDIndex, "gidx", "g", 0, "RDMA GID index (rc, ud)")
	sl := pflag.Uint8("sl", 0, "RDMA service level (rc, ud)")
	pflag.Uint32Var(&cfg.Queue, "queue", 0, "AF_XDP NIC queue id (xdp)")
	pflag.StringVar(&cfg.ProgramObj, "prog", "", "path to the compiled XDP program object (xdp)")
	pflag.BoolVar(&cfg.ZeroCopy, "zerocopy", false, "request AF_XDP zero-copy mode (xdp)")
	pflag.BoolVar(&cfg.PollMode, "pollmode", false, "gate AF_XDP receive on poll(2) instead of busy-polling (xdp)")
	pflag.StringVar(&cfg.DstMAC, "dst-mac", "", "override the peer MAC learned via rendezvous (xdp)")
	pflag.BoolVarP(&verbose, "verbose", "v", false, "enable debug logs")
	pflag.Parse()

	cfg.Interval = *interval
	cfg.Threshold = *threshold
	cfg.SL = *sl
	intervalNS = uint64(cfg.Interval.Nanoseconds())

	if err := cfg.Validate(false); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		pflag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.RFC3339}))

	if cfg.Transport == "xdp" {
		if err := netcheck.RequirePrivileges(true); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
	if cfg.Iface != "" {
		if err := netcheck.RequireInterfaceUp(cfg.Iface); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
		log.Debug("interface check passed", "iface", cfg.Iface, "oper_state", netcheck.OperState(cfg.Iface))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("pingpong-client starting", "transport", cfg.Transport, "server", cfg.ServerIP, "packets", cfg.Packets, "interval", cfg.Interval)

	ep, err := transport.Open(ctx, log, cfg, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s transport: %v\n", cfg.Transport, err)
		os.Exit(1)
	}
	defer ep.Close()

	reducer, err := persistence.Open(log, persistence.ParseMode(cfg.Measurament), cfg.Out, intervalNS)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open persistence sink: %v\n", err)
		os.Exit(1)
	}

	client := &bench.Client{
		Log:      log,
		Endpoint: ep,
		Reducer:  reducer,
		Cfg: bench.ClientConfig{
			Iters:       cfg.Packets,
			IntervalNS:  intervalNS,
			ThresholdNS: uint64(cfg.Threshold.Nanoseconds()),
			Realtime:    cfg.Realtime,
		},
	}

	if err := client.Run(ctx); err != nil {
		if ctx.Err() != nil {
			log.Info("pingpong-client interrupted")
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "experiment failed: %v\n", err)
		os.Exit(1)
	}

	if err := reducer.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to finalize persistence output: %v\n", err)
		os.Exit(1)
	}
	log.Info("pingpong-client finished", "packets", cfg.Packets)
}
