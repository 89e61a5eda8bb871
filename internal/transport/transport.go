// Package transport turns an appconfig.Config into a live pp.Endpoint:
// it runs the address-exchange handshake over pkg/rendezvous (every
// backend does; UDP uses it only so the server learns the client's
// address), then opens and connects the concrete backend.
// cmd/pingpong-client and cmd/pingpong-server both call Open, differing
// only in the isServer bit.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/malbeclabs/pingpong-bench/internal/appconfig"
	"github.com/malbeclabs/pingpong-bench/pkg/pp"
	"github.com/malbeclabs/pingpong-bench/pkg/pp/rdma"
	"github.com/malbeclabs/pingpong-bench/pkg/pp/rdma/rc"
	"github.com/malbeclabs/pingpong-bench/pkg/pp/rdma/ud"
	"github.com/malbeclabs/pingpong-bench/pkg/pp/udptransport"
	"github.com/malbeclabs/pingpong-bench/pkg/pp/xdp"
	"github.com/malbeclabs/pingpong-bench/pkg/rendezvous"
)

// Open runs the rendezvous handshake and then brings up cfg.Transport.
func Open(ctx context.Context, log *slog.Logger, cfg appconfig.Config, isServer bool) (pp.Endpoint, error) {
	switch cfg.Transport {
	case "udp":
		return openUDP(ctx, log, cfg, isServer)
	case "rc":
		return openRC(ctx, log, cfg, isServer)
	case "ud":
		return openUD(ctx, log, cfg, isServer)
	case "xdp":
		return openXDP(ctx, log, cfg, isServer)
	default:
		return nil, fmt.Errorf("transport: unknown backend %q", cfg.Transport)
	}
}

func openUDP(ctx context.Context, log *slog.Logger, cfg appconfig.Config, isServer bool) (pp.Endpoint, error) {
	if isServer {
		_, caddr, err := rendezvous.ServerExchange(ctx, log, []byte{0})
		if err != nil {
			return nil, fmt.Errorf("transport: udp rendezvous: %w", err)
		}
		return udptransport.NewServer(log, caddr)
	}
	if _, err := rendezvous.ClientExchange(ctx, log, cfg.ServerIP, []byte{0}); err != nil {
		return nil, fmt.Errorf("transport: udp rendezvous: %w", err)
	}
	return udptransport.NewClient(ctx, log, cfg.Iface, cfg.ServerIP)
}

func openRC(ctx context.Context, log *slog.Logger, cfg appconfig.Config, isServer bool) (pp.Endpoint, error) {
	ep, err := rc.Open(log, rc.Config{GIDIndex: cfg.GIDIndex, SL: cfg.SL, IsServer: isServer})
	if err != nil {
		return nil, fmt.Errorf("transport: rc open: %w", err)
	}
	peer, err := exchangeNodeInfo(ctx, log, ep.LocalNodeInfo(rdma.SeedPSN()), cfg, isServer)
	if err != nil {
		ep.Close()
		return nil, err
	}
	if err := ep.Connect(peer); err != nil {
		ep.Close()
		return nil, fmt.Errorf("transport: rc connect: %w", err)
	}
	log.Info("transport: rc connected", "peer", peer.String())
	return ep, nil
}

func openUD(ctx context.Context, log *slog.Logger, cfg appconfig.Config, isServer bool) (pp.Endpoint, error) {
	ep, err := ud.Open(log, ud.Config{GIDIndex: cfg.GIDIndex, SL: cfg.SL})
	if err != nil {
		return nil, fmt.Errorf("transport: ud open: %w", err)
	}
	peer, err := exchangeNodeInfo(ctx, log, ep.LocalNodeInfo(rdma.SeedPSN()), cfg, isServer)
	if err != nil {
		ep.Close()
		return nil, err
	}
	if err := ep.Connect(peer); err != nil {
		ep.Close()
		return nil, fmt.Errorf("transport: ud connect: %w", err)
	}
	log.Info("transport: ud connected", "peer", peer.String())
	return ep, nil
}

func exchangeNodeInfo(ctx context.Context, log *slog.Logger, local rdma.NodeInfo, cfg appconfig.Config, isServer bool) (rdma.NodeInfo, error) {
	localBuf := local.Serialize()
	if isServer {
		peerBuf, _, err := rendezvous.ServerExchange(ctx, log, localBuf[:])
		if err != nil {
			return rdma.NodeInfo{}, fmt.Errorf("transport: rdma rendezvous: %w", err)
		}
		return rdma.DeserializeNodeInfo(peerBuf)
	}
	peerBuf, err := rendezvous.ClientExchange(ctx, log, cfg.ServerIP, localBuf[:])
	if err != nil {
		return rdma.NodeInfo{}, fmt.Errorf("transport: rdma rendezvous: %w", err)
	}
	return rdma.DeserializeNodeInfo(peerBuf)
}

func openXDP(ctx context.Context, log *slog.Logger, cfg appconfig.Config, isServer bool) (pp.Endpoint, error) {
	iface, err := net.InterfaceByName(cfg.Iface)
	if err != nil {
		return nil, fmt.Errorf("transport: xdp: lookup interface %q: %w", cfg.Iface, err)
	}
	srcIP, err := firstIPv4(iface)
	if err != nil {
		return nil, fmt.Errorf("transport: xdp: %w", err)
	}

	local := xdp.PeerInfo{MAC: iface.HardwareAddr, IP: srcIP}
	localBuf := local.Serialize()

	var peerBuf []byte
	if isServer {
		peerBuf, _, err = rendezvous.ServerExchange(ctx, log, localBuf[:])
	} else {
		peerBuf, err = rendezvous.ClientExchange(ctx, log, cfg.ServerIP, localBuf[:])
	}
	if err != nil {
		return nil, fmt.Errorf("transport: xdp rendezvous: %w", err)
	}
	peer, err := xdp.DeserializePeerInfo(peerBuf)
	if err != nil {
		return nil, fmt.Errorf("transport: xdp: %w", err)
	}

	dstMAC := peer.MAC
	if cfg.DstMAC != "" {
		mac, err := net.ParseMAC(cfg.DstMAC)
		if err != nil {
			return nil, fmt.Errorf("transport: xdp: parse --dst-mac: %w", err)
		}
		dstMAC = mac
	}

	log.Info("transport: xdp peer resolved", "peer_mac", peer.MAC, "peer_ip", peer.IP)
	return xdp.Open(log, xdp.Config{
		Iface:      cfg.Iface,
		QueueID:    cfg.Queue,
		ZeroCopy:   cfg.ZeroCopy,
		PollMode:   cfg.PollMode,
		SrcMAC:     iface.HardwareAddr,
		DstMAC:     dstMAC,
		SrcIP:      srcIP,
		DstIP:      peer.IP,
		ProgramObj: cfg.ProgramObj,
	})
}

func firstIPv4(iface *net.Interface) (net.IP, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("list addresses on %q: %w", iface.Name, err)
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("no IPv4 address on interface %q", iface.Name)
}
