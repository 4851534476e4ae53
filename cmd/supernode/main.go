/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

// Command supernode runs the n3n rendezvous/relay server.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Logan007/n3n/internal/community"
	"github.com/Logan007/n3n/internal/config"
	"github.com/Logan007/n3n/internal/federation"
	"github.com/Logan007/n3n/internal/mac"
	"github.com/Logan007/n3n/internal/mgmt"
	"github.com/Logan007/n3n/internal/netio"
	"github.com/Logan007/n3n/internal/slog"
	"github.com/Logan007/n3n/internal/supernode"
)

// Exit codes are a contract of the process even though the flag parser that
// produces them is an out-of-scope collaborator.
const (
	exitOK            = 0
	exitSocketFailure = -2
	exitDaemonFailure = -5
	exitConfigError   = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("c", "", "path to the supernode YAML config file")
	printExample := flag.Bool("print-example", false, "print an example config and exit")
	flag.Parse()

	if *printExample {
		if err := config.PrintExample(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitConfigError
		}
		return exitOK
	}

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: supernode -c <config.yaml>")
		return exitOK
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config %s: %v\n", *configPath, err)
		return exitConfigError
	}

	logger := slog.New(slog.ParseLevel(cfg.LogLevel), cfg.NodeName)

	selfMAC, err := resolveSelfMAC(cfg.MAC)
	if err != nil {
		logger.Errorf("invalid MAC %q: %v", cfg.MAC, err)
		return exitConfigError
	}

	var allowed *community.AllowList
	if cfg.CommunitiesFile != "" {
		names, err := config.LoadAllowedCommunities(cfg.CommunitiesFile)
		if err != nil {
			logger.Errorf("loading communities file: %v", err)
			return exitConfigError
		}
		allowed = community.NewAllowList(names)
	}

	pool := community.AutoIPPool{
		Min:    net.ParseIP(cfg.AutoIPMin),
		Max:    net.ParseIP(cfg.AutoIPMax),
		Prefix: cfg.AutoIPPrefix,
	}
	communities := community.NewTable(pool, allowed)

	fed := federation.NewSet(resolveHostname)

	udpBind := netio.NewUDPBind(cfg.ListenAddr)
	if _, _, err := udpBind.Open(uint16(cfg.ListenPort)); err != nil {
		logger.Errorf("opening main socket: %v", err)
		return exitSocketFailure
	}

	var tcpBind *netio.TCPBind
	if cfg.EnableTCP {
		tcpBind = netio.NewTCPBind(cfg.ListenAddr)
		if _, err := tcpBind.Listen(uint16(cfg.ListenPort)); err != nil {
			logger.Errorf("opening main tcp socket: %v", err)
			return exitSocketFailure
		}
	}

	bind := &netio.CompositeBind{UDP: udpBind, TCP: tcpBind}
	defer bind.Close()

	rtCfg := supernode.Config{
		SelfMAC:            selfMAC,
		Version:            cfg.Version,
		SpoofingProtection: cfg.SpoofingProtection,
		SweepInterval:      cfg.SweepIntervalSec,
		TTL:                cfg.PeerTTLSec,
		ReRegInterval:      cfg.ReRegIntervalSec,
		FedReRegInterval:   cfg.FedReRegIntervalSec,
		HeaderEncryption:   cfg.HeaderEncryption,
		CommunityPassword:  cfg.CommunityPassword,
		ReplayWindowSize:   cfg.ReplayWindowSize,
	}

	mgmtServer := mgmt.NewServer(nil, cfg.Version, cfg.ManagementPassword)
	rt := supernode.New(rtCfg, communities, fed, bind, logger, mgmtServer)
	mgmtServer.BindRuntime(rt)
	mgmtServer.SetReloadHandler(func() error {
		return reloadCommunities(cfg, communities, logger)
	})

	mgmtAddr := fmt.Sprintf("%s:%d", cfg.ManagementAddr, cfg.ManagementPort)
	mgmtLn, err := net.Listen("tcp", mgmtAddr)
	if err != nil {
		logger.Errorf("opening management listener: %v", err)
		return exitSocketFailure
	}
	mgmtLn = mgmt.NewBoundedListener(mgmtLn, mgmt.DefaultSlots)
	go func() {
		_ = http.Serve(mgmtLn, mgmtServer)
	}()

	var watcher *config.Watcher
	if cfg.CommunitiesFile != "" {
		watcher, err = config.WatchFiles(func(string) {
			_ = reloadCommunities(cfg, communities, logger)
		}, cfg.CommunitiesFile)
		if err != nil {
			logger.Errorf("watching communities file: %v", err)
		}
	}
	if watcher != nil {
		defer watcher.Close()
	}

	installSignalHandlers(rt, logger)

	recvBuf := make([]byte, 2048)
	sources := []supernode.ReceiveFunc{
		func(timeout time.Duration) ([]byte, netio.SockAddr, bool) {
			n, from, ok := udpBind.ReceiveTimeout(recvBuf, timeout)
			if !ok {
				return nil, netio.SockAddr{}, false
			}
			return recvBuf[:n], from, true
		},
	}
	if tcpBind != nil {
		sources = append(sources, tcpBind.ReceiveTimeout)
	}
	rt.Run(sources...)

	logger.Normalf("shut down")
	return exitOK
}

func resolveSelfMAC(configured string) (mac.Addr, error) {
	if configured == "" {
		return mac.RandomLocal(rand.Read)
	}
	return mac.Parse(configured)
}

func resolveHostname(hostname string) (netio.SockAddr, error) {
	ips, err := net.LookupIP(hostname)
	if err != nil || len(ips) == 0 {
		return netio.SockAddr{}, fmt.Errorf("resolve %q: %w", hostname, err)
	}
	return netio.SockAddr{Proto: netio.ProtoUDP, IP: ips[0]}, nil
}

func reloadCommunities(cfg config.SuperConfig, communities *community.Table, logger *slog.Logger) error {
	names, err := config.LoadAllowedCommunities(cfg.CommunitiesFile)
	if err != nil {
		return err
	}
	communities.SetAllowList(community.NewAllowList(names))
	if cfg.PostReloadScript != "" {
		out, err := config.RunPostReloadScript(cfg.PostReloadScript)
		if err != nil {
			logger.Errorf("post_reload_script failed: %v (output: %s)", err, out)
			return err
		}
	}
	return nil
}

// installSignalHandlers wires SIGINT/SIGTERM (two-stage: first flips
// KeepRunning, second force-exits), SIGHUP (dump registrations), and ignores
// SIGPIPE.
func installSignalHandlers(rt *supernode.Runtime, logger *slog.Logger) {
	term := make(chan os.Signal, 1)
	signal.Notify(term, syscall.SIGINT, syscall.SIGTERM)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	signal.Ignore(syscall.SIGPIPE)

	go func() {
		first := true
		for range term {
			if first {
				rt.Stop()
				first = false
				continue
			}
			logger.Errorf("second interrupt received, exiting immediately")
			os.Exit(exitOK)
		}
	}()

	go func() {
		for range hup {
			rt.DumpRegistrations()
		}
	}()
}
