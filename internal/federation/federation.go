/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

// Package federation implements the registry of peer supernodes and the
// forwarding of traffic that could not be resolved locally.
package federation

import (
	"time"

	gocache "github.com/KusakabeSi/go-cache"

	"github.com/Logan007/n3n/internal/mac"
	"github.com/Logan007/n3n/internal/netio"
	"github.com/Logan007/n3n/internal/peer"
)

// resolveCacheTTL bounds how long a configured anchor's last successful DNS
// resolution is trusted before the sweeper re-resolves it.
const resolveCacheTTL = 30 * time.Second

// Set is the federation peer set: equivalent to a community's Edges but
// holding remote supernodes, plus the configured-anchor bookkeeping needed
// for periodic hostname re-resolution.
type Set struct {
	Peers *peer.Table

	resolved *gocache.Cache // hostname -> last-resolved netio.SockAddr, TTL-bounded
	resolve  func(hostname string) (netio.SockAddr, error)
}

// NewSet allocates an empty federation set. resolve performs the actual DNS
// lookup; tests substitute a fake.
func NewSet(resolve func(hostname string) (netio.SockAddr, error)) *Set {
	return &Set{
		Peers:    peer.NewTable(),
		resolved: gocache.New(resolveCacheTTL, 2*resolveCacheTTL),
		resolve:  resolve,
	}
}

// AddAnchor installs a configured, non-purgeable federation peer that
// re-resolves hostname periodically.
func (s *Set) AddAnchor(addr mac.Addr, hostname string, sock netio.SockAddr) {
	s.Peers.Put(&peer.Peer{
		MAC:          addr,
		Sock:         sock,
		FD:           -1,
		Hostname:     hostname,
		Purgeable:    false,
		IsFederation: true,
	})
}

// ReResolveAnchors re-resolves every anchor's hostname, updating its socket
// on success and leaving the prior socket in place on failure (recover, not
// fatal — §7 "resolver failure for a federation anchor: keep entry, retry
// later").
func (s *Set) ReResolveAnchors() {
	if s.resolve == nil {
		return
	}
	s.Peers.Each(func(p *peer.Peer) {
		if p.Purgeable || p.Hostname == "" {
			return
		}
		if cached, ok := s.resolved.Get(p.Hostname); ok {
			p.Sock = cached.(netio.SockAddr)
			return
		}
		sock, err := s.resolve(p.Hostname)
		if err != nil {
			return
		}
		s.resolved.Set(p.Hostname, sock, gocache.DefaultExpiration)
		p.Sock = sock
	})
}

// Touch refreshes a federation peer's last_seen on REGISTER_SUPER_ACK.
func (s *Set) Touch(addr mac.Addr, now int64) {
	if p, ok := s.Peers.FindByMAC(addr); ok {
		p.LastSeen = now
	}
}

// Each calls fn for every federation peer except the one at excludeSock, if
// any — the "forward to every federation peer != exclude" rule used both by
// forward_to_federation and by periodic REGISTER_SUPER fan-out.
func (s *Set) Each(exclude *netio.SockAddr, fn func(*peer.Peer)) {
	s.Peers.Each(func(p *peer.Peer) {
		if exclude != nil && p.Sock.Equal(*exclude) {
			return
		}
		fn(p)
	})
}
