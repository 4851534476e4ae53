/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

// Package peer implements the per-community peer table: a MAC-keyed entity
// plus the socket-addr secondary index used for reverse lookup on inbound
// datagrams whose source MAC isn't known yet.
package peer

import (
	"net"
	"sync"

	"github.com/Logan007/n3n/internal/mac"
	"github.com/Logan007/n3n/internal/netio"
)

// Peer represents one edge or one remote supernode as seen from this
// supernode.
type Peer struct {
	MAC mac.Addr

	Sock     netio.SockAddr
	FD       int // underlying descriptor for TCP peers, -1 otherwise
	Hostname string

	LastSeen      int64 // monotonic seconds
	LastSentQuery int64
	LastP2P       int64
	Uptime        int64

	Purgeable   bool
	Local       bool
	IsFederation bool

	SharedSecret []byte // per-peer secret derived under user-password auth

	DevDesc  string
	Version  string
	DevAddr  net.IP
	DevNetmask net.IPMask
}

// UpsertResult reports what add_or_update actually did.
type UpsertResult int

const (
	Inserted UpsertResult = iota
	Updated
)

// Table is a MAC -> Peer map with a socket-addr secondary index, scoped to
// one community (or the federation set).
type Table struct {
	mu      sync.Mutex
	byMAC   map[mac.Addr]*Peer
	bySock  map[string]*Peer
}

// NewTable allocates an empty peer table.
func NewTable() *Table {
	return &Table{
		byMAC:  make(map[mac.Addr]*Peer),
		bySock: make(map[string]*Peer),
	}
}

// AddOrUpdate inserts a new purgeable Peer for addr, or refreshes an
// existing one's socket and last_seen. The prior socket index entry for this
// MAC is dropped so the secondary index never holds more than one live
// pointer per MAC (tie-break for concurrent REGISTERs on different sockets:
// the most recent last_seen wins).
func (t *Table) AddOrUpdate(addr mac.Addr, sock netio.SockAddr, now int64) (*Peer, UpsertResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.byMAC[addr]; ok {
		delete(t.bySock, p.Sock.String())
		p.Sock = sock
		p.LastSeen = now
		t.bySock[sock.String()] = p
		return p, Updated
	}

	p := &Peer{
		MAC:       addr,
		Sock:      sock,
		FD:        -1,
		LastSeen:  now,
		Uptime:    now,
		Purgeable: true,
	}
	t.byMAC[addr] = p
	t.bySock[sock.String()] = p
	return p, Inserted
}

// Put inserts or replaces p wholesale, used for federation-anchor entries
// configured up front with Purgeable=false and a Hostname.
func (t *Table) Put(p *Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.byMAC[p.MAC]; ok {
		delete(t.bySock, old.Sock.String())
	}
	t.byMAC[p.MAC] = p
	t.bySock[p.Sock.String()] = p
}

// FindByMAC looks up a peer by its MAC key.
func (t *Table) FindByMAC(addr mac.Addr) (*Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byMAC[addr]
	return p, ok
}

// FindBySock looks up a peer by its last-known socket address.
func (t *Table) FindBySock(sock netio.SockAddr) (*Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.bySock[sock.String()]
	return p, ok
}

// Delete removes addr from both indexes.
func (t *Table) Delete(addr mac.Addr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.byMAC[addr]; ok {
		delete(t.bySock, p.Sock.String())
		delete(t.byMAC, addr)
	}
}

// Len reports the number of peers currently tracked.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byMAC)
}

// Each calls fn for every peer, in unspecified order. fn must not mutate the
// table.
func (t *Table) Each(fn func(*Peer)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.byMAC {
		fn(p)
	}
}

// Sweep removes every purgeable entry whose last_seen + ttl < now, returning
// the removed peers so the caller can emit one "peer" REMOVE event per entry.
// A peer with last_seen + ttl == now is NOT removed (strict inequality).
func (t *Table) Sweep(now, ttl int64) []*Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []*Peer
	for addr, p := range t.byMAC {
		if !p.Purgeable {
			continue
		}
		if p.LastSeen+ttl < now {
			removed = append(removed, p)
			delete(t.byMAC, addr)
			delete(t.bySock, p.Sock.String())
		}
	}
	return removed
}
