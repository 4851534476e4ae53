/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

// Package community implements the community table: per-community peer
// tables, auto-IP subnet assignment, and the allowed-communities admission
// check.
package community

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/Logan007/n3n/internal/peer"
	"github.com/Logan007/n3n/internal/wire"
)

// ErrCommunityDenied is returned by GetOrCreate when a dynamic community's
// name is not present in a configured allowed-communities file.
var ErrCommunityDenied = errors.New("community: denied by allowed-communities policy")

// MaxNameLength bounds a community name, matching the wire header's fixed
// field width.
const MaxNameLength = wire.CommunityNameSize - 1

// AutoIPNet is a /prefix subnet carved out of the global auto-IP range and
// handed to exactly one community.
type AutoIPNet struct {
	Start  net.IP // first address of the block (its network address)
	Prefix int
}

// Contains reports whether ip falls inside the subnet.
func (n AutoIPNet) Contains(ip net.IP) bool {
	_, ipnet, err := net.ParseCIDR(fmt.Sprintf("%s/%d", n.Start, n.Prefix))
	if err != nil {
		return false
	}
	return ipnet.Contains(ip)
}

// Community is one logically isolated overlay L2 segment.
type Community struct {
	Name         string
	IsFederation bool
	Purgeable    bool

	Edges *peer.Table

	AutoIPNet AutoIPNet
	nextHost  uint32 // next candidate host offset within AutoIPNet, for allocation

	Crypto *wire.CommunityCrypto // nil when header encryption is disabled
}

// federationPrefix is the leading character that marks a community name as
// the (unique) federation pseudo-community.
const federationPrefix = "*"

// IsFederationName reports whether name denotes the federation community.
func IsFederationName(name string) bool {
	return strings.HasPrefix(name, federationPrefix)
}

// AllocateIP returns the next unassigned address in the community's
// auto_ip_net, skipping the network and broadcast addresses of the /prefix
// block.
func (c *Community) AllocateIP() (net.IP, error) {
	ones := c.AutoIPNet.Prefix
	total := uint32(1) << uint(32-ones)
	if total < 4 {
		return nil, fmt.Errorf("community: auto_ip_net /%d too small to allocate from", ones)
	}
	base := ipToUint32(c.AutoIPNet.Start)
	for i := uint32(0); i < total-2; i++ {
		c.nextHost++
		if c.nextHost >= total-1 {
			c.nextHost = 1
		}
		candidate := base + c.nextHost
		ip := uint32ToIP(candidate)
		taken := false
		c.Edges.Each(func(p *peer.Peer) {
			if p.DevAddr != nil && p.DevAddr.Equal(ip) {
				taken = true
			}
		})
		if !taken {
			return ip, nil
		}
	}
	return nil, fmt.Errorf("community %q: auto_ip_net exhausted", c.Name)
}

func ipToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}

func uint32ToIP(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// Table is the name -> Community map, plus the allowed-communities admission
// policy and the global auto-IP pool it carves subnets from.
type Table struct {
	mu         sync.Mutex
	byName     map[string]*Community
	federation *Community

	pool    AutoIPPool
	allowed *AllowList // nil means "any dynamic community name is admitted"
}

// AutoIPPool is the supernode-global auto-IP range communities are carved
// out of.
type AutoIPPool struct {
	Min    net.IP
	Max    net.IP
	Prefix int
}

// AllowList is the parsed allowed-communities file: a fixed set of names
// that may be created even when not yet present, and which are never
// purgeable once created.
type AllowList struct {
	names map[string]bool
}

// NewAllowList builds an AllowList from a set of names.
func NewAllowList(names []string) *AllowList {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return &AllowList{names: m}
}

// Contains reports whether name is present in the allow list.
func (a *AllowList) Contains(name string) bool {
	if a == nil {
		return true
	}
	return a.names[name]
}

// NewTable allocates an empty community table. allowed may be nil to admit
// any dynamic community name.
func NewTable(pool AutoIPPool, allowed *AllowList) *Table {
	return &Table{
		byName:  make(map[string]*Community),
		pool:    pool,
		allowed: allowed,
	}
}

// blockCount is the number of disjoint /prefix blocks between pool.Min and
// pool.Max, inclusive.
func (t *Table) blockCount() uint32 {
	blockSize := uint32(1) << uint(32-t.pool.Prefix)
	span := ipToUint32(t.pool.Max) - ipToUint32(t.pool.Min)
	return span/blockSize + 1
}

// subnetForName deterministically derives a community's auto-IP subnet from
// a 64-bit Pearson hash of its name, modulo the number of /prefix blocks in
// the pool.
func (t *Table) subnetForName(name string) AutoIPNet {
	n := t.blockCount()
	idx := uint32(pearson64(name) % uint64(n))
	blockSize := uint32(1) << uint(32-t.pool.Prefix)
	start := ipToUint32(t.pool.Min) + idx*blockSize
	return AutoIPNet{Start: uint32ToIP(start), Prefix: t.pool.Prefix}
}

// GetOrCreate returns the named community, creating it if absent. dynamic
// communities (not present in the allow list) are refused with
// ErrCommunityDenied when an allow list is configured. When headerEncryption
// is set and precomputed is non-nil, it is adopted as the new community's
// crypto context verbatim instead of deriving a fresh one — the caller uses
// this to hand over the exact CommunityCrypto (and its already-primed replay
// window) it used to decode the very datagram that is triggering creation,
// so that datagram's nonce stays recorded against the community going
// forward instead of being forgotten by a throwaway decode-only context.
func (t *Table) GetOrCreate(name string, cryptoPassword string, headerEncryption bool, replayWindow int, precomputed *wire.CommunityCrypto) (c *Community, created bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.byName[name]; ok {
		return existing, false, nil
	}

	declared := t.allowed.Contains(name)
	if !declared && t.allowed != nil {
		return nil, false, ErrCommunityDenied
	}

	c = &Community{
		Name:         name,
		IsFederation: IsFederationName(name),
		Purgeable:    !declared,
		Edges:        peer.NewTable(),
		AutoIPNet:    t.subnetForName(name),
	}
	if headerEncryption {
		if precomputed != nil {
			c.Crypto = precomputed
		} else {
			cc, err := wire.NewCommunityCrypto(name, cryptoPassword, replayWindow)
			if err != nil {
				return nil, false, err
			}
			c.Crypto = cc
		}
	}

	if c.IsFederation {
		if t.federation != nil {
			return nil, false, errors.New("community: a federation community already exists")
		}
		t.federation = c
	}

	t.byName[name] = c
	return c, true, nil
}

// SetAllowList swaps in a freshly parsed allow list, the effect of
// reload_communities: communities already created keep their existing
// Purgeable flag, but subsequent GetOrCreate calls are judged against the
// new list.
func (t *Table) SetAllowList(allowed *AllowList) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowed = allowed
}

// Get looks up a community by name without creating it.
func (t *Table) Get(name string) (*Community, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.byName[name]
	return c, ok
}

// Federation returns the unique federation community, if any has been
// created yet.
func (t *Table) Federation() (*Community, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.federation, t.federation != nil
}

// RemoveIfEmptyAndPurgeable deletes name from the table when it is
// purgeable and holds no peers.
func (t *Table) RemoveIfEmptyAndPurgeable(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.byName[name]
	if !ok || !c.Purgeable || c.Edges.Len() != 0 {
		return false
	}
	delete(t.byName, name)
	if t.federation == c {
		t.federation = nil
	}
	return true
}

// Each calls fn for every community, in unspecified order.
func (t *Table) Each(fn func(*Community)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.byName {
		fn(c)
	}
}

// pearson64 is a 64-bit Pearson hash used to deterministically derive a
// community's auto-IP subnet index from its name.
func pearson64(s string) uint64 {
	var h uint64
	for round := 0; round < 8; round++ {
		acc := byte(round)
		for i := 0; i < len(s); i++ {
			acc = pearsonTable[acc^s[i]]
		}
		h = h<<8 | uint64(acc)
	}
	return h
}

var pearsonTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = byte((i*167 + 61) % 256)
	}
	return t
}()
