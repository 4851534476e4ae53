/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package supernode

import (
	"time"

	"github.com/Logan007/n3n/internal/community"
	"github.com/Logan007/n3n/internal/netio"
	"github.com/Logan007/n3n/internal/peer"
	"github.com/Logan007/n3n/internal/wire"
)

// readinessTimeout bounds how long the loop can sit idle before re-checking
// KeepRunning and the sweep/federation deadlines, the default 1s mentioned
// for cooperative shutdown latency.
const readinessTimeout = 1 * time.Second

// ReceiveFunc is one readiness source the event loop polls: it blocks no
// longer than timeout and reports ok=false on a plain timeout, a genuine
// EAGAIN, or ErrClosed — all three just mean "nothing ready right now".
type ReceiveFunc func(timeout time.Duration) (buf []byte, from netio.SockAddr, ok bool)

// Run drives the single-threaded event loop: receive, dispatch, periodic
// sweep, periodic federation re-registration, until KeepRunning goes false.
// sources is the main UDP socket plus, when TCP is enabled, the TCP bind's
// framed-datagram receiver (spec.md §3/§4.G name both as runtime-state
// sockets the readiness wait spans); readinessTimeout is split evenly across
// however many sources are given so the loop still re-checks KeepRunning and
// the sweep/federation deadlines on the same cadence regardless of how many
// transports are active.
func (r *Runtime) Run(sources ...ReceiveFunc) {
	now := Now()
	r.nextSweep = now + r.cfg.SweepInterval
	r.nextFedReg = now + r.cfg.FedReRegInterval

	perSource := readinessTimeout / time.Duration(len(sources))

	for r.KeepRunning() {
		for _, recv := range sources {
			buf, from, ok := recv(perSource)
			if ok {
				_ = r.HandleDatagram(buf, from, Now())
			}
		}
		now = Now()

		if now >= r.nextSweep {
			r.sweep(now)
			r.nextSweep = now + r.cfg.SweepInterval
		}

		if now >= r.nextFedReg {
			r.reRegisterWithFederation(now)
			r.Federation.ReResolveAnchors()
			r.nextFedReg = now + r.cfg.FedReRegInterval
		}
	}
}

// sweep expires stale peers in every community and in the federation set,
// then deletes any purgeable community left empty.
func (r *Runtime) sweep(now int64) {
	var toDelete []string
	r.Communities.Each(func(c *community.Community) {
		removed := c.Edges.Sweep(now, r.cfg.TTL)
		for _, p := range removed {
			r.Events.Emit("peer", peerEvent{Action: "REMOVE", Community: c.Name, MAC: p.MAC.String(), Sock: p.Sock.String()})
		}
		if c.Edges.Len() == 0 && c.Purgeable {
			toDelete = append(toDelete, c.Name)
		}
	})
	for _, name := range toDelete {
		r.Communities.RemoveIfEmptyAndPurgeable(name)
	}
	r.Federation.Peers.Sweep(now, r.cfg.TTL)
}

func (r *Runtime) reRegisterWithFederation(now int64) {
	msg := wire.RegisterSuperMsg{DevAddr: [4]byte{}, Version: r.cfg.Version}
	body := wire.EncodeRegisterSuper(msg)
	r.Federation.Each(nil, func(fp *peer.Peer) {
		h := wire.Header{Version: wire.Version, Type: wire.TypeRegisterSuper, Community: "*federation", TxID: 0, Src: r.cfg.SelfMAC, Dst: fp.MAC}
		r.send(h, body, fp.Sock, nil)
	})
}
