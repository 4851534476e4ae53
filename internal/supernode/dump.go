/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package supernode

import (
	"github.com/Logan007/n3n/internal/community"
	"github.com/Logan007/n3n/internal/peer"
)

// DumpRegistrations logs a formatted listing of every community and peer at
// Normal level, mirroring the original implementation's SIGHUP trace dump.
func (r *Runtime) DumpRegistrations() {
	r.Logger.Normalf("==== registrations ====")
	r.Communities.Each(func(c *community.Community) {
		r.Logger.Normalf("community %s (federation=%v purgeable=%v edges=%d)",
			c.Name, c.IsFederation, c.Purgeable, c.Edges.Len())
		c.Edges.Each(func(p *peer.Peer) {
			r.Logger.Normalf("  %s sock=%s last_seen=%d dev_addr=%s",
				p.MAC, p.Sock, p.LastSeen, p.DevAddr)
		})
	})
	r.Logger.Normalf("==== federation ====")
	r.Federation.Peers.Each(func(p *peer.Peer) {
		r.Logger.Normalf("  %s host=%s sock=%s last_seen=%d", p.MAC, p.Hostname, p.Sock, p.LastSeen)
	})
	r.Logger.Normalf("=======================")
}
