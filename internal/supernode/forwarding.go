/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package supernode

import (
	"github.com/Logan007/n3n/internal/community"
	"github.com/Logan007/n3n/internal/netio"
	"github.com/Logan007/n3n/internal/peer"
	"github.com/Logan007/n3n/internal/wire"
)

// handlePacket implements the forwarding engine: unicast direct send,
// broadcast/unknown-unicast fan-out to the community plus federation, or a
// federation-only forward when the destination isn't known locally.
func (r *Runtime) handlePacket(h wire.Header, body []byte, from netio.SockAddr) error {
	msg, err := wire.DecodePacket(body)
	if err != nil {
		r.Stats.incRxTuntapError()
		return err
	}

	c, ok := r.Communities.Get(h.Community)
	if !ok {
		r.Stats.incRxTuntapError()
		return wire.ErrMalformedBody
	}

	if r.cfg.SpoofingProtection {
		if bound, ok := c.Edges.FindBySock(from); !ok || bound.MAC != h.Src {
			r.Stats.incSnErrors()
			return nil
		}
	}

	if h.Dst.IsBroadcast() || h.Dst.IsMulticast() || h.Dst.IsNull() {
		r.broadcastWithinCommunity(h, msg, c, from)
		r.Stats.incTxSupBroadcast()
		r.forwardToFederation(h, msg, &from)
		return nil
	}

	if dst, ok := c.Edges.FindByMAC(h.Dst); ok {
		out := wire.Header{Version: wire.Version, Type: wire.TypePacket, Community: h.Community, TxID: h.TxID, Src: h.Src, Dst: h.Dst}
		r.send(out, wire.EncodePacket(msg), dst.Sock, c.Crypto)
		r.Stats.incSnFwd()
		return nil
	}

	r.forwardToFederation(h, msg, nil)
	r.Stats.incSnFwd()
	return nil
}

func (r *Runtime) broadcastWithinCommunity(h wire.Header, msg wire.PacketMsg, c *community.Community, from netio.SockAddr) {
	out := wire.Header{Version: wire.Version, Type: wire.TypePacket, Community: h.Community, TxID: h.TxID, Src: h.Src, Dst: h.Dst}
	body := wire.EncodePacket(msg)
	c.Edges.Each(func(p *peer.Peer) {
		if p.MAC == h.Src {
			return
		}
		r.send(out, body, p.Sock, c.Crypto)
	})
}

// forwardToFederation re-encodes pkt for every federation peer != exclude.
func (r *Runtime) forwardToFederation(h wire.Header, msg wire.PacketMsg, exclude *netio.SockAddr) {
	fedMsg := wire.FederationMsg{InnerType: wire.TypePacket, InnerBody: wire.EncodePacket(msg)}
	out := wire.Header{Version: wire.Version, Type: wire.TypeFederation, Community: h.Community, TxID: h.TxID, Src: h.Src, Dst: h.Dst}
	body := wire.EncodeFederation(fedMsg)
	r.Federation.Each(exclude, func(fp *peer.Peer) {
		r.send(out, body, fp.Sock, nil)
	})
}
