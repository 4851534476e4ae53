/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package supernode

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/Logan007/n3n/internal/community"
	"github.com/Logan007/n3n/internal/mac"
	"github.com/Logan007/n3n/internal/netio"
	"github.com/Logan007/n3n/internal/peer"
	"github.com/Logan007/n3n/internal/wire"
)

// HandleDatagram decrypts/parses one inbound datagram and dispatches it to
// the registration state machine or the forwarding engine by type. Failures
// are counted and, where the protocol calls for one, answered with a NAK; the
// error is also returned, but the event loop ignores it, so the return value
// serves tests that assert on what happened.
func (r *Runtime) HandleDatagram(buf []byte, from netio.SockAddr, now int64) error {
	name, _, err := wire.PeekCommunity(buf)
	if err != nil {
		r.Stats.incRxTuntapError()
		return err
	}

	var crypto *wire.CommunityCrypto
	if c, ok := r.Communities.Get(name); ok {
		crypto = c.Crypto
	} else if r.cfg.HeaderEncryption {
		// Community not yet created: derive its crypto context now so this
		// very datagram can be decrypted. If this turns out to be the
		// REGISTER_SUPER that creates the community, handleRegisterSuper
		// hands this same instance to GetOrCreate so the nonce we are about
		// to accept stays recorded in the community's persisted replay
		// window instead of being forgotten by a throwaway one.
		crypto, _ = wire.NewCommunityCrypto(name, r.cfg.CommunityPassword, r.cfg.ReplayWindowSize)
	}

	h, off, err := wire.DecodeHeader(buf, crypto)
	if err != nil {
		r.Stats.incRxTuntapError()
		return err
	}
	body := buf[off:]

	switch h.Type {
	case wire.TypeRegisterSuper:
		return r.handleRegisterSuper(h, body, from, now, crypto)
	case wire.TypeRegister:
		return r.handleRegister(h, body, from)
	case wire.TypeQueryPeer:
		return r.handleQueryPeer(h, body)
	case wire.TypePeerInfo:
		return r.handlePeerInfo(h, body)
	case wire.TypePacket:
		return r.handlePacket(h, body, from)
	case wire.TypeRegisterSuperAck:
		return r.handleRegisterSuperAck(h, body, now)
	default:
		r.Stats.incRxTuntapError()
		return wire.ErrMalformedBody
	}
}

func (r *Runtime) nak(community string, dst mac.Addr, txID uint16, reason wire.NakReason, to netio.SockAddr) {
	r.Stats.incSnRegNak()
	h := wire.Header{Version: wire.Version, Type: wire.TypeRegisterSuperNak, Community: community, TxID: txID, Src: r.cfg.SelfMAC, Dst: dst}
	body := wire.EncodeRegisterSuperNak(wire.RegisterSuperNakMsg{Reason: reason})
	r.send(h, body, to, nil)
}

// txNonceCounter numbers outbound datagrams so each one carries a fresh
// nonce, the per-datagram counter a receiver's replay window expects.
var txNonceCounter uint64

func (r *Runtime) send(h wire.Header, body []byte, to netio.SockAddr, crypto *wire.CommunityCrypto) {
	var nonce [wire.NonceSize]byte
	binary.BigEndian.PutUint64(nonce[wire.NonceSize-8:], atomic.AddUint64(&txNonceCounter, 1))
	buf := wire.EncodeHeader(h, crypto, nonce)
	buf = append(buf, body...)
	if err := r.Bind.Send(buf, to); err != nil && !netio.IsEAGAIN(err) {
		r.Stats.incSnErrors()
	}
}

func (r *Runtime) handleRegisterSuper(h wire.Header, body []byte, from netio.SockAddr, now int64, decodeCrypto *wire.CommunityCrypto) error {
	r.Stats.incRxSup()

	msg, err := wire.DecodeRegisterSuper(body)
	if err != nil {
		r.nak(h.Community, h.Src, h.TxID, wire.NakMalformedBody, from)
		return err
	}

	c, created, err := r.Communities.GetOrCreate(h.Community, r.cfg.CommunityPassword, r.cfg.HeaderEncryption, r.cfg.ReplayWindowSize, decodeCrypto)
	if err != nil {
		r.nak(h.Community, h.Src, h.TxID, wire.NakCommunityDenied, from)
		return err
	}

	if r.cfg.SpoofingProtection && !community.IsFederationName(c.Name) {
		if prior, ok := c.Edges.FindBySock(from); ok && prior.MAC != h.Src {
			r.nak(h.Community, h.Src, h.TxID, wire.NakSpoof, from)
			return wire.ErrMalformedBody
		}
		if msg.DevAddr != ([4]byte{}) {
			ip := rawIPv4(msg.DevAddr)
			if existing, ok := c.Edges.FindByMAC(h.Src); ok && existing.DevAddr != nil {
				if !existing.DevAddr.Equal(ip) && !c.AutoIPNet.Contains(ip) {
					r.nak(h.Community, h.Src, h.TxID, wire.NakSpoof, from)
					return wire.ErrMalformedBody
				}
			} else if !c.AutoIPNet.Contains(ip) {
				r.nak(h.Community, h.Src, h.TxID, wire.NakSpoof, from)
				return wire.ErrMalformedBody
			}
		}
	}

	p, result := c.Edges.AddOrUpdate(h.Src, from, now)
	p.DevDesc = msg.DevDesc
	p.Version = msg.Version
	if msg.DevAddr == ([4]byte{}) {
		if p.DevAddr == nil {
			ip, err := c.AllocateIP()
			if err != nil {
				r.Stats.incSnErrors()
				return err
			}
			p.DevAddr = ip
		}
	} else {
		p.DevAddr = rawIPv4(msg.DevAddr)
	}

	action := "UPDATE"
	if result == peer.Inserted || created {
		action = "ADD"
	}
	r.Events.Emit("peer", peerEvent{Action: action, Community: c.Name, MAC: h.Src.String(), Sock: from.String()})

	fed := make([]wire.RawSockAddr, 0)
	r.Federation.Each(nil, func(fp *peer.Peer) {
		fed = append(fed, toRawSockAddr(fp.Sock))
	})
	ack := wire.RegisterSuperAckMsg{
		DevAddr:       toFixedIPv4(p.DevAddr),
		ReRegInterval: uint16(r.cfg.ReRegInterval),
		Version:       r.cfg.Version,
		Federation:    fed,
	}
	ackHeader := wire.Header{Version: wire.Version, Type: wire.TypeRegisterSuperAck, Community: c.Name, TxID: h.TxID, Src: r.cfg.SelfMAC, Dst: h.Src}
	r.send(ackHeader, wire.EncodeRegisterSuperAck(ack), from, c.Crypto)

	r.forwardRegistrationToFederation(c.Name, h.Src, from)
	return nil
}

// forwardRegistrationToFederation lets other supernodes answer QUERY_PEER
// for this MAC without the edge re-registering there directly.
func (r *Runtime) forwardRegistrationToFederation(communityName string, edge mac.Addr, sock netio.SockAddr) {
	inner := wire.EncodeRegisterSuper(wire.RegisterSuperMsg{DevAddr: [4]byte{}, Version: r.cfg.Version})
	fedMsg := wire.FederationMsg{InnerType: wire.TypeRegisterSuper, InnerBody: inner}
	h := wire.Header{Version: wire.Version, Type: wire.TypeFederation, Community: communityName, Src: edge, Dst: mac.Null}
	body := wire.EncodeFederation(fedMsg)
	r.Federation.Each(&sock, func(fp *peer.Peer) {
		r.send(h, body, fp.Sock, nil)
	})
}

func (r *Runtime) handleRegisterSuperAck(h wire.Header, body []byte, now int64) error {
	_, err := wire.DecodeRegisterSuperAck(body)
	if err != nil {
		return err
	}
	r.Federation.Touch(h.Src, now)
	return nil
}

func (r *Runtime) handleRegister(h wire.Header, body []byte, from netio.SockAddr) error {
	_, err := wire.DecodeRegister(body)
	if err != nil {
		return err
	}
	c, ok := r.Communities.Get(h.Community)
	if !ok {
		return nil
	}
	if dst, ok := c.Edges.FindByMAC(h.Dst); ok {
		info := wire.PeerInfoMsg{MAC: h.Dst, Sock: toRawSockAddr(dst.Sock), DevDesc: dst.DevDesc}
		infoHeader := wire.Header{Version: wire.Version, Type: wire.TypePeerInfo, Community: h.Community, TxID: h.TxID, Src: r.cfg.SelfMAC, Dst: h.Src}
		r.send(infoHeader, wire.EncodePeerInfo(info), from, c.Crypto)
		return nil
	}
	query := wire.QueryPeerMsg{MAC: h.Dst}
	qh := wire.Header{Version: wire.Version, Type: wire.TypeQueryPeer, Community: h.Community, TxID: h.TxID, Src: h.Src, Dst: h.Dst}
	r.Federation.Each(nil, func(fp *peer.Peer) {
		r.send(qh, wire.EncodeQueryPeer(query), fp.Sock, nil)
	})
	return nil
}

func (r *Runtime) handleQueryPeer(h wire.Header, body []byte) error {
	q, err := wire.DecodeQueryPeer(body)
	if err != nil {
		return err
	}
	var found *peer.Peer
	var foundCommunity string
	r.Communities.Each(func(c *community.Community) {
		if found != nil {
			return
		}
		if p, ok := c.Edges.FindByMAC(q.MAC); ok {
			found = p
			foundCommunity = c.Name
		}
	})
	if found == nil {
		// Silently dropped: no negative response, to avoid amplification.
		return nil
	}
	info := wire.PeerInfoMsg{MAC: q.MAC, Sock: toRawSockAddr(found.Sock), DevDesc: found.DevDesc}
	ih := wire.Header{Version: wire.Version, Type: wire.TypePeerInfo, Community: foundCommunity, TxID: h.TxID, Src: r.cfg.SelfMAC, Dst: h.Src}
	r.send(ih, wire.EncodePeerInfo(info), found.Sock, nil)
	return nil
}

func (r *Runtime) handlePeerInfo(h wire.Header, body []byte) error {
	info, err := wire.DecodePeerInfo(body)
	if err != nil {
		return err
	}
	c, ok := r.Communities.Get(h.Community)
	if !ok {
		return nil
	}
	sock := fromRawSockAddr(info.Sock)
	p, _ := c.Edges.AddOrUpdate(info.MAC, sock, Now())
	p.DevDesc = info.DevDesc
	if requester, ok := c.Edges.FindByMAC(h.Dst); ok {
		ih := wire.Header{Version: wire.Version, Type: wire.TypePeerInfo, Community: h.Community, TxID: h.TxID, Src: r.cfg.SelfMAC, Dst: h.Dst}
		r.send(ih, wire.EncodePeerInfo(info), requester.Sock, c.Crypto)
	}
	return nil
}

// peerEvent is the "peer" topic's payload.
type peerEvent struct {
	Action    string `json:"action"`
	Community string `json:"community"`
	MAC       string `json:"mac"`
	Sock      string `json:"sock"`
}
