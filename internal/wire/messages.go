/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package wire

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/Logan007/n3n/internal/mac"
)

// NAK reasons carried in a RegisterSuperNak body.
type NakReason uint8

const (
	NakCommunityDenied NakReason = iota + 1
	NakAuthFailed
	NakSpoof
	NakMalformedBody
	NakReplay
)

func (r NakReason) String() string {
	switch r {
	case NakCommunityDenied:
		return "CommunityDenied"
	case NakAuthFailed:
		return "AuthFailed"
	case NakSpoof:
		return "Spoof"
	case NakMalformedBody:
		return "MalformedBody"
	case NakReplay:
		return "Replay"
	default:
		return "Unknown"
	}
}

func writeIPv4(ip net.IP) [4]byte {
	var b [4]byte
	if v4 := ip.To4(); v4 != nil {
		copy(b[:], v4)
	}
	return b
}

func readString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func writeFixedString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// RegisterMsg is the body of REGISTER: an edge-to-edge introduction request.
// Src/Dst MAC travel in the common header; the body carries the requester's
// reachable socket so the destination can answer directly.
type RegisterMsg struct {
	Sock RawSockAddr
}

// RawSockAddr is the self-contained, wire-format encoding of a socket
// address: a 1-byte family discriminant, 16 bytes of address (IPv4 stored in
// the first 4), and a port. Message bodies use this rather than netio.SockAddr
// directly so that internal/wire has no dependency on internal/netio.
type RawSockAddr struct {
	IsV6 bool
	IP   net.IP
	Port uint16
}

const rawSockAddrLen = 1 + 16 + 2

func decodeRawSockAddr(b []byte) (RawSockAddr, error) {
	if len(b) < rawSockAddrLen {
		return RawSockAddr{}, ErrMalformedBody
	}
	isV6 := b[0] != 0
	ip := make(net.IP, 16)
	copy(ip, b[1:17])
	if !isV6 {
		ip = ip[:4]
	}
	return RawSockAddr{IsV6: isV6, IP: ip, Port: binary.BigEndian.Uint16(b[17:19])}, nil
}

func encodeRawSockAddr(s RawSockAddr) []byte {
	b := make([]byte, rawSockAddrLen)
	if s.IsV6 {
		b[0] = 1
		copy(b[1:17], s.IP.To16())
	} else {
		copy(b[1:5], s.IP.To4())
	}
	binary.BigEndian.PutUint16(b[17:19], s.Port)
	return b
}

func DecodeRegister(body []byte) (RegisterMsg, error) {
	sock, err := decodeRawSockAddr(body)
	if err != nil {
		return RegisterMsg{}, err
	}
	return RegisterMsg{Sock: sock}, nil
}

func EncodeRegister(m RegisterMsg) []byte {
	return encodeRawSockAddr(m.Sock)
}

// RegisterAckMsg is the body of REGISTER_ACK: a bare acknowledgment, empty
// on the wire.
type RegisterAckMsg struct{}

func DecodeRegisterAck([]byte) (RegisterAckMsg, error) { return RegisterAckMsg{}, nil }
func EncodeRegisterAck(RegisterAckMsg) []byte           { return nil }

// devDescSize and versionSize bound the two free-form descriptive fields
// carried by REGISTER_SUPER and REGISTER_SUPER_ACK.
const (
	devDescSize = 32
	versionSize = 32
)

// RegisterSuperMsg is the body of REGISTER_SUPER: an edge announcing itself
// (or joining) community C.
type RegisterSuperMsg struct {
	DevAddr  [4]byte // zero means "allocate one for me"
	DevDesc  string
	Version  string
}

const registerSuperLen = 4 + devDescSize + versionSize

func DecodeRegisterSuper(body []byte) (RegisterSuperMsg, error) {
	if len(body) < registerSuperLen {
		return RegisterSuperMsg{}, ErrMalformedBody
	}
	var m RegisterSuperMsg
	copy(m.DevAddr[:], body[0:4])
	m.DevDesc = readString(body[4 : 4+devDescSize])
	m.Version = readString(body[4+devDescSize : 4+devDescSize+versionSize])
	return m, nil
}

func EncodeRegisterSuper(m RegisterSuperMsg) []byte {
	b := make([]byte, registerSuperLen)
	copy(b[0:4], m.DevAddr[:])
	writeFixedString(b[4:4+devDescSize], m.DevDesc)
	writeFixedString(b[4+devDescSize:4+devDescSize+versionSize], m.Version)
	return b
}

// RegisterSuperAckMsg is the body of REGISTER_SUPER_ACK.
type RegisterSuperAckMsg struct {
	DevAddr         [4]byte
	ReRegInterval   uint16 // seconds
	Version         string
	Federation      []RawSockAddr
}

func DecodeRegisterSuperAck(body []byte) (RegisterSuperAckMsg, error) {
	if len(body) < 4+2+versionSize+2 {
		return RegisterSuperAckMsg{}, ErrMalformedBody
	}
	var m RegisterSuperAckMsg
	copy(m.DevAddr[:], body[0:4])
	m.ReRegInterval = binary.BigEndian.Uint16(body[4:6])
	m.Version = readString(body[6 : 6+versionSize])
	off := 6 + versionSize
	count := binary.BigEndian.Uint16(body[off : off+2])
	off += 2
	m.Federation = make([]RawSockAddr, 0, count)
	for i := uint16(0); i < count; i++ {
		if len(body) < off+rawSockAddrLen {
			return RegisterSuperAckMsg{}, ErrMalformedBody
		}
		s, err := decodeRawSockAddr(body[off : off+rawSockAddrLen])
		if err != nil {
			return RegisterSuperAckMsg{}, err
		}
		m.Federation = append(m.Federation, s)
		off += rawSockAddrLen
	}
	return m, nil
}

func EncodeRegisterSuperAck(m RegisterSuperAckMsg) []byte {
	b := make([]byte, 0, 4+2+versionSize+2+len(m.Federation)*rawSockAddrLen)
	head := make([]byte, 6+versionSize)
	copy(head[0:4], m.DevAddr[:])
	binary.BigEndian.PutUint16(head[4:6], m.ReRegInterval)
	writeFixedString(head[6:6+versionSize], m.Version)
	b = append(b, head...)

	countBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(countBuf, uint16(len(m.Federation)))
	b = append(b, countBuf...)
	for _, s := range m.Federation {
		b = append(b, encodeRawSockAddr(s)...)
	}
	return b
}

// RegisterSuperNakMsg is the body of REGISTER_SUPER_NAK.
type RegisterSuperNakMsg struct {
	Reason NakReason
}

func DecodeRegisterSuperNak(body []byte) (RegisterSuperNakMsg, error) {
	if len(body) < 1 {
		return RegisterSuperNakMsg{}, ErrMalformedBody
	}
	return RegisterSuperNakMsg{Reason: NakReason(body[0])}, nil
}

func EncodeRegisterSuperNak(m RegisterSuperNakMsg) []byte {
	return []byte{byte(m.Reason)}
}

// PacketMsg is the body of PACKET: a raw encapsulated Ethernet frame. Its
// own source/destination MACs can be read via FrameMACs (gopacket); the
// forwarding engine does not use them, and does its anti-spoof check and
// broadcast/multicast classification on the common header's Src/Dst.
type PacketMsg struct {
	Frame []byte
}

func DecodePacket(body []byte) (PacketMsg, error) {
	if len(body) == 0 {
		return PacketMsg{}, ErrMalformedBody
	}
	frame := make([]byte, len(body))
	copy(frame, body)
	return PacketMsg{Frame: frame}, nil
}

func EncodePacket(m PacketMsg) []byte {
	return m.Frame
}

// FrameMACs extracts the encapsulated Ethernet frame's source and
// destination addresses using gopacket's layer-2 decoder, returning
// ErrMalformedBody if the frame is too short to contain an Ethernet header.
func (m PacketMsg) FrameMACs() (src, dst mac.Addr, err error) {
	pkt := gopacket.NewPacket(m.Frame, layers.LayerTypeEthernet, gopacket.NoCopy)
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return mac.Addr{}, mac.Addr{}, ErrMalformedBody
	}
	eth := ethLayer.(*layers.Ethernet)
	src, errSrc := mac.FromBytes(eth.SrcMAC)
	dst, errDst := mac.FromBytes(eth.DstMAC)
	if errSrc != nil || errDst != nil {
		return mac.Addr{}, mac.Addr{}, ErrMalformedBody
	}
	return src, dst, nil
}

// PeerInfoMsg is the body of PEER_INFO: one supernode answering "where is
// this MAC" with a reachable socket.
type PeerInfoMsg struct {
	MAC     mac.Addr
	Sock    RawSockAddr
	DevDesc string
}

func DecodePeerInfo(body []byte) (PeerInfoMsg, error) {
	if len(body) < mac.Size+rawSockAddrLen+devDescSize {
		return PeerInfoMsg{}, ErrMalformedBody
	}
	var m PeerInfoMsg
	a, err := mac.FromBytes(body[0:mac.Size])
	if err != nil {
		return PeerInfoMsg{}, ErrMalformedBody
	}
	m.MAC = a
	sock, err := decodeRawSockAddr(body[mac.Size : mac.Size+rawSockAddrLen])
	if err != nil {
		return PeerInfoMsg{}, err
	}
	m.Sock = sock
	m.DevDesc = readString(body[mac.Size+rawSockAddrLen : mac.Size+rawSockAddrLen+devDescSize])
	return m, nil
}

func EncodePeerInfo(m PeerInfoMsg) []byte {
	b := make([]byte, mac.Size+rawSockAddrLen+devDescSize)
	copy(b[0:mac.Size], m.MAC[:])
	copy(b[mac.Size:mac.Size+rawSockAddrLen], encodeRawSockAddr(m.Sock))
	writeFixedString(b[mac.Size+rawSockAddrLen:], m.DevDesc)
	return b
}

// QueryPeerMsg is the body of QUERY_PEER: "does any of your communities know
// this MAC".
type QueryPeerMsg struct {
	MAC mac.Addr
}

func DecodeQueryPeer(body []byte) (QueryPeerMsg, error) {
	if len(body) < mac.Size {
		return QueryPeerMsg{}, ErrMalformedBody
	}
	a, err := mac.FromBytes(body[0:mac.Size])
	if err != nil {
		return QueryPeerMsg{}, ErrMalformedBody
	}
	return QueryPeerMsg{MAC: a}, nil
}

func EncodeQueryPeer(m QueryPeerMsg) []byte {
	return append([]byte{}, m.MAC[:]...)
}

// FederationMsg wraps an inner message for inter-supernode relay: the inner
// type plus its raw encoded body, so a federation peer can forward without
// fully re-parsing.
type FederationMsg struct {
	InnerType Type
	InnerBody []byte
}

func DecodeFederation(body []byte) (FederationMsg, error) {
	if len(body) < 1 {
		return FederationMsg{}, ErrMalformedBody
	}
	inner := make([]byte, len(body)-1)
	copy(inner, body[1:])
	return FederationMsg{InnerType: Type(body[0]), InnerBody: inner}, nil
}

func EncodeFederation(m FederationMsg) []byte {
	b := make([]byte, 1+len(m.InnerBody))
	b[0] = byte(m.InnerType)
	copy(b[1:], m.InnerBody)
	return b
}
