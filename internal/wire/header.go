/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

// Package wire implements the supernode-facing half of the n3n wire
// protocol: the common header (with optional encryption and replay
// protection) and the REGISTER/REGISTER_ACK/REGISTER_SUPER/PACKET/PEER_INFO/
// QUERY_PEER/FEDERATION message bodies.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/Logan007/n3n/internal/mac"
)

// CommunityNameSize is the fixed, nul-padded width of the community name
// field in the common header.
const CommunityNameSize = 32

// Type identifies the kind of message carried after the common header.
type Type uint8

const (
	TypeRegister Type = iota + 1
	TypeRegisterAck
	TypeRegisterSuper
	TypeRegisterSuperAck
	TypeRegisterSuperNak
	TypePacket
	TypePeerInfo
	TypeQueryPeer
	TypeFederation
)

func (t Type) String() string {
	switch t {
	case TypeRegister:
		return "REGISTER"
	case TypeRegisterAck:
		return "REGISTER_ACK"
	case TypeRegisterSuper:
		return "REGISTER_SUPER"
	case TypeRegisterSuperAck:
		return "REGISTER_SUPER_ACK"
	case TypeRegisterSuperNak:
		return "REGISTER_SUPER_NAK"
	case TypePacket:
		return "PACKET"
	case TypePeerInfo:
		return "PEER_INFO"
	case TypeQueryPeer:
		return "QUERY_PEER"
	case TypeFederation:
		return "FEDERATION"
	default:
		return "UNKNOWN"
	}
}

// Version is the only common-header version this codec understands.
const Version = 3

// Flag bits in the common header.
const (
	FlagEncrypted uint8 = 1 << iota
)

var (
	ErrMalformedHeader = errors.New("wire: malformed header")
	ErrMalformedBody   = errors.New("wire: malformed body")
	ErrUnsupportedVersion = errors.New("wire: unsupported protocol version")
	ErrReplay          = errors.New("wire: replayed nonce")
	ErrNoCommunityKey  = errors.New("wire: community requires a key but none is configured")
)

// plainHeaderLen is byte 0 (version) + byte 1 (flags) + the community name,
// the unencrypted preamble that lets the receiver select a per-community key
// before anything else is interpreted.
const plainHeaderLen = 2 + CommunityNameSize

// cipherHeaderLen is the size of the portion that is XORed with the stream
// cipher keystream when header encryption is enabled: type, transaction id,
// source mac, destination mac.
const cipherHeaderLen = 1 + 2 + mac.Size + mac.Size

// HeaderLen is the total length of the common header when NOT encrypted
// (nonce is absent in that case).
const HeaderLen = plainHeaderLen + cipherHeaderLen

// HeaderLenEncrypted is the total length of the common header when header
// encryption is enabled: the plaintext preamble, the unencrypted nonce, and
// the encrypted block.
const HeaderLenEncrypted = plainHeaderLen + NonceSize + cipherHeaderLen

// Header is the fixed-size common header preceding every message.
type Header struct {
	Version   uint8
	Encrypted bool
	Type      Type
	Community string
	TxID      uint16
	Src       mac.Addr
	Dst       mac.Addr
}

// PeekCommunity reads just the unencrypted preamble (version, flags,
// community name) without touching anything that might be encrypted. Callers
// use the returned name to look up the community's CommunityCrypto before
// calling DecodeHeader.
func PeekCommunity(buf []byte) (name string, encrypted bool, err error) {
	if len(buf) < plainHeaderLen {
		return "", false, ErrMalformedHeader
	}
	if buf[0] != Version {
		return "", false, ErrUnsupportedVersion
	}
	encrypted = buf[1]&FlagEncrypted != 0
	name = decodeCommunityName(buf[2 : 2+CommunityNameSize])
	return name, encrypted, nil
}

func decodeCommunityName(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func encodeCommunityName(name string) [CommunityNameSize]byte {
	var out [CommunityNameSize]byte
	n := copy(out[:], name)
	_ = n
	return out
}

// DecodeHeader parses the common header, decrypting a copy of it (buf itself
// is left unchanged; the small preamble is never encrypted) when crypto is
// non-nil and the packet's
// encrypted flag is set. It also enforces the replay window carried by
// crypto. Pass crypto == nil for a community with header encryption
// disabled; passing nil while the packet claims to be encrypted (or vice
// versa) is a MalformedHeader error, since that mismatch can only mean the
// sender and this supernode disagree about the community's configuration.
func DecodeHeader(buf []byte, crypto *CommunityCrypto) (Header, int, error) {
	name, encrypted, err := PeekCommunity(buf)
	if err != nil {
		return Header{}, 0, err
	}

	if encrypted != (crypto != nil) {
		return Header{}, 0, ErrMalformedHeader
	}

	h := Header{
		Version:   Version,
		Encrypted: encrypted,
		Community: name,
	}

	if !encrypted {
		if len(buf) < HeaderLen {
			return Header{}, 0, ErrMalformedHeader
		}
		rest := buf[plainHeaderLen:HeaderLen]
		decodeCipherBlock(&h, rest)
		return h, HeaderLen, nil
	}

	if len(buf) < HeaderLenEncrypted {
		return Header{}, 0, ErrMalformedHeader
	}
	nonce := buf[plainHeaderLen : plainHeaderLen+NonceSize]
	cipherBlock := make([]byte, cipherHeaderLen)
	copy(cipherBlock, buf[plainHeaderLen+NonceSize:HeaderLenEncrypted])

	var n8 [NonceSize]byte
	copy(n8[:], nonce)
	if err := crypto.replay.Accept(n8); err != nil {
		return Header{}, 0, err
	}

	crypto.xorKeystream(cipherBlock, n8)
	decodeCipherBlock(&h, cipherBlock)
	return h, HeaderLenEncrypted, nil
}

func decodeCipherBlock(h *Header, b []byte) {
	h.Type = Type(b[0])
	h.TxID = binary.BigEndian.Uint16(b[1:3])
	copy(h.Src[:], b[3:3+mac.Size])
	copy(h.Dst[:], b[3+mac.Size:3+2*mac.Size])
}

func encodeCipherBlock(h Header) []byte {
	b := make([]byte, cipherHeaderLen)
	b[0] = byte(h.Type)
	binary.BigEndian.PutUint16(b[1:3], h.TxID)
	copy(b[3:3+mac.Size], h.Src[:])
	copy(b[3+mac.Size:3+2*mac.Size], h.Dst[:])
	return b
}

// EncodeHeader serializes h. When crypto is non-nil, nextNonce supplies the
// per-datagram nonce used to both key the stream cipher and seed the
// receiver's replay check; callers pass a monotonically increasing counter
// in the nonce's last 8 bytes, which is what ReplayWindow reads.
func EncodeHeader(h Header, crypto *CommunityCrypto, nonce [NonceSize]byte) []byte {
	name := encodeCommunityName(h.Community)

	buf := new(bytes.Buffer)
	flags := uint8(0)
	if crypto != nil {
		flags |= FlagEncrypted
	}
	buf.WriteByte(Version)
	buf.WriteByte(flags)
	buf.Write(name[:])

	block := encodeCipherBlock(h)
	if crypto == nil {
		buf.Write(block)
		return buf.Bytes()
	}

	buf.Write(nonce[:])
	crypto.xorKeystream(block, nonce)
	buf.Write(block)
	return buf.Bytes()
}
