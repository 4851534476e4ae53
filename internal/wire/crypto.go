/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package wire

import (
	"hash"
	"io"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// NonceSize matches golang.org/x/crypto/chacha20's NonceSize: the per-datagram
// value that both keys the header's stream-cipher keystream and anchors the
// community's replay window.
const NonceSize = chacha20.NonceSize

// CommunityCrypto holds one community's derived header-encryption key and
// its replay window. A community without header encryption configured has
// no CommunityCrypto at all (nil in the community/supernode layers).
type CommunityCrypto struct {
	key    [32]byte
	replay *ReplayWindow
}

// NewCommunityCrypto derives a 256-bit header-encryption key from the
// community name and an optional user password via HKDF-BLAKE2s, and
// allocates a fresh replay window for the community. Two supernodes (or an
// edge and a supernode) configured with the same name/password pair derive
// the identical key without ever exchanging it, the same trick the wire
// protocol this was distilled from uses for its community secret.
func NewCommunityCrypto(name, password string, windowSize int) (*CommunityCrypto, error) {
	newHash := func() hash.Hash {
		h, _ := blake2s.New256(nil)
		return h
	}
	reader := hkdf.New(newHash, []byte(password), []byte("n3n-supernode-header-key"), []byte(name))
	var key [32]byte
	if _, err := io.ReadFull(reader, key[:]); err != nil {
		return nil, err
	}
	return &CommunityCrypto{
		key:    key,
		replay: NewReplayWindow(windowSize),
	}, nil
}

// xorKeystream encrypts or decrypts (the operation is its own inverse) b in
// place using ChaCha20 keyed by the community's derived key and the given
// per-datagram nonce.
func (c *CommunityCrypto) xorKeystream(b []byte, nonce [NonceSize]byte) {
	cipher, err := chacha20.NewUnauthenticatedCipher(c.key[:], nonce[:])
	if err != nil {
		// Only occurs if the key or nonce length is wrong, which cannot
		// happen given the fixed-size arrays above.
		panic(err)
	}
	cipher.XORKeyStream(b, b)
}
