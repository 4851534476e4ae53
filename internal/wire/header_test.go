package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Logan007/n3n/internal/mac"
)

func TestHeaderRoundTripPlain(t *testing.T) {
	src, _ := mac.Parse("02:aa:00:00:00:01")
	dst, _ := mac.Parse("02:bb:00:00:00:02")
	h := Header{Version: Version, Community: "acme", TxID: 42, Type: TypeRegisterSuper, Src: src, Dst: dst}

	buf := EncodeHeader(h, nil, [NonceSize]byte{})
	got, n, err := DecodeHeader(buf, nil)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, h.Community, got.Community)
	require.Equal(t, h.TxID, got.TxID)
	require.Equal(t, h.Type, got.Type)
	require.Equal(t, h.Src, got.Src)
	require.Equal(t, h.Dst, got.Dst)
}

func TestHeaderRoundTripEncrypted(t *testing.T) {
	crypto, err := NewCommunityCrypto("acme", "", 1024)
	require.NoError(t, err)

	src, _ := mac.Parse("02:aa:00:00:00:01")
	dst := mac.Broadcast
	h := Header{Version: Version, Community: "acme", TxID: 7, Type: TypePacket, Src: src, Dst: dst}

	var nonce [NonceSize]byte
	nonce[NonceSize-1] = 1
	buf := EncodeHeader(h, crypto, nonce)

	decryptCrypto, err := NewCommunityCrypto("acme", "", 1024)
	require.NoError(t, err)
	got, n, err := DecodeHeader(buf, decryptCrypto)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, h.Type, got.Type)
	require.Equal(t, h.Src, got.Src)
	require.Equal(t, h.Dst, got.Dst)
}

func TestDecodeHeaderMalformedTooShort(t *testing.T) {
	_, _, err := DecodeHeader([]byte{Version, 0}, nil)
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestDecodeHeaderUnsupportedVersion(t *testing.T) {
	buf := make([]byte, HeaderLen)
	buf[0] = Version + 1
	_, _, err := DecodeHeader(buf, nil)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeHeaderEncryptedMismatch(t *testing.T) {
	src, _ := mac.Parse("02:aa:00:00:00:01")
	h := Header{Version: Version, Community: "acme", Type: TypeRegisterSuper, Src: src}
	buf := EncodeHeader(h, nil, [NonceSize]byte{})

	crypto, err := NewCommunityCrypto("acme", "", 1024)
	require.NoError(t, err)
	_, _, err = DecodeHeader(buf, crypto)
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestPeekCommunity(t *testing.T) {
	src, _ := mac.Parse("02:aa:00:00:00:01")
	h := Header{Version: Version, Community: "acme", Type: TypeRegisterSuper, Src: src}
	buf := EncodeHeader(h, nil, [NonceSize]byte{})

	name, encrypted, err := PeekCommunity(buf)
	require.NoError(t, err)
	require.Equal(t, "acme", name)
	require.False(t, encrypted)
}
