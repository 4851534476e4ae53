package mac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	a, err := Parse("02:aa:00:00:00:01")
	require.NoError(t, err)
	require.Equal(t, "02:aa:00:00:00:01", a.String())
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse("not-a-mac")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestNullAndBroadcast(t *testing.T) {
	require.True(t, Addr{}.IsNull())
	require.True(t, Broadcast.IsBroadcast())
	require.False(t, Broadcast.IsNull())
}

func TestIsMulticast(t *testing.T) {
	a, err := Parse("01:00:5e:00:00:01")
	require.NoError(t, err)
	require.True(t, a.IsMulticast())
}

func TestIsLocallyAdministered(t *testing.T) {
	a, err := Parse("02:aa:00:00:00:01")
	require.NoError(t, err)
	require.True(t, a.IsLocallyAdministered())

	b, err := Parse("00:aa:00:00:00:01")
	require.NoError(t, err)
	require.False(t, b.IsLocallyAdministered())
}

func TestFromBytesRoundTrip(t *testing.T) {
	a, err := Parse("02:bb:00:00:00:02")
	require.NoError(t, err)
	b, err := FromBytes(a.Bytes())
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestFromBytesTooShort(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestRandomLocalIsLocallyAdministeredAndUnicast(t *testing.T) {
	fill := func(b []byte) (int, error) {
		for i := range b {
			b[i] = 0xff
		}
		return len(b), nil
	}
	a, err := RandomLocal(fill)
	require.NoError(t, err)
	require.True(t, a.IsLocallyAdministered())
	require.False(t, a.IsMulticast())
}
