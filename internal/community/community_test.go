package community

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Logan007/n3n/internal/mac"
	"github.com/Logan007/n3n/internal/netio"
)

func mustMAC(s string) mac.Addr {
	a, err := mac.Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func testSock() netio.SockAddr {
	return netio.SockAddr{Proto: netio.ProtoUDP, IP: net.ParseIP("203.0.113.5").To4(), Port: 1}
}

func testPool() AutoIPPool {
	return AutoIPPool{
		Min:    net.ParseIP("10.128.255.0").To4(),
		Max:    net.ParseIP("10.255.255.0").To4(),
		Prefix: 24,
	}
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	tbl := NewTable(testPool(), nil)
	c1, created1, err := tbl.GetOrCreate("acme", "", false, 0, nil)
	require.NoError(t, err)
	require.True(t, created1)

	c2, created2, err := tbl.GetOrCreate("acme", "", false, 0, nil)
	require.NoError(t, err)
	require.False(t, created2)
	require.Same(t, c1, c2)
}

func TestGetOrCreateDeniesUndeclaredDynamicCommunity(t *testing.T) {
	allowed := NewAllowList([]string{"acme"})
	tbl := NewTable(testPool(), allowed)

	_, _, err := tbl.GetOrCreate("evil", "", false, 0, nil)
	require.ErrorIs(t, err, ErrCommunityDenied)

	c, created, err := tbl.GetOrCreate("acme", "", false, 0, nil)
	require.NoError(t, err)
	require.True(t, created)
	require.False(t, c.Purgeable, "declared communities are not purgeable")
}

func TestGetOrCreateDynamicIsPurgeable(t *testing.T) {
	tbl := NewTable(testPool(), nil)
	c, _, err := tbl.GetOrCreate("acme", "", false, 0, nil)
	require.NoError(t, err)
	require.True(t, c.Purgeable)
}

func TestAtMostOneFederationCommunity(t *testing.T) {
	tbl := NewTable(testPool(), nil)
	_, _, err := tbl.GetOrCreate("*federation", "", false, 0, nil)
	require.NoError(t, err)

	fed, ok := tbl.Federation()
	require.True(t, ok)
	require.True(t, fed.IsFederation)

	_, _, err = tbl.GetOrCreate("*second", "", false, 0, nil)
	require.Error(t, err, "a second federation community is refused")
}

func TestSubnetAssignmentWithinGlobalPoolAndDeterministic(t *testing.T) {
	tbl := NewTable(testPool(), nil)
	for _, n := range []string{"acme", "widgets", "foo", "bar", "baz"} {
		c, _, err := tbl.GetOrCreate(n, "", false, 0, nil)
		require.NoError(t, err)
		require.True(t, ipToUint32(c.AutoIPNet.Start) >= ipToUint32(tbl.pool.Min))
		require.True(t, ipToUint32(c.AutoIPNet.Start) <= ipToUint32(tbl.pool.Max))
	}

	tbl2 := NewTable(testPool(), nil)
	c2, _, err := tbl2.GetOrCreate("acme", "", false, 0, nil)
	require.NoError(t, err)
	c1, _ := tbl.Get("acme")
	require.Equal(t, c1.AutoIPNet.Start, c2.AutoIPNet.Start, "subnet derivation is deterministic given the same pool")
}

func TestAllocateIPStaysWithinSubnet(t *testing.T) {
	tbl := NewTable(testPool(), nil)
	c, _, err := tbl.GetOrCreate("acme", "", false, 0, nil)
	require.NoError(t, err)

	ip1, err := c.AllocateIP()
	require.NoError(t, err)
	require.True(t, c.AutoIPNet.Contains(ip1))

	c.Edges.AddOrUpdate(mustMAC("02:aa:00:00:00:01"), testSock(), 1000)
	peerEntry, _ := c.Edges.FindByMAC(mustMAC("02:aa:00:00:00:01"))
	peerEntry.DevAddr = ip1

	ip2, err := c.AllocateIP()
	require.NoError(t, err)
	require.NotEqual(t, ip1, ip2)
	require.True(t, c.AutoIPNet.Contains(ip2))
}

func TestRemoveIfEmptyAndPurgeable(t *testing.T) {
	tbl := NewTable(testPool(), nil)
	_, _, err := tbl.GetOrCreate("acme", "", false, 0, nil)
	require.NoError(t, err)

	require.True(t, tbl.RemoveIfEmptyAndPurgeable("acme"))
	_, ok := tbl.Get("acme")
	require.False(t, ok)
}

func TestSetAllowListAffectsSubsequentGetOrCreate(t *testing.T) {
	tbl := NewTable(testPool(), NewAllowList([]string{"acme"}))

	_, _, err := tbl.GetOrCreate("widgets", "", false, 0, nil)
	require.ErrorIs(t, err, ErrCommunityDenied)

	tbl.SetAllowList(NewAllowList([]string{"acme", "widgets"}))

	c, created, err := tbl.GetOrCreate("widgets", "", false, 0, nil)
	require.NoError(t, err)
	require.True(t, created)
	require.False(t, c.Purgeable, "now declared, so not purgeable")
}

func TestRemoveIfEmptyAndPurgeableKeepsDeclaredCommunity(t *testing.T) {
	allowed := NewAllowList([]string{"acme"})
	tbl := NewTable(testPool(), allowed)
	_, _, err := tbl.GetOrCreate("acme", "", false, 0, nil)
	require.NoError(t, err)

	require.False(t, tbl.RemoveIfEmptyAndPurgeable("acme"))
	_, ok := tbl.Get("acme")
	require.True(t, ok)
}
