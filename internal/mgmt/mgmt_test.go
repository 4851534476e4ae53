package mgmt

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Logan007/n3n/internal/community"
	"github.com/Logan007/n3n/internal/federation"
	"github.com/Logan007/n3n/internal/mac"
	"github.com/Logan007/n3n/internal/netio"
	"github.com/Logan007/n3n/internal/slog"
	"github.com/Logan007/n3n/internal/supernode"
	"github.com/Logan007/n3n/internal/wire"
)

// nopBind is a netio.Bind that does nothing, enough for a Runtime that only
// ever serves RPC calls in these tests.
type nopBind struct{}

func (nopBind) Open(port uint16) ([]netio.ReceiveFunc, uint16, error) { return nil, port, nil }
func (nopBind) Close() error                                         { return nil }
func (nopBind) Send(buf []byte, to netio.SockAddr) error             { return nil }
func (nopBind) Fd() (int, error)                                     { return -1, nil }

func testPool() community.AutoIPPool {
	return community.AutoIPPool{
		Min:    net.ParseIP("10.128.255.0").To4(),
		Max:    net.ParseIP("10.255.255.0").To4(),
		Prefix: 24,
	}
}

// newTestServer builds a Server wired to a Runtime, resolving the
// construction cycle the same way cmd/supernode does: Server first (as the
// EventSink), then Runtime, then BindRuntime.
func newTestServer(managementPassword string) (*Server, *supernode.Runtime) {
	s := NewServer(nil, "test-1.0", managementPassword)

	selfMAC, _ := mac.Parse("02:00:00:00:00:ff")
	communities := community.NewTable(testPool(), nil)
	fed := federation.NewSet(nil)
	logger := slog.New(slog.LevelSilent, "test")
	cfg := supernode.Config{
		SelfMAC:          selfMAC,
		Version:          "test-1.0",
		SweepInterval:    10,
		TTL:              120,
		ReRegInterval:    60,
		FedReRegInterval: 60,
	}
	rt := supernode.New(cfg, communities, fed, nopBind{}, logger, s)
	s.BindRuntime(rt)
	return s, rt
}

// registerEdge feeds a synthetic REGISTER_SUPER datagram through rt so a
// test can assert on the resulting community/edge state through the RPC
// surface, without a real socket.
func registerEdge(t *testing.T, rt *supernode.Runtime, communityName, macStr string) mac.Addr {
	t.Helper()
	addr, err := mac.Parse(macStr)
	require.NoError(t, err)

	h := wire.Header{Version: wire.Version, Type: wire.TypeRegisterSuper, Community: communityName, TxID: 1, Src: addr}
	body := wire.EncodeRegisterSuper(wire.RegisterSuperMsg{DevAddr: [4]byte{}, DevDesc: "edge", Version: "1.0"})
	buf := append(wire.EncodeHeader(h, nil, [wire.NonceSize]byte{}), body...)

	from := netio.SockAddr{Proto: netio.ProtoUDP, IP: net.ParseIP("203.0.113.5").To4(), Port: 1234}
	require.NoError(t, rt.HandleDatagram(buf, from, 1000))
	return addr
}
