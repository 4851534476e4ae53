package supernode

import (
	"net"
	"sync"

	"github.com/Logan007/n3n/internal/community"
	"github.com/Logan007/n3n/internal/federation"
	"github.com/Logan007/n3n/internal/mac"
	"github.com/Logan007/n3n/internal/netio"
	"github.com/Logan007/n3n/internal/slog"
)

// fakeBind is a netio.Bind that records every Send instead of touching a
// real socket, so registration/forwarding tests can assert on exactly what
// would have gone out on the wire.
type fakeBind struct {
	mu   sync.Mutex
	sent []sentDatagram
}

type sentDatagram struct {
	buf []byte
	to  netio.SockAddr
}

func (b *fakeBind) Open(port uint16) ([]netio.ReceiveFunc, uint16, error) {
	return nil, port, nil
}

func (b *fakeBind) Close() error { return nil }

func (b *fakeBind) Send(buf []byte, to netio.SockAddr) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := append([]byte{}, buf...)
	b.sent = append(b.sent, sentDatagram{buf: cp, to: to})
	return nil
}

func (b *fakeBind) Fd() (int, error) { return -1, nil }

func (b *fakeBind) Sent() []sentDatagram {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]sentDatagram, len(b.sent))
	copy(out, b.sent)
	return out
}

func testPool() community.AutoIPPool {
	return community.AutoIPPool{
		Min:    net.ParseIP("10.128.255.0").To4(),
		Max:    net.ParseIP("10.255.255.0").To4(),
		Prefix: 24,
	}
}

func newTestRuntime(spoofing bool) (*Runtime, *fakeBind) {
	selfMAC, _ := mac.Parse("02:00:00:00:00:ff")
	communities := community.NewTable(testPool(), nil)
	fed := federation.NewSet(nil)
	bind := &fakeBind{}
	logger := slog.New(slog.LevelSilent, "test")
	cfg := Config{
		SelfMAC:            selfMAC,
		Version:            "test-1.0",
		SpoofingProtection: spoofing,
		SweepInterval:      10,
		TTL:                120,
		ReRegInterval:      60,
		FedReRegInterval:   60,
		ReplayWindowSize:   1024,
	}
	rt := New(cfg, communities, fed, bind, logger, nil)
	return rt, bind
}
