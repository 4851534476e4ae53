package supernode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Logan007/n3n/internal/mac"
	"github.com/Logan007/n3n/internal/netio"
)

// recordingSink captures every emitted event so tests can assert on exactly
// what the sweeper announced.
type recordingSink struct {
	events []emitted
}

type emitted struct {
	topic string
	event interface{}
}

func (s *recordingSink) Emit(topic string, event interface{}) {
	s.events = append(s.events, emitted{topic: topic, event: event})
}

// Scenario 5 (spec.md §8): sweeping evicts purgeable peers past TTL one at a
// time, emits a REMOVE event per eviction, and only deletes the community
// once it is both empty and purgeable.
func TestSweepEvictsStalePeersAndEmptyCommunity(t *testing.T) {
	rt, _ := newTestRuntime(true)
	rt.cfg.TTL = 120

	sink := &recordingSink{}
	rt.Events = sink

	edgeA, _ := mac.Parse("02:aa:00:00:00:01")
	edgeB, _ := mac.Parse("02:bb:00:00:00:02")

	require.NoError(t, rt.HandleDatagram(registerSuperDatagram("acme", edgeA, [4]byte{}), edgeSock("203.0.113.5", 1234), 1000))
	require.NoError(t, rt.HandleDatagram(registerSuperDatagram("acme", edgeB, [4]byte{}), edgeSock("203.0.113.6", 1234), 1001))

	c, ok := rt.Communities.Get("acme")
	require.True(t, ok)
	require.Equal(t, 2, c.Edges.Len())

	sink.events = nil

	// now=1121: A's last_seen(1000)+TTL(120) = 1120 < 1121, so A is swept; B's
	// last_seen(1001)+120 = 1121, not strictly less than 1121, so B survives.
	rt.sweep(1121)
	require.Equal(t, 1, c.Edges.Len())
	_, stillA := c.Edges.FindByMAC(edgeA)
	require.False(t, stillA)
	_, stillB := c.Edges.FindByMAC(edgeB)
	require.True(t, stillB)

	_, stillExists := rt.Communities.Get("acme")
	require.True(t, stillExists, "community survives while B remains")

	removeEvents := 0
	for _, e := range sink.events {
		if e.topic == "peer" {
			ev := e.event.(peerEvent)
			if ev.Action == "REMOVE" {
				removeEvents++
				require.Equal(t, "acme", ev.Community)
				require.Equal(t, edgeA.String(), ev.MAC)
			}
		}
	}
	require.Equal(t, 1, removeEvents, "exactly one REMOVE event for A")

	sink.events = nil

	// now=1250: B's last_seen(1001)+120 = 1121 < 1250, so B is swept too,
	// leaving acme empty and purgeable: it is removed.
	rt.sweep(1250)
	require.Equal(t, 0, c.Edges.Len())
	_, exists := rt.Communities.Get("acme")
	require.False(t, exists, "purgeable community is removed once empty")

	removeEvents = 0
	for _, e := range sink.events {
		if e.topic == "peer" && e.event.(peerEvent).Action == "REMOVE" {
			removeEvents++
		}
	}
	require.Equal(t, 1, removeEvents, "exactly one REMOVE event for B")
}

// Run polls every source it is given, not just the first, so a supernode
// with TCP enabled services both its UDP and TCP main sockets in the same
// loop iteration.
func TestRunPollsEverySource(t *testing.T) {
	rt, bind := newTestRuntime(true)
	edgeA, _ := mac.Parse("02:aa:00:00:00:01")
	edgeB, _ := mac.Parse("02:bb:00:00:00:02")

	udpDelivered := false
	tcpDelivered := false
	udpSource := func(timeout time.Duration) ([]byte, netio.SockAddr, bool) {
		if udpDelivered {
			return nil, netio.SockAddr{}, false
		}
		udpDelivered = true
		return registerSuperDatagram("acme", edgeA, [4]byte{}), edgeSock("203.0.113.5", 1234), true
	}
	tcpSource := func(timeout time.Duration) ([]byte, netio.SockAddr, bool) {
		if tcpDelivered {
			rt.Stop()
			return nil, netio.SockAddr{}, false
		}
		tcpDelivered = true
		return registerSuperDatagram("acme", edgeB, [4]byte{}), netio.SockAddr{Proto: netio.ProtoTCP, IP: edgeSock("203.0.113.6", 1234).IP, Port: 1234}, true
	}

	rt.Run(udpSource, tcpSource)

	require.True(t, udpDelivered)
	require.True(t, tcpDelivered)
	c, ok := rt.Communities.Get("acme")
	require.True(t, ok)
	require.Equal(t, 2, c.Edges.Len(), "both the UDP- and TCP-sourced registrations landed")
	require.Len(t, bind.Sent(), 2)
}

// A non-purgeable peer (a federation anchor) is exempt from sweeping
// regardless of how stale its last_seen is.
func TestSweepNeverRemovesNonPurgeableFederationPeer(t *testing.T) {
	rt, _ := newTestRuntime(true)
	rt.cfg.TTL = 120

	anchorMAC, _ := mac.Parse("02:cc:00:00:00:01")
	anchor, _ := rt.Federation.Peers.AddOrUpdate(anchorMAC, edgeSock("198.51.100.1", 7777), 0)
	anchor.Purgeable = false

	rt.sweep(999999)
	_, ok := rt.Federation.Peers.FindByMAC(anchorMAC)
	require.True(t, ok, "non-purgeable federation anchors are never swept")
}
