package netio

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFramed(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	_, err := conn.Write(lenBuf[:])
	require.NoError(t, err)
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

func TestTCPBindReceivesFramedDatagram(t *testing.T) {
	b := NewTCPBind("127.0.0.1")
	port, err := b.Listen(0)
	require.NoError(t, err)
	defer b.Close()

	conn, err := net.Dial("tcp", (&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: int(port)}).String())
	require.NoError(t, err)
	defer conn.Close()

	writeFramed(t, conn, []byte{1, 2, 3, 4})

	buf, from, ok := b.ReceiveTimeout(time.Second)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4}, buf)
	require.Equal(t, ProtoTCP, from.Proto)
}

func TestTCPBindReceiveTimeoutExpiresWhenIdle(t *testing.T) {
	b := NewTCPBind("127.0.0.1")
	_, err := b.Listen(0)
	require.NoError(t, err)
	defer b.Close()

	_, _, ok := b.ReceiveTimeout(10 * time.Millisecond)
	require.False(t, ok, "no connection has sent anything, so this must time out, not hang")
}

func TestTCPBindSendWritesFramedDatagramToTheAcceptedConnection(t *testing.T) {
	b := NewTCPBind("127.0.0.1")
	port, err := b.Listen(0)
	require.NoError(t, err)
	defer b.Close()

	conn, err := net.Dial("tcp", (&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: int(port)}).String())
	require.NoError(t, err)
	defer conn.Close()

	// Prime the connection table by having the client send one datagram first.
	writeFramed(t, conn, []byte{0})
	_, from, ok := b.ReceiveTimeout(time.Second)
	require.True(t, ok)

	require.NoError(t, b.Send([]byte{9, 9}, from))

	var lenBuf [4]byte
	_, err = conn.Read(lenBuf[:])
	require.NoError(t, err)
	require.Equal(t, uint32(2), binary.BigEndian.Uint32(lenBuf[:]))

	payload := make([]byte, 2)
	_, err = conn.Read(payload)
	require.NoError(t, err)
	require.Equal(t, []byte{9, 9}, payload)
}

func TestTCPBindSendFailsWithoutAnOpenConnection(t *testing.T) {
	b := NewTCPBind("127.0.0.1")
	_, err := b.Listen(0)
	require.NoError(t, err)
	defer b.Close()

	err = b.Send([]byte{1}, SockAddr{Proto: ProtoTCP, IP: net.ParseIP("203.0.113.9").To4(), Port: 1})
	require.Error(t, err)
}

func TestCompositeBindRoutesSendByProto(t *testing.T) {
	udp := NewUDPBind("127.0.0.1")
	_, _, err := udp.Open(0)
	require.NoError(t, err)
	defer udp.Close()

	tcp := NewTCPBind("127.0.0.1")
	_, err = tcp.Listen(0)
	require.NoError(t, err)
	defer tcp.Close()

	c := &CompositeBind{UDP: udp, TCP: tcp}

	udpTarget := SockAddr{Proto: ProtoUDP, IP: net.ParseIP("127.0.0.1").To4(), Port: 1}
	require.NoError(t, c.Send([]byte{1}, udpTarget), "loopback UDP send to any port never errors synchronously")

	tcpTarget := SockAddr{Proto: ProtoTCP, IP: net.ParseIP("203.0.113.9").To4(), Port: 1}
	err = c.Send([]byte{1}, tcpTarget)
	require.Error(t, err, "no accepted connection for this address")
}

func TestCompositeBindSendErrorsWhenTCPDisabled(t *testing.T) {
	udp := NewUDPBind("127.0.0.1")
	_, _, err := udp.Open(0)
	require.NoError(t, err)
	defer udp.Close()

	c := &CompositeBind{UDP: udp, TCP: nil}
	err = c.Send([]byte{1}, SockAddr{Proto: ProtoTCP, IP: net.ParseIP("203.0.113.9").To4(), Port: 1})
	require.Error(t, err)
}
