/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package netio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ReceiveFunc receives a single inbound datagram from the network, writing
// its payload into b and reporting the remote SockAddr it arrived from.
type ReceiveFunc func(b []byte) (n int, from SockAddr, err error)

// Bind listens for UDP and, optionally, TCP traffic on a single port. All
// sockets opened by a Bind are set non-blocking: the event loop must never
// block on anything but its readiness wait.
type Bind interface {
	// Open puts the Bind into a listening state on the given port, 0 meaning
	// "pick any free port", and returns one ReceiveFunc per opened socket
	// plus the actual port bound to.
	Open(port uint16) (fns []ReceiveFunc, actualPort uint16, err error)

	// Close closes every socket opened by Open.
	Close() error

	// Send writes b to the given destination.
	Send(b []byte, to SockAddr) error

	// Fd returns the underlying file descriptor of the main socket, used to
	// register the socket with the event loop's readiness primitive.
	Fd() (int, error)
}

var (
	ErrAlreadyOpen = errors.New("netio: bind is already open")
	ErrClosed      = net.ErrClosed
)

// IsEAGAIN reports whether err is the platform's "would block" error, the
// signal to drop a datagram rather than queue it.
func IsEAGAIN(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}

// UDPBind is the default Bind implementation: a single non-blocking UDP
// socket, bound to the given local address (or INADDR_ANY when empty).
type UDPBind struct {
	bindAddr string
	conn     *net.UDPConn
}

// NewUDPBind mirrors conn.NewDefaultBind from the teacher's conn package,
// generalized to the supernode's single dual-stack listener instead of
// per-address-family binds.
func NewUDPBind(bindAddr string) *UDPBind {
	return &UDPBind{bindAddr: bindAddr}
}

func (b *UDPBind) Open(port uint16) ([]ReceiveFunc, uint16, error) {
	if b.conn != nil {
		return nil, 0, ErrAlreadyOpen
	}
	addr := &net.UDPAddr{Port: int(port)}
	if b.bindAddr != "" {
		addr.IP = net.ParseIP(b.bindAddr)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, 0, err
	}
	if err := setNonBlocking(conn); err != nil {
		conn.Close()
		return nil, 0, err
	}
	b.conn = conn
	actual := uint16(conn.LocalAddr().(*net.UDPAddr).Port)
	return []ReceiveFunc{b.receive}, actual, nil
}

func (b *UDPBind) receive(buf []byte) (int, SockAddr, error) {
	n, from, err := b.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, SockAddr{}, err
	}
	return n, FromUDPAddr(from), nil
}

// ReceiveTimeout reads one datagram, blocking no longer than timeout. ok is
// false when the deadline elapsed or the underlying read would have
// blocked — the event loop's signal to just re-check KeepRunning and its
// sweep deadlines rather than treat it as an error.
func (b *UDPBind) ReceiveTimeout(buf []byte, timeout time.Duration) (n int, from SockAddr, ok bool) {
	if b.conn == nil {
		return 0, SockAddr{}, false
	}
	_ = b.conn.SetReadDeadline(time.Now().Add(timeout))
	n, from, err := b.receive(buf)
	if err != nil {
		return 0, SockAddr{}, false
	}
	return n, from, true
}

func (b *UDPBind) Send(buf []byte, to SockAddr) error {
	_, err := b.conn.WriteToUDP(buf, &net.UDPAddr{IP: to.IP, Port: int(to.Port)})
	return err
}

func (b *UDPBind) Close() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

func (b *UDPBind) Fd() (int, error) {
	if b.conn == nil {
		return -1, ErrClosed
	}
	raw, err := b.conn.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	err = raw.Control(func(f uintptr) { fd = int(f) })
	return fd, err
}

// setNonBlocking arranges for reads to return EAGAIN instead of blocking.
// Go's net package already services reads off the poller, but the
// underlying fd is put in non-blocking mode too so SO_MARK-style socket
// options (golang.org/x/sys/unix) can be layered on in the same place the
// teacher's BindSocketToInterface hooks would.
func setNonBlocking(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	cerr := raw.Control(func(fd uintptr) {
		serr = unix.SetNonblock(int(fd), true)
	})
	if cerr != nil {
		return cerr
	}
	return serr
}

// FrameMaxLen bounds one framed TCP datagram, generous enough for the
// largest PACKET body this protocol ever carries plus its header.
const FrameMaxLen = 9000

// tcpDatagram is one framed message read off an accepted connection, queued
// for the event loop to pick up via ReceiveTimeout.
type tcpDatagram struct {
	buf  []byte
	from SockAddr
}

// TCPBind accepts framed TCP connections carrying the same message types as
// the UDP bind: each connection is a stream of 4-byte big-endian length
// prefixes followed by exactly that many bytes, the straightforward way to
// carry n3n's otherwise self-delimited UDP datagrams over a byte stream
// (spec.md §4.A "framed-TCP datagram"). Every accepted connection gets its
// own blocking reader goroutine feeding a shared channel, since Go has no
// single readiness primitive spanning an arbitrary number of stream sockets;
// ReceiveTimeout turns that channel into the same bounded-wait shape the UDP
// bind offers, so the event loop still never blocks longer than its
// deadline.
type TCPBind struct {
	bindAddr string
	ln       *net.TCPListener

	mu    sync.Mutex
	conns map[string]net.Conn

	incoming chan tcpDatagram
}

// NewTCPBind allocates a TCPBind bound to bindAddr (empty for INADDR_ANY).
func NewTCPBind(bindAddr string) *TCPBind {
	return &TCPBind{
		bindAddr: bindAddr,
		conns:    make(map[string]net.Conn),
		incoming: make(chan tcpDatagram, 64),
	}
}

func (b *TCPBind) Listen(port uint16) (uint16, error) {
	addr := &net.TCPAddr{Port: int(port)}
	if b.bindAddr != "" {
		addr.IP = net.ParseIP(b.bindAddr)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	b.ln = ln
	go b.acceptLoop()
	return uint16(ln.Addr().(*net.TCPAddr).Port), nil
}

func (b *TCPBind) acceptLoop() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		from := FromTCPAddr(conn.RemoteAddr().(*net.TCPAddr))
		b.mu.Lock()
		b.conns[from.String()] = conn
		b.mu.Unlock()
		go b.readLoop(conn, from)
	}
}

// readLoop drains one connection's framed datagrams until it errors or is
// closed, then drops it from the connection table: a peer whose TCP socket
// dies simply stops producing REGISTER_SUPER/PACKET traffic and is swept
// like any other stale entry.
func (b *TCPBind) readLoop(conn net.Conn, from SockAddr) {
	defer func() {
		b.mu.Lock()
		delete(b.conns, from.String())
		b.mu.Unlock()
		conn.Close()
	}()
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n == 0 || n > FrameMaxLen {
			return
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		b.incoming <- tcpDatagram{buf: buf, from: from}
	}
}

// ReceiveTimeout returns the next framed datagram received on any accepted
// connection, blocking no longer than timeout. ok is false when the
// deadline elapsed, mirroring UDPBind.ReceiveTimeout so the event loop can
// alternate between the two binds without special-casing either.
func (b *TCPBind) ReceiveTimeout(timeout time.Duration) (buf []byte, from SockAddr, ok bool) {
	if b.ln == nil {
		return nil, SockAddr{}, false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case d := <-b.incoming:
		return d.buf, d.from, true
	case <-timer.C:
		return nil, SockAddr{}, false
	}
}

// Send writes a framed datagram to the connection accepted from to. Unlike
// UDP, TCP has no destination-addressed send without an existing
// connection: a peer this supernode never received a connection from (or
// whose connection has since dropped) cannot be reached this way.
func (b *TCPBind) Send(buf []byte, to SockAddr) error {
	b.mu.Lock()
	conn, ok := b.conns[to.String()]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("netio: no open tcp connection to %s", to)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(buf)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := conn.Write(buf)
	return err
}

func (b *TCPBind) Close() error {
	if b.ln == nil {
		return nil
	}
	err := b.ln.Close()
	b.ln = nil
	b.mu.Lock()
	for _, c := range b.conns {
		c.Close()
	}
	b.conns = make(map[string]net.Conn)
	b.mu.Unlock()
	return err
}
