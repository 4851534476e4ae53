/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

// Package netio implements the supernode's network connections: the
// tagged-union socket address, and the non-blocking UDP/TCP Bind used by the
// event loop.
package netio

import (
	"fmt"
	"net"
)

// Proto discriminates the transport carrying a SockAddr.
type Proto uint8

const (
	ProtoUDP Proto = iota
	ProtoTCP
)

func (p Proto) String() string {
	if p == ProtoTCP {
		return "tcp"
	}
	return "udp"
}

// SockAddr is the tagged union of IPv4/IPv6 plus a UDP/TCP discriminant and a
// port, mirroring the wire-level n2n_sock_t this protocol was distilled from.
type SockAddr struct {
	Proto Proto
	IP    net.IP // 4 or 16 bytes, always stored in canonical form
	Port  uint16
}

// IsV6 reports whether the address is an IPv6 address.
func (s SockAddr) IsV6() bool {
	return s.IP.To4() == nil
}

func (s SockAddr) String() string {
	host := s.IP.String()
	if s.IsV6() {
		return fmt.Sprintf("[%s]:%d", host, s.Port)
	}
	return fmt.Sprintf("%s:%d", host, s.Port)
}

// Equal compares two SockAddr values for the purposes of the peer table's
// secondary socket index.
func (s SockAddr) Equal(o SockAddr) bool {
	return s.Proto == o.Proto && s.Port == o.Port && s.IP.Equal(o.IP)
}

// FromUDPAddr builds a SockAddr from a resolved net.UDPAddr.
func FromUDPAddr(a *net.UDPAddr) SockAddr {
	ip := a.IP
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return SockAddr{Proto: ProtoUDP, IP: ip, Port: uint16(a.Port)}
}

// FromTCPAddr builds a SockAddr from a resolved net.TCPAddr.
func FromTCPAddr(a *net.TCPAddr) SockAddr {
	ip := a.IP
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return SockAddr{Proto: ProtoTCP, IP: ip, Port: uint16(a.Port)}
}

// ParseEndpoint parses the conventional "host:port" form used in config files
// and management output, tagging the result with the given proto.
func ParseEndpoint(s string, proto Proto) (SockAddr, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return SockAddr{}, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return SockAddr{}, fmt.Errorf("resolve %q: %w", host, err)
		}
		ip = ips[0]
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return SockAddr{}, fmt.Errorf("bad port %q: %w", portStr, err)
	}
	return SockAddr{Proto: proto, IP: ip, Port: uint16(port)}, nil
}
