/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package supernode

import (
	"net"

	"github.com/Logan007/n3n/internal/netio"
	"github.com/Logan007/n3n/internal/wire"
)

func rawIPv4(b [4]byte) net.IP {
	return net.IPv4(b[0], b[1], b[2], b[3]).To4()
}

func toFixedIPv4(ip net.IP) [4]byte {
	var b [4]byte
	if v4 := ip.To4(); v4 != nil {
		copy(b[:], v4)
	}
	return b
}

func toRawSockAddr(s netio.SockAddr) wire.RawSockAddr {
	return wire.RawSockAddr{IsV6: s.IsV6(), IP: s.IP, Port: s.Port}
}

func fromRawSockAddr(r wire.RawSockAddr) netio.SockAddr {
	proto := netio.ProtoUDP
	return netio.SockAddr{Proto: proto, IP: r.IP, Port: r.Port}
}
