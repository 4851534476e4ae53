/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package netio

import "fmt"

// CompositeBind is a Bind that fans Send out to whichever underlying
// transport a destination's SockAddr.Proto names, letting the rest of the
// runtime treat "the main socket" as one thing even when both the UDP
// socket and the optional TCP listener (spec.md §3 "main UDP socket,
// optional TCP socket") are active.
type CompositeBind struct {
	UDP *UDPBind
	TCP *TCPBind // nil when EnableTCP is false
}

func (c *CompositeBind) Open(port uint16) ([]ReceiveFunc, uint16, error) {
	return c.UDP.Open(port)
}

func (c *CompositeBind) Close() error {
	err := c.UDP.Close()
	if c.TCP != nil {
		if tcpErr := c.TCP.Close(); tcpErr != nil && err == nil {
			err = tcpErr
		}
	}
	return err
}

func (c *CompositeBind) Send(buf []byte, to SockAddr) error {
	if to.Proto == ProtoTCP {
		if c.TCP == nil {
			return fmt.Errorf("netio: tcp destination %s but tcp is disabled", to)
		}
		return c.TCP.Send(buf, to)
	}
	return c.UDP.Send(buf, to)
}

func (c *CompositeBind) Fd() (int, error) {
	return c.UDP.Fd()
}
