/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package mgmt

import (
	"net"
)

// DefaultSlots is the default size of the management listener's bounded
// connection-slot table.
const DefaultSlots = 5

// boundedListener wraps a net.Listener so that once `slots` connections are
// open simultaneously, further Accepts block until one closes — "when full,
// new accepts are rejected" is approximated here as backpressure on Accept
// rather than an immediate reset, matching net/http's own connection model.
type boundedListener struct {
	net.Listener
	slots chan struct{}
}

// NewBoundedListener wraps ln with a fixed-size slot table.
func NewBoundedListener(ln net.Listener, slots int) net.Listener {
	if slots <= 0 {
		slots = DefaultSlots
	}
	return &boundedListener{Listener: ln, slots: make(chan struct{}, slots)}
}

func (b *boundedListener) Accept() (net.Conn, error) {
	b.slots <- struct{}{}
	conn, err := b.Listener.Accept()
	if err != nil {
		<-b.slots
		return nil, err
	}
	return &slotConn{Conn: conn, release: func() { <-b.slots }}, nil
}

type slotConn struct {
	net.Conn
	release func()
	closed  bool
}

func (c *slotConn) Close() error {
	if !c.closed {
		c.closed = true
		c.release()
	}
	return c.Conn.Close()
}
