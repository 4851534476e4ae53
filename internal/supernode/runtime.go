/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

// Package supernode wires the wire codec, peer table, community table, and
// federation set into the registration state machine, forwarding engine,
// and event loop: the runtime context that replaces the C original's global
// singleton.
package supernode

import (
	"sync/atomic"
	"time"

	"github.com/Logan007/n3n/internal/community"
	"github.com/Logan007/n3n/internal/federation"
	"github.com/Logan007/n3n/internal/mac"
	"github.com/Logan007/n3n/internal/netio"
	"github.com/Logan007/n3n/internal/slog"
)

// EventSink receives "peer"/"debug"/"test" event-plane notifications; the
// management plane implements it. Kept as an interface here so supernode
// never imports mgmt.
type EventSink interface {
	Emit(topic string, event interface{})
}

type nopSink struct{}

func (nopSink) Emit(string, interface{}) {}

// Config bundles the knobs Runtime needs beyond what config.Load already
// validates, kept separate from internal/config so supernode never imports
// the YAML-facing package.
type Config struct {
	SelfMAC            mac.Addr
	Version             string
	SpoofingProtection  bool
	SweepInterval       int64 // seconds
	TTL                 int64 // seconds
	ReRegInterval       int64 // seconds, server-advertised edge re-registration
	FedReRegInterval    int64 // seconds, this supernode's own federation re-reg cadence
	HeaderEncryption    bool
	CommunityPassword   string
	ReplayWindowSize    int
}

// Runtime is the single process-wide context threaded through every
// handler, in place of a global singleton. The signal handler touches only
// KeepRunning; the management plane's HTTP goroutines also read the
// community and federation tables (which hold their own locks) and Stats,
// and can call Stop and change the logger's level.
type Runtime struct {
	Communities *community.Table
	Federation  *federation.Set

	Bind   netio.Bind
	Logger *slog.Logger
	Events EventSink

	cfg Config

	Stats Stats

	keepRunning int32 // atomic bool; flipped by the signal handler and the stop RPC

	nextSweep    int64
	nextFedReg   int64
}

// New builds a Runtime. events may be nil, in which case emitted events are
// discarded (used by tests that don't exercise the management plane).
func New(cfg Config, communities *community.Table, fed *federation.Set, bind netio.Bind, logger *slog.Logger, events EventSink) *Runtime {
	if events == nil {
		events = nopSink{}
	}
	return &Runtime{
		Communities: communities,
		Federation:  fed,
		Bind:        bind,
		Logger:      logger,
		Events:      events,
		cfg:         cfg,
		keepRunning: 1,
	}
}

// KeepRunning reports whether the event loop should keep iterating.
func (r *Runtime) KeepRunning() bool {
	return atomic.LoadInt32(&r.keepRunning) != 0
}

// Stop flips KeepRunning false; safe to call from a signal handler.
func (r *Runtime) Stop() {
	atomic.StoreInt32(&r.keepRunning, 0)
}

// startTime is the arbitrary epoch Now counts from; time.Since reads its
// monotonic clock reading, so wall-clock adjustments do not move Now.
var startTime = time.Now()

// Now returns monotonic seconds since an arbitrary epoch, the "now" every
// handler and sweep operates on.
func Now() int64 {
	return int64(time.Since(startTime) / time.Second)
}
