/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package wire

import (
	"encoding/binary"
	"sync"

	orderedmap "github.com/KusakabeSi/go-ordered-map"
)

// ReplayWindow is a per-community sliding window of recently observed
// nonces. The last 8 bytes of a NonceSize-byte nonce are
// treated as the sender's monotonically increasing per-community counter;
// the window's floor trails the highest counter seen by windowSize.
//
// An ordered map is used instead of a plain map+slice so that once the
// window fills, evicting everything below the new floor is a walk from the
// oldest insertion rather than a scan of every entry.
type ReplayWindow struct {
	mu          sync.Mutex
	windowSize  uint64
	highest     uint64
	haveHighest bool
	seen        *orderedmap.OrderedMap[uint64, struct{}]
}

// NewReplayWindow allocates a window accepting windowSize distinct counters
// below the current highest.
func NewReplayWindow(windowSize int) *ReplayWindow {
	if windowSize <= 0 {
		windowSize = 1024
	}
	return &ReplayWindow{
		windowSize: uint64(windowSize),
		seen:       orderedmap.New[uint64, struct{}](),
	}
}

func counterOf(nonce [NonceSize]byte) uint64 {
	return binary.BigEndian.Uint64(nonce[NonceSize-8:])
}

// Accept records nonce as seen, returning ErrReplay if it is older than the
// window floor or has already been observed.
func (w *ReplayWindow) Accept(nonce [NonceSize]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := counterOf(nonce)

	if w.haveHighest {
		floor := w.floorLocked()
		if n < floor {
			return ErrReplay
		}
	}

	if _, present := w.seen.Get(n); present {
		return ErrReplay
	}

	w.seen.Set(n, struct{}{})
	if !w.haveHighest || n > w.highest {
		w.highest = n
		w.haveHighest = true
	}

	w.evictBelowFloorLocked()
	return nil
}

func (w *ReplayWindow) floorLocked() uint64 {
	if w.highest > w.windowSize {
		return w.highest - w.windowSize
	}
	return 0
}

func (w *ReplayWindow) evictBelowFloorLocked() {
	floor := w.floorLocked()
	for {
		oldest := w.seen.Oldest()
		if oldest == nil || oldest.Key >= floor {
			return
		}
		w.seen.Delete(oldest.Key)
	}
}

// Len reports the number of nonces currently tracked, for tests and
// diagnostics.
func (w *ReplayWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen.Len()
}
