/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package supernode

import "sync/atomic"

// Stats mirrors the packet/registration counters exposed verbatim through
// get_packetstats.
type Stats struct {
	RxSup           int64
	TxSupBroadcast  int64
	SnFwd           int64
	SnErrors        int64
	SnRegNak        int64
	RxTuntapError   int64
}

func (s *Stats) incRxSup()          { atomic.AddInt64(&s.RxSup, 1) }
func (s *Stats) incTxSupBroadcast() { atomic.AddInt64(&s.TxSupBroadcast, 1) }
func (s *Stats) incSnFwd()          { atomic.AddInt64(&s.SnFwd, 1) }
func (s *Stats) incSnErrors()       { atomic.AddInt64(&s.SnErrors, 1) }
func (s *Stats) incSnRegNak()       { atomic.AddInt64(&s.SnRegNak, 1) }
func (s *Stats) incRxTuntapError()  { atomic.AddInt64(&s.RxTuntapError, 1) }

// Snapshot returns a copy safe to serialize for get_packetstats.
func (s *Stats) Snapshot() Stats {
	return Stats{
		RxSup:          atomic.LoadInt64(&s.RxSup),
		TxSupBroadcast: atomic.LoadInt64(&s.TxSupBroadcast),
		SnFwd:          atomic.LoadInt64(&s.SnFwd),
		SnErrors:       atomic.LoadInt64(&s.SnErrors),
		SnRegNak:       atomic.LoadInt64(&s.SnRegNak),
		RxTuntapError:  atomic.LoadInt64(&s.RxTuntapError),
	}
}
