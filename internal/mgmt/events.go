/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package mgmt

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
)

// recordSeparator is the ASCII RS byte JSON Text Sequences uses to prefix
// each event object (RFC 7464).
const recordSeparator = 0x1E

// topic holds at most one current subscriber; subscribing replaces and
// politely notifies whoever was there before.
type topic struct {
	mu      sync.Mutex
	current *subscriber
}

func newTopic() *topic {
	return &topic{}
}

type subscriber struct {
	w       http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
}

func (t *topic) subscribe(w http.ResponseWriter) *subscriber {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub := &subscriber{w: w, done: make(chan struct{})}
	if f, ok := w.(http.Flusher); ok {
		sub.flusher = f
	}

	if t.current != nil {
		// Best effort, no flush check: if the old socket is already dead
		// this write is simply lost.
		writeEvent(t.current.w, t.current.flusher, map[string]string{"notice": "replacing"})
		close(t.current.done)
	}
	t.current = sub
	return sub
}

func (t *topic) unsubscribe(sub *subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == sub {
		t.current = nil
	}
}

func (t *topic) publish(event interface{}) {
	t.mu.Lock()
	sub := t.current
	t.mu.Unlock()
	if sub == nil {
		return
	}
	writeEvent(sub.w, sub.flusher, event)
}

func writeEvent(w http.ResponseWriter, f http.Flusher, event interface{}) {
	b, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte{recordSeparator})
	_, _ = w.Write(b)
	_, _ = w.Write([]byte{'\n'})
	if f != nil {
		f.Flush()
	}
}

// handleSubscribe upgrades a GET /events/<topic> request into a
// never-closing chunked stream of JSON Text Sequences.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topicName := mux.Vars(r)["topic"]
	t, ok := s.topics[topicName]
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json-seq")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	sub := t.subscribe(w)
	defer t.unsubscribe(sub)

	select {
	case <-sub.done:
	case <-r.Context().Done():
	}
}
