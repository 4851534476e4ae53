/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

// Package mgmt implements the management HTTP+JSON-RPC plane: request
// routing via gorilla/mux, the closed JSON-RPC method set, bearer-token
// auth on mutating methods, and the SSE-like event subscription stream.
package mgmt

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Logan007/n3n/internal/community"
	"github.com/Logan007/n3n/internal/peer"
	"github.com/Logan007/n3n/internal/slog"
	"github.com/Logan007/n3n/internal/supernode"
)

// Server is the management plane: an HTTP handler backed by a *supernode.Runtime.
// It implements supernode.EventSink so the runtime can hand it "peer"/"test"/
// "debug" notifications without importing this package back.
type Server struct {
	rt      *supernode.Runtime
	router  *mux.Router
	version string

	managementSecret []byte

	topics   map[string]*topic
	onReload func() error
}

// NewServer builds the management HTTP handler. rt may be nil at
// construction time and supplied later via BindRuntime, since the Runtime
// itself needs a Server (as its EventSink) to exist first.
// managementPassword, if non-empty, is both the HMAC secret mutating
// methods' bearer tokens are verified against and the seed for IssueToken.
func NewServer(rt *supernode.Runtime, version, managementPassword string) *Server {
	s := &Server{
		rt:               rt,
		version:          version,
		managementSecret: []byte(managementPassword),
		topics: map[string]*topic{
			"debug": newTopic(),
			"test":  newTopic(),
			"peer":  newTopic(),
		},
	}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/v1", s.handleRPC).Methods(http.MethodPost)
	s.router.HandleFunc("/events/{topic}", s.handleSubscribe).Methods(http.MethodGet)
	s.router.HandleFunc("/help", notImplemented).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", notImplemented).Methods(http.MethodGet)
	s.router.HandleFunc("/status", notImplemented).Methods(http.MethodGet)
	s.router.HandleFunc("/", serveStaticUI).Methods(http.MethodGet)
	s.router.HandleFunc("/script.js", serveStaticJS).Methods(http.MethodGet)
	return s
}

// ServeHTTP makes Server an http.Handler directly usable with http.Serve on
// the bounded-slot listener cmd/supernode serves it on.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// BindRuntime supplies the Runtime a Server was constructed ahead of,
// breaking the Server/Runtime construction cycle (Runtime.New needs an
// EventSink; Server's RPC handlers need the Runtime).
func (s *Server) BindRuntime(rt *supernode.Runtime) {
	s.rt = rt
}

// IssueToken mints a bearer token an operator can use to call mutating
// methods, signed with the configured management password.
func (s *Server) IssueToken(subject string) (string, error) {
	return issueToken(s.managementSecret, subject, 24*time.Hour)
}

func notImplemented(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func serveStaticUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!doctype html><title>supernode</title><p>see /help</p>"))
}

func serveStaticJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	_, _ = w.Write([]byte("// management UI placeholder\n"))
}

// Emit implements supernode.EventSink: it forwards event to topic's current
// subscriber (if any) and, per spec.md §4.H, also to the debug topic.
func (s *Server) Emit(topicName string, event interface{}) {
	if t, ok := s.topics[topicName]; ok {
		t.publish(event)
	}
	if topicName != "debug" {
		if t, ok := s.topics["debug"]; ok {
			t.publish(event)
		}
	}
}

func (s *Server) rpcGetSupernodes() interface{} {
	type fedInfo struct {
		MAC      string `json:"mac"`
		Hostname string `json:"hostname"`
		Sock     string `json:"sock"`
		LastSeen int64  `json:"last_seen"`
	}
	var out []fedInfo
	s.rt.Federation.Peers.Each(func(p *peer.Peer) {
		out = append(out, fedInfo{MAC: p.MAC.String(), Hostname: p.Hostname, Sock: p.Sock.String(), LastSeen: p.LastSeen})
	})
	if out == nil {
		out = []fedInfo{}
	}
	return out
}

func (s *Server) rpcGetTimestamps() interface{} {
	return map[string]int64{"now": supernode.Now()}
}

func (s *Server) rpcSetVerbose(params []byte) (interface{}, *rpcError) {
	var p struct {
		Level int `json:"level"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &rpcError{Code: 400, Message: "bad params"}
	}
	s.rt.Logger.SetLevel(slog.Level(p.Level))
	return map[string]bool{"ok": true}, nil
}

func (s *Server) rpcReloadCommunities() (interface{}, *rpcError) {
	if s.onReload == nil {
		return map[string]bool{"ok": true}, nil
	}
	if err := s.onReload(); err != nil {
		return nil, &rpcError{Code: 500, Message: err.Error()}
	}
	return map[string]bool{"ok": true}, nil
}

// SetReloadHandler wires the reload_communities method to fn, called by
// cmd/supernode after building the full config/community-table pipeline.
func (s *Server) SetReloadHandler(fn func() error) {
	s.onReload = fn
}

func (s *Server) edgesOf(communityName string) interface{} {
	type edgeInfo struct {
		Community string `json:"community"`
		MAC       string `json:"mac"`
		Sock      string `json:"sock"`
		DevAddr   string `json:"dev_addr"`
		LastSeen  int64  `json:"last_seen"`
	}
	var out []edgeInfo
	collect := func(c *community.Community) {
		c.Edges.Each(func(p *peer.Peer) {
			devAddr := ""
			if p.DevAddr != nil {
				devAddr = p.DevAddr.String()
			}
			out = append(out, edgeInfo{Community: c.Name, MAC: p.MAC.String(), Sock: p.Sock.String(), DevAddr: devAddr, LastSeen: p.LastSeen})
		})
	}
	if communityName == "" {
		s.rt.Communities.Each(collect)
	} else if c, ok := s.rt.Communities.Get(communityName); ok {
		collect(c)
	}
	if out == nil {
		out = []edgeInfo{}
	}
	return out
}
