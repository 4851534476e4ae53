/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2021 WireGuard LLC. All Rights Reserved.
 */

package mgmt

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Logan007/n3n/internal/community"
)

// rpcRequest is a JSON-RPC 2.0 request object.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// methodNames is the closed set of JSON-RPC methods; anything else is a 404.
var methodNames = []string{
	"get_info", "get_communities", "get_edges", "get_supernodes",
	"get_packetstats", "get_timestamps", "get_verbose", "set_verbose",
	"reload_communities", "stop", "post.test", "help", "help.events",
}

func isKnownMethod(m string) bool {
	for _, n := range methodNames {
		if n == m {
			return true
		}
	}
	return false
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, 400, "malformed request body")
		return
	}

	if !isKnownMethod(req.Method) {
		writeRPCError(w, req.ID, 404, "unknown method")
		return
	}

	if mutatingMethods[req.Method] {
		if err := checkAuth(r, s.managementSecret); err != nil {
			writeRPCError(w, req.ID, 401, err.Error())
			return
		}
	}

	result, rpcErr := s.dispatch(req.Method, req.Params)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr.Code, rpcErr.Message)
		return
	}

	writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, msg string) {
	status := code
	if status < 100 || status > 599 {
		status = http.StatusOK
	}
	writeJSON(w, status, rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) dispatch(method string, params json.RawMessage) (interface{}, *rpcError) {
	switch method {
	case "get_info":
		return s.rpcGetInfo(), nil
	case "get_communities":
		return s.rpcGetCommunities(), nil
	case "get_edges":
		return s.rpcGetEdges(params)
	case "get_supernodes":
		return s.rpcGetSupernodes(), nil
	case "get_packetstats":
		return s.rt.Stats.Snapshot(), nil
	case "get_timestamps":
		return s.rpcGetTimestamps(), nil
	case "get_verbose":
		return map[string]int{"level": int(s.rt.Logger.Level())}, nil
	case "set_verbose":
		return s.rpcSetVerbose(params)
	case "reload_communities":
		return s.rpcReloadCommunities()
	case "stop":
		s.rt.Stop()
		return map[string]bool{"stopping": true}, nil
	case "post.test":
		s.rt.Events.Emit("test", map[string]string{"message": "test event"})
		return map[string]bool{"ok": true}, nil
	case "help":
		return methodNames, nil
	case "help.events":
		return []string{"debug", "test", "peer"}, nil
	default:
		return nil, &rpcError{Code: 404, Message: "unknown method"}
	}
}

func (s *Server) rpcGetInfo() interface{} {
	return map[string]interface{}{
		"version": s.version,
	}
}

func (s *Server) rpcGetCommunities() interface{} {
	type communityInfo struct {
		Community string `json:"community"`
		IP4Addr   string `json:"ip4addr"`
		Edges     int    `json:"edges"`
		Purgeable bool   `json:"purgeable"`
	}
	var out []communityInfo
	s.rt.Communities.Each(func(c *community.Community) {
		out = append(out, communityInfo{
			Community: c.Name,
			IP4Addr:   fmt.Sprintf("%s/%d", c.AutoIPNet.Start, c.AutoIPNet.Prefix),
			Edges:     c.Edges.Len(),
			Purgeable: c.Purgeable,
		})
	})
	if out == nil {
		out = []communityInfo{}
	}
	return out
}

func (s *Server) rpcGetEdges(params json.RawMessage) (interface{}, *rpcError) {
	var p struct {
		Community string `json:"community"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &rpcError{Code: 400, Message: "bad params"}
		}
	}
	return s.edgesOf(p.Community), nil
}
