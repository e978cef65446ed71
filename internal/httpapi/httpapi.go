/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package httpapi is the thin HTTP front that makes the consensus core
externally usable: leader-aware write dispatch on POST /chat, follower
redirects that double as an "election in progress" signal, and a read of
the committed log on GET /messages. It never interprets the command
payload it forwards to the consensus core.
*/
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"chatraft/internal/logging"
	"chatraft/internal/raft"
)

// Server serves the chat HTTP front for one node.
type Server struct {
	node *raft.Node

	// httpAddrs maps every node ID (including self) to its HTTP listen
	// address, used to build the Location header in local mode.
	httpAddrs map[string]string

	// publicHost/publicScheme, when non-empty, drive the Location header
	// instead of httpAddrs - the load-balanced deployment mode.
	publicHost   string
	publicScheme string

	logger *logging.Logger
	mux    *http.ServeMux
}

// NewServer constructs a Server. httpAddrs must include an entry for
// every node ID the consensus core knows about as a possible leader,
// including self.
func NewServer(node *raft.Node, httpAddrs map[string]string, publicHost, publicScheme string) *Server {
	s := &Server{
		node:         node,
		httpAddrs:    httpAddrs,
		publicHost:   publicHost,
		publicScheme: publicScheme,
		logger:       logging.NewLogger("httpapi"),
		mux:          http.NewServeMux(),
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/messages", s.handleMessages)
	s.mux.HandleFunc("/chat", s.handleChat)
	s.mux.HandleFunc("/status", s.handleStatus)
	return s
}

// Handler returns an http.Handler that serves h2c (cleartext HTTP/2),
// falling back transparently to HTTP/1.1 for clients that don't upgrade.
func (s *Server) Handler() http.Handler {
	h2s := &http2.Server{}
	return h2c.NewHandler(s.mux, h2s)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	msgs := s.node.StateMachine().SnapshotMessages()
	payloads := make([]any, len(msgs))
	for i, m := range msgs {
		payloads[i] = m.Command
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(payloads)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	result := s.node.Propose(body)

	switch result.Status {
	case "ok":
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"index":  result.Index,
		})
	case "not_leader":
		if result.Leader == "" {
			// Election in progress: the designed signal is a redirect
			// carrying no Location header at all.
			w.WriteHeader(http.StatusFound)
			return
		}
		w.Header().Set("Location", s.leaderChatURL(result.Leader))
		w.WriteHeader(http.StatusFound)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) leaderChatURL(leaderID string) string {
	if s.publicHost != "" {
		scheme := s.publicScheme
		if scheme == "" {
			scheme = "http"
		}
		return fmt.Sprintf("%s://%s/chat", scheme, s.publicHost)
	}
	return fmt.Sprintf("http://%s/chat", s.httpAddrs[leaderID])
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.node.GetStatus())
}
