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
chatraftd - chatraft node daemon

Runs one node of a chat cluster: a RAFT consensus core, its TCP peer
transport and an HTTP front for clients. Configuration is loaded from an
optional file and then overridden by environment variables.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"chatraft/internal/config"
	"chatraft/internal/httpapi"
	"chatraft/internal/logging"
	"chatraft/internal/raft"
	"chatraft/internal/statemachine"
	"chatraft/internal/transport"
	"chatraft/internal/wiretransform"
)

const version = "1.0.0"

func main() {
	configFile := flag.String("config", "", "Path to a chatraftd config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("chatraftd v%s\n", version)
		return
	}

	mgr := config.Global()
	if *configFile != "" {
		if err := mgr.LoadFromFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "chatraftd: loading config: %v\n", err)
			os.Exit(1)
		}
	}
	mgr.LoadFromEnv()
	cfg := mgr.Get()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "chatraftd: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.SetJSONMode(cfg.LogJSON)
	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	log := logging.NewLogger("chatraftd").With("node", cfg.NodeID)

	log.Info("starting", "http_port", cfg.HTTPPort, "raft_port", cfg.RaftPort, "peers", strings.Join(cfg.Peers, ","))

	peerAddrs, httpAddrs, err := resolvePeers(cfg)
	if err != nil {
		log.Error("failed to resolve peers", "error", err.Error())
		os.Exit(1)
	}

	algo, err := wiretransform.ParseAlgorithm(cfg.WireCompression)
	if err != nil {
		log.Error("invalid wire compression", "error", err.Error())
		os.Exit(1)
	}

	sm := statemachine.New()

	node := raft.New(raft.Config{
		NodeID:             cfg.NodeID,
		Peers:              peerAddrs,
		ElectionTimeoutMin: time.Duration(cfg.ElectionTimeoutMinMs) * time.Millisecond,
		ElectionTimeoutMax: time.Duration(cfg.ElectionTimeoutMaxMs) * time.Millisecond,
		HeartbeatInterval:  time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond,
	}, sm, nil)

	raftAddr := fmt.Sprintf("0.0.0.0:%d", cfg.RaftPort)
	tr, err := transport.New(raftAddr, node, algo)
	if err != nil {
		log.Error("failed to construct transport", "error", err.Error())
		os.Exit(1)
	}
	node.SetTransport(tr)

	if err := tr.Listen(); err != nil {
		log.Error("failed to listen on raft port", "addr", raftAddr, "error", err.Error())
		os.Exit(1)
	}

	node.Start()

	srv := httpapi.NewServer(node, httpAddrs, cfg.PublicHost, cfg.PublicScheme)
	httpAddr := fmt.Sprintf("0.0.0.0:%d", cfg.HTTPPort)
	httpServer := &http.Server{
		Addr:    httpAddr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Info("http listening", "addr", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err.Error())
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown error", "error", err.Error())
	}

	node.Stop()
	if err := tr.Stop(); err != nil {
		log.Warn("transport shutdown error", "error", err.Error())
	}

	log.Info("stopped")
}

// resolvePeers turns cfg.Peers ("id@raftHost:raftPort" entries) into the
// raft-transport peer map Node needs and the full http-address map
// (including self) that httpapi uses to build Location headers in local
// mode.
func resolvePeers(cfg *config.Config) (map[string]string, map[string]string, error) {
	peerAddrs := make(map[string]string)
	httpAddrs := map[string]string{
		cfg.NodeID: fmt.Sprintf("127.0.0.1:%d", cfg.HTTPPort),
	}

	for _, p := range cfg.Peers {
		id, raftAddr, httpAddr, err := parsePeerSpec(p)
		if err != nil {
			return nil, nil, err
		}
		if id == cfg.NodeID {
			continue
		}
		peerAddrs[id] = raftAddr
		if httpAddr != "" {
			httpAddrs[id] = httpAddr
		}
	}
	return peerAddrs, httpAddrs, nil
}

// parsePeerSpec parses "id@raftHost:raftPort:httpPort" (http port
// optional, defaults to raft port - 1 if omitted, matching the common
// local dev layout of consecutive ports).
func parsePeerSpec(spec string) (id, raftAddr, httpAddr string, err error) {
	atIdx := strings.Index(spec, "@")
	if atIdx < 0 {
		return "", "", "", fmt.Errorf("invalid peer spec %q: expected id@host:raftPort[:httpPort]", spec)
	}
	id = spec[:atIdx]
	rest := spec[atIdx+1:]

	parts := strings.Split(rest, ":")
	if len(parts) < 2 {
		return "", "", "", fmt.Errorf("invalid peer spec %q: missing raft port", spec)
	}
	host := parts[0]
	raftPort, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", "", "", fmt.Errorf("invalid peer spec %q: bad raft port: %w", spec, err)
	}
	raftAddr = net.JoinHostPort(host, strconv.Itoa(raftPort))

	if len(parts) >= 3 {
		httpAddr = net.JoinHostPort(host, parts[2])
	} else {
		httpAddr = net.JoinHostPort(host, strconv.Itoa(raftPort-1))
	}
	return id, raftAddr, httpAddr, nil
}
