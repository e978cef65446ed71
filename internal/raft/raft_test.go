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

package raft

import (
	"fmt"
	"testing"
	"time"

	"chatraft/internal/statemachine"
	"chatraft/internal/transport"
	"chatraft/internal/wiretransform"
)

type testCluster struct {
	nodes map[string]*Node
	t     *testing.T
}

func newTestCluster(t *testing.T, basePort int, n int) *testCluster {
	t.Helper()

	ids := make([]string, n)
	addrs := make(map[string]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("n%d", i)
		ids[i] = id
		addrs[id] = fmt.Sprintf("127.0.0.1:%d", basePort+i)
	}

	cluster := &testCluster{nodes: make(map[string]*Node, n), t: t}

	for _, id := range ids {
		peers := make(map[string]string, n-1)
		for _, other := range ids {
			if other != id {
				peers[other] = addrs[other]
			}
		}

		sm := statemachine.New()
		cfg := Config{
			NodeID:             id,
			Peers:              peers,
			ElectionTimeoutMin: 100 * time.Millisecond,
			ElectionTimeoutMax: 200 * time.Millisecond,
			HeartbeatInterval:  25 * time.Millisecond,
		}
		node := New(cfg, sm, nil)

		tr, err := transport.New(addrs[id], node, wiretransform.AlgorithmNone)
		if err != nil {
			t.Fatalf("transport.New: %v", err)
		}
		node.transport = tr

		if err := tr.Listen(); err != nil {
			t.Fatalf("Listen: %v", err)
		}
		t.Cleanup(func() { tr.Stop() })

		cluster.nodes[id] = node
	}

	return cluster
}

func (c *testCluster) start() {
	for _, n := range c.nodes {
		n.Start()
	}
	c.t.Cleanup(func() {
		for _, n := range c.nodes {
			n.Stop()
		}
	})
}

func (c *testCluster) awaitLeader(timeout time.Duration) *Node {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, n := range c.nodes {
			if n.Role() == Leader {
				return n
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.t.Fatal("no leader elected within timeout")
	return nil
}

func TestElectsASingleLeader(t *testing.T) {
	cluster := newTestCluster(t, 19400, 3)
	cluster.start()

	leader := cluster.awaitLeader(2 * time.Second)
	if leader == nil {
		return
	}

	leaderCount := 0
	for _, n := range cluster.nodes {
		if n.Role() == Leader {
			leaderCount++
		}
	}
	if leaderCount != 1 {
		t.Fatalf("expected exactly 1 leader, found %d", leaderCount)
	}
}

func TestProposeReplicatesAndCommits(t *testing.T) {
	cluster := newTestCluster(t, 19410, 3)
	cluster.start()

	leader := cluster.awaitLeader(2 * time.Second)

	result := leader.Propose([]byte(`{"type":"chat","user":"alice","text":"hi","room":"general","id":"u1"}`))
	if result.Status != "ok" {
		t.Fatalf("expected ok propose result, got %+v", result)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		allCommitted := true
		for _, n := range cluster.nodes {
			if len(n.StateMachine().SnapshotMessages()) != 1 {
				allCommitted = false
			}
		}
		if allCommitted {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("entry did not replicate and commit on all nodes in time")
}

func TestProposeOnFollowerReturnsNotLeader(t *testing.T) {
	cluster := newTestCluster(t, 19420, 3)
	cluster.start()

	cluster.awaitLeader(2 * time.Second)

	for _, n := range cluster.nodes {
		if n.Role() != Leader {
			result := n.Propose([]byte("x"))
			if result.Status != "not_leader" {
				t.Fatalf("expected not_leader from a follower, got %+v", result)
			}
			return
		}
	}
}

func TestSingleNodeClusterCommitsImmediately(t *testing.T) {
	cluster := newTestCluster(t, 19430, 1)
	cluster.start()

	leader := cluster.awaitLeader(2 * time.Second)

	result := leader.Propose([]byte(`{"type":"chat","user":"alice","text":"hi","room":"general","id":"u1"}`))
	if result.Status != "ok" {
		t.Fatalf("expected ok, got %+v", result)
	}

	// Single-node cluster: the leader itself is the majority, so
	// broadcastAppendEntries (a no-op with zero peers) never drives the
	// commit index forward. A leader must still be able to recognize its
	// own log as a majority.
	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		if len(leader.StateMachine().SnapshotMessages()) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("single-node cluster did not commit its own entry")
}
