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
Package raft implements the consensus core: the follower/candidate/leader
role state machine, leader election with randomized timeouts, log
replication with the conflicting-term backup optimization, and commit
index advancement restricted to entries from the leader's own term.

There is no pre-vote phase and no dynamic membership: the peer set is
fixed for the lifetime of a Node, supplied at construction. There is no
snapshotting or durable storage; a Node's persistent-style fields
(currentTerm, votedFor, the log) live in memory only and are lost on
restart, matching the in-memory scope of this system.
*/
package raft

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"chatraft/internal/logging"
	"chatraft/internal/raftlog"
	"chatraft/internal/statemachine"
	"chatraft/internal/transport"
)

// Role is the node's current position in the RAFT role state machine.
type Role int32

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// Config configures a Node.
type Config struct {
	NodeID string
	// Peers maps every other node's ID to its RAFT transport address.
	// Self is never included here even if present in the supplied peer
	// list upstream; the caller is responsible for filtering self out.
	Peers map[string]string

	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
}

// ProposeResult mirrors handleClientCommand's two possible shapes.
type ProposeResult struct {
	Status string // "ok" or "not_leader"
	Index  uint64 // valid when Status == "ok"
	Leader string // valid when Status == "not_leader"; "" if unknown
}

// Node runs the consensus core for one cluster member.
type Node struct {
	cfg Config

	mu          sync.Mutex
	currentTerm uint64
	votedFor    string
	log         *raftlog.Log
	commitIndex uint64
	lastApplied uint64
	nextIndex   map[string]uint64
	matchIndex  map[string]uint64
	leaderID    string

	role int32 // atomic Role

	sm        *statemachine.StateMachine
	transport *transport.Transport
	logger    *logging.Logger

	peerIDs []string // stable iteration order

	stopCh  chan struct{}
	resetCh chan struct{}
	wg      sync.WaitGroup

	rng   *rand.Rand
	rngMu sync.Mutex
}

// New constructs a Node. t may be nil: callers typically do
// n := raft.New(cfg, sm, nil); t, _ := transport.New(addr, n, algo);
// n.SetTransport(t).
func New(cfg Config, sm *statemachine.StateMachine, t *transport.Transport) *Node {
	ids := make([]string, 0, len(cfg.Peers))
	for id := range cfg.Peers {
		ids = append(ids, id)
	}

	n := &Node{
		cfg:        cfg,
		log:        raftlog.New(),
		nextIndex:  make(map[string]uint64),
		matchIndex: make(map[string]uint64),
		sm:         sm,
		transport:  t,
		logger:     logging.NewLogger("raft").With("node", cfg.NodeID),
		peerIDs:    ids,
		stopCh:     make(chan struct{}),
		resetCh:    make(chan struct{}, 1),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano() + int64(len(cfg.NodeID)))),
	}
	atomic.StoreInt32(&n.role, int32(Follower))
	return n
}

// Start launches the election timer and apply loop.
func (n *Node) Start() {
	n.wg.Add(2)
	go n.electionTimerLoop()
	go n.applyLoop()
}

// Stop halts all background goroutines.
func (n *Node) Stop() {
	close(n.stopCh)
	n.wg.Wait()
}

// Role returns the node's current role.
func (n *Node) Role() Role {
	return Role(atomic.LoadInt32(&n.role))
}

// Term returns the node's current term.
func (n *Node) Term() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentTerm
}

// Leader returns the last known leader ID for the current term, and
// whether one is known.
func (n *Node) Leader() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leaderID, n.leaderID != ""
}

// StateMachine exposes the underlying state machine for read paths.
func (n *Node) StateMachine() *statemachine.StateMachine {
	return n.sm
}

// SetTransport wires the Node to its RPC transport once both have been
// constructed. Breaks the construction cycle between Node (which must
// exist before transport.New can take it as a Handler) and Transport
// (which Node needs to send outbound RPCs).
func (n *Node) SetTransport(t *transport.Transport) {
	n.transport = t
}

func (n *Node) resetElectionTimer() {
	select {
	case n.resetCh <- struct{}{}:
	default:
	}
}

func (n *Node) randomElectionTimeout() time.Duration {
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	lo, hi := n.cfg.ElectionTimeoutMin, n.cfg.ElectionTimeoutMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(n.rng.Int63n(int64(hi-lo)))
}

func (n *Node) electionTimerLoop() {
	defer n.wg.Done()

	for {
		timeout := n.randomElectionTimeout()
		select {
		case <-n.stopCh:
			return
		case <-n.resetCh:
			continue
		case <-time.After(timeout):
			if n.Role() != Leader {
				n.startElection()
			}
		}
	}
}

// startElection transitions to candidate, votes for self, and fans out
// RequestVote RPCs to every peer in parallel.
func (n *Node) startElection() {
	n.mu.Lock()
	atomic.StoreInt32(&n.role, int32(Candidate))
	n.currentTerm++
	term := n.currentTerm
	n.votedFor = n.cfg.NodeID
	n.leaderID = ""
	lastLogIndex := n.log.LastIndex()
	lastLogTerm := n.log.LastTerm()
	n.mu.Unlock()

	n.resetElectionTimer()
	n.logger.Info("starting election", "term", term)

	votesNeeded := (len(n.cfg.Peers)+1)/2 + 1
	var mu sync.Mutex
	votes := 1 // self

	if votes >= votesNeeded {
		// A cluster with no peers is won on the self vote alone.
		n.mu.Lock()
		if n.Role() == Candidate && n.currentTerm == term {
			n.becomeLeaderLocked()
		}
		n.mu.Unlock()
		return
	}

	g, _ := errgroup.WithContext(context.Background())
	for _, peerID := range n.peerIDs {
		peerID, addr := peerID, n.cfg.Peers[peerID]
		g.Go(func() error {
			reply, err := n.transport.SendRequestVote(addr, transport.RequestVoteArgs{
				Term:         term,
				CandidateID:  n.cfg.NodeID,
				LastLogIndex: lastLogIndex,
				LastLogTerm:  lastLogTerm,
			})
			if err != nil {
				n.logger.Debug("request vote failed", "peer", peerID, "error", err)
				return nil
			}

			n.mu.Lock()
			defer n.mu.Unlock()

			if reply.Term > n.currentTerm {
				n.becomeFollowerLocked(reply.Term, "")
				return nil
			}
			if reply.VoteGranted && n.Role() == Candidate && n.currentTerm == term {
				mu.Lock()
				votes++
				won := votes >= votesNeeded
				mu.Unlock()
				if won && n.Role() == Candidate {
					n.becomeLeaderLocked()
				}
			}
			return nil
		})
	}
	g.Wait()
}

// becomeFollowerLocked must be called with n.mu held.
func (n *Node) becomeFollowerLocked(term uint64, leaderID string) {
	atomic.StoreInt32(&n.role, int32(Follower))
	n.currentTerm = term
	n.votedFor = ""
	n.leaderID = leaderID
}

// becomeLeaderLocked must be called with n.mu held.
func (n *Node) becomeLeaderLocked() {
	atomic.StoreInt32(&n.role, int32(Leader))
	n.leaderID = n.cfg.NodeID

	lastLogIndex := n.log.LastIndex()
	for _, peerID := range n.peerIDs {
		n.nextIndex[peerID] = lastLogIndex + 1
		n.matchIndex[peerID] = 0
	}

	n.logger.Info("became leader", "term", n.currentTerm)
	go n.heartbeatLoop(n.currentTerm)
}

func (n *Node) heartbeatLoop(term uint64) {
	n.broadcastAppendEntries()

	ticker := time.NewTicker(n.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			if n.Role() != Leader || n.Term() != term {
				return
			}
			n.broadcastAppendEntries()
		}
	}
}

func (n *Node) broadcastAppendEntries() {
	g, _ := errgroup.WithContext(context.Background())
	for _, peerID := range n.peerIDs {
		peerID := peerID
		g.Go(func() error {
			n.sendAppendEntriesToPeer(peerID)
			return nil
		})
	}
	g.Wait()
}

func (n *Node) sendAppendEntriesToPeer(peerID string) {
	n.mu.Lock()
	if n.Role() != Leader {
		n.mu.Unlock()
		return
	}
	addr := n.cfg.Peers[peerID]
	nextIdx := n.nextIndex[peerID]
	if nextIdx == 0 {
		nextIdx = 1
	}
	prevLogIndex := nextIdx - 1
	prevLogTerm := n.log.TermAt(prevLogIndex)
	entries := n.log.Range(nextIdx)
	wireEntries := make([]transport.LogEntry, len(entries))
	for i, e := range entries {
		wireEntries[i] = transport.LogEntry{Index: e.Index, Term: e.Term, Command: e.Command}
	}
	args := transport.AppendEntriesArgs{
		Term:         n.currentTerm,
		LeaderID:     n.cfg.NodeID,
		PrevLogIndex: prevLogIndex,
		PrevLogTerm:  prevLogTerm,
		Entries:      wireEntries,
		LeaderCommit: n.commitIndex,
	}
	term := n.currentTerm
	n.mu.Unlock()

	reply, err := n.transport.SendAppendEntries(addr, args)
	if err != nil {
		n.logger.Debug("append entries failed", "peer", peerID, "error", err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.currentTerm != term || n.Role() != Leader {
		return // stale response from a round we're no longer leading
	}

	if reply.Term > n.currentTerm {
		n.becomeFollowerLocked(reply.Term, "")
		return
	}

	if reply.Success {
		n.nextIndex[peerID] = nextIdx + uint64(len(entries))
		n.matchIndex[peerID] = n.nextIndex[peerID] - 1
		n.updateCommitIndexLocked()
		return
	}

	// Back up nextIndex using the conflicting-term hint when the leader's
	// own log contains that term, otherwise fall back to conflictIndex.
	if reply.ConflictTerm != 0 {
		lastIdxOfTerm := uint64(0)
		for i := prevLogIndex; i > 0; i-- {
			if n.log.TermAt(i) == reply.ConflictTerm {
				lastIdxOfTerm = i
				break
			}
		}
		if lastIdxOfTerm > 0 {
			n.nextIndex[peerID] = lastIdxOfTerm + 1
		} else if reply.ConflictIndex > 0 {
			n.nextIndex[peerID] = reply.ConflictIndex
		}
	} else if reply.ConflictIndex > 0 {
		n.nextIndex[peerID] = reply.ConflictIndex
	} else if n.nextIndex[peerID] > 1 {
		n.nextIndex[peerID]--
	}
}

// updateCommitIndexLocked must be called with n.mu held. It implements
// the own-term restriction: an index is only committed via majority
// match once the entry at that index was appended in the current term.
func (n *Node) updateCommitIndexLocked() {
	matches := make([]uint64, 0, len(n.cfg.Peers)+1)
	matches = append(matches, n.log.LastIndex())
	for _, idx := range n.matchIndex {
		matches = append(matches, idx)
	}
	for i := 0; i < len(matches)-1; i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[i] > matches[j] {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}
	majorityIdx := matches[(len(matches)-1)/2]
	if majorityIdx > n.commitIndex && n.log.TermAt(majorityIdx) == n.currentTerm {
		n.commitIndex = majorityIdx
	}
}

func (n *Node) applyLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.mu.Lock()
			for n.lastApplied < n.commitIndex {
				n.lastApplied++
				entry, ok := n.log.Get(n.lastApplied)
				n.mu.Unlock()
				if ok && entry.Command != nil {
					n.sm.Apply(entry)
				}
				n.mu.Lock()
			}
			n.mu.Unlock()
		}
	}
}

// Propose appends command to the log if this node is the leader. It does
// not wait for the entry to commit; callers observe commitment through
// subsequent reads.
func (n *Node) Propose(command []byte) ProposeResult {
	n.mu.Lock()
	if n.Role() != Leader {
		leader := n.leaderID
		n.mu.Unlock()
		return ProposeResult{Status: "not_leader", Leader: leader}
	}

	entry := raftlog.Entry{
		Index:   n.log.LastIndex() + 1,
		Term:    n.currentTerm,
		Command: command,
	}
	n.log.Append(entry)
	// A single-node cluster (or a leader whose peers have already matched
	// up through this index) is its own majority; advancing here covers
	// that case instead of waiting on a broadcastAppendEntries round that
	// may never fire with zero peers.
	n.updateCommitIndexLocked()
	n.mu.Unlock()

	go n.broadcastAppendEntries()

	return ProposeResult{Status: "ok", Index: entry.Index}
}

// HandleRequestVote implements transport.Handler.
func (n *Node) HandleRequestVote(args transport.RequestVoteArgs) transport.RequestVoteReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	if args.Term > n.currentTerm {
		n.becomeFollowerLocked(args.Term, "")
	}

	reply := transport.RequestVoteReply{Term: n.currentTerm, VoteGranted: false}
	if args.Term < n.currentTerm {
		return reply
	}

	lastLogIndex := n.log.LastIndex()
	lastLogTerm := n.log.LastTerm()
	logOK := args.LastLogTerm > lastLogTerm ||
		(args.LastLogTerm == lastLogTerm && args.LastLogIndex >= lastLogIndex)

	if (n.votedFor == "" || n.votedFor == args.CandidateID) && logOK {
		n.votedFor = args.CandidateID
		reply.VoteGranted = true
		n.resetElectionTimer()
	}
	reply.Term = n.currentTerm
	return reply
}

// HandleAppendEntries implements transport.Handler.
func (n *Node) HandleAppendEntries(args transport.AppendEntriesArgs) transport.AppendEntriesReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	reply := transport.AppendEntriesReply{Term: n.currentTerm, Success: false}
	if args.Term < n.currentTerm {
		return reply
	}

	if args.Term > n.currentTerm {
		n.becomeFollowerLocked(args.Term, args.LeaderID)
	} else if n.Role() != Follower {
		n.becomeFollowerLocked(args.Term, args.LeaderID)
	}
	n.leaderID = args.LeaderID
	n.resetElectionTimer()

	if args.PrevLogIndex > 0 {
		if args.PrevLogIndex > n.log.LastIndex() {
			reply.ConflictIndex = n.log.LastIndex() + 1
			reply.Term = n.currentTerm
			return reply
		}
		if n.log.TermAt(args.PrevLogIndex) != args.PrevLogTerm {
			conflictTerm := n.log.TermAt(args.PrevLogIndex)
			reply.ConflictTerm = conflictTerm
			reply.ConflictIndex = n.log.FindConflictIndex(args.PrevLogIndex, conflictTerm)
			reply.Term = n.currentTerm
			return reply
		}
	}

	for i, e := range args.Entries {
		idx := args.PrevLogIndex + 1 + uint64(i)
		n.log.AppendAt(raftlog.Entry{Index: idx, Term: e.Term, Command: e.Command})
	}

	if args.LeaderCommit > n.commitIndex {
		lastNewIndex := args.PrevLogIndex + uint64(len(args.Entries))
		if args.LeaderCommit < lastNewIndex {
			n.commitIndex = args.LeaderCommit
		} else {
			n.commitIndex = lastNewIndex
		}
	}

	reply.Success = true
	reply.Term = n.currentTerm
	reply.MatchIndex = args.PrevLogIndex + uint64(len(args.Entries))
	return reply
}

// Status is a snapshot of node state for diagnostics endpoints.
type Status struct {
	NodeID      string `json:"node_id"`
	Role        string `json:"role"`
	Term        uint64 `json:"term"`
	LeaderID    string `json:"leader_id"`
	CommitIndex uint64 `json:"commit_index"`
	LastApplied uint64 `json:"last_applied"`
	LogLength   uint64 `json:"log_length"`
}

// GetStatus returns a point-in-time snapshot for the admin/diagnostics
// surface.
func (n *Node) GetStatus() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Status{
		NodeID:      n.cfg.NodeID,
		Role:        n.Role().String(),
		Term:        n.currentTerm,
		LeaderID:    n.leaderID,
		CommitIndex: n.commitIndex,
		LastApplied: n.lastApplied,
		LogLength:   uint64(n.log.Len()),
	}
}
