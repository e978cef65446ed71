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
Package transport provides the per-peer RPC channel the consensus core
uses to exchange RequestVote and AppendEntries messages.

Framing is a 1-byte message type, a 4-byte big-endian length, and a JSON
body — intentionally simple, since the RAFT wire contract only requires
that every message carry the sender's term and every reply carry the
responder's. The transport may drop or time out a message; it never
panics and never blocks indefinitely. Callers observe failure as a
returned error, exactly like any other fallible peer interaction.
*/
package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"chatraft/internal/errors"
	"chatraft/internal/logging"
	"chatraft/internal/wiretransform"
)

// Message types on the wire.
const (
	msgRequestVote byte = 0x01
	msgRequestVoteResp byte = 0x02
	msgAppendEntries byte = 0x03
	msgAppendEntriesResp byte = 0x04
)

const (
	dialTimeout  = 500 * time.Millisecond
	writeTimeout = 1 * time.Second
	readTimeout  = 2 * time.Second
)

// RequestVoteArgs carries the RequestVote RPC arguments.
type RequestVoteArgs struct {
	Term         uint64 `json:"term"`
	CandidateID  string `json:"candidate_id"`
	LastLogIndex uint64 `json:"last_log_index"`
	LastLogTerm  uint64 `json:"last_log_term"`
}

// RequestVoteReply carries the RequestVote RPC reply.
type RequestVoteReply struct {
	Term        uint64 `json:"term"`
	VoteGranted bool   `json:"vote_granted"`
}

// LogEntry is the wire representation of a raftlog.Entry.
type LogEntry struct {
	Index   uint64 `json:"index"`
	Term    uint64 `json:"term"`
	Command []byte `json:"command,omitempty"`
}

// AppendEntriesArgs carries the AppendEntries RPC arguments.
type AppendEntriesArgs struct {
	Term         uint64     `json:"term"`
	LeaderID     string     `json:"leader_id"`
	PrevLogIndex uint64     `json:"prev_log_index"`
	PrevLogTerm  uint64     `json:"prev_log_term"`
	Entries      []LogEntry `json:"entries"`
	LeaderCommit uint64     `json:"leader_commit"`

	// CompressedAlgo/CompressedEntries let the sender ship Entries as a
	// single compressed blob instead of the Entries field above; set only
	// when wire compression is enabled and the payload cleared the
	// minimum size threshold.
	CompressedAlgo    string `json:"compressed_algo,omitempty"`
	CompressedEntries []byte `json:"compressed_entries,omitempty"`
}

// AppendEntriesReply carries the AppendEntries RPC reply, including the
// optional conflicting-term backup hint.
type AppendEntriesReply struct {
	Term          uint64 `json:"term"`
	Success       bool   `json:"success"`
	MatchIndex    uint64 `json:"match_index"`
	ConflictIndex uint64 `json:"conflict_index,omitempty"`
	ConflictTerm  uint64 `json:"conflict_term,omitempty"`
}

// Handler is implemented by the consensus core to answer inbound RPCs.
type Handler interface {
	HandleRequestVote(args RequestVoteArgs) RequestVoteReply
	HandleAppendEntries(args AppendEntriesArgs) AppendEntriesReply
}

// Transport is a peer-to-peer RPC endpoint: it listens for inbound RPCs
// on behalf of Handler and dials outbound RPCs to named peer addresses.
type Transport struct {
	listenAddr string
	handler    Handler
	listener   net.Listener
	log        *logging.Logger

	xform *wiretransform.Transformer
}

// New returns a Transport bound to listenAddr once Listen is called.
// algo selects the optional wire compression codec for AppendEntries
// entry payloads; AlgorithmNone disables it.
func New(listenAddr string, handler Handler, algo wiretransform.Algorithm) (*Transport, error) {
	xform, err := wiretransform.New(algo)
	if err != nil {
		return nil, err
	}
	return &Transport{
		listenAddr: listenAddr,
		handler:    handler,
		log:        logging.NewLogger("transport"),
		xform:      xform,
	}, nil
}

// Listen starts accepting inbound peer connections in the background.
// Stop closes the listener; connections already being handled are not
// waited for.
func (t *Transport) Listen() error {
	ln, err := net.Listen("tcp", t.listenAddr)
	if err != nil {
		return errors.DialFailed(t.listenAddr, err)
	}
	t.listener = ln
	go t.acceptLoop()
	return nil
}

// Stop closes the listening socket and releases transformer resources.
func (t *Transport) Stop() error {
	if t.xform != nil {
		t.xform.Close()
	}
	if t.listener != nil {
		return t.listener.Close()
	}
	return nil
}

func (t *Transport) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			return
		}
		go t.handleConn(conn)
	}
}

func (t *Transport) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(readTimeout))

	msgType := make([]byte, 1)
	if _, err := readFull(conn, msgType); err != nil {
		return
	}

	body, err := readFrame(conn)
	if err != nil {
		t.log.Debug("malformed frame", "error", err)
		return
	}

	switch msgType[0] {
	case msgRequestVote:
		var args RequestVoteArgs
		if err := json.Unmarshal(body, &args); err != nil {
			return
		}
		reply := t.handler.HandleRequestVote(args)
		t.writeReply(conn, msgRequestVoteResp, reply)
	case msgAppendEntries:
		var args AppendEntriesArgs
		if err := json.Unmarshal(body, &args); err != nil {
			return
		}
		if args.CompressedAlgo != "" {
			if err := t.inflateEntries(&args); err != nil {
				t.log.Warn("failed to decompress append entries payload", "error", err)
				return
			}
		}
		reply := t.handler.HandleAppendEntries(args)
		t.writeReply(conn, msgAppendEntriesResp, reply)
	}
}

func (t *Transport) inflateEntries(args *AppendEntriesArgs) error {
	algo, err := wiretransform.ParseAlgorithm(args.CompressedAlgo)
	if err != nil {
		return err
	}
	raw, err := wiretransform.Decode(algo, args.CompressedEntries, t.xform)
	if err != nil {
		return err
	}
	var entries []LogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}
	args.Entries = entries
	args.CompressedAlgo = ""
	args.CompressedEntries = nil
	return nil
}

func (t *Transport) writeReply(conn net.Conn, msgType byte, reply any) {
	data, err := json.Marshal(reply)
	if err != nil {
		return
	}
	conn.SetDeadline(time.Now().Add(writeTimeout))
	conn.Write([]byte{msgType})
	binary.Write(conn, binary.BigEndian, uint32(len(data)))
	conn.Write(data)
}

// SendRequestVote dials addr and issues a RequestVote RPC. A nil error
// with a nil reply never happens; failures are always reported through
// the error return so callers can tell "peer said no" from "never
// heard back".
func (t *Transport) SendRequestVote(addr string, args RequestVoteArgs) (*RequestVoteReply, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, errors.DialFailed(addr, err)
	}
	defer conn.Close()

	data, err := json.Marshal(args)
	if err != nil {
		return nil, errors.MalformedFrame(err.Error())
	}

	conn.SetDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write([]byte{msgRequestVote}); err != nil {
		return nil, errors.RPCTimeout(addr)
	}
	binary.Write(conn, binary.BigEndian, uint32(len(data)))
	if _, err := conn.Write(data); err != nil {
		return nil, errors.RPCTimeout(addr)
	}

	conn.SetDeadline(time.Now().Add(readTimeout))
	respType := make([]byte, 1)
	if _, err := readFull(conn, respType); err != nil {
		return nil, errors.RPCTimeout(addr)
	}
	body, err := readFrame(conn)
	if err != nil {
		return nil, errors.MalformedFrame(err.Error())
	}

	var reply RequestVoteReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, errors.MalformedFrame(err.Error())
	}
	return &reply, nil
}

// SendAppendEntries dials addr and issues an AppendEntries RPC, routing
// the entry payload through the configured wire compression transformer
// when it clears the minimum size.
func (t *Transport) SendAppendEntries(addr string, args AppendEntriesArgs) (*AppendEntriesReply, error) {
	if t.xform != nil && len(args.Entries) > 0 {
		raw, err := json.Marshal(args.Entries)
		if err == nil {
			algo, compressed, err := t.xform.Encode(raw)
			if err == nil && algo != wiretransform.AlgorithmNone {
				args.CompressedAlgo = algo.String()
				args.CompressedEntries = compressed
				args.Entries = nil
			}
		}
	}

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, errors.DialFailed(addr, err)
	}
	defer conn.Close()

	data, err := json.Marshal(args)
	if err != nil {
		return nil, errors.MalformedFrame(err.Error())
	}

	conn.SetDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write([]byte{msgAppendEntries}); err != nil {
		return nil, errors.RPCTimeout(addr)
	}
	binary.Write(conn, binary.BigEndian, uint32(len(data)))
	if _, err := conn.Write(data); err != nil {
		return nil, errors.RPCTimeout(addr)
	}

	conn.SetDeadline(time.Now().Add(readTimeout))
	respType := make([]byte, 1)
	if _, err := readFull(conn, respType); err != nil {
		return nil, errors.RPCTimeout(addr)
	}
	body, err := readFrame(conn)
	if err != nil {
		return nil, errors.MalformedFrame(err.Error())
	}

	var reply AppendEntriesReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, errors.MalformedFrame(err.Error())
	}
	return &reply, nil
}

func readFrame(conn net.Conn) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := readFull(conn, lenBuf); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf)
	body := make([]byte, n)
	if _, err := readFull(conn, body); err != nil {
		return nil, err
	}
	return body, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, fmt.Errorf("short read: %w", err)
		}
	}
	return total, nil
}
