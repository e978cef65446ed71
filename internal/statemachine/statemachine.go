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

// Package statemachine interprets committed raftlog entries and maintains
// chat state: the set of existing rooms and a flat, index-ordered record
// of every applied entry. No separate per-room message history is kept.
package statemachine

import (
	"encoding/json"
	"sync"

	"chatraft/internal/logging"
	"chatraft/internal/raftlog"
)

// GeneralRoom is reserved and can never be deleted.
const GeneralRoom = "general"

// Command is the application payload carried verbatim through the log.
// Unknown Type values round-trip through the log unchanged and are
// applied as no-ops, to permit rolling upgrades.
type Command struct {
	Type string `json:"type"`
	User string `json:"user"`
	Text string `json:"text,omitempty"`
	Room string `json:"room,omitempty"`
	ID   string `json:"id,omitempty"`
}

// Message is a single applied log entry as returned by SnapshotMessages,
// regardless of its command type.
type Message struct {
	Index   uint64  `json:"index"`
	Command Command `json:"command"`
}

// StateMachine is written only by the apply loop; SnapshotMessages may be
// called concurrently from HTTP read handlers.
type StateMachine struct {
	mu       sync.RWMutex
	rooms    map[string]bool
	messages []Message // index-ordered, flat across rooms
	applied  uint64

	log *logging.Logger
}

// New returns a StateMachine seeded with the general room.
func New() *StateMachine {
	return &StateMachine{
		rooms: map[string]bool{GeneralRoom: true},
		log:   logging.NewLogger("statemachine"),
	}
}

// Apply interprets a single committed log entry. It is idempotent with
// respect to replay from index 1: reapplying an already-applied index is
// a no-op, matching the consensus core's own at-least-once apply loop
// contract.
func (s *StateMachine) Apply(entry raftlog.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Index <= s.applied {
		return
	}
	s.applied = entry.Index

	var cmd Command
	if err := json.Unmarshal(entry.Command, &cmd); err != nil {
		s.log.Warn("dropping malformed command", "index", entry.Index, "error", err)
		return
	}

	// Every committed entry that decodes is recorded in the flat,
	// index-ordered view regardless of type or room, independent of the
	// room-set bookkeeping below.
	s.messages = append(s.messages, Message{Index: entry.Index, Command: cmd})

	switch cmd.Type {
	case "room_add":
		s.rooms[cmd.Room] = true
	case "room_delete":
		if cmd.Room != GeneralRoom {
			delete(s.rooms, cmd.Room)
		}
	case "chat":
		// No per-room history is kept, so a chat entry has no effect
		// beyond the flat record above. A chat sent to a since-deleted or
		// never-created room is recorded there like any other.
	default:
		// Unknown command type: recorded above, otherwise a no-op for
		// forward compatibility.
	}
}

// SnapshotMessages returns a flat, deterministic, chronological view of
// every applied entry's payload, ordered by log index ascending.
func (s *StateMachine) SnapshotMessages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Rooms returns the current set of existing room names.
func (s *StateMachine) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// LastApplied returns the highest log index applied so far.
func (s *StateMachine) LastApplied() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}
