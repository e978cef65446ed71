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

// Package raftlog implements the replicated log that backs the consensus
// core: an ordered sequence of Entry values indexed from 1, grown by
// appends and cut back only by conflict truncation,
// with a synthetic sentinel at index 0 so prevLogIndex/prevLogTerm
// lookups never need a special case for an empty log.
package raftlog

import "sync"

// Entry is a single slot in the replicated log.
type Entry struct {
	Index   uint64 `json:"index"`
	Term    uint64 `json:"term"`
	Command []byte `json:"command,omitempty"`
}

// Log is a mutex-guarded, in-memory replicated log. It is not durable:
// a restarted node starts from an empty log, matching the "no snapshotting
// or log persistence" scope of this package.
type Log struct {
	mu      sync.RWMutex
	entries []Entry // entries[0] is the sentinel at index 0
}

// New returns an empty Log containing only the index-0 sentinel.
func New() *Log {
	return &Log{entries: []Entry{{Index: 0, Term: 0}}}
}

// Append adds entry to the end of the log. Callers are responsible for
// ensuring entry.Index == LastIndex()+1.
func (l *Log) Append(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// AppendAt overwrites (or extends) the log starting at entry.Index,
// implementing the "delete conflicting entry and all that follow" rule
// used while accepting a leader's AppendEntries payload.
func (l *Log) AppendAt(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := entry.Index
	switch {
	case idx < uint64(len(l.entries)):
		if l.entries[idx].Term != entry.Term {
			l.entries = l.entries[:idx]
			l.entries = append(l.entries, entry)
		}
	case idx == uint64(len(l.entries)):
		l.entries = append(l.entries, entry)
	default:
		// A gap would violate the log-matching property; callers must
		// never present entries out of order.
		panic("raftlog: AppendAt called with a non-contiguous index")
	}
}

// TruncateFrom deletes entry at index and everything after it.
func (l *Log) TruncateFrom(index uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < uint64(len(l.entries)) {
		l.entries = l.entries[:index]
	}
}

// Get returns the entry at index and whether it exists.
func (l *Log) Get(index uint64) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index >= uint64(len(l.entries)) {
		return Entry{}, false
	}
	return l.entries[index], true
}

// TermAt returns the term stored at index, or 0 if index is out of range.
func (l *Log) TermAt(index uint64) uint64 {
	e, ok := l.Get(index)
	if !ok {
		return 0
	}
	return e.Term
}

// Range returns a copy of entries[from:], from >= 1. Safe to mutate by
// the caller since it is a fresh slice.
func (l *Log) Range(from uint64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if from >= uint64(len(l.entries)) {
		return nil
	}
	out := make([]Entry, len(l.entries)-int(from))
	copy(out, l.entries[from:])
	return out
}

// LastIndex returns the index of the last entry in the log.
func (l *Log) LastIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.entries) - 1)
}

// LastTerm returns the term of the last entry in the log.
func (l *Log) LastTerm() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Term
}

// Len returns the number of entries including the sentinel.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// FindConflictIndex walks back from index before (whose entry carries
// conflictTerm) and returns the lowest index of the contiguous run of
// conflictTerm entries ending there, or 1 if that run reaches the start
// of the log. This implements the leader's "back up past the whole
// conflicting term in one round trip" optimization.
func (l *Log) FindConflictIndex(before uint64, conflictTerm uint64) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := before; i > 0; i-- {
		if l.entries[i-1].Term != conflictTerm {
			return i
		}
	}
	return 1
}
