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

package errors

import (
	"strings"
	"testing"
)

func TestChatRaftErrorBasic(t *testing.T) {
	err := NewRaftError("term regressed")

	if err.Code != ErrCodeRaft {
		t.Errorf("Expected code %d, got %d", ErrCodeRaft, err.Code)
	}
	if err.Category != CategoryRaft {
		t.Errorf("Expected category %s, got %s", CategoryRaft, err.Category)
	}
	if !strings.Contains(err.Error(), "term regressed") {
		t.Errorf("Expected error message to contain 'term regressed', got: %s", err.Error())
	}
}

func TestChatRaftErrorWithDetail(t *testing.T) {
	err := NotLeader("n2")

	if !strings.Contains(err.Detail, "n2") {
		t.Errorf("Expected detail to mention leader id, got: %s", err.Detail)
	}
	if !strings.Contains(err.Error(), "n2") {
		t.Errorf("Expected error to contain detail, got: %s", err.Error())
	}
}

func TestChatRaftErrorWithHint(t *testing.T) {
	err := LogConflict(5)

	userMsg := err.UserMessage()
	if !strings.Contains(userMsg, "HINT:") {
		t.Errorf("Expected user message to contain HINT, got: %s", userMsg)
	}
	if !strings.Contains(userMsg, "back up nextIndex") {
		t.Errorf("Expected hint in user message, got: %s", userMsg)
	}
}

func TestIsRaftError(t *testing.T) {
	if !IsRaftError(NewRaftError("x")) {
		t.Error("expected IsRaftError to be true for a raft error")
	}
	if IsRaftError(NewTransportError("x")) {
		t.Error("expected IsRaftError to be false for a transport error")
	}
}

func TestIsTransportError(t *testing.T) {
	if !IsTransportError(DialFailed("127.0.0.1:1", nil)) {
		t.Error("expected IsTransportError to be true for a dial failure")
	}
}

func TestCode(t *testing.T) {
	if Code(NotLeader("")) != ErrCodeNotLeader {
		t.Errorf("expected code %d, got %d", ErrCodeNotLeader, Code(NotLeader("")))
	}
	if Code(nil) != 0 {
		t.Error("expected 0 for nil error")
	}
}

func TestFormat(t *testing.T) {
	out := Format(NotLeader("n1"))
	if !strings.Contains(out, "ERROR:") {
		t.Errorf("expected formatted message to start with ERROR:, got: %s", out)
	}
}

func TestUnwrap(t *testing.T) {
	cause := NewTransportError("dial refused")
	err := DialFailed("127.0.0.1:9001", cause)
	if err.Unwrap() != cause {
		t.Error("expected Unwrap to return the attached cause")
	}
}
