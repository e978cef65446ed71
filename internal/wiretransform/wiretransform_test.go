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

package wiretransform

import (
	"bytes"
	"strings"
	"testing"
)

func bigPayload() []byte {
	return bytes.Repeat([]byte("raft-append-entries-payload-"), 64)
}

func TestParseAlgorithm(t *testing.T) {
	cases := map[string]Algorithm{
		"":       AlgorithmNone,
		"none":   AlgorithmNone,
		"snappy": AlgorithmSnappy,
		"lz4":    AlgorithmLZ4,
		"zstd":   AlgorithmZstd,
	}
	for in, want := range cases {
		got, err := ParseAlgorithm(in)
		if err != nil {
			t.Fatalf("ParseAlgorithm(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseAlgorithm(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseAlgorithm("bogus"); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}

func TestRoundTripSnappy(t *testing.T) {
	tr, err := New(AlgorithmSnappy)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tr.Close()

	payload := bigPayload()
	algo, encoded, err := tr.Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if algo != AlgorithmSnappy {
		t.Fatalf("expected snappy to be used, got %v", algo)
	}

	decoded, err := Decode(algo, encoded, tr)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatal("round trip mismatch")
	}
}

func TestRoundTripLZ4(t *testing.T) {
	tr, err := New(AlgorithmLZ4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tr.Close()

	payload := bigPayload()
	algo, encoded, err := tr.Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(algo, encoded, tr)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatal("round trip mismatch")
	}
}

func TestRoundTripZstd(t *testing.T) {
	tr, err := New(AlgorithmZstd)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tr.Close()

	payload := bigPayload()
	algo, encoded, err := tr.Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(algo, encoded, tr)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatal("round trip mismatch")
	}
}

func TestSmallPayloadSkipsCompression(t *testing.T) {
	tr, err := New(AlgorithmZstd)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tr.Close()

	small := []byte("tiny")
	algo, out, err := tr.Encode(small)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if algo != AlgorithmNone {
		t.Fatalf("expected small payload to skip compression, got %v", algo)
	}
	if !bytes.Equal(out, small) {
		t.Fatal("expected small payload to pass through unchanged")
	}
}

func TestNoneAlgorithmNeverCompresses(t *testing.T) {
	tr, err := New(AlgorithmNone)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer tr.Close()

	payload := bigPayload()
	algo, out, err := tr.Encode(payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if algo != AlgorithmNone || !bytes.Equal(out, payload) {
		t.Fatal("expected AlgorithmNone to never compress")
	}
}

func TestAlgorithmString(t *testing.T) {
	if AlgorithmSnappy.String() != "snappy" {
		t.Fatal("unexpected String() for snappy")
	}
	if !strings.Contains(Algorithm(99).String(), "unknown") {
		t.Fatal("expected unknown algorithms to stringify as unknown")
	}
}
