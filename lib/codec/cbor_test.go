// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// storedCall uses cbor tags, the convention for stored-only types.
type storedCall struct {
	Name       string `cbor:"name"`
	Descriptor string `cbor:"descriptor,omitempty"`
	Input      []byte `cbor:"input"`
}

// sharedDescriptor uses json tags, read by the CBOR encoder as a
// fallback.
type sharedDescriptor struct {
	URL       string    `json:"url"`
	Width     int       `json:"width"`
	Timestamp time.Time `json:"timestamp"`
	Data      []byte    `json:"-"`
}

func TestRoundTripPreservesBytesAndTime(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 1, 1, 0, 0, 1, 234567891, time.UTC)
	original := sharedDescriptor{URL: "/api/screenshots/desk_1.jpg", Width: 1280, Timestamp: at, Data: []byte{1}}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sharedDescriptor
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.URL != original.URL || decoded.Width != original.Width {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}
	if !decoded.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", decoded.Timestamp, at)
	}
	if decoded.Data != nil {
		t.Errorf("json:\"-\" field was encoded: %v", decoded.Data)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	t.Parallel()
	value := map[string]any{"b": 1, "a": "x", "c": []any{true, nil}}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding is not deterministic: %x != %x", first, again)
		}
	}
}

func TestByteStringsAndOmitempty(t *testing.T) {
	t.Parallel()
	call := storedCall{Name: "computer", Input: []byte(`{"action":"screenshot"}`)}
	data, err := Marshal(call)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if strings.Contains(notation, "descriptor") {
		t.Errorf("empty omitempty field encoded: %s", notation)
	}
	if !strings.Contains(notation, "h'") {
		t.Errorf("input is not a byte string: %s", notation)
	}

	var decoded storedCall
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !bytes.Equal(decoded.Input, call.Input) {
		t.Errorf("input = %q, want %q", decoded.Input, call.Input)
	}
}

func TestDecodeIntoAnyUsesStringKeys(t *testing.T) {
	t.Parallel()
	data, err := Marshal(map[string]any{"nested": map[string]any{"k": "v"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if _, ok := outer["nested"].(map[string]any); !ok {
		t.Errorf("nested type = %T, want map[string]any", outer["nested"])
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	t.Parallel()
	var call storedCall
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &call); err == nil {
		t.Error("Unmarshal accepted invalid CBOR")
	}
}

func TestUnmarshalRejectsEmptyAndOversizedBlobs(t *testing.T) {
	t.Parallel()
	var calls []storedCall
	if err := Unmarshal(nil, &calls); err == nil {
		t.Error("Unmarshal(nil) succeeded")
	}

	data, err := Marshal(make([]int, maxStoredCalls+1))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var numbers []int
	if err := Unmarshal(data, &numbers); err == nil {
		t.Errorf("decoded %d elements, want a limit error", len(numbers))
	}
}
