// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// maxStoredCalls bounds the tool call arrays a stored turn may decode
// into. A turn carries at most a handful of calls; anything larger is
// a corrupt row.
const maxStoredCalls = 1024

var (
	// storeEncoder writes Core Deterministic Encoding (RFC 8949
	// §4.2). Times are RFC 3339 text with nanoseconds so a turn's
	// screenshot timestamp reads back exactly.
	storeEncoder cbor.EncMode

	// storeDecoder ignores unknown fields so rows written by a newer
	// build still load.
	storeDecoder cbor.DecMode
)

func init() {
	encoding := cbor.CoreDetEncOptions()
	encoding.Time = cbor.TimeRFC3339Nano
	encoder, err := encoding.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building encoder: %v", err))
	}

	decoder, err := cbor.DecOptions{
		DefaultMapType:   reflect.TypeOf(map[string]any(nil)),
		MaxArrayElements: maxStoredCalls,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building decoder: %v", err))
	}

	storeEncoder, storeDecoder = encoder, decoder
}

// Marshal encodes value for storage.
func Marshal(value any) ([]byte, error) {
	return storeEncoder.Marshal(value)
}

// Unmarshal decodes a stored blob into target.
func Unmarshal(data []byte, target any) error {
	if len(data) == 0 {
		return fmt.Errorf("codec: empty blob")
	}
	return storeDecoder.Unmarshal(data, target)
}

// Diagnose renders a stored blob in CBOR diagnostic notation (RFC 8949
// §8) for debug logs.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
