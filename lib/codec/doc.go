// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR configuration for values deskpilot
// stores as blobs: the screenshot descriptor and tool calls attached
// to chat turns.
//
// JSON is used at the edges (tool arguments, CLI output, task files);
// CBOR for what is written to the chat database. The encoder uses Core
// Deterministic Encoding, so the same logical value always produces
// identical bytes.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
// fxamacker/cbor reads `json` tags when `cbor` tags are absent. Types
// that appear both in JSON output and in stored blobs carry only
// `json` tags; types that are only ever stored carry `cbor` tags.
// Never use both on one field.
package codec
