// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm streams completions from language-model APIs and
// normalizes them into one event vocabulary.
//
// The primary abstraction is [Provider]. [Anthropic] speaks the
// Messages API and [OpenAI] the Chat Completions API; [Router] picks
// between them by model name. Both stream Server-Sent Events, parsed
// by [SSEScanner].
//
// Every stream is read through an [EventStream], which yields
// [StreamEvent] values of four kinds: text increments, complete tool
// calls, stop, and a terminal error. Tool arguments that arrive in
// fragments are buffered and emitted once as a single tool call after
// they parse as JSON. Transport and parse faults never escape
// [EventStream.Next] as errors; they become an error event. A stream
// that produces nothing yields [ApologyText] and stop.
package llm
