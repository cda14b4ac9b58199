// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatstore persists the turns of agent conversations.
//
// A conversation is an append-only sequence of [Turn] values keyed by
// a caller-chosen conversation key. The agent loop writes the user's
// prompt (with the screenshot it was issued against) and each
// non-empty assistant round, and reads the most recent turns back to
// build model context.
//
// [SQLite] is the durable implementation on lib/sqlitepool, with the
// screenshot and tool-call columns stored as CBOR. [Memory] keeps
// turns in process for tests and ephemeral runs.
package chatstore
