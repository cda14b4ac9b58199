// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package context keeps the agent loop's message history within the
// model's context window.
//
// The central abstraction is [Manager]. The agent loop appends every
// message (replayed transcript, the current prompt, assistant rounds,
// tool results) and calls [Manager.Messages] before each model call to
// get a history that fits. [Unbounded] returns everything;
// [Truncating] drops the oldest turn groups to stay within a token
// budget.
//
// Token estimation goes through [TokenEstimator]. [CharEstimator]
// counts characters at a calibrating ratio and charges each
// screenshot a fixed number of tokens, since image cost does not
// depend on the encoded byte length.
//
// Turn groups are the atomic unit of eviction. A turn group starts
// with a user message containing text and includes every following
// message (assistant rounds, tool results, screenshot-only user
// messages) until the next such user message. Evicting part of a
// group would orphan tool results, so groups are always evicted whole.
package context
