// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package conversation runs agent turns against a remote desktop.
//
// An [Orchestrator] takes one user prompt for one target and drives
// rounds of model calls until the model stops, the action budget runs
// out, or the retry budget is exhausted. Each round streams the
// model's text to the caller's writer as it arrives; a call of the
// computer tool is validated, executed on the target through the
// [Desktop], and answered on the next round with a fresh screenshot.
//
// The user prompt and every non-empty assistant round are written to
// a [chatstore.Store]. Earlier turns of the same conversation are
// replayed as model context, with the action descriptors embedded in
// assistant turns rebuilt into tool_use and tool_result pairs.
//
// Failures inside a round (provider faults, malformed tool calls,
// connection or action errors) are retried with exponential backoff
// on the orchestrator's clock. Only context cancellation escapes
// RunTurn; an exhausted retry budget ends the turn with a failure
// notice in both the stream and the transcript.
package conversation
