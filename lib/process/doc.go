// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers for deskpilot binaries:
// turning the error returned by a binary's run function into a process
// exit, and the [ExitError] that commands return when a non-zero exit
// is a valid outcome whose report has already been written.
//
// These are the only places outside the CLI's own output paths that
// write to stderr directly; everything else logs through slog.
package process
