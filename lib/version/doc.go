// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for deskpilot.
//
// Four package-level variables are injected at build time via
// -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/deskpilot/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without them the commit, dirty flag and time come from the VCS
// settings in the binary's build info, and "unknown" when those are
// absent too (test binaries).
package version
