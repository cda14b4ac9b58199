// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestInfoPrefersLinkerValues(t *testing.T) {
	savedCommit, savedDirty, savedTime := GitCommit, GitDirty, BuildTime
	t.Cleanup(func() { GitCommit, GitDirty, BuildTime = savedCommit, savedDirty, savedTime })

	GitCommit, GitDirty, BuildTime = "abc1234", "true", "2026-10-16T09:00:00Z"
	if got, want := Info(), Version+" (abc1234-dirty, 2026-10-16T09:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
	GitDirty = "false"
	if got := Info(); strings.Contains(got, "-dirty") {
		t.Errorf("Info() = %q, want no dirty marker", got)
	}
}

func TestFromSettings(t *testing.T) {
	t.Parallel()
	stamp := fromSettings([]debug.BuildSetting{
		{Key: "GOOS", Value: "linux"},
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
	})
	if stamp.commit != "0123456789ab" {
		t.Errorf("commit = %q, want the 12-character prefix", stamp.commit)
	}
	if !stamp.dirty || stamp.time != "2026-10-01T12:00:00Z" {
		t.Errorf("stamp = %+v", stamp)
	}
	if got := (build{}).String(); got != Version+" (unknown, unknown)" {
		t.Errorf("empty build = %q", got)
	}
}

func TestFprint(t *testing.T) {
	var buffer bytes.Buffer
	Fprint(&buffer, "deskpilot")
	output := buffer.String()
	if !strings.HasPrefix(output, "deskpilot "+Version) {
		t.Errorf("Fprint wrote %q", output)
	}
	if !strings.Contains(output, runtime.Version()) {
		t.Errorf("Fprint output %q lacks the Go version", output)
	}
}
