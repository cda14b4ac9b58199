// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
)

// Release builds set these with -ldflags "-X". A plain "go build" or
// "go install" leaves them at their defaults and [Info] falls back to
// the VCS stamp the toolchain embeds.
var (
	Version   = "0.1.0-dev"
	GitCommit = ""
	GitDirty  = ""
	BuildTime = ""
)

// build describes the binary, preferring ldflags values over the
// embedded build settings.
type build struct {
	commit string
	dirty  bool
	time   string
}

func current() build {
	stamp := build{commit: GitCommit, dirty: GitDirty == "true", time: BuildTime}
	if stamp.commit != "" {
		return stamp
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		stamp = fromSettings(info.Settings)
	}
	return stamp
}

func fromSettings(settings []debug.BuildSetting) build {
	var stamp build
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			stamp.commit = setting.Value
			if len(stamp.commit) > 12 {
				stamp.commit = stamp.commit[:12]
			}
		case "vcs.modified":
			stamp.dirty = setting.Value == "true"
		case "vcs.time":
			stamp.time = setting.Value
		}
	}
	return stamp
}

func (stamp build) String() string {
	commit, at := stamp.commit, stamp.time
	if commit == "" {
		commit = "unknown"
	}
	if at == "" {
		at = "unknown"
	}
	if stamp.dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, at)
}

// Info is the one-line version string.
func Info() string {
	return current().String()
}

// Fprint writes the version block printed by "deskpilot version".
func Fprint(w io.Writer, name string) {
	fmt.Fprintf(w, "%s %s\n  Go: %s\n  Platform: %s/%s\n",
		name, Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
