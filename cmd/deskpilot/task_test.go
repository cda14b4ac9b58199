// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseTask(t *testing.T) {
	t.Parallel()
	data := []byte(`{
  // The desk in the lab.
  "target": "lab",
  "prompt": "Open the settings",
  "model": "gpt-4o",
  /* one click is enough */
  "max_actions": 1,
}`)
	task, err := parseTask(data)
	if err != nil {
		t.Fatal(err)
	}
	want := Task{Target: "lab", Prompt: "Open the settings", Model: "gpt-4o", MaxActions: 1}
	if task != want {
		t.Errorf("task = %+v, want %+v", task, want)
	}
}

func TestParseTaskErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown field", `{"promt": "typo"}`, "promt"},
		{"negative budget", `{"max_actions": -1}`, "max_actions"},
		{"not json", `prompt: yaml`, "parsing"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseTask([]byte(test.data))
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("error = %v, want it to mention %q", err, test.want)
			}
		})
	}
}

func TestLoadTaskMissingFile(t *testing.T) {
	t.Parallel()
	_, err := loadTask(filepath.Join(t.TempDir(), "absent.jsonc"))
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error = %v, want a not-exist error", err)
	}
}
