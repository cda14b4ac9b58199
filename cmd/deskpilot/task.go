// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Task is a "deskpilot run" task file. Task files are JSONC: comments
// and trailing commas are allowed. Fields left empty fall back to the
// command-line flags and then to the agent configuration.
type Task struct {
	SystemPrompt string `json:"system_prompt"`
	Prompt       string `json:"prompt"`
	Model        string `json:"model"`
	Target       string `json:"target"`

	// Conversation keys the stored transcript. Defaults to Target.
	Conversation string `json:"conversation"`

	MaxActions int `json:"max_actions"`
}

func loadTask(path string) (Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Task{}, fmt.Errorf("reading task: %w", err)
	}
	task, err := parseTask(data)
	if err != nil {
		return Task{}, fmt.Errorf("task %s: %w", path, err)
	}
	return task, nil
}

func parseTask(data []byte) (Task, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()

	var task Task
	if err := decoder.Decode(&task); err != nil {
		return Task{}, fmt.Errorf("parsing: %w", err)
	}
	if task.MaxActions < 0 {
		return Task{}, errors.New("max_actions must not be negative")
	}
	return task, nil
}
