// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerWritesJSONWhenPiped(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	logger := newLogger(&buffer, false)
	logger.Debug("hidden")
	logger.Info("session closed", "target_id", "desk")

	var record map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("log output is not one JSON record: %v\n%s", err, buffer.String())
	}
	if record["msg"] != "session closed" || record["target_id"] != "desk" {
		t.Errorf("record = %v", record)
	}
}

func TestNewLoggerDebug(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	newLogger(&buffer, true).Debug("frame update", "attempt", 1)
	if buffer.Len() == 0 {
		t.Error("debug record dropped with --debug")
	}
}
