// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Agent.Model != "claude-3-5-sonnet-20241022" {
		t.Errorf("expected model=claude-3-5-sonnet-20241022, got %s", cfg.Agent.Model)
	}
	if cfg.Agent.MaxActions != 3 || cfg.Agent.MaxRetries != 5 {
		t.Errorf("expected max_actions=3 max_retries=5, got %d %d", cfg.Agent.MaxActions, cfg.Agent.MaxRetries)
	}
	if cfg.Session.ReconnectDelay.Std() != 2*time.Second {
		t.Errorf("expected reconnect_delay=2s, got %s", cfg.Session.ReconnectDelay)
	}
	if cfg.Session.PlaceholderURL != "/images/Screenshot.png" {
		t.Errorf("expected placeholder_url=/images/Screenshot.png, got %s", cfg.Session.PlaceholderURL)
	}
}

func TestLoad_RequiresDeskpilotConfig(t *testing.T) {
	t.Setenv("DESKPILOT_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when DESKPILOT_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "DESKPILOT_CONFIG environment variable not set") {
		t.Errorf("unexpected error message %q", err.Error())
	}
}

func TestLoad_WithDeskpilotConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "deskpilot.yaml")
	configContent := `
paths:
  root: /srv/deskpilot
vnc:
  host: desk.internal
session:
  frame_update_timeout: 3s
agent:
  max_actions: 7
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("DESKPILOT_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VNC.Host != "desk.internal" || cfg.VNC.Port != 5900 {
		t.Errorf("expected vnc desk.internal:5900, got %s:%d", cfg.VNC.Host, cfg.VNC.Port)
	}
	if cfg.Session.FrameUpdateTimeout.Std() != 3*time.Second {
		t.Errorf("expected frame_update_timeout=3s, got %s", cfg.Session.FrameUpdateTimeout)
	}
	if cfg.Session.ConnectTimeout.Std() != 10*time.Second {
		t.Errorf("expected default connect_timeout=10s, got %s", cfg.Session.ConnectTimeout)
	}
	if cfg.Agent.MaxActions != 7 {
		t.Errorf("expected max_actions=7, got %d", cfg.Agent.MaxActions)
	}
	if cfg.Paths.Screenshots != "/srv/deskpilot/screenshots" {
		t.Errorf("expected screenshots under root, got %s", cfg.Paths.Screenshots)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestParse_EnvironmentOverrides(t *testing.T) {
	data := []byte(`
environment: production
vnc:
  host: desk.internal
agent:
  model: claude-3-5-sonnet-20241022
  max_retries: 5
development:
  agent:
    model: gpt-4o
production:
  vnc:
    port: 5901
  agent:
    max_retries: 8
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.VNC.Host != "desk.internal" || cfg.VNC.Port != 5901 {
		t.Errorf("expected desk.internal:5901, got %s:%d", cfg.VNC.Host, cfg.VNC.Port)
	}
	if cfg.Agent.MaxRetries != 8 {
		t.Errorf("expected production max_retries=8, got %d", cfg.Agent.MaxRetries)
	}
	if cfg.Agent.Model != "claude-3-5-sonnet-20241022" {
		t.Errorf("development section leaked into production: model=%s", cfg.Agent.Model)
	}
}

func TestParse_SectionMergesSingleField(t *testing.T) {
	cfg, err := Parse([]byte("environment: production\nvnc:\n  host: h\nproduction:\n  vnc:\n    port: 5901\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.VNC.Host != "h" || cfg.VNC.Port != 5901 {
		t.Errorf("expected h:5901, got %s:%d", cfg.VNC.Host, cfg.VNC.Port)
	}
}

func TestParse_EmptyOrInvalidSection(t *testing.T) {
	cfg, err := Parse([]byte("environment: development\ndevelopment:\nvnc:\n  port: 5902\n"))
	if err != nil {
		t.Fatalf("empty section: %v", err)
	}
	if cfg.VNC.Port != 5902 {
		t.Errorf("expected port=5902, got %d", cfg.VNC.Port)
	}

	if _, err := Parse([]byte("environment: production\nproduction: [1, 2]\n")); err == nil {
		t.Error("expected error for a non-mapping section")
	}
}

func TestParse_SectionCannotChangeEnvironment(t *testing.T) {
	data := []byte(`
environment: development
development:
  environment: production
`)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error when a section changes the environment")
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing unit", "session:\n  connect_timeout: 5\n"},
		{"garbage", "session:\n  connect_timeout: soon\n"},
		{"not a scalar", "session:\n  connect_timeout: [5s]\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Parse([]byte(test.yaml)); err == nil {
				t.Errorf("expected error for %q", test.yaml)
			}
		})
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("DESKPILOT_TEST_VAR", "from-env")
	vars := map[string]string{"DESKPILOT_ROOT": "/data"}

	tests := []struct {
		input string
		want  string
	}{
		{"${DESKPILOT_ROOT}/screenshots", "/data/screenshots"},
		{"${DESKPILOT_TEST_VAR}/x", "from-env/x"},
		{"${DESKPILOT_UNSET_VAR:-fallback}", "fallback"},
		{"${DESKPILOT_UNSET_VAR}", ""},
		{"plain/path", "plain/path"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestEndpoint(t *testing.T) {
	t.Setenv("DESK_TWO_PASSWORD", "hunter2")
	cfg := Default()
	cfg.VNC = EndpointConfig{Host: "desk.internal", Port: 5900, Password: "shared"}
	cfg.Targets = map[string]EndpointConfig{
		"desk-2": {Port: 5902, PasswordEnv: "DESK_TWO_PASSWORD"},
		"desk-3": {Host: "other.internal"},
	}

	tests := []struct {
		id       string
		host     string
		port     int
		password string
	}{
		{"desk-1", "desk.internal", 5900, "shared"},
		{"desk-2", "desk.internal", 5902, "hunter2"},
		{"desk-3", "other.internal", 5900, "shared"},
	}
	for _, test := range tests {
		endpoint := cfg.Endpoint(test.id)
		if endpoint.Host != test.host || endpoint.Port != test.port {
			t.Errorf("Endpoint(%s) = %s:%d, want %s:%d", test.id, endpoint.Host, endpoint.Port, test.host, test.port)
		}
		if got := endpoint.ResolvePassword(); got != test.password {
			t.Errorf("Endpoint(%s) password = %q, want %q", test.id, got, test.password)
		}
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Environment = "staging"
	cfg.VNC.Host = ""
	cfg.VNC.Port = 70000
	cfg.Agent.MaxActions = 0
	cfg.Agent.MaxDelay = Duration(time.Second)
	cfg.Session.JPEGQuality = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"invalid environment: staging",
		"vnc.host is required",
		"vnc.port 70000 out of range",
		"agent.max_actions must be positive",
		"agent.max_delay must be at least agent.base_delay",
		"session.jpeg_quality 0 must be in [1, 100]",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Paths = PathsConfig{
		Root:        root,
		Screenshots: filepath.Join(root, "shots"),
		Database:    filepath.Join(root, "db", "chat.db"),
	}
	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	for _, dir := range []string{"shots", "db"} {
		if info, err := os.Stat(filepath.Join(root, dir)); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s: %v", dir, err)
		}
	}
}
