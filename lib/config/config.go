// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the master configuration for deskpilot.
type Config struct {
	Environment Environment `yaml:"environment"`

	Paths PathsConfig `yaml:"paths"`

	// VNC is the default remote desktop endpoint.
	VNC EndpointConfig `yaml:"vnc"`

	// Targets overrides VNC per target id. Unset fields fall back to
	// VNC.
	Targets map[string]EndpointConfig `yaml:"targets"`

	Session SessionConfig `yaml:"session"`

	Agent AgentConfig `yaml:"agent"`

	Providers ProvidersConfig `yaml:"providers"`

	// Per-environment sections, decoded field by field over the base
	// values after the file is loaded. A section absent from the file
	// is the zero Node.
	Development yaml.Node `yaml:"development,omitempty"`
	Production  yaml.Node `yaml:"production,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root is the base directory for deskpilot data.
	Root string `yaml:"root"`

	// Screenshots holds the screenshot artifacts.
	Screenshots string `yaml:"screenshots"`

	// Database is the chat store file. ":memory:" keeps turns in
	// process.
	Database string `yaml:"database"`
}

// EndpointConfig addresses a VNC server.
type EndpointConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Password is used as is. Prefer PasswordEnv.
	Password string `yaml:"password"`

	// PasswordEnv names the environment variable holding the
	// password.
	PasswordEnv string `yaml:"password_env"`
}

// ResolvePassword returns Password, or the value of PasswordEnv when
// Password is empty.
func (endpoint EndpointConfig) ResolvePassword() string {
	if endpoint.Password != "" {
		return endpoint.Password
	}
	if endpoint.PasswordEnv != "" {
		return os.Getenv(endpoint.PasswordEnv)
	}
	return ""
}

// SessionConfig holds the remote session timings and screenshot
// settings.
type SessionConfig struct {
	ConnectTimeout       Duration `yaml:"connect_timeout"`
	FirstFrameTimeout    Duration `yaml:"first_frame_timeout"`
	FrameUpdateTimeout   Duration `yaml:"frame_update_timeout"`
	MaxUpdateRetries     int      `yaml:"max_update_retries"`
	ReconnectDelay       Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`
	DefaultWidth         int      `yaml:"default_width"`
	DefaultHeight        int      `yaml:"default_height"`
	HistoryLimit         int      `yaml:"history_limit"`
	JPEGQuality          int      `yaml:"jpeg_quality"`

	// LatestInterval throttles latest-screenshot refreshes driven by
	// frame updates. Zero disables them.
	LatestInterval Duration `yaml:"latest_interval"`

	URLPrefix      string `yaml:"url_prefix"`
	PlaceholderURL string `yaml:"placeholder_url"`
}

// AgentConfig holds the agent loop parameters.
type AgentConfig struct {
	Model string `yaml:"model"`

	// SystemPrompt is used when a task does not carry its own.
	SystemPrompt string `yaml:"system_prompt"`

	MaxActions   int      `yaml:"max_actions"`
	MaxRetries   int      `yaml:"max_retries"`
	BaseDelay    Duration `yaml:"base_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	ContextLimit int      `yaml:"context_limit"`
	MaxTokens    int      `yaml:"max_tokens"`
	Temperature  float64  `yaml:"temperature"`

	// ContextWindow is the model's context window in tokens. Zero
	// looks the model up.
	ContextWindow int `yaml:"context_window"`
}

// ProvidersConfig configures the model provider endpoints.
type ProvidersConfig struct {
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
}

// ProviderConfig configures one provider.
type ProviderConfig struct {
	// BaseURL overrides the provider's public endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
}

// APIKey returns the key from APIKeyEnv, or "" when unset.
func (provider ProviderConfig) APIKey() string {
	if provider.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(provider.APIKeyEnv)
}

// Duration is a time.Duration written in YAML as a Go duration string
// ("5s", "1m30s").
type Duration time.Duration

// Std returns the duration as a time.Duration.
func (duration Duration) Std() time.Duration { return time.Duration(duration) }

func (duration Duration) String() string { return time.Duration(duration).String() }

// UnmarshalYAML parses a duration string.
func (duration *Duration) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", value.Line, err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*duration = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (duration Duration) MarshalYAML() (any, error) {
	return duration.String(), nil
}

// Default returns the default configuration. It is the base the
// config file is decoded over.
func Default() *Config {
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:        "${HOME}/.cache/deskpilot",
			Screenshots: "${DESKPILOT_ROOT}/screenshots",
			Database:    "${DESKPILOT_ROOT}/chat.db",
		},
		VNC: EndpointConfig{
			Port: 5900,
		},
		Session: SessionConfig{
			ConnectTimeout:       Duration(10 * time.Second),
			FirstFrameTimeout:    Duration(10 * time.Second),
			FrameUpdateTimeout:   Duration(5 * time.Second),
			MaxUpdateRetries:     3,
			ReconnectDelay:       Duration(2 * time.Second),
			MaxReconnectAttempts: 5,
			DefaultWidth:         1280,
			DefaultHeight:        720,
			HistoryLimit:         100,
			JPEGQuality:          95,
			LatestInterval:       Duration(time.Second),
			URLPrefix:            "/api/screenshots",
			PlaceholderURL:       "/images/Screenshot.png",
		},
		Agent: AgentConfig{
			Model:        "claude-3-5-sonnet-20241022",
			MaxActions:   3,
			MaxRetries:   5,
			BaseDelay:    Duration(5 * time.Second),
			MaxDelay:     Duration(60 * time.Second),
			ContextLimit: 1,
			MaxTokens:    1024,
			Temperature:  0.9,
		},
		Providers: ProvidersConfig{
			Anthropic: ProviderConfig{APIKeyEnv: "ANTHROPIC_API_KEY"},
			OpenAI:    ProviderConfig{APIKeyEnv: "OPENAI_API_KEY"},
		},
	}
}

// Load loads configuration from the file named by DESKPILOT_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("DESKPILOT_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("DESKPILOT_CONFIG environment variable not set; " +
			"set it to the path of your deskpilot.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, applies the
// matching environment section, and expands path variables. The
// result is not validated; call [Config.Validate].
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.parse(data); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, as LoadFile does for a file.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.parse(data); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) parse(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	if err := c.applyEnvironmentOverrides(); err != nil {
		return err
	}
	c.expandVariables()
	return nil
}

// applyEnvironmentOverrides decodes the section matching Environment
// over the current values.
func (c *Config) applyEnvironmentOverrides() error {
	var section yaml.Node
	switch c.Environment {
	case Development:
		section = c.Development
	case Production:
		section = c.Production
	}
	if section.Kind == 0 || section.ShortTag() == "!!null" {
		return nil
	}
	if section.Kind != yaml.MappingNode {
		return fmt.Errorf("%s section must be a mapping", c.Environment)
	}

	environment := c.Environment
	if err := section.Decode(c); err != nil {
		return fmt.Errorf("%s section: %w", environment, err)
	}
	if c.Environment != environment {
		return fmt.Errorf("%s section may not change environment", environment)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"DESKPILOT_ROOT": c.Paths.Root,
		"HOME":           os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["DESKPILOT_ROOT"] = c.Paths.Root

	c.Paths.Screenshots = expandVars(c.Paths.Screenshots, vars)
	c.Paths.Database = expandVars(c.Paths.Database, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, preferring
// vars over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		defaultValue := parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Endpoint returns the endpoint for target id: its Targets entry with
// unset fields taken from VNC.
func (c *Config) Endpoint(id string) EndpointConfig {
	endpoint := c.VNC
	override, ok := c.Targets[id]
	if !ok {
		return endpoint
	}
	if override.Host != "" {
		endpoint.Host = override.Host
	}
	if override.Port != 0 {
		endpoint.Port = override.Port
	}
	if override.Password != "" || override.PasswordEnv != "" {
		endpoint.Password = override.Password
		endpoint.PasswordEnv = override.PasswordEnv
	}
	return endpoint
}

// Validate checks the configuration, reporting every problem.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}
	if c.Paths.Screenshots == "" {
		errs = append(errs, errors.New("paths.screenshots is required"))
	}
	if c.Paths.Database == "" {
		errs = append(errs, errors.New("paths.database is required"))
	}

	if c.VNC.Host == "" {
		errs = append(errs, errors.New("vnc.host is required"))
	}
	if !validPort(c.VNC.Port) {
		errs = append(errs, fmt.Errorf("vnc.port %d out of range", c.VNC.Port))
	}
	ids := make([]string, 0, len(c.Targets))
	for id := range c.Targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if id == "" {
			errs = append(errs, errors.New("targets: empty target id"))
		}
		if port := c.Targets[id].Port; port != 0 && !validPort(port) {
			errs = append(errs, fmt.Errorf("targets.%s.port %d out of range", id, port))
		}
	}

	positiveDurations := []struct {
		name  string
		value Duration
	}{
		{"session.connect_timeout", c.Session.ConnectTimeout},
		{"session.first_frame_timeout", c.Session.FirstFrameTimeout},
		{"session.frame_update_timeout", c.Session.FrameUpdateTimeout},
		{"session.reconnect_delay", c.Session.ReconnectDelay},
		{"agent.base_delay", c.Agent.BaseDelay},
		{"agent.max_delay", c.Agent.MaxDelay},
	}
	for _, field := range positiveDurations {
		if field.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", field.name))
		}
	}
	if c.Session.LatestInterval < 0 {
		errs = append(errs, errors.New("session.latest_interval must not be negative"))
	}
	if c.Agent.MaxDelay < c.Agent.BaseDelay {
		errs = append(errs, errors.New("agent.max_delay must be at least agent.base_delay"))
	}

	positiveCounts := []struct {
		name  string
		value int
	}{
		{"session.max_update_retries", c.Session.MaxUpdateRetries},
		{"session.max_reconnect_attempts", c.Session.MaxReconnectAttempts},
		{"session.default_width", c.Session.DefaultWidth},
		{"session.default_height", c.Session.DefaultHeight},
		{"session.history_limit", c.Session.HistoryLimit},
		{"agent.max_actions", c.Agent.MaxActions},
		{"agent.max_retries", c.Agent.MaxRetries},
		{"agent.context_limit", c.Agent.ContextLimit},
		{"agent.max_tokens", c.Agent.MaxTokens},
	}
	for _, field := range positiveCounts {
		if field.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", field.name))
		}
	}
	if c.Session.JPEGQuality < 1 || c.Session.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("session.jpeg_quality %d must be in [1, 100]", c.Session.JPEGQuality))
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature %g must be in [0, 2]", c.Agent.Temperature))
	}
	if c.Agent.ContextWindow < 0 {
		errs = append(errs, errors.New("agent.context_window must not be negative"))
	}
	if c.Agent.Model == "" {
		errs = append(errs, errors.New("agent.model is required"))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the data directories. The database's parent is
// created unless the database is in memory.
func (c *Config) EnsurePaths() error {
	paths := []string{c.Paths.Root, c.Paths.Screenshots}
	if c.Paths.Database != ":memory:" {
		paths = append(paths, filepath.Dir(c.Paths.Database))
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}
