// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/deskpilot/lib/chatstore"
	"github.com/bureau-foundation/deskpilot/lib/config"
	"github.com/bureau-foundation/deskpilot/lib/conversation"
	"github.com/bureau-foundation/deskpilot/lib/desktop"
	"github.com/bureau-foundation/deskpilot/lib/llm"
	"github.com/bureau-foundation/deskpilot/lib/rfb"
	"github.com/bureau-foundation/deskpilot/lib/screenshot"
)

// dependencies are the outward-facing collaborators, replaced in
// tests.
type dependencies struct {
	newDialer  func(logger *slog.Logger) rfb.Dialer
	httpClient *http.Client
}

func defaultDependencies() dependencies {
	return dependencies{
		newDialer: func(logger *slog.Logger) rfb.Dialer {
			return &rfb.VNCDialer{Logger: logger}
		},
		httpClient: http.DefaultClient,
	}
}

// environment is the wired application for one command invocation.
type environment struct {
	config  *config.Config
	logger  *slog.Logger
	desktop *desktop.Manager
	deps    dependencies
}

// openEnvironment loads and validates the configuration, creates the
// data directories, and builds the session manager.
func openEnvironment(flags *commonFlags, stdio streams, deps dependencies) (*environment, error) {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.askPassword {
		password, err := askPassword(stdio.stdin, stdio.stderr)
		if err != nil {
			return nil, err
		}
		cfg.VNC.Password = password
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	logger := newLogger(stdio.stderr, flags.debug)

	store, err := screenshot.NewStore(screenshot.StoreConfig{
		Directory:         cfg.Paths.Screenshots,
		URLPrefix:         cfg.Session.URLPrefix,
		PlaceholderURL:    cfg.Session.PlaceholderURL,
		PlaceholderWidth:  cfg.Session.DefaultWidth,
		PlaceholderHeight: cfg.Session.DefaultHeight,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	manager, err := desktop.NewManager(desktop.Config{
		Dialer:  deps.newDialer(logger),
		Resolve: resolver(cfg),
		Store:   store,
		Logger:  logger,
		Options: sessionOptions(cfg.Session),
	})
	if err != nil {
		return nil, err
	}

	return &environment{config: cfg, logger: logger, desktop: manager, deps: deps}, nil
}

// Close closes every remote desktop session.
func (env *environment) Close() {
	env.desktop.CloseAll()
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

// resolver serves the vnc endpoint for every target id, with the
// targets section overriding it per id.
func resolver(cfg *config.Config) desktop.Resolver {
	overrides := make(map[string]rfb.Endpoint, len(cfg.Targets))
	for id := range cfg.Targets {
		overrides[id] = endpoint(cfg.Endpoint(id))
	}
	return desktop.StaticResolver(endpoint(cfg.VNC), overrides)
}

func endpoint(endpointConfig config.EndpointConfig) rfb.Endpoint {
	return rfb.Endpoint{
		Host:     endpointConfig.Host,
		Port:     endpointConfig.Port,
		Password: endpointConfig.ResolvePassword(),
	}
}

func sessionOptions(session config.SessionConfig) desktop.Options {
	return desktop.Options{
		ConnectTimeout:       session.ConnectTimeout.Std(),
		FirstFrameTimeout:    session.FirstFrameTimeout.Std(),
		FrameUpdateTimeout:   session.FrameUpdateTimeout.Std(),
		MaxUpdateRetries:     session.MaxUpdateRetries,
		ReconnectDelay:       session.ReconnectDelay.Std(),
		MaxReconnectAttempts: session.MaxReconnectAttempts,
		DefaultWidth:         session.DefaultWidth,
		DefaultHeight:        session.DefaultHeight,
		HistoryLimit:         session.HistoryLimit,
		JPEGQuality:          session.JPEGQuality,
		LatestInterval:       session.LatestInterval.Std(),
	}
}

func agentOptions(cfg *config.Config) conversation.Options {
	agent := cfg.Agent
	return conversation.Options{
		Model:         agent.Model,
		MaxActions:    agent.MaxActions,
		MaxRetries:    agent.MaxRetries,
		BaseDelay:     agent.BaseDelay.Std(),
		MaxDelay:      agent.MaxDelay.Std(),
		ContextLimit:  agent.ContextLimit,
		MaxTokens:     agent.MaxTokens,
		Temperature:   &agent.Temperature,
		ContextWindow: agent.ContextWindow,
		DisplayWidth:  cfg.Session.DefaultWidth,
		DisplayHeight: cfg.Session.DefaultHeight,
	}
}

// openChatStore opens the configured database, or an in-memory store
// when memory is set. The returned function closes it.
func (env *environment) openChatStore(memory bool) (chatstore.Store, func(), error) {
	if memory {
		return chatstore.NewMemory(nil), func() {}, nil
	}
	store, err := chatstore.OpenSQLite(chatstore.SQLiteConfig{
		Path:   env.config.Paths.Database,
		Logger: env.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			env.logger.Warn("closing chat store", "error", err)
		}
	}, nil
}

// router builds the model router. A provider is registered when its
// API key is set or its base URL points at a proxy that supplies
// credentials.
func (env *environment) router() *llm.Router {
	providers := env.config.Providers
	registered := map[llm.Family]llm.Provider{}
	if key := providers.Anthropic.APIKey(); key != "" || providers.Anthropic.BaseURL != "" {
		registered[llm.FamilyAnthropic] = llm.NewAnthropic(llm.AnthropicConfig{
			HTTPClient: env.deps.httpClient,
			BaseURL:    providers.Anthropic.BaseURL,
			APIKey:     key,
		})
	}
	if key := providers.OpenAI.APIKey(); key != "" || providers.OpenAI.BaseURL != "" {
		registered[llm.FamilyOpenAI] = llm.NewOpenAI(llm.OpenAIConfig{
			HTTPClient: env.deps.httpClient,
			BaseURL:    providers.OpenAI.BaseURL,
			APIKey:     key,
		})
	}
	return llm.NewRouter(registered)
}

// providerHint names the setting that enables the provider for model.
func (env *environment) providerHint(model string) string {
	family, ok := llm.FamilyForModel(model)
	if !ok {
		return "supported models start with claude-, gpt-, o1, o3, or o4"
	}
	provider := env.config.Providers.Anthropic
	if family == llm.FamilyOpenAI {
		provider = env.config.Providers.OpenAI
	}
	if provider.APIKeyEnv == "" {
		return fmt.Sprintf("set providers.%s.api_key_env", family)
	}
	return fmt.Sprintf("set %s", provider.APIKeyEnv)
}

// askPassword prompts on prompt and reads a password from stdin
// without echo.
func askPassword(stdin *os.File, prompt io.Writer) (string, error) {
	if stdin == nil || !term.IsTerminal(int(stdin.Fd())) {
		return "", errors.New("--ask-password needs a terminal on stdin")
	}
	fmt.Fprint(prompt, "VNC password: ")
	password, err := term.ReadPassword(int(stdin.Fd()))
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}
