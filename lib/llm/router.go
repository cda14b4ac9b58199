// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
	"strings"
)

// Family is a provider family selected by model name.
type Family string

const (
	FamilyAnthropic Family = "anthropic"
	FamilyOpenAI    Family = "openai"
)

// FamilyForModel returns the provider family serving model by its name
// prefix: "claude-" is Anthropic; "gpt-", "o1", "o3", and "o4" are
// OpenAI.
func FamilyForModel(model string) (Family, bool) {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return FamilyAnthropic, true
	case strings.HasPrefix(model, "gpt-"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return FamilyOpenAI, true
	default:
		return "", false
	}
}

// UnsupportedModelError is returned for a model name no configured
// provider serves.
type UnsupportedModelError struct {
	Model string
}

func (err *UnsupportedModelError) Error() string {
	return fmt.Sprintf("llm: unsupported model %q", err.Model)
}

// Router is a [Provider] that dispatches each request to the provider
// of its model's family.
type Router struct {
	providers map[Family]Provider
}

// NewRouter returns a Router. Families without a provider are
// reported as unsupported.
func NewRouter(providers map[Family]Provider) *Router {
	router := &Router{providers: make(map[Family]Provider)}
	for family, provider := range providers {
		if provider != nil {
			router.providers[family] = provider
		}
	}
	return router
}

// Resolve returns the provider for model.
func (router *Router) Resolve(model string) (Provider, error) {
	family, ok := FamilyForModel(model)
	if !ok {
		return nil, &UnsupportedModelError{Model: model}
	}
	provider, ok := router.providers[family]
	if !ok {
		return nil, &UnsupportedModelError{Model: model}
	}
	return provider, nil
}

// Stream resolves the request's model and streams from its provider.
func (router *Router) Stream(ctx context.Context, request Request) (*EventStream, error) {
	provider, err := router.Resolve(request.Model)
	if err != nil {
		return nil, err
	}
	return provider.Stream(ctx, request)
}
