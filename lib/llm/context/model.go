// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import "strings"

// modelRegistry maps the models the router serves to their context
// window sizes in tokens.
var modelRegistry = map[string]int{
	"claude-3-5-sonnet-20241022": 200_000,
	"claude-3-5-haiku-20241022":  200_000,
	"claude-3-7-sonnet-20250219": 200_000,
	"claude-sonnet-4-5-20250929": 200_000,
	"claude-opus-4-6":            200_000,

	"gpt-4o":      128_000,
	"gpt-4o-mini": 128_000,
	"gpt-4-turbo": 128_000,
	"gpt-4":       8_192,
	"gpt-4.1":     1_047_576,

	"o1":      200_000,
	"o1-mini": 128_000,
	"o3":      200_000,
	"o3-mini": 200_000,
	"o4-mini": 200_000,
}

// defaultContextWindow covers unknown models of a known family.
const defaultContextWindow = 128_000

// ContextWindowForModel returns the context window of model. Unknown
// Claude models get 200k; anything else unknown gets 128k.
func ContextWindowForModel(model string) int {
	if window, found := modelRegistry[model]; found {
		return window
	}
	if strings.HasPrefix(model, "claude-") {
		return 200_000
	}
	return defaultContextWindow
}
