// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"

	"github.com/bureau-foundation/deskpilot/lib/llm"
)

// Manager holds the message history of one agent turn.
//
// The expected call sequence per round is:
//   - Append each new message (prompt, assistant round, tool results)
//   - Messages before each model call to get the windowed view
//   - RecordUsage after the response to feed back actual token counts
//
// Implementations are not required to be safe for concurrent use.
type Manager interface {
	// Append adds a message to the history.
	Append(message llm.Message)

	// Messages returns the messages to send on the next call. The
	// result keeps tool results paired with their tool uses.
	//
	// A non-nil error reports that the history does not fit even
	// after maximum eviction. The returned messages are still the
	// best-effort result; the caller should log the error and
	// proceed.
	Messages(ctx context.Context) ([]llm.Message, error)

	// RecordUsage feeds back the token consumption the provider
	// reported for the last call.
	RecordUsage(usage llm.Usage)
}

// TokenEstimator estimates the token count of messages without a
// tokenizer.
type TokenEstimator interface {
	// EstimateTokens covers only the messages, not the system prompt
	// or tool definitions.
	EstimateTokens(messages []llm.Message) int

	// RecordUsage calibrates the estimator from the exact messages
	// sent and the input tokens the provider reported for them.
	RecordUsage(messages []llm.Message, actualInputTokens int64)
}

// Budget configures the token limits for a Manager.
type Budget struct {
	// ContextWindow is the model's total context window in tokens.
	// Zero uses ContextWindowForModel.
	ContextWindow int

	// MaxOutputTokens is reserved for each response.
	MaxOutputTokens int

	// OverheadTokens estimates the system prompt, tool definitions,
	// and protocol framing. Zero uses 2048.
	OverheadTokens int
}

const defaultOverheadTokens = 2048

// MessageTokenBudget returns the tokens available for messages after
// the output reservation and overhead.
func (budget Budget) MessageTokenBudget() int {
	overhead := budget.OverheadTokens
	if overhead == 0 {
		overhead = defaultOverheadTokens
	}
	available := budget.ContextWindow - budget.MaxOutputTokens - overhead
	if available < 0 {
		return 0
	}
	return available
}

// Unbounded implements Manager with no truncation.
type Unbounded struct {
	messages []llm.Message
}

// Append adds a message to the history.
func (manager *Unbounded) Append(message llm.Message) {
	manager.messages = append(manager.messages, message)
}

// Messages returns the full history.
func (manager *Unbounded) Messages(_ context.Context) ([]llm.Message, error) {
	return manager.messages, nil
}

// RecordUsage is a no-op.
func (manager *Unbounded) RecordUsage(_ llm.Usage) {}
