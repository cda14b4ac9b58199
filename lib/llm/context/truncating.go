// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/deskpilot/lib/llm"
)

// Truncating implements [Manager] by dropping the oldest turn groups
// of the replayed transcript when the history exceeds the token
// budget. The current exchange is always kept: everything from the
// message marked with [Truncating.MarkCurrent], or the last turn group
// when nothing is marked.
type Truncating struct {
	messages  []llm.Message
	estimator TokenEstimator
	budget    int

	// currentStart is the index of the first message of the current
	// exchange, or -1 when unmarked.
	currentStart int

	// lastReturnedMessages is what Messages returned last, which is
	// what RecordUsage calibrates against.
	lastReturnedMessages []llm.Message

	lastEvictedCount int
}

// NewTruncating creates a Truncating manager with the given token
// budget and estimator.
func NewTruncating(tokenBudget int, estimator TokenEstimator) *Truncating {
	return &Truncating{
		estimator:    estimator,
		budget:       tokenBudget,
		currentStart: -1,
	}
}

// Append adds a message to the history.
func (manager *Truncating) Append(message llm.Message) {
	manager.messages = append(manager.messages, message)
}

// MarkCurrent declares that the next appended message starts the
// current exchange. That message and every later one are never
// evicted, even when a later user message carries text.
func (manager *Truncating) MarkCurrent() {
	manager.currentStart = len(manager.messages)
}

// Messages returns the history windowed to the token budget. When
// everything fits the full history is returned; otherwise the oldest
// turn groups before the current exchange are evicted until the
// estimate is within budget.
//
// Returns a non-nil error if the history cannot fit even after
// maximum eviction. The returned messages are still the best-effort
// result.
func (manager *Truncating) Messages(_ context.Context) ([]llm.Message, error) {
	manager.lastEvictedCount = 0

	if len(manager.messages) == 0 {
		manager.lastReturnedMessages = nil
		return nil, nil
	}

	estimatedTokens := manager.estimator.EstimateTokens(manager.messages)
	if estimatedTokens <= manager.budget {
		manager.lastReturnedMessages = manager.messages
		return manager.messages, nil
	}

	// Split into the evictable head and the kept tail.
	tailStart := manager.currentStart
	if tailStart < 0 || tailStart > len(manager.messages) {
		tailStart = len(manager.messages)
	}
	groups := identifyTurnGroups(manager.messages[:tailStart])
	if manager.currentStart < 0 && len(groups) > 0 {
		last := groups[len(groups)-1]
		tailStart = last.startIndex
		groups = groups[:len(groups)-1]
	}
	// Messages before the first group (an assistant message opening
	// the history) are evicted with the first group, or alone.
	switch {
	case len(groups) > 0:
		groups[0].startIndex = 0
	case tailStart > 0:
		groups = []turnGroup{{startIndex: 0, endIndex: tailStart}}
	}

	if len(groups) == 0 {
		manager.lastReturnedMessages = manager.messages
		return manager.messages, fmt.Errorf(
			"context budget exceeded: estimated %d tokens, budget %d tokens, "+
				"and only the current exchange remains",
			estimatedTokens, manager.budget)
	}

	tokensToFree := estimatedTokens - manager.budget
	freedTokens := 0
	evictCount := 0
	for _, group := range groups {
		if freedTokens >= tokensToFree {
			break
		}
		freedTokens += manager.estimator.EstimateTokens(manager.messages[group.startIndex:group.endIndex])
		evictCount++
	}
	manager.lastEvictedCount = evictCount

	var result []llm.Message
	if evictCount < len(groups) {
		result = append(result, manager.messages[groups[evictCount].startIndex:tailStart]...)
	}
	result = append(result, manager.messages[tailStart:]...)
	manager.lastReturnedMessages = result

	remainingEstimate := estimatedTokens - freedTokens
	if remainingEstimate > manager.budget {
		return result, fmt.Errorf(
			"context budget exceeded after evicting %d turn groups (freed ~%d tokens): "+
				"estimated %d tokens remaining, budget %d tokens",
			evictCount, freedTokens, remainingEstimate, manager.budget)
	}
	return result, nil
}

// RecordUsage calibrates the estimator against the messages last
// returned by Messages.
func (manager *Truncating) RecordUsage(usage llm.Usage) {
	if manager.lastReturnedMessages != nil {
		manager.estimator.RecordUsage(manager.lastReturnedMessages, usage.InputTokens)
	}
}

// EvictedTurnGroups returns the number of turn groups evicted on the
// most recent Messages call.
func (manager *Truncating) EvictedTurnGroups() int {
	return manager.lastEvictedCount
}
