// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatstore

import (
	"context"
	"slices"
	"sync"

	"github.com/bureau-foundation/deskpilot/lib/clock"
)

// Memory is an in-process [Store]. Turns are lost when the process
// exits.
type Memory struct {
	clock clock.Clock

	mu    sync.Mutex
	turns []Turn
}

// NewMemory returns an empty store stamping turns with clk, or the
// real clock when clk is nil.
func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.Real()
	}
	return &Memory{clock: clk}
}

// CreateTurn appends turn.
func (memory *Memory) CreateTurn(ctx context.Context, turn Turn) (Turn, error) {
	if err := ctx.Err(); err != nil {
		return Turn{}, err
	}
	turn, err := prepare(turn, memory.clock.Now())
	if err != nil {
		return Turn{}, err
	}
	turn.ToolCalls = slices.Clone(turn.ToolCalls)
	if turn.Screenshot != nil {
		descriptor := *turn.Screenshot
		descriptor.Data = nil
		turn.Screenshot = &descriptor
	}

	memory.mu.Lock()
	memory.turns = append(memory.turns, turn)
	memory.mu.Unlock()
	return turn, nil
}

// RecentTurns returns the newest turns matching filter.
func (memory *Memory) RecentTurns(ctx context.Context, filter Filter, limit int) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if filter.Conversation == "" {
		return nil, ErrNoConversation
	}
	if limit <= 0 {
		return nil, nil
	}

	memory.mu.Lock()
	defer memory.mu.Unlock()

	var matched []Turn
	for _, turn := range memory.turns {
		if turn.Conversation != filter.Conversation {
			continue
		}
		if filter.Role != "" && turn.Role != filter.Role {
			continue
		}
		matched = append(matched, turn)
	}
	// Stable sort keeps insertion order among equal timestamps; the
	// reverse then puts the newest insertion first.
	slices.SortStableFunc(matched, func(a, b Turn) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	slices.Reverse(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Turns returns every stored turn in insertion order.
func (memory *Memory) Turns() []Turn {
	memory.mu.Lock()
	defer memory.mu.Unlock()
	return slices.Clone(memory.turns)
}
