// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/deskpilot/lib/screenshot"
)

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall records one computer action executed during an assistant
// round.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`

	// Descriptor is the executor's textual rendering of the action as
	// it appears in the turn content.
	Descriptor string `json:"descriptor"`
}

// Turn is one persisted message of a conversation.
type Turn struct {
	ID           string                 `json:"id"`
	Conversation string                 `json:"conversation"`
	TargetID     string                 `json:"target_id,omitempty"`
	Role         Role                   `json:"role"`
	Model        string                 `json:"model,omitempty"`
	Content      string                 `json:"content"`
	Screenshot   *screenshot.Descriptor `json:"screenshot,omitempty"`
	ToolCalls    []ToolCall             `json:"tool_calls,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Filter selects turns. Conversation is required; an empty Role
// matches both roles.
type Filter struct {
	Conversation string
	Role         Role
}

// Store is the persistence contract of the agent loop.
type Store interface {
	// CreateTurn appends a turn. An empty ID is replaced with a new
	// UUID and a zero CreatedAt with the store's clock. The stored
	// turn is returned.
	CreateTurn(ctx context.Context, turn Turn) (Turn, error)

	// RecentTurns returns up to limit turns matching filter, newest
	// first. Turns created at the same instant are ordered by
	// insertion.
	RecentTurns(ctx context.Context, filter Filter, limit int) ([]Turn, error)
}

var (
	// ErrNoConversation is returned for a turn or filter without a
	// conversation key.
	ErrNoConversation = errors.New("chatstore: conversation is required")

	// ErrInvalidRole is returned for a turn whose role is neither
	// user nor assistant.
	ErrInvalidRole = errors.New("chatstore: invalid role")
)

// prepare validates turn and fills its ID and CreatedAt.
func prepare(turn Turn, now time.Time) (Turn, error) {
	if err := validateTurn(turn); err != nil {
		return Turn{}, err
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}
	turn.CreatedAt = turn.CreatedAt.UTC()
	return turn, nil
}

func validateTurn(turn Turn) error {
	if turn.Conversation == "" {
		return ErrNoConversation
	}
	if turn.Role != RoleUser && turn.Role != RoleAssistant {
		return ErrInvalidRole
	}
	return nil
}
