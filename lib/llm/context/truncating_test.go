// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bureau-foundation/deskpilot/lib/llm"
)

// mockTokenEstimator charges a fixed count per message, making
// truncation tests predictable.
type mockTokenEstimator struct {
	tokensPerMessage int
	recorded         []int
}

func (estimator *mockTokenEstimator) EstimateTokens(messages []llm.Message) int {
	return len(messages) * estimator.tokensPerMessage
}

func (estimator *mockTokenEstimator) RecordUsage(messages []llm.Message, _ int64) {
	estimator.recorded = append(estimator.recorded, len(messages))
}

func screenshotMessage() llm.Message {
	return llm.Message{Role: llm.RoleUser, Content: []llm.ContentBlock{llm.ImageBlock("image/jpeg", []byte{0xff, 0xd8})}}
}

func toolRound(id string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleAssistant, Content: []llm.ContentBlock{
			llm.ToolUseBlock(id, "computer", json.RawMessage(`{"action":"screenshot"}`)),
		}},
		{Role: llm.RoleUser, Content: []llm.ContentBlock{
			llm.ToolResultBlock(id, "<screenshot></screenshot>", &llm.Image{MediaType: "image/jpeg"}, false),
		}},
	}
}

func TestTruncating_NoTruncation(t *testing.T) {
	t.Parallel()

	estimator := &mockTokenEstimator{tokensPerMessage: 100}
	manager := NewTruncating(1000, estimator)
	manager.Append(llm.UserMessage("first"))
	manager.Append(llm.AssistantMessage("response 1"))
	manager.Append(llm.UserMessage("second"))
	manager.Append(llm.AssistantMessage("response 2"))

	messages, err := manager.Messages(context.Background())
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("Messages() returned %d messages, want 4", len(messages))
	}
	if manager.EvictedTurnGroups() != 0 {
		t.Errorf("EvictedTurnGroups() = %d, want 0", manager.EvictedTurnGroups())
	}
}

func TestTruncating_EvictsOldestGroup(t *testing.T) {
	t.Parallel()

	// 3 groups × 2 messages × 100 = 600 tokens against 500: the
	// oldest group goes.
	estimator := &mockTokenEstimator{tokensPerMessage: 100}
	manager := NewTruncating(500, estimator)
	manager.Append(llm.UserMessage("first"))
	manager.Append(llm.AssistantMessage("response 1"))
	manager.Append(llm.UserMessage("second"))
	manager.Append(llm.AssistantMessage("response 2"))
	manager.Append(llm.UserMessage("third"))
	manager.Append(llm.AssistantMessage("response 3"))

	messages, err := manager.Messages(context.Background())
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("Messages() returned %d messages, want 4", len(messages))
	}
	if got := messages[0].Text(); got != "second" {
		t.Errorf("first kept message = %q, want second", got)
	}
	if manager.EvictedTurnGroups() != 1 {
		t.Errorf("EvictedTurnGroups() = %d, want 1", manager.EvictedTurnGroups())
	}
}

func TestTruncating_ToolRoundsStayWithTheirPrompt(t *testing.T) {
	t.Parallel()

	// Group 1: prompt, tool round, screenshot-only message (4).
	// Group 2: prompt, answer (2). Budget 300 forces out group 1
	// whole; nothing of it may survive on its own.
	estimator := &mockTokenEstimator{tokensPerMessage: 100}
	manager := NewTruncating(300, estimator)
	manager.Append(llm.UserMessage("open the browser"))
	for _, message := range toolRound("toolu_1") {
		manager.Append(message)
	}
	manager.Append(screenshotMessage())
	manager.Append(llm.UserMessage("close it"))
	manager.Append(llm.AssistantMessage("closed"))

	messages, err := manager.Messages(context.Background())
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	if len(messages) != 2 || messages[0].Text() != "close it" {
		t.Fatalf("Messages() = %d messages starting %q, want the last group only", len(messages), messages[0].Text())
	}
}

func TestTruncating_MarkCurrentKeepsTheExchange(t *testing.T) {
	t.Parallel()

	estimator := &mockTokenEstimator{tokensPerMessage: 100}
	manager := NewTruncating(400, estimator)
	manager.Append(llm.UserMessage("earlier prompt"))
	manager.Append(llm.AssistantMessage("earlier answer"))

	manager.MarkCurrent()
	manager.Append(llm.UserMessage("current prompt"))
	for _, message := range toolRound("toolu_2") {
		manager.Append(message)
	}
	// A user text message inside the exchange does not start a group
	// that could push the prompt out.
	manager.Append(llm.UserMessage("Error during attempted tool call: boom"))

	messages, err := manager.Messages(context.Background())
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("Messages() returned %d messages, want the 4 of the exchange", len(messages))
	}
	if got := messages[0].Text(); got != "current prompt" {
		t.Errorf("first message = %q, want the current prompt", got)
	}
	if manager.EvictedTurnGroups() != 1 {
		t.Errorf("EvictedTurnGroups() = %d, want 1", manager.EvictedTurnGroups())
	}
}

func TestTruncating_OverBudgetReturnsBestEffort(t *testing.T) {
	t.Parallel()

	estimator := &mockTokenEstimator{tokensPerMessage: 100}
	manager := NewTruncating(150, estimator)
	manager.Append(llm.AssistantMessage("stray answer"))
	manager.MarkCurrent()
	manager.Append(llm.UserMessage("prompt"))
	manager.Append(llm.AssistantMessage("answer"))

	messages, err := manager.Messages(context.Background())
	if err == nil {
		t.Fatal("Messages() error = nil, want budget exceeded")
	}
	if len(messages) != 2 || messages[0].Text() != "prompt" {
		t.Errorf("Messages() = %d messages, want the current exchange", len(messages))
	}
}

func TestTruncating_OnlyCurrentExchange(t *testing.T) {
	t.Parallel()

	estimator := &mockTokenEstimator{tokensPerMessage: 100}
	manager := NewTruncating(100, estimator)
	manager.Append(llm.UserMessage("prompt"))
	manager.Append(llm.AssistantMessage("answer"))

	messages, err := manager.Messages(context.Background())
	if err == nil {
		t.Error("Messages() error = nil, want budget exceeded")
	}
	if len(messages) != 2 {
		t.Errorf("Messages() returned %d messages, want all 2", len(messages))
	}
}

func TestTruncating_RecordUsageUsesReturnedMessages(t *testing.T) {
	t.Parallel()

	estimator := &mockTokenEstimator{tokensPerMessage: 100}
	manager := NewTruncating(500, estimator)
	manager.RecordUsage(llm.Usage{InputTokens: 10})
	if len(estimator.recorded) != 0 {
		t.Fatal("RecordUsage before Messages reached the estimator")
	}

	for _, text := range []string{"a", "b", "c"} {
		manager.Append(llm.UserMessage(text))
		manager.Append(llm.AssistantMessage(text))
	}
	if _, err := manager.Messages(context.Background()); err != nil {
		t.Fatal(err)
	}
	manager.RecordUsage(llm.Usage{InputTokens: 900})
	if len(estimator.recorded) != 1 || estimator.recorded[0] != 4 {
		t.Errorf("recorded = %v, want one call with the 4 returned messages", estimator.recorded)
	}
}

func TestUnbounded(t *testing.T) {
	t.Parallel()

	var manager Unbounded
	for range 50 {
		manager.Append(llm.UserMessage("again"))
	}
	messages, err := manager.Messages(context.Background())
	if err != nil || len(messages) != 50 {
		t.Errorf("Messages() = %d, %v; want 50, nil", len(messages), err)
	}
}
