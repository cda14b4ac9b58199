// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import "github.com/bureau-foundation/deskpilot/lib/llm"

// turnGroup is a contiguous run of messages evicted as a unit. It
// starts at a user message with text (a prompt, not tool results or a
// bare screenshot) and runs until the next one.
//
// Examples of a single turn group:
//   - user(text, image) → assistant(text)
//   - user(text, image) → assistant(tool_use) → user(tool_result with image) → assistant(text)
//   - user(text, image) → assistant(text) → user(image)
type turnGroup struct {
	startIndex int // inclusive
	endIndex   int // exclusive
}

// identifyTurnGroups partitions messages into turn groups. Messages
// before the first user text message belong to no group. Returns nil
// if no message starts a group.
func identifyTurnGroups(messages []llm.Message) []turnGroup {
	var groups []turnGroup
	currentStart := -1

	for i, message := range messages {
		if message.Role == llm.RoleUser && messageHasTextContent(message) {
			if currentStart >= 0 {
				groups = append(groups, turnGroup{startIndex: currentStart, endIndex: i})
			}
			currentStart = i
		}
	}
	if currentStart >= 0 {
		groups = append(groups, turnGroup{startIndex: currentStart, endIndex: len(messages)})
	}
	return groups
}

func messageHasTextContent(message llm.Message) bool {
	for _, block := range message.Content {
		if block.Type == llm.ContentText {
			return true
		}
	}
	return false
}

// messageCharCount returns the characters of a message's text, tool
// inputs, and tool result text, plus a fixed 20 for the role and JSON
// framing. Images are counted by messageImageCount instead.
func messageCharCount(message llm.Message) int {
	count := 0
	for _, block := range message.Content {
		switch block.Type {
		case llm.ContentText:
			count += len(block.Text)
		case llm.ContentToolUse:
			if block.ToolUse != nil {
				count += len(block.ToolUse.ID)
				count += len(block.ToolUse.Name)
				count += len(block.ToolUse.Input)
			}
		case llm.ContentToolResult:
			if block.ToolResult != nil {
				count += len(block.ToolResult.Content)
				count += len(block.ToolResult.ToolUseID)
			}
		}
	}
	return count + 20
}

// messageImageCount returns the images in a message, inline or
// attached to tool results.
func messageImageCount(message llm.Message) int {
	count := 0
	for _, block := range message.Content {
		switch {
		case block.Type == llm.ContentImage && block.Image != nil:
			count++
		case block.Type == llm.ContentToolResult && block.ToolResult != nil && block.ToolResult.Image != nil:
			count++
		}
	}
	return count
}

func messagesCharCount(messages []llm.Message) int {
	total := 0
	for i := range messages {
		total += messageCharCount(messages[i])
	}
	return total
}

func messagesImageCount(messages []llm.Message) int {
	total := 0
	for i := range messages {
		total += messageImageCount(messages[i])
	}
	return total
}
