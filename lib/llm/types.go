// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType discriminates ContentBlock.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentImage      ContentType = "image"
	ContentToolUse    ContentType = "tool_use"
	ContentToolResult ContentType = "tool_result"
)

// ContentBlock is one part of a message. Type selects which of the
// pointer fields is set; text blocks use Text.
type ContentBlock struct {
	Type       ContentType
	Text       string
	Image      *Image
	ToolUse    *ToolUse
	ToolResult *ToolResult
}

// Image is an inline image. Data holds the encoded bytes; providers
// base64-encode them on the wire.
type Image struct {
	MediaType string
	Data      []byte
}

// ToolUse is a tool invocation made by the assistant.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult answers a ToolUse. Image, when set, is shown to the model
// alongside the text content.
type ToolResult struct {
	ToolUseID string
	Content   string
	Image     *Image
	IsError   bool
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// ImageBlock returns an image content block.
func ImageBlock(mediaType string, data []byte) ContentBlock {
	return ContentBlock{Type: ContentImage, Image: &Image{MediaType: mediaType, Data: data}}
}

// ToolUseBlock returns a tool_use content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: ContentToolUse, ToolUse: &ToolUse{ID: id, Name: name, Input: input}}
}

// ToolResultBlock returns a tool_result content block.
func ToolResultBlock(toolUseID, content string, image *Image, isError bool) ContentBlock {
	return ContentBlock{
		Type: ContentToolResult,
		ToolResult: &ToolResult{
			ToolUseID: toolUseID,
			Content:   content,
			Image:     image,
			IsError:   isError,
		},
	}
}

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// UserMessage returns a user message with a single text block.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage returns an assistant message with a single text
// block.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

// Text concatenates the message's text blocks.
func (message Message) Text() string {
	var builder strings.Builder
	for _, block := range message.Content {
		if block.Type == ContentText {
			builder.WriteString(block.Text)
		}
	}
	return builder.String()
}

// ToolDefinition describes a tool offered to the model. A non-empty
// Type marks a provider-managed tool (such as "computer_20241022"),
// for which providers that understand it send only the type, the name,
// and the display geometry.
type ToolDefinition struct {
	Type        string
	Name        string
	Description string
	InputSchema json.RawMessage

	DisplayWidth  int
	DisplayHeight int
	DisplayNumber int
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model    string
	System   string
	Messages []Message
	Tools    []ToolDefinition

	MaxTokens   int
	Temperature *float64

	// ExtraHeaders are added to the HTTP request as-is.
	ExtraHeaders map[string]string
}

// StreamEventType discriminates StreamEvent.
type StreamEventType int

const (
	// EventText carries a text increment in Text.
	EventText StreamEventType = iota
	// EventToolCall carries one complete tool invocation whose
	// arguments are well-formed JSON.
	EventToolCall
	// EventStop reports that generation finished for a reason other
	// than a tool call.
	EventStop
	// EventError is terminal and carries a *StreamError in Err.
	EventError
)

func (eventType StreamEventType) String() string {
	switch eventType {
	case EventText:
		return "text"
	case EventToolCall:
		return "tool_call"
	case EventStop:
		return "stop"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("StreamEventType(%d)", int(eventType))
	}
}

// ToolCall is a tool invocation received from a stream.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// StreamEvent is one normalized streaming event.
type StreamEvent struct {
	Type     StreamEventType
	Text     string
	ToolCall *ToolCall
	Err      error
}

// Response is what a stream produced, accumulated by EventStream.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Stopped   bool
	Usage     Usage
}

// Usage is the token accounting a provider reported for a request.
// Fields are zero when the provider does not report them.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}
