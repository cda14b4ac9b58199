// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// DefaultOpenAIBaseURL is the public OpenAI API.
	DefaultOpenAIBaseURL = "https://api.openai.com"

	// DefaultOpenAITopP is the nucleus sampling value sent when the
	// configuration does not set one.
	DefaultOpenAITopP = 0.7

	openaiPrefix = "llm/openai"
)

// OpenAIConfig configures an OpenAI provider.
type OpenAIConfig struct {
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// BaseURL defaults to DefaultOpenAIBaseURL. Any server speaking
	// the Chat Completions wire format works.
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// TopP defaults to DefaultOpenAITopP.
	TopP *float64
}

// OpenAI implements [Provider] for the OpenAI Chat Completions API.
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	topP       float64
}

// NewOpenAI creates an OpenAI-compatible provider.
func NewOpenAI(config OpenAIConfig) *OpenAI {
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultOpenAIBaseURL
	}
	topP := DefaultOpenAITopP
	if config.TopP != nil {
		topP = *config.TopP
	}
	return &OpenAI{
		httpClient: config.HTTPClient,
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		topP:       topP,
	}
}

// Stream sends a streaming request and returns an [EventStream].
func (provider *OpenAI) Stream(ctx context.Context, request Request) (*EventStream, error) {
	wireRequest := provider.buildRequest(request)

	headers := map[string]string{}
	if provider.apiKey != "" {
		headers["Authorization"] = "Bearer " + provider.apiKey
	}
	for name, value := range request.ExtraHeaders {
		headers[name] = value
	}

	httpResponse, err := doProviderRequest(ctx, provider.httpClient,
		provider.baseURL+"/v1/chat/completions", wireRequest, openaiPrefix, headers)
	if err != nil {
		return nil, err
	}

	return provider.newEventStream(httpResponse.Body), nil
}

// buildRequest converts our types to the OpenAI wire format. Every
// tool is offered as a function with its input schema; provider-managed
// tool types have no OpenAI equivalent.
func (provider *OpenAI) buildRequest(request Request) openaiRequest {
	topP := provider.topP
	wireRequest := openaiRequest{
		Model:       request.Model,
		MaxTokens:   request.MaxTokens,
		Temperature: request.Temperature,
		TopP:        &topP,
		Stream:      true,
	}

	if request.System != "" {
		wireRequest.Messages = append(wireRequest.Messages, openaiMessage{
			Role:    "system",
			Content: openaiTextContent(request.System),
		})
	}

	for _, message := range request.Messages {
		wireRequest.Messages = append(wireRequest.Messages, toOpenAIMessages(message)...)
	}

	for _, tool := range request.Tools {
		wireRequest.Tools = append(wireRequest.Tools, openaiTool{
			Type: "function",
			Function: openaiToolDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	if len(wireRequest.Tools) > 0 {
		parallel := false
		wireRequest.ParallelToolCalls = &parallel
	}

	return wireRequest
}

// newEventStream creates an EventStream that parses OpenAI SSE chunks.
// Tool call fragments are keyed by index and flushed, in index order,
// when finish_reason arrives or the stream ends.
func (provider *OpenAI) newEventStream(body io.ReadCloser) *EventStream {
	sseScanner := NewSSEScanner(body)

	var partialToolCalls []*openaiPartialToolCall
	var pendingEvents []StreamEvent

	flushToolCalls := func() {
		for _, partial := range partialToolCalls {
			if partial == nil {
				continue
			}
			pendingEvents = append(pendingEvents,
				toolCallEvent(openaiPrefix, partial.id, partial.name, partial.arguments.String()))
		}
		partialToolCalls = nil
	}

	next := func() (StreamEvent, error) {
		for {
			if len(pendingEvents) > 0 {
				event := pendingEvents[0]
				pendingEvents = pendingEvents[1:]
				return event, nil
			}

			if !sseScanner.Next() {
				if err := sseScanner.Err(); err != nil {
					return StreamEvent{}, fmt.Errorf("%s: reading SSE: %w", openaiPrefix, err)
				}
				if len(partialToolCalls) > 0 {
					flushToolCalls()
					continue
				}
				return StreamEvent{}, io.EOF
			}

			sseEvent := sseScanner.Event()
			if sseEvent.Data == "[DONE]" {
				flushToolCalls()
				if len(pendingEvents) > 0 {
					continue
				}
				return StreamEvent{}, io.EOF
			}

			var chunk openaiStreamChunk
			if err := json.Unmarshal([]byte(sseEvent.Data), &chunk); err != nil {
				return StreamEvent{}, fmt.Errorf("%s: parsing stream chunk: %w", openaiPrefix, err)
			}
			if chunk.Error != nil {
				return StreamEvent{Type: EventError, Err: wireStreamError(openaiPrefix, sseEvent.Data)}, nil
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				pendingEvents = append(pendingEvents, TextEvent(choice.Delta.Content))
			}

			for _, toolCallDelta := range choice.Delta.ToolCalls {
				index := toolCallDelta.Index
				for len(partialToolCalls) <= index {
					partialToolCalls = append(partialToolCalls, nil)
				}
				partial := partialToolCalls[index]
				if partial == nil {
					partial = &openaiPartialToolCall{}
					partialToolCalls[index] = partial
				}
				if toolCallDelta.ID != "" {
					partial.id = toolCallDelta.ID
				}
				if toolCallDelta.Function != nil {
					if toolCallDelta.Function.Name != "" {
						partial.name = toolCallDelta.Function.Name
					}
					partial.arguments.WriteString(toolCallDelta.Function.Arguments)
				}
			}

			if choice.FinishReason != nil {
				flushToolCalls()
				if *choice.FinishReason != "tool_calls" {
					pendingEvents = append(pendingEvents, StreamEvent{Type: EventStop})
				}
			}
		}
	}

	return NewEventStream(next, body)
}

// --- OpenAI wire types ---
//
// Content is json.RawMessage because the wire field is polymorphic: a
// JSON string for text-only messages, an array of parts otherwise.

type openaiRequest struct {
	Model             string          `json:"model"`
	Messages          []openaiMessage `json:"messages"`
	Tools             []openaiTool    `json:"tools,omitempty"`
	ParallelToolCalls *bool           `json:"parallel_tool_calls,omitempty"`
	MaxTokens         int             `json:"max_tokens,omitempty"`
	Temperature       *float64        `json:"temperature,omitempty"`
	TopP              *float64        `json:"top_p,omitempty"`
	Stream            bool            `json:"stream,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    json.RawMessage  `json:"content,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openaiImageURL `json:"image_url,omitempty"`
}

type openaiImageURL struct {
	URL string `json:"url"`
}

type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiTool struct {
	Type     string               `json:"type"`
	Function openaiToolDefinition `json:"function"`
}

type openaiToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type openaiStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function *struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type openaiPartialToolCall struct {
	id        string
	name      string
	arguments strings.Builder
}

func openaiTextContent(text string) json.RawMessage {
	encoded, _ := json.Marshal(text)
	return encoded
}

func openaiPartsContent(parts []openaiContentPart) json.RawMessage {
	encoded, _ := json.Marshal(parts)
	return encoded
}

func openaiImagePart(image *Image) openaiContentPart {
	return openaiContentPart{
		Type: "image_url",
		ImageURL: &openaiImageURL{
			URL: "data:" + image.MediaType + ";base64," + base64.StdEncoding.EncodeToString(image.Data),
		},
	}
}

// toOpenAIMessages converts one message to one or more wire messages.
// Tool results become "tool" role messages, which must directly follow
// the assistant message that called them; images cannot travel in a
// tool message, so they follow in a user message.
func toOpenAIMessages(message Message) []openaiMessage {
	if message.Role == RoleAssistant {
		wire := openaiMessage{Role: "assistant"}
		if text := message.Text(); text != "" {
			wire.Content = openaiTextContent(text)
		}
		for _, block := range message.Content {
			if block.Type != ContentToolUse || block.ToolUse == nil {
				continue
			}
			arguments := string(block.ToolUse.Input)
			if arguments == "" {
				arguments = "{}"
			}
			wire.ToolCalls = append(wire.ToolCalls, openaiToolCall{
				ID:       block.ToolUse.ID,
				Type:     "function",
				Function: openaiToolFunction{Name: block.ToolUse.Name, Arguments: arguments},
			})
		}
		return []openaiMessage{wire}
	}

	var messages []openaiMessage
	var parts []openaiContentPart
	for _, block := range message.Content {
		switch block.Type {
		case ContentText:
			parts = append(parts, openaiContentPart{Type: "text", Text: block.Text})
		case ContentImage:
			if block.Image != nil {
				parts = append(parts, openaiImagePart(block.Image))
			}
		case ContentToolResult:
			if result := block.ToolResult; result != nil {
				content := result.Content
				if content == "" {
					content = "done"
				}
				messages = append(messages, openaiMessage{
					Role:       "tool",
					ToolCallID: result.ToolUseID,
					Content:    openaiTextContent(content),
				})
				if result.Image != nil {
					parts = append(parts, openaiImagePart(result.Image))
				}
			}
		}
	}
	if len(parts) > 0 {
		messages = append(messages, openaiMessage{Role: "user", Content: openaiPartsContent(parts)})
	}
	return messages
}
