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
	// DefaultAnthropicBaseURL is the public Anthropic API.
	DefaultAnthropicBaseURL = "https://api.anthropic.com"

	anthropicVersion = "2023-06-01"
	anthropicPrefix  = "llm/anthropic"
)

// AnthropicConfig configures an Anthropic provider.
type AnthropicConfig struct {
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// BaseURL defaults to DefaultAnthropicBaseURL.
	BaseURL string

	// APIKey is sent as x-api-key. May be empty when a proxy in front
	// of BaseURL injects credentials.
	APIKey string
}

// Anthropic implements [Provider] for the Anthropic Messages API.
type Anthropic struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(config AnthropicConfig) *Anthropic {
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultAnthropicBaseURL
	}
	return &Anthropic{
		httpClient: config.HTTPClient,
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:     config.APIKey,
	}
}

// Stream sends a streaming request and returns an [EventStream].
func (provider *Anthropic) Stream(ctx context.Context, request Request) (*EventStream, error) {
	wireRequest := provider.buildRequest(request)

	httpResponse, err := doProviderRequest(ctx, provider.httpClient,
		provider.baseURL+"/v1/messages", wireRequest, anthropicPrefix, provider.headers(request))
	if err != nil {
		return nil, err
	}

	return provider.newEventStream(httpResponse.Body), nil
}

func (provider *Anthropic) headers(request Request) map[string]string {
	headers := map[string]string{"anthropic-version": anthropicVersion}
	if provider.apiKey != "" {
		headers["x-api-key"] = provider.apiKey
	}
	var betas []string
	for _, tool := range request.Tools {
		if beta, ok := computerUseBeta(tool.Type); ok {
			betas = append(betas, beta)
		}
	}
	if len(betas) > 0 {
		headers["anthropic-beta"] = strings.Join(betas, ",")
	}
	for name, value := range request.ExtraHeaders {
		headers[name] = value
	}
	return headers
}

// computerUseBeta maps a versioned computer tool type such as
// "computer_20241022" to its beta flag "computer-use-2024-10-22".
func computerUseBeta(toolType string) (string, bool) {
	date, ok := strings.CutPrefix(toolType, "computer_")
	if !ok || len(date) != 8 {
		return "", false
	}
	return fmt.Sprintf("computer-use-%s-%s-%s", date[:4], date[4:6], date[6:]), true
}

// buildRequest converts our types to Anthropic wire format.
func (provider *Anthropic) buildRequest(request Request) anthropicRequest {
	wireRequest := anthropicRequest{
		Model:       request.Model,
		MaxTokens:   request.MaxTokens,
		System:      request.System,
		Temperature: request.Temperature,
		Stream:      true,
	}

	for _, message := range request.Messages {
		wireRequest.Messages = append(wireRequest.Messages, toAnthropicMessage(message))
	}

	for _, tool := range request.Tools {
		wireTool := anthropicTool{Name: tool.Name}
		if tool.Type != "" {
			// Provider-managed tools send their type and display
			// geometry; the schema is defined by the provider.
			wireTool.Type = tool.Type
			wireTool.DisplayWidth = tool.DisplayWidth
			wireTool.DisplayHeight = tool.DisplayHeight
			wireTool.DisplayNumber = tool.DisplayNumber
		} else {
			wireTool.Description = tool.Description
			wireTool.InputSchema = tool.InputSchema
		}
		wireRequest.Tools = append(wireRequest.Tools, wireTool)
	}

	return wireRequest
}

// newEventStream creates an EventStream that parses Anthropic SSE
// events. Tool input arrives as input_json_delta fragments and is
// emitted as one tool call on content_block_stop. A body that ends
// before a tool_use block is closed is a transport fault.
func (provider *Anthropic) newEventStream(body io.ReadCloser) *EventStream {
	sseScanner := NewSSEScanner(body)
	partialBlocks := map[int]*anthropicPartialBlock{}
	var stream *EventStream

	next := func() (StreamEvent, error) {
		for {
			if !sseScanner.Next() {
				if err := sseScanner.Err(); err != nil {
					return StreamEvent{}, fmt.Errorf("%s: reading SSE: %w", anthropicPrefix, err)
				}
				for _, block := range partialBlocks {
					if block.blockType == "tool_use" {
						clear(partialBlocks)
						return StreamEvent{}, fmt.Errorf("%s: stream ended inside tool_use block %s", anthropicPrefix, block.toolUseID)
					}
				}
				return StreamEvent{}, io.EOF
			}

			sseEvent := sseScanner.Event()

			switch sseEvent.Type {
			case "message_start":
				var envelope struct {
					Message struct {
						Usage anthropicUsage `json:"usage"`
					} `json:"message"`
				}
				if err := json.Unmarshal([]byte(sseEvent.Data), &envelope); err != nil {
					return StreamEvent{}, fmt.Errorf("%s: parsing message_start: %w", anthropicPrefix, err)
				}
				stream.recordUsage(envelope.Message.Usage.usage())

			case "content_block_start":
				var envelope struct {
					Index        int `json:"index"`
					ContentBlock struct {
						Type string `json:"type"`
						ID   string `json:"id"`
						Name string `json:"name"`
						Text string `json:"text"`
					} `json:"content_block"`
				}
				if err := json.Unmarshal([]byte(sseEvent.Data), &envelope); err != nil {
					return StreamEvent{}, fmt.Errorf("%s: parsing content_block_start: %w", anthropicPrefix, err)
				}
				partialBlocks[envelope.Index] = &anthropicPartialBlock{
					blockType: envelope.ContentBlock.Type,
					toolUseID: envelope.ContentBlock.ID,
					toolName:  envelope.ContentBlock.Name,
				}
				if envelope.ContentBlock.Text != "" {
					return TextEvent(envelope.ContentBlock.Text), nil
				}

			case "content_block_delta":
				var envelope struct {
					Index int `json:"index"`
					Delta struct {
						Type        string `json:"type"`
						Text        string `json:"text"`
						PartialJSON string `json:"partial_json"`
					} `json:"delta"`
				}
				if err := json.Unmarshal([]byte(sseEvent.Data), &envelope); err != nil {
					return StreamEvent{}, fmt.Errorf("%s: parsing content_block_delta: %w", anthropicPrefix, err)
				}
				switch envelope.Delta.Type {
				case "text_delta":
					return TextEvent(envelope.Delta.Text), nil
				case "input_json_delta":
					if block, ok := partialBlocks[envelope.Index]; ok {
						block.inputJSON.WriteString(envelope.Delta.PartialJSON)
					}
				}

			case "content_block_stop":
				var envelope struct {
					Index int `json:"index"`
				}
				if err := json.Unmarshal([]byte(sseEvent.Data), &envelope); err != nil {
					return StreamEvent{}, fmt.Errorf("%s: parsing content_block_stop: %w", anthropicPrefix, err)
				}
				block, ok := partialBlocks[envelope.Index]
				delete(partialBlocks, envelope.Index)
				if ok && block.blockType == "tool_use" {
					return toolCallEvent(anthropicPrefix, block.toolUseID, block.toolName, block.inputJSON.String()), nil
				}

			case "message_delta":
				var envelope struct {
					Delta struct {
						StopReason string `json:"stop_reason"`
					} `json:"delta"`
					Usage anthropicUsage `json:"usage"`
				}
				if err := json.Unmarshal([]byte(sseEvent.Data), &envelope); err != nil {
					return StreamEvent{}, fmt.Errorf("%s: parsing message_delta: %w", anthropicPrefix, err)
				}
				stream.recordUsage(envelope.Usage.usage())
				if reason := envelope.Delta.StopReason; reason != "" && reason != "tool_use" {
					return StreamEvent{Type: EventStop}, nil
				}

			case "error":
				return StreamEvent{Type: EventError, Err: wireStreamError(anthropicPrefix, sseEvent.Data)}, nil

			default:
				// message_stop, ping, and event types added later
				// carry nothing to normalize.
			}
		}
	}

	stream = NewEventStream(next, body)
	return stream
}

// --- Anthropic wire types ---

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type      string                  `json:"type"`
	Text      string                  `json:"text,omitempty"`
	Source    *anthropicImageSource   `json:"source,omitempty"`
	ID        string                  `json:"id,omitempty"`
	Name      string                  `json:"name,omitempty"`
	Input     json.RawMessage         `json:"input,omitempty"`
	ToolUseID string                  `json:"tool_use_id,omitempty"`
	Content   []anthropicContentBlock `json:"content,omitempty"`
	IsError   bool                    `json:"is_error,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicTool struct {
	Type          string          `json:"type,omitempty"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	InputSchema   json.RawMessage `json:"input_schema,omitempty"`
	DisplayWidth  int             `json:"display_width_px,omitempty"`
	DisplayHeight int             `json:"display_height_px,omitempty"`
	DisplayNumber int             `json:"display_number,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func (usage anthropicUsage) usage() Usage {
	return Usage{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens}
}

type anthropicPartialBlock struct {
	blockType string
	toolUseID string
	toolName  string
	inputJSON strings.Builder
}

func toAnthropicMessage(message Message) anthropicMessage {
	wire := anthropicMessage{Role: string(message.Role)}
	for _, block := range message.Content {
		if wireBlock, ok := toAnthropicContentBlock(block); ok {
			wire.Content = append(wire.Content, wireBlock)
		}
	}
	return wire
}

func toAnthropicContentBlock(block ContentBlock) (anthropicContentBlock, bool) {
	switch block.Type {
	case ContentText:
		return anthropicContentBlock{Type: "text", Text: block.Text}, true
	case ContentImage:
		if block.Image != nil {
			return anthropicImage(block.Image), true
		}
	case ContentToolUse:
		if block.ToolUse != nil {
			input := block.ToolUse.Input
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			return anthropicContentBlock{
				Type:  "tool_use",
				ID:    block.ToolUse.ID,
				Name:  block.ToolUse.Name,
				Input: input,
			}, true
		}
	case ContentToolResult:
		if result := block.ToolResult; result != nil {
			wire := anthropicContentBlock{
				Type:      "tool_result",
				ToolUseID: result.ToolUseID,
				IsError:   result.IsError,
			}
			if result.Content != "" {
				wire.Content = append(wire.Content, anthropicContentBlock{Type: "text", Text: result.Content})
			}
			if result.Image != nil {
				wire.Content = append(wire.Content, anthropicImage(result.Image))
			}
			return wire, true
		}
	}
	return anthropicContentBlock{}, false
}

func anthropicImage(image *Image) anthropicContentBlock {
	return anthropicContentBlock{
		Type: "image",
		Source: &anthropicImageSource{
			Type:      "base64",
			MediaType: image.MediaType,
			Data:      base64.StdEncoding.EncodeToString(image.Data),
		},
	}
}
