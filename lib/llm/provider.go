// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Provider is the interface for LLM API backends. Implementations
// translate between the common types in this package and each
// vendor's wire format.
type Provider interface {
	// Stream sends a request and returns an [EventStream] that yields
	// normalized events as they arrive. The caller must call
	// [EventStream.Close] when done, even if iteration ended early.
	Stream(ctx context.Context, request Request) (*EventStream, error)
}

// ApologyText is the text synthesized for a stream that ended without
// producing any text or tool call.
const ApologyText = "I apologize, but I was unable to generate a response. Please try again."

// nextFunc is a provider's raw iteration function. It returns io.EOF
// when the stream is complete; any other error is a fault.
type nextFunc func() (StreamEvent, error)

// EventStream normalizes a provider's events. Next yields events in
// arrival order and then io.EOF; it never returns any other error.
// A provider fault becomes a terminal EventError, and a stream that
// produced neither text nor a tool call yields ApologyText followed by
// EventStop.
//
// EventStream is not safe for concurrent use.
type EventStream struct {
	next    nextFunc
	closer  io.Closer
	pending []StreamEvent

	produced bool
	stopped  bool
	done     bool

	mutex    sync.Mutex
	response Response
}

// NewEventStream creates an EventStream from a provider-specific
// iteration function and an io.Closer for the underlying resource
// (typically the HTTP response body).
func NewEventStream(next nextFunc, closer io.Closer) *EventStream {
	return &EventStream{next: next, closer: closer}
}

// Next returns the next event, or io.EOF once the stream is complete.
//
//	for {
//	    event, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    // switch on event.Type
//	}
func (stream *EventStream) Next() (StreamEvent, error) {
	for {
		if len(stream.pending) > 0 {
			event := stream.pending[0]
			stream.pending = stream.pending[1:]
			stream.accumulate(event)
			return event, nil
		}
		if stream.done {
			return StreamEvent{}, io.EOF
		}

		event, err := stream.next()
		if errors.Is(err, io.EOF) {
			stream.done = true
			if !stream.produced && !stream.stopped {
				stream.stopped = true
				stream.pending = append(stream.pending, TextEvent(ApologyText), StreamEvent{Type: EventStop})
			}
			continue
		}
		if err != nil {
			event = ErrorEvent(err)
		}

		switch event.Type {
		case EventText:
			if event.Text == "" {
				continue
			}
			stream.produced = true
		case EventToolCall:
			stream.produced = true
		case EventStop:
			if stream.stopped {
				continue
			}
			stream.stopped = true
			if !stream.produced {
				stream.produced = true
				stream.pending = append(stream.pending, TextEvent(ApologyText), event)
				continue
			}
		case EventError:
			stream.done = true
			stream.pending = nil
		}
		stream.accumulate(event)
		return event, nil
	}
}

// Response returns what has been accumulated so far.
func (stream *EventStream) Response() Response {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	response := stream.response
	response.ToolCalls = append([]ToolCall(nil), stream.response.ToolCalls...)
	return response
}

// Close releases the underlying resources (HTTP response body).
func (stream *EventStream) Close() error {
	if stream.closer != nil {
		return stream.closer.Close()
	}
	return nil
}

func (stream *EventStream) accumulate(event StreamEvent) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()

	switch event.Type {
	case EventText:
		stream.response.Text += event.Text
	case EventToolCall:
		stream.response.ToolCalls = append(stream.response.ToolCalls, *event.ToolCall)
	case EventStop:
		stream.response.Stopped = true
	}
}

// recordUsage merges the reported token counts into the response.
// Zero counts leave the previous value.
func (stream *EventStream) recordUsage(usage Usage) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	if usage.InputTokens > 0 {
		stream.response.Usage.InputTokens = usage.InputTokens
	}
	if usage.OutputTokens > 0 {
		stream.response.Usage.OutputTokens = usage.OutputTokens
	}
}

// TextEvent returns an EventText event.
func TextEvent(text string) StreamEvent {
	return StreamEvent{Type: EventText, Text: text}
}

// ErrorEvent returns an EventError event for err, wrapping it in a
// *StreamError unless it already is one.
func ErrorEvent(err error) StreamEvent {
	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		streamErr = &StreamError{Message: err.Error(), Err: err}
	}
	return StreamEvent{Type: EventError, Err: streamErr}
}

// toolCallEvent validates accumulated tool arguments. Empty arguments
// mean an empty object; anything else must be well-formed JSON.
func toolCallEvent(prefix, id, name, arguments string) StreamEvent {
	arguments = strings.TrimSpace(arguments)
	if arguments == "" {
		arguments = "{}"
	}
	if !json.Valid([]byte(arguments)) {
		return StreamEvent{Type: EventError, Err: &StreamError{
			Message: fmt.Sprintf("%s: malformed arguments for tool %q: %s", prefix, name, arguments),
		}}
	}
	return StreamEvent{
		Type:     EventToolCall,
		ToolCall: &ToolCall{ID: id, Name: name, Arguments: json.RawMessage(arguments)},
	}
}

// StreamError is a fault observed while reading a provider stream.
type StreamError struct {
	Message string
	Err     error
}

func (err *StreamError) Error() string {
	return "llm: stream error: " + err.Message
}

func (err *StreamError) Unwrap() error { return err.Err }

// ProviderError is returned when the LLM API responds with an error.
type ProviderError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Type is the provider-specific error type string
	// (e.g., "invalid_request_error", "rate_limit_error").
	Type string

	// Message is the human-readable error description.
	Message string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited returns true if the error is a rate limit response (HTTP 429).
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == http.StatusTooManyRequests
}

// IsOverloaded returns true if the error is a server overload response (HTTP 529).
func (err *ProviderError) IsOverloaded() bool {
	return err.StatusCode == 529
}

// doProviderRequest marshals wireRequest as JSON and POSTs it to
// endpoint for a streaming response. Returns a ProviderError for
// non-200 status codes.
//
// On success the caller is responsible for closing the response body.
// On error the body is already closed.
func doProviderRequest(ctx context.Context, httpClient *http.Client, endpoint string, wireRequest any, prefix string, headers map[string]string) (*http.Response, error) {
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: marshaling request: %w", prefix, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept", "text/event-stream")
	for name, value := range headers {
		httpRequest.Header.Set(name, value)
	}

	httpResponse, err := httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", prefix, err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		defer httpResponse.Body.Close()
		return nil, readProviderError(httpResponse)
	}

	return httpResponse, nil
}

// readProviderError parses an error response body in the common
// provider error format used by Anthropic and OpenAI:
// {"error":{"type":"...","message":"..."}}.
func readProviderError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: httpResponse.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}

	return &ProviderError{
		StatusCode: httpResponse.StatusCode,
		Message:    string(body),
	}
}

// wireStreamError extracts the message of an in-stream error payload
// in the {"error":{"type","message"}} shape.
func wireStreamError(prefix, data string) *StreamError {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(data), &envelope) == nil && envelope.Error.Message != "" {
		return &StreamError{Message: fmt.Sprintf("%s: %s: %s", prefix, envelope.Error.Type, envelope.Error.Message)}
	}
	return &StreamError{Message: fmt.Sprintf("%s: %s", prefix, data)}
}
