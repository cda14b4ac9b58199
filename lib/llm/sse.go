// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bufio"
	"io"
	"strings"
)

// maxSSELine bounds one SSE line. Tool arguments arrive in small
// fragments, so lines are short in practice.
const maxSSELine = 1 << 20

// SSEEvent is a single Server-Sent Event.
type SSEEvent struct {
	// Type is the "event:" field, empty for the default event type.
	Type string

	// Data joins the event's "data:" lines with newlines.
	Data string
}

// SSEScanner reads Server-Sent Events from an [io.Reader]. Events end
// at a blank line; comment lines and fields other than "event" and
// "data" are ignored. A final event without a trailing blank line is
// still delivered.
//
//	scanner := NewSSEScanner(body)
//	for scanner.Next() {
//	    event := scanner.Event()
//	}
//	if err := scanner.Err(); err != nil {
//	    // transport failure
//	}
type SSEScanner struct {
	lines   *bufio.Scanner
	current SSEEvent
	err     error
}

// NewSSEScanner creates a scanner that reads SSE events from reader.
func NewSSEScanner(reader io.Reader) *SSEScanner {
	lines := bufio.NewScanner(reader)
	lines.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &SSEScanner{lines: lines}
}

// Next advances to the next event. It returns false at the end of the
// stream or on a read error; see [SSEScanner.Err].
func (scanner *SSEScanner) Next() bool {
	scanner.current = SSEEvent{}
	if scanner.err != nil {
		return false
	}

	var eventType string
	var data []string
	hasData := false

	for scanner.lines.Scan() {
		line := strings.TrimSuffix(scanner.lines.Text(), "\r")
		if line == "" {
			if hasData {
				scanner.current = SSEEvent{Type: eventType, Data: strings.Join(data, "\n")}
				return true
			}
			eventType = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			data = append(data, value)
			hasData = true
		case "event":
			eventType = value
		}
	}

	scanner.err = scanner.lines.Err()
	if scanner.err == nil {
		scanner.err = io.EOF
	}
	if hasData {
		scanner.current = SSEEvent{Type: eventType, Data: strings.Join(data, "\n")}
		return true
	}
	return false
}

// Event returns the event read by the last successful Next.
func (scanner *SSEScanner) Event() SSEEvent {
	return scanner.current
}

// Err returns the read error that ended scanning, or nil for a clean
// end of stream.
func (scanner *SSEScanner) Err() error {
	if scanner.err == io.EOF {
		return nil
	}
	return scanner.err
}
