// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Kind names a semantic action. The values are the "action" strings of
// the computer tool.
type Kind string

const (
	MouseMove      Kind = "mouse_move"
	LeftClick      Kind = "left_click"
	RightClick     Kind = "right_click"
	MiddleClick    Kind = "middle_click"
	DoubleClick    Kind = "double_click"
	LeftClickDrag  Kind = "left_click_drag"
	Type           Kind = "type"
	Key            Kind = "key"
	Screenshot     Kind = "screenshot"
	CursorPosition Kind = "cursor_position"
)

var kinds = map[Kind]bool{
	MouseMove: true, LeftClick: true, RightClick: true, MiddleClick: true,
	DoubleClick: true, LeftClickDrag: true, Type: true, Key: true,
	Screenshot: true, CursorPosition: true,
}

// Valid reports whether kind is a known action.
func (kind Kind) Valid() bool { return kinds[kind] }

// Point is a screen coordinate in remote desktop pixels.
type Point struct {
	X, Y int
}

// Request is one semantic action with its kind-specific parameters.
type Request struct {
	Kind Kind

	// Coordinate is the target of mouse_move and left_click_drag, and
	// an optional position to move to before a click.
	Coordinate *Point

	// StartCoordinate optionally overrides the tracked cursor as the
	// press point of a drag.
	StartCoordinate *Point

	// Path lists intermediate drag waypoints visited, button held,
	// between the start and Coordinate.
	Path []Point

	// Text is the string to type, or the "+"-joined key combo.
	Text string
}

// ErrMissingAction is returned for tool input without an action.
var ErrMissingAction = errors.New("action: tool input has no action")

// toolInput is the argument object of the computer tool. Coordinates
// are decoded as numbers so that models emitting 412.0 still parse.
type toolInput struct {
	Action          string      `json:"action"`
	Coordinate      []float64   `json:"coordinate,omitempty"`
	StartCoordinate []float64   `json:"start_coordinate,omitempty"`
	Path            [][]float64 `json:"path,omitempty"`
	Text            *string     `json:"text,omitempty"`
}

// ParseToolInput decodes and validates computer tool arguments.
func ParseToolInput(arguments json.RawMessage) (Request, error) {
	var input toolInput
	if err := json.Unmarshal(arguments, &input); err != nil {
		return Request{}, fmt.Errorf("action: parsing tool input: %w", err)
	}
	if input.Action == "" {
		return Request{}, ErrMissingAction
	}

	request := Request{Kind: Kind(input.Action)}
	if !request.Kind.Valid() {
		return Request{}, fmt.Errorf("action: unknown computer action %q", input.Action)
	}

	var err error
	if request.Coordinate, err = parsePoint("coordinate", input.Coordinate); err != nil {
		return Request{}, err
	}
	if request.StartCoordinate, err = parsePoint("start_coordinate", input.StartCoordinate); err != nil {
		return Request{}, err
	}
	for index, raw := range input.Path {
		point, err := parsePoint(fmt.Sprintf("path[%d]", index), raw)
		if err != nil {
			return Request{}, err
		}
		request.Path = append(request.Path, *point)
	}
	if input.Text != nil {
		request.Text = *input.Text
	}

	if err := request.Validate(); err != nil {
		return Request{}, err
	}
	return request, nil
}

// Validate checks that the parameters each kind requires are present.
func (request Request) Validate() error {
	switch request.Kind {
	case MouseMove, LeftClickDrag:
		if request.Coordinate == nil {
			return fmt.Errorf("action: %s requires coordinate", request.Kind)
		}
	case Type, Key:
		if request.Text == "" {
			return fmt.Errorf("action: %s requires text", request.Kind)
		}
	case LeftClick, RightClick, MiddleClick, DoubleClick, Screenshot, CursorPosition:
	default:
		return fmt.Errorf("action: unknown computer action %q", request.Kind)
	}
	return nil
}

func parsePoint(field string, raw []float64) (*Point, error) {
	if raw == nil {
		return nil, nil
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("action: %s must be [x, y], got %d values", field, len(raw))
	}
	for _, value := range raw {
		if value < 0 || math.IsNaN(value) || value > math.MaxUint16 {
			return nil, fmt.Errorf("action: %s value %v out of range", field, value)
		}
	}
	return &Point{X: int(math.Round(raw[0])), Y: int(math.Round(raw[1]))}, nil
}

// ErrNoConnection is returned when an action is attempted without a
// live connection handle.
var ErrNoConnection = errors.New("action: no remote desktop connection")

// UnknownKeyError reports a key name in a combo that is neither a
// modifier, a named key, nor a single character.
type UnknownKeyError struct {
	Key string
}

func (err *UnknownKeyError) Error() string {
	return fmt.Sprintf("action: unknown key %q", err.Key)
}

// ExecutionError wraps a protocol send failure with the action that
// was being executed.
type ExecutionError struct {
	Kind Kind
	Err  error
}

func (err *ExecutionError) Error() string {
	return fmt.Sprintf("action: executing %s: %v", err.Kind, err.Err)
}

func (err *ExecutionError) Unwrap() error { return err.Err }
