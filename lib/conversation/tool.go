// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"encoding/json"

	"github.com/bureau-foundation/deskpilot/lib/action"
	"github.com/bureau-foundation/deskpilot/lib/llm"
)

// ToolName is the one tool the agent may call.
const ToolName = "computer"

// ComputerToolType is the provider-managed computer-use tool version.
const ComputerToolType = "computer_20241022"

// computerToolSchema describes the tool's arguments for providers that
// take the tool as a plain function.
var computerToolSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "action": {
      "type": "string",
      "enum": ["key", "type", "mouse_move", "left_click", "left_click_drag", "right_click", "middle_click", "double_click", "screenshot", "cursor_position"]
    },
    "coordinate": {"type": "array", "items": {"type": "integer"}, "minItems": 2, "maxItems": 2},
    "start_coordinate": {"type": "array", "items": {"type": "integer"}, "minItems": 2, "maxItems": 2},
    "text": {"type": "string"}
  },
  "required": ["action"]
}`)

// ComputerTool returns the computer tool definition for a display of
// the given size.
func ComputerTool(width, height int) llm.ToolDefinition {
	return llm.ToolDefinition{
		Type:          ComputerToolType,
		Name:          ToolName,
		Description:   "Use a mouse and keyboard to interact with a computer, and take screenshots. Coordinates are pixels from the top-left corner of the screen.",
		InputSchema:   computerToolSchema,
		DisplayWidth:  width,
		DisplayHeight: height,
		DisplayNumber: 1,
	}
}

// validateToolCall checks that call names the computer tool and that
// its arguments describe an executable action.
func validateToolCall(call llm.ToolCall) (action.Request, error) {
	if call.Name != ToolName {
		return action.Request{}, &ToolValidationError{
			Tool:   call.Name,
			Reason: "unsupported tool; only " + ToolName + " is available",
		}
	}
	if len(call.Arguments) == 0 {
		return action.Request{}, &ToolValidationError{Tool: call.Name, Reason: "incomplete arguments"}
	}
	request, err := action.ParseToolInput(call.Arguments)
	if err != nil {
		return action.Request{}, &ToolValidationError{Tool: call.Name, Reason: err.Error(), Err: err}
	}
	return request, nil
}
