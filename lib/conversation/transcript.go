// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import (
	"encoding/json"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/deskpilot/lib/action"
	"github.com/bureau-foundation/deskpilot/lib/chatstore"
	"github.com/bureau-foundation/deskpilot/lib/llm"
	"github.com/bureau-foundation/deskpilot/lib/screenshot"
)

// emptyContent stands in for a stored user turn without text, which
// providers reject.
const emptyContent = "empty"

// descriptorPattern matches one action descriptor such as
// <left_click>10,20</left_click>. RE2 has no backreferences, so the
// closing name is checked by the caller.
var descriptorPattern = regexp.MustCompile(`(?s)<(\w+)>(.*?)</(\w+)>`)

// replayAssistant rebuilds the messages of an assistant round from its
// content. Descriptors of computer actions become tool_use blocks,
// answered by a following user message of tool results; the last
// result carries image. Recorded tool calls supply the original ids
// and inputs when their descriptor matches; other descriptors get a
// synthetic id and an input rebuilt from the descriptor text.
// Unrecognized tags, such as warnings, stay text.
func replayAssistant(content string, recorded []chatstore.ToolCall, image *llm.Image) []llm.Message {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var blocks, results []llm.ContentBlock
	appendText := func(text string) {
		if text = strings.TrimSpace(text); text != "" {
			blocks = append(blocks, llm.TextBlock(text))
		}
	}
	appendCall := func(call chatstore.ToolCall) {
		blocks = append(blocks, llm.ToolUseBlock(call.ID, call.Name, call.Input))
		results = append(results, llm.ToolResultBlock(call.ID, call.Descriptor, nil, false))
	}

	next := 0
	position := 0
	for _, match := range descriptorPattern.FindAllStringSubmatchIndex(content, -1) {
		name := content[match[2]:match[3]]
		if name != content[match[6]:match[7]] || !action.Kind(name).Valid() {
			continue
		}
		appendText(content[position:match[0]])
		position = match[1]

		descriptor := content[match[0]:match[1]]
		if next < len(recorded) && recorded[next].Descriptor == descriptor {
			appendCall(recorded[next])
			next++
			continue
		}
		appendCall(chatstore.ToolCall{
			ID:         newToolUseID(),
			Name:       ToolName,
			Input:      descriptorInput(action.Kind(name), content[match[4]:match[5]]),
			Descriptor: descriptor,
		})
	}
	appendText(content[position:])
	for _, call := range recorded[next:] {
		appendCall(call)
	}

	messages := []llm.Message{{Role: llm.RoleAssistant, Content: blocks}}
	switch {
	case len(results) > 0:
		results[len(results)-1].ToolResult.Image = image
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: results})
	case image != nil:
		messages = append(messages, llm.Message{
			Role:    llm.RoleUser,
			Content: []llm.ContentBlock{llm.ImageBlock(image.MediaType, image.Data)},
		})
	}
	return messages
}

// replayUser rebuilds a stored user turn.
func replayUser(content string, image *llm.Image) llm.Message {
	if strings.TrimSpace(content) == "" {
		content = emptyContent
	}
	message := llm.UserMessage(content)
	if image != nil {
		message.Content = append(message.Content, llm.ImageBlock(image.MediaType, image.Data))
	}
	return message
}

// descriptorInput reconstructs computer tool arguments from the body
// of an action descriptor.
func descriptorInput(kind action.Kind, body string) json.RawMessage {
	input := map[string]any{"action": string(kind)}
	switch kind {
	case action.Type, action.Key:
		input["text"] = body
	case action.MouseMove, action.LeftClickDrag,
		action.LeftClick, action.RightClick, action.MiddleClick, action.DoubleClick:
		if x, y, ok := parseCoordinate(body); ok {
			input["coordinate"] = []int{x, y}
		}
	}
	data, err := json.Marshal(input)
	if err != nil {
		return json.RawMessage(`{"action":"` + string(kind) + `"}`)
	}
	return data
}

func parseCoordinate(body string) (int, int, bool) {
	xText, yText, found := strings.Cut(body, ",")
	if !found {
		return 0, 0, false
	}
	x, err := strconv.Atoi(strings.TrimSpace(xText))
	if err != nil {
		return 0, 0, false
	}
	y, err := strconv.Atoi(strings.TrimSpace(yText))
	if err != nil {
		return 0, 0, false
	}
	return x, y, true
}

// newToolUseID returns an id in the shape providers issue.
func newToolUseID() string {
	return "toolu_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// screenshotImage returns the JPEG behind descriptor, from memory or
// from its file. The placeholder and unreadable files yield nil.
func screenshotImage(descriptor *screenshot.Descriptor) *llm.Image {
	if descriptor == nil || descriptor.Placeholder {
		return nil
	}
	data := descriptor.Data
	if len(data) == 0 && descriptor.Path != "" {
		var err error
		if data, err = os.ReadFile(descriptor.Path); err != nil {
			return nil
		}
	}
	if len(data) == 0 {
		return nil
	}
	return &llm.Image{MediaType: "image/jpeg", Data: data}
}
