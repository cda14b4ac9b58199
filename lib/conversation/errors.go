// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package conversation

import "fmt"

// ToolValidationError reports a tool call that cannot be executed: an
// unsupported tool name, or arguments that do not describe a computer
// action.
type ToolValidationError struct {
	Tool   string
	Reason string
	Err    error
}

func (err *ToolValidationError) Error() string {
	return fmt.Sprintf("conversation: invalid %s tool call: %s", err.Tool, err.Reason)
}

func (err *ToolValidationError) Unwrap() error { return err.Err }
