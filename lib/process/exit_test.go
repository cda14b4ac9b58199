// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestReport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantOutput string
	}{
		{name: "nil", err: nil, wantCode: 0},
		{name: "plain", err: errors.New("boom"), wantCode: 1, wantOutput: "error: boom\n"},
		{name: "exit error", err: &ExitError{Code: 2}, wantCode: 2},
		{name: "wrapped exit error", err: fmt.Errorf("run: %w", &ExitError{Code: 3}), wantCode: 3},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			var output bytes.Buffer
			if code := Report(&output, test.err); code != test.wantCode {
				t.Errorf("Report code = %d, want %d", code, test.wantCode)
			}
			if got := output.String(); got != test.wantOutput {
				t.Errorf("Report output = %q, want %q", got, test.wantOutput)
			}
		})
	}
}
