// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desktop

import (
	"errors"
	"fmt"
)

// ErrFrameUpdateTimeout is returned when no frame update arrived after
// every allowed update request.
var ErrFrameUpdateTimeout = errors.New("desktop: frame update timed out")

// ErrNotConnected is returned by operations that need a live
// connection when the session has none.
var ErrNotConnected = errors.New("desktop: session not connected")

// ErrSessionClosed is returned when a session was closed while an
// operation on it was in progress.
var ErrSessionClosed = errors.New("desktop: session closed")

// ConnectionError reports that connecting to a target failed on every
// allowed attempt.
type ConnectionError struct {
	ID       string
	Attempts int
	Err      error
}

func (err *ConnectionError) Error() string {
	return fmt.Sprintf("desktop: connecting %s failed after %d attempts: %v", err.ID, err.Attempts, err.Err)
}

func (err *ConnectionError) Unwrap() error { return err.Err }
