// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desktop

import (
	"sync"
	"time"

	"github.com/bureau-foundation/deskpilot/lib/action"
	"github.com/bureau-foundation/deskpilot/lib/keysym"
	"github.com/bureau-foundation/deskpilot/lib/rfb"
)

// Status is a session's connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Session is the state kept for one target id. It implements
// action.Handle against its current connection.
type Session struct {
	id string

	// connectMu serializes the connect state machine for this id.
	// It is held for the whole of a connect-with-retry loop.
	connectMu sync.Mutex

	mu                sync.Mutex
	status            Status
	conn              rfb.Conn
	watch             *rfb.Subscription
	cursor            action.Point
	reconnectAttempts int
	lastFrameUpdate   time.Time
	lastLatestWrite   time.Time
	frame             *FrameBuffer
	closed            bool
}

// ID returns the target id.
func (session *Session) ID() string { return session.id }

// Status returns the current connection state.
func (session *Session) Status() Status {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.status
}

// Conn returns the live connection, or nil.
func (session *Session) Conn() rfb.Conn {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.conn
}

// ReconnectAttempts returns the number of failed attempts in the
// current connect loop.
func (session *Session) ReconnectAttempts() int {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.reconnectAttempts
}

// LastFrameUpdate returns when a remote frame was last copied into the
// frame buffer. Zero until the first one arrives.
func (session *Session) LastFrameUpdate() time.Time {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.lastFrameUpdate
}

// Frame returns a copy of the frame buffer and whether one exists.
func (session *Session) Frame() (FrameBuffer, bool) {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.frame == nil {
		return FrameBuffer{}, false
	}
	return session.frame.Snapshot(), true
}

// PointerEvent sends a pointer event on the live connection.
func (session *Session) PointerEvent(x, y int, buttons rfb.ButtonMask) error {
	conn := session.Conn()
	if conn == nil {
		return action.ErrNoConnection
	}
	return conn.PointerEvent(x, y, buttons)
}

// KeyEvent sends a key event on the live connection.
func (session *Session) KeyEvent(key keysym.Keysym, down bool) error {
	conn := session.Conn()
	if conn == nil {
		return action.ErrNoConnection
	}
	return conn.KeyEvent(key, down)
}

// Cursor returns the last pointer position sent.
func (session *Session) Cursor() action.Point {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.cursor
}

// SetCursor records the pointer position.
func (session *Session) SetCursor(point action.Point) {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.cursor = point
}

func (session *Session) setStatus(status Status) {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.status = status
}

func (session *Session) isClosed() bool {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.closed
}

// detach removes the connection and its watch subscription from the
// session and returns them for the caller to close.
func (session *Session) detach() (rfb.Conn, *rfb.Subscription) {
	session.mu.Lock()
	defer session.mu.Unlock()
	conn, watch := session.conn, session.watch
	session.conn, session.watch = nil, nil
	return conn, watch
}
