// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rfbtest provides an in-memory rfb.Conn and rfb.Dialer that
// record every input event and let tests script notifications and
// failures.
package rfbtest

import (
	"context"
	"errors"
	"sync"

	"github.com/bureau-foundation/deskpilot/lib/keysym"
	"github.com/bureau-foundation/deskpilot/lib/rfb"
)

// InputKind distinguishes recorded inputs.
type InputKind int

const (
	Pointer InputKind = iota
	Key
)

// Input is one recorded pointer or key event.
type Input struct {
	Kind    InputKind
	X, Y    int
	Buttons rfb.ButtonMask
	Keysym  keysym.Keysym
	Down    bool
}

// Conn is a scripted rfb.Conn.
type Conn struct {
	notifier *rfb.Notifier

	mu             sync.Mutex
	inputs         []Input
	updateRequests int
	frame          rfb.Frame
	closed         bool
	closeErr       error
	pointerFault   func(x, y int, buttons rfb.ButtonMask) error
	keyFault       func(key keysym.Keysym, down bool) error
	onUpdate       func(conn *Conn)
}

// NewConn returns a connection whose remote desktop has the given
// geometry.
func NewConn(width, height int) *Conn {
	return &Conn{
		notifier: rfb.NewNotifier(),
		frame:    rfb.NewFrame(width, height),
	}
}

// FailPointer installs a hook consulted before each pointer event is
// recorded. A non-nil return fails the event.
func (conn *Conn) FailPointer(fault func(x, y int, buttons rfb.ButtonMask) error) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.pointerFault = fault
}

// FailKey installs a hook consulted before each key event is recorded.
func (conn *Conn) FailKey(fault func(key keysym.Keysym, down bool) error) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.keyFault = fault
}

// OnUpdateRequest installs a hook run, outside the lock, after each
// framebuffer update request. Use it to answer requests, typically
// with AnswerUpdates.
func (conn *Conn) OnUpdateRequest(hook func(conn *Conn)) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.onUpdate = hook
}

// AnswerUpdates makes every update request emit a frame update.
func (conn *Conn) AnswerUpdates() {
	conn.OnUpdateRequest(func(conn *Conn) {
		conn.Emit(rfb.Event{Kind: rfb.EventFrameUpdated})
	})
}

// SetFrame replaces the remote frame, changing the reported geometry
// to the frame's.
func (conn *Conn) SetFrame(frame rfb.Frame) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.frame = frame.Clone()
}

// SetCloseError makes Close return err.
func (conn *Conn) SetCloseError(err error) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.closeErr = err
}

// Emit delivers a notification to subscribers.
func (conn *Conn) Emit(event rfb.Event) { conn.notifier.Emit(event) }

// Inputs returns every recorded pointer and key event in order.
func (conn *Conn) Inputs() []Input {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return append([]Input(nil), conn.inputs...)
}

// Keys returns only the recorded key events.
func (conn *Conn) Keys() []Input {
	var keys []Input
	for _, input := range conn.Inputs() {
		if input.Kind == Key {
			keys = append(keys, input)
		}
	}
	return keys
}

// UpdateRequests returns the number of update requests received.
func (conn *Conn) UpdateRequests() int {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.updateRequests
}

// Closed reports whether Close was called.
func (conn *Conn) Closed() bool {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.closed
}

func (conn *Conn) PointerEvent(x, y int, buttons rfb.ButtonMask) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if err := conn.usableLocked(); err != nil {
		return err
	}
	if conn.pointerFault != nil {
		if err := conn.pointerFault(x, y, buttons); err != nil {
			return err
		}
	}
	conn.inputs = append(conn.inputs, Input{Kind: Pointer, X: x, Y: y, Buttons: buttons})
	return nil
}

func (conn *Conn) KeyEvent(key keysym.Keysym, down bool) error {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if err := conn.usableLocked(); err != nil {
		return err
	}
	if conn.keyFault != nil {
		if err := conn.keyFault(key, down); err != nil {
			return err
		}
	}
	conn.inputs = append(conn.inputs, Input{Kind: Key, Keysym: key, Down: down})
	return nil
}

func (conn *Conn) RequestFramebufferUpdate(incremental bool, x, y, width, height int) error {
	conn.mu.Lock()
	if err := conn.usableLocked(); err != nil {
		conn.mu.Unlock()
		return err
	}
	conn.updateRequests++
	hook := conn.onUpdate
	conn.mu.Unlock()

	if hook != nil {
		hook(conn)
	}
	return nil
}

func (conn *Conn) Framebuffer() rfb.Frame {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.frame.Clone()
}

func (conn *Conn) Size() (int, int) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.frame.Width, conn.frame.Height
}

func (conn *Conn) Subscribe(kinds ...rfb.EventKind) *rfb.Subscription {
	return conn.notifier.Subscribe(kinds...)
}

func (conn *Conn) ListenerCount() int { return conn.notifier.ListenerCount() }

func (conn *Conn) Close() error {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.closed = true
	return conn.closeErr
}

// ErrClosed is returned by input methods after Close.
var ErrClosed = errors.New("rfbtest: connection closed")

func (conn *Conn) usableLocked() error {
	if conn.closed {
		return ErrClosed
	}
	return nil
}

// Dialer is a scripted rfb.Dialer.
type Dialer struct {
	mu        sync.Mutex
	factory   func(attempt int, endpoint rfb.Endpoint) (*Conn, error)
	attempts  int
	endpoints []rfb.Endpoint
	conns     []*Conn
}

// NewDialer returns a Dialer that calls factory for every attempt,
// numbering attempts from 1. A nil factory produces 1280x720
// connections that answer every update request.
func NewDialer(factory func(attempt int, endpoint rfb.Endpoint) (*Conn, error)) *Dialer {
	if factory == nil {
		factory = func(int, rfb.Endpoint) (*Conn, error) {
			conn := NewConn(1280, 720)
			conn.AnswerUpdates()
			return conn, nil
		}
	}
	return &Dialer{factory: factory}
}

func (dialer *Dialer) Dial(ctx context.Context, endpoint rfb.Endpoint) (rfb.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dialer.mu.Lock()
	dialer.attempts++
	attempt := dialer.attempts
	dialer.endpoints = append(dialer.endpoints, endpoint)
	dialer.mu.Unlock()

	conn, err := dialer.factory(attempt, endpoint)
	if err != nil {
		return nil, err
	}
	dialer.mu.Lock()
	dialer.conns = append(dialer.conns, conn)
	dialer.mu.Unlock()
	return conn, nil
}

// Attempts returns the number of Dial calls.
func (dialer *Dialer) Attempts() int {
	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	return dialer.attempts
}

// Endpoints returns the endpoint of every Dial call.
func (dialer *Dialer) Endpoints() []rfb.Endpoint {
	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	return append([]rfb.Endpoint(nil), dialer.endpoints...)
}

// Conns returns every connection handed out, oldest first.
func (dialer *Dialer) Conns() []*Conn {
	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	return append([]*Conn(nil), dialer.conns...)
}
