// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rfb

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/bureau-foundation/deskpilot/lib/keysym"
)

// ButtonMask is the pointer button bitmask of an RFB PointerEvent.
// Bit 0 is the left button, bit 1 the middle, bit 2 the right.
type ButtonMask uint8

const (
	ButtonLeft ButtonMask = 1 << iota
	ButtonMiddle
	ButtonRight
)

// Channels is the number of bytes per pixel in a Frame.
const Channels = 4

// Frame is a snapshot of the remote framebuffer as packed RGBA.
// len(Pixels) == Width * Height * Channels.
type Frame struct {
	Width  int
	Height int
	Pixels []byte
}

// NewFrame allocates an opaque black frame of the given geometry.
func NewFrame(width, height int) Frame {
	frame := Frame{
		Width:  width,
		Height: height,
		Pixels: make([]byte, width*height*Channels),
	}
	for offset := 3; offset < len(frame.Pixels); offset += Channels {
		frame.Pixels[offset] = 0xFF
	}
	return frame
}

// Clone returns a deep copy of the frame.
func (frame Frame) Clone() Frame {
	frame.Pixels = append([]byte(nil), frame.Pixels...)
	return frame
}

// Endpoint addresses one RFB server.
type Endpoint struct {
	Host     string
	Port     int
	Password string
}

// Address returns host:port.
func (endpoint Endpoint) Address() string {
	return net.JoinHostPort(endpoint.Host, strconv.Itoa(endpoint.Port))
}

func (endpoint Endpoint) String() string {
	return fmt.Sprintf("rfb://%s", endpoint.Address())
}

// Conn is a live connection to a remote framebuffer. The input and
// update-request methods each return once the message is written to
// the transport, so successive calls reach the server in call order.
//
// Notifications (connected, first frame, frame updated, error,
// disconnect) are delivered to subscriptions; see [Notifier].
type Conn interface {
	// PointerEvent moves the pointer to (x, y) with the given buttons
	// held. A zero mask releases every button.
	PointerEvent(x, y int, buttons ButtonMask) error

	// KeyEvent presses (down) or releases a key.
	KeyEvent(key keysym.Keysym, down bool) error

	// RequestFramebufferUpdate asks the server to send the given
	// region. Completion arrives as an EventFrameUpdated notification.
	RequestFramebufferUpdate(incremental bool, x, y, width, height int) error

	// Framebuffer returns a copy of the current remote frame.
	Framebuffer() Frame

	// Size returns the remote desktop geometry reported by the server.
	Size() (width, height int)

	// Subscribe registers for the given notification kinds.
	Subscribe(kinds ...EventKind) *Subscription

	// ListenerCount returns the number of live subscriptions.
	ListenerCount() int

	// Close tears down the transport. Safe to call more than once.
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, endpoint Endpoint) (Conn, error)
}

// clampCoordinate bounds a coordinate to the protocol's uint16 range.
func clampCoordinate(value int) uint16 {
	switch {
	case value < 0:
		return 0
	case value > 0xFFFF:
		return 0xFFFF
	default:
		return uint16(value)
	}
}
