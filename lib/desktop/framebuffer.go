// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desktop

import "github.com/bureau-foundation/deskpilot/lib/rfb"

// FrameBuffer is a session's local copy of the remote framebuffer as
// packed RGBA. After every Update, len(Pixels) == Width*Height*4.
type FrameBuffer struct {
	Width  int
	Height int
	Pixels []byte
}

// NewFrameBuffer allocates an opaque black buffer.
func NewFrameBuffer(width, height int) *FrameBuffer {
	frame := rfb.NewFrame(width, height)
	return &FrameBuffer{Width: width, Height: height, Pixels: frame.Pixels}
}

// Update copies frame into the buffer, reallocating first when the
// geometry changed. Returns true if the buffer was reallocated. A
// frame whose pixel slice is shorter than its geometry implies leaves
// the uncovered tail untouched.
func (buffer *FrameBuffer) Update(frame rfb.Frame) bool {
	resized := false
	if frame.Width != buffer.Width || frame.Height != buffer.Height {
		reallocated := NewFrameBuffer(frame.Width, frame.Height)
		*buffer = *reallocated
		resized = true
	}
	copy(buffer.Pixels, frame.Pixels)
	return resized
}

// Snapshot returns a copy of the buffer.
func (buffer *FrameBuffer) Snapshot() FrameBuffer {
	return FrameBuffer{
		Width:  buffer.Width,
		Height: buffer.Height,
		Pixels: append([]byte(nil), buffer.Pixels...),
	}
}
