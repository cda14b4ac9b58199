// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rfb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	vnc "github.com/mitchellh/go-vnc"

	"github.com/bureau-foundation/deskpilot/lib/keysym"
)

// VNCDialer connects to VNC servers over TCP. Only the raw encoding is
// negotiated; the framebuffer is kept as RGBA in memory.
type VNCDialer struct {
	// Logger receives transport diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Dial performs the TCP connect and RFB handshake. The context bounds
// both; once Dial returns the connection is independent of ctx.
func (dialer *VNCDialer) Dial(ctx context.Context, endpoint Endpoint) (Conn, error) {
	logger := dialer.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var netDialer net.Dialer
	netConn, err := netDialer.DialContext(ctx, "tcp", endpoint.Address())
	if err != nil {
		return nil, fmt.Errorf("rfb: dialing %s: %w", endpoint.Address(), err)
	}

	// Unblock the handshake if ctx ends before it completes.
	stopInterrupt := context.AfterFunc(ctx, func() {
		netConn.SetDeadline(time.Now())
	})
	if deadline, ok := ctx.Deadline(); ok {
		netConn.SetDeadline(deadline)
	}

	conn := &vncConn{
		notifier: NewNotifier(),
		logger:   logger.With("endpoint", endpoint.Address()),
		done:     make(chan struct{}),
	}
	messages := make(chan vnc.ServerMessage, subscriptionBuffer)
	client, err := vnc.Client(&watchedConn{Conn: netConn, owner: conn}, &vnc.ClientConfig{
		Auth:            clientAuth(endpoint.Password),
		Exclusive:       false,
		ServerMessageCh: messages,
	})
	stopInterrupt()
	if err != nil {
		netConn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("rfb: handshake with %s: %w", endpoint.Address(), ctxErr)
		}
		return nil, fmt.Errorf("rfb: handshake with %s: %w", endpoint.Address(), err)
	}
	netConn.SetDeadline(time.Time{})

	conn.client = client
	conn.format = client.PixelFormat
	conn.frame = NewFrame(int(client.FrameBufferWidth), int(client.FrameBufferHeight))
	conn.armed.Store(true)
	go conn.receive(messages)

	conn.logger.Info("rfb connected",
		"desktop", client.DesktopName,
		"width", client.FrameBufferWidth,
		"height", client.FrameBufferHeight,
	)
	conn.notifier.Emit(Event{Kind: EventConnected})
	return conn, nil
}

func clientAuth(password string) []vnc.ClientAuth {
	if password == "" {
		return []vnc.ClientAuth{new(vnc.ClientAuthNone)}
	}
	return []vnc.ClientAuth{&vnc.PasswordAuth{Password: password}}
}

type vncConn struct {
	client   *vnc.ClientConn
	format   vnc.PixelFormat
	notifier *Notifier
	logger   *slog.Logger

	// writeMu serialises client messages; go-vnc writes directly to
	// the socket.
	writeMu sync.Mutex

	frameMu  sync.Mutex
	frame    Frame
	sawFrame bool

	armed     atomic.Bool
	closing   atomic.Bool
	failOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func (conn *vncConn) PointerEvent(x, y int, buttons ButtonMask) error {
	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()
	if err := conn.client.PointerEvent(vnc.ButtonMask(buttons), clampCoordinate(x), clampCoordinate(y)); err != nil {
		return fmt.Errorf("rfb: pointer event at (%d,%d): %w", x, y, err)
	}
	return nil
}

func (conn *vncConn) KeyEvent(key keysym.Keysym, down bool) error {
	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()
	if err := conn.client.KeyEvent(uint32(key), down); err != nil {
		return fmt.Errorf("rfb: key event %#x: %w", uint32(key), err)
	}
	return nil
}

func (conn *vncConn) RequestFramebufferUpdate(incremental bool, x, y, width, height int) error {
	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()
	err := conn.client.FramebufferUpdateRequest(incremental,
		clampCoordinate(x), clampCoordinate(y), clampCoordinate(width), clampCoordinate(height))
	if err != nil {
		return fmt.Errorf("rfb: framebuffer update request: %w", err)
	}
	return nil
}

func (conn *vncConn) Framebuffer() Frame {
	conn.frameMu.Lock()
	defer conn.frameMu.Unlock()
	return conn.frame.Clone()
}

func (conn *vncConn) Size() (int, int) {
	conn.frameMu.Lock()
	defer conn.frameMu.Unlock()
	return conn.frame.Width, conn.frame.Height
}

func (conn *vncConn) Subscribe(kinds ...EventKind) *Subscription {
	return conn.notifier.Subscribe(kinds...)
}

func (conn *vncConn) ListenerCount() int { return conn.notifier.ListenerCount() }

func (conn *vncConn) Close() error {
	conn.closeOnce.Do(func() {
		conn.closing.Store(true)
		close(conn.done)
		conn.closeErr = conn.client.Close()
		conn.notifier.Close()
	})
	return conn.closeErr
}

// receive applies server messages until the connection is closed.
func (conn *vncConn) receive(messages <-chan vnc.ServerMessage) {
	for {
		select {
		case <-conn.done:
			return
		case message := <-messages:
			update, ok := message.(*vnc.FramebufferUpdateMessage)
			if !ok {
				continue
			}
			conn.apply(update)
		}
	}
}

func (conn *vncConn) apply(update *vnc.FramebufferUpdateMessage) {
	scale := newColorScale(conn.format)

	conn.frameMu.Lock()
	for _, rectangle := range update.Rectangles {
		raw, ok := rectangle.Enc.(*vnc.RawEncoding)
		if !ok {
			continue
		}
		paintRaw(&conn.frame, int(rectangle.X), int(rectangle.Y),
			int(rectangle.Width), int(rectangle.Height), raw.Colors, scale)
	}
	first := !conn.sawFrame
	conn.sawFrame = true
	conn.frameMu.Unlock()

	if first {
		conn.notifier.Emit(Event{Kind: EventFirstFrame})
	}
	conn.notifier.Emit(Event{Kind: EventFrameUpdated})
}

// fail reports a transport failure once: an error notification, then
// a disconnect. A connection being closed locally reports nothing.
func (conn *vncConn) fail(err error) {
	if !conn.armed.Load() || conn.closing.Load() {
		return
	}
	conn.failOnce.Do(func() {
		conn.logger.Warn("rfb transport lost", "error", err)
		if !errors.Is(err, net.ErrClosed) {
			conn.notifier.Emit(Event{Kind: EventError, Err: err})
		}
		conn.notifier.Emit(Event{Kind: EventDisconnect, Err: err})
	})
}

// watchedConn reports the first read error to its owner. go-vnc's
// receive loop exits silently on error; this is how the connection
// learns the transport is gone.
type watchedConn struct {
	net.Conn
	owner *vncConn
}

func (watched *watchedConn) Read(buffer []byte) (int, error) {
	count, err := watched.Conn.Read(buffer)
	if err != nil {
		watched.owner.fail(err)
	}
	return count, err
}

// colorScale converts server color components to 8 bits.
type colorScale struct {
	red, green, blue uint32
}

func newColorScale(format vnc.PixelFormat) colorScale {
	atLeastOne := func(max uint16) uint32 {
		if max == 0 {
			return 255
		}
		return uint32(max)
	}
	return colorScale{
		red:   atLeastOne(format.RedMax),
		green: atLeastOne(format.GreenMax),
		blue:  atLeastOne(format.BlueMax),
	}
}

// paintRaw writes a raw-encoded rectangle into frame, clipping to the
// frame bounds.
func paintRaw(frame *Frame, x, y, width, height int, colors []vnc.Color, scale colorScale) {
	for row := 0; row < height; row++ {
		targetY := y + row
		if targetY >= frame.Height {
			return
		}
		for column := 0; column < width; column++ {
			targetX := x + column
			index := row*width + column
			if targetX >= frame.Width || index >= len(colors) {
				continue
			}
			color := colors[index]
			offset := (targetY*frame.Width + targetX) * Channels
			frame.Pixels[offset] = uint8(uint32(color.R) * 255 / scale.red)
			frame.Pixels[offset+1] = uint8(uint32(color.G) * 255 / scale.green)
			frame.Pixels[offset+2] = uint8(uint32(color.B) * 255 / scale.blue)
			frame.Pixels[offset+3] = 0xFF
		}
	}
}
