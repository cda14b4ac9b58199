// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/deskpilot/lib/clock"
	"github.com/bureau-foundation/deskpilot/lib/keysym"
	"github.com/bureau-foundation/deskpilot/lib/rfb"
)

// Handle is the per-session surface the executor drives: the input
// primitives of the live connection plus the tracked cursor.
type Handle interface {
	PointerEvent(x, y int, buttons rfb.ButtonMask) error
	KeyEvent(key keysym.Keysym, down bool) error
	Cursor() Point
	SetCursor(point Point)
}

// Timing holds the inter-event delays.
type Timing struct {
	// Click separates pointer transitions: press/release, the two
	// clicks of a double click, and each drag step.
	Click time.Duration

	// Keystroke follows each key press and each typed character.
	Keystroke time.Duration

	// KeyHold is how long the main key of a combo stays down.
	KeyHold time.Duration

	// Settle follows every completed action so that the next
	// screenshot shows its effect.
	Settle time.Duration
}

// DefaultTiming returns the delays remote desktops are known to
// tolerate without coalescing events.
func DefaultTiming() Timing {
	return Timing{
		Click:     100 * time.Millisecond,
		Keystroke: 50 * time.Millisecond,
		KeyHold:   100 * time.Millisecond,
		Settle:    1500 * time.Millisecond,
	}
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// Clock paces the event sequences. Nil uses the real clock.
	Clock clock.Clock

	// Logger receives skipped-key warnings and release failures.
	Logger *slog.Logger

	// Timing overrides DefaultTiming when non-zero.
	Timing Timing
}

// Executor lowers semantic actions to ordered, timed pointer and key
// events. It holds no per-session state; the cursor lives on the
// Handle.
type Executor struct {
	clock  clock.Clock
	logger *slog.Logger
	timing Timing
}

// NewExecutor returns an Executor.
func NewExecutor(config ExecutorConfig) *Executor {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Timing == (Timing{}) {
		config.Timing = DefaultTiming()
	}
	return &Executor{clock: config.Clock, logger: config.Logger, timing: config.Timing}
}

// Execute performs request against handle and returns a descriptor of
// what was done, e.g. "<left_click>412,300</left_click>". Every event
// is sent only after the previous one returned. Send failures are
// returned as *ExecutionError; an unknown key name is not an error and
// yields a warning descriptor instead.
//
// The context is checked before the action starts and bounds the
// settle delay. An action that has started always runs to completion
// so that no button or key is left held.
func (executor *Executor) Execute(ctx context.Context, handle Handle, request Request) (string, error) {
	if handle == nil {
		return "", ErrNoConnection
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	descriptor, err := executor.dispatch(handle, request)
	if err != nil {
		if errors.Is(err, ErrNoConnection) {
			return "", err
		}
		return "", &ExecutionError{Kind: request.Kind, Err: err}
	}

	if err := clock.SleepContext(ctx, executor.clock, executor.timing.Settle); err != nil {
		return descriptor, err
	}
	return descriptor, nil
}

func (executor *Executor) dispatch(handle Handle, request Request) (string, error) {
	switch request.Kind {
	case MouseMove:
		if request.Coordinate == nil {
			return "", errors.New("mouse_move requires a coordinate")
		}
		if err := executor.moveTo(handle, *request.Coordinate); err != nil {
			return "", err
		}
		return pointDescriptor(MouseMove, *request.Coordinate), nil

	case LeftClick:
		return executor.click(handle, request, rfb.ButtonLeft, 1)
	case RightClick:
		return executor.click(handle, request, rfb.ButtonRight, 1)
	case MiddleClick:
		return executor.click(handle, request, rfb.ButtonMiddle, 1)
	case DoubleClick:
		return executor.click(handle, request, rfb.ButtonLeft, 2)

	case LeftClickDrag:
		return executor.drag(handle, request)

	case Type:
		if err := executor.typeText(handle, request.Text); err != nil {
			return "", err
		}
		return fmt.Sprintf("<type>%s</type>", request.Text), nil

	case Key:
		return executor.pressCombo(handle, request.Text)

	case CursorPosition:
		return pointDescriptor(CursorPosition, handle.Cursor()), nil

	case Screenshot:
		return "<screenshot></screenshot>", nil

	default:
		return "", fmt.Errorf("unknown computer action %q", request.Kind)
	}
}

func (executor *Executor) moveTo(handle Handle, point Point) error {
	if err := handle.PointerEvent(point.X, point.Y, 0); err != nil {
		return err
	}
	handle.SetCursor(point)
	return nil
}

// click presses and releases button count times at the cursor, first
// moving there if the request carries a coordinate.
func (executor *Executor) click(handle Handle, request Request, button rfb.ButtonMask, count int) (string, error) {
	if request.Coordinate != nil {
		if err := executor.moveTo(handle, *request.Coordinate); err != nil {
			return "", err
		}
		executor.clock.Sleep(executor.timing.Click)
	}

	at := handle.Cursor()
	for index := range count {
		if index > 0 {
			executor.clock.Sleep(executor.timing.Click)
		}
		if err := handle.PointerEvent(at.X, at.Y, button); err != nil {
			return "", err
		}
		executor.clock.Sleep(executor.timing.Click)
		if err := handle.PointerEvent(at.X, at.Y, 0); err != nil {
			return "", err
		}
	}
	return pointDescriptor(request.Kind, at), nil
}

// drag presses at the start point, moves through the path to the
// target with the button held, and releases there.
func (executor *Executor) drag(handle Handle, request Request) (string, error) {
	if request.Coordinate == nil {
		return "", errors.New("left_click_drag requires a coordinate")
	}
	start := handle.Cursor()
	if request.StartCoordinate != nil {
		start = *request.StartCoordinate
	}
	target := *request.Coordinate

	if err := handle.PointerEvent(start.X, start.Y, rfb.ButtonLeft); err != nil {
		return "", err
	}
	handle.SetCursor(start)

	steps := append(append([]Point(nil), request.Path...), target)
	for _, step := range steps {
		executor.clock.Sleep(executor.timing.Click)
		if err := handle.PointerEvent(step.X, step.Y, rfb.ButtonLeft); err != nil {
			executor.release(handle)
			return "", err
		}
		handle.SetCursor(step)
	}

	executor.clock.Sleep(executor.timing.Click)
	if err := handle.PointerEvent(target.X, target.Y, 0); err != nil {
		return "", err
	}
	return pointDescriptor(LeftClickDrag, target), nil
}

// release is a best-effort button release after a failed drag step.
func (executor *Executor) release(handle Handle) {
	at := handle.Cursor()
	if err := handle.PointerEvent(at.X, at.Y, 0); err != nil {
		executor.logger.Warn("releasing pointer after failed drag", "error", err)
	}
}

// typeText sends each character as press, hold, release, bracketed by
// shift for characters that need it.
func (executor *Executor) typeText(handle Handle, text string) error {
	for _, character := range text {
		key, shift := keysym.ForRune(character)
		if err := executor.typeKey(handle, key, shift); err != nil {
			return fmt.Errorf("typing %q: %w", character, err)
		}
		executor.clock.Sleep(executor.timing.Keystroke)
	}
	return nil
}

func (executor *Executor) typeKey(handle Handle, key keysym.Keysym, shift bool) error {
	if shift {
		if err := handle.KeyEvent(keysym.ShiftLeft, true); err != nil {
			return err
		}
	}
	err := handle.KeyEvent(key, true)
	if err == nil {
		executor.clock.Sleep(executor.timing.Keystroke)
		err = handle.KeyEvent(key, false)
	}
	if shift {
		if releaseErr := handle.KeyEvent(keysym.ShiftLeft, false); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}
	return err
}

// pressCombo holds the combo's modifiers around its main key. The
// modifiers are released in reverse order whether or not the main key
// was sent.
func (executor *Executor) pressCombo(handle Handle, text string) (string, error) {
	combo, err := ParseKeyCombo(text)
	if err != nil {
		var unknown *UnknownKeyError
		if errors.As(err, &unknown) {
			executor.logger.Warn("skipping key combo with unknown key", "combo", text, "key", unknown.Key)
			return fmt.Sprintf("<warning>Unknown key: %s was skipped</warning>", unknown.Key), nil
		}
		return "", err
	}

	modifiers := combo.Modifiers()
	err = executor.pressMain(handle, combo, modifiers)

	for index := len(modifiers) - 1; index >= 0; index-- {
		if releaseErr := handle.KeyEvent(modifiers[index], false); releaseErr != nil {
			executor.logger.Warn("releasing modifier",
				"keysym", fmt.Sprintf("%#x", uint32(modifiers[index])),
				"error", releaseErr,
			)
		}
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("<key>%s</key>", combo.Text), nil
}

func (executor *Executor) pressMain(handle Handle, combo Combo, modifiers []keysym.Keysym) error {
	for _, modifier := range modifiers {
		if err := handle.KeyEvent(modifier, true); err != nil {
			return err
		}
	}
	if !combo.HasMain {
		return nil
	}
	if err := handle.KeyEvent(combo.Main, true); err != nil {
		return err
	}
	executor.clock.Sleep(executor.timing.KeyHold)
	return handle.KeyEvent(combo.Main, false)
}

func pointDescriptor(kind Kind, point Point) string {
	return fmt.Sprintf("<%s>%d,%d</%s>", kind, point.X, point.Y, kind)
}
