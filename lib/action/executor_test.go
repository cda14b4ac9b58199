// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/deskpilot/lib/clock"
	"github.com/bureau-foundation/deskpilot/lib/keysym"
	"github.com/bureau-foundation/deskpilot/lib/rfb"
	"github.com/bureau-foundation/deskpilot/lib/rfb/rfbtest"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type testHandle struct {
	*rfbtest.Conn
	cursor Point
}

func (handle *testHandle) Cursor() Point { return handle.cursor }
func (handle *testHandle) SetCursor(point Point) { handle.cursor = point }

func newTestExecutor() (*Executor, *clock.SteppingClock, *testHandle) {
	steppingClock := clock.Stepping(epoch)
	executor := NewExecutor(ExecutorConfig{Clock: steppingClock})
	return executor, steppingClock, &testHandle{Conn: rfbtest.NewConn(1280, 720)}
}

func TestExecuteTypeBracketsShiftedCharacters(t *testing.T) {
	t.Parallel()
	executor, steppingClock, handle := newTestExecutor()

	descriptor, err := executor.Execute(context.Background(), handle, Request{Kind: Type, Text: "Hi!"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if descriptor != "<type>Hi!</type>" {
		t.Errorf("descriptor = %q, want <type>Hi!</type>", descriptor)
	}

	type keyEvent struct {
		key  keysym.Keysym
		down bool
	}
	want := []keyEvent{
		{keysym.ShiftLeft, true}, {'H', true}, {'H', false}, {keysym.ShiftLeft, false},
		{'i', true}, {'i', false},
		{keysym.ShiftLeft, true}, {'!', true}, {'!', false}, {keysym.ShiftLeft, false},
	}
	keys := handle.Keys()
	if len(keys) != len(want) {
		t.Fatalf("sent %d key events, want %d: %+v", len(keys), len(want), keys)
	}
	for index, input := range keys {
		if input.Keysym != want[index].key || input.Down != want[index].down {
			t.Errorf("key event %d = (%#x, %v), want (%#x, %v)",
				index, input.Keysym, input.Down, want[index].key, want[index].down)
		}
	}

	// Press and post-character delays for each of 3 characters, then
	// the settle delay.
	wantElapsed := 3*(50*time.Millisecond+50*time.Millisecond) + 1500*time.Millisecond
	if steppingClock.Elapsed() != wantElapsed {
		t.Errorf("elapsed = %v, want %v", steppingClock.Elapsed(), wantElapsed)
	}
}

func TestExecuteKeyComboOrder(t *testing.T) {
	t.Parallel()
	executor, _, handle := newTestExecutor()

	descriptor, err := executor.Execute(context.Background(), handle, Request{Kind: Key, Text: "ctrl+alt+delete"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if descriptor != "<key>ctrl+alt+delete</key>" {
		t.Errorf("descriptor = %q", descriptor)
	}

	var presses, releases []keysym.Keysym
	for _, input := range handle.Keys() {
		if input.Down {
			presses = append(presses, input.Keysym)
		} else {
			releases = append(releases, input.Keysym)
		}
	}
	wantPresses := []keysym.Keysym{keysym.ControlLeft, keysym.AltLeft, keysym.Delete}
	wantReleases := []keysym.Keysym{keysym.Delete, keysym.AltLeft, keysym.ControlLeft}
	if !equalKeysyms(presses, wantPresses) {
		t.Errorf("press order = %#x, want %#x", presses, wantPresses)
	}
	if !equalKeysyms(releases, wantReleases) {
		t.Errorf("release order = %#x, want %#x", releases, wantReleases)
	}
}

func TestExecuteKeyComboReleasesModifiersWhenMainKeyFails(t *testing.T) {
	t.Parallel()
	executor, _, handle := newTestExecutor()
	transportFailure := errors.New("broken pipe")
	handle.FailKey(func(key keysym.Keysym, down bool) error {
		if key == keysym.Delete && down {
			return transportFailure
		}
		return nil
	})

	_, err := executor.Execute(context.Background(), handle, Request{Kind: Key, Text: "ctrl+alt+delete"})
	var executionError *ExecutionError
	if !errors.As(err, &executionError) {
		t.Fatalf("error = %v, want *ExecutionError", err)
	}
	if executionError.Kind != Key || !errors.Is(err, transportFailure) {
		t.Errorf("error = %+v, want kind key wrapping the transport failure", executionError)
	}

	keys := handle.Keys()
	want := []rfbtest.Input{
		{Kind: rfbtest.Key, Keysym: keysym.ControlLeft, Down: true},
		{Kind: rfbtest.Key, Keysym: keysym.AltLeft, Down: true},
		{Kind: rfbtest.Key, Keysym: keysym.AltLeft, Down: false},
		{Kind: rfbtest.Key, Keysym: keysym.ControlLeft, Down: false},
	}
	if len(keys) != len(want) {
		t.Fatalf("key events = %+v, want %+v", keys, want)
	}
	for index := range want {
		if keys[index] != want[index] {
			t.Errorf("key event %d = %+v, want %+v", index, keys[index], want[index])
		}
	}
}

func TestExecuteKeyUnknownNameWarns(t *testing.T) {
	t.Parallel()
	executor, _, handle := newTestExecutor()

	descriptor, err := executor.Execute(context.Background(), handle, Request{Kind: Key, Text: "ctrl+hyper"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if descriptor != "<warning>Unknown key: hyper was skipped</warning>" {
		t.Errorf("descriptor = %q", descriptor)
	}
	if len(handle.Inputs()) != 0 {
		t.Errorf("sent %d events for a skipped combo, want 0", len(handle.Inputs()))
	}
}

func TestExecuteKeySingleCharacterImpliesShift(t *testing.T) {
	t.Parallel()
	executor, _, handle := newTestExecutor()

	if _, err := executor.Execute(context.Background(), handle, Request{Kind: Key, Text: "ctrl+?"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	keys := handle.Keys()
	if len(keys) != 6 {
		t.Fatalf("key events = %+v, want 6", keys)
	}
	if keys[0].Keysym != keysym.ControlLeft || keys[1].Keysym != keysym.ShiftLeft || keys[2].Keysym != '?' {
		t.Errorf("press order = %#x %#x %#x, want ctrl, shift, ?", keys[0].Keysym, keys[1].Keysym, keys[2].Keysym)
	}
}

func TestExecuteLeftClickAtCursor(t *testing.T) {
	t.Parallel()
	executor, steppingClock, handle := newTestExecutor()
	handle.cursor = Point{X: 40, Y: 50}

	descriptor, err := executor.Execute(context.Background(), handle, Request{Kind: LeftClick})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if descriptor != "<left_click>40,50</left_click>" {
		t.Errorf("descriptor = %q", descriptor)
	}
	want := []rfbtest.Input{
		{Kind: rfbtest.Pointer, X: 40, Y: 50, Buttons: rfb.ButtonLeft},
		{Kind: rfbtest.Pointer, X: 40, Y: 50},
	}
	assertInputs(t, handle.Inputs(), want)

	wantSleeps := []time.Duration{100 * time.Millisecond, 1500 * time.Millisecond}
	assertSleeps(t, steppingClock.Sleeps(), wantSleeps)
}

func TestExecuteClickWithCoordinateMovesFirst(t *testing.T) {
	t.Parallel()
	executor, _, handle := newTestExecutor()

	descriptor, err := executor.Execute(context.Background(), handle,
		Request{Kind: RightClick, Coordinate: &Point{X: 7, Y: 9}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if descriptor != "<right_click>7,9</right_click>" {
		t.Errorf("descriptor = %q", descriptor)
	}
	assertInputs(t, handle.Inputs(), []rfbtest.Input{
		{Kind: rfbtest.Pointer, X: 7, Y: 9},
		{Kind: rfbtest.Pointer, X: 7, Y: 9, Buttons: rfb.ButtonRight},
		{Kind: rfbtest.Pointer, X: 7, Y: 9},
	})
	if handle.cursor != (Point{X: 7, Y: 9}) {
		t.Errorf("cursor = %+v, want {7 9}", handle.cursor)
	}
}

func TestExecuteDoubleClickCadence(t *testing.T) {
	t.Parallel()
	executor, steppingClock, handle := newTestExecutor()

	if _, err := executor.Execute(context.Background(), handle, Request{Kind: DoubleClick}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	assertInputs(t, handle.Inputs(), []rfbtest.Input{
		{Kind: rfbtest.Pointer, Buttons: rfb.ButtonLeft},
		{Kind: rfbtest.Pointer},
		{Kind: rfbtest.Pointer, Buttons: rfb.ButtonLeft},
		{Kind: rfbtest.Pointer},
	})
	click := 100 * time.Millisecond
	assertSleeps(t, steppingClock.Sleeps(), []time.Duration{click, click, click, 1500 * time.Millisecond})
}

func TestExecuteDragThroughPath(t *testing.T) {
	t.Parallel()
	executor, _, handle := newTestExecutor()
	handle.cursor = Point{X: 10, Y: 10}

	descriptor, err := executor.Execute(context.Background(), handle, Request{
		Kind:       LeftClickDrag,
		Path:       []Point{{X: 20, Y: 20}},
		Coordinate: &Point{X: 30, Y: 40},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if descriptor != "<left_click_drag>30,40</left_click_drag>" {
		t.Errorf("descriptor = %q", descriptor)
	}
	assertInputs(t, handle.Inputs(), []rfbtest.Input{
		{Kind: rfbtest.Pointer, X: 10, Y: 10, Buttons: rfb.ButtonLeft},
		{Kind: rfbtest.Pointer, X: 20, Y: 20, Buttons: rfb.ButtonLeft},
		{Kind: rfbtest.Pointer, X: 30, Y: 40, Buttons: rfb.ButtonLeft},
		{Kind: rfbtest.Pointer, X: 30, Y: 40},
	})
	if handle.cursor != (Point{X: 30, Y: 40}) {
		t.Errorf("cursor = %+v, want {30 40}", handle.cursor)
	}
}

func TestExecuteMouseMoveAndCursorPosition(t *testing.T) {
	t.Parallel()
	executor, _, handle := newTestExecutor()

	moved, err := executor.Execute(context.Background(), handle, Request{Kind: MouseMove, Coordinate: &Point{X: 640, Y: 360}})
	if err != nil {
		t.Fatalf("mouse_move: %v", err)
	}
	if moved != "<mouse_move>640,360</mouse_move>" {
		t.Errorf("mouse_move descriptor = %q", moved)
	}
	position, err := executor.Execute(context.Background(), handle, Request{Kind: CursorPosition})
	if err != nil {
		t.Fatalf("cursor_position: %v", err)
	}
	if position != "<cursor_position>640,360</cursor_position>" {
		t.Errorf("cursor_position descriptor = %q", position)
	}
	screenshot, err := executor.Execute(context.Background(), handle, Request{Kind: Screenshot})
	if err != nil || screenshot != "<screenshot></screenshot>" {
		t.Errorf("screenshot = (%q, %v)", screenshot, err)
	}
}

func TestExecuteWithoutHandle(t *testing.T) {
	t.Parallel()
	executor, _, _ := newTestExecutor()
	_, err := executor.Execute(context.Background(), nil, Request{Kind: LeftClick})
	if !errors.Is(err, ErrNoConnection) {
		t.Errorf("error = %v, want ErrNoConnection", err)
	}
}

func TestExecutePointerFailureCarriesKind(t *testing.T) {
	t.Parallel()
	executor, steppingClock, handle := newTestExecutor()
	handle.FailPointer(func(int, int, rfb.ButtonMask) error { return errors.New("connection reset") })

	_, err := executor.Execute(context.Background(), handle, Request{Kind: MiddleClick})
	var executionError *ExecutionError
	if !errors.As(err, &executionError) || executionError.Kind != MiddleClick {
		t.Fatalf("error = %v, want *ExecutionError for middle_click", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("error %q does not carry the cause", err)
	}
	if steppingClock.Elapsed() != 0 {
		t.Errorf("failed action waited %v, want no settle delay", steppingClock.Elapsed())
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	t.Parallel()
	executor, _, handle := newTestExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := executor.Execute(ctx, handle, Request{Kind: LeftClick}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(handle.Inputs()) != 0 {
		t.Errorf("sent %d events after cancellation", len(handle.Inputs()))
	}
}

func assertInputs(t *testing.T, got, want []rfbtest.Input) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("inputs = %+v, want %+v", got, want)
	}
	for index := range want {
		if got[index] != want[index] {
			t.Errorf("input %d = %+v, want %+v", index, got[index], want[index])
		}
	}
}

func assertSleeps(t *testing.T, got, want []time.Duration) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
	for index := range want {
		if got[index] != want[index] {
			t.Errorf("sleep %d = %v, want %v", index, got[index], want[index])
		}
	}
}

func equalKeysyms(got, want []keysym.Keysym) bool {
	if len(got) != len(want) {
		return false
	}
	for index := range want {
		if got[index] != want[index] {
			return false
		}
	}
	return true
}
