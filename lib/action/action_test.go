// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/bureau-foundation/deskpilot/lib/keysym"
)

func TestParseToolInput(t *testing.T) {
	t.Parallel()

	request, err := ParseToolInput(json.RawMessage(`{"action":"left_click_drag","coordinate":[412.4,300],"start_coordinate":[1,2],"path":[[5,6]]}`))
	if err != nil {
		t.Fatalf("ParseToolInput: %v", err)
	}
	if request.Kind != LeftClickDrag {
		t.Errorf("Kind = %q, want left_click_drag", request.Kind)
	}
	if request.Coordinate == nil || *request.Coordinate != (Point{X: 412, Y: 300}) {
		t.Errorf("Coordinate = %+v, want {412 300}", request.Coordinate)
	}
	if request.StartCoordinate == nil || *request.StartCoordinate != (Point{X: 1, Y: 2}) {
		t.Errorf("StartCoordinate = %+v, want {1 2}", request.StartCoordinate)
	}
	if len(request.Path) != 1 || request.Path[0] != (Point{X: 5, Y: 6}) {
		t.Errorf("Path = %+v, want [{5 6}]", request.Path)
	}

	click, err := ParseToolInput(json.RawMessage(`{"action":"left_click"}`))
	if err != nil {
		t.Fatalf("left_click without coordinate: %v", err)
	}
	if click.Kind != LeftClick || click.Coordinate != nil {
		t.Errorf("click = %+v, want a left click at the cursor", click)
	}
}

func TestParseToolInputRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"not json", `{"action":`},
		{"unknown action", `{"action":"scroll_sideways"}`},
		{"move without coordinate", `{"action":"mouse_move"}`},
		{"type without text", `{"action":"type"}`},
		{"key with empty text", `{"action":"key","text":""}`},
		{"short coordinate", `{"action":"mouse_move","coordinate":[1]}`},
		{"negative coordinate", `{"action":"mouse_move","coordinate":[-1,4]}`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ParseToolInput(json.RawMessage(test.input)); err == nil {
				t.Errorf("ParseToolInput(%s) succeeded, want error", test.input)
			}
		})
	}

	if _, err := ParseToolInput(json.RawMessage(`{"coordinate":[1,2]}`)); !errors.Is(err, ErrMissingAction) {
		t.Errorf("missing action error = %v, want ErrMissingAction", err)
	}
}

func TestParseKeyCombo(t *testing.T) {
	t.Parallel()

	combo, err := ParseKeyCombo("Ctrl + Shift + Esc")
	if err != nil {
		t.Fatalf("ParseKeyCombo: %v", err)
	}
	if !combo.Ctrl || !combo.Shift || combo.Alt || combo.Super {
		t.Errorf("modifiers = %+v, want ctrl and shift", combo)
	}
	if !combo.HasMain || combo.Main != keysym.Escape {
		t.Errorf("main = (%#x, %v), want escape", combo.Main, combo.HasMain)
	}
	if combo.Text != "ctrl + shift + esc" {
		t.Errorf("Text = %q", combo.Text)
	}

	superOnly, err := ParseKeyCombo("win")
	if err != nil {
		t.Fatalf("ParseKeyCombo(win): %v", err)
	}
	if !superOnly.Super || superOnly.HasMain {
		t.Errorf("win = %+v, want super modifier without a main key", superOnly)
	}
	modifiers := superOnly.Modifiers()
	if len(modifiers) != 1 || modifiers[0] != keysym.SuperLeft {
		t.Errorf("Modifiers() = %#x, want [super]", modifiers)
	}

	_, err = ParseKeyCombo("alt+launchpad")
	var unknown *UnknownKeyError
	if !errors.As(err, &unknown) || unknown.Key != "launchpad" {
		t.Errorf("error = %v, want UnknownKeyError for launchpad", err)
	}
}

func TestComboModifierOrder(t *testing.T) {
	t.Parallel()
	combo, err := ParseKeyCombo("super+shift+alt+ctrl+t")
	if err != nil {
		t.Fatalf("ParseKeyCombo: %v", err)
	}
	want := []keysym.Keysym{keysym.ControlLeft, keysym.AltLeft, keysym.ShiftLeft, keysym.SuperLeft}
	if !equalKeysyms(combo.Modifiers(), want) {
		t.Errorf("Modifiers() = %#x, want %#x", combo.Modifiers(), want)
	}
}
