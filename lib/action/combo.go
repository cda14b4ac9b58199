// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"strings"
	"unicode/utf8"

	"github.com/bureau-foundation/deskpilot/lib/keysym"
)

// Combo is a parsed key combination: modifier flags and at most one
// main key.
type Combo struct {
	Ctrl, Alt, Shift, Super bool

	// Main is the non-modifier key. HasMain is false for a combo made
	// only of modifiers ("ctrl+shift").
	Main    keysym.Keysym
	HasMain bool

	// Text is the normalized (lower-cased) combo string.
	Text string
}

// ParseKeyCombo parses a "+"-joined combo such as "ctrl+shift+esc".
// Parts are case-insensitive. A single character falls back to the
// keycode table and may imply shift. When several non-modifier keys
// appear, the last one wins.
func ParseKeyCombo(text string) (Combo, error) {
	combo := Combo{Text: strings.ToLower(text)}
	for _, part := range strings.Split(combo.Text, "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "ctrl", "control":
			combo.Ctrl = true
		case "alt":
			combo.Alt = true
		case "shift":
			combo.Shift = true
		case "super", "win", "meta":
			combo.Super = true
		default:
			if named, ok := keysym.Named(part); ok {
				combo.Main, combo.HasMain = named, true
				continue
			}
			if utf8.RuneCountInString(part) == 1 {
				character, _ := utf8.DecodeRuneInString(part)
				main, shift := keysym.ForRune(character)
				combo.Main, combo.HasMain = main, true
				combo.Shift = combo.Shift || shift
				continue
			}
			return Combo{}, &UnknownKeyError{Key: part}
		}
	}
	return combo, nil
}

// Modifiers returns the modifier keysyms to hold, in press order:
// ctrl, alt, shift, super. Release in the reverse order.
func (combo Combo) Modifiers() []keysym.Keysym {
	var modifiers []keysym.Keysym
	if combo.Ctrl {
		modifiers = append(modifiers, keysym.ControlLeft)
	}
	if combo.Alt {
		modifiers = append(modifiers, keysym.AltLeft)
	}
	if combo.Shift {
		modifiers = append(modifiers, keysym.ShiftLeft)
	}
	if combo.Super {
		modifiers = append(modifiers, keysym.SuperLeft)
	}
	return modifiers
}
