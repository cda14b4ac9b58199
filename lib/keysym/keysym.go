// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keysym maps characters and key names to X11 keysyms, the key
// identifiers carried by remote-framebuffer key events.
//
// The table is static. [ForRune] resolves a character to the keysym the
// remote should receive and whether the character needs shift held on
// a US layout; [Named] resolves the symbolic names accepted in key
// combos such as "ctrl+shift+esc".
package keysym

import "unicode"

// Keysym is an X11 keysym value.
type Keysym uint32

// Modifiers.
const (
	ShiftLeft    Keysym = 0xFFE1
	ShiftRight   Keysym = 0xFFE2
	ControlLeft  Keysym = 0xFFE3
	ControlRight Keysym = 0xFFE4
	CapsLock     Keysym = 0xFFE5
	NumLock      Keysym = 0xFFE8
	AltLeft      Keysym = 0xFFE9
	AltRight     Keysym = 0xFFEA
	SuperLeft    Keysym = 0xFFEB
	SuperRight   Keysym = 0xFFEC
)

// Function keys. F1 through F12 are contiguous.
const (
	F1  Keysym = 0xFFBE
	F12 Keysym = 0xFFC9
)

// Navigation.
const (
	Home     Keysym = 0xFF50
	Left     Keysym = 0xFF51
	Up       Keysym = 0xFF52
	Right    Keysym = 0xFF53
	Down     Keysym = 0xFF54
	PageUp   Keysym = 0xFF55
	PageDown Keysym = 0xFF56
	End      Keysym = 0xFF57
	Insert   Keysym = 0xFF63
	Delete   Keysym = 0xFFFF
)

// System and editing keys.
const (
	BackSpace  Keysym = 0xFF08
	Tab        Keysym = 0xFF09
	Return     Keysym = 0xFF0D
	Pause      Keysym = 0xFF13
	ScrollLock Keysym = 0xFF14
	Escape     Keysym = 0xFF1B
	Print      Keysym = 0xFF61
	Menu       Keysym = 0xFF67
	Space      Keysym = 0x0020
)

// unicodeOffset is added to a code point above Latin-1 to form its
// keysym.
const unicodeOffset = 0x01000000

// shiftedSymbols are the US-layout characters produced with shift held.
const shiftedSymbols = `!@#$%^&*()_+{}|:"<>?~`

// Function returns the keysym of function key Fn, for n in 1..12.
func Function(n int) (Keysym, bool) {
	if n < 1 || n > 12 {
		return 0, false
	}
	return F1 + Keysym(n-1), true
}

// ForRune returns the keysym for r and whether shift must be held
// while it is pressed. Uppercase ASCII letters and the shifted symbol
// set require shift. Newline and carriage return map to Return, tab to
// Tab, and runes outside Latin-1 to their Unicode keysym.
func ForRune(r rune) (Keysym, bool) {
	switch {
	case r == '\n' || r == '\r':
		return Return, false
	case r == '\t':
		return Tab, false
	case r == '\b':
		return BackSpace, false
	case r >= 'A' && r <= 'Z':
		return Keysym(r), true
	case r <= unicode.MaxLatin1:
		return Keysym(r), isShiftedSymbol(r)
	default:
		return Keysym(unicodeOffset | uint32(r)), false
	}
}

func isShiftedSymbol(r rune) bool {
	for _, symbol := range shiftedSymbols {
		if symbol == r {
			return true
		}
	}
	return false
}

// named holds the multi-character key names accepted in key combos.
// Lookup is case-sensitive; callers lower-case first.
var named = map[string]Keysym{
	"return":    Return,
	"enter":     Return,
	"tab":       Tab,
	"space":     Space,
	"backspace": BackSpace,
	"delete":    Delete,
	"escape":    Escape,
	"esc":       Escape,
	"up":        Up,
	"down":      Down,
	"left":      Left,
	"right":     Right,
	"home":      Home,
	"end":       End,
	"pageup":    PageUp,
	"pagedown":  PageDown,
	"page_up":   PageUp,
	"page_down": PageDown,
	"insert":    Insert,
	"print":     Print,
	"pause":     Pause,
	"super":     SuperLeft,
	"super_l":   SuperLeft,
	"meta":      SuperLeft,
	"win":       SuperLeft,
	"menu":      Menu,
	"f1":        F1,
	"f2":        F1 + 1,
	"f3":        F1 + 2,
	"f4":        F1 + 3,
	"f5":        F1 + 4,
	"f6":        F1 + 5,
	"f7":        F1 + 6,
	"f8":        F1 + 7,
	"f9":        F1 + 8,
	"f10":       F1 + 9,
	"f11":       F1 + 10,
	"f12":       F12,
}

// Named resolves a lower-case key name such as "enter", "page_down",
// or "f5".
func Named(name string) (Keysym, bool) {
	keysym, ok := named[name]
	return keysym, ok
}
