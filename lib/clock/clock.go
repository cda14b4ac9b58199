// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the time operations used by the input and session
// layers. Production code injects Real(); tests inject Fake() or
// Stepping() so that press/release cadences, frame-update timeouts,
// and retry backoff can be asserted without waiting on the wall clock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed and returns a Timer that
	// can cancel the pending call. The Timer's C field is nil.
	AfterFunc(d time.Duration, f func()) *Timer

	// Sleep blocks for at least d.
	Sleep(d time.Duration)
}

// Timer is a scheduled callback returned by AfterFunc.
type Timer struct {
	// C is always nil for AfterFunc timers; it exists so that Timer
	// reads like time.Timer at call sites.
	C <-chan time.Time

	stopFunc func() bool
}

// Stop prevents the Timer from firing. Returns true if the call
// stopped a pending timer, false if it already fired or was stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }
