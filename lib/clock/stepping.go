// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Stepping returns a SteppingClock initialized to the given time.
func Stepping(initial time.Time) *SteppingClock {
	return &SteppingClock{current: initial}
}

// SteppingClock never blocks. Every Sleep, After, or AfterFunc moves
// the clock forward by exactly the requested duration, fires
// immediately, and appends the duration to the recorded schedule.
//
// Only use it for code paths whose waits are all unconditional
// delays. A wait that races a timeout against another event always
// sees the timeout win.
type SteppingClock struct {
	mu      sync.Mutex
	current time.Time
	sleeps  []time.Duration
}

// Now returns the current time.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After advances the clock by d and returns a ready channel.
func (c *SteppingClock) After(d time.Duration) <-chan time.Time {
	channel := make(chan time.Time, 1)
	channel <- c.step(d)
	return channel
}

// AfterFunc advances the clock by d and calls f before returning.
func (c *SteppingClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.step(d)
	f()
	return &Timer{stopFunc: func() bool { return false }}
}

// Sleep advances the clock by d.
func (c *SteppingClock) Sleep(d time.Duration) { c.step(d) }

// Sleeps returns every positive duration waited on so far, in order.
func (c *SteppingClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Elapsed returns the sum of every recorded wait.
func (c *SteppingClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.sleeps {
		total += d
	}
	return total
}

func (c *SteppingClock) step(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.current = c.current.Add(d)
		c.sleeps = append(c.sleeps, d)
	}
	return c.current
}
