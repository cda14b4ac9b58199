// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Everything in deskpilot that waits (click cadence, key cadence, the
// settle delay after an action, frame-update and first-frame timeouts,
// reconnect spacing, retry backoff) goes through a Clock rather than
// the time package, so the whole timing contract is testable:
//
//   - [Real] delegates to the time package.
//   - [Fake] stands still until [FakeClock.Advance]. Use it when a test
//     needs to race a timeout against a notification; pair it with
//     [FakeClock.WaitForTimers] to avoid advancing before the code
//     under test has registered its timer.
//   - [Stepping] advances itself by exactly the requested duration on
//     every Sleep or After and records the request. Use it for code
//     that only ever sleeps, where the test wants the schedule.
//
// [SleepContext] is the cancellable sleep used by retry loops.
package clock
