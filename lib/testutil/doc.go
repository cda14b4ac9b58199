// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select
// with a wall-clock fallback so that a broken notification path fails
// the test instead of hanging it. They are the only place tests touch
// real time; everything else runs on lib/clock's fake or stepping
// clocks.
//
// All helpers call t.Fatalf on failure.
package testutil
