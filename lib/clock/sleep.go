// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"context"
	"time"
)

// SleepContext blocks for d on the given clock, returning early with
// ctx.Err() if the context is cancelled first. A non-positive d only
// checks the context.
func SleepContext(ctx context.Context, clock Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	expired := make(chan struct{})
	timer := clock.AfterFunc(d, func() { close(expired) })
	defer timer.Stop()

	select {
	case <-expired:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
