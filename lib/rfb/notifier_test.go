// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rfb

import (
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/deskpilot/lib/testutil"
)

func TestNotifierDeliversSubscribedKinds(t *testing.T) {
	t.Parallel()
	notifier := NewNotifier()
	frames := notifier.Subscribe(EventFrameUpdated, EventError)
	defer frames.Cancel()

	notifier.Emit(Event{Kind: EventConnected})
	notifier.Emit(Event{Kind: EventFrameUpdated})
	failure := errors.New("reset by peer")
	notifier.Emit(Event{Kind: EventError, Err: failure})

	first := testutil.RequireReceive(t, frames.C, time.Second, "frame update")
	if first.Kind != EventFrameUpdated {
		t.Errorf("first event = %v, want frame_updated", first.Kind)
	}
	second := testutil.RequireReceive(t, frames.C, time.Second, "error")
	if second.Kind != EventError || !errors.Is(second.Err, failure) {
		t.Errorf("second event = %+v, want error carrying %v", second, failure)
	}
	select {
	case event := <-frames.C:
		t.Errorf("unexpected event %v (connected was not subscribed)", event.Kind)
	default:
	}
}

func TestNotifierCancelRestoresListenerCount(t *testing.T) {
	t.Parallel()
	notifier := NewNotifier()
	persistent := notifier.Subscribe(EventDisconnect)
	baseline := notifier.ListenerCount()

	for range 3 {
		oneShot := notifier.Subscribe(EventFrameUpdated, EventError)
		if notifier.ListenerCount() != baseline+1 {
			t.Fatalf("ListenerCount = %d, want %d", notifier.ListenerCount(), baseline+1)
		}
		oneShot.Cancel()
		oneShot.Cancel()
		testutil.RequireClosed(t, oneShot.C, time.Second, "cancelled subscription")
	}

	if notifier.ListenerCount() != baseline {
		t.Errorf("ListenerCount = %d, want baseline %d", notifier.ListenerCount(), baseline)
	}
	persistent.Cancel()
	if notifier.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d after cancelling everything, want 0", notifier.ListenerCount())
	}
}

func TestNotifierEmitNeverBlocks(t *testing.T) {
	t.Parallel()
	notifier := NewNotifier()
	slow := notifier.Subscribe(EventFrameUpdated)
	defer slow.Cancel()

	for range subscriptionBuffer * 4 {
		notifier.Emit(Event{Kind: EventFrameUpdated})
	}
	if len(slow.C) != subscriptionBuffer {
		t.Errorf("queued %d events, want buffer size %d", len(slow.C), subscriptionBuffer)
	}
}

func TestNotifierClose(t *testing.T) {
	t.Parallel()
	notifier := NewNotifier()
	subscription := notifier.Subscribe(EventDisconnect)
	notifier.Close()

	testutil.RequireClosed(t, subscription.C, time.Second, "subscription after Close")
	late := notifier.Subscribe(EventDisconnect)
	testutil.RequireClosed(t, late.C, time.Second, "subscription to closed notifier")
	late.Cancel()
	if notifier.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d, want 0", notifier.ListenerCount())
	}
}
