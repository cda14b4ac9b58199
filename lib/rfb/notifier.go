// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rfb

import (
	"fmt"
	"sync"
)

// EventKind identifies a connection notification.
type EventKind uint8

const (
	// EventConnected fires once the protocol handshake completes.
	EventConnected EventKind = iota
	// EventFirstFrame fires with the first framebuffer update.
	EventFirstFrame
	// EventFrameUpdated fires after every framebuffer update has been
	// applied to the frame returned by Conn.Framebuffer.
	EventFrameUpdated
	// EventError carries a transport or protocol failure.
	EventError
	// EventDisconnect fires once when the transport is lost. It is
	// not emitted for a connection closed with Conn.Close.
	EventDisconnect
)

func (kind EventKind) String() string {
	switch kind {
	case EventConnected:
		return "connected"
	case EventFirstFrame:
		return "first_frame"
	case EventFrameUpdated:
		return "frame_updated"
	case EventError:
		return "error"
	case EventDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(kind))
	}
}

// Event is one notification.
type Event struct {
	Kind EventKind
	// Err is set for EventError and, when the cause is known, for
	// EventDisconnect.
	Err error
}

// subscriptionBuffer bounds the events queued for a slow subscriber.
// Frame updates coalesce, so dropping them when the buffer is full
// loses nothing the next Framebuffer call would not show.
const subscriptionBuffer = 16

// Notifier fans notifications out to subscriptions. Emit never blocks:
// an event for a subscriber whose buffer is full is dropped.
type Notifier struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
	closed bool
}

// NewNotifier returns an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[uint64]*Subscription)}
}

// Subscription receives the notification kinds it was created for on
// C until Cancel is called, which closes C.
type Subscription struct {
	C <-chan Event

	channel  chan Event
	mask     uint32
	id       uint64
	notifier *Notifier
}

// Subscribe registers for the given kinds. Subscribing to a closed
// Notifier returns a subscription whose channel is already closed.
func (notifier *Notifier) Subscribe(kinds ...EventKind) *Subscription {
	channel := make(chan Event, subscriptionBuffer)
	subscription := &Subscription{C: channel, channel: channel, notifier: notifier}
	for _, kind := range kinds {
		subscription.mask |= 1 << kind
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.closed {
		close(channel)
		return subscription
	}
	notifier.nextID++
	subscription.id = notifier.nextID
	notifier.subs[subscription.id] = subscription
	return subscription
}

// Emit delivers event to every subscription registered for its kind.
func (notifier *Notifier) Emit(event Event) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	for _, subscription := range notifier.subs {
		if subscription.mask&(1<<event.Kind) == 0 {
			continue
		}
		select {
		case subscription.channel <- event:
		default:
		}
	}
}

// ListenerCount returns the number of live subscriptions.
func (notifier *Notifier) ListenerCount() int {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	return len(notifier.subs)
}

// Close cancels every subscription and rejects new ones.
func (notifier *Notifier) Close() {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.closed = true
	for id, subscription := range notifier.subs {
		delete(notifier.subs, id)
		close(subscription.channel)
	}
}

// Cancel removes the subscription and closes C. Idempotent.
func (subscription *Subscription) Cancel() {
	notifier := subscription.notifier
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if _, live := notifier.subs[subscription.id]; !live {
		return
	}
	delete(notifier.subs, subscription.id)
	close(subscription.channel)
}
