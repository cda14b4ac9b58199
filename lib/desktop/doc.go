// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package desktop manages remote desktop sessions, one per target id.
//
// A [Manager] owns every [Session]. Each session holds at most one live
// rfb.Conn, its frame buffer, and the cursor position the action
// executor tracks. Sessions are created lazily by
// [Manager.EnsureConnection] and run a connect state machine:
//
//	disconnected → connecting → connected
//	connecting → error → (retry after ReconnectDelay) → ... → disconnected
//
// Every (re)connect first tears down the previous connection, so there
// is never more than one live connection per id. A disconnect
// notification from a live connection starts the same bounded retry
// loop in the background.
//
// Frame updates are a request/response exchange on top of the
// connection's notification stream: [Manager.RequestFrameUpdate]
// subscribes, sends a full update request, and waits for either a
// frame update or an error under a timeout, re-requesting a bounded
// number of times. The subscription is cancelled on every path.
//
// [Manager.Screenshot] never fails: when nothing can be captured it
// returns the store's placeholder descriptor.
package desktop
