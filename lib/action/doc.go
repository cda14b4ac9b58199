// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package action lowers semantic desktop actions (clicks, drags,
// typing, key combos) into the pointer and key events of a remote
// framebuffer connection.
//
// The timing contract is part of the behavior: pointer transitions
// are 100ms apart, each typed character is held 50ms and followed by
// 50ms, the main key of a combo is held 100ms, and every completed
// action is followed by a 1500ms settle delay so that a screenshot
// taken afterwards reflects it. Events are sent strictly in order;
// each send returns before the next is issued.
//
// Execute returns a short descriptor of what ran, in the tag form the
// transcript stores ("<left_click>412,300</left_click>").
package action
