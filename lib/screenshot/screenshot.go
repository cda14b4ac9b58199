// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package screenshot encodes frame buffers to JPEG and keeps them on
// disk as addressable artifacts: one "latest" file per target,
// refreshed in place and addressed with a cache-busting query, and a
// bounded history of uniquely timestamped files.
package screenshot

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/zeebo/blake3"
)

// DefaultQuality is the JPEG quality used for screenshots.
const DefaultQuality = 95

// Descriptor addresses one screenshot artifact.
type Descriptor struct {
	// URL is the externally addressable location of the image.
	URL string `json:"url"`

	Width  int `json:"width"`
	Height int `json:"height"`

	// Timestamp is when the frame was captured. Zero for the
	// placeholder.
	Timestamp time.Time `json:"timestamp,omitzero"`

	// Digest is the hex BLAKE3 digest of the encoded image.
	Digest string `json:"digest,omitempty"`

	// Path is the file backing URL. Empty for the placeholder.
	Path string `json:"path,omitempty"`

	// Placeholder marks the well-known stand-in returned when no
	// capture was possible.
	Placeholder bool `json:"placeholder,omitempty"`

	// Data holds the encoded JPEG for in-process consumers. It is
	// never serialized.
	Data []byte `json:"-"`
}

// Encode converts packed RGBA pixels to JPEG at the given quality.
func Encode(pixels []byte, width, height, quality int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("screenshot: invalid geometry %dx%d", width, height)
	}
	if len(pixels) != width*height*4 {
		return nil, fmt.Errorf("screenshot: %d bytes of pixels for %dx%d RGBA, want %d",
			len(pixels), width, height, width*height*4)
	}
	picture := &image.RGBA{
		Pix:    pixels,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}
	var buffer bytes.Buffer
	if err := jpeg.Encode(&buffer, picture, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("screenshot: encoding jpeg: %w", err)
	}
	return buffer.Bytes(), nil
}

// digestKey separates screenshot digests from any other BLAKE3 use.
var digestKey = [32]byte{
	'd', 'e', 's', 'k', 'p', 'i', 'l', 'o', 't', '.', 's', 'c', 'r', 'e', 'e', 'n',
	's', 'h', 'o', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Digest returns the hex keyed BLAKE3-256 digest of data.
func Digest(data []byte) string {
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("screenshot: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}
