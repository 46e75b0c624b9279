// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package dmx is the output engine: universe frames, scene compositing,
// the fixed-rate cross-fade loop and connection health tracking.
package dmx

import (
	"errors"
	"fmt"

	"dmx-life/internal/config"
)

// UniverseSize is the number of channels in a frame
const UniverseSize = config.UniverseSize

// ErrFrameLength is returned when a buffer is not exactly one universe long
var ErrFrameLength = errors.New("frame length mismatch")

// Frame is one universe snapshot (index 0 = DMX channel 1)
type Frame [UniverseSize]byte

// FrameFromBytes copies a 512-byte buffer into a Frame.
// Any other length is rejected; nothing is truncated or padded.
func FrameFromBytes(b []byte) (Frame, error) {
	var f Frame
	if len(b) != UniverseSize {
		return f, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameLength, len(b), UniverseSize)
	}
	copy(f[:], b)
	return f, nil
}

// FrameFromValues builds a frame from leading channel values, clamping each to 0-255.
// Channels past the end of values are zero. More than 512 values is an error.
func FrameFromValues(values []int) (Frame, error) {
	var f Frame
	if len(values) > UniverseSize {
		return f, fmt.Errorf("%w: got %d values, max %d", ErrFrameLength, len(values), UniverseSize)
	}
	for i, v := range values {
		f[i] = Clamp(v)
	}
	return f, nil
}

// Clamp limits a channel value to 0-255
func Clamp(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// Values returns channels 0..last inclusive as ints (for JSON)
func (f *Frame) Values(last int) []int {
	if last < 0 {
		return []int{}
	}
	if last >= UniverseSize {
		last = UniverseSize - 1
	}
	out := make([]int, last+1)
	for i := range out {
		out[i] = int(f[i])
	}
	return out
}
