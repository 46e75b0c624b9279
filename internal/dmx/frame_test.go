// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package dmx

import "testing"

func TestFrameFromBytesRejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 511, 513} {
		if _, err := FrameFromBytes(make([]byte, n)); err == nil {
			t.Errorf("expected error for %d bytes", n)
		}
	}

	b := make([]byte, 512)
	b[511] = 9
	f, err := FrameFromBytes(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f[511] != 9 {
		t.Errorf("expected last channel 9, got %d", f[511])
	}
}

func TestFrameFromValues(t *testing.T) {
	f, err := FrameFromValues([]int{300, -1, 64})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f[0] != 255 || f[1] != 0 || f[2] != 64 || f[3] != 0 {
		t.Errorf("unexpected frame start %v", f[:4])
	}

	if _, err := FrameFromValues(make([]int, 513)); err == nil {
		t.Error("expected error for 513 values")
	}
}

func TestFrameValues(t *testing.T) {
	f := filled(3)
	if got := len(f.Values(2)); got != 3 {
		t.Errorf("expected 3 values, got %d", got)
	}
	if got := len(f.Values(9999)); got != 512 {
		t.Errorf("expected 512 values, got %d", got)
	}
	if got := len(f.Values(-1)); got != 0 {
		t.Errorf("expected no values, got %d", got)
	}
}
