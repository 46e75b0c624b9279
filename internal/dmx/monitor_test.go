// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package dmx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorSingleLostEvent(t *testing.T) {
	m := NewMonitor(testLogger())

	var events []ConnectionEvent
	m.OnChange(func(ev ConnectionEvent) { events = append(events, ev) })

	for i := 0; i < 10; i++ {
		m.Observe(fmt.Errorf("send %d: %w", i, errUnreachable))
	}

	require.Len(t, events, 1)
	assert.False(t, events[0].Connected)

	st := m.Status()
	assert.False(t, st.Connected)
	require.NotNil(t, st.LastErrorTime)
	assert.Contains(t, st.LastError, "send 9")
}

func TestMonitorSingleRestoredEvent(t *testing.T) {
	m := NewMonitor(testLogger())

	var lost, restored int
	m.OnChange(func(ev ConnectionEvent) {
		if ev.Connected {
			restored++
		} else {
			lost++
		}
	})

	m.Observe(errUnreachable)
	m.Observe(errUnreachable)
	for i := 0; i < 7; i++ {
		m.Observe(nil)
	}

	assert.Equal(t, 1, lost)
	assert.Equal(t, 1, restored)

	st := m.Status()
	assert.True(t, st.Connected)
	assert.Empty(t, st.LastError)
	assert.NotNil(t, st.LastErrorTime, "last error time is kept after recovery")
}

func TestMonitorSuccessWhileConnectedIsSilent(t *testing.T) {
	m := NewMonitor(testLogger())

	_, changed := m.Observe(nil)
	assert.False(t, changed)
	assert.Empty(t, m.History())
	assert.Nil(t, m.Status().LastErrorTime)
}

func TestMonitorHistoryBounded(t *testing.T) {
	m := NewMonitor(testLogger())
	fail := errors.New("port closed")

	for i := 0; i < historySize; i++ {
		m.Observe(fail)
		m.Observe(nil)
	}

	history := m.History()
	require.Len(t, history, historySize)
	assert.True(t, history[len(history)-1].Connected)
	assert.False(t, history[len(history)-2].Connected)
}
