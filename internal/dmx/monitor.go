// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package dmx

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"dmx-life/internal/metrics"
)

// historySize bounds the number of connection events kept
const historySize = 32

// ConnectionStatus is a snapshot of output health
type ConnectionStatus struct {
	Connected     bool       `json:"connected"`
	LastErrorTime *time.Time `json:"last_error_time"`
	LastError     string     `json:"error_message"`
}

// ConnectionEvent is emitted when the connected flag flips
type ConnectionEvent struct {
	Connected bool      `json:"connected"`
	Time      time.Time `json:"time"`
	Error     string    `json:"error,omitempty"`
}

// Monitor tracks output health from send results.
// Only edges (connected <-> disconnected) are logged and reported, so a dead link
// under a 30 Hz send loop produces one event, not thirty per second.
type Monitor struct {
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	connected bool
	lastErrAt time.Time
	lastErr   string
	history   deque.Deque[ConnectionEvent]
	listeners []func(ConnectionEvent)
}

// NewMonitor creates a monitor that starts in the connected state
func NewMonitor(logger *slog.Logger) *Monitor {
	metrics.SetConnected(true)
	return &Monitor{
		logger:    logger,
		now:       time.Now,
		connected: true,
	}
}

// OnChange registers a listener for connection edges.
// Listeners run on the sending goroutine and must not block.
func (m *Monitor) OnChange(fn func(ConnectionEvent)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Observe records the result of one send attempt.
// It returns the event and true only when the connected flag changed.
func (m *Monitor) Observe(err error) (ConnectionEvent, bool) {
	m.mu.Lock()

	if err == nil {
		if m.connected {
			m.mu.Unlock()
			return ConnectionEvent{}, false
		}
		m.connected = true
		m.lastErr = ""
	} else {
		now := m.now()
		m.lastErrAt = now
		m.lastErr = err.Error()
		if !m.connected {
			m.mu.Unlock()
			return ConnectionEvent{}, false
		}
		m.connected = false
	}

	ev := ConnectionEvent{Connected: m.connected, Time: m.now(), Error: m.lastErr}
	if m.history.Len() == historySize {
		m.history.PopFront()
	}
	m.history.PushBack(ev)
	listeners := append([]func(ConnectionEvent){}, m.listeners...)
	m.mu.Unlock()

	if ev.Connected {
		m.logger.Info("DMX output connection restored")
	} else {
		m.logger.Warn("DMX output connection lost", "error", ev.Error)
	}
	metrics.SetConnected(ev.Connected)

	for _, fn := range listeners {
		fn(ev)
	}
	return ev, true
}

// Status returns the current connection status
func (m *Monitor) Status() ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := ConnectionStatus{Connected: m.connected, LastError: m.lastErr}
	if !m.lastErrAt.IsZero() {
		t := m.lastErrAt
		st.LastErrorTime = &t
	}
	return st
}

// History returns the recorded connection events, oldest first
func (m *Monitor) History() []ConnectionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ConnectionEvent, m.history.Len())
	for i := range out {
		out[i] = m.history.At(i)
	}
	return out
}
