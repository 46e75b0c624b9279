// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package output

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"dmx-life/internal/config"
	"dmx-life/internal/dmx"
)

// ErrMock is returned by a Mock armed with FailNext
var ErrMock = errors.New("mock output failure")

// Mock is an in-memory Output for tests
type Mock struct {
	mu        sync.Mutex
	cfg       config.OutputConfig
	started   bool
	available bool
	frames    []dmx.Frame
	calls     []string
	failNext  bool
	failStart bool
	sendErr   error
}

// NewMock creates a mock output of the given config
func NewMock(cfg config.OutputConfig) *Mock {
	return &Mock{cfg: cfg, available: true}
}

// MockFactory returns a Factory that records every mock it builds
func MockFactory(built *[]*Mock) Factory {
	var mu sync.Mutex
	return func(cfg config.OutputConfig, _ *slog.Logger) (Output, error) {
		if _, ok := kinds[cfg.Kind]; !ok {
			return nil, ErrUnknownKind
		}
		m := NewMock(cfg)
		mu.Lock()
		*built = append(*built, m)
		mu.Unlock()
		return m, nil
	}
}

func (m *Mock) record(call string) bool {
	m.calls = append(m.calls, call)
	if m.failNext {
		m.failNext = false
		return true
	}
	return false
}

func (m *Mock) Kind() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Kind
}

func (m *Mock) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record("start") || m.failStart {
		return ErrMock
	}
	m.started = true
	return nil
}

func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "stop")
	m.started = false
	return nil
}

func (m *Mock) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func (m *Mock) SendFrame(_ context.Context, frame dmx.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record("send") {
		return ErrMock
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	if !m.started {
		return ErrNotStarted
	}
	m.frames = append(m.frames, frame)
	return nil
}

func (m *Mock) IsAvailable(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *Mock) Status(ctx context.Context) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Kind: m.cfg.Kind, Started: m.started, Available: m.available}
}

func (m *Mock) Config() config.OutputConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *Mock) UpdateConfig(cfg config.OutputConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "update")
	m.cfg = cfg
	return nil
}

// FailNext makes the next Start or SendFrame fail
func (m *Mock) FailNext() {
	m.mu.Lock()
	m.failNext = true
	m.mu.Unlock()
}

// FailStart makes every Start fail
func (m *Mock) FailStart(fail bool) {
	m.mu.Lock()
	m.failStart = fail
	m.mu.Unlock()
}

// SetSendError makes every SendFrame return err; nil restores success
func (m *Mock) SetSendError(err error) {
	m.mu.Lock()
	m.sendErr = err
	m.mu.Unlock()
}

// SetAvailable sets the IsAvailable result
func (m *Mock) SetAvailable(v bool) {
	m.mu.Lock()
	m.available = v
	m.mu.Unlock()
}

// Frames returns a copy of every frame sent successfully
func (m *Mock) Frames() []dmx.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]dmx.Frame(nil), m.frames...)
}

// Last returns the most recent frame, ok is false if none was sent
func (m *Mock) Last() (dmx.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.frames) == 0 {
		return dmx.Frame{}, false
	}
	return m.frames[len(m.frames)-1], true
}

// Calls returns the list of method calls
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
