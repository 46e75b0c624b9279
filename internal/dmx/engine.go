// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package dmx

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"dmx-life/internal/metrics"
)

const (
	// TransitionDuration is the fixed cross-fade time for scene recalls
	TransitionDuration = 3 * time.Second

	// DefaultTickRate is the output refresh in frames per second
	DefaultTickRate = 30

	// immediateSendTimeout bounds a send issued outside the tick loop
	immediateSendTimeout = time.Second

	// stopTimeout bounds the wait for the tick goroutine on Stop
	stopTimeout = 2 * time.Second
)

// ErrNoSender is returned by SetImmediate when no output is attached
var ErrNoSender = errors.New("no output attached")

// Sender transmits a frame to hardware
type Sender interface {
	SendFrame(ctx context.Context, frame Frame) error
}

// Snapshot is a consistent copy of the engine buffers
type Snapshot struct {
	Current Frame
	Target  Frame
	Active  bool
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces time.Now (tests)
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTickRate sets the refresh rate in frames per second
func WithTickRate(fps int) Option {
	return func(e *Engine) {
		e.SetTickRate(fps)
	}
}

// Engine owns the current and target frames, cross-fades between them at a fixed
// rate and hands every tick's frame to the attached Sender.
//
// mu guards the buffer pair and transition state. outMu guards the sender and is held
// from reading the frame until the send returns, so frames leave in mutation order
// and swapping the output cannot race a send. Lock order is outMu then mu.
type Engine struct {
	logger  *slog.Logger
	monitor *Monitor
	now     func() time.Time
	period  atomic.Int64 // time.Duration
	fade    time.Duration

	mu      sync.Mutex
	current Frame
	target  Frame
	active  bool
	started time.Time

	outMu sync.Mutex
	out   Sender

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

// NewEngine creates an idle engine with both frames at zero
func NewEngine(monitor *Monitor, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:  logger,
		monitor: monitor,
		now:     time.Now,
		fade:    TransitionDuration,
	}
	e.period.Store(int64(time.Second / DefaultTickRate))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Monitor returns the engine's connection monitor
func (e *Engine) Monitor() *Monitor {
	return e.monitor
}

// Period returns the tick period
func (e *Engine) Period() time.Duration {
	return time.Duration(e.period.Load())
}

// SetTickRate changes the refresh rate in frames per second. A running loop picks
// it up on its next tick. Non-positive rates are ignored.
func (e *Engine) SetTickRate(fps int) {
	if fps <= 0 {
		return
	}
	period := time.Second / time.Duration(fps)
	if old := time.Duration(e.period.Swap(int64(period))); old != period {
		e.logger.Debug("DMX tick rate changed", "fps", fps, "period", period)
	}
}

// Start launches the tick loop. Calling Start on a running engine is a no-op.
func (e *Engine) Start() {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.stop != nil {
		return
	}
	e.stop = make(chan struct{})
	e.done = make(chan struct{})

	go e.loop(e.stop, e.done)
	e.logger.Info("DMX engine started", "period", e.Period())
}

// Stop signals the tick loop and waits for it, at most stopTimeout.
// Returns context.DeadlineExceeded if the loop did not exit in time.
func (e *Engine) Stop() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.stop == nil {
		return nil
	}
	close(e.stop)
	done := e.done
	e.stop, e.done = nil, nil

	select {
	case <-done:
		e.logger.Info("DMX engine stopped")
		return nil
	case <-time.After(stopTimeout):
		e.logger.Error("DMX engine did not stop in time", "timeout", stopTimeout)
		return context.DeadlineExceeded
	}
}

// Running reports whether the tick loop is active
func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.stop != nil
}

func (e *Engine) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	period := e.Period()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.safeTick()
			if p := e.Period(); p != period {
				period = p
				ticker.Reset(period)
			}
		case <-stop:
			return
		}
	}
}

// safeTick keeps the loop alive if a sender panics
func (e *Engine) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("DMX tick panicked", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), e.Period())
	defer cancel()
	e.tick(ctx)
}

// tick advances the transition and sends the current frame, whether or not a
// transition is running. Send errors only reach the monitor.
func (e *Engine) tick(ctx context.Context) {
	_ = e.send(ctx, func() Frame { return e.advance(e.now()) })
}

// advance applies one interpolation step and returns a copy of current
func (e *Engine) advance(now time.Time) Frame {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return e.current
	}

	progress := 1.0
	if e.fade > 0 {
		progress = float64(now.Sub(e.started)) / float64(e.fade)
	}
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}

	for i := range e.current {
		cur, tgt := e.current[i], e.target[i]
		if cur == tgt {
			continue
		}
		e.current[i] = byte(int(float64(cur) + float64(int(tgt)-int(cur))*progress))
	}

	if progress >= 1 {
		e.current = e.target
		e.active = false
		metrics.SetTransitionActive(false)
		e.logger.Debug("DMX transition complete")
	}

	return e.current
}

// SetTarget starts a cross-fade from the current values to frame.
// A running transition is replaced and the clock restarts now.
func (e *Engine) SetTarget(frame Frame) {
	e.mu.Lock()
	e.target = frame
	e.active = true
	e.started = e.now()
	e.mu.Unlock()

	metrics.SetTransitionActive(true)
}

// SetImmediate jumps to frame without a transition and sends it once, returning the
// send result. The tick loop keeps sending the same frame afterwards.
func (e *Engine) SetImmediate(ctx context.Context, frame Frame) error {
	ctx, cancel := context.WithTimeout(ctx, immediateSendTimeout)
	defer cancel()

	return e.send(ctx, func() Frame {
		e.mu.Lock()
		e.current = frame
		e.target = frame
		e.active = false
		e.mu.Unlock()

		metrics.SetTransitionActive(false)
		return frame
	})
}

// send takes outMu, builds the frame with next and hands it to the sender.
// The result reaches the monitor after outMu is released, since monitor
// listeners may read the sender.
func (e *Engine) send(ctx context.Context, next func() Frame) error {
	e.outMu.Lock()
	frame := next()
	out := e.out
	var err error
	if out != nil {
		err = out.SendFrame(ctx, frame)
	}
	e.outMu.Unlock()

	if out == nil {
		return ErrNoSender
	}

	metrics.ObserveFrame(err)
	if e.monitor != nil {
		e.monitor.Observe(err)
	}
	return err
}

// Snapshot returns a copy of both frames and the transition flag
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{Current: e.current, Target: e.target, Active: e.active}
}

// Current returns a copy of the current frame
func (e *Engine) Current() Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Sender returns the attached sender (may be nil)
func (e *Engine) Sender() Sender {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	return e.out
}

// ReplaceSender runs fn while no send is in flight and attaches the sender it returns.
// If fn fails the previous sender stays attached and the error is returned.
// Buffers are not touched, so a running transition continues on the new sender.
func (e *Engine) ReplaceSender(fn func(current Sender) (Sender, error)) error {
	e.outMu.Lock()
	defer e.outMu.Unlock()

	next, err := fn(e.out)
	if err != nil {
		return err
	}
	e.out = next
	return nil
}
