// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package controller ties the scene store, the DMX engine and the active output
// together and exposes the operations used by every front end.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dmx-life/internal/config"
	"dmx-life/internal/dmx"
	"dmx-life/internal/metrics"
	"dmx-life/internal/output"
)

var (
	// ErrSceneNotFound is returned by Activate for an unknown scene name
	ErrSceneNotFound = errors.New("scene not found")
	// ErrNoOutput is returned when no output is attached
	ErrNoOutput = errors.New("no DMX output configured")
	// ErrOutputNotStarted is returned when the output failed to start
	ErrOutputNotStarted = errors.New("DMX output not started")
	// ErrOutputUnavailable is returned by Activate when the output fails its reachability check
	ErrOutputUnavailable = errors.New("DMX output unavailable")
)

const (
	// availabilityTimeout bounds the reachability check run by Activate
	availabilityTimeout = 3 * time.Second
	// availabilityTTL is how long a successful check is reused
	availabilityTTL = 10 * time.Second
)

// Controller coordinates scene recall, test frames and output switching
type Controller struct {
	store   *config.Store
	engine  *dmx.Engine
	factory output.Factory
	logger  *slog.Logger

	mu          sync.Mutex // guards activeScene and highest; serializes SwitchOutput
	activeScene string
	highest     int

	// Subscribers receive pre-marshaled JSON state messages
	subsMu sync.RWMutex
	subs   map[chan []byte]struct{}

	// Last output that passed its reachability check, and when
	availMu  sync.Mutex
	availOut output.Output
	availAt  time.Time

	stopRefresh chan struct{}
}

// Option configures a Controller
type Option func(*Controller)

// WithFactory replaces the output factory (tests use output.MockFactory)
func WithFactory(f output.Factory) Option {
	return func(c *Controller) { c.factory = f }
}

// New creates a controller. Call Start to attach the configured output.
func New(store *config.Store, engine *dmx.Engine, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		store:   store,
		engine:  engine,
		factory: output.New,
		logger:  logger,
		highest: -1,
		subs:    make(map[chan []byte]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	engine.Monitor().OnChange(func(dmx.ConnectionEvent) { c.broadcastState() })
	store.OnReload(func(cfg *config.Config) {
		c.logger.Info("Scenes reloaded", "scenes", len(cfg.Scenes), "fixtures", len(cfg.Fixtures))
		c.broadcastState()
	})
	return c
}

// Start builds and starts the configured output and launches the engine.
// A transport that fails to start stays attached, so it can be inspected
// and reconfigured; activation fails until it starts.
func (c *Controller) Start() error {
	cfg := c.store.Config().Output
	var startErr error
	err := c.engine.ReplaceSender(func(dmx.Sender) (dmx.Sender, error) {
		out, err := c.factory(cfg, c.logger)
		if err != nil {
			return nil, err
		}
		startErr = out.Start()
		return out, nil
	})
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if startErr != nil {
		c.logger.Warn("DMX output failed to start", "kind", cfg.Kind, "error", startErr)
		c.engine.Monitor().Observe(startErr)
	}

	c.engine.Start()
	return nil
}

// Close stops refresh, the engine and then the output
func (c *Controller) Close() error {
	c.StopRefresh()

	engineErr := c.engine.Stop()
	var outErr error
	if out := c.output(); out != nil {
		outErr = out.Stop()
	}
	return errors.Join(engineErr, outErr)
}

// output returns the attached transport or nil
func (c *Controller) output() output.Output {
	out, _ := c.engine.Sender().(output.Output)
	return out
}

// ready returns the attached output if it is started
func (c *Controller) ready() (output.Output, error) {
	out := c.output()
	if out == nil {
		return nil, ErrNoOutput
	}
	if !out.Started() {
		return nil, ErrOutputNotStarted
	}
	return out, nil
}

// available checks out, reusing a success younger than availabilityTTL.
// Failures are never cached.
func (c *Controller) available(out output.Output) bool {
	c.availMu.Lock()
	fresh := c.availOut == out && time.Since(c.availAt) < availabilityTTL
	c.availMu.Unlock()
	if fresh {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), availabilityTimeout)
	defer cancel()
	if !out.IsAvailable(ctx) {
		return false
	}

	c.availMu.Lock()
	c.availOut, c.availAt = out, time.Now()
	c.availMu.Unlock()
	return true
}

func (c *Controller) forgetAvailability() {
	c.availMu.Lock()
	c.availOut = nil
	c.availMu.Unlock()
}

// Activate composes the named scene over the current output and starts a
// cross-fade toward it. It fails if the output is missing, stopped or unreachable.
func (c *Controller) Activate(name string) error {
	out, err := c.ready()
	if err != nil {
		return err
	}
	if !c.available(out) {
		c.logger.Warn("Scene not activated, output unavailable", "scene", name, "kind", out.Kind())
		return ErrOutputUnavailable
	}

	c.mu.Lock()
	comp, ok := dmx.ComposeScene(c.store, name, c.engine.Current())
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSceneNotFound, name)
	}
	c.engine.SetTarget(comp.Frame)
	c.activeScene = name
	c.highest = comp.HighestActive
	c.mu.Unlock()

	c.logger.Info("Scene activated", "scene", name, "highest_active", comp.HighestActive)
	c.broadcastState()
	return nil
}

// Test sends values (channel 1 first) immediately, bypassing scenes and fades.
// More than 512 values is rejected; missing trailing channels are zero.
func (c *Controller) Test(values []int) error {
	frame, err := dmx.FrameFromValues(values)
	if err != nil {
		return err
	}
	return c.setImmediate(frame, len(values)-1)
}

// Blackout sends an all-zero frame immediately
func (c *Controller) Blackout() error {
	c.mu.Lock()
	highest := c.highest
	c.mu.Unlock()
	return c.setImmediate(dmx.Frame{}, highest)
}

func (c *Controller) setImmediate(frame dmx.Frame, highest int) error {
	if _, err := c.ready(); err != nil {
		return err
	}

	c.mu.Lock()
	c.activeScene = ""
	c.highest = highest
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.engine.SetImmediate(ctx, frame)

	c.broadcastState()
	if err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// Status returns the active scene and the current output up to the highest touched channel
func (c *Controller) Status() Status {
	c.mu.Lock()
	scene, highest := c.activeScene, c.highest
	c.mu.Unlock()

	snap := c.engine.Snapshot()
	return Status{
		ActiveScene:   scene,
		HighestActive: highest,
		Values:        snap.Current.Values(highest),
		Transition:    snap.Active,
	}
}

// Current returns the full current output frame
func (c *Controller) Current() dmx.Frame {
	return c.engine.Current()
}

// ConnectionStatus returns the connection monitor status
func (c *Controller) ConnectionStatus() dmx.ConnectionStatus {
	return c.engine.Monitor().Status()
}

// ConnectionHistory returns recent lost/restored events, oldest first
func (c *Controller) ConnectionHistory() []dmx.ConnectionEvent {
	return c.engine.Monitor().History()
}

// SwitchOutput replaces the active transport. kind may be empty to keep the
// current kind; overrides is a JSON object merged onto the current output config.
// The tick loop is fenced during the swap. If the new transport fails to start,
// the previous one is restarted and the error returned.
func (c *Controller) SwitchOutput(kind string, overrides []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.store.Config().Output
	if out := c.output(); out != nil {
		base = out.Config()
	}
	if kind != "" {
		base.Kind = kind
	}
	if !knownKind(base.Kind) {
		return fmt.Errorf("%w %q", output.ErrUnknownKind, base.Kind)
	}

	cfg, err := base.WithDefaults().Merge(overrides)
	if err != nil {
		return fmt.Errorf("invalid output config: %w", err)
	}

	err = c.engine.ReplaceSender(func(cur dmx.Sender) (dmx.Sender, error) {
		old, _ := cur.(output.Output)
		if old != nil && old.Kind() == cfg.Kind {
			return c.reconfigure(old, cfg)
		}
		return c.replace(old, cfg)
	})
	if err != nil {
		c.logger.Error("Output switch failed", "kind", cfg.Kind, "error", err)
		return err
	}

	c.forgetAvailability()
	c.engine.SetTickRate(cfg.ArtNet.RefreshRate)

	metrics.OutputSwitches.WithLabelValues(cfg.Kind).Inc()
	c.logger.Info("Output switched", "kind", cfg.Kind, "fps", cfg.ArtNet.RefreshRate)
	go c.broadcastState()
	return nil
}

// reconfigure applies cfg to the running transport, restoring the old config on failure
func (c *Controller) reconfigure(out output.Output, cfg config.OutputConfig) (dmx.Sender, error) {
	prev := out.Config()
	err := out.UpdateConfig(cfg)
	if err == nil {
		err = out.Start()
	}
	if err != nil {
		if rerr := out.UpdateConfig(prev); rerr != nil {
			c.logger.Error("Output rollback failed", "error", rerr)
		} else if rerr := out.Start(); rerr != nil {
			c.logger.Error("Output rollback failed", "error", rerr)
		}
		return nil, fmt.Errorf("reconfigure %s output: %w", cfg.Kind, err)
	}
	return out, nil
}

// replace stops old, starts a new transport and restarts old if that fails
func (c *Controller) replace(old output.Output, cfg config.OutputConfig) (dmx.Sender, error) {
	next, err := c.factory(cfg, c.logger)
	if err != nil {
		return nil, err
	}

	if old != nil {
		if err := old.Stop(); err != nil {
			c.logger.Warn("Failed to stop previous output", "kind", old.Kind(), "error", err)
		}
	}

	if err := next.Start(); err != nil {
		_ = next.Stop()
		if old != nil {
			if rerr := old.Start(); rerr != nil {
				c.logger.Error("Output rollback failed", "kind", old.Kind(), "error", rerr)
			}
		}
		return nil, fmt.Errorf("start %s output: %w", cfg.Kind, err)
	}
	return next, nil
}

func knownKind(kind string) bool {
	for _, k := range output.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// OutputStatus describes the attached transport, probing its reachability
func (c *Controller) OutputStatus(ctx context.Context) output.Status {
	out := c.output()
	if out == nil {
		return output.Status{Kind: "none"}
	}
	return out.Status(ctx)
}

// OutputKind returns the kind of the attached transport, or "" if none
func (c *Controller) OutputKind() string {
	if out := c.output(); out != nil {
		return out.Kind()
	}
	return ""
}

// Scenes lists the configured scenes
func (c *Controller) Scenes() SceneList {
	cfg := c.store.Config()

	c.mu.Lock()
	active := c.activeScene
	c.mu.Unlock()

	list := SceneList{Scenes: make([]SceneInfo, 0, len(cfg.Scenes)), Active: active}
	for i, s := range cfg.Scenes {
		list.Scenes = append(list.Scenes, SceneInfo{
			Index:    i + 1,
			Name:     s.Name,
			Fixtures: s.EnabledFixtures,
			Active:   s.Name == active,
		})
	}
	return list
}

// SceneAt returns the name of the scene at a 1-based index
func (c *Controller) SceneAt(index int) (string, bool) {
	scenes := c.store.Config().Scenes
	if index < 1 || index > len(scenes) {
		return "", false
	}
	return scenes[index-1].Name, true
}

// Fixtures returns every fixture with named channels
func (c *Controller) Fixtures() []config.ResolvedFixture {
	return c.store.Config().ResolveFixtures()
}

// Ports lists serial devices for the setup UI
func (c *Controller) Ports() ([]output.PortInfo, error) {
	ports, err := output.ListPorts()
	if err != nil {
		return []output.PortInfo{}, err
	}
	if ports == nil {
		ports = []output.PortInfo{}
	}
	return ports, nil
}

// Subscribe returns a channel that receives pre-marshaled JSON state messages
func (c *Controller) Subscribe() chan []byte {
	ch := make(chan []byte, 100)
	c.subsMu.Lock()
	c.subs[ch] = struct{}{}
	c.subsMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel
func (c *Controller) Unsubscribe(ch chan []byte) {
	c.subsMu.Lock()
	if _, ok := c.subs[ch]; ok {
		delete(c.subs, ch)
		close(ch)
	}
	c.subsMu.Unlock()
}

// StateMessage builds the message pushed to subscribers
func (c *Controller) StateMessage() StateMessage {
	return StateMessage{
		Type:       "state",
		Output:     c.OutputKind(),
		Status:     c.Status(),
		Connection: c.ConnectionStatus(),
	}
}

// broadcastState marshals once and fans out without blocking
func (c *Controller) broadcastState() {
	c.subsMu.RLock()
	n := len(c.subs)
	c.subsMu.RUnlock()
	if n == 0 {
		return
	}

	data, err := json.Marshal(c.StateMessage())
	if err != nil {
		c.logger.Error("Failed to marshal state", "error", err)
		return
	}

	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for ch := range c.subs {
		select {
		case ch <- data:
		default:
			// Subscriber full, skip
		}
	}
}

// StartRefresh periodically pushes state to subscribers and updates channel gauges
func (c *Controller) StartRefresh(interval time.Duration) {
	if interval <= 0 || c.stopRefresh != nil {
		return
	}

	stop := make(chan struct{})
	c.stopRefresh = stop
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.logger.Info("State refresh started", "interval", interval)
		for {
			select {
			case <-ticker.C:
				c.refresh()
			case <-stop:
				c.logger.Info("State refresh stopped")
				return
			}
		}
	}()
}

// StopRefresh stops the periodic refresh
func (c *Controller) StopRefresh() {
	if c.stopRefresh != nil {
		close(c.stopRefresh)
		c.stopRefresh = nil
	}
}

func (c *Controller) refresh() {
	cur := c.engine.Current()
	metrics.SetChannelValues(cur.Values(dmx.UniverseSize - 1))
	c.broadcastState()
}
