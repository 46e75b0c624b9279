// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package scheduler

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"dmx-life/internal/config"
)

// maxCatchUp bounds how far back a late check looks for missed events.
// Longer gaps (suspend, clock jumps) skip the missed events.
const maxCatchUp = time.Minute

// Activator recalls a scene by name
type Activator interface {
	Activate(name string) error
}

// Event is a parsed schedule event with time components
type Event struct {
	Hour   int
	Minute int
	Second int
	Scene  string
}

// Scheduler recalls scenes at fixed times of day
type Scheduler struct {
	events   []Event
	target   Activator
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time

	mu        sync.RWMutex
	lastCheck time.Time // second of the previous check
	stopChan  chan struct{}
	running   bool
}

// New creates a new scheduler. Events with an unparsable time are skipped.
func New(cfg *config.ScheduleConfig, target Activator, logger *slog.Logger) (*Scheduler, error) {
	loc := time.Local
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, err
		}
	}

	events := make([]Event, 0, len(cfg.Events))
	for _, e := range cfg.Events {
		parsed, err := parseTime(e.Time)
		if err != nil {
			logger.Warn("Invalid schedule time", "time", e.Time, "error", err)
			continue
		}
		parsed.Scene = e.Scene
		events = append(events, parsed)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return timeToSeconds(events[i]) < timeToSeconds(events[j])
	})

	return &Scheduler{
		events:   events,
		target:   target,
		logger:   logger,
		location: loc,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.loop()
	s.logger.Info("Scheduler started", "events", len(s.events), "timezone", s.location.String())
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.logger.Info("Scheduler stopped")
}

// loop checks every second for events to execute
func (s *Scheduler) loop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.check()
		case <-s.stopChan:
			return
		}
	}
}

// check recalls every event that fell due since the previous check,
// so a late tick does not skip an event
func (s *Scheduler) check() {
	now := s.now().In(s.location).Truncate(time.Second)

	s.mu.Lock()
	from := s.lastCheck
	s.lastCheck = now
	s.mu.Unlock()

	if from.IsZero() || now.Sub(from) > maxCatchUp {
		from = now.Add(-time.Second)
	}
	if !now.After(from) {
		return
	}

	for _, e := range s.events {
		if lastOccurrence(e, now).After(from) {
			s.execute(e)
		}
	}
}

// lastOccurrence returns the latest time at or before now when e was due
func lastOccurrence(e Event, now time.Time) time.Time {
	y, m, d := now.Date()
	at := time.Date(y, m, d, e.Hour, e.Minute, e.Second, 0, now.Location())
	if at.After(now) {
		at = time.Date(y, m, d-1, e.Hour, e.Minute, e.Second, 0, now.Location())
	}
	return at
}

func (s *Scheduler) execute(e Event) {
	s.logger.Info("Executing scheduled scene", "time", formatTime(e), "scene", e.Scene)
	if err := s.target.Activate(e.Scene); err != nil {
		s.logger.Error("Scheduled scene failed", "scene", e.Scene, "error", err)
	}
}

// NextEvent returns the next scheduled event, wrapping to tomorrow
func (s *Scheduler) NextEvent() *NextEventInfo {
	if len(s.events) == 0 {
		return nil
	}

	now := s.now().In(s.location)
	nowSec := now.Hour()*3600 + now.Minute()*60 + now.Second()

	e := s.events[0]
	secsUntil := (24*3600 - nowSec) + timeToSeconds(e)
	for _, cand := range s.events {
		if eSec := timeToSeconds(cand); eSec > nowSec {
			e, secsUntil = cand, eSec-nowSec
			break
		}
	}

	in := time.Duration(secsUntil) * time.Second
	return &NextEventInfo{
		Time:  formatTime(e),
		Scene: e.Scene,
		In:    in,
		InStr: in.String(),
	}
}

// Events returns all scheduled events in time order
func (s *Scheduler) Events() []EventInfo {
	result := make([]EventInfo, len(s.events))
	for i, e := range s.events {
		result[i] = EventInfo{Time: formatTime(e), Scene: e.Scene}
	}
	return result
}

// NextEventInfo describes the next scheduled event
type NextEventInfo struct {
	Time  string        `json:"time"`
	Scene string        `json:"scene"`
	In    time.Duration `json:"in"`
	InStr string        `json:"in_str"`
}

// EventInfo describes a scheduled event
type EventInfo struct {
	Time  string `json:"time"`
	Scene string `json:"scene"`
}

func parseTime(s string) (Event, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		// Try without seconds
		t, err = time.Parse("15:04", s)
		if err != nil {
			return Event{}, err
		}
	}
	return Event{
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}, nil
}

func formatTime(e Event) string {
	return time.Date(0, 1, 1, e.Hour, e.Minute, e.Second, 0, time.UTC).Format("15:04:05")
}

func timeToSeconds(e Event) int {
	return e.Hour*3600 + e.Minute*60 + e.Second
}
