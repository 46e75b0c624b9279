// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package scheduler

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"dmx-life/internal/config"
)

type recorder struct {
	scenes []string
	err    error
}

func (r *recorder) Activate(name string) error {
	r.scenes = append(r.scenes, name)
	return r.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T, at time.Time, events ...config.ScheduleEvent) (*Scheduler, *recorder) {
	t.Helper()
	rec := &recorder{}
	s, err := New(&config.ScheduleConfig{Timezone: "UTC", Events: events}, rec, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.now = func() time.Time { return at }
	return s, rec
}

func TestCheckRecallsSceneOnce(t *testing.T) {
	at := time.Date(2025, 6, 1, 19, 30, 0, 0, time.UTC)
	s, rec := newTestScheduler(t, at,
		config.ScheduleEvent{Time: "19:30", Scene: "Evening"},
		config.ScheduleEvent{Time: "23:00:00", Scene: "Night"},
	)

	s.check()
	s.check()

	if len(rec.scenes) != 1 || rec.scenes[0] != "Evening" {
		t.Fatalf("expected one Evening recall, got %v", rec.scenes)
	}
}

func TestCheckCatchesUpAfterLateTick(t *testing.T) {
	at := time.Date(2025, 6, 1, 19, 29, 59, 0, time.UTC)
	s, rec := newTestScheduler(t, at,
		config.ScheduleEvent{Time: "19:30:00", Scene: "Evening"},
		config.ScheduleEvent{Time: "19:30:00", Scene: "Porch"},
	)
	s.now = func() time.Time { return at }

	s.check()
	at = at.Add(2 * time.Second) // 19:30:00 was never checked
	s.check()
	s.check()

	if len(rec.scenes) != 2 || rec.scenes[0] != "Evening" || rec.scenes[1] != "Porch" {
		t.Fatalf("expected Evening and Porch once each, got %v", rec.scenes)
	}
}

func TestCheckAcrossMidnight(t *testing.T) {
	at := time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC)
	s, rec := newTestScheduler(t, at, config.ScheduleEvent{Time: "00:00", Scene: "Off"})
	s.now = func() time.Time { return at }

	s.check()
	at = at.Add(1500 * time.Millisecond)
	s.check()

	if len(rec.scenes) != 1 || rec.scenes[0] != "Off" {
		t.Fatalf("expected one Off recall, got %v", rec.scenes)
	}
}

func TestCheckSkipsEventsAfterLongGap(t *testing.T) {
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	s, rec := newTestScheduler(t, at, config.ScheduleEvent{Time: "10:00", Scene: "Late"})
	s.now = func() time.Time { return at }

	s.check()
	at = at.Add(4 * time.Hour)
	s.check()

	if len(rec.scenes) != 0 {
		t.Fatalf("expected no replay after a long gap, got %v", rec.scenes)
	}
}

func TestCheckIgnoresOtherTimes(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC)
	s, rec := newTestScheduler(t, at, config.ScheduleEvent{Time: "12:00", Scene: "Noon"})

	s.check()
	if len(rec.scenes) != 0 {
		t.Fatalf("expected no recall, got %v", rec.scenes)
	}
}

func TestActivateErrorDoesNotStopScheduler(t *testing.T) {
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	s, rec := newTestScheduler(t, at, config.ScheduleEvent{Time: "08:00", Scene: "Gone"})
	rec.err = errors.New("scene not found")

	s.check()
	if len(rec.scenes) != 1 {
		t.Fatalf("expected a recall attempt, got %v", rec.scenes)
	}
}

func TestInvalidTimesSkippedAndSorted(t *testing.T) {
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, at,
		config.ScheduleEvent{Time: "22:00", Scene: "Late"},
		config.ScheduleEvent{Time: "25:99", Scene: "Bad"},
		config.ScheduleEvent{Time: "06:15", Scene: "Early"},
	)

	events := s.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Scene != "Early" || events[0].Time != "06:15:00" {
		t.Errorf("unexpected first event %+v", events[0])
	}
}

func TestNextEventWrapsToTomorrow(t *testing.T) {
	at := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, at,
		config.ScheduleEvent{Time: "07:00", Scene: "Morning"},
		config.ScheduleEvent{Time: "20:00", Scene: "Evening"},
	)

	next := s.NextEvent()
	if next == nil {
		t.Fatal("expected a next event")
	}
	if next.Scene != "Morning" || next.In != 8*time.Hour {
		t.Errorf("unexpected next event %+v", next)
	}
}

func TestNextEventToday(t *testing.T) {
	at := time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, at,
		config.ScheduleEvent{Time: "07:00", Scene: "Morning"},
		config.ScheduleEvent{Time: "20:00", Scene: "Evening"},
	)

	next := s.NextEvent()
	if next == nil || next.Scene != "Evening" || next.In != time.Hour {
		t.Errorf("unexpected next event %+v", next)
	}
}

func TestNextEventEmpty(t *testing.T) {
	s, _ := newTestScheduler(t, time.Now())
	if s.NextEvent() != nil {
		t.Error("expected nil without events")
	}
}

func TestBadTimezone(t *testing.T) {
	_, err := New(&config.ScheduleConfig{Timezone: "Mars/Olympus"}, &recorder{}, testLogger())
	if err == nil {
		t.Error("expected error for unknown timezone")
	}
}
