// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadValidConfig(t *testing.T) {
	yaml := `
fixtures:
  - { name: Par1, type: RGB, start_channel: 1, channel_count: 3 }
scenes:
  - name: Red
    channels: [255, 0, 0]
    enabledFixtures: [Par1]
`
	cfg := loadFromString(t, yaml)

	if len(cfg.Fixtures) != 1 {
		t.Errorf("expected 1 fixture, got %d", len(cfg.Fixtures))
	}

	scene, ok := cfg.FindScene("Red")
	if !ok {
		t.Fatal("scene Red not found")
	}
	if len(scene.EnabledFixtures) != 1 || scene.EnabledFixtures[0] != "Par1" {
		t.Errorf("unexpected enabled fixtures %v", scene.EnabledFixtures)
	}
}

func TestLoadDefaultValues(t *testing.T) {
	cfg := loadFromString(t, `fixtures: []`)

	if cfg.Server.HTTP != ":8080" {
		t.Errorf("expected default http :8080, got %s", cfg.Server.HTTP)
	}
	if cfg.Output.Kind != KindArtNet {
		t.Errorf("expected default kind artnet, got %s", cfg.Output.Kind)
	}
	if cfg.Output.ArtNet.Address != "255.255.255.255" {
		t.Errorf("expected broadcast address, got %s", cfg.Output.ArtNet.Address)
	}
	if cfg.Output.ArtNet.Port != 6454 {
		t.Errorf("expected port 6454, got %d", cfg.Output.ArtNet.Port)
	}
	if cfg.Output.ArtNet.RefreshRate != 30 {
		t.Errorf("expected refresh 30, got %d", cfg.Output.ArtNet.RefreshRate)
	}
	if cfg.Output.Serial.Port != "auto" {
		t.Errorf("expected serial port auto, got %s", cfg.Output.Serial.Port)
	}
	if cfg.Output.Serial.StopBits != 2 {
		t.Errorf("expected 2 stop bits, got %d", cfg.Output.Serial.StopBits)
	}
}

func TestFixtureChannelCountFromType(t *testing.T) {
	yaml := `
fixtures:
  - { name: Wash, type: RGBW, start_channel: 10 }
`
	cfg := loadFromString(t, yaml)
	if cfg.Fixtures[0].ChannelCount != 4 {
		t.Errorf("expected channel count 4 from RGBW, got %d", cfg.Fixtures[0].ChannelCount)
	}
}

func TestValidateStartChannelOutOfRange(t *testing.T) {
	yaml := `
fixtures:
  - { name: Par1, start_channel: 0, channel_count: 3 }
`
	if _, err := loadFromStringErr(yaml); err == nil {
		t.Error("expected error for start channel 0")
	}

	yaml = `
fixtures:
  - { name: Par1, start_channel: 513, channel_count: 1 }
`
	if _, err := loadFromStringErr(yaml); err == nil {
		t.Error("expected error for start channel 513")
	}
}

func TestValidateOverflowingRangeAccepted(t *testing.T) {
	yaml := `
fixtures:
  - { name: Tail, start_channel: 510, channel_count: 8 }
`
	if _, err := loadFromStringErr(yaml); err != nil {
		t.Errorf("overflowing range should be clipped, not rejected: %v", err)
	}
}

func TestValidateDuplicateNames(t *testing.T) {
	yaml := `
fixtures:
  - { name: Par1, start_channel: 1, channel_count: 3 }
  - { name: Par1, start_channel: 4, channel_count: 3 }
`
	if _, err := loadFromStringErr(yaml); err == nil {
		t.Error("expected error for duplicate fixture")
	}

	yaml = `
scenes:
  - { name: A, channels: [1] }
  - { name: A, channels: [2] }
`
	if _, err := loadFromStringErr(yaml); err == nil {
		t.Error("expected error for duplicate scene")
	}
}

func TestValidateUnknownKind(t *testing.T) {
	yaml := `
output:
  kind: dmx512-over-carrier-pigeon
`
	if _, err := loadFromStringErr(yaml); err == nil {
		t.Error("expected error for unknown output kind")
	}
}

func TestMergeOverrides(t *testing.T) {
	cfg := loadFromString(t, `fixtures: []`)

	merged, err := cfg.Output.Merge([]byte(`{"kind":"usb_dmx","serial":{"port":"/dev/ttyUSB0"}}`))
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if merged.Kind != KindSerial {
		t.Errorf("expected kind usb_dmx, got %s", merged.Kind)
	}
	if merged.Serial.Port != "/dev/ttyUSB0" {
		t.Errorf("expected port override, got %s", merged.Serial.Port)
	}
	if merged.Serial.StopBits != 2 {
		t.Errorf("untouched keys should survive merge, got stop bits %d", merged.Serial.StopBits)
	}
	if cfg.Output.Kind != KindArtNet {
		t.Error("merge must not mutate the receiver")
	}

	if _, err := cfg.Output.Merge([]byte(`{"artnet":{"universe":99}}`)); err == nil {
		t.Error("expected validation error for universe 99")
	}
	if _, err := cfg.Output.Merge([]byte(`not json`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestResolveFixtures(t *testing.T) {
	yaml := `
fixtures:
  - { name: Par1, type: RGB, start_channel: 1, channel_count: 4 }
  - { name: Tail, type: Generic, start_channel: 511, channel_count: 4 }
`
	cfg := loadFromString(t, yaml)
	fixtures := cfg.ResolveFixtures()

	if len(fixtures) != 2 {
		t.Fatalf("expected 2 fixtures, got %d", len(fixtures))
	}

	par := fixtures[0]
	if par.Channels[0].Name != "Red" || par.Channels[2].Name != "Blue" {
		t.Errorf("unexpected channel names %+v", par.Channels)
	}
	if par.Channels[3].Name != "Channel 4" {
		t.Errorf("expected generic name for extra channel, got %s", par.Channels[3].Name)
	}

	tail := fixtures[1]
	if len(tail.Channels) != 2 {
		t.Errorf("expected channels clipped at 512, got %d", len(tail.Channels))
	}
}

func TestStoreReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "scenes:\n  - { name: A, channels: [1] }\n")

	store, err := NewStore(path, discardLogger())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	reloaded := make(chan *Config, 1)
	store.OnReload(func(c *Config) { reloaded <- c })

	writeFile(t, path, "scenes:\n  - { name: B, channels: [2] }\n")
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if _, ok := store.Scene("B"); !ok {
		t.Error("scene B should exist after reload")
	}
	select {
	case <-reloaded:
	default:
		t.Error("reload hook not called")
	}

	// A broken file keeps the previous snapshot
	writeFile(t, path, "scenes: [\n")
	if err := store.Reload(); err == nil {
		t.Error("expected parse error")
	}
	if _, ok := store.Scene("B"); !ok {
		t.Error("previous snapshot should survive a failed reload")
	}
}

func TestStoreWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "scenes:\n  - { name: A, channels: [1] }\n")

	store, err := NewStore(path, discardLogger())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 4)
	store.OnReload(func(*Config) { reloaded <- struct{}{} })

	if err := store.Watch(ctx); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writeFile(t, path, "scenes:\n  - { name: C, channels: [3] }\n")

	// A single write may surface as several events; wait until the final content is seen
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-reloaded:
			if _, ok := store.Scene("C"); ok {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for scene C after watched reload")
		}
	}
}

// Helper functions

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func loadFromString(t *testing.T, yaml string) *Config {
	t.Helper()
	cfg, err := loadFromStringErr(yaml)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func loadFromStringErr(yaml string) (*Config, error) {
	dir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		return nil, err
	}

	return Load(path)
}
