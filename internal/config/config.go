// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"dmx-life/internal/fixture"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for missing config
func (c *Config) applyDefaults() {
	if c.Server.HTTP == "" {
		c.Server.HTTP = ":8080"
	}
	c.Output.applyDefaults()
	for i := range c.Fixtures {
		if c.Fixtures[i].Type == "" {
			c.Fixtures[i].Type = fixture.DefaultType
		}
		if c.Fixtures[i].ChannelCount == 0 {
			c.Fixtures[i].ChannelCount = len(fixture.Channels(c.Fixtures[i].Type))
		}
	}
}

// WithDefaults returns a copy with unset fields defaulted
func (o OutputConfig) WithDefaults() OutputConfig {
	o.applyDefaults()
	return o
}

func (o *OutputConfig) applyDefaults() {
	if o.Kind == "" {
		o.Kind = KindArtNet
	}

	a := &o.ArtNet
	if a.Address == "" {
		a.Address = "255.255.255.255"
	}
	if a.Port == 0 {
		a.Port = 6454
	}
	if a.RefreshRate == 0 {
		a.RefreshRate = 30
	}

	s := &o.Serial
	if s.Port == "" {
		s.Port = "auto"
	}
	if s.BaudRate == 0 {
		// USB widgets ignore the host baud rate; 250000 is not a termios speed
		s.BaudRate = 57600
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 2
	}
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.TimeoutMs == 0 {
		s.TimeoutMs = 1000
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if err := c.Output.Validate(); err != nil {
		return err
	}

	fixtureNames := make(map[string]struct{}, len(c.Fixtures))
	for _, f := range c.Fixtures {
		if err := f.Validate(); err != nil {
			return err
		}
		if _, dup := fixtureNames[f.Name]; dup {
			return fmt.Errorf("fixture %q defined twice", f.Name)
		}
		fixtureNames[f.Name] = struct{}{}
	}

	sceneNames := make(map[string]struct{}, len(c.Scenes))
	for _, s := range c.Scenes {
		if s.Name == "" {
			return fmt.Errorf("scene without name")
		}
		if _, dup := sceneNames[s.Name]; dup {
			return fmt.Errorf("scene %q defined twice", s.Name)
		}
		sceneNames[s.Name] = struct{}{}
		if len(s.Channels) > UniverseSize {
			return fmt.Errorf("scene %q: %d channel values exceed universe size %d", s.Name, len(s.Channels), UniverseSize)
		}
	}

	return nil
}

// Validate checks a single fixture.
// Ranges running past channel 512 are accepted; the compositor clips them.
func (f Fixture) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("fixture without name")
	}
	if f.StartChannel < 1 || f.StartChannel > UniverseSize {
		return fmt.Errorf("fixture %q: start channel %d out of range (1-%d)", f.Name, f.StartChannel, UniverseSize)
	}
	if f.ChannelCount < 1 {
		return fmt.Errorf("fixture %q: channel count %d must be positive", f.Name, f.ChannelCount)
	}
	return nil
}

// Validate checks the output section
func (o OutputConfig) Validate() error {
	switch o.Kind {
	case KindArtNet, KindSerial:
	default:
		return fmt.Errorf("unsupported output kind %q", o.Kind)
	}
	a := o.ArtNet
	if a.Universe < 0 || a.Universe > 15 {
		return fmt.Errorf("artnet universe %d out of range (0-15)", a.Universe)
	}
	if a.Subnet < 0 || a.Subnet > 15 {
		return fmt.Errorf("artnet subnet %d out of range (0-15)", a.Subnet)
	}
	if a.Net < 0 || a.Net > 127 {
		return fmt.Errorf("artnet net %d out of range (0-127)", a.Net)
	}
	if a.RefreshRate < 1 || a.RefreshRate > 44 {
		return fmt.Errorf("artnet refresh rate %d out of range (1-44)", a.RefreshRate)
	}
	switch o.Serial.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("serial parity %q must be N, E or O", o.Serial.Parity)
	}
	return nil
}

// Merge overlays a JSON object onto a copy of the output config.
// Keys absent from overrides keep their current value.
func (o OutputConfig) Merge(overrides []byte) (OutputConfig, error) {
	merged := o
	if len(overrides) == 0 {
		return merged, nil
	}
	if err := json.Unmarshal(overrides, &merged); err != nil {
		return o, fmt.Errorf("decode output overrides: %w", err)
	}
	merged.applyDefaults()
	if err := merged.Validate(); err != nil {
		return o, err
	}
	return merged, nil
}

// FindScene returns the scene with the given name
func (c *Config) FindScene(name string) (Scene, bool) {
	for _, s := range c.Scenes {
		if s.Name == name {
			return s, true
		}
	}
	return Scene{}, false
}

// SceneNames returns scene names in file order
func (c *Config) SceneNames() []string {
	names := make([]string, len(c.Scenes))
	for i, s := range c.Scenes {
		names[i] = s.Name
	}
	return names
}

// ResolveFixtures returns all fixtures with channel names from the type catalog.
// Channels beyond the catalog layout are named "Channel N"; channels past 512 are dropped.
func (c *Config) ResolveFixtures() []ResolvedFixture {
	result := make([]ResolvedFixture, 0, len(c.Fixtures))

	for _, f := range c.Fixtures {
		layout := fixture.Channels(f.Type)
		rf := ResolvedFixture{Fixture: f}

		for i := 0; i < f.ChannelCount; i++ {
			ch := f.StartChannel + i
			if ch > UniverseSize {
				break
			}
			rc := ResolvedChannel{Ch: ch, Name: fmt.Sprintf("Channel %d", i+1)}
			if i < len(layout) {
				rc.Name = layout[i].Name
				rc.Default = layout[i].Default
			}
			rf.Channels = append(rf.Channels, rc)
		}

		result = append(result, rf)
	}

	return result
}
