// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package config

// UniverseSize is the number of channels in one DMX universe
const UniverseSize = 512

// Output kinds
const (
	KindArtNet = "artnet"
	KindSerial = "usb_dmx"
)

// Config is the root configuration structure
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Output   OutputConfig    `yaml:"output"`
	Modbus   *ModbusConfig   `yaml:"modbus,omitempty"`
	MQTT     *MQTTConfig     `yaml:"mqtt,omitempty"`
	Schedule *ScheduleConfig `yaml:"schedule,omitempty"`
	Fixtures []Fixture       `yaml:"fixtures"`
	Scenes   []Scene         `yaml:"scenes"`
}

// ServerConfig defines server endpoints
type ServerConfig struct {
	HTTP string `yaml:"http"`
}

// OutputConfig selects the active transport and carries the settings of every kind,
// so switching kinds keeps the other kind's settings around.
type OutputConfig struct {
	Kind   string       `yaml:"kind" json:"kind"`
	ArtNet ArtNetConfig `yaml:"artnet" json:"artnet"`
	Serial SerialConfig `yaml:"serial" json:"serial"`
}

// ArtNetConfig defines the network transport
type ArtNetConfig struct {
	Address     string `yaml:"address" json:"address"` // 255.255.255.255 = broadcast
	Port        int    `yaml:"port" json:"port"`
	Universe    int    `yaml:"universe" json:"universe"`
	Net         int    `yaml:"net" json:"net"`
	Subnet      int    `yaml:"subnet" json:"subnet"`
	Sync        bool   `yaml:"sync" json:"sync"`                 // send ArtSync after each frame
	RefreshRate int    `yaml:"refresh_rate" json:"refresh_rate"` // frames per second
}

// SerialConfig defines the USB-DMX transport
type SerialConfig struct {
	Port      string `yaml:"port" json:"port"` // device path or "auto"
	BaudRate  int    `yaml:"baud_rate" json:"baud_rate"`
	DataBits  int    `yaml:"data_bits" json:"data_bits"`
	StopBits  int    `yaml:"stop_bits" json:"stop_bits"`
	Parity    string `yaml:"parity" json:"parity"` // N, E or O
	TimeoutMs int    `yaml:"timeout_ms" json:"timeout_ms"`
}

// Fixture maps a physical device onto a contiguous channel range
type Fixture struct {
	Name         string `yaml:"name" json:"name"`
	Type         string `yaml:"type" json:"type"`
	StartChannel int    `yaml:"start_channel" json:"start_channel"` // 1-based
	ChannelCount int    `yaml:"channel_count" json:"channel_count"`
}

// Scene is a named full or partial universe snapshot
// Empty EnabledFixtures means the scene applies to every channel.
type Scene struct {
	Name            string   `yaml:"name" json:"name"`
	Channels        []int    `yaml:"channels" json:"channels"`
	EnabledFixtures []string `yaml:"enabledFixtures,omitempty" json:"enabledFixtures,omitempty"`
}

// ScheduleConfig defines scheduler settings
type ScheduleConfig struct {
	Timezone string          `yaml:"timezone"` // e.g. "Europe/Paris", defaults to local
	Events   []ScheduleEvent `yaml:"events"`
}

// ScheduleEvent recalls a scene at a time of day
type ScheduleEvent struct {
	Time  string `yaml:"time"` // "HH:MM:SS" or "HH:MM"
	Scene string `yaml:"scene"`
}

// ModbusConfig defines Modbus TCP server settings
// Presence of this section enables Modbus
type ModbusConfig struct {
	Port string `yaml:"port"` // ":502" or ":5020"
}

// MQTTConfig defines MQTT client settings
// Presence of this section enables MQTT
type MQTTConfig struct {
	Broker      string `yaml:"broker"`       // tcp://host:1883
	ClientID    string `yaml:"client_id"`    // optional
	Username    string `yaml:"username"`     // optional
	Password    string `yaml:"password"`     // optional
	TopicPrefix string `yaml:"topic_prefix"` // defaults to "dmx"
}

// ResolvedChannel is a fixture channel with its catalog name
type ResolvedChannel struct {
	Ch      int    `json:"ch"`
	Name    string `json:"name"`
	Default uint8  `json:"default"`
}

// ResolvedFixture is a fixture with all channels named
type ResolvedFixture struct {
	Fixture
	Channels []ResolvedChannel `json:"channels"`
}
