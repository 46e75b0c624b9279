// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package output implements the DMX transports: Art-Net over UDP and
// Enttec-style framing over a USB serial device.
package output

import (
	"context"
	"errors"
	"time"

	"dmx-life/internal/config"
	"dmx-life/internal/dmx"
)

var (
	// ErrUnknownKind is returned for an unsupported transport kind
	ErrUnknownKind = errors.New("unknown output kind")
	// ErrNotStarted is returned by SendFrame before Start
	ErrNotStarted = errors.New("output not started")
	// ErrNoDevice is returned when no serial device can be selected
	ErrNoDevice = errors.New("no USB-DMX device found")
	// ErrSendBusy is returned while an earlier write is still blocked
	ErrSendBusy = errors.New("previous send still in progress")
)

const (
	// restartPause separates stop and start when applying a new config
	restartPause = 100 * time.Millisecond

	// defaultSendTimeout applies when the caller's context has no deadline
	defaultSendTimeout = time.Second
)

// Output is one transport binding. Implementations are safe for concurrent use.
type Output interface {
	dmx.Sender

	// Kind returns the transport kind (config.KindArtNet, config.KindSerial)
	Kind() string
	// Start acquires the socket or device. Starting twice is a no-op.
	Start() error
	// Stop releases the resource. Safe when not started.
	Stop() error
	// Started reports whether Start succeeded and Stop was not called since
	Started() bool
	// IsAvailable checks reachability; it may block up to the ping timeout
	IsAvailable(ctx context.Context) bool
	// Status describes the transport
	Status(ctx context.Context) Status
	// Config returns the full output config this transport was built from
	Config() config.OutputConfig
	// UpdateConfig applies cfg, restarting the transport if it is started
	UpdateConfig(cfg config.OutputConfig) error
}

// Status is the transport status record
type Status struct {
	Kind      string        `json:"type"`
	Started   bool          `json:"is_started"`
	Available bool          `json:"is_available"`
	ArtNet    *ArtNetStatus `json:"artnet,omitempty"`
	Serial    *SerialStatus `json:"serial,omitempty"`
}

// ArtNetStatus holds network transport fields
type ArtNetStatus struct {
	Address  string `json:"target_ip"`
	Port     int    `json:"port"`
	Net      int    `json:"net"`
	Subnet   int    `json:"subnet"`
	Universe int    `json:"universe"`
	Sync     bool   `json:"sync"`
	Sequence uint8  `json:"sequence"`
}

// SerialStatus holds serial transport fields
type SerialStatus struct {
	Port     string     `json:"port"`
	Device   string     `json:"device,omitempty"` // resolved path when Port is "auto"
	BaudRate int        `json:"baud_rate"`
	Ports    []PortInfo `json:"available_ports"`
}

// sendContext bounds ctx with defaultSendTimeout when it has no deadline
func sendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultSendTimeout)
}
