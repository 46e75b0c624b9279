// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/goburrow/serial"

	"dmx-life/internal/config"
	"dmx-life/internal/dmx"
)

// Enttec Pro framing
const (
	serialStartByte = 0x7E
	serialEndByte   = 0xE7
	labelSendDMX    = 0x06
	dmxStartCode    = 0x00

	// SerialFrameSize is the encoded size of one universe
	SerialFrameSize = 518
)

// autoPort selects the device by enumeration
const autoPort = "auto"

// EncodeSerialFrame wraps a universe in the Enttec "send DMX" message.
// The payload length (513 = start code + 512 channels) is little-endian.
func EncodeSerialFrame(frame *dmx.Frame) []byte {
	pkt := make([]byte, SerialFrameSize)
	pkt[0] = serialStartByte
	pkt[1] = labelSendDMX
	pkt[2] = byte((dmx.UniverseSize + 1) & 0xFF)
	pkt[3] = byte((dmx.UniverseSize + 1) >> 8)
	pkt[4] = dmxStartCode
	copy(pkt[5:], frame[:])
	pkt[SerialFrameSize-1] = serialEndByte
	return pkt
}

// Serial sends frames to a USB-DMX interface over a serial device
type Serial struct {
	logger *slog.Logger

	// overridable in tests
	open      func(cfg *serial.Config) (io.WriteCloser, error)
	enumerate func() ([]PortInfo, error)

	mu      sync.Mutex // serializes sends and lifecycle
	cfg     config.OutputConfig
	port    io.WriteCloser
	device  string
	pending chan error // result of a write that outlived its context
}

// NewSerial creates an unstarted serial transport
func NewSerial(cfg config.OutputConfig, logger *slog.Logger) *Serial {
	cfg.Kind = config.KindSerial
	return &Serial{
		logger: logger,
		open: func(c *serial.Config) (io.WriteCloser, error) {
			return serial.Open(c)
		},
		enumerate: ListPorts,
		cfg:       cfg,
	}
}

// Kind implements Output
func (s *Serial) Kind() string { return config.KindSerial }

// Start resolves the device and opens it
func (s *Serial) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Serial) startLocked() error {
	if s.port != nil {
		return nil
	}

	c := s.cfg.Serial
	device := c.Port
	if device == "" || device == autoPort {
		ports, err := s.enumerate()
		if err != nil {
			s.logger.Warn("Serial port enumeration failed", "error", err)
		}
		p, ok := SelectPort(ports)
		if !ok {
			return ErrNoDevice
		}
		device = p.Device
		s.logger.Info("Auto-detected USB-DMX device", "device", device, "description", p.Description)
	}

	port, err := s.open(&serial.Config{
		Address:  device,
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: c.StopBits,
		Parity:   c.Parity,
		Timeout:  time.Duration(c.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("open serial %s: %w", device, err)
	}

	s.port = port
	s.device = device
	s.pending = nil
	s.logger.Info("USB-DMX output started", "device", device, "baud", c.BaudRate)
	return nil
}

// Stop closes the device
func (s *Serial) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Serial) stopLocked() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.pending = nil
	if err != nil {
		return fmt.Errorf("close serial %s: %w", s.device, err)
	}
	s.logger.Info("USB-DMX output stopped", "device", s.device)
	return nil
}

// Started implements Output
func (s *Serial) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// SendFrame writes one encoded frame. A write that does not finish before
// ctx expires keeps running in the background; later sends fail with
// ErrSendBusy until it completes.
func (s *Serial) SendFrame(ctx context.Context, frame dmx.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return ErrNotStarted
	}

	if s.pending != nil {
		select {
		case err := <-s.pending:
			s.pending = nil
			if err != nil {
				s.logger.Debug("Late serial write failed", "error", err)
			}
		default:
			return ErrSendBusy
		}
	}

	ctx, cancel := sendContext(ctx)
	defer cancel()

	pkt := EncodeSerialFrame(&frame)
	port := s.port
	done := make(chan error, 1)
	go func() {
		n, err := port.Write(pkt)
		if err == nil && n != len(pkt) {
			err = io.ErrShortWrite
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("write serial %s: %w", s.device, err)
		}
		return nil
	case <-ctx.Done():
		s.pending = done
		return fmt.Errorf("write serial %s: %w", s.device, ctx.Err())
	}
}

// IsAvailable reports whether a device can be opened: for "auto" at least
// one candidate is enumerated, otherwise the named port exists.
func (s *Serial) IsAvailable(ctx context.Context) bool {
	s.mu.Lock()
	name := s.cfg.Serial.Port
	s.mu.Unlock()

	ports, _ := s.enumerate()
	if name == "" || name == autoPort {
		_, ok := SelectPort(ports)
		return ok
	}
	for _, p := range ports {
		if p.Device == name {
			return true
		}
	}
	_, err := os.Stat(name)
	return err == nil
}

// Status implements Output
func (s *Serial) Status(ctx context.Context) Status {
	s.mu.Lock()
	c := s.cfg.Serial
	started := s.port != nil
	device := s.device
	s.mu.Unlock()

	ports, err := s.enumerate()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("Serial port enumeration failed", "error", err)
	}
	if ports == nil {
		ports = []PortInfo{}
	}

	return Status{
		Kind:      config.KindSerial,
		Started:   started,
		Available: s.IsAvailable(ctx),
		Serial: &SerialStatus{
			Port:     c.Port,
			Device:   device,
			BaudRate: c.BaudRate,
			Ports:    ports,
		},
	}
}

// Config implements Output
func (s *Serial) Config() config.OutputConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// UpdateConfig replaces the settings, reopening the device if it was open
func (s *Serial) UpdateConfig(cfg config.OutputConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.Kind = config.KindSerial
	s.cfg = cfg
	if s.port == nil {
		return nil
	}

	if err := s.stopLocked(); err != nil {
		s.logger.Warn("USB-DMX stop during reconfigure failed", "error", err)
	}
	time.Sleep(restartPause)
	return s.startLocked()
}
