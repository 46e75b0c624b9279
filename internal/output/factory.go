// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package output

import (
	"fmt"
	"log/slog"
	"sort"

	"dmx-life/internal/config"
)

// Factory builds an unstarted Output from config
type Factory func(cfg config.OutputConfig, logger *slog.Logger) (Output, error)

// KindInfo describes a transport kind for the setup UI
type KindInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    []string `json:"required_config"`
	Optional    []string `json:"optional_config"`
}

type kindEntry struct {
	build func(cfg config.OutputConfig, logger *slog.Logger) Output
	info  KindInfo
}

var kinds = map[string]kindEntry{
	config.KindArtNet: {
		build: func(cfg config.OutputConfig, logger *slog.Logger) Output { return NewArtNet(cfg, logger) },
		info: KindInfo{
			Name:        "Art-Net",
			Description: "DMX over Ethernet/WiFi using Art-Net protocol",
			Required:    []string{"address", "universe"},
			Optional:    []string{"port", "net", "subnet", "sync", "refresh_rate"},
		},
	},
	config.KindSerial: {
		build: func(cfg config.OutputConfig, logger *slog.Logger) Output { return NewSerial(cfg, logger) },
		info: KindInfo{
			Name:        "USB-DMX",
			Description: "Direct USB connection to DMX interface",
			Required:    []string{},
			Optional:    []string{"port", "baud_rate", "data_bits", "stop_bits", "parity", "timeout_ms"},
		},
	},
}

// New builds the transport selected by cfg.Kind
func New(cfg config.OutputConfig, logger *slog.Logger) (Output, error) {
	entry, ok := kinds[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %v)", ErrUnknownKind, cfg.Kind, Kinds())
	}
	logger.Info("Created DMX output", "kind", cfg.Kind)
	return entry.build(cfg, logger), nil
}

// Kinds returns the supported kinds, sorted
func Kinds() []string {
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Info returns the description of every kind
func Info() map[string]KindInfo {
	out := make(map[string]KindInfo, len(kinds))
	for k, e := range kinds {
		out[k] = e.info
	}
	return out
}
