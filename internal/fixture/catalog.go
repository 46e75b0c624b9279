// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

// Package fixture holds the static catalog of fixture types and their channel layouts.
package fixture

import "sort"

// DefaultType is used for fixtures whose type is not in the catalog
const DefaultType = "Generic"

// Channel describes one channel of a fixture type
type Channel struct {
	Name    string `json:"name"`
	Default uint8  `json:"default"`
}

var types = map[string][]Channel{
	"Generic": {
		{Name: "Dimmer"},
	},
	"RGB": {
		{Name: "Red"},
		{Name: "Green"},
		{Name: "Blue"},
	},
	"RGBW": {
		{Name: "Red"},
		{Name: "Green"},
		{Name: "Blue"},
		{Name: "White"},
	},
	"Moving Head": {
		{Name: "Pan", Default: 128},
		{Name: "Tilt", Default: 128},
		{Name: "Pan Fine"},
		{Name: "Tilt Fine"},
		{Name: "Speed"},
		{Name: "Dimmer"},
		{Name: "Red"},
		{Name: "Green"},
		{Name: "Blue"},
		{Name: "White"},
		{Name: "Gobo"},
		{Name: "Gobo Rotation"},
		{Name: "Color"},
		{Name: "Prism"},
	},
}

// Types returns the catalog type names, sorted
func Types() []string {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Channels returns the channel layout of a type, falling back to Generic.
// The returned slice is a copy.
func Channels(typeName string) []Channel {
	chans, ok := types[typeName]
	if !ok {
		chans = types[DefaultType]
	}
	out := make([]Channel, len(chans))
	copy(out, chans)
	return out
}

// Known reports whether the type is in the catalog
func Known(typeName string) bool {
	_, ok := types[typeName]
	return ok
}
