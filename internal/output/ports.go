// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package output

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes one enumerated serial device
type PortInfo struct {
	Device      string `json:"device"`
	Description string `json:"description"`
	VID         string `json:"vid,omitempty"`
	PID         string `json:"pid,omitempty"`
	IsDMX       bool   `json:"is_dmx"`
}

// knownDevices lists USB-DMX adapters by VID:PID
var knownDevices = map[string]string{
	"0403:6001": "FTDI FT232 (Enttec Open DMX)",
	"16c0:05dc": "Enttec Open DMX USB",
	"0403:6015": "DMXking ultraDMX",
}

var (
	dmxTerms      = []string{"DMX", "ENTTEC", "FTDI", "DMXKING"}
	fallbackTerms = []string{"USB", "SERIAL"}
)

// ListPorts enumerates USB serial devices
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return portsFromDetails(details), nil
}

// portsFromDetails keeps USB devices, names them and flags DMX adapters
func portsFromDetails(details []*enumerator.PortDetails) []PortInfo {
	var ports []PortInfo
	for _, d := range details {
		if d == nil || !d.IsUSB {
			continue
		}

		p := PortInfo{
			Device: d.Name,
			VID:    strings.ToLower(d.VID),
			PID:    strings.ToLower(d.PID),
		}
		product := strings.TrimSpace(d.Product)
		if product == "" {
			product = knownDevices[vidPID(p)]
		}
		p.Description = describe(filepath.Base(d.Name), product)
		p.IsDMX = isDMXDevice(p)
		ports = append(ports, p)
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Device < ports[j].Device })
	return ports
}

func describe(name, product string) string {
	if product == "" {
		return name
	}
	return product + " (" + name + ")"
}

func isDMXDevice(p PortInfo) bool {
	if _, ok := knownDevices[vidPID(p)]; ok {
		return true
	}
	return containsAny(p.Description, dmxTerms)
}

func vidPID(p PortInfo) string {
	return strings.ToLower(p.VID + ":" + p.PID)
}

func containsAny(s string, terms []string) bool {
	s = strings.ToUpper(s)
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// SelectPort picks a DMX-looking device first, then any USB serial adapter
func SelectPort(ports []PortInfo) (PortInfo, bool) {
	for _, p := range ports {
		if p.IsDMX {
			return p, true
		}
	}
	for _, p := range ports {
		if containsAny(p.Description, fallbackTerms) {
			return p, true
		}
	}
	return PortInfo{}, false
}
