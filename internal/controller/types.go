// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package controller

import "dmx-life/internal/dmx"

// Typed response structs shared by the HTTP, WebSocket, MQTT and Modbus front ends

// Status is the live monitoring view of the output
type Status struct {
	ActiveScene   string `json:"active_scene"`
	HighestActive int    `json:"highest_active"` // -1 until a scene or test frame is applied
	Values        []int  `json:"values"`         // current output, channels 0..HighestActive
	Transition    bool   `json:"transition"`
}

// SceneList lists configured scenes in file order
type SceneList struct {
	Scenes []SceneInfo `json:"scenes"`
	Active string      `json:"active_scene"`
}

// SceneInfo is one scene entry of SceneList
type SceneInfo struct {
	Index    int      `json:"index"` // 1-based, as used by the Modbus recall register
	Name     string   `json:"name"`
	Fixtures []string `json:"enabledFixtures,omitempty"`
	Active   bool     `json:"active"`
}

// StateMessage is pushed to subscribers on every change and on refresh
type StateMessage struct {
	Type       string               `json:"type"` // always "state"
	Output     string               `json:"output"`
	Status     Status               `json:"status"`
	Connection dmx.ConnectionStatus `json:"connection"`
}
