// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChannelValue is a gauge for DMX channel values (0-255)
	ChannelValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dmx_channel_value",
			Help: "Current DMX channel value (0-255)",
		},
		[]string{"channel"},
	)

	// Connected indicates if the last send reached the output
	Connected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dmx_output_connected",
			Help: "DMX output connected (1) or lost (0)",
		},
	)

	// TransitionActive is 1 while a cross-fade is running
	TransitionActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dmx_transition_active",
			Help: "Cross-fade in progress (1) or idle (0)",
		},
	)

	// FramesTotal counts frames handed to the output
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmx_frames_total",
			Help: "Total DMX frames sent by result",
		},
		[]string{"result"},
	)

	// CommandsTotal counts operator commands by type
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmx_commands_total",
			Help: "Total DMX commands by type",
		},
		[]string{"command"},
	)

	// ErrorsTotal counts errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmx_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	// OutputSwitches counts transport switches by target kind
	OutputSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmx_output_switches_total",
			Help: "Total output transport switches by kind",
		},
		[]string{"kind"},
	)
)

// SetConnected updates the connected metric
func SetConnected(connected bool) {
	Connected.Set(boolValue(connected))
}

// SetTransitionActive updates the transition metric
func SetTransitionActive(active bool) {
	TransitionActive.Set(boolValue(active))
}

// ObserveFrame counts one send attempt
func ObserveFrame(err error) {
	if err != nil {
		FramesTotal.WithLabelValues("error").Inc()
		return
	}
	FramesTotal.WithLabelValues("ok").Inc()
}

// SetChannelValues updates channel gauges for channels 0..last (0-based)
func SetChannelValues(values []int) {
	for i, v := range values {
		ChannelValue.WithLabelValues(strconv.Itoa(i + 1)).Set(float64(v))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
