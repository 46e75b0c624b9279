// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"dmx-life/internal/controller"
	"dmx-life/internal/dmx"
	"dmx-life/internal/fixture"
	"dmx-life/internal/metrics"
	"dmx-life/internal/output"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// OKResponse acknowledges a command
type OKResponse struct {
	Status string `json:"status"`
}

var responseOK = OKResponse{Status: "ok"}

// HealthResponse for /api/health endpoint
type HealthResponse struct {
	UptimeSec  int     `json:"uptime_sec"`
	UptimeStr  string  `json:"uptime_str"`
	Goroutines int     `json:"goroutines"`
	CPULoad1m  float64 `json:"cpu_load_1m"`
	CPULoad5m  float64 `json:"cpu_load_5m"`
	CPULoad15m float64 `json:"cpu_load_15m"`
	MemAllocMB float64 `json:"mem_alloc_mb"`
	MemSysMB   float64 `json:"mem_sys_mb"`
	MemHeapMB  float64 `json:"mem_heap_mb"`
	GCRuns     uint32  `json:"gc_runs"`
	GoVersion  string  `json:"go_version"`
	NumCPU     int     `json:"num_cpu"`
	Output     string  `json:"output"`
	Connected  bool    `json:"connected"`
}

// FixtureTypeResponse describes one catalog entry
type FixtureTypeResponse struct {
	Type     string            `json:"type"`
	Channels []fixture.Channel `json:"channels"`
	Known    bool              `json:"known"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Status: status, Error: msg})
}

// statusFor maps a controller error onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, controller.ErrSceneNotFound):
		return http.StatusNotFound
	case errors.Is(err, dmx.ErrFrameLength), errors.Is(err, output.ErrUnknownKind):
		return http.StatusBadRequest
	case errors.Is(err, controller.ErrNoOutput), errors.Is(err, controller.ErrOutputNotStarted),
		errors.Is(err, controller.ErrOutputUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// commandResult writes the outcome of an operator command and counts it
func commandResult(w http.ResponseWriter, name string, err error) {
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(name).Inc()
		writeError(w, statusFor(err), err.Error())
		return
	}
	metrics.CommandsTotal.WithLabelValues(name).Inc()
	writeJSON(w, http.StatusOK, responseOK)
}

// handleAPI handles the unified JSON API endpoint
func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	resp := s.api.HandleJSON(r.Context(), body)
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Scenes())
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	commandResult(w, "activate", s.ctrl.Activate(name))
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Values []int `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(body.Values) == 0 {
		writeError(w, http.StatusBadRequest, "values required")
		return
	}
	commandResult(w, "test", s.ctrl.Test(body.Values))
}

func (s *Server) handleBlackout(w http.ResponseWriter, r *http.Request) {
	commandResult(w, "blackout", s.ctrl.Blackout())
}

func (s *Server) handleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.ConnectionStatus())
}

func (s *Server) handleConnectionHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.ConnectionHistory())
}

func (s *Server) handleOutputStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.OutputStatus(r.Context()))
}

func (s *Server) handleOutputSwitch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind   string          `json:"kind"`
		Config json.RawMessage `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	err := s.ctrl.SwitchOutput(body.Kind, body.Config)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("switch").Inc()
		writeError(w, statusFor(err), err.Error())
		return
	}
	metrics.CommandsTotal.WithLabelValues("switch").Inc()
	writeJSON(w, http.StatusOK, s.ctrl.OutputStatus(r.Context()))
}

func (s *Server) handleOutputTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, output.Info())
}

func (s *Server) handleOutputPorts(w http.ResponseWriter, r *http.Request) {
	ports, err := s.ctrl.Ports()
	if err != nil {
		s.logger.Debug("Serial port listing failed", "error", err)
	}
	writeJSON(w, http.StatusOK, ports)
}

func (s *Server) handleFixtures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Fixtures())
}

func (s *Server) handleFixtureTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, fixture.Types())
}

func (s *Server) handleFixtureType(w http.ResponseWriter, r *http.Request) {
	t := chi.URLParam(r, "type")
	writeJSON(w, http.StatusOK, FixtureTypeResponse{
		Type:     t,
		Channels: fixture.Channels(t),
		Known:    fixture.Known(t),
	})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.scheduler.Events()})
}

func (s *Server) handleScheduleNext(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.NextEvent())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	// Read CPU load from /proc/loadavg (Linux only)
	var load1, load5, load15 float64
	if data, err := os.ReadFile("/proc/loadavg"); err == nil {
		fmt.Sscanf(string(data), "%f %f %f", &load1, &load5, &load15)
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		UptimeSec:  int(time.Since(startTime).Seconds()),
		UptimeStr:  time.Since(startTime).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		CPULoad1m:  load1,
		CPULoad5m:  load5,
		CPULoad15m: load15,
		MemAllocMB: float64(m.Alloc) / 1024 / 1024,
		MemSysMB:   float64(m.Sys) / 1024 / 1024,
		MemHeapMB:  float64(m.HeapAlloc) / 1024 / 1024,
		GCRuns:     m.NumGC,
		GoVersion:  runtime.Version(),
		NumCPU:     runtime.NumCPU(),
		Output:     s.ctrl.OutputKind(),
		Connected:  s.ctrl.ConnectionStatus().Connected,
	})
}
