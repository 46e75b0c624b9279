// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package api

import (
	"context"
	"encoding/json"

	"dmx-life/internal/controller"
	"dmx-life/internal/metrics"
)

// Request is the unified JSON request format for all protocols
// Used by: HTTP POST /api, WebSocket, MQTT
type Request struct {
	Cmd    string          `json:"cmd"`              // activate, test, blackout, status, connection, switch, scenes, output, fixtures, history
	Scene  string          `json:"scene,omitempty"`  // activate
	Values []int           `json:"values,omitempty"` // test: channel 1 first
	Kind   string          `json:"kind,omitempty"`   // switch: artnet or usb_dmx, empty keeps the current kind
	Config json.RawMessage `json:"config,omitempty"` // switch: output config overrides
}

// Response is the unified JSON response format
type Response struct {
	Type  string `json:"type"` // ok, status, connection, scenes, output, fixtures, history, error
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler processes unified API requests
type Handler struct {
	ctrl *controller.Controller
}

// NewHandler creates a new API handler
func NewHandler(ctrl *controller.Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

// Handle processes a request and returns a response
func (h *Handler) Handle(ctx context.Context, req *Request) *Response {
	switch req.Cmd {
	case "activate":
		return h.handleActivate(req.Scene)
	case "test":
		return h.handleTest(req.Values)
	case "blackout":
		return h.command("blackout", h.ctrl.Blackout())
	case "status":
		return &Response{Type: "status", Data: h.ctrl.Status()}
	case "connection":
		return &Response{Type: "connection", Data: h.ctrl.ConnectionStatus()}
	case "history":
		return &Response{Type: "history", Data: h.ctrl.ConnectionHistory()}
	case "switch":
		return h.command("switch", h.ctrl.SwitchOutput(req.Kind, req.Config))
	case "scenes":
		return &Response{Type: "scenes", Data: h.ctrl.Scenes()}
	case "output":
		return &Response{Type: "output", Data: h.ctrl.OutputStatus(ctx)}
	case "fixtures":
		return &Response{Type: "fixtures", Data: h.ctrl.Fixtures()}
	default:
		return errorResponse("unknown command: " + req.Cmd)
	}
}

// HandleJSON parses JSON and returns JSON response
func (h *Handler) HandleJSON(ctx context.Context, data []byte) []byte {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		out, _ := json.Marshal(errorResponse("invalid JSON: " + err.Error()))
		return out
	}
	out, _ := json.Marshal(h.Handle(ctx, &req))
	return out
}

func errorResponse(msg string) *Response {
	return &Response{Type: "error", Error: msg}
}

// command converts a controller result and counts it
func (h *Handler) command(name string, err error) *Response {
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(name).Inc()
		return errorResponse(err.Error())
	}
	metrics.CommandsTotal.WithLabelValues(name).Inc()
	return &Response{Type: "ok"}
}

func (h *Handler) handleActivate(scene string) *Response {
	if scene == "" {
		return errorResponse("scene required")
	}
	resp := h.command("activate", h.ctrl.Activate(scene))
	if resp.Type == "ok" {
		resp.Data = h.ctrl.Status()
	}
	return resp
}

func (h *Handler) handleTest(values []int) *Response {
	if len(values) == 0 {
		return errorResponse("values required")
	}
	return h.command("test", h.ctrl.Test(values))
}
