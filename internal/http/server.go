// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package http

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dmx-life/internal/api"
	"dmx-life/internal/controller"
	"dmx-life/internal/scheduler"
)

var startTime = time.Now()

//go:embed static/*
var staticFiles embed.FS

// Server is the HTTP/WebSocket server
type Server struct {
	addr      string
	ctrl      *controller.Controller
	api       *api.Handler
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	server    *http.Server
	upgrader  websocket.Upgrader
}

// NewServer creates a new HTTP server
func NewServer(addr string, ctrl *controller.Controller, logger *slog.Logger) *Server {
	s := &Server{
		addr:   addr,
		ctrl:   ctrl,
		api:    api.NewHandler(ctrl),
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// WebSocket live monitor
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		// Unified API endpoint (JSON POST)
		r.Post("/", s.handleAPI)

		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Post("/blackout", s.handleBlackout)

		r.Route("/scenes", func(r chi.Router) {
			r.Get("/", s.handleScenes)
			r.Post("/{name}/activate", s.handleActivate)
		})

		r.Route("/dmx", func(r chi.Router) {
			r.Get("/values", s.handleStatus)
			r.Post("/test", s.handleTest)
		})

		r.Route("/connection", func(r chi.Router) {
			r.Get("/status", s.handleConnectionStatus)
			r.Get("/history", s.handleConnectionHistory)
		})

		r.Route("/output", func(r chi.Router) {
			r.Get("/status", s.handleOutputStatus)
			r.Post("/switch", s.handleOutputSwitch)
			r.Get("/types", s.handleOutputTypes)
			r.Get("/ports", s.handleOutputPorts)
		})

		r.Get("/fixtures", s.handleFixtures)
		r.Get("/fixture-types", s.handleFixtureTypes)
		r.Get("/fixture-types/{type}", s.handleFixtureType)

		r.Get("/schedule", s.handleSchedule)
		r.Get("/schedule/next", s.handleScheduleNext)
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Static files
	staticFS, _ := fs.Sub(staticFiles, "static")
	r.Handle("/*", http.FileServer(http.FS(staticFS)))

	return r
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.logger.Info("Starting HTTP server", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP exposes the router (tests)
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// Addr returns the server address
func (s *Server) Addr() string {
	return s.addr
}

// SetScheduler sets the scheduler for API endpoints
func (s *Server) SetScheduler(sched *scheduler.Scheduler) {
	s.scheduler = sched
}

// handleWebSocket streams state messages and answers unified API requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Debug("WebSocket client connected", "remote", r.RemoteAddr)

	updates := s.ctrl.Subscribe()
	defer s.ctrl.Unsubscribe(updates)

	// All writes go through the write loop below
	outgoing := make(chan []byte, 100)
	done := make(chan struct{})

	initial, _ := json.Marshal(s.ctrl.StateMessage())
	outgoing <- initial

	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Debug("WebSocket read error", "error", err)
				}
				return
			}
			select {
			case outgoing <- s.api.HandleJSON(r.Context(), message):
			default:
				s.logger.Debug("WebSocket response dropped, client too slow")
			}
		}
	}()

	for {
		select {
		case data := <-outgoing:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("WebSocket write error", "error", err)
				return
			}
		case data, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("WebSocket write error", "error", err)
				return
			}
		case <-done:
			return
		}
	}
}
