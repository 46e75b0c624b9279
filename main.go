// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"dmx-life/internal/config"
	"dmx-life/internal/controller"
	"dmx-life/internal/dmx"
	"dmx-life/internal/http"
	"dmx-life/internal/modbus"
	"dmx-life/internal/mqtt"
	"dmx-life/internal/scheduler"
)

// stateRefresh is the period of the full state push to live clients
const stateRefresh = time.Second

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		logLevel   = flag.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
		dryRun     = flag.Bool("dry-run", false, "Validate config and exit")
	)
	flag.Parse()

	level := parseLogLevel(*logLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("DMX Life starting", "version", "1.0.0")

	store, err := config.NewStore(*configPath, logger)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}
	cfg := store.Config()

	logger.Info("Configuration loaded",
		"fixtures", len(cfg.Fixtures),
		"scenes", len(cfg.Scenes),
		"output", cfg.Output.Kind,
		"http", cfg.Server.HTTP)

	if *dryRun {
		logger.Info("Dry run mode - configuration is valid")
		os.Exit(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.Watch(ctx); err != nil {
		logger.Warn("Configuration hot reload disabled", "error", err)
	}

	engine := dmx.NewEngine(dmx.NewMonitor(logger), logger,
		dmx.WithTickRate(cfg.Output.ArtNet.RefreshRate))
	ctrl := controller.New(store, engine, logger)

	// A failed output start is not fatal: the output can be fixed and switched at runtime
	if err := ctrl.Start(); err != nil {
		logger.Warn("Output not started", "kind", cfg.Output.Kind, "error", err)
	}
	ctrl.StartRefresh(stateRefresh)

	httpServer := http.NewServer(cfg.Server.HTTP, ctrl, logger)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", "error", err)
		os.Exit(1)
	}

	var modbusServer *modbus.Server
	if cfg.Modbus != nil {
		modbusServer = modbus.NewServer(*cfg.Modbus, ctrl, logger)
		if err := modbusServer.Start(); err != nil {
			logger.Error("Failed to start Modbus server", "error", err)
			os.Exit(1)
		}
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT != nil {
		mqttClient = mqtt.NewClient(*cfg.MQTT, ctrl, logger)
		if err := mqttClient.Start(); err != nil {
			logger.Error("Failed to start MQTT client", "error", err)
			os.Exit(1)
		}
	}

	var sched *scheduler.Scheduler
	if cfg.Schedule != nil && len(cfg.Schedule.Events) > 0 {
		sched, err = scheduler.New(cfg.Schedule, ctrl, logger)
		if err != nil {
			logger.Error("Failed to create scheduler", "error", err)
			os.Exit(1)
		}
		sched.Start()
		httpServer.SetScheduler(sched)
	}

	logger.Info("DMX Life ready",
		"http", cfg.Server.HTTP,
		"output", ctrl.OutputKind(),
		"fps", cfg.Output.ArtNet.RefreshRate,
		"modbus", cfg.Modbus != nil,
		"mqtt", cfg.MQTT != nil,
		"schedule", sched != nil)

	<-ctx.Done()
	logger.Info("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Front ends stop in parallel, the output engine last
	var g errgroup.Group
	g.Go(func() error {
		return httpServer.Shutdown(shutdownCtx)
	})
	if sched != nil {
		g.Go(func() error {
			sched.Stop()
			return nil
		})
	}
	if mqttClient != nil {
		g.Go(func() error {
			mqttClient.Stop()
			return nil
		})
	}
	if modbusServer != nil {
		g.Go(func() error {
			modbusServer.Stop()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("Shutdown error", "error", err)
	}

	if err := ctrl.Close(); err != nil {
		logger.Warn("Output shutdown error", "error", err)
	}

	logger.Info("DMX Life stopped")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
