// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Store serves read-only snapshots of the configuration file.
// Scenes and fixtures are edited outside this process; Watch picks the edits up.
type Store struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	cfg      *Config
	onReload []func(*Config)
}

// NewStore loads the file at path and returns a store holding it
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, logger: logger, cfg: cfg}, nil
}

// NewStaticStore wraps an in-memory config (no file, Watch is a no-op)
func NewStaticStore(cfg *Config, logger *slog.Logger) *Store {
	return &Store{logger: logger, cfg: cfg}
}

// Config returns the current snapshot. Callers must not mutate it.
func (s *Store) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Fixtures returns the fixture table
func (s *Store) Fixtures() []Fixture {
	return s.Config().Fixtures
}

// Scene looks a scene up by name
func (s *Store) Scene(name string) (Scene, bool) {
	return s.Config().FindScene(name)
}

// OnReload registers a callback run after every successful reload
func (s *Store) OnReload(fn func(*Config)) {
	s.mu.Lock()
	s.onReload = append(s.onReload, fn)
	s.mu.Unlock()
}

// Reload re-reads the file. On error the previous snapshot stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	hooks := append([]func(*Config){}, s.onReload...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(cfg)
	}
	return nil
}

// Watch reloads the config whenever the file changes, until ctx is done.
// The parent directory is watched so editors that replace the file are handled.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	s.logger.Info("Watching configuration", "path", target)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.Warn("Configuration reload failed, keeping previous", "error", err)
					continue
				}
				s.logger.Info("Configuration reloaded", "path", target)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("Configuration watcher error", "error", err)
			}
		}
	}()

	return nil
}
