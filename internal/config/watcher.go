// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CONFIG FILE WATCHER
// =============================================================================

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a config file when it changes and hands the new config to
// a callback. A file that fails to load or validate is logged and the
// callback is not invoked, so the previous config stays in effect.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config)
	logger   *slog.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending time.Time // zero when nothing is pending

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher for path. Debounce values <= 0 use
// DefaultDebounce.
func NewWatcher(path string, debounce time.Duration, logger *slog.Logger, onChange func(*Config)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		watcher:  fsw,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Watch starts watching. The parent directory is watched rather than the
// file, since editors often save by writing a new file and renaming it over
// the old one.
func (w *Watcher) Watch() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); w.processEvents() }()
	go func() { defer wg.Done(); w.processPending() }()
	go func() { wg.Wait(); close(w.done) }()

	w.logger.Debug("watching config file", "path", w.path)
	return nil
}

// Close stops watching and waits for the worker goroutines to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	select {
	case <-w.done:
	case <-time.After(time.Second):
	}
	return err
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.mu.Lock()
				w.pending = time.Now()
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// processPending reloads once the last change is older than the debounce.
func (w *Watcher) processPending() {
	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case now := <-ticker.C:
			w.mu.Lock()
			due := !w.pending.IsZero() && now.Sub(w.pending) >= w.debounce
			if due {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if due {
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
