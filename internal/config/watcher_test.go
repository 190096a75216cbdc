// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, model string) {
	t.Helper()
	content := "[llm]\nmodel = \"" + model + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, "first")

	changes := make(chan *Config, 4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := NewWatcher(path, 20*time.Millisecond, logger, func(cfg *Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	writeConfig(t, path, "second")

	select {
	case cfg := <-changes:
		if cfg.LLM.Model != "second" {
			t.Errorf("model = %q, want second", cfg.LLM.Model)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after the config file changed")
	}
}

func TestWatcher_InvalidFileKeepsPrevious(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, "first")

	changes := make(chan *Config, 4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := NewWatcher(path, 20*time.Millisecond, logger, func(cfg *Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("[llm]\nmax_tokens = -5\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		t.Errorf("callback invoked for an invalid file: %+v", cfg.LLM)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeConfig(t, path, "first")

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, nil, func(cfg *Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changes:
		t.Error("unrelated file triggered a reload")
	case <-time.After(300 * time.Millisecond):
	}
}
