// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/readerai/internal/config"
	"github.com/jeranaias/readerai/internal/server"
)

// serverShutdownTimeout bounds graceful shutdown of the bridge.
const serverShutdownTimeout = 10 * time.Second

// HandleServe runs the HTTP bridge until SIGINT or SIGTERM. Edits to the
// config file are applied to the assistant without a restart; listener
// settings (addr, token, origins, rate limit) need one.
func HandleServe(args Args, stderr io.Writer) error {
	p := NewArgParser(args.Raw)
	ap, err := newApp(args, stderr, false)
	if err != nil {
		return err
	}
	defer ap.Close()

	if addr := p.Flag("addr"); addr != "" {
		ap.cfg.Server.Addr = addr
	}
	opts := []server.Option{
		server.WithLogger(ap.logger),
		server.WithVersion(Version),
	}
	if sec := ap.cfg.Server.HeartbeatSeconds; sec > 0 {
		opts = append(opts, server.WithHeartbeat(time.Duration(sec)*time.Second))
	}
	srv := server.New(ap.assistant, ap.cfg.Server, opts...)

	if w := watchConfig(ap, args); w != nil {
		defer w.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	ap.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// watchConfig reloads the config file on change. It returns nil when there
// is no file to watch or the watcher could not start.
func watchConfig(ap *app, args Args) *config.Watcher {
	if ap.configPath == "" {
		return nil
	}
	if _, err := os.Stat(ap.configPath); err != nil {
		return nil
	}

	w, err := config.NewWatcher(ap.configPath, 0, ap.logger, func(cfg *config.Config) {
		if args.Model != "" {
			cfg.LLM.Model = args.Model
		}
		ap.assistant.Reconfigure(cfg)
		ap.logger.Info("configuration reloaded", "path", ap.configPath, "model", cfg.LLM.Model)
	})
	if err != nil {
		ap.logger.Warn("config reload disabled", "error", err)
		return nil
	}
	if err := w.Watch(); err != nil {
		ap.logger.Warn("config reload disabled", "error", err)
		w.Close()
		return nil
	}
	return w
}
