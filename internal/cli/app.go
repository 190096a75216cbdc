// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - wiring shared by the commands that talk to the model.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jeranaias/readerai/internal/assistant"
	"github.com/jeranaias/readerai/internal/config"
	"github.com/jeranaias/readerai/internal/host"
	"github.com/jeranaias/readerai/internal/llm"
	"github.com/jeranaias/readerai/internal/logging"
	"github.com/jeranaias/readerai/internal/storage"
)

// shutdownTimeout bounds the final transcript save.
const shutdownTimeout = 5 * time.Second

// app holds what a command needs: settings, the notes database and the
// assistant built on them.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	logCloser  io.Closer
	db         *storage.DB
	assistant  *assistant.Assistant
}

// loadConfig loads --config or the default location and applies the
// global overrides. A default config file that fails to parse is reported
// on stderr and the built-in defaults are used.
func loadConfig(args Args, stderr io.Writer) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path = args.ConfigPath
		err  error
	)
	if path != "" {
		if cfg, err = config.LoadFromPath(path); err != nil {
			return nil, "", err
		}
	} else {
		cfg, err = config.Load()
		if cfg == nil {
			return nil, "", err
		}
		if err != nil {
			fmt.Fprintf(stderr, "%s %v (using defaults)\n", WarningStyle.Render("[WARN]"), err)
		}
		path, _ = config.ConfigPathTOML()
	}

	if args.Model != "" {
		cfg.LLM.Model = args.Model
	}
	if args.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, path, nil
}

// newApp loads settings and opens the database. Unless verbose, one-shot
// commands only log warnings so that answers are not interleaved with
// request logs.
func newApp(args Args, stderr io.Writer, oneShot bool) (*app, error) {
	cfg, path, err := loadConfig(args, stderr)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Log
	if oneShot && !args.Verbose && logCfg.Dir == "" {
		logCfg.Level = "warn"
	}
	logger, closer, err := logging.New(logCfg, stderr)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.Notes.DatabasePath, storage.WithLogger(logger))
	if err != nil {
		closer.Close()
		return nil, NewCommandError("storage", "open", cfg.Notes.DatabasePath, err)
	}

	a := assistant.New(cfg,
		assistant.WithHost(host.New(db, db)),
		assistant.WithTranscripts(db),
		assistant.WithLogger(logger),
		assistant.WithFactory(assistant.LLMFactory(llm.WithLogger(logger))),
	)

	return &app{
		cfg:        cfg,
		configPath: path,
		logger:     logger,
		logCloser:  closer,
		db:         db,
		assistant:  a,
	}, nil
}

// Close saves open sessions and releases the database and log file.
func (ap *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(
		ap.assistant.Shutdown(ctx),
		ap.db.Close(),
		ap.logCloser.Close(),
	)
}
