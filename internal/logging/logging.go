// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the slog loggers readerai passes to its packages.
// Nothing here installs a global logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/readerai/internal/config"
)

// FileName is the log file created inside LogConfig.Dir.
const FileName = "readerai.log"

// Log format constants.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// ParseLevel maps a level name to a slog.Level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger from cfg. Output goes to fallback unless cfg.Dir is
// set, in which case it is appended to Dir/readerai.log. The returned
// closer releases the file and is a no-op otherwise.
func New(cfg config.LogConfig, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	out := fallback
	var closer io.Closer = nopCloser{}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.Dir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}
	if out == nil {
		out = io.Discard
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, FormatJSON) {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// =============================================================================
// REQUEST CONTEXT
// =============================================================================

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

// WithRequestID stores a request ID in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// RequestID returns the request ID stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// FromContext returns logger annotated with the request ID in ctx.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return logger.With("request_id", id)
	}
	return logger
}
