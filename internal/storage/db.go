// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// MemoryPath opens a private in-memory database, mostly for tests.
const MemoryPath = ":memory:"

// DB is the SQLite-backed note, preference and transcript store.
type DB struct {
	db     *sql.DB
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *DB) { d.now = now }
}

// WithLogger sets the logger used for non-fatal errors.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) { d.logger = logger }
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, opts ...Option) (*DB, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps :memory:
	// databases from splitting across connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	d := &DB{
		db:     db,
		path:   path,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d, nil
}

func (d *DB) initSchema() error {
	if _, err := d.db.Exec(Schema); err != nil {
		return err
	}
	_, err := d.db.Exec(InitMetadata)
	return err
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) nowMillis() int64 {
	return d.now().UnixMilli()
}

// wrap prefixes err with the operation name; nil stays nil.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// withTx runs fn inside a transaction, committing when it returns nil.
func (d *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
