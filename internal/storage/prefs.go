// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jeranaias/readerai/internal/host"
)

// =============================================================================
// PREFERENCES
// =============================================================================

const (
	kindString = "string"
	kindFloat  = "float"
	kindBool   = "bool"
)

// String implements host.Preferences. A value stored with another type is
// reported as absent.
func (d *DB) String(key string) (string, bool) {
	return d.pref(key, kindString)
}

// Float implements host.Preferences.
func (d *DB) Float(key string) (float64, bool) {
	raw, ok := d.pref(key, kindFloat)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		d.logger.Warn("stored float preference is corrupt", "key", key, "error", err)
		return 0, false
	}
	return v, true
}

// Bool implements host.Preferences.
func (d *DB) Bool(key string) (bool, bool) {
	raw, ok := d.pref(key, kindBool)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		d.logger.Warn("stored bool preference is corrupt", "key", key, "error", err)
		return false, false
	}
	return v, true
}

// SetString implements host.Preferences.
func (d *DB) SetString(key, value string) error {
	return d.setPref(key, kindString, value)
}

// SetFloat implements host.Preferences. The value is stored in the
// shortest form that parses back to the same float64.
func (d *DB) SetFloat(key string, value float64) error {
	return d.setPref(key, kindFloat, strconv.FormatFloat(value, 'g', -1, 64))
}

// SetBool implements host.Preferences.
func (d *DB) SetBool(key string, value bool) error {
	return d.setPref(key, kindBool, strconv.FormatBool(value))
}

// DeletePref removes a preference of any type.
func (d *DB) DeletePref(key string) error {
	_, err := d.db.Exec(`DELETE FROM prefs WHERE key = ?`, key)
	return wrap("delete preference", err)
}

func (d *DB) pref(key, kind string) (string, bool) {
	var storedKind, value string
	err := d.db.QueryRowContext(context.Background(),
		`SELECT kind, value FROM prefs WHERE key = ?`, key,
	).Scan(&storedKind, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		d.logger.Warn("preference read failed", "key", key, "error", err)
		return "", false
	}
	if storedKind != kind {
		return "", false
	}
	return value, true
}

func (d *DB) setPref(key, kind, value string) error {
	_, err := d.db.ExecContext(context.Background(), `
		INSERT INTO prefs (key, kind, value) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, value = excluded.value`,
		key, kind, value)
	return wrap("set preference", err)
}

var _ host.Preferences = (*DB)(nil)
