// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package host defines the narrow surface the assistant needs from the
// application it runs inside: documents, notes and preferences.
package host

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an item or note does not exist.
var ErrNotFound = errors.New("not found")

// =============================================================================
// DOCUMENTS AND NOTES
// =============================================================================

// Item is a document open in the reader.
type Item interface {
	ID() string
	Title() string
}

// Note is a text note attached to an item. Changes are only persisted by Save.
type Note interface {
	Text() string
	SetText(text string)
	Save(ctx context.Context) error
}

// Notes is the host's document and note API.
type Notes interface {
	// GetItem fetches an item by id or returns ErrNotFound.
	GetItem(ctx context.Context, id string) (Item, error)

	// ChildNote returns the most recent note attached to the item, or
	// ErrNotFound when it has none.
	ChildNote(ctx context.Context, itemID string) (Note, error)

	// CreateNote attaches a new empty note to the item.
	CreateNote(ctx context.Context, itemID string) (Note, error)
}

// =============================================================================
// PREFERENCES
// =============================================================================

// Preferences is a named value store. Getters report whether the key was set.
type Preferences interface {
	String(key string) (string, bool)
	Float(key string) (float64, bool)
	Bool(key string) (bool, bool)

	SetString(key, value string) error
	SetFloat(key string, value float64) error
	SetBool(key string, value bool) error
}

// =============================================================================
// HOST
// =============================================================================

// Host bundles the capabilities the application provides. Any of them may be
// missing; accessors report availability explicitly.
type Host struct {
	notes Notes
	prefs Preferences
}

// New creates a Host. Nil capabilities are treated as absent.
func New(notes Notes, prefs Preferences) Host {
	return Host{notes: notes, prefs: prefs}
}

// Notes returns the note API if the host has one.
func (h Host) Notes() (Notes, bool) {
	return h.notes, h.notes != nil
}

// Preferences returns the preference store if the host has one.
func (h Host) Preferences() (Preferences, bool) {
	return h.prefs, h.prefs != nil
}

// LookupItem fetches an item, returning false when the host has no note
// API or the item is unknown.
func (h Host) LookupItem(ctx context.Context, id string) (Item, bool) {
	notes, ok := h.Notes()
	if !ok {
		return nil, false
	}
	item, err := notes.GetItem(ctx, id)
	if err != nil {
		return nil, false
	}
	return item, true
}
