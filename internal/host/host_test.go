// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package host

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeItem struct{ id string }

func (f fakeItem) ID() string    { return f.id }
func (f fakeItem) Title() string { return "Title " + f.id }

type fakeNotes struct{ items map[string]Item }

func (f fakeNotes) GetItem(_ context.Context, id string) (Item, error) {
	if it, ok := f.items[id]; ok {
		return it, nil
	}
	return nil, ErrNotFound
}
func (f fakeNotes) ChildNote(context.Context, string) (Note, error)  { return nil, ErrNotFound }
func (f fakeNotes) CreateNote(context.Context, string) (Note, error) { return nil, ErrNotFound }

func TestHost_MissingCapabilities(t *testing.T) {
	h := New(nil, nil)

	_, ok := h.Notes()
	assert.False(t, ok)
	_, ok = h.Preferences()
	assert.False(t, ok)
	_, ok = h.LookupItem(context.Background(), "x")
	assert.False(t, ok)
}

func TestHost_LookupItem(t *testing.T) {
	h := New(fakeNotes{items: map[string]Item{"doc": fakeItem{"doc"}}}, nil)

	item, ok := h.LookupItem(context.Background(), "doc")
	assert.True(t, ok)
	assert.Equal(t, "Title doc", item.Title())

	_, ok = h.LookupItem(context.Background(), "other")
	assert.False(t, ok)
}

func TestEmitter_SubscribeAndUnsubscribe(t *testing.T) {
	e := NewEmitter()
	var a, b []EventKind

	unsubA := e.Subscribe(func(ev Event) { a = append(a, ev.Kind) })
	e.Subscribe(func(ev Event) { b = append(b, ev.Kind) })

	e.Emit(Event{Kind: EventStarted, ItemID: "1"})
	unsubA()
	e.Emit(Event{Kind: EventCompleted, ItemID: "1"})

	assert.Equal(t, []EventKind{EventStarted}, a)
	assert.Equal(t, []EventKind{EventStarted, EventCompleted}, b)
}
