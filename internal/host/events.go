// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package host

import "sync"

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies what happened to a conversation.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventDelta     EventKind = "delta"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventAborted   EventKind = "aborted"
	EventSummary   EventKind = "summary"
	EventKeyPoints EventKind = "key_points"
	EventNoteSaved EventKind = "note_saved"
)

// Event is delivered to UI subscribers. HTML holds the rendered form of the
// text accumulated so far.
type Event struct {
	Kind   EventKind `json:"kind"`
	ItemID string    `json:"item_id"`
	Delta  string    `json:"delta,omitempty"`
	Text   string    `json:"text,omitempty"`
	HTML   string    `json:"html,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Emitter fans events out to subscribers. Handlers run synchronously on the
// emitting goroutine and must not block.
type Emitter struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function that removes it.
func (e *Emitter) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Emit delivers ev to every subscriber.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		handlers = append(handlers, fn)
	}
	e.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
