// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jeranaias/readerai/internal/host"
	"github.com/jeranaias/readerai/internal/logging"
)

// eventBuffer is how many events a slow /v1/events client may lag behind
// before events are dropped for it.
const eventBuffer = 256

// sseWriter writes Server-Sent Events. Writes may come from several
// goroutines.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) write(format string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, format, args...); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// event writes one named event with a JSON payload.
func (s *sseWriter) event(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write("event: %s\ndata: %s\n\n", name, data)
}

func (s *sseWriter) comment(text string) error {
	return s.write(": %s\n\n", text)
}

// done writes the end-of-stream sentinel.
func (s *sseWriter) done() error {
	return s.write("data: [DONE]\n\n")
}

// handleEvents streams every emitter event, optionally limited to one item
// with ?item=. The stream stays open until the client leaves or the server
// shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	logger := logging.FromContext(r.Context(), s.logger)
	filter := r.URL.Query().Get("item")

	ch := make(chan host.Event, eventBuffer)
	dropped := 0
	var droppedMu sync.Mutex
	unsubscribe := s.assistant.Events().Subscribe(func(ev host.Event) {
		if filter != "" && ev.ItemID != filter {
			return
		}
		select {
		case ch <- ev:
		default:
			droppedMu.Lock()
			dropped++
			droppedMu.Unlock()
		}
	})
	defer func() {
		unsubscribe()
		droppedMu.Lock()
		defer droppedMu.Unlock()
		if dropped > 0 {
			logger.Warn("event subscriber fell behind", "dropped", dropped)
		}
	}()

	if err := sse.comment("connected"); err != nil {
		return
	}
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case ev := <-ch:
			if err := sse.event(string(ev.Kind), ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.comment("ping"); err != nil {
				return
			}
		}
	}
}
