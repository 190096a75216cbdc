// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/jeranaias/readerai/internal/model"
)

// =============================================================================
// CALLBACKS
// =============================================================================

// StreamCallbacks receives the progress of a stream. All fields are optional.
// Callbacks run on the goroutine that called StreamChat, in arrival order,
// and must return quickly.
type StreamCallbacks struct {
	OnStart    func()
	OnChunk    func(delta string)
	OnComplete func(full string)
	OnError    func(err error)
}

func (cb StreamCallbacks) start() {
	if cb.OnStart != nil {
		cb.OnStart()
	}
}

func (cb StreamCallbacks) chunk(delta string) {
	if cb.OnChunk != nil {
		cb.OnChunk(delta)
	}
}

func (cb StreamCallbacks) complete(full string) {
	if cb.OnComplete != nil {
		cb.OnComplete(full)
	}
}

func (cb StreamCallbacks) fail(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// =============================================================================
// STREAM HANDLE
// =============================================================================

// streamHandle is the cancellation handle of one StreamChat call.
type streamHandle struct {
	cancel  context.CancelFunc
	aborted atomic.Bool
}

// stop marks the stream as aborted before cancelling it, so the stream
// goroutine never mistakes the cancellation for a failure.
func (h *streamHandle) stop() {
	h.aborted.Store(true)
	h.cancel()
}

// begin installs a new handle, stopping any stream still in flight.
func (c *Client) begin(ctx context.Context) (context.Context, *streamHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.logger.Debug("superseding active stream")
		c.active.stop()
	}

	streamCtx, cancel := context.WithCancel(ctx)
	h := &streamHandle{cancel: cancel}
	c.active = h
	return streamCtx, h
}

// finish releases h and clears it if it is still the active handle.
func (c *Client) finish(h *streamHandle) {
	c.mu.Lock()
	if c.active == h {
		c.active = nil
	}
	c.mu.Unlock()
	h.cancel()
}

// AbortStream stops the stream in flight. The aborted StreamChat call
// returns nil without invoking OnComplete or OnError. Safe to call at any
// time, any number of times.
func (c *Client) AbortStream() {
	c.mu.Lock()
	h := c.active
	c.active = nil
	c.mu.Unlock()

	if h != nil {
		c.logger.Debug("stream aborted by caller")
		h.stop()
	}
}

// IsStreaming reports whether a stream is in flight.
func (c *Client) IsStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// =============================================================================
// STREAMING REQUESTS
// =============================================================================

// StreamChat sends messages with streaming enabled and reports deltas
// through cb as they arrive. It blocks until the stream ends.
//
// OnComplete fires once with the accumulated text after the last OnChunk.
// OnError fires once on failure and the error is also returned. If the
// stream is aborted, superseded by a newer StreamChat call or ctx is
// cancelled, StreamChat returns nil and no further callbacks fire.
//
// Streams are not retried and have no timeout beyond ctx.
func (c *Client) StreamChat(ctx context.Context, messages []model.ChatMessage, cb StreamCallbacks) error {
	body, err := json.Marshal(c.newChatRequest(messages, true))
	if err != nil {
		err = fmt.Errorf("failed to marshal request: %w", err)
		cb.fail(err)
		return err
	}

	streamCtx, h := c.begin(ctx)
	defer c.finish(h)

	cb.start()
	full, err := c.runStream(streamCtx, h, body, cb)

	if h.aborted.Load() || errors.Is(err, ErrCanceled) {
		c.logger.Debug("stream stopped", "received_chars", len(full))
		return nil
	}
	if err != nil {
		c.logger.Warn("stream failed", "error", err, "received_chars", len(full))
		cb.fail(err)
		return err
	}

	cb.complete(full)
	return nil
}

// runStream performs the request and decodes the body. It returns the text
// accumulated so far alongside any error.
func (c *Client) runStream(ctx context.Context, h *streamHandle, body []byte, cb StreamCallbacks) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	c.logger.Debug("stream request", "path", req.URL.Path, "model", c.opts.Model, "key", c.KeyFingerprint())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(ctx, ctx, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := readResponse(resp)
		return "", newAPIError(resp.StatusCode, data)
	}

	var (
		acc     strings.Builder
		lines   LineReassembler
		skipped int
	)

	// handle processes one line and reports whether the stream is over.
	handle := func(line string) bool {
		delta, kind := decodeLine(line)
		switch kind {
		case lineDone:
			return true
		case lineMalformed:
			skipped++
		case lineDelta:
			acc.WriteString(delta)
			if !h.aborted.Load() {
				cb.chunk(delta)
			}
		}
		return false
	}

	frames := readFrames(ctx, resp.Body)
	for {
		select {
		case <-ctx.Done():
			return acc.String(), fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())

		case fr, ok := <-frames:
			if !ok {
				if tail := lines.Flush(); tail != "" {
					handle(tail)
				}
				c.logDone(acc.Len(), skipped)
				return acc.String(), nil
			}
			if fr.err != nil {
				if ctx.Err() != nil {
					return acc.String(), fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
				}
				return acc.String(), fmt.Errorf("%w: reading stream: %w", ErrNetwork, fr.err)
			}
			for _, line := range lines.Feed(fr.data) {
				if handle(line) {
					c.logDone(acc.Len(), skipped)
					return acc.String(), nil
				}
			}
		}
	}
}

func (c *Client) logDone(chars, skipped int) {
	c.logger.Debug("stream complete", "chars", chars, "skipped_lines", skipped)
}
