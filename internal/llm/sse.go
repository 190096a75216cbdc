// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// =============================================================================
// LINE REASSEMBLY
// =============================================================================

// LineReassembler turns arbitrary body chunks into complete lines. The
// trailing partial line of a chunk is buffered until the rest arrives.
type LineReassembler struct {
	partial []byte
}

// Feed appends chunk and returns every line it completed, without the line
// terminator.
func (l *LineReassembler) Feed(chunk []byte) []string {
	data := append(l.partial, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimSuffix(string(data[:i]), "\r"))
		data = data[i+1:]
	}

	l.partial = append([]byte(nil), data...)
	return lines
}

// Flush returns whatever partial line is buffered and resets the state.
func (l *LineReassembler) Flush() string {
	rest := strings.TrimSuffix(string(l.partial), "\r")
	l.partial = nil
	return rest
}

// =============================================================================
// EVENT DECODING
// =============================================================================

// sseDone is the sentinel payload that ends the logical stream.
const sseDone = "[DONE]"

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// lineResult classifies one decoded line.
type lineResult int

const (
	lineIgnored lineResult = iota // not a data line, or no content
	lineDelta
	lineDone
	lineMalformed
)

// decodeLine extracts the content delta from one "data: " line.
func decodeLine(line string) (string, lineResult) {
	payload, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return "", lineIgnored
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", lineIgnored
	}
	if payload == sseDone {
		return "", lineDone
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", lineMalformed
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return "", lineIgnored
	}
	return chunk.Choices[0].Delta.Content, lineDelta
}

// =============================================================================
// BODY FRAMES
// =============================================================================

// frame is one read from the response body.
type frame struct {
	data []byte
	err  error
}

const frameSize = 4096

// readFrames reads r on its own goroutine and delivers each read as a frame.
// The channel closes at EOF. The goroutine exits once ctx is done, so the
// caller must cancel ctx (and close r) when it stops receiving.
func readFrames(ctx context.Context, r io.Reader) <-chan frame {
	ch := make(chan frame)
	go func() {
		defer close(ch)
		buf := make([]byte, frameSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case ch <- frame{data: data}:
				case <-ctx.Done():
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				select {
				case ch <- frame{err: err}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return ch
}
