// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/readerai/internal/host"
)

// NoteMode selects how SaveToNote writes.
type NoteMode int

const (
	// NoteCreate always attaches a new note.
	NoteCreate NoteMode = iota

	// NoteAppend appends to the item's newest note, creating one if the
	// item has none.
	NoteAppend
)

// SaveToNote renders markdown content to HTML and writes it into a note on
// the item. heading, if set, is written as an h2 above the content.
func (a *Assistant) SaveToNote(ctx context.Context, itemID, heading, content string, mode NoteMode) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("save to note: %w", ErrEmptyInput)
	}
	notes, ok := a.host.Notes()
	if !ok {
		return ErrNoNotes
	}

	md := content
	if h := strings.TrimSpace(heading); h != "" {
		md = "## " + h + "\n\n" + content
	}
	html := a.Render(md)

	var note host.Note
	if mode == NoteAppend {
		existing, err := notes.ChildNote(ctx, itemID)
		switch {
		case err == nil:
			note = existing
		case !errors.Is(err, host.ErrNotFound):
			return fmt.Errorf("save to note: %w", err)
		}
	}
	if note == nil {
		created, err := notes.CreateNote(ctx, itemID)
		if err != nil {
			return fmt.Errorf("save to note: %w", err)
		}
		note = created
	}

	text := html
	if prev := note.Text(); prev != "" {
		text = prev + "\n" + html
	}
	note.SetText(text)
	if err := note.Save(ctx); err != nil {
		return fmt.Errorf("save to note: %w", err)
	}

	a.emit(host.Event{Kind: host.EventNoteSaved, ItemID: itemID, HTML: html})
	a.logger.Info("note saved", "item_id", itemID, "append", mode == NoteAppend, "chars", len(text))
	return nil
}
