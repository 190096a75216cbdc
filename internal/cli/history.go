// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history.go - stored documents: conversations (list, export, delete),
// items and notes.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/readerai/internal/export"
	"github.com/jeranaias/readerai/internal/host"
	"github.com/jeranaias/readerai/internal/logging"
	"github.com/jeranaias/readerai/internal/storage"
)

// openStore opens the notes database without building an assistant. The
// returned func closes the database and the log file.
func openStore(args Args, stderr io.Writer) (*storage.DB, func() error, error) {
	cfg, _, err := loadConfig(args, stderr)
	if err != nil {
		return nil, nil, err
	}
	logCfg := cfg.Log
	if !args.Verbose && logCfg.Dir == "" {
		logCfg.Level = "warn"
	}
	logger, closer, err := logging.New(logCfg, stderr)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(cfg.Notes.DatabasePath, storage.WithLogger(logger))
	if err != nil {
		closer.Close()
		return nil, nil, NewCommandError("storage", "open", cfg.Notes.DatabasePath, err)
	}
	return db, func() error { return errors.Join(db.Close(), closer.Close()) }, nil
}

// TranscriptData is the JSON form of one listed conversation.
type TranscriptData struct {
	ItemID   string `json:"item_id"`
	Title    string `json:"title"`
	Messages int    `json:"messages"`
	Updated  string `json:"updated"`
	Preview  string `json:"preview"`
}

// limitFlag reads --limit. Zero means no limit.
func limitFlag(p *ArgParser) (int, error) {
	if !p.HasFlag("limit") {
		return 0, nil
	}
	n, err := p.FlagInt("limit")
	if err != nil || n < 0 {
		return 0, NewValidationErrorWithExample("limit", p.Flag("limit"), "must be a non-negative number", "readerai list --limit 10")
	}
	return n, nil
}

func truncateList[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}

// HandleList lists saved conversations, filtered by an optional query.
func HandleList(args Args, stdout, stderr io.Writer) error {
	p := NewArgParser(args.Raw)
	limit, err := limitFlag(p)
	if err != nil {
		return err
	}
	db, closeStore, err := openStore(args, stderr)
	if err != nil {
		return err
	}
	defer closeStore()

	metas, err := db.SearchTranscripts(context.Background(), JoinPositionalArgs(p, 0))
	if err != nil {
		return err
	}
	metas = truncateList(metas, limit)

	data := make([]TranscriptData, 0, len(metas))
	for _, m := range metas {
		data = append(data, TranscriptData{
			ItemID:   m.ItemID,
			Title:    m.Title,
			Messages: m.MessageCount,
			Updated:  m.UpdatedAt.UTC().Format(time.RFC3339),
			Preview:  m.Preview,
		})
	}
	return OutputJSON(stdout, args.JSON, "list", data, func() error {
		_, err := fmt.Fprint(stdout, storage.FormatTranscriptList(metas))
		return err
	})
}

// ItemData is the JSON form of one stored document.
type ItemData struct {
	ItemID  string `json:"item_id"`
	Title   string `json:"title"`
	Created string `json:"created"`
	Updated string `json:"updated"`
}

// HandleItems lists the documents that have notes or conversations.
func HandleItems(args Args, stdout, stderr io.Writer) error {
	db, closeStore, err := openStore(args, stderr)
	if err != nil {
		return err
	}
	defer closeStore()

	items, err := db.ListItems(context.Background())
	if err != nil {
		return err
	}
	data := make([]ItemData, 0, len(items))
	for _, it := range items {
		data = append(data, ItemData{
			ItemID:  it.ID(),
			Title:   it.Title(),
			Created: it.CreatedAt.UTC().Format(time.RFC3339),
			Updated: it.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return OutputJSON(stdout, args.JSON, "items", data, func() error {
		_, err := fmt.Fprint(stdout, storage.FormatItemList(items))
		return err
	})
}

// NoteData is the JSON form of one note. HTML is the stored note body.
type NoteData struct {
	ID      int64  `json:"id"`
	ItemID  string `json:"item_id"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
	Updated string `json:"updated"`
}

// HandleNotes shows the notes of one document, oldest first.
func HandleNotes(args Args, stdout, stderr io.Writer) error {
	p := NewArgParser(args.Raw)
	itemID := p.Positional(0)
	if itemID == "" {
		itemID = args.Item
	}
	limit, err := limitFlag(p)
	if err != nil {
		return err
	}

	db, closeStore, err := openStore(args, stderr)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	if _, err := db.GetItem(ctx, itemID); errors.Is(err, host.ErrNotFound) {
		return &NotFoundError{Resource: "document", ID: itemID}
	} else if err != nil {
		return err
	}
	notes, err := db.ListNotes(ctx, itemID)
	if err != nil {
		return err
	}
	notes = truncateList(notes, limit)

	data := make([]NoteData, 0, len(notes))
	for _, n := range notes {
		data = append(data, NoteData{
			ID:      n.ID(),
			ItemID:  n.ItemID(),
			HTML:    n.Text(),
			Text:    n.PlainText(),
			Updated: n.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return OutputJSON(stdout, args.JSON, "notes", data, func() error {
		_, err := fmt.Fprint(stdout, storage.FormatNoteList(notes))
		return err
	})
}

// HandleExport writes a saved conversation to a file.
func HandleExport(args Args, stdout, stderr io.Writer) error {
	p := NewArgParser(args.Raw, "open", "include-system", "no-metadata", "no-timestamps")
	itemID := p.Positional(0)
	if itemID == "" {
		return ErrMissingArgument("item", "readerai export book-42 --format html")
	}

	db, closeStore, err := openStore(args, stderr)
	if err != nil {
		return err
	}
	defer closeStore()

	t, err := db.LoadTranscript(context.Background(), itemID)
	if errors.Is(err, storage.ErrTranscriptNotFound) {
		return &NotFoundError{Resource: "conversation", ID: itemID}
	}
	if err != nil {
		return err
	}

	opts := export.DefaultOptions()
	opts.OutputDir = p.FlagOrDefault("output", ".")
	opts.OpenAfterExport = p.BoolFlag("open")
	opts.IncludeSystem = p.BoolFlag("include-system")
	opts.IncludeMetadata = !p.BoolFlag("no-metadata")
	opts.IncludeTimestamps = !p.BoolFlag("no-timestamps")
	if theme := p.Flag("theme"); theme != "" {
		opts.Theme = theme
	}

	path, err := export.ExportFormat(t, p.FlagOrDefault("format", string(export.FormatMarkdown)), opts)
	if err != nil {
		return err
	}
	return OutputJSON(stdout, args.JSON, "export", map[string]string{"item_id": itemID, "path": path}, func() error {
		_, err := fmt.Fprintf(stdout, "%s %s\n", RenderStatus("ok"), path)
		return err
	})
}

// HandleDelete removes a saved conversation. Notes are kept.
func HandleDelete(args Args, stdout, stderr io.Writer) error {
	p := NewArgParser(args.Raw, "confirm")
	itemID := p.Positional(0)
	if itemID == "" {
		return ErrMissingArgument("item", "readerai delete book-42 --confirm")
	}
	if !p.BoolFlag("confirm") {
		return NewValidationErrorWithExample("confirm", "", "deleting a conversation cannot be undone",
			"readerai delete "+itemID+" --confirm")
	}

	db, closeStore, err := openStore(args, stderr)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	if _, err := db.LoadTranscript(ctx, itemID); errors.Is(err, storage.ErrTranscriptNotFound) {
		return &NotFoundError{Resource: "conversation", ID: itemID}
	}
	if err := db.DeleteTranscript(ctx, itemID); err != nil {
		return err
	}
	if !args.Quiet {
		fmt.Fprintf(stdout, "%s deleted %s\n", RenderStatus("ok"), itemID)
	}
	return nil
}
