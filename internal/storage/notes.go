// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/jeranaias/readerai/internal/host"
	"github.com/jeranaias/readerai/internal/util"
)

// =============================================================================
// ITEMS
// =============================================================================

// Item is a stored document. It implements host.Item.
type Item struct {
	id        string
	title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ID returns the item identifier.
func (i *Item) ID() string { return i.id }

// Title returns the document title.
func (i *Item) Title() string { return i.title }

// EnsureItem creates the item or updates its title. An empty title leaves
// an existing title unchanged.
func (d *DB) EnsureItem(ctx context.Context, id, title string) (*Item, error) {
	if id == "" {
		return nil, errors.New("ensure item: empty id")
	}
	now := d.nowMillis()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO items (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = CASE WHEN excluded.title = '' THEN items.title ELSE excluded.title END,
			updated_at = excluded.updated_at`,
		id, title, now, now)
	if err != nil {
		return nil, wrap("ensure item", err)
	}
	return d.item(ctx, id)
}

// GetItem implements host.Notes.
func (d *DB) GetItem(ctx context.Context, id string) (host.Item, error) {
	item, err := d.item(ctx, id)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (d *DB) item(ctx context.Context, id string) (*Item, error) {
	var (
		item             = &Item{id: id}
		created, updated int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT title, created_at, updated_at FROM items WHERE id = ?`, id,
	).Scan(&item.title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %q: %w", id, host.ErrNotFound)
	}
	if err != nil {
		return nil, wrap("get item", err)
	}
	item.CreatedAt = time.UnixMilli(created)
	item.UpdatedAt = time.UnixMilli(updated)
	return item, nil
}

// ListItems returns all items, most recently updated first.
func (d *DB) ListItems(ctx context.Context) ([]*Item, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM items ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, wrap("list items", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var (
			item             Item
			created, updated int64
		)
		if err := rows.Scan(&item.id, &item.title, &created, &updated); err != nil {
			return nil, wrap("list items", err)
		}
		item.CreatedAt = time.UnixMilli(created)
		item.UpdatedAt = time.UnixMilli(updated)
		items = append(items, &item)
	}
	return items, wrap("list items", rows.Err())
}

// =============================================================================
// NOTES
// =============================================================================

// Note is a stored note. It implements host.Note; SetText only changes the
// in-memory copy until Save.
type Note struct {
	db        *DB
	id        int64
	itemID    string
	text      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ID returns the note's row id.
func (n *Note) ID() int64 { return n.id }

// ItemID returns the parent item id.
func (n *Note) ItemID() string { return n.itemID }

// Text returns the note text.
func (n *Note) Text() string { return n.text }

// plainPolicy drops every tag, leaving a space where block tags were.
var plainPolicy = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

// PlainText returns the note without markup, on one line.
func (n *Note) PlainText() string {
	return util.SingleLine(html.UnescapeString(plainPolicy.Sanitize(n.text)))
}

// SetText replaces the note text in memory.
func (n *Note) SetText(text string) { n.text = text }

// Save writes the text back.
func (n *Note) Save(ctx context.Context) error {
	now := n.db.now()
	res, err := n.db.db.ExecContext(ctx,
		`UPDATE notes SET text = ?, updated_at = ? WHERE id = ?`,
		n.text, now.UnixMilli(), n.id)
	if err != nil {
		return wrap("save note", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("note %d: %w", n.id, host.ErrNotFound)
	}
	n.UpdatedAt = now
	return nil
}

// ChildNote implements host.Notes: the newest note of the item.
func (d *DB) ChildNote(ctx context.Context, itemID string) (host.Note, error) {
	notes, err := d.queryNotes(ctx,
		`SELECT id, item_id, text, created_at, updated_at FROM notes
		 WHERE item_id = ? ORDER BY id DESC LIMIT 1`, itemID)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("note for item %q: %w", itemID, host.ErrNotFound)
	}
	return notes[0], nil
}

// CreateNote implements host.Notes. The item must exist.
func (d *DB) CreateNote(ctx context.Context, itemID string) (host.Note, error) {
	if _, err := d.item(ctx, itemID); err != nil {
		return nil, err
	}
	now := d.now()
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO notes (item_id, text, created_at, updated_at) VALUES (?, '', ?, ?)`,
		itemID, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, wrap("create note", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrap("create note", err)
	}
	return &Note{db: d, id: id, itemID: itemID, CreatedAt: now, UpdatedAt: now}, nil
}

// ListNotes returns an item's notes, oldest first.
func (d *DB) ListNotes(ctx context.Context, itemID string) ([]*Note, error) {
	return d.queryNotes(ctx,
		`SELECT id, item_id, text, created_at, updated_at FROM notes
		 WHERE item_id = ? ORDER BY id`, itemID)
}

func (d *DB) queryNotes(ctx context.Context, query string, args ...any) ([]*Note, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("query notes", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		n := &Note{db: d}
		var created, updated int64
		if err := rows.Scan(&n.id, &n.itemID, &n.text, &created, &updated); err != nil {
			return nil, wrap("query notes", err)
		}
		n.CreatedAt = time.UnixMilli(created)
		n.UpdatedAt = time.UnixMilli(updated)
		notes = append(notes, n)
	}
	return notes, wrap("query notes", rows.Err())
}

var _ host.Notes = (*DB)(nil)

// =============================================================================
// LISTINGS
// =============================================================================

// FormatItemList renders items as a table for the CLI.
func FormatItemList(items []*Item) string {
	if len(items) == 0 {
		return "No documents.\n"
	}

	var sb strings.Builder
	sb.WriteString(util.PadWidth("ITEM", 16) + "  " + util.PadWidth("TITLE", 40) + "  UPDATED\n")
	for _, it := range items {
		sb.WriteString(util.PadWidth(it.id, 16))
		sb.WriteString("  ")
		sb.WriteString(util.PadWidth(it.title, 40))
		sb.WriteString("  ")
		sb.WriteString(it.UpdatedAt.Format("2006-01-02 15:04"))
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatNoteList renders notes as a table with one-line previews.
func FormatNoteList(notes []*Note) string {
	if len(notes) == 0 {
		return "No notes.\n"
	}

	var sb strings.Builder
	sb.WriteString(util.PadWidth("ID", 6) + "  " + util.PadWidth("UPDATED", 16) + "  TEXT\n")
	for _, n := range notes {
		sb.WriteString(util.PadWidth(fmt.Sprintf("%d", n.id), 6))
		sb.WriteString("  ")
		sb.WriteString(util.PadWidth(n.UpdatedAt.Format("2006-01-02 15:04"), 16))
		sb.WriteString("  ")
		sb.WriteString(util.TruncateWidth(n.PlainText(), 60))
		sb.WriteString("\n")
	}
	return sb.String()
}
