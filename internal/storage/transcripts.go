// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/readerai/internal/model"
	"github.com/jeranaias/readerai/internal/session"
	"github.com/jeranaias/readerai/internal/util"
)

// ErrTranscriptNotFound is returned when no transcript is saved for an item.
var ErrTranscriptNotFound = errors.New("transcript not found")

// =============================================================================
// TRANSCRIPT TYPES
// =============================================================================

// Transcript is a saved copy of a session, kept so that later runs can
// resume or export it.
type Transcript struct {
	ItemID    string
	Title     string
	Summary   string
	KeyPoints []string
	Messages  []model.ChatMessage
	UpdatedAt time.Time
}

// TranscriptMeta is the listing form of a transcript.
type TranscriptMeta struct {
	ItemID       string
	Title        string
	UpdatedAt    time.Time
	MessageCount int
	Preview      string // first user message, single line
}

// SessionContext converts the transcript back into the session form the
// exporters and the store use.
func (t *Transcript) SessionContext() session.Context {
	msgs := make([]model.ChatMessage, len(t.Messages))
	for i, m := range t.Messages {
		msgs[i] = m.Clone()
	}
	return session.Context{
		ItemID:      t.ItemID,
		Item:        &Item{id: t.ItemID, title: t.Title},
		Messages:    msgs,
		Summary:     t.Summary,
		KeyPoints:   append([]string(nil), t.KeyPoints...),
		LastUpdated: t.UpdatedAt,
	}
}

// =============================================================================
// SAVE / LOAD
// =============================================================================

// SaveTranscript replaces the stored transcript for ctx.ItemID with the
// session's current state.
func (d *DB) SaveTranscript(ctx context.Context, sc session.Context) error {
	if sc.ItemID == "" {
		return errors.New("save transcript: empty item id")
	}
	title := ""
	if sc.Item != nil {
		title = sc.Item.Title()
	}
	keyPoints := sc.KeyPoints
	if keyPoints == nil {
		keyPoints = []string{}
	}
	kp, err := json.Marshal(keyPoints)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	updated := sc.LastUpdated
	if updated.IsZero() {
		updated = d.now()
	}

	err = d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transcripts (item_id, title, summary, key_points, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(item_id) DO UPDATE SET
				title = excluded.title, summary = excluded.summary,
				key_points = excluded.key_points, updated_at = excluded.updated_at`,
			sc.ItemID, title, sc.Summary, string(kp), updated.UnixMilli()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM transcript_messages WHERE item_id = ?`, sc.ItemID); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transcript_messages (item_id, seq, id, role, content, timestamp, page_number)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, m := range sc.Messages {
			var page sql.NullInt64
			if m.PageNumber != nil {
				page = sql.NullInt64{Int64: int64(*m.PageNumber), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, sc.ItemID, i, m.ID, string(m.Role), m.Content, m.Timestamp, page); err != nil {
				return err
			}
		}
		return nil
	})
	return wrap("save transcript", err)
}

// LoadTranscript returns the transcript saved for itemID.
func (d *DB) LoadTranscript(ctx context.Context, itemID string) (*Transcript, error) {
	t := &Transcript{ItemID: itemID}
	var (
		kp      string
		updated int64
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT title, summary, key_points, updated_at FROM transcripts WHERE item_id = ?`, itemID,
	).Scan(&t.Title, &t.Summary, &kp, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %q: %w", itemID, ErrTranscriptNotFound)
	}
	if err != nil {
		return nil, wrap("load transcript", err)
	}
	t.UpdatedAt = time.UnixMilli(updated)
	if err := json.Unmarshal([]byte(kp), &t.KeyPoints); err != nil {
		return nil, fmt.Errorf("load transcript: key points: %w", err)
	}
	if len(t.KeyPoints) == 0 {
		t.KeyPoints = nil
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, role, content, timestamp, page_number FROM transcript_messages
		WHERE item_id = ? ORDER BY seq`, itemID)
	if err != nil {
		return nil, wrap("load transcript", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m    model.ChatMessage
			role string
			page sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.Timestamp, &page); err != nil {
			return nil, wrap("load transcript", err)
		}
		if m.Role, err = model.ParseRole(role); err != nil {
			d.logger.Warn("skipping stored message with bad role", "item", itemID, "role", role)
			continue
		}
		if page.Valid {
			p := int(page.Int64)
			m.PageNumber = &p
		}
		t.Messages = append(t.Messages, m)
	}
	return t, wrap("load transcript", rows.Err())
}

// LoadSession loads the transcript for itemID in session form.
func (d *DB) LoadSession(ctx context.Context, itemID string) (session.Context, error) {
	t, err := d.LoadTranscript(ctx, itemID)
	if err != nil {
		return session.Context{}, err
	}
	return t.SessionContext(), nil
}

// DeleteTranscript removes the transcript for itemID, if any.
func (d *DB) DeleteTranscript(ctx context.Context, itemID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM transcripts WHERE item_id = ?`, itemID)
	return wrap("delete transcript", err)
}

// =============================================================================
// LISTING
// =============================================================================

const listTranscriptsQuery = `
	SELECT t.item_id, t.title, t.updated_at,
		(SELECT COUNT(*) FROM transcript_messages m WHERE m.item_id = t.item_id),
		COALESCE((SELECT m.content FROM transcript_messages m
			WHERE m.item_id = t.item_id AND m.role = 'user' ORDER BY m.seq LIMIT 1), '')
	FROM transcripts t`

// ListTranscripts returns transcript summaries, most recent first.
func (d *DB) ListTranscripts(ctx context.Context) ([]TranscriptMeta, error) {
	return d.queryMetas(ctx, listTranscriptsQuery+` ORDER BY t.updated_at DESC, t.item_id`)
}

// SearchTranscripts returns transcripts whose title or any message contains
// query, case-insensitively.
func (d *DB) SearchTranscripts(ctx context.Context, query string) ([]TranscriptMeta, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return d.ListTranscripts(ctx)
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return d.queryMetas(ctx, listTranscriptsQuery+`
		WHERE lower(t.title) LIKE ? ESCAPE '\'
		   OR EXISTS (SELECT 1 FROM transcript_messages m
		              WHERE m.item_id = t.item_id AND lower(m.content) LIKE ? ESCAPE '\')
		ORDER BY t.updated_at DESC, t.item_id`, pattern, pattern)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (d *DB) queryMetas(ctx context.Context, query string, args ...any) ([]TranscriptMeta, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list transcripts", err)
	}
	defer rows.Close()

	var metas []TranscriptMeta
	for rows.Next() {
		var (
			m       TranscriptMeta
			updated int64
			preview string
		)
		if err := rows.Scan(&m.ItemID, &m.Title, &updated, &m.MessageCount, &preview); err != nil {
			return nil, wrap("list transcripts", err)
		}
		m.UpdatedAt = time.UnixMilli(updated)
		m.Preview = util.TruncateRunes(util.SingleLine(preview), 80)
		metas = append(metas, m)
	}
	return metas, wrap("list transcripts", rows.Err())
}

// FormatTranscriptList renders metas as an aligned table for the terminal.
func FormatTranscriptList(metas []TranscriptMeta) string {
	if len(metas) == 0 {
		return "No saved conversations.\n"
	}

	var sb strings.Builder
	sb.WriteString(util.PadWidth("ITEM", 16) + "  " + util.PadWidth("TITLE", 28) + "  " +
		util.PadWidth("MSGS", 4) + "  " + util.PadWidth("UPDATED", 16) + "  PREVIEW\n")
	for _, m := range metas {
		sb.WriteString(util.PadWidth(m.ItemID, 16))
		sb.WriteString("  ")
		sb.WriteString(util.PadWidth(m.Title, 28))
		sb.WriteString("  ")
		sb.WriteString(util.PadWidth(fmt.Sprintf("%d", m.MessageCount), 4))
		sb.WriteString("  ")
		sb.WriteString(util.PadWidth(m.UpdatedAt.Format("2006-01-02 15:04"), 16))
		sb.WriteString("  ")
		sb.WriteString(util.TruncateWidth(m.Preview, 40))
		sb.WriteString("\n")
	}
	return sb.String()
}
