// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/readerai/internal/host"
	"github.com/jeranaias/readerai/internal/model"
	"github.com/jeranaias/readerai/internal/session"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	db, err := Open(filepath.Join(t.TempDir(), "notes.db"),
		WithClock(func() time.Time {
			now = now.Add(time.Second)
			return now
		}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// =============================================================================
// ITEMS AND NOTES
// =============================================================================

func TestEnsureItem(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	item, err := db.EnsureItem(ctx, "doc-1", "Attention Is All You Need")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", item.ID())
	assert.Equal(t, "Attention Is All You Need", item.Title())

	// Empty title keeps the existing one.
	item, err = db.EnsureItem(ctx, "doc-1", "")
	require.NoError(t, err)
	assert.Equal(t, "Attention Is All You Need", item.Title())

	item, err = db.EnsureItem(ctx, "doc-1", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", item.Title())

	items, err := db.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestGetItem_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetItem(context.Background(), "missing")
	assert.ErrorIs(t, err, host.ErrNotFound)
}

func TestNotes_CreateSaveAndChild(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.EnsureItem(ctx, "doc-1", "Doc")
	require.NoError(t, err)

	_, err = db.ChildNote(ctx, "doc-1")
	require.ErrorIs(t, err, host.ErrNotFound)

	first, err := db.CreateNote(ctx, "doc-1")
	require.NoError(t, err)
	first.SetText("first note")
	require.NoError(t, first.Save(ctx))

	second, err := db.CreateNote(ctx, "doc-1")
	require.NoError(t, err)
	second.SetText("<h2>Summary</h2><p>second</p>")
	require.NoError(t, second.Save(ctx))

	child, err := db.ChildNote(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "<h2>Summary</h2><p>second</p>", child.Text())

	notes, err := db.ListNotes(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "first note", notes[0].Text())
	assert.Equal(t, "doc-1", notes[1].ItemID())
}

func TestNote_PlainText(t *testing.T) {
	n := &Note{text: "<h2>Summary</h2><p>Tom &amp; Jerry&#39;s\nchase</p><ul><li>one</li><li>two</li></ul>"}
	assert.Equal(t, "Summary Tom & Jerry's chase one two", n.PlainText())
}

func TestFormatItemAndNoteLists(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	assert.Equal(t, "No documents.\n", FormatItemList(nil))
	assert.Equal(t, "No notes.\n", FormatNoteList(nil))

	_, err := db.EnsureItem(ctx, "doc-1", "Moby-Dick")
	require.NoError(t, err)
	note, err := db.CreateNote(ctx, "doc-1")
	require.NoError(t, err)
	note.SetText("<h2>Whale</h2><p>" + strings.Repeat("call me Ishmael ", 10) + "</p>")
	require.NoError(t, note.Save(ctx))

	items, err := db.ListItems(ctx)
	require.NoError(t, err)
	out := FormatItemList(items)
	assert.True(t, strings.HasPrefix(out, "ITEM"))
	assert.Contains(t, out, "doc-1")
	assert.Contains(t, out, "Moby-Dick")

	notes, err := db.ListNotes(ctx, "doc-1")
	require.NoError(t, err)
	out = FormatNoteList(notes)
	assert.Contains(t, out, "Whale call me Ishmael")
	assert.NotContains(t, out, "<h2>")
	assert.Contains(t, out, "...")
}

func TestNotes_UnsavedTextIsNotPersisted(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.EnsureItem(ctx, "doc-1", "Doc")
	require.NoError(t, err)

	note, err := db.CreateNote(ctx, "doc-1")
	require.NoError(t, err)
	note.SetText("draft")

	child, err := db.ChildNote(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "", child.Text())
}

func TestCreateNote_UnknownItem(t *testing.T) {
	db := openTestDB(t)

	_, err := db.CreateNote(context.Background(), "ghost")
	assert.ErrorIs(t, err, host.ErrNotFound)
}

func TestHostIntegration(t *testing.T) {
	db := openTestDB(t)
	h := host.New(db, db)

	_, ok := h.LookupItem(context.Background(), "nope")
	assert.False(t, ok)

	_, err := db.EnsureItem(context.Background(), "doc-1", "Doc")
	require.NoError(t, err)
	item, ok := h.LookupItem(context.Background(), "doc-1")
	require.True(t, ok)
	assert.Equal(t, "Doc", item.Title())
}

// =============================================================================
// PREFERENCES
// =============================================================================

func TestPreferences_TypedRoundTrip(t *testing.T) {
	db := openTestDB(t)

	_, ok := db.String("readerai.apiKey")
	assert.False(t, ok)

	require.NoError(t, db.SetString("readerai.apiKey", "sk-123"))
	require.NoError(t, db.SetFloat("readerai.temperature", 0.1+0.2))
	require.NoError(t, db.SetBool("readerai.enableStreaming", false))

	s, ok := db.String("readerai.apiKey")
	assert.True(t, ok)
	assert.Equal(t, "sk-123", s)

	f, ok := db.Float("readerai.temperature")
	assert.True(t, ok)
	assert.Equal(t, 0.1+0.2, f, "float must survive storage exactly")

	b, ok := db.Bool("readerai.enableStreaming")
	assert.True(t, ok)
	assert.False(t, b)
}

func TestPreferences_KindMismatchIsAbsent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SetFloat("k", 1.5))

	_, ok := db.String("k")
	assert.False(t, ok)
	_, ok = db.Bool("k")
	assert.False(t, ok)

	require.NoError(t, db.SetString("k", "now a string"))
	v, ok := db.String("k")
	assert.True(t, ok)
	assert.Equal(t, "now a string", v)

	require.NoError(t, db.DeletePref("k"))
	_, ok = db.String("k")
	assert.False(t, ok)
}

// =============================================================================
// TRANSCRIPTS
// =============================================================================

func sampleContext() session.Context {
	sys := model.NewSystemMessage("You are a reading assistant.")
	user := model.NewUserMessage("What is  the\nmain claim?").WithPage(3)
	reply := model.NewAssistantMessage("**Attention** suffices.")
	return session.Context{
		ItemID:      "doc-1",
		Item:        &Item{id: "doc-1", title: "Attention Paper"},
		Messages:    []model.ChatMessage{sys, user, reply},
		Summary:     "A transformer paper.",
		KeyPoints:   []string{"No recurrence", "Multi-head attention"},
		LastUpdated: time.UnixMilli(1_700_000_000_000),
	}
}

func TestTranscript_SaveLoad(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	in := sampleContext()

	require.NoError(t, db.SaveTranscript(ctx, in))

	got, err := db.LoadTranscript(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Attention Paper", got.Title)
	assert.Equal(t, in.Summary, got.Summary)
	assert.Equal(t, in.KeyPoints, got.KeyPoints)
	assert.Equal(t, in.Messages, got.Messages)
	assert.Equal(t, in.LastUpdated.UnixMilli(), got.UpdatedAt.UnixMilli())

	sc := got.SessionContext()
	assert.Equal(t, "Attention Paper", sc.Item.Title())
	assert.Len(t, sc.Messages, 3)
}

func TestTranscript_SaveReplaces(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	in := sampleContext()
	require.NoError(t, db.SaveTranscript(ctx, in))

	in.Messages = in.Messages[:1]
	in.KeyPoints = nil
	require.NoError(t, db.SaveTranscript(ctx, in))

	got, err := db.LoadTranscript(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 1)
	assert.Nil(t, got.KeyPoints)
}

func TestTranscript_NotFoundAndDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.LoadTranscript(ctx, "doc-1")
	assert.True(t, errors.Is(err, ErrTranscriptNotFound))

	require.NoError(t, db.SaveTranscript(ctx, sampleContext()))
	require.NoError(t, db.DeleteTranscript(ctx, "doc-1"))

	_, err = db.LoadTranscript(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrTranscriptNotFound)
}

func TestTranscript_ListAndSearch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveTranscript(ctx, sampleContext()))

	other := sampleContext()
	other.ItemID = "doc-2"
	other.Item = &Item{id: "doc-2", title: "Cooking 100%"}
	other.Messages = []model.ChatMessage{model.NewUserMessage("How long to boil an egg?")}
	other.LastUpdated = other.LastUpdated.Add(time.Hour)
	require.NoError(t, db.SaveTranscript(ctx, other))

	metas, err := db.ListTranscripts(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "doc-2", metas[0].ItemID, "most recent first")
	assert.Equal(t, 3, metas[1].MessageCount)
	assert.Equal(t, "What is the main claim?", metas[1].Preview)

	found, err := db.SearchTranscripts(ctx, "EGG")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "doc-2", found[0].ItemID)

	found, err = db.SearchTranscripts(ctx, "100%")
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, err = db.SearchTranscripts(ctx, "%")
	require.NoError(t, err)
	assert.Len(t, found, 1, "a literal percent sign must not match everything")

	table := FormatTranscriptList(metas)
	assert.True(t, strings.HasPrefix(table, "ITEM"))
	assert.Contains(t, table, "Cooking 100%")
	assert.Equal(t, "No saved conversations.\n", FormatTranscriptList(nil))
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.EnsureItem(context.Background(), "x", "y")
	assert.NoError(t, err)
}
