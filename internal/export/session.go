// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"time"

	"github.com/jeranaias/readerai/internal/model"
	"github.com/jeranaias/readerai/internal/session"
	"github.com/jeranaias/readerai/internal/storage"
)

// FromSession converts a live session into a transcript so it can be
// exported without saving it first.
func FromSession(sc session.Context) *storage.Transcript {
	t := &storage.Transcript{
		ItemID:    sc.ItemID,
		Summary:   sc.Summary,
		KeyPoints: append([]string(nil), sc.KeyPoints...),
		Messages:  make([]model.ChatMessage, len(sc.Messages)),
		UpdatedAt: sc.LastUpdated,
	}
	if sc.Item != nil {
		t.Title = sc.Item.Title()
	}
	for i, m := range sc.Messages {
		t.Messages[i] = m.Clone()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
	return t
}

// ExportSession exports a live session in the named format.
func ExportSession(sc session.Context, format string, opts *Options) (string, error) {
	return ExportFormat(FromSession(sc), format, opts)
}
