// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversation transcripts to files.
//
// # Supported Formats
//
//   - Markdown: frontmatter, summary, key points and every turn as written
//   - HTML: standalone page; answers rendered through the Markdown renderer
//   - JSON: the transcript with its messages, for re-import or tooling
//
// # Usage
//
//	t, err := db.LoadTranscript(ctx, itemID)
//	path, err := export.ExportFormat(t, "html", export.DefaultOptions())
//
// Live sessions that were never saved can be exported with ExportSession.
package export
