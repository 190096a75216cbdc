// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage is the reference host's persistence layer: a single SQLite
// database (modernc.org/sqlite, WAL mode) holding documents, their notes,
// typed preferences and saved conversation transcripts.
//
// *DB implements host.Notes and host.Preferences, so the assistant can run
// against it exactly as it would against a real reader application:
//
//	db, err := storage.Open(cfg.Notes.DatabasePath)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	h := host.New(db, db)
package storage
