// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session keeps per-document conversation state with bounded
// retention and read-triggered expiry.
//
// # Key Types
//
//   - Store: map from document id to Context, safe for concurrent use
//   - Context: messages, cached summary and key points, last update time
//
// # Usage
//
//	store := session.NewStore(session.DefaultConfig())
//	store.CreateSession(itemID, item)
//	store.AddMessage(itemID, model.NewUserMessage("What does page 3 say?"))
//
//	if ctx, ok := store.GetSession(itemID); ok {
//	    send(ctx.Messages)
//	}
//
// # Retention
//
// Each session holds at most MaxMessages messages. When the cap is exceeded
// the oldest non-system messages are dropped; system messages are never
// dropped. A session untouched for longer than Timeout is evicted the next
// time it is read; there is no background sweep.
package session
