// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assistant is the orchestration layer between a reader host and
// the language model. For each document it keeps a session in the store and
// a dedicated chat client, sends questions with the session history, turns
// streamed text into HTML and publishes progress as host events.
//
// A typical UI loop:
//
//	a := assistant.New(cfg, assistant.WithHost(h))
//	unsubscribe := a.Events().Subscribe(func(ev host.Event) {
//	    if ev.HTML != "" {
//	        pane.SetHTML(ev.ItemID, ev.HTML)
//	    }
//	})
//	defer unsubscribe()
//	ans, err := a.Ask(ctx, itemID, assistant.Question{Text: "What is the main claim?"})
//
// Re-rendering during a stream is throttled (render.throttle_ms); the
// completed or aborted event always carries the final HTML.
package assistant
