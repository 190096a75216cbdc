// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the command handlers for
// readerai.
//
// # Commands
//
//   - ask, translate, summarize, keypoints: one request about a document
//   - chat: interactive conversation with line editing and history
//   - render: Markdown to HTML through the response renderer
//   - serve: run the HTTP bridge, reloading config.toml on change
//   - test: check the model endpoint
//   - config: show, get, set (optionally sealed), keys, path and reset
//   - list, export, delete: saved conversations
//   - items, notes: stored documents and the notes saved on them
//
// Output is styled with lipgloss when stdout is a terminal and plain
// otherwise. Most commands accept --json for machine-readable output.
package cli
