// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the CLI, config and export
// packages.
//
// String helpers are rune and display-width aware (go-runewidth), so
// previews of chat messages never split a UTF-8 sequence or overflow a
// terminal column budget:
//
//	line := util.PadWidth(util.SingleLine(msg.Content), 40)
//
// AtomicWriteFile writes through a temp file, fsync and rename:
//
//	err := util.AtomicWriteFile(path, data, 0600)
package util
