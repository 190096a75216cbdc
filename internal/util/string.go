// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const ellipsis = "..."

// TruncateRunes truncates s to at most maxRunes characters, replacing the
// tail with "..." when it cuts.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= len(ellipsis) {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-len(ellipsis)]) + ellipsis
}

// TruncateWidth truncates s to at most maxWidth terminal columns. Wide
// characters (CJK, fullwidth forms, most emoji) count as two. The result,
// ellipsis included, never exceeds maxWidth.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= len(ellipsis) {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, ellipsis)
}

// PadWidth right-pads s with spaces to width columns, truncating first if it
// is wider.
func PadWidth(s string, width int) string {
	s = TruncateWidth(s, width)
	return runewidth.FillRight(s, width)
}

// StringWidth returns the display width of s in terminal columns.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// SingleLine collapses all whitespace runs, newlines included, into single
// spaces. Used for one-line previews of message content.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
