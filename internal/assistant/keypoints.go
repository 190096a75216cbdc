// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"regexp"
	"strings"
)

// bulletMarker matches "-", "*", "+", "•" and "1." / "1)" list markers.
var bulletMarker = regexp.MustCompile(`^\s*(?:[-*+•]|\d{1,3}[.)])\s+`)

// ParseKeyPoints extracts list items from a model answer. If the answer has
// no list, each non-empty line that is not a heading counts as a point.
func ParseKeyPoints(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var bullets, plain []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if loc := bulletMarker.FindStringIndex(line); loc != nil {
			if item := strings.TrimSpace(line[loc[1]:]); item != "" {
				bullets = append(bullets, item)
			}
			continue
		}
		if strings.HasPrefix(trimmed, "#") || strings.HasSuffix(trimmed, ":") {
			continue
		}
		plain = append(plain, trimmed)
	}

	if len(bullets) > 0 {
		return bullets
	}
	return plain
}
