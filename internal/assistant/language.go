// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var englishNames = display.Tags(language.English)

// LanguageName turns a BCP 47 tag into its English name ("fr" -> "French",
// "zh-Hant" -> "Traditional Chinese"). Anything that does not parse as a
// tag, such as "Klingon" or "French", is returned trimmed and unchanged.
func LanguageName(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return "English"
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	if name := englishNames.Name(tag); name != "" {
		return name
	}
	return lang
}
