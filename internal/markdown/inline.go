// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"regexp"
	"strings"
)

// =============================================================================
// INLINE FORMATTING
// =============================================================================

// spanContent is a lazy run that never crosses a closing tag, so a span
// cannot straddle two table cells or list items.
const spanContent = `(?:[^<\n]|<[^/\n])+?`

// closedTag is one complete tag pair written by an earlier pass, such as
// "<strong>x</strong>". Italic bodies may contain whole pairs but no other
// "<", so an italic span never closes inside a bold one.
const closedTag = `<[^>\n]*>[^<\n]*</[^>\n]*>`

// italicBody builds the body of a single-marker span: it starts and ends
// with a non-space character other than the marker.
func italicBody(marker string) string {
	edge := `(?:[^` + marker + `\s<]|` + closedTag + `)`
	inner := `(?:[^` + marker + `<\n]|` + closedTag + `)`
	return `(` + edge + `(?:` + inner + `*` + edge + `)?)`
}

// Underscore forms must not touch snake_case identifiers, so they need a
// non-word character (or line edge) on both sides. RE2 has no lookaround;
// the surrounding characters are captured and written back.
var (
	boldItalicRegex      = regexp.MustCompile(`\*\*\*(` + spanContent + `)\*\*\*`)
	boldStarRegex        = regexp.MustCompile(`\*\*(` + spanContent + `)\*\*`)
	boldUnderscoreRegex  = regexp.MustCompile(`(^|[^\w])__(` + spanContent + `)__([^\w]|$)`)
	italicStarRegex      = regexp.MustCompile(`\*` + italicBody(`*`) + `\*`)
	italicUnderRegex     = regexp.MustCompile(`(^|[^\w])_` + italicBody(`_`) + `_([^\w]|$)`)
	strikethroughRegex   = regexp.MustCompile(`~~(` + spanContent + `)~~`)
	inlineFormattingHint = "*_~"
)

// inlineFormatting applies bold before italic so "**x**" is never read as
// two empty italics.
func inlineFormatting(text string) string {
	if !strings.ContainsAny(text, inlineFormattingHint) {
		return text
	}
	text = boldItalicRegex.ReplaceAllString(text, "<strong><em>$1</em></strong>")
	text = boldStarRegex.ReplaceAllString(text, "<strong>$1</strong>")
	text = boldUnderscoreRegex.ReplaceAllString(text, "$1<strong>$2</strong>$3")
	text = italicStarRegex.ReplaceAllString(text, "<em>$1</em>")
	text = italicUnderRegex.ReplaceAllString(text, "$1<em>$2</em>$3")
	text = strikethroughRegex.ReplaceAllString(text, "<del>$1</del>")
	return text
}

// =============================================================================
// LINKS
// =============================================================================

var (
	explicitLinkRegex = regexp.MustCompile(`\[([^\]\n]+)\]\(([^)\s]+)\)`)
	bareURLRegex      = regexp.MustCompile(`https?://[^\s<>"'\x00]+`)
)

// Entities that can trail a URL once the text has been escaped.
var urlStopEntities = []string{"&lt;", "&gt;", "&quot;", "&#39;"}

const urlTrailingPunct = ".,;:!?)"

func linkHTML(href, text string) string {
	return `<a href="` + href + `" target="_blank" rel="noopener noreferrer">` + text + `</a>`
}

// safeHref accepts http, https and mailto targets plus relative ones.
// Anything with another scheme (javascript:, data:) is refused.
func safeHref(href string) bool {
	if strings.ContainsAny(href, "<>\"\x00") {
		return false
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"http://", "https://", "mailto:"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	colon := strings.Index(lower, ":")
	if colon < 0 {
		return true
	}
	// A colon after a path, query or fragment separator is not a scheme.
	sep := strings.IndexAny(lower, "/?#")
	return sep >= 0 && sep < colon
}

func (p *pass) links(text string) string {
	if strings.Contains(text, "](") {
		text = explicitLinkRegex.ReplaceAllStringFunc(text, func(m string) string {
			parts := explicitLinkRegex.FindStringSubmatch(m)
			if !safeHref(parts[2]) {
				return m
			}
			return p.hold(kindInline, linkHTML(parts[2], parts[1]))
		})
	}
	if strings.Contains(text, "://") {
		text = p.autolink(text)
	}
	return text
}

// autolink links bare http(s) URLs. URLs sitting inside an attribute value
// (only possible when sanitizing is off) are left alone.
func (p *pass) autolink(text string) string {
	matches := bareURLRegex.FindAllStringIndex(text, -1)
	if matches == nil {
		return text
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > 0 {
			if prev := text[start-1]; prev == '"' || prev == '\'' || prev == '=' {
				continue
			}
		}

		url := text[start:end]
		for _, entity := range urlStopEntities {
			if idx := strings.Index(url, entity); idx >= 0 {
				url = url[:idx]
			}
		}
		url = strings.TrimRight(url, urlTrailingPunct)
		if host := url[strings.Index(url, "://")+3:]; host == "" {
			continue
		}

		b.WriteString(text[last:start])
		b.WriteString(p.hold(kindInline, linkHTML(url, url)))
		last = start + len(url)
	}
	b.WriteString(text[last:])
	return b.String()
}
