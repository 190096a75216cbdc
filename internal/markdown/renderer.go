// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options toggles optional stages of the pipeline.
type Options struct {
	// Sanitize escapes & < > " ' before any other stage runs.
	Sanitize bool

	// Tables enables pipe table conversion.
	Tables bool

	// Links enables [text](url) links and bare URL autolinking.
	Links bool
}

// DefaultOptions returns options with every stage enabled.
func DefaultOptions() Options {
	return Options{
		Sanitize: true,
		Tables:   true,
		Links:    true,
	}
}

// =============================================================================
// RENDERER
// =============================================================================

// Renderer converts Markdown-flavored text into HTML. It holds no state
// between calls and is safe for concurrent use.
type Renderer struct {
	opts Options
}

// New creates a renderer with the given options.
func New(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

var defaultRenderer = New(DefaultOptions())

// Render converts text with the default options.
func Render(text string) string {
	return defaultRenderer.Render(text)
}

// Options returns the options the renderer was built with.
func (r *Renderer) Options() Options {
	return r.opts
}

// Render converts text into HTML. Malformed markup passes through as text;
// any prefix of a document renders without error.
func (r *Renderer) Render(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	p := &pass{}
	text = normalize(text)

	if r.opts.Sanitize {
		text = escapeHTML(text)
	}
	text = p.fencedCode(text)
	text = p.inlineCode(text)
	if r.opts.Tables {
		text = tables(text)
	}
	text = lists(text)
	text = blockquotes(text)
	text = headings(text)
	text = rules(text)
	text = inlineFormatting(text)
	if r.opts.Links {
		text = p.links(text)
	}
	text = paragraphs(text)

	return p.restore(text)
}

// =============================================================================
// PASS STATE
// =============================================================================

// Rendered code and links are held aside behind placeholders so that later
// stages never rewrite them. Placeholders use NUL, which normalize strips
// from the input.
const (
	placeholderMark = "\x00"
	kindBlock       = 'B'
	kindInline      = 'I'
)

var placeholderRegex = regexp.MustCompile("\x00([BI])([0-9]+)\x00")

type pass struct {
	held []string
}

func (p *pass) hold(kind byte, html string) string {
	p.held = append(p.held, html)
	return placeholderMark + string(kind) + strconv.Itoa(len(p.held)-1) + placeholderMark
}

// restore swaps placeholders back in. Held fragments may contain earlier
// placeholders (a link wrapping inline code), so restoration recurses.
func (p *pass) restore(text string) string {
	if len(p.held) == 0 {
		return text
	}
	return placeholderRegex.ReplaceAllStringFunc(text, func(m string) string {
		parts := placeholderRegex.FindStringSubmatch(m)
		idx, err := strconv.Atoi(parts[2])
		if err != nil || idx < 0 || idx >= len(p.held) {
			return ""
		}
		return p.restore(p.held[idx])
	})
}

func isBlockPlaceholder(line string) bool {
	return len(line) > 2 && line[0] == 0 && line[1] == kindBlock && line[len(line)-1] == 0
}

// =============================================================================
// ESCAPING
// =============================================================================

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.ReplaceAll(text, placeholderMark, "\uFFFD")
}

// =============================================================================
// PARAGRAPHS
// =============================================================================

var blankLineRegex = regexp.MustCompile(`\n[ \t]*\n`)

var blockPrefixes = []string{
	"<h1", "<h2", "<h3", "<h4", "<h5", "<h6",
	"<ul", "<ol", "<table", "<blockquote", "<div", "<pre", "<hr",
}

func isBlockLine(line string) bool {
	if isBlockPlaceholder(line) {
		return true
	}
	for _, prefix := range blockPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// paragraphs wraps loose text in <p>. Block elements produced by earlier
// stages sit on their own line and are passed through; the text between them
// is grouped and its single newlines become <br>.
func paragraphs(text string) string {
	var out []string
	for _, chunk := range blankLineRegex.Split(text, -1) {
		var para []string
		flush := func() {
			if len(para) > 0 {
				out = append(out, "<p>"+strings.Join(para, "<br>")+"</p>")
				para = nil
			}
		}
		for _, line := range strings.Split(chunk, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if isBlockLine(line) {
				flush()
				out = append(out, line)
				continue
			}
			para = append(para, line)
		}
		flush()
	}
	return strings.Join(out, "\n")
}
