// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package markdown renders Markdown-flavored assistant output into HTML that
// can be injected into a page as is.
//
// Rendering is a fixed sequence of text stages: escaping, fenced code,
// inline code, tables, lists, blockquotes, headings, horizontal rules,
// inline formatting, links and finally paragraph wrapping. Each stage
// assumes the earlier ones already produced their HTML.
//
// The renderer is pure. It is meant to be called on every growing prefix of
// a streamed answer, so nothing is ever rejected: an unclosed fence renders
// as an open code block and anything unrecognised stays literal text.
//
//	html := markdown.Render("# Title\n\n- one\n- two")
//
//	r := markdown.New(markdown.Options{Sanitize: true})
//	html = r.Render(text) // tables and links disabled
package markdown
