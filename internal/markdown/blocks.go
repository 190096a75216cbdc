// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"regexp"
	"strconv"
	"strings"
)

// Every block stage emits its element on a single line so that the paragraph
// stage can recognise it by prefix.

// =============================================================================
// TABLES
// =============================================================================

var tableSeparatorRegex = regexp.MustCompile(`^[\s|:\-]+$`)

func isTableRow(line string) bool {
	t := strings.TrimSpace(line)
	return len(t) >= 2 && strings.HasPrefix(t, "|") && strings.HasSuffix(t, "|")
}

func isTableSeparator(line string) bool {
	return tableSeparatorRegex.MatchString(line) && strings.Contains(line, "-")
}

func tableCells(line string) []string {
	t := strings.TrimSpace(line)
	parts := strings.Split(t[1:len(t)-1], "|")
	cells := make([]string, len(parts))
	for i, part := range parts {
		cells[i] = strings.TrimSpace(part)
	}
	return cells
}

func tables(text string) string {
	if !strings.Contains(text, "|") {
		return text
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); {
		if !isTableRow(lines[i]) {
			out = append(out, lines[i])
			i++
			continue
		}
		start := i
		for i < len(lines) && isTableRow(lines[i]) {
			i++
		}
		out = append(out, tableHTML(lines[start:i]))
	}

	return strings.Join(out, "\n")
}

func tableHTML(rows []string) string {
	var b strings.Builder
	b.WriteString("<table>")

	body := rows
	if len(rows) >= 2 && isTableSeparator(rows[1]) {
		b.WriteString("<thead>")
		writeRow(&b, "th", tableCells(rows[0]))
		b.WriteString("</thead>")
		body = rows[2:]
	}

	if len(body) > 0 {
		b.WriteString("<tbody>")
		for _, row := range body {
			writeRow(&b, "td", tableCells(row))
		}
		b.WriteString("</tbody>")
	}

	b.WriteString("</table>")
	return b.String()
}

func writeRow(b *strings.Builder, tag string, cells []string) {
	b.WriteString("<tr>")
	for _, cell := range cells {
		b.WriteString("<" + tag + ">" + cell + "</" + tag + ">")
	}
	b.WriteString("</tr>")
}

// =============================================================================
// LISTS
// =============================================================================

var (
	unorderedItemRegex = regexp.MustCompile(`^\s*[-*+]\s+(.*)$`)
	orderedItemRegex   = regexp.MustCompile(`^\s*\d+\.\s+(.*)$`)
)

type listKind int

const (
	listNone listKind = iota
	listUnordered
	listOrdered
)

func listItem(line string) (listKind, string) {
	if isRule(line) {
		return listNone, ""
	}
	if m := unorderedItemRegex.FindStringSubmatch(line); m != nil {
		return listUnordered, strings.TrimSpace(m[1])
	}
	if m := orderedItemRegex.FindStringSubmatch(line); m != nil {
		return listOrdered, strings.TrimSpace(m[1])
	}
	return listNone, ""
}

// lists groups runs of list items. A change of marker style closes the
// current list and opens a new one.
func lists(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	var (
		kind  listKind
		items []string
	)
	flush := func() {
		if len(items) == 0 {
			return
		}
		tag := "ul"
		if kind == listOrdered {
			tag = "ol"
		}
		out = append(out, "<"+tag+"><li>"+strings.Join(items, "</li><li>")+"</li></"+tag+">")
		items = nil
		kind = listNone
	}

	for _, line := range lines {
		k, content := listItem(line)
		if k == listNone {
			flush()
			out = append(out, line)
			continue
		}
		if k != kind {
			flush()
			kind = k
		}
		items = append(items, content)
	}
	flush()

	return strings.Join(out, "\n")
}

// =============================================================================
// BLOCKQUOTES
// =============================================================================

// quoteContent strips a leading quote marker. When sanitizing, ">" has
// already been escaped, so both spellings are accepted.
func quoteContent(line string) (string, bool) {
	t := strings.TrimLeft(line, " \t")
	var rest string
	switch {
	case strings.HasPrefix(t, "&gt;"):
		rest = t[len("&gt;"):]
	case strings.HasPrefix(t, ">"):
		rest = t[1:]
	default:
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func blockquotes(text string) string {
	if !strings.Contains(text, ">") && !strings.Contains(text, "&gt;") {
		return text
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	var quoted []string

	flush := func() {
		if len(quoted) > 0 {
			out = append(out, "<blockquote>"+strings.Join(quoted, "<br>")+"</blockquote>")
			quoted = nil
		}
	}

	for _, line := range lines {
		if content, ok := quoteContent(line); ok {
			quoted = append(quoted, content)
			continue
		}
		flush()
		out = append(out, line)
	}
	flush()

	return strings.Join(out, "\n")
}

// =============================================================================
// HEADINGS AND RULES
// =============================================================================

var headingRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

func headings(text string) string {
	if !strings.Contains(text, "#") {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		m := headingRegex.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		level := strconv.Itoa(len(m[1]))
		lines[i] = "<h" + level + ">" + strings.TrimSpace(m[2]) + "</h" + level + ">"
	}
	return strings.Join(lines, "\n")
}

// isRule reports a line of three or more of the same '-', '*' or '_',
// optionally separated by spaces ("* * *").
func isRule(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" {
		return false
	}
	c := t[0]
	if c != '-' && c != '*' && c != '_' {
		return false
	}
	n := 0
	for i := 0; i < len(t); i++ {
		switch t[i] {
		case c:
			n++
		case ' ', '\t':
		default:
			return false
		}
	}
	return n >= 3
}

func rules(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if isRule(line) {
			lines[i] = "<hr>"
		}
	}
	return strings.Join(lines, "\n")
}
