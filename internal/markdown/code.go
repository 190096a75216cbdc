// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// =============================================================================
// FENCED CODE BLOCKS
// =============================================================================

const fence = "```"

// fencedCode replaces ``` runs with held code blocks. An opening fence with
// no closing fence runs to the end of the text, which is what a stream looks
// like while a block is still arriving.
func (p *pass) fencedCode(text string) string {
	if !strings.Contains(text, fence) {
		return text
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, fence) {
			out = append(out, lines[i])
			continue
		}

		lang := fenceLanguage(strings.TrimPrefix(trimmed, fence))

		end := i + 1
		for end < len(lines) && strings.TrimSpace(lines[end]) != fence {
			end++
		}
		body := strings.TrimSpace(strings.Join(lines[i+1:end], "\n"))

		out = append(out, p.hold(kindBlock, codeBlockHTML(lang, body)))
		i = end
	}

	return strings.Join(out, "\n")
}

// fenceLanguage takes the first word of the info string. Backticks left
// over from a longer fence are dropped.
func fenceLanguage(info string) string {
	info = strings.Trim(info, "` \t")
	if fields := strings.Fields(info); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

var langClassRegex = regexp.MustCompile(`[^a-zA-Z0-9_+#.-]`)

func codeBlockHTML(lang, body string) string {
	class := langClassRegex.ReplaceAllString(lang, "")
	if class == "" {
		class = "plaintext"
	}
	return fmt.Sprintf(
		`<div class="code-block"><div class="code-header"><span class="code-lang">%s</span>`+
			`<button class="code-copy" type="button" aria-label="Copy code">Copy</button></div>`+
			`<pre><code class="language-%s">%s</code></pre></div>`,
		languageLabel(lang), class, body)
}

// languageLabel maps a fence tag to a display name using the chroma lexer
// registry ("js" becomes "JavaScript"). Unknown tags are shown as written.
func languageLabel(lang string) string {
	if lang == "" {
		return "text"
	}
	if lexer := lexers.Get(lang); lexer != nil {
		if name := lexer.Config().Name; name != "" {
			return escapeHTML(name)
		}
	}
	// The tag comes from already escaped text when sanitizing is on; only
	// the characters that survive langClassRegex are safe either way.
	return langClassRegex.ReplaceAllString(lang, "")
}

// =============================================================================
// INLINE CODE
// =============================================================================

var inlineCodeRegex = regexp.MustCompile("`([^`\n]+)`")

func (p *pass) inlineCode(text string) string {
	if !strings.Contains(text, "`") {
		return text
	}
	return inlineCodeRegex.ReplaceAllStringFunc(text, func(m string) string {
		code := m[1 : len(m)-1]
		return p.hold(kindInline, `<code class="inline-code">`+code+`</code>`)
	})
}
