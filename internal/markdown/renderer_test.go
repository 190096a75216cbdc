// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SCENARIOS
// =============================================================================

func TestRender_Table(t *testing.T) {
	got := Render("|A|B|\n|-|-|\n|1|2|")

	assert.Equal(t,
		"<table><thead><tr><th>A</th><th>B</th></tr></thead>"+
			"<tbody><tr><td>1</td><td>2</td></tr></tbody></table>",
		got)
}

func TestRender_TableWithoutSeparator(t *testing.T) {
	got := Render("| a | b |\n| c | d |")

	assert.NotContains(t, got, "<thead>")
	assert.Equal(t, 2, strings.Count(got, "<tr>"))
	assert.Contains(t, got, "<td>a</td><td>b</td>")
}

func TestRender_TablesDisabled(t *testing.T) {
	r := New(Options{Sanitize: true, Links: true})
	got := r.Render("|A|B|\n|-|-|")

	assert.NotContains(t, got, "<table>")
	assert.Contains(t, got, "|A|B|")
}

var codeBodyRegex = regexp.MustCompile(`(?s)<code class="language-[^"]*">(.*?)</code>`)

func TestRender_CodeFence(t *testing.T) {
	got := Render("```js\nconsole.log(1)\n```")

	m := codeBodyRegex.FindStringSubmatch(got)
	require.NotNil(t, m, "no code body in %q", got)
	assert.Equal(t, "console.log(1)", m[1])
	assert.Contains(t, got, `class="language-js"`)
	assert.Contains(t, got, `<span class="code-lang">JavaScript</span>`)
	assert.Contains(t, got, `class="code-copy"`)
	assert.NotContains(t, got, "<p>")
}

func TestRender_CodeFenceKeepsContentLiteral(t *testing.T) {
	got := Render("```\n# not a heading\n- not a list\n**x** <b>\n```")

	m := codeBodyRegex.FindStringSubmatch(got)
	require.NotNil(t, m)
	assert.Equal(t, "# not a heading\n- not a list\n**x** &lt;b&gt;", m[1])
	assert.Contains(t, got, `<span class="code-lang">text</span>`)
	assert.NotContains(t, got, "<h1>")
	assert.NotContains(t, got, "<strong>")
}

func TestRender_UnknownLanguageTag(t *testing.T) {
	got := Render("```zzlang\nx\n```")
	assert.Contains(t, got, `<span class="code-lang">zzlang</span>`)
}

func TestRender_UnterminatedFence(t *testing.T) {
	got := Render("Here:\n```python\nprint('hi')")

	assert.Contains(t, got, "<p>Here:</p>")
	m := codeBodyRegex.FindStringSubmatch(got)
	require.NotNil(t, m)
	assert.Equal(t, "print(&#39;hi&#39;)", m[1])
}

func TestRender_InlineCode(t *testing.T) {
	got := Render("use `a*b*c` here")
	assert.Equal(t, `<p>use <code class="inline-code">a*b*c</code> here</p>`, got)
}

// =============================================================================
// BLOCK STAGES
// =============================================================================

func TestRender_Headings(t *testing.T) {
	for level := 1; level <= 6; level++ {
		prefix := strings.Repeat("#", level)
		got := Render(prefix + " Title")
		tag := "h" + string(rune('0'+level))
		assert.Equal(t, "<"+tag+">Title</"+tag+">", got)
	}

	assert.Equal(t, "<p>####### seven</p>", Render("####### seven"))
	assert.Equal(t, "<p>#nospace</p>", Render("#nospace"))
}

func TestRender_Lists(t *testing.T) {
	got := Render("- one\n* two\n+ three")
	assert.Equal(t, "<ul><li>one</li><li>two</li><li>three</li></ul>", got)

	got = Render("1. first\n2. second")
	assert.Equal(t, "<ol><li>first</li><li>second</li></ol>", got)
}

func TestRender_MixedListsAreSeparate(t *testing.T) {
	got := Render("- a\n- b\n1. c\n2. d")
	assert.Equal(t, "<ul><li>a</li><li>b</li></ul>\n<ol><li>c</li><li>d</li></ol>", got)
}

func TestRender_Blockquote(t *testing.T) {
	got := Render("> first\n> second\nafter")
	assert.Equal(t, "<blockquote>first<br>second</blockquote>\n<p>after</p>", got)
}

func TestRender_HorizontalRule(t *testing.T) {
	for _, in := range []string{"---", "***", "___", "-----"} {
		assert.Equal(t, "<hr>", Render(in), in)
	}
	assert.Equal(t, "<p>-*-</p>", Render("-*-"))
}

func TestRender_SpacedRuleIsNotAList(t *testing.T) {
	for _, in := range []string{"* * *", "- - -", " _ _ _ "} {
		assert.Equal(t, "<hr>", Render(in), in)
	}
	assert.Equal(t, "<ul><li>* two</li></ul>", Render("- * two"))
}

func TestRender_Paragraphs(t *testing.T) {
	got := Render("line one\nline two\n\nsecond para")
	assert.Equal(t, "<p>line one<br>line two</p>\n<p>second para</p>", got)
}

func TestRender_HeadingFollowedByText(t *testing.T) {
	got := Render("## Summary\nThe text.")
	assert.Equal(t, "<h2>Summary</h2>\n<p>The text.</p>", got)
}

// =============================================================================
// INLINE STAGES
// =============================================================================

func TestRender_InlineFormatting(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"**bold**", "<p><strong>bold</strong></p>"},
		{"__bold__", "<p><strong>bold</strong></p>"},
		{"*it*", "<p><em>it</em></p>"},
		{"_it_", "<p><em>it</em></p>"},
		{"~~gone~~", "<p><del>gone</del></p>"},
		{"**a** and *b*", "<p><strong>a</strong> and <em>b</em></p>"},
		{"snake_case_name", "<p>snake_case_name</p>"},
		{"2 * 3 * 4", "<p>2 * 3 * 4</p>"},
		{"***bold italic***", "<p><strong><em>bold italic</em></strong></p>"},
		{"*a **b** c*", "<p><em>a <strong>b</strong> c</em></p>"},
		{"**a *b* c**", "<p><strong>a <em>b</em> c</strong></p>"},
		{"**x *y** z*", "<p><strong>x *y</strong> z*</p>"},
		{"_a __b__ c_", "<p><em>a <strong>b</strong> c</em></p>"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, Render(tc.in))
		})
	}
}

func TestRender_FormattingInsideBlocks(t *testing.T) {
	got := Render("- **key** point\n- other")
	assert.Equal(t, "<ul><li><strong>key</strong> point</li><li>other</li></ul>", got)
}

func TestRender_Links(t *testing.T) {
	got := Render("see [docs](https://example.com/a?b=1&c=2)")
	assert.Equal(t,
		`<p>see <a href="https://example.com/a?b=1&amp;c=2" target="_blank" rel="noopener noreferrer">docs</a></p>`,
		got)
}

func TestRender_UnsafeLinkStaysText(t *testing.T) {
	got := Render("[click](javascript:alert(1))")
	assert.NotContains(t, got, "<a ")
	assert.Contains(t, got, "[click]")
}

func TestRender_Autolink(t *testing.T) {
	got := Render("Visit https://example.com/path.")
	assert.Equal(t,
		`<p>Visit <a href="https://example.com/path" target="_blank" rel="noopener noreferrer">https://example.com/path</a>.</p>`,
		got)
}

func TestRender_AutolinkStopsAtQuote(t *testing.T) {
	got := Render(`"https://example.com"`)
	assert.Contains(t, got, `href="https://example.com"`)
	assert.Contains(t, got, "&quot;</p>")
}

func TestRender_LinksDisabled(t *testing.T) {
	r := New(Options{Sanitize: true, Tables: true})
	got := r.Render("[x](https://a.b) https://c.d")
	assert.NotContains(t, got, "<a ")
}

// =============================================================================
// SANITIZING
// =============================================================================

func TestRender_EscapesHTML(t *testing.T) {
	got := Render(`<script>alert("x" & 'y')</script>`)
	assert.Equal(t, "<p>&lt;script&gt;alert(&quot;x&quot; &amp; &#39;y&#39;)&lt;/script&gt;</p>", got)
}

func TestRender_SanitizeDisabled(t *testing.T) {
	r := New(Options{Tables: true, Links: true})
	got := r.Render("<span>raw</span> **b**")
	assert.Equal(t, "<p><span>raw</span> <strong>b</strong></p>", got)
}

func TestRender_NULInInputIsNotAPlaceholder(t *testing.T) {
	got := Render("a\x00B0\x00b `c`")
	assert.NotContains(t, got, "\x00")
	assert.Contains(t, got, `<code class="inline-code">c</code>`)
}

func TestRender_Empty(t *testing.T) {
	assert.Equal(t, "", Render(""))
	assert.Equal(t, "", Render(" \n\t\n"))
}

// =============================================================================
// PROPERTIES
// =============================================================================

const sampleAnswer = "# Résumé\n\n" +
	"The passage argues **three** things:\n\n" +
	"1. Rates *fell*\n2. Costs ~~rose~~ held\n3. See [report](https://example.org/r)\n\n" +
	"| Year | Value |\n|:---|---:|\n| 2023 | 4 |\n| 2024 | 5 |\n\n" +
	"> Quoted line\n> second\n\n" +
	"```go\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n```\n\n" +
	"---\n\n- point with `code`\n- https://example.com/x\n"

func TestRender_Idempotent(t *testing.T) {
	r := New(DefaultOptions())
	first := r.Render(sampleAnswer)
	second := r.Render(sampleAnswer)
	assert.Equal(t, first, second)
}

func TestRender_StreamingPrefixes(t *testing.T) {
	whole := Render(sampleAnswer)

	var last string
	for i := 0; i <= len(sampleAnswer); i++ {
		prefix := sampleAnswer[:i]
		require.NotPanics(t, func() { last = Render(prefix) }, "prefix %d", i)
	}
	assert.Equal(t, whole, last)
}

func FuzzRender(f *testing.F) {
	f.Add(sampleAnswer)
	f.Add("|A|B|\n|-|-|\n|1|2|")
	f.Add("```js\nconsole.log(1)\n```")
	f.Add("**__*_~~[x](y)~~_*__**")

	f.Fuzz(func(t *testing.T, in string) {
		out := Render(in)
		if out != Render(in) {
			t.Fatalf("render not deterministic for %q", in)
		}
		if strings.Contains(out, "\x00") {
			t.Fatalf("placeholder leaked for %q: %q", in, out)
		}
	})
}
