// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/readerai/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown. Message content is
// written as the model produced it.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a transcript to Markdown.
func (e *MarkdownExporter) Export(t *storage.Transcript) ([]byte, error) {
	msgs, err := validate(t, e.options)
	if err != nil {
		return nil, err
	}
	title := displayTitle(t)

	var sb strings.Builder

	// YAML frontmatter
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(title))
		fmt.Fprintf(&sb, "item: %s\n", escapeYAML(t.ItemID))
		if !t.UpdatedAt.IsZero() {
			fmt.Fprintf(&sb, "updated: %s\n", t.UpdatedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(&sb, "messages: %d\n", len(msgs))
		fmt.Fprintf(&sb, "exported: %s\n", time.Now().Format(time.RFC3339))
		sb.WriteString("generator: readerai\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))

	if e.options.IncludeMetadata {
		if s := strings.TrimSpace(t.Summary); s != "" {
			sb.WriteString("## Summary\n\n")
			sb.WriteString(s)
			sb.WriteString("\n\n")
		}
		if len(t.KeyPoints) > 0 {
			sb.WriteString("## Key Points\n\n")
			for _, p := range t.KeyPoints {
				fmt.Fprintf(&sb, "- %s\n", p)
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("## Conversation\n\n")
	for i, msg := range msgs {
		label := roleLabel(msg.Role) + pageSuffix(msg)
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Time()))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}
		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")
		if i < len(msgs)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from readerai on %s*\n", time.Now().Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

var markdownEscaper = strings.NewReplacer(
	"#", "\\#", "*", "\\*", "_", "\\_", "[", "\\[", "]", "\\]",
)

// escapeMarkdown escapes characters that would break formatting in a
// heading.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

var yamlEscaper = strings.NewReplacer(
	"\\", "\\\\", "\"", "\\\"", "\n", "\\n", "\r", "\\r",
)

// escapeYAML quotes a scalar that contains YAML syntax or line breaks.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		return `"` + yamlEscaper.Replace(s) + `"`
	}
	return s
}
