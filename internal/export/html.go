// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jeranaias/readerai/internal/markdown"
	"github.com/jeranaias/readerai/internal/model"
	"github.com/jeranaias/readerai/internal/storage"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports transcripts to a standalone HTML page with embedded
// CSS. Answers and the summary go through the Markdown renderer; questions
// are escaped and kept as written.
type HTMLExporter struct {
	options  *Options
	renderer *markdown.Renderer
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	ro := opts.Render
	ro.Sanitize = true
	return &HTMLExporter{options: opts, renderer: markdown.New(ro)}
}

// Export converts a transcript to HTML.
func (e *HTMLExporter) Export(t *storage.Transcript) ([]byte, error) {
	msgs, err := validate(t, e.options)
	if err != nil {
		return nil, err
	}
	title := html.EscapeString(displayTitle(t))
	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", title)
	sb.WriteString("    <meta name=\"generator\" content=\"readerai\">\n")
	if !t.UpdatedAt.IsZero() {
		fmt.Fprintf(&sb, "    <meta name=\"date\" content=\"%s\">\n", t.UpdatedAt.Format(time.RFC3339))
	}
	sb.WriteString(stylesheet)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", theme)
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		e.writeHeader(&sb, t, title, len(msgs))
	} else {
		fmt.Fprintf(&sb, "        <header class=\"header\"><h1>%s</h1></header>\n", title)
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, msg := range msgs {
		e.writeMessage(&sb, msg)
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	fmt.Fprintf(&sb, "            <p>Exported from <strong>readerai</strong> on %s</p>\n",
		time.Now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString(script)
	sb.WriteString("</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING
// =============================================================================

func (e *HTMLExporter) writeHeader(sb *strings.Builder, t *storage.Transcript, title string, count int) {
	sb.WriteString("        <header class=\"header\">\n")
	fmt.Fprintf(sb, "            <h1>%s</h1>\n", title)
	sb.WriteString("            <div class=\"metadata\">\n")
	if !t.UpdatedAt.IsZero() {
		fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Updated:</strong> %s</span>\n", formatTimestamp(t.UpdatedAt))
	}
	fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", count)
	sb.WriteString("                <button class=\"theme-toggle\" onclick=\"toggleTheme()\" title=\"Toggle theme\">Theme</button>\n")
	sb.WriteString("            </div>\n")

	if s := strings.TrimSpace(t.Summary); s != "" {
		sb.WriteString("            <section class=\"summary\">\n                <h2>Summary</h2>\n")
		sb.WriteString(e.renderer.Render(s))
		sb.WriteString("\n            </section>\n")
	}
	if len(t.KeyPoints) > 0 {
		sb.WriteString("            <section class=\"key-points\">\n                <h2>Key Points</h2>\n                <ul>")
		for _, p := range t.KeyPoints {
			fmt.Fprintf(sb, "<li>%s</li>", html.EscapeString(p))
		}
		sb.WriteString("</ul>\n            </section>\n")
	}
	sb.WriteString("        </header>\n")
}

func (e *HTMLExporter) writeMessage(sb *strings.Builder, msg model.ChatMessage) {
	role := string(msg.Role)
	if role == "" {
		role = "unknown"
	}
	fmt.Fprintf(sb, "            <div class=\"message %s-message\">\n", html.EscapeString(role))
	sb.WriteString("                <div class=\"message-header\">\n")
	fmt.Fprintf(sb, "                    <span class=\"role-label\">%s</span>\n",
		html.EscapeString(roleLabel(msg.Role)+pageSuffix(msg)))
	if e.options.IncludeTimestamps {
		fmt.Fprintf(sb, "                    <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.Time()))
	}
	sb.WriteString("                </div>\n")
	sb.WriteString("                <div class=\"message-content\">\n")
	sb.WriteString(e.formatContent(msg))
	sb.WriteString("\n                </div>\n")
	sb.WriteString("            </div>\n")
}

// formatContent renders answers as Markdown. Other turns are escaped, with
// line breaks kept.
func (e *HTMLExporter) formatContent(msg model.ChatMessage) string {
	content := strings.TrimSpace(msg.Content)
	if msg.Role == model.RoleAssistant {
		return e.renderer.Render(content)
	}
	escaped := html.EscapeString(content)
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>"
}

// =============================================================================
// EMBEDDED ASSETS
// =============================================================================

const stylesheet = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
            --font-mono: "SF Mono", Menlo, Consolas, "Fira Code", monospace;
        }

        .dark-theme {
            --bg-primary: #1a1b26;
            --bg-secondary: #24283b;
            --bg-tertiary: #414868;
            --text-primary: #c0caf5;
            --text-muted: #787c99;
            --border-color: #414868;
            --code-bg: #16161e;
            --accent-blue: #7aa2f7;
            --accent-green: #9ece6a;
            --accent-purple: #bb9af7;
        }

        .light-theme {
            --bg-primary: #ffffff;
            --bg-secondary: #f7f8fa;
            --bg-tertiary: #e1e4e8;
            --text-primary: #24292e;
            --text-muted: #6a737d;
            --border-color: #d0d7de;
            --code-bg: #f6f8fa;
            --accent-blue: #0366d6;
            --accent-green: #22863a;
            --accent-purple: #6f42c1;
        }

        body {
            font-family: var(--font-sans);
            line-height: 1.6;
            color: var(--text-primary);
            background: var(--bg-primary);
            padding: 20px;
        }

        .container {
            max-width: 900px;
            margin: 0 auto;
            background: var(--bg-secondary);
            border-radius: 12px;
            overflow: hidden;
        }

        .header { padding: 32px; background: var(--bg-tertiary); }
        .header h1 { font-size: 28px; margin-bottom: 12px; }
        .header h2 { font-size: 18px; margin: 16px 0 8px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 14px; align-items: center; }
        .theme-toggle { margin-left: auto; padding: 4px 10px; cursor: pointer; }
        .key-points ul { padding-left: 24px; }

        .conversation { padding: 24px 32px; }
        .message { margin-bottom: 24px; padding: 20px; border-radius: 8px; border-left: 4px solid transparent; }
        .user-message { border-left-color: var(--accent-blue); }
        .assistant-message { border-left-color: var(--accent-green); }
        .system-message { border-left-color: var(--accent-purple); background: var(--bg-tertiary); }
        .message-header { display: flex; justify-content: space-between; margin-bottom: 12px; font-size: 14px; }
        .role-label { font-weight: 600; }
        .timestamp { color: var(--text-muted); font-family: var(--font-mono); font-size: 13px; }

        .message-content p, .message-content ul, .message-content ol,
        .message-content blockquote, .message-content table { margin-bottom: 12px; }
        .message-content ul, .message-content ol { padding-left: 24px; }
        .message-content blockquote { border-left: 3px solid var(--border-color); padding-left: 12px; color: var(--text-muted); }
        .message-content table { border-collapse: collapse; }
        .message-content th, .message-content td { border: 1px solid var(--border-color); padding: 4px 10px; }
        .message-content hr { border: none; border-top: 1px solid var(--border-color); margin: 16px 0; }

        .code-block { margin: 16px 0; border: 1px solid var(--border-color); border-radius: 8px; overflow: hidden; background: var(--code-bg); }
        .code-header { display: flex; justify-content: space-between; padding: 6px 12px; background: var(--bg-tertiary); font-size: 12px; }
        .code-copy { cursor: pointer; font-size: 12px; }
        .code-block pre { padding: 16px; overflow-x: auto; }
        code { font-family: var(--font-mono); font-size: 14px; }
        .inline-code { padding: 2px 6px; background: var(--code-bg); border-radius: 4px; color: var(--accent-purple); }

        .footer { padding: 20px 32px; text-align: center; font-size: 14px; color: var(--text-muted); }

        @media print {
            .theme-toggle, .code-copy { display: none; }
            .message { page-break-inside: avoid; }
        }
    </style>
`

const script = `    <script>
        function toggleTheme() {
            const next = document.body.classList.contains('dark-theme') ? 'light' : 'dark';
            document.body.classList.remove('dark-theme', 'light-theme');
            document.body.classList.add(next + '-theme');
            localStorage.setItem('theme', next);
        }
        document.addEventListener('DOMContentLoaded', function() {
            const saved = localStorage.getItem('theme');
            if (saved) {
                document.body.classList.remove('dark-theme', 'light-theme');
                document.body.classList.add(saved + '-theme');
            }
            document.querySelectorAll('.code-copy').forEach(function(btn) {
                btn.addEventListener('click', function() {
                    const code = btn.closest('.code-block').querySelector('code');
                    navigator.clipboard.writeText(code.innerText);
                });
            });
        });
    </script>
`
