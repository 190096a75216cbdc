// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jeranaias/readerai/internal/markdown"
	"github.com/jeranaias/readerai/internal/model"
	"github.com/jeranaias/readerai/internal/storage"
	"github.com/jeranaias/readerai/internal/util"
)

var (
	// ErrNilTranscript is returned when there is nothing to export.
	ErrNilTranscript = errors.New("transcript is nil")

	// ErrNoMessages is returned for transcripts without any visible message.
	ErrNoMessages = errors.New("transcript has no messages")

	// ErrUnknownFormat is returned by ParseFormat and ForFormat.
	ErrUnknownFormat = errors.New("unsupported export format")
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a transcript into one output format.
type Exporter interface {
	// Export converts a transcript to the target format and returns the content.
	Export(t *storage.Transcript) ([]byte, error)

	// FileExtension returns the file extension, including the dot.
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// Format names an export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name or a common alias ("md", "htm").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ForFormat returns the exporter for f.
func ForFormat(f Format, opts *Options) (Exporter, error) {
	switch f {
	case FormatMarkdown:
		return NewMarkdownExporter(opts), nil
	case FormatHTML:
		return NewHTMLExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(opts), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is the directory where files will be saved.
	OutputDir string

	// OpenAfterExport opens the file in the default application.
	OpenAfterExport bool

	// IncludeMetadata adds a header with the title, dates, summary and key
	// points.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message times.
	IncludeTimestamps bool

	// IncludeSystem keeps system prompts in the output.
	IncludeSystem bool

	// Theme for HTML export ("light" or "dark").
	Theme string

	// Render configures the Markdown renderer used by the HTML exporter.
	// Sanitizing is always enabled for exports.
	Render markdown.Options

	Logger *slog.Logger
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Theme:             "dark",
		Render:            markdown.DefaultOptions(),
	}
}

func (o *Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// visibleMessages returns the messages an export shows.
func (o *Options) visibleMessages(t *storage.Transcript) []model.ChatMessage {
	if o.IncludeSystem {
		return t.Messages
	}
	out := make([]model.ChatMessage, 0, len(t.Messages))
	for _, m := range t.Messages {
		if !m.IsSystem() {
			out = append(out, m)
		}
	}
	return out
}

// validate checks t and returns its visible messages.
func validate(t *storage.Transcript, opts *Options) ([]model.ChatMessage, error) {
	if t == nil {
		return nil, ErrNilTranscript
	}
	msgs := opts.visibleMessages(t)
	if len(msgs) == 0 {
		return nil, ErrNoMessages
	}
	return msgs, nil
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile exports a transcript with exporter and writes it atomically
// into opts.OutputDir. It returns the output path.
func ExportToFile(t *storage.Transcript, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("transcript_%s_%s%s",
		sanitizeFilename(displayTitle(t)),
		time.Now().Format("20060102_150405"),
		exporter.FileExtension(),
	)
	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	outputPath := filepath.Join(dir, filename)
	if err := util.AtomicWriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	opts.logger().Info("transcript exported", "item_id", t.ItemID, "path", outputPath, "bytes", len(content))

	if opts.OpenAfterExport {
		if err := openFile(outputPath); err != nil {
			// The file exists either way.
			opts.logger().Warn("could not open exported file", "path", outputPath, "error", err)
		}
	}
	return outputPath, nil
}

// ExportFormat exports t in the named format.
func ExportFormat(t *storage.Transcript, format string, opts *Options) (string, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return "", err
	}
	exporter, err := ForFormat(f, opts)
	if err != nil {
		return "", err
	}
	return ExportToFile(t, exporter, opts)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func displayTitle(t *storage.Transcript) string {
	if strings.TrimSpace(t.Title) != "" {
		return t.Title
	}
	return t.ItemID
}

var filenameReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-", "\"", "-",
	"<", "-", ">", "-", "|", "-",
	" ", "_", "\t", "_", "\n", "_", "\r", "_",
)

// sanitizeFilename replaces characters that are invalid in filenames on
// Windows or Unix and limits the length to 50 runes.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(strings.TrimSpace(s), 50)
	s = filenameReplacer.Replace(s)
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return '-'
		}
		return r
	}, s)
	if s == "" {
		return "transcript"
	}
	return s
}

// openFile opens a file in the default application for the OS.
func openFile(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", `""`, path)
	case "darwin":
		cmd = exec.Command("open", path)
	case "linux":
		cmd = exec.Command("xdg-open", path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}

// roleLabel returns the heading shown above a message.
func roleLabel(role model.Role) string {
	switch role {
	case model.RoleUser:
		return "Question"
	case model.RoleAssistant:
		return "Answer"
	case model.RoleSystem:
		return "System"
	case "":
		return "Unknown"
	}
	return role.DisplayName()
}

func pageSuffix(m model.ChatMessage) string {
	if m.PageNumber == nil {
		return ""
	}
	return fmt.Sprintf(" (page %d)", *m.PageNumber)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
