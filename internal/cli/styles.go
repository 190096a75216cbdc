// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - shared lipgloss styles for all commands.
//
// Colors are disabled for non-TTY output and when NO_COLOR is set;
// FORCE_COLOR turns them back on.
package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")). // Cyan
			MarginBottom(1)

	// SectionStyle is used for section headers within commands.
	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			MarginTop(1)

	// LabelStyle is used for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(20)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	// DimStyle is used for hints and secondary information.
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// PromptStyle is the chat prompt. liner measures the prompt in runes, so
	// it is only styled through ColorsEnabled checks at the call site.
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	// UserStyle and AssistantStyle label conversation turns.
	UserStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).
			Bold(true)

	AssistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)
)

// =============================================================================
// HELPERS
// =============================================================================

// RenderSeparator renders a horizontal rule, 70 wide by default.
func RenderSeparator(width ...int) string {
	w := 70
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return SeparatorStyle.Render(strings.Repeat("─", w))
}

// RenderSeparatorAdaptive renders a rule that fits the terminal.
func RenderSeparatorAdaptive() string {
	width := GetTerminalWidth()
	if width > 4 {
		width -= 4
	}
	if width > 80 {
		width = 80
	}
	return RenderSeparator(width)
}

// RenderStatus renders a bracketed status tag.
func RenderStatus(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success", "pass":
		return SuccessStyle.Render("[OK]")
	case "error", "fail", "failed":
		return ErrorStyle.Render("[FAIL]")
	case "warning", "warn", "pending":
		return WarningStyle.Render("[WARN]")
	default:
		return DimStyle.Render("[" + strings.ToUpper(status) + "]")
	}
}

// RenderLabel renders a label padded to the label width.
func RenderLabel(label string, width ...int) string {
	if len(width) > 0 && width[0] > 0 {
		return LabelStyle.Width(width[0]).Render(label)
	}
	return LabelStyle.Render(label)
}
