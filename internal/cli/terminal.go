// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - what the output can show: TTY, width and colors.
package cli

import (
	"os"
	"strconv"
	"sync"

	"github.com/charmbracelet/glamour/styles"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// IsTTY reports whether stdin is a terminal.
func IsTTY() bool { return isTerminal(os.Stdin) }

// IsStdoutTTY reports whether stdout is a terminal.
func IsStdoutTTY() bool { return isTerminal(os.Stdout) }

const (
	DefaultTerminalWidth = 80
	MinTerminalWidth     = 40
)

// GetTerminalWidth returns the stdout width. Piped output uses $COLUMNS
// when set, then DefaultTerminalWidth.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width = DefaultTerminalWidth
		if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
			width = n
		}
	}
	return max(width, MinTerminalWidth)
}

// =============================================================================
// COLORS
// =============================================================================

var colorsEnabled = sync.OnceValue(func() bool {
	switch {
	case os.Getenv("NO_COLOR") != "":
		return false
	case os.Getenv("FORCE_COLOR") != "":
		return true
	default:
		return IsStdoutTTY()
	}
})

// ColorsEnabled reports whether styled output should be used
// (https://no-color.org/).
func ColorsEnabled() bool { return colorsEnabled() }

// GetColorProfile returns the termenv profile for lipgloss styles.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// answerStyle picks the glamour style for rendered answers: plain when
// colors are off, otherwise matched to the terminal background.
func answerStyle() string {
	switch {
	case !ColorsEnabled():
		return styles.NoTTYStyle
	case termenv.HasDarkBackground():
		return styles.DarkStyle
	default:
		return styles.LightStyle
	}
}

// TTYRequiredError is returned when an interactive command runs without a
// terminal.
type TTYRequiredError struct {
	Operation string
}

func (e *TTYRequiredError) Error() string {
	return "stdin is not a terminal; cannot " + e.Operation + " interactively"
}

// RequiresTTY fails unless stdin is a terminal.
func RequiresTTY(operation string) error {
	if !IsTTY() {
		return &TTYRequiredError{Operation: operation}
	}
	return nil
}
