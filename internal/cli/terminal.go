// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for ollapa.
//
// Interactive terminals get colors, markdown rendering and live streaming
// redraws; piped output gets plain text.

package cli

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/jeranaias/ollapa/internal/util"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// =============================================================================
// TERMINAL WIDTH DETECTION
// =============================================================================

const (
	// DefaultTerminalWidth is the fallback width when detection fails
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the minimum width we'll use for wrapping
	MinTerminalWidth = 40
)

// GetTerminalWidth returns the current terminal width.
// Returns DefaultTerminalWidth (80) if width cannot be determined.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	return width
}

// WrapText wraps text to fit within maxWidth terminal cells.
// Preserves existing newlines and breaks on word boundaries.
func WrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = GetTerminalWidth()
	}

	var result strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			result.WriteString("\n")
		}
		if util.StringWidth(line) <= maxWidth {
			result.WriteString(line)
			continue
		}

		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}

		currentLine := words[0]
		for _, word := range words[1:] {
			if util.StringWidth(currentLine)+1+util.StringWidth(word) <= maxWidth {
				currentLine += " " + word
			} else {
				result.WriteString(currentLine)
				result.WriteString("\n")
				currentLine = word
			}
		}
		result.WriteString(currentLine)
	}

	return result.String()
}

// =============================================================================
// COLOR OUTPUT CONTROL
// =============================================================================

var (
	colorMu       sync.RWMutex
	colorsEnabled = false
)

// ConfigureColors decides whether to emit colors. mode is the ui.color
// setting: "always", "never" or "auto" (colors only on a TTY, and never when
// NO_COLOR is set).
func ConfigureColors(mode string) {
	var enabled bool
	switch mode {
	case "always":
		enabled = true
	case "never":
		enabled = false
	default:
		_, noColor := os.LookupEnv("NO_COLOR")
		enabled = !noColor && IsStdoutTTY()
	}
	ForceColorsEnabled(enabled)
}

// ColorsEnabled returns true if colored output should be used.
func ColorsEnabled() bool {
	colorMu.RLock()
	defer colorMu.RUnlock()
	return colorsEnabled
}

// ForceColorsEnabled overrides color detection and updates the lipgloss
// profile to match.
func ForceColorsEnabled(enabled bool) {
	colorMu.Lock()
	colorsEnabled = enabled
	colorMu.Unlock()
	lipgloss.SetColorProfile(GetColorProfile())
}

// GetColorProfile returns the appropriate termenv color profile.
// Returns Ascii (no colors) when colors are disabled.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	profile := termenv.ColorProfile()
	if profile == termenv.Ascii {
		// Forced on for a non-terminal; assume a basic palette
		return termenv.ANSI256
	}
	return profile
}
