// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared styles for ollapa output.
//
// Colors follow ConfigureColors: they are dropped for piped output, when
// NO_COLOR is set, or when ui.color is "never".

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/ollapa/internal/ui/styles"
)

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Cyan)

	// LabelStyle is used for field labels (left-aligned prompts)
	LabelStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary).
			Width(14)

	// SuccessStyle is used for success messages and OK statuses
	SuccessStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald).
			Bold(true)

	// ErrorStyle is used for error messages and failures
	ErrorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	// WarningStyle is used for warnings and cautions
	WarningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	// SeparatorStyle is used for visual separators
	SeparatorStyle = lipgloss.NewStyle().
			Foreground(styles.Overlay)

	// PromptStyle is the REPL prompt
	PromptStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	// UserStyle labels the user's messages
	UserStyle = lipgloss.NewStyle().
			Foreground(styles.Blue).
			Bold(true)

	// AssistantStyle labels the model's messages
	AssistantStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)
)

// =============================================================================
// HELPER FUNCTIONS FOR COMMON PATTERNS
// =============================================================================

// RenderConditional renders text with style if colors are enabled,
// otherwise returns the text unmodified.
func RenderConditional(style lipgloss.Style, text string) string {
	if !ColorsEnabled() {
		return text
	}
	return style.Render(text)
}

// RenderSeparator renders a horizontal separator line of the given width.
func RenderSeparator(width int) string {
	if width <= 0 {
		width = 60
	}
	return RenderConditional(SeparatorStyle, strings.Repeat("-", width))
}

// RenderStatus renders a status indicator with appropriate color.
func RenderStatus(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success":
		return RenderConditional(SuccessStyle, "[OK]")
	case "error", "fail", "failed":
		return RenderConditional(ErrorStyle, "[FAIL]")
	case "warning", "warn":
		return RenderConditional(WarningStyle, "[WARN]")
	default:
		return RenderConditional(DimStyle, "["+strings.ToUpper(status)+"]")
	}
}

// RenderLabel renders a label padded to a fixed column.
func RenderLabel(label string) string {
	if !ColorsEnabled() {
		return label + strings.Repeat(" ", max(0, 14-len(label)))
	}
	return LabelStyle.Render(label)
}

// RoleLabel returns the display label for a message role.
func RoleLabel(role string) string {
	switch role {
	case "user":
		return RenderConditional(UserStyle, "You")
	case "assistant":
		return RenderConditional(AssistantStyle, "Assistant")
	default:
		return RenderConditional(DimStyle, role)
	}
}
