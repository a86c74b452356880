// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

// Theme holds the styles of the full-screen chat view.
type Theme struct {
	Header          lipgloss.Style
	HeaderDim       lipgloss.Style
	Sidebar         lipgloss.Style
	SidebarItem     lipgloss.Style
	SidebarSelected lipgloss.Style
	UserLabel       lipgloss.Style
	AssistantLabel  lipgloss.Style
	SystemLabel     lipgloss.Style
	Body            lipgloss.Style
	Muted           lipgloss.Style
	Error           lipgloss.Style
	Separator       lipgloss.Style
	Prompt          lipgloss.Style
}

// NewTheme returns the default theme.
func NewTheme() *Theme {
	return &Theme{
		Header:    lipgloss.NewStyle().Foreground(Cyan).Bold(true),
		HeaderDim: lipgloss.NewStyle().Foreground(TextSecondary),
		Sidebar: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(Overlay).
			PaddingRight(1),
		SidebarItem:     lipgloss.NewStyle().Foreground(TextSecondary),
		SidebarSelected: lipgloss.NewStyle().Foreground(TextPrimary).Background(SelectionBg).Bold(true),
		UserLabel:       lipgloss.NewStyle().Foreground(Blue).Bold(true),
		AssistantLabel:  lipgloss.NewStyle().Foreground(Purple).Bold(true),
		SystemLabel:     lipgloss.NewStyle().Foreground(Amber).Bold(true),
		Body:            lipgloss.NewStyle().Foreground(TextPrimary),
		Muted:           lipgloss.NewStyle().Foreground(TextMuted),
		Error:           lipgloss.NewStyle().Foreground(Rose).Bold(true),
		Separator:       lipgloss.NewStyle().Foreground(Overlay),
		Prompt:          lipgloss.NewStyle().Foreground(Cyan).Bold(true),
	}
}

// RoleLabel renders the display name of a message role.
func (t *Theme) RoleLabel(role string) string {
	switch role {
	case "user":
		return t.UserLabel.Render("You")
	case "assistant":
		return t.AssistantLabel.Render("Assistant")
	default:
		return t.SystemLabel.Render(role)
	}
}
