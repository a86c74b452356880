// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/ollapa/internal/storage"
	"github.com/jeranaias/ollapa/internal/util"
)

const (
	sidebarMaxWidth = 30
	minMainWidth    = 20
)

// =============================================================================
// LAYOUT
// =============================================================================

func (m Model) sidebarWidth() int {
	w := m.width / 3
	if w > sidebarMaxWidth {
		w = sidebarMaxWidth
	}
	if m.width-w < minMainWidth {
		return 0
	}
	return w
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.help.Width = width

	mainWidth := width - m.sidebarWidth()
	if m.sidebarWidth() > 0 {
		mainWidth -= 2 // border and padding
	}
	// header, separator, input, status and help lines
	chrome := 5
	if m.help.ShowAll {
		chrome += 3
	}
	vpHeight := max(1, height-chrome)

	if !m.ready {
		m.viewport = viewport.New(mainWidth, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = mainWidth
		m.viewport.Height = vpHeight
	}
	m.input.Width = max(10, width-4)
	m.updateViewport()
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m *Model) updateViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript(m.viewport.Width))
}

func (m *Model) renderTranscript(width int) string {
	rec, ok := m.current()
	if !ok {
		return m.theme.Muted.Render("Type a message to start a new chat.")
	}

	var sb strings.Builder
	for _, msg := range rec.Messages {
		sb.WriteString(m.theme.RoleLabel(msg.Role))
		sb.WriteString("\n")
		sb.WriteString(m.renderContent(msg.Role, msg.Content, width))
		sb.WriteString("\n\n")
	}
	if m.stream != nil && m.stream.chatID == rec.ID {
		sb.WriteString(m.theme.RoleLabel(storage.RoleAssistant))
		sb.WriteString(" ")
		sb.WriteString(m.spinner.View())
		sb.WriteString("\n")
		sb.WriteString(lipgloss.NewStyle().Width(width).Render(m.partial))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderContent renders finished messages. Assistant replies go through
// glamour when enabled; everything else is wrapped plain text.
func (m *Model) renderContent(role, content string, width int) string {
	if role == storage.RoleAssistant && m.opts.RenderMarkdown {
		if r := m.renderer(width); r != nil {
			if out, err := r.Render(content); err == nil {
				return strings.Trim(out, "\n")
			}
		}
	}
	return m.theme.Body.Width(width).Render(content)
}

// renderer returns a glamour renderer for width, rebuilding it on resize.
func (m *Model) renderer(width int) *glamour.TermRenderer {
	if m.markdown != nil && m.mdWidth == width {
		return m.markdown
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(minMainWidth, width-2)),
	)
	if err != nil {
		return nil
	}
	m.markdown, m.mdWidth = r, width
	return r
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	main := m.viewport.View()
	if sw := m.sidebarWidth(); sw > 0 {
		main = lipgloss.JoinHorizontal(lipgloss.Top,
			m.theme.Sidebar.Width(sw).Height(m.viewport.Height).Render(m.renderSidebar(sw-1)),
			" ",
			main,
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		main,
		m.theme.Separator.Render(strings.Repeat("─", max(0, m.width))),
		m.input.View(),
		m.renderStatus(),
		m.help.View(m.keys),
	)
}

func (m Model) renderHeader() string {
	title := "ollapa"
	if rec, ok := m.current(); ok {
		title = rec.Title
	}
	model := m.chooseModel()
	if model == "" {
		model = "no model"
	}
	right := m.theme.HeaderDim.Render(fmt.Sprintf("%s  %s", model, m.apiURL))
	left := m.theme.Header.Render(util.TruncateWidth(title, max(10, m.width-lipgloss.Width(right)-2)))
	gap := max(1, m.width-lipgloss.Width(left)-lipgloss.Width(right))
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderSidebar(width int) string {
	if len(m.chats) == 0 {
		if m.loading {
			return m.theme.Muted.Render("Loading...")
		}
		return m.theme.Muted.Render("No chats")
	}

	var lines []string
	for _, rec := range m.chats {
		label := util.PadWidth(util.TruncateWidth(rec.Title, width), width)
		if rec.ID == m.currentID {
			lines = append(lines, m.theme.SidebarSelected.Render(label))
		} else {
			lines = append(lines, m.theme.SidebarItem.Render(label))
		}
		if len(lines) >= m.viewport.Height {
			break
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderStatus() string {
	switch {
	case m.errMsg != "":
		return m.theme.Error.Render(util.TruncateWidth(m.errMsg, max(10, m.width)))
	case m.notice != "":
		return m.theme.Muted.Render(m.notice)
	case m.stream != nil:
		return m.theme.Muted.Render("Generating... (Esc to stop)")
	default:
		return m.theme.Muted.Render(fmt.Sprintf("%d chats", len(m.chats)))
	}
}
