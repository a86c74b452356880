// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"slices"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ollapa/internal/storage"
)

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ChatsMsg:
		m.chats = slices.Clone([]storage.ChatRecord(msg))
		storage.SortNewestFirst(m.chats)
		if m.currentID != "" && m.currentIndex() < 0 {
			m.currentID = ""
		}
		m.updateViewport()
		m.viewport.GotoBottom()
		return m, nil

	case ModelsMsg:
		m.models = []string(msg)
		return m, nil

	case APIURLMsg:
		m.apiURL = string(msg)
		return m, nil

	case ErrorMsg:
		m.errMsg = string(msg)
		return m, nil

	case LoadingMsg:
		m.loading = bool(msg)
		return m, nil

	case chatCreatedMsg:
		if msg.err != nil {
			return m, nil
		}
		m.currentID = msg.rec.ID
		m.updateViewport()
		if msg.pending != "" {
			return m.startSend(msg.pending)
		}
		return m, nil

	case chatRemovedMsg:
		if msg.err == nil && msg.id == m.currentID {
			m.currentID = ""
			m.updateViewport()
		}
		return m, nil

	case streamTickMsg:
		if m.stream == nil {
			return m, nil
		}
		if text, ok := m.stream.Flush(); ok {
			m.partial = text
			m.updateViewport()
			m.viewport.GotoBottom()
		}
		return m, streamTickCmd()

	case sendDoneMsg:
		if m.stream != nil && m.stream.chatID == msg.chatID {
			m.stream.Cancel()
			m.stream = nil
			m.partial = ""
			m.updateViewport()
			m.viewport.GotoBottom()
		}
		return m, nil

	case spinner.TickMsg:
		if m.stream == nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.stream != nil {
			m.stream.Cancel()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.stream != nil {
			m.stream.Cancel()
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.NewChat):
		if m.stream != nil {
			return m, nil
		}
		m.currentID = ""
		m.updateViewport()
		return m, nil

	case key.Matches(msg, m.keys.NextChat):
		m.selectOffset(1)
		return m, nil

	case key.Matches(msg, m.keys.PrevChat):
		m.selectOffset(-1)
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if m.stream != nil || m.currentID == "" {
			return m, nil
		}
		return m, m.removeCmd(m.currentID)

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize(m.width, m.height)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}
