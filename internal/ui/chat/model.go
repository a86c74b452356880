// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/ollapa/internal/state"
	"github.com/jeranaias/ollapa/internal/storage"
	"github.com/jeranaias/ollapa/internal/ui/styles"
	"github.com/jeranaias/ollapa/internal/util"
)

// Options configures a new Model.
type Options struct {
	// Model is used for new chats and overrides a chat's own model.
	Model string

	// DefaultModel is used for new chats when Model is empty.
	DefaultModel string

	// ChatID selects the chat shown first.
	ChatID string

	// RenderMarkdown renders assistant replies with glamour.
	RenderMarkdown bool
}

// Model is the full-screen chat view.
type Model struct {
	state *state.ChatState
	theme *styles.Theme
	keys  KeyMap
	opts  Options

	help     help.Model
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width, height int
	ready         bool

	chats    []storage.ChatRecord
	currentID string
	models   []string
	apiURL   string
	errMsg   string
	notice   string
	loading  bool

	stream  *streamBuffer
	partial string

	markdown *glamour.TermRenderer
	mdWidth  int
}

// New creates the view over st.
func New(st *state.ChatState, opts Options) Model {
	input := textinput.New()
	input.Placeholder = "Message (or /help)"
	input.Prompt = "> "
	input.CharLimit = 0
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	theme := styles.NewTheme()
	input.PromptStyle = theme.Prompt
	sp.Style = theme.AssistantLabel

	return Model{
		state:     st,
		theme:     theme,
		keys:      DefaultKeyMap(),
		opts:      opts,
		help:      help.New(),
		input:     input,
		spinner:   sp,
		chats:     st.Sorted(),
		currentID: opts.ChatID,
		models:    st.Models.Get(),
		apiURL:    st.APIURL.Get(),
	}
}

// Init loads the chats and models.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.refreshCmd(), m.fetchModelsCmd())
}

// =============================================================================
// ACCESSORS
// =============================================================================

// CurrentID returns the id of the chat shown, or "".
func (m Model) CurrentID() string {
	return m.currentID
}

// IsStreaming reports whether a reply is in progress.
func (m Model) IsStreaming() bool {
	return m.stream != nil
}

func (m Model) current() (storage.ChatRecord, bool) {
	for _, r := range m.chats {
		if r.ID == m.currentID {
			return r, true
		}
	}
	return storage.ChatRecord{}, false
}

func (m Model) currentIndex() int {
	return slices.IndexFunc(m.chats, func(r storage.ChatRecord) bool { return r.ID == m.currentID })
}

// chooseModel picks the model for the current chat: the explicit choice,
// the chat's own, the configured default, then the first available.
func (m Model) chooseModel() string {
	var chatModel string
	if rec, ok := m.current(); ok {
		chatModel = rec.Model
	}
	for _, name := range []string{m.opts.Model, chatModel, m.opts.DefaultModel} {
		if name != "" {
			return name
		}
	}
	if len(m.models) > 0 {
		return m.models[0]
	}
	return ""
}

// =============================================================================
// COMMANDS
// =============================================================================

// Every state mutation runs in a command. The observables notify
// synchronously and the bridge forwards to the program, so mutating from
// Update would block the event loop on its own message.

func (m Model) refreshCmd() tea.Cmd {
	st := m.state
	return func() tea.Msg {
		st.Refresh(context.Background())
		return nil
	}
}

func (m Model) fetchModelsCmd() tea.Cmd {
	st := m.state
	return func() tea.Msg {
		st.FetchAvailableModels(context.Background())
		return nil
	}
}

func (m Model) createCmd(title, model, pending string) tea.Cmd {
	st := m.state
	return func() tea.Msg {
		rec, err := st.Create(context.Background(), title, model)
		return chatCreatedMsg{rec: rec, pending: pending, err: err}
	}
}

func (m Model) removeCmd(id string) tea.Cmd {
	st := m.state
	return func() tea.Msg {
		return chatRemovedMsg{id: id, err: st.Remove(context.Background(), id)}
	}
}

func (m Model) setAPIURLCmd(url string) tea.Cmd {
	st := m.state
	return func() tea.Msg {
		st.SetAPIURL(url)
		st.FetchAvailableModels(context.Background())
		return nil
	}
}

// sendCmd streams a reply into buf. Failures reach the view through the
// error signal.
func (m Model) sendCmd(ctx context.Context, buf *streamBuffer, model, text string) tea.Cmd {
	st := m.state
	return func() tea.Msg {
		_, err := st.Send(ctx, buf.chatID, model, text, buf.Set)
		return sendDoneMsg{chatID: buf.chatID, err: err}
	}
}

// startSend begins a reply in the current chat.
func (m Model) startSend(text string) (Model, tea.Cmd) {
	model := m.chooseModel()
	if model == "" {
		m.errMsg = state.ErrNoModel.Error() + ": use /model NAME"
		return m, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.stream = newStreamBuffer(m.currentID, cancel)
	m.partial = ""
	m.updateViewport()
	return m, tea.Batch(m.spinner.Tick, streamTickCmd(), m.sendCmd(ctx, m.stream, model, text))
}

// submit handles the input line.
func (m Model) submit() (Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.stream != nil {
		return m, nil
	}
	m.input.Reset()
	m.notice = ""

	if strings.HasPrefix(text, "/") {
		return m.slashCommand(text)
	}

	if m.currentID == "" {
		model := m.chooseModel()
		if model == "" {
			m.errMsg = state.ErrNoModel.Error() + ": use /model NAME"
			return m, nil
		}
		return m, m.createCmd(util.TitleFrom(text, util.DefaultTitleLength), model, text)
	}
	return m.startSend(text)
}

// slashCommand handles the commands the view supports.
func (m Model) slashCommand(line string) (Model, tea.Cmd) {
	fields := strings.Fields(line)
	args := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch strings.ToLower(fields[0]) {
	case "/quit", "/q":
		return m, tea.Quit
	case "/new", "/n":
		title := util.TitleFrom(args, util.DefaultTitleLength)
		return m, m.createCmd(title, m.chooseModel(), "")
	case "/model", "/m":
		if args == "" {
			m.notice = "model: " + m.chooseModel()
			return m, nil
		}
		m.opts.Model = args
		m.notice = "model: " + args
		return m, nil
	case "/models":
		return m, m.fetchModelsCmd()
	case "/api":
		if args == "" {
			m.notice = "api: " + m.apiURL
			return m, nil
		}
		return m, m.setAPIURLCmd(strings.TrimRight(args, "/"))
	case "/delete", "/rm":
		if m.currentID == "" {
			return m, nil
		}
		return m, m.removeCmd(m.currentID)
	case "/help", "/h":
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	default:
		m.errMsg = fmt.Sprintf("unknown command: %s", fields[0])
		return m, nil
	}
}

// selectOffset moves the selection through the sidebar.
func (m *Model) selectOffset(delta int) {
	if len(m.chats) == 0 || m.stream != nil {
		return
	}
	i := m.currentIndex()
	if i < 0 {
		i = 0
	} else {
		i = (i + delta + len(m.chats)) % len(m.chats)
	}
	m.currentID = m.chats[i].ID
	m.updateViewport()
	m.viewport.GotoBottom()
}
