// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler.
//
// Command: chat (default when no command is given)
//
// Examples:
//   ollapa                          Start chatting; the first message creates a chat
//   ollapa chat --chat 3f2a         Continue an existing chat
//   ollapa chat --model llama3      Use a specific model
//
// Flags:
//   -c, --chat ID       Open an existing chat (id or unique id prefix)
//   -m, --model NAME    Use a specific model for this session
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /models             List models on the server
//   /model [name]       Show or switch model
//   /chats              List chats
//   /open ID            Switch to another chat
//   /new [title]        Start a new chat
//   /delete [ID]        Delete a chat (default: the open one)
//   /history            Show the open chat's messages
//   /api [url]          Show or change the Ollama API URL
//   /clear, /c          Leave the open chat; the next message starts a new one
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel current generation
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/peterh/liner"

	"github.com/jeranaias/ollapa/internal/config"
	"github.com/jeranaias/ollapa/internal/ollama"
	"github.com/jeranaias/ollapa/internal/state"
	"github.com/jeranaias/ollapa/internal/storage"
	"github.com/jeranaias/ollapa/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader reads one line of input.
type lineReader interface {
	ReadInput(prompt string) (string, error)
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI whose history lives in the config directory.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.Dir()
	if err != nil {
		dir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(dir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history, readable only by the owner.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// chatSession is one interactive session. Only the REPL goroutine touches
// chatID and model; cancel is shared with the signal handler.
type chatSession struct {
	app *App
	out io.Writer

	chatID string
	model  string

	mu       sync.Mutex
	cancel   context.CancelFunc
	canceled atomic.Bool
}

// reportedError marks an error the error signal has already shown.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err}
}

func (a *App) newChatSession() *chatSession {
	return &chatSession{app: a, out: a.Out}
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChat runs the interactive REPL until /quit or end of input.
func (a *App) HandleChat(ctx context.Context, p *ArgParser) error {
	s := a.newChatSession()
	s.model = p.FirstFlag("m", "model")

	a.State.Refresh(ctx)
	if ref := p.FirstFlag("c", "chat"); ref != "" {
		rec, err := a.resolveChat(ctx, ref)
		if err != nil {
			return err
		}
		s.chatID = rec.ID
	}

	unsub := a.Errors.Subscribe(func(msg string) {
		if msg == "" || s.canceled.Load() {
			return
		}
		fmt.Fprintf(a.ErrOut, "%s %s\n", RenderConditional(ErrorStyle, "[Error]"), msg)
	})
	defer unsub()

	if w, err := config.NewWatcher(a.ConfigPath, config.DefaultDebounce, a.applyConfig, nil); err != nil {
		log.Printf("CONFIG | watcher disabled err=%v", err)
	} else {
		w.Watch()
		defer w.Close()
	}

	// Ctrl+C while a reply streams cancels only that reply. While
	// prompting, liner owns the terminal and reports it as ErrPromptAborted.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if s.cancelGeneration() {
				fmt.Fprintln(a.ErrOut, "\n"+RenderConditional(WarningStyle, "[Cancelled]"))
			}
		}
	}()

	a.State.FetchAvailableModels(ctx)
	s.printWelcome(ctx)

	input := NewChatCLI()
	defer input.Close()
	return s.loop(ctx, input)
}

// loop reads and handles lines until the user quits or input ends.
func (s *chatSession) loop(ctx context.Context, in lineReader) error {
	for {
		line, err := in.ReadInput(RenderConditional(PromptStyle, "ollapa> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or end of piped input
			fmt.Fprintln(s.out)
			fmt.Fprintln(s.out, RenderConditional(DimStyle, "Goodbye!"))
			return nil
		}

		quit, err := s.handleLine(ctx, line)
		if err != nil {
			var rep reportedError
			if !errors.As(err, &rep) {
				DisplayError(s.app.ErrOut, err)
			}
		}
		if quit {
			fmt.Fprintln(s.out, RenderConditional(DimStyle, "Goodbye!"))
			return nil
		}
	}
}

// handleLine handles one line of input and reports whether to quit.
func (s *chatSession) handleLine(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false, nil
	case strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit"):
		return true, nil
	case strings.HasPrefix(line, "/"):
		return s.handleSlashCommand(ctx, line)
	default:
		return false, s.send(ctx, line)
	}
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// send posts text to the open chat, creating one titled after text when
// none is open, and prints the reply.
func (s *chatSession) send(ctx context.Context, text string) error {
	a := s.app

	var chatModel string
	if s.chatID != "" {
		if rec, ok := a.State.Find(s.chatID); ok {
			chatModel = rec.Model
		}
	}
	model := a.chooseModel(ctx, s.model, chatModel)
	if model == "" {
		return fmt.Errorf("%w: pull one with 'ollama pull NAME' or pick one with /model NAME", state.ErrNoModel)
	}

	if s.chatID == "" {
		rec, err := a.State.Create(ctx, util.TitleFrom(text, util.DefaultTitleLength), model)
		if err != nil {
			return reported(err)
		}
		s.chatID = rec.ID
	}

	genCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	s.canceled.Store(false)
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
		s.canceled.Store(false)
	}()

	// Rendered markdown needs the whole reply; plain output streams.
	rendered := a.markdown.enabled && ColorsEnabled()
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, RoleLabel(storage.RoleAssistant))

	var onChunk ollama.ChunkFunc
	printer := &streamPrinter{w: s.out}
	if !rendered {
		onChunk = printer.chunk
	}

	rec, err := a.State.Send(genCtx, s.chatID, model, text, onChunk)
	if err != nil {
		if printer.printed > 0 {
			fmt.Fprintln(s.out)
		}
		if s.canceled.Load() || ollama.IsCanceled(err) {
			return nil
		}
		return reported(err)
	}

	last, _ := rec.LastMessage()
	if rendered {
		fmt.Fprint(s.out, a.markdown.Render(last.Content))
	} else {
		printer.finish(last.Content)
	}
	fmt.Fprintln(s.out)
	return nil
}

// cancelGeneration cancels the reply in progress, if any.
func (s *chatSession) cancelGeneration() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.canceled.Store(true)
	s.cancel()
	s.cancel = nil
	return true
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands and reports whether to quit.
func (s *chatSession) handleSlashCommand(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	args := parts[1:]
	a := s.app

	switch command {
	case "/help", "/h", "/?", "/":
		s.printHelp()

	case "/quit", "/q", "/exit":
		return true, nil

	case "/clear", "/c":
		s.chatID = ""
		fmt.Fprintln(s.out, RenderConditional(DimStyle, "[Left chat; the next message starts a new one]"))

	case "/models":
		models := a.State.FetchAvailableModels(ctx)
		if len(models) == 0 {
			fmt.Fprintln(s.out, RenderConditional(DimStyle, "[No models available]"))
			return false, nil
		}
		current := a.chooseModel(ctx, s.model, s.currentChatModel())
		for _, m := range models {
			marker := "  "
			if m == current {
				marker = "* "
			}
			fmt.Fprintln(s.out, marker+m)
		}

	case "/model", "/m":
		if len(args) == 0 {
			model := a.chooseModel(ctx, s.model, s.currentChatModel())
			if model == "" {
				model = "(none)"
			}
			fmt.Fprintf(s.out, "%s %s\n", RenderConditional(DimStyle, "[Model]"), model)
			return false, nil
		}
		s.model = args[0]
		if models := a.State.Models.Get(); len(models) > 0 && !containsString(models, s.model) {
			fmt.Fprintf(s.out, "%s Model %q is not installed on the server\n", RenderStatus("warn"), s.model)
		}
		fmt.Fprintf(s.out, "%s Switched to model: %s\n", RenderStatus("ok"), s.model)

	case "/chats":
		chats := a.State.Sorted()
		if len(chats) == 0 {
			fmt.Fprintln(s.out, RenderConditional(DimStyle, "[No chats yet]"))
			return false, nil
		}
		fmt.Fprint(s.out, storage.FormatChatList(chats, GetTerminalWidth()))

	case "/open", "/o":
		if len(args) == 0 {
			return false, ErrMissingArgument("ID", "/open ID")
		}
		rec, err := a.resolveChat(ctx, args[0])
		if err != nil {
			return false, err
		}
		s.chatID = rec.ID
		fmt.Fprintf(s.out, "%s Opened %s %q (%d messages)\n", RenderStatus("ok"), storage.ShortID(rec.ID), rec.Title, len(rec.Messages))

	case "/new", "/n":
		title := util.TitleFrom(strings.Join(args, " "), util.DefaultTitleLength)
		rec, err := a.State.Create(ctx, title, a.chooseModel(ctx, s.model, ""))
		if err != nil {
			return false, reported(err)
		}
		s.chatID = rec.ID
		fmt.Fprintf(s.out, "%s Created %s %q\n", RenderStatus("ok"), storage.ShortID(rec.ID), rec.Title)

	case "/delete", "/rm":
		id := s.chatID
		if len(args) > 0 {
			rec, err := a.resolveChat(ctx, args[0])
			if err != nil {
				return false, err
			}
			id = rec.ID
		}
		if id == "" {
			return false, ErrMissingArgument("ID", "/delete ID")
		}
		if err := a.State.Remove(ctx, id); err != nil {
			return false, reported(err)
		}
		if id == s.chatID {
			s.chatID = ""
		}
		fmt.Fprintf(s.out, "%s Deleted %s\n", RenderStatus("ok"), storage.ShortID(id))

	case "/history":
		s.printHistory()

	case "/api":
		if len(args) == 0 {
			fmt.Fprintf(s.out, "%s %s\n", RenderConditional(DimStyle, "[API]"), a.State.APIURL.Get())
			return false, nil
		}
		url := strings.TrimRight(args[0], "/")
		if err := config.ValidateAPIURL(url); err != nil {
			return false, NewValidationError("URL", args[0], err.Error())
		}
		a.State.SetAPIURL(url)
		fmt.Fprintf(s.out, "%s API URL set to %s\n", RenderStatus("ok"), url)
		a.State.FetchAvailableModels(ctx)

	default:
		return false, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return false, nil
}

func (s *chatSession) currentChatModel() string {
	if s.chatID == "" {
		return ""
	}
	rec, _ := s.app.State.Find(s.chatID)
	return rec.Model
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

// printWelcome prints the welcome banner.
func (s *chatSession) printWelcome(ctx context.Context) {
	a := s.app
	model := a.chooseModel(ctx, s.model, s.currentChatModel())
	if model == "" {
		model = RenderConditional(WarningStyle, "(none; see /models)")
	}

	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, RenderConditional(TitleStyle, "ollapa interactive chat"))
	fmt.Fprintln(s.out, RenderSeparator(30))
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Server:"), a.State.APIURL.Get())
	fmt.Fprintf(s.out, "%s%s\n", RenderLabel("Model:"), model)
	if rec, ok := a.State.Find(s.chatID); ok {
		fmt.Fprintf(s.out, "%s%s %q\n", RenderLabel("Chat:"), storage.ShortID(rec.ID), rec.Title)
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, RenderConditional(DimStyle, "Type your message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(s.out)
}

// printHelp prints available commands.
func (s *chatSession) printHelp() {
	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/models", "List models on the server"},
		{"/model [name]", "Show or switch model"},
		{"/chats", "List chats"},
		{"/open ID", "Switch to another chat"},
		{"/new [title]", "Start a new chat"},
		{"/delete [ID]", "Delete a chat (default: the open one)"},
		{"/history", "Show the open chat's messages"},
		{"/api [url]", "Show or change the Ollama API URL"},
		{"/clear, /c", "Leave the open chat"},
		{"/quit, /q", "Exit chat"},
	}

	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, RenderConditional(TitleStyle, "Available Commands"))
	fmt.Fprintln(s.out, RenderSeparator(20))
	for _, c := range commands {
		fmt.Fprintf(s.out, "  %s  %s\n", RenderConditional(SuccessStyle, fmt.Sprintf("%-15s", c.cmd)), c.desc)
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, RenderConditional(DimStyle, "Tip: Ctrl+C cancels the current reply, Ctrl+D exits"))
	fmt.Fprintln(s.out)
}

// printHistory prints the open chat's messages, one line each.
func (s *chatSession) printHistory() {
	rec, ok := s.app.State.Find(s.chatID)
	if !ok || len(rec.Messages) == 0 {
		fmt.Fprintln(s.out, RenderConditional(DimStyle, "[No messages yet]"))
		return
	}

	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, RenderConditional(TitleStyle, rec.Title))
	fmt.Fprintln(s.out, RenderSeparator(25))
	for i, msg := range rec.Messages {
		content := strings.ReplaceAll(msg.Content, "\n", " ")
		content = util.TruncateRunes(content, 100)
		fmt.Fprintf(s.out, "  %d. %s: %s\n", i+1, RoleLabel(msg.Role), content)
	}
	fmt.Fprintln(s.out)
}
