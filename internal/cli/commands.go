// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - One-shot command handlers.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jeranaias/ollapa/internal/export"
	"github.com/jeranaias/ollapa/internal/ollama"
	"github.com/jeranaias/ollapa/internal/state"
	"github.com/jeranaias/ollapa/internal/storage"
	"github.com/jeranaias/ollapa/internal/util"
)

// =============================================================================
// LIST / SHOW
// =============================================================================

// HandleList prints every chat, newest first.
func (a *App) HandleList(ctx context.Context, p *ArgParser) error {
	load := func() ([]storage.ChatRecord, error) {
		records, err := a.Store.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		storage.SortNewestFirst(records)
		return records, nil
	}

	if p.BoolFlag("json") {
		return OutputJSON(a.Out, "list", func() (interface{}, error) {
			records, err := load()
			if err != nil {
				return nil, err
			}
			out := make([]ChatSummary, 0, len(records))
			for _, r := range records {
				out = append(out, ChatSummary{
					ID:         r.ID,
					Title:      r.Title,
					Model:      r.Model,
					Messages:   len(r.Messages),
					CreatedAt:  r.CreatedAt,
					ModifiedAt: r.ModifiedAt,
				})
			}
			return out, nil
		})
	}

	records, err := load()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Out, RenderConditional(DimStyle, "No chats yet. Start one with: ollapa chat"))
		return nil
	}
	fmt.Fprint(a.Out, storage.FormatChatList(records, GetTerminalWidth()))
	return nil
}

// HandleShow prints one chat.
func (a *App) HandleShow(ctx context.Context, p *ArgParser) error {
	ref := p.Positional(0)
	if ref == "" {
		return ErrMissingArgument("ID", "ollapa show ID [--json|--raw]")
	}

	if p.BoolFlag("json") {
		return OutputJSON(a.Out, "show", func() (interface{}, error) {
			rec, err := a.resolveChat(ctx, ref)
			if err != nil {
				return nil, err
			}
			return rec, nil
		})
	}

	rec, err := a.resolveChat(ctx, ref)
	if err != nil {
		return err
	}

	if p.BoolFlag("raw") {
		for _, m := range rec.Messages {
			fmt.Fprintf(a.Out, "%s: %s\n\n", m.Role, m.Content)
		}
		return nil
	}

	a.printChatHeader(rec)
	md := a.markdown
	for _, m := range rec.Messages {
		writeMessage(a.Out, md, m.Role, m.Content)
	}
	return nil
}

func (a *App) printChatHeader(rec storage.ChatRecord) {
	model := rec.Model
	if model == "" {
		model = "(none)"
	}
	fmt.Fprintln(a.Out, RenderConditional(TitleStyle, rec.Title))
	fmt.Fprintf(a.Out, "%s%s\n", RenderLabel("ID"), rec.ID)
	fmt.Fprintf(a.Out, "%s%s\n", RenderLabel("Model"), model)
	fmt.Fprintf(a.Out, "%s%s\n", RenderLabel("Created"), rec.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(a.Out, "%s%d\n", RenderLabel("Messages"), len(rec.Messages))
	fmt.Fprintln(a.Out, RenderSeparator(min(GetTerminalWidth(), 60)))
	fmt.Fprintln(a.Out)
}

// =============================================================================
// NEW / REMOVE
// =============================================================================

// HandleNew creates an empty chat.
func (a *App) HandleNew(ctx context.Context, p *ArgParser) error {
	title := util.TitleFrom(JoinPositionalArgs(p, 0), util.DefaultTitleLength)
	model := a.chooseModel(ctx, p.FirstFlag("m", "model"), "")

	rec, err := a.State.Create(ctx, title, model)
	if err != nil {
		return err
	}

	if p.BoolFlag("json") {
		return NewJSONResponse("new", rec).Print(a.Out)
	}
	fmt.Fprintf(a.Out, "%s Created chat %s %q\n", RenderStatus("ok"), storage.ShortID(rec.ID), rec.Title)
	return nil
}

// HandleRemove deletes one or more chats. Every id is attempted; the errors
// are joined.
func (a *App) HandleRemove(ctx context.Context, p *ArgParser) error {
	if p.PositionalCount() == 0 {
		return ErrMissingArgument("ID", "ollapa rm ID...")
	}

	var errs []error
	for _, ref := range p.PositionalFrom(0) {
		rec, err := a.resolveChat(ctx, ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := a.State.Remove(ctx, rec.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(a.Out, "%s Deleted chat %s %q\n", RenderStatus("ok"), storage.ShortID(rec.ID), rec.Title)
	}
	return errors.Join(errs...)
}

// =============================================================================
// SERVER
// =============================================================================

// HandleModels lists the models installed on the server.
func (a *App) HandleModels(ctx context.Context, p *ArgParser) error {
	load := func() ([]ollama.ModelInfo, error) {
		models, err := a.Client.Tags(ctx)
		if err != nil {
			return nil, err
		}
		slices.SortFunc(models, func(x, y ollama.ModelInfo) int {
			return strings.Compare(x.Name, y.Name)
		})
		return models, nil
	}

	if p.BoolFlag("json") {
		return OutputJSON(a.Out, "models", func() (interface{}, error) {
			return load()
		})
	}

	models, err := load()
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Fprintln(a.Out, RenderConditional(DimStyle, "No models installed. Pull one with: ollama pull llama3"))
		return nil
	}

	nameWidth := 4
	for _, m := range models {
		nameWidth = max(nameWidth, util.StringWidth(m.Name))
	}
	fmt.Fprintf(a.Out, "%s  %8s  %s\n", util.PadWidth("NAME", nameWidth), "SIZE", "MODIFIED")
	for _, m := range models {
		modified := ""
		if !m.ModifiedAt.IsZero() {
			modified = m.ModifiedAt.Local().Format("2006-01-02")
		}
		fmt.Fprintf(a.Out, "%s  %8s  %s\n", util.PadWidth(m.Name, nameWidth), m.FormatSize(), modified)
	}
	return nil
}

// HandleStatus checks the server and the chat store. It fails only when
// the output itself cannot be produced; problems are reported as status.
func (a *App) HandleStatus(ctx context.Context, p *ArgParser) error {
	data := StatusData{
		APIURL:     a.Client.BaseURL(),
		StorePath:  a.Store.Path(),
		ConfigPath: a.ConfigPath,
		Version:    Version,
		Models:     []string{},
	}

	if version, err := a.Client.CheckRunning(ctx); err != nil {
		data.ServerError = err.Error()
	} else {
		data.ServerRunning = true
		data.ServerVersion = version
		if names, err := a.Client.ListModels(ctx); err == nil {
			data.Models = names
		}
	}

	if records, err := a.Store.ListAll(ctx); err != nil {
		data.StoreError = err.Error()
	} else {
		data.StoreOK = true
		data.Chats = len(records)
	}

	if p.BoolFlag("json") {
		return NewJSONResponse("status", data).Print(a.Out)
	}

	fmt.Fprintln(a.Out, RenderConditional(TitleStyle, "ollapa status"))
	if data.ServerRunning {
		fmt.Fprintf(a.Out, "%s%s %s (Ollama %s, %d models)\n", RenderLabel("Server"), RenderStatus("ok"), data.APIURL, data.ServerVersion, len(data.Models))
	} else {
		fmt.Fprintf(a.Out, "%s%s %s: %s\n", RenderLabel("Server"), RenderStatus("fail"), data.APIURL, data.ServerError)
	}
	if data.StoreOK {
		fmt.Fprintf(a.Out, "%s%s %s (%d chats)\n", RenderLabel("Chat store"), RenderStatus("ok"), data.StorePath, data.Chats)
	} else {
		fmt.Fprintf(a.Out, "%s%s %s: %s\n", RenderLabel("Chat store"), RenderStatus("fail"), data.StorePath, data.StoreError)
	}
	fmt.Fprintf(a.Out, "%s%s\n", RenderLabel("Config"), data.ConfigPath)
	fmt.Fprintf(a.Out, "%s%s\n", RenderLabel("Version"), data.Version)
	return nil
}

// =============================================================================
// ASK
// =============================================================================

// streamPrinter writes the new suffix of each accumulated chunk.
type streamPrinter struct {
	w       io.Writer
	printed int
}

func (s *streamPrinter) chunk(accumulated string) {
	if len(accumulated) > s.printed {
		fmt.Fprint(s.w, accumulated[s.printed:])
		s.printed = len(accumulated)
	}
}

// finish prints any text that arrived with the final record and ends the
// line.
func (s *streamPrinter) finish(final string) {
	s.chunk(final)
	if s.printed > 0 && !strings.HasSuffix(final, "\n") {
		fmt.Fprintln(s.w)
	}
}

// HandleAsk sends one message and streams the reply to stdout. Without
// --chat a new chat titled after the question is created. The question may
// be piped on stdin.
func (a *App) HandleAsk(ctx context.Context, p *ArgParser) error {
	text := strings.TrimSpace(JoinPositionalArgs(p, 0))
	if text == "" && !IsTTY() {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read question from stdin: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		return ErrMissingArgument("TEXT", `ollapa ask [--model M] [--chat ID] "question"`)
	}

	var rec storage.ChatRecord
	if ref := p.FirstFlag("c", "chat"); ref != "" {
		found, err := a.resolveChat(ctx, ref)
		if err != nil {
			return err
		}
		rec = found
	}

	model := a.chooseModel(ctx, p.FirstFlag("m", "model"), rec.Model)
	if model == "" {
		return fmt.Errorf("%w: pass --model or set default_model (ollapa config set default_model NAME)", state.ErrNoModel)
	}

	if rec.ID == "" {
		created, err := a.State.Create(ctx, util.TitleFrom(text, util.DefaultTitleLength), model)
		if err != nil {
			return err
		}
		rec = created
	}

	printer := &streamPrinter{w: a.Out}
	updated, err := a.State.Send(ctx, rec.ID, model, text, printer.chunk)
	if err != nil {
		if printer.printed > 0 {
			fmt.Fprintln(a.Out)
		}
		return err
	}
	if last, ok := updated.LastMessage(); ok {
		printer.finish(last.Content)
	}

	fmt.Fprintln(a.ErrOut, RenderConditional(DimStyle, fmt.Sprintf("chat %s (continue with: ollapa ask --chat %s ...)", storage.ShortID(rec.ID), storage.ShortID(rec.ID))))
	return nil
}

// =============================================================================
// EXPORT / BACKUP / RESTORE
// =============================================================================

// HandleExport writes one chat as Markdown or JSON. --output - writes to
// stdout.
func (a *App) HandleExport(ctx context.Context, p *ArgParser) error {
	ref := p.Positional(0)
	if ref == "" {
		return ErrMissingArgument("ID", "ollapa export ID [--format md|json] [--output DIR]")
	}

	opts := export.DefaultOptions()
	opts.OutputDir = p.FirstFlag("o", "output")

	exporter, err := export.ForFormat(p.FirstFlag("f", "format"), opts)
	if err != nil {
		return NewValidationError("--format", p.FirstFlag("f", "format"), "must be md or json")
	}

	rec, err := a.resolveChat(ctx, ref)
	if err != nil {
		return err
	}

	if opts.OutputDir == "-" {
		data, err := exporter.Export(&rec)
		if err != nil {
			return err
		}
		_, err = a.Out.Write(data)
		return err
	}

	path, err := export.ExportToFile(&rec, exporter, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%s Exported %s to %s\n", RenderStatus("ok"), storage.ShortID(rec.ID), path)
	return nil
}

// HandleBackup writes every chat to a compressed archive.
func (a *App) HandleBackup(ctx context.Context, p *ArgParser) error {
	path := p.FirstFlag("o", "output")
	if path == "" {
		path = filepath.Join(a.Config.DataDir(), "backups", export.DefaultArchiveName(time.Now()))
	}
	path = util.ExpandHome(path)

	records, err := a.Store.ListAll(ctx)
	if err != nil {
		return err
	}
	n, err := export.Backup(ctx, path, records)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%s Backed up %d chats to %s\n", RenderStatus("ok"), n, path)
	return nil
}

// HandleRestore imports every chat from an archive, replacing chats with
// the same id.
func (a *App) HandleRestore(ctx context.Context, p *ArgParser) error {
	path := p.Positional(0)
	if path == "" {
		return ErrMissingArgument("FILE", "ollapa restore FILE"+export.ArchiveExtension)
	}

	n, err := export.Restore(ctx, util.ExpandHome(path), a.Store)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%s Restored %d chats from %s\n", RenderStatus("ok"), n, path)
	return nil
}
