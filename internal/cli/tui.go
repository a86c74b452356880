// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"log"

	"github.com/jeranaias/ollapa/internal/config"
	"github.com/jeranaias/ollapa/internal/ui/chat"
)

// HandleTUI runs the full-screen chat view.
func (a *App) HandleTUI(ctx context.Context, p *ArgParser) error {
	if !IsTTY() || !IsStdoutTTY() {
		return NewUsageError("the full-screen view needs a terminal", "ollapa chat")
	}

	opts := chat.Options{
		Model:          p.FirstFlag("m", "model"),
		DefaultModel:   a.DefaultModel(),
		RenderMarkdown: a.Config.UI.RenderMarkdown,
	}
	if ref := p.FirstFlag("c", "chat"); ref != "" {
		rec, err := a.resolveChat(ctx, ref)
		if err != nil {
			return err
		}
		opts.ChatID = rec.ID
	}

	if w, err := config.NewWatcher(a.ConfigPath, config.DefaultDebounce, a.applyConfig, nil); err != nil {
		log.Printf("CONFIG | watcher disabled err=%v", err)
	} else {
		w.Watch()
		defer w.Close()
	}

	log.Printf("TUI | start chat=%s", opts.ChatID)
	return chat.Run(ctx, a.State, a.Errors, opts)
}
