// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ollapa/internal/errsignal"
	"github.com/jeranaias/ollapa/internal/state"
	"github.com/jeranaias/ollapa/internal/storage"
)

// sender is the part of *tea.Program the bridge needs.
type sender interface {
	Send(msg tea.Msg)
}

// subscribe forwards observable changes to s and returns a function that
// removes every subscription.
func subscribe(s sender, st *state.ChatState, errs *errsignal.Signal) func() {
	unsubs := []func(){
		st.Chats.Subscribe(func(chats []storage.ChatRecord) { s.Send(ChatsMsg(chats)) }),
		st.Models.Subscribe(func(models []string) { s.Send(ModelsMsg(models)) }),
		st.APIURL.Subscribe(func(url string) { s.Send(APIURLMsg(url)) }),
		st.Loading.Subscribe(func(loading bool) { s.Send(LoadingMsg(loading)) }),
	}
	if errs != nil {
		unsubs = append(unsubs, errs.Subscribe(func(msg string) { s.Send(ErrorMsg(msg)) }))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Run shows the full-screen view until the user quits or ctx is done.
func Run(ctx context.Context, st *state.ChatState, errs *errsignal.Signal, opts Options) error {
	if errs == nil {
		errs = st.Errors()
	}

	p := tea.NewProgram(New(st, opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	unsubscribe := subscribe(p, st, errs)
	defer unsubscribe()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
