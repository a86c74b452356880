// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the full-screen chat view.
//
// The view is a Bubble Tea model over state.ChatState. It never touches the
// store directly: every mutation runs in a tea.Cmd, and the state's
// observables are bridged into the program as messages, so the view always
// renders what the state last published.
//
// # Key Types
//
//   - Model: The tea.Model (sidebar of chats, transcript, input line)
//   - KeyMap: Key bindings with help text
//   - Options: Startup model, chat and rendering settings
//
// # Usage
//
//	err := chat.Run(ctx, chatState, errs, chat.Options{Model: "llama3"})
package chat
