// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/ollapa/internal/storage"
)

// =============================================================================
// STATE MESSAGES (published by the observables)
// =============================================================================

// ChatsMsg carries the chat collection after every change.
type ChatsMsg []storage.ChatRecord

// ModelsMsg carries the available model names.
type ModelsMsg []string

// APIURLMsg carries the API URL preference.
type APIURLMsg string

// ErrorMsg carries the error signal's message; "" clears it.
type ErrorMsg string

// LoadingMsg reports whether the collection is being reloaded.
type LoadingMsg bool

// =============================================================================
// COMMAND RESULTS
// =============================================================================

// chatCreatedMsg reports a chat created by the view. When pending is set
// it is sent to the new chat.
type chatCreatedMsg struct {
	rec     storage.ChatRecord
	pending string
	err     error
}

// chatRemovedMsg reports a deletion.
type chatRemovedMsg struct {
	id  string
	err error
}

// sendDoneMsg reports the end of a reply.
type sendDoneMsg struct {
	chatID string
	err    error
}

// streamTickMsg drives transcript updates while a reply streams.
type streamTickMsg time.Time
