// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// streamFPS caps transcript redraws while a reply streams.
const streamFPS = 30

// =============================================================================
// STREAM BUFFER
// =============================================================================

// streamBuffer holds the reply in progress. The completion goroutine
// stores the accumulated text; the tick handler takes it at most streamFPS
// times a second. It is shared by pointer between copies of the Model.
type streamBuffer struct {
	mu     sync.Mutex
	chatID string
	text   string
	dirty  bool
	cancel context.CancelFunc
}

func newStreamBuffer(chatID string, cancel context.CancelFunc) *streamBuffer {
	return &streamBuffer{chatID: chatID, cancel: cancel}
}

// Set stores the accumulated reply. It has the ollama.ChunkFunc signature.
func (b *streamBuffer) Set(accumulated string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = accumulated
	b.dirty = true
}

// Flush returns the reply when it changed since the last Flush.
func (b *streamBuffer) Flush() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.dirty {
		return "", false
	}
	b.dirty = false
	return b.text, true
}

// Cancel stops the reply.
func (b *streamBuffer) Cancel() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func streamTickCmd() tea.Cmd {
	return tea.Tick(time.Second/streamFPS, func(t time.Time) tea.Msg {
		return streamTickMsg(t)
	})
}
