// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer renders assistant replies for a terminal. It is built on
// first use so commands that never render pay nothing.
type markdownRenderer struct {
	once     sync.Once
	renderer *glamour.TermRenderer
	enabled  bool
}

func newMarkdownRenderer(enabled bool) *markdownRenderer {
	return &markdownRenderer{enabled: enabled}
}

// Render returns content rendered as terminal markdown, or content itself
// when rendering is disabled, colors are off, or the renderer fails.
func (m *markdownRenderer) Render(content string) string {
	if !m.enabled || !ColorsEnabled() {
		return content
	}

	m.once.Do(func() {
		width := GetTerminalWidth() - 4
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			m.renderer = r
		}
	})
	if m.renderer == nil {
		return content
	}

	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// writeMessage prints one chat message under a role label.
func writeMessage(w io.Writer, md *markdownRenderer, role, content string) {
	fmt.Fprintf(w, "%s\n", RoleLabel(role))
	if role == "assistant" {
		fmt.Fprint(w, md.Render(content))
	} else {
		fmt.Fprint(w, content)
	}
	if !strings.HasSuffix(content, "\n") {
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}
