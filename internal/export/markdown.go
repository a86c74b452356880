// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/ollapa/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports chats to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a chat to Markdown format. Chats without messages are
// exported with an empty conversation section.
func (e *MarkdownExporter) Export(rec *storage.ChatRecord) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("chat is nil")
	}
	if rec.CreatedAt.IsZero() {
		return nil, fmt.Errorf("chat has invalid creation timestamp")
	}

	var sb strings.Builder
	now := e.options.now()

	// YAML frontmatter with metadata
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(rec.Title)))
		sb.WriteString(fmt.Sprintf("id: %s\n", rec.ID))
		if rec.Model != "" {
			sb.WriteString(fmt.Sprintf("model: %s\n", escapeYAML(rec.Model)))
		}
		sb.WriteString(fmt.Sprintf("date: %s\n", rec.CreatedAt.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("updated: %s\n", rec.ModifiedAt.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("messages: %d\n", len(rec.Messages)))
		sb.WriteString(fmt.Sprintf("exported: %s\n", now.Format(time.RFC3339)))
		sb.WriteString("generator: ollapa\n")
		sb.WriteString("---\n\n")
	}

	sb.WriteString(fmt.Sprintf("# %s\n\n", escapeMarkdown(rec.Title)))

	if e.options.IncludeMetadata {
		model := rec.Model
		if model == "" {
			model = "(none)"
		}
		sb.WriteString(fmt.Sprintf("- **Model**: %s\n", model))
		sb.WriteString(fmt.Sprintf("- **Created**: %s\n", formatTimestamp(rec.CreatedAt)))
		sb.WriteString(fmt.Sprintf("- **Last Updated**: %s\n", formatTimestamp(rec.ModifiedAt)))
		sb.WriteString(fmt.Sprintf("- **Messages**: %d\n", len(rec.Messages)))
		sb.WriteString("\n---\n\n")
	}

	for i, msg := range rec.Messages {
		roleLabel := formatRoleLabel(msg.Role)
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			sb.WriteString(fmt.Sprintf("### %s <sub>%s</sub>\n\n", roleLabel, formatShortTimestamp(msg.Timestamp)))
		} else {
			sb.WriteString(fmt.Sprintf("### %s\n\n", roleLabel))
		}

		// Content is already markdown from the model
		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if i < len(rec.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported from ollapa on %s*\n", now.Format("January 2, 2006 at 3:04 PM")))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// formatRoleLabel returns a formatted label for the message role.
func formatRoleLabel(role string) string {
	switch role {
	case "":
		return "Unknown"
	case storage.RoleUser:
		return "You"
	case storage.RoleAssistant:
		return "Assistant"
	case storage.RoleSystem:
		return "System"
	default:
		runes := []rune(role)
		return strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
}

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	// Only escape characters that would break formatting in titles/headings
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML quotes a YAML scalar when it contains special characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
