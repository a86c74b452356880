// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"sort"
	"strconv"
	"strings"

	"github.com/jeranaias/ollapa/internal/util"
)

// ShortIDLength is how many id characters list views show.
const ShortIDLength = 8

// ShortID returns the display prefix of a chat id.
func ShortID(id string) string {
	if len(id) <= ShortIDLength {
		return id
	}
	return id[:ShortIDLength]
}

// SortNewestFirst orders records by modification time, newest first, with
// id as a tie breaker so the order is stable across refreshes.
func SortNewestFirst(records []ChatRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].ModifiedAt, records[j].ModifiedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return records[i].ID < records[j].ID
	})
}

// =============================================================================
// CHAT LIST FORMATTING
// =============================================================================

// FormatChatList renders chats as an aligned table that fits in width
// terminal cells. Titles absorb whatever width the fixed columns leave.
func FormatChatList(records []ChatRecord, width int) string {
	if len(records) == 0 {
		return "No chats found.\n"
	}

	const (
		idCol       = ShortIDLength
		modelCol    = 18
		countCol    = 5
		modifiedCol = 16
		gaps        = 4
		minTitle    = 12
	)
	titleCol := width - idCol - modelCol - countCol - modifiedCol - gaps
	if titleCol < minTitle {
		titleCol = minTitle
	}

	var sb strings.Builder
	writeRow := func(id, title, model, count, modified string) {
		sb.WriteString(util.PadWidth(id, idCol))
		sb.WriteString(" ")
		sb.WriteString(util.PadWidth(title, titleCol))
		sb.WriteString(" ")
		sb.WriteString(util.PadWidth(model, modelCol))
		sb.WriteString(" ")
		sb.WriteString(padLeft(count, countCol))
		sb.WriteString(" ")
		sb.WriteString(modified)
		sb.WriteString("\n")
	}

	writeRow("ID", "Title", "Model", "Msgs", "Modified")
	sb.WriteString(strings.Repeat("-", idCol+titleCol+modelCol+countCol+modifiedCol+gaps))
	sb.WriteString("\n")

	for _, r := range records {
		model := r.Model
		if model == "" {
			model = "-"
		}
		writeRow(ShortID(r.ID), r.Title, model,
			strconv.Itoa(len(r.Messages)),
			r.ModifiedAt.Local().Format("2006-01-02 15:04"))
	}
	return sb.String()
}

func padLeft(s string, width int) string {
	if pad := width - util.StringWidth(s); pad > 0 {
		return strings.Repeat(" ", pad) + s
	}
	return s
}
