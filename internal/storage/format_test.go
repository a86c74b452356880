// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"strings"
	"testing"
	"time"
)

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []ChatRecord{
		{ID: "b", ModifiedAt: base},
		{ID: "c", ModifiedAt: base.Add(time.Hour)},
		{ID: "a", ModifiedAt: base},
	}

	SortNewestFirst(records)

	var ids []string
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	if got := strings.Join(ids, ","); got != "c,a,b" {
		t.Errorf("order = %s, want c,a,b", got)
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("0f8e2b9c-1234"); got != "0f8e2b9c" {
		t.Errorf("ShortID() = %q", got)
	}
	if got := ShortID("abc"); got != "abc" {
		t.Errorf("ShortID(short) = %q", got)
	}
}

func TestFormatChatList(t *testing.T) {
	if got := FormatChatList(nil, 80); got != "No chats found.\n" {
		t.Errorf("FormatChatList(nil) = %q", got)
	}

	records := []ChatRecord{
		{ID: "0f8e2b9c-aaaa", Title: "A very long title about sourdough starters and hydration", Model: "llama3.2", ModifiedAt: time.Now(), Messages: make([]Message, 3)},
		{ID: "1a2b3c4d-bbbb", Title: "日本語のチャット", ModifiedAt: time.Now()},
	}
	out := FormatChatList(records, 80)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[2], "0f8e2b9c ") {
		t.Errorf("row should start with short id: %q", lines[2])
	}
	if !strings.Contains(lines[2], "...") {
		t.Errorf("long title should be truncated: %q", lines[2])
	}
	if !strings.Contains(lines[3], " - ") {
		t.Errorf("missing model should render as '-': %q", lines[3])
	}
	// Title columns line up regardless of wide characters
	idx := strings.Index(lines[2], "llama3.2")
	if idx < 0 {
		t.Fatalf("model missing: %q", lines[2])
	}
}
