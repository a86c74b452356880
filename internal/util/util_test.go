// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := []byte(`api_url = "http://localhost:11434"`)

	if err := AtomicWriteFile(path, data, 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", string(content), string(data))
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.md")

	if err := AtomicWriteFile(path, []byte("initial"), 0644); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("updated"), 0644); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "updated" {
		t.Errorf("Content not updated: got %q", string(content))
	}

	// No temp files left behind
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestAtomicWriteFileWithDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newdir", "deep", "test.txt")

	if err := AtomicWriteFileWithDir(path, []byte("test"), 0600, 0700); err != nil {
		t.Fatalf("AtomicWriteFileWithDir failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("File not created: %v", err)
	}
	if info.Size() != 4 {
		t.Errorf("Size = %d, want 4", info.Size())
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		input    string
		maxRunes int
		want     string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 2, "he"},
		{"hello", 0, ""},
		{"日本語テキスト", 5, "日本..."},
		{"café au lait", 6, "caf..."},
	}

	for _, tc := range tests {
		if got := TruncateRunes(tc.input, tc.maxRunes); got != tc.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tc.input, tc.maxRunes, got, tc.want)
		}
	}
}

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxWidth int
		want     string
	}{
		{"ascii short", "hello", 10, "hello"},
		{"ascii exact", "hello", 5, "hello"},
		{"ascii truncate", "hello world", 8, "hello..."},
		{"cjk truncate", "日本語テキスト", 7, "日本..."},
		{"tiny", "hello", 2, "he"},
		{"zero width", "hello", 0, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := TruncateWidth(tc.input, tc.maxWidth)
			if got != tc.want {
				t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tc.input, tc.maxWidth, got, tc.want)
			}
			if StringWidth(got) > tc.maxWidth {
				t.Errorf("width %d exceeds %d", StringWidth(got), tc.maxWidth)
			}
		})
	}
}

func TestPadWidth(t *testing.T) {
	tests := []struct {
		input string
		width int
		want  string
	}{
		{"ab", 4, "ab  "},
		{"日本", 6, "日本  "},
		{"abcdefgh", 6, "abc..."},
	}

	for _, tc := range tests {
		got := PadWidth(tc.input, tc.width)
		if got != tc.want {
			t.Errorf("PadWidth(%q, %d) = %q, want %q", tc.input, tc.width, got, tc.want)
		}
		if StringWidth(got) != tc.width {
			t.Errorf("PadWidth(%q, %d) width = %d", tc.input, tc.width, StringWidth(got))
		}
	}
}

func TestStringWidth(t *testing.T) {
	if got := StringWidth("abc"); got != 3 {
		t.Errorf("StringWidth(abc) = %d, want 3", got)
	}
	if got := StringWidth("日本語"); got != 6 {
		t.Errorf("StringWidth(日本語) = %d, want 6", got)
	}
}

// =============================================================================
// TITLE TESTS
// =============================================================================

func TestTitleFrom(t *testing.T) {
	long := strings.Repeat("word ", 40)

	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"plain", "How do I reverse a list?", 60, "How do I reverse a list?"},
		{"collapses whitespace", "  line one\n\n\tline two  ", 60, "line one line two"},
		{"empty", "   \n", 60, "New chat"},
		{"truncated", long, 10, "word wo..."},
		{"default limit", long, 0, TruncateRunes(strings.TrimSpace(long), DefaultTitleLength)},
		// "e" followed by a combining acute accent composes to a single rune
		{"normalized", "cafe\u0301", 60, "caf\u00e9"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TitleFrom(tc.input, tc.max); got != tc.want {
				t.Errorf("TitleFrom(%q, %d) = %q, want %q", tc.input, tc.max, got, tc.want)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := ExpandHome("~/.ollapa"); got != filepath.Join(home, ".ollapa") {
		t.Errorf("ExpandHome(~/.ollapa) = %q", got)
	}
	if got := ExpandHome("/var/lib/ollapa"); got != "/var/lib/ollapa" {
		t.Errorf("ExpandHome should leave absolute paths alone, got %q", got)
	}
	if got := ExpandHome("~user/x"); got != "~user/x" {
		t.Errorf("ExpandHome should not expand ~user, got %q", got)
	}
}
