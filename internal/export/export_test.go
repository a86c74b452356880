// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ollapa/internal/storage"
)

var testTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func testRecord() *storage.ChatRecord {
	return &storage.ChatRecord{
		ID:         "3f2a9c1e-0000-4000-8000-000000000001",
		Title:      "Sorting in Go",
		Model:      "llama3",
		CreatedAt:  testTime,
		ModifiedAt: testTime.Add(time.Minute),
		Messages: []storage.Message{
			{Role: storage.RoleUser, Content: "How do I sort a slice?", Timestamp: testTime},
			{Role: storage.RoleAssistant, Content: "Use `slices.Sort`.\n\n```go\nslices.Sort(s)\n```\n", Timestamp: testTime.Add(time.Minute)},
		},
	}
}

func fixedOptions(dir string) *Options {
	opts := DefaultOptions()
	opts.OutputDir = dir
	opts.Now = func() time.Time { return testTime }
	return opts
}

func TestMarkdownExporter_Export(t *testing.T) {
	out, err := NewMarkdownExporter(fixedOptions("")).Export(testRecord())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	result := string(out)

	for _, want := range []string{
		"---\ntitle: Sorting in Go\n",
		"model: llama3\n",
		"messages: 2\n",
		"generator: ollapa\n",
		"# Sorting in Go\n",
		"### You <sub>09:26:53</sub>\n\nHow do I sort a slice?",
		"### Assistant <sub>09:27:53</sub>\n\nUse `slices.Sort`.",
		"```go\nslices.Sort(s)\n```",
		"*Exported from ollapa on March 14, 2025 at 9:26 AM*",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("Markdown output missing %q\n%s", want, result)
		}
	}
}

func TestMarkdownExporter_NoMetadata(t *testing.T) {
	opts := fixedOptions("")
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false

	out, err := NewMarkdownExporter(opts).Export(testRecord())
	require.NoError(t, err)

	result := string(out)
	assert.False(t, strings.HasPrefix(result, "---"), "frontmatter should be omitted")
	assert.NotContains(t, result, "<sub>")
	assert.Contains(t, result, "### You\n\n")
}

func TestMarkdownExporter_EmptyChat(t *testing.T) {
	rec := testRecord()
	rec.Messages = nil

	out, err := NewMarkdownExporter(fixedOptions("")).Export(rec)
	require.NoError(t, err)
	assert.Contains(t, string(out), "messages: 0\n")
}

func TestMarkdownExporter_InvalidRecords(t *testing.T) {
	exporter := NewMarkdownExporter(nil)

	if _, err := exporter.Export(nil); err == nil {
		t.Error("Export(nil) should return error")
	}
	rec := testRecord()
	rec.CreatedAt = time.Time{}
	if _, err := exporter.Export(rec); err == nil {
		t.Error("Export() with zero CreatedAt should return error")
	}
}

// TestYAMLNewlineInjection tests that newlines are escaped in YAML frontmatter.
func TestYAMLNewlineInjection(t *testing.T) {
	rec := testRecord()
	rec.Title = "Test\nInjection: malicious"

	out, err := NewMarkdownExporter(nil).Export(rec)
	require.NoError(t, err)

	lines := strings.Split(string(out), "\n")
	for i, line := range lines[:10] {
		if i > 0 && strings.HasPrefix(line, "Injection:") {
			t.Error("newline not escaped in title")
		}
	}
	assert.Contains(t, string(out), `title: "Test\nInjection: malicious"`)
}

func TestEscapeMarkdown(t *testing.T) {
	got := escapeMarkdown("# *bold* _it_ [x]")
	want := `\# \*bold\* \_it\_ \[x\]`
	if got != want {
		t.Errorf("escapeMarkdown() = %q, want %q", got, want)
	}
}

func TestFormatRoleLabel(t *testing.T) {
	tests := []struct {
		role string
		want string
	}{
		{"user", "You"},
		{"assistant", "Assistant"},
		{"system", "System"},
		{"tool", "Tool"},
		{"", "Unknown"},
	}
	for _, tt := range tests {
		if got := formatRoleLabel(tt.role); got != tt.want {
			t.Errorf("formatRoleLabel(%q) = %q, want %q", tt.role, got, tt.want)
		}
	}
}

func TestJSONExporter_Export(t *testing.T) {
	rec := testRecord()
	out, err := NewJSONExporter(nil).Export(rec)
	require.NoError(t, err)

	var decoded storage.ChatRecord
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, rec.ID, decoded.ID)
	assert.Equal(t, rec.Messages, decoded.Messages)
	assert.True(t, rec.CreatedAt.Equal(decoded.CreatedAt))

	empty := testRecord()
	empty.Messages = nil
	out, err = NewJSONExporter(nil).Export(empty)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"messages": []`)
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantExt string
		wantErr bool
	}{
		{"md", ".md", false},
		{"Markdown", ".md", false},
		{"", ".md", false},
		{"json", ".json", false},
		{"html", "", true},
	}
	for _, tt := range tests {
		exporter, err := ForFormat(tt.format, nil)
		if (err != nil) != tt.wantErr {
			t.Errorf("ForFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			continue
		}
		if err == nil && exporter.FileExtension() != tt.wantExt {
			t.Errorf("ForFormat(%q).FileExtension() = %q, want %q", tt.format, exporter.FileExtension(), tt.wantExt)
		}
	}
}

func TestExportToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	rec := testRecord()

	path, err := ExportMarkdown(rec, fixedOptions(dir))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "chat_Sorting_in_Go_3f2a9c1e.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Sorting in Go")

	path, err = ExportJSON(rec, fixedOptions(dir))
	require.NoError(t, err)
	assert.Equal(t, ".json", filepath.Ext(path))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"simple", "simple"},
		{"a/b\\c:d", "a-b-c-d"},
		{"two words", "two_words"},
		{"tab\there", "tab_here"},
		{"bell\x07", "bell-"},
		{"", "chat"},
		{"   ", "chat"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := strings.Repeat("x", 80)
	if got := sanitizeFilename(long); len([]rune(got)) != 50 {
		t.Errorf("sanitizeFilename(long) length = %d, want 50", len([]rune(got)))
	}
}

// =============================================================================
// ARCHIVE TESTS
// =============================================================================

type memWriter struct {
	records []storage.ChatRecord
	failAt  int
}

func (m *memWriter) Put(_ context.Context, rec storage.ChatRecord) error {
	if m.failAt > 0 && len(m.records)+1 == m.failAt {
		return errors.New("disk full")
	}
	m.records = append(m.records, rec)
	return nil
}

func TestArchive_RoundTrip(t *testing.T) {
	ctx := context.Background()
	first := testRecord()
	second := testRecord()
	second.ID = "3f2a9c1e-0000-4000-8000-000000000002"
	second.Title = "Empty"
	second.Messages = nil

	var buf bytes.Buffer
	n, err := WriteArchive(ctx, &buf, []storage.ChatRecord{*first, *second})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var got []storage.ChatRecord
	n, err = ReadArchive(ctx, &buf, func(rec storage.ChatRecord) error {
		got = append(got, rec)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, first.Messages, got[0].Messages)
	assert.Equal(t, "Empty", got[1].Title)
	assert.Empty(t, got[1].Messages)
}

func TestArchive_EmptyArchive(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	_, err := WriteArchive(ctx, &buf, nil)
	require.NoError(t, err)

	n, err := ReadArchive(ctx, &buf, func(storage.ChatRecord) error {
		t.Error("callback should not be called")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func compressed(t *testing.T, payload string) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	return buf.Bytes()
}

func TestReadArchive_Errors(t *testing.T) {
	ctx := context.Background()
	noop := func(storage.ChatRecord) error { return nil }

	tests := []struct {
		name string
		data []byte
	}{
		{"not zstd", []byte("plain text, not compressed")},
		{"bad json", compressed(t, `{"id":"a","title":"ok","messages":[]}`+"\nnot json\n")},
		{"missing id", compressed(t, `{"title":"no id"}`+"\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadArchive(ctx, bytes.NewReader(tt.data), noop); err == nil {
				t.Error("ReadArchive() should return error")
			}
		})
	}
}

func TestBackupRestore_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "backups", DefaultArchiveName(testTime))
	assert.True(t, strings.HasSuffix(path, "ollapa-backup-20250314-092653.jsonl.zst"))

	n, err := Backup(ctx, path, []storage.ChatRecord{*testRecord()})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dst := &memWriter{}
	n, err = Restore(ctx, path, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, dst.records, 1)
	assert.Equal(t, "Sorting in Go", dst.records[0].Title)
}

func TestRestore_IntoStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	archive := filepath.Join(dir, "chats"+ArchiveExtension)

	_, err := Backup(ctx, archive, []storage.ChatRecord{*testRecord()})
	require.NoError(t, err)

	store, err := storage.Open(ctx, filepath.Join(dir, storage.DatabaseName))
	require.NoError(t, err)
	defer store.Close()

	_, err = Restore(ctx, archive, store)
	require.NoError(t, err)

	got, err := store.Get(ctx, testRecord().ID)
	require.NoError(t, err)
	assert.Equal(t, "llama3", got.Model)
	assert.Len(t, got.Messages, 2)
}

func TestRestore_CorruptArchiveWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad"+ArchiveExtension)
	payload := `{"id":"a","title":"ok","messages":[]}` + "\n{broken\n"
	require.NoError(t, os.WriteFile(path, compressed(t, payload), 0600))

	dst := &memWriter{}
	_, err := Restore(context.Background(), path, dst)
	require.Error(t, err)
	assert.Empty(t, dst.records)
}

func TestRestore_PutFailure(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "two"+ArchiveExtension)
	second := testRecord()
	second.ID = "other"
	_, err := Backup(ctx, path, []storage.ChatRecord{*testRecord(), *second})
	require.NoError(t, err)

	dst := &memWriter{failAt: 2}
	n, err := Restore(ctx, path, dst)
	require.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestWriteArchive_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err := WriteArchive(ctx, &buf, []storage.ChatRecord{*testRecord()})
	assert.ErrorIs(t, err, context.Canceled)
}
