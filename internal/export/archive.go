// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/jeranaias/ollapa/internal/storage"
)

// =============================================================================
// BACKUP ARCHIVES
// =============================================================================

// ArchiveExtension is the suffix of backup archives: one JSON chat record
// per line, zstd compressed.
const ArchiveExtension = ".jsonl.zst"

// RecordWriter receives restored chats.
type RecordWriter interface {
	Put(ctx context.Context, rec storage.ChatRecord) error
}

// DefaultArchiveName returns a timestamped archive file name.
func DefaultArchiveName(now time.Time) string {
	return "ollapa-backup-" + now.Format("20060102-150405") + ArchiveExtension
}

// WriteArchive compresses records to w and returns how many were written.
func WriteArchive(ctx context.Context, w io.Writer, records []storage.ChatRecord) (int, error) {
	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("create zstd encoder: %w", err)
	}

	// json.Encoder terminates each value with a newline
	enc := json.NewEncoder(encoder)
	n := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			encoder.Close()
			return n, err
		}
		if rec.Messages == nil {
			rec.Messages = []storage.Message{}
		}
		if err := enc.Encode(rec); err != nil {
			encoder.Close()
			return n, fmt.Errorf("compress: %w", err)
		}
		n++
	}

	if err := encoder.Close(); err != nil {
		return n, fmt.Errorf("finalize compression: %w", err)
	}
	return n, nil
}

// ReadArchive decompresses r and calls fn for every record in order.
func ReadArchive(ctx context.Context, r io.Reader, fn func(storage.ChatRecord) error) (int, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer decoder.Close()

	dec := json.NewDecoder(decoder)
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		var rec storage.ChatRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("record %d: %w", n+1, err)
		}
		if rec.ID == "" {
			return n, fmt.Errorf("record %d: missing id", n+1)
		}
		if err := fn(rec); err != nil {
			return n, err
		}
		n++
	}
}

// Backup writes records to an archive at path. The file is written to a
// temporary name first and renamed into place.
func Backup(ctx context.Context, path string, records []storage.ChatRecord) (int, error) {
	if err := ensureDir(path); err != nil {
		return 0, fmt.Errorf("create archive dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ollapa-backup-*")
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	n, err := WriteArchive(ctx, tmp, records)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("rename archive: %w", err)
	}

	log.Printf("EXPORT | backup path=%s chats=%d", path, n)
	return n, nil
}

// Restore reads every record from the archive at path and writes them to
// dst. The whole archive is decoded before anything is written, so a
// corrupt archive restores nothing.
func Restore(ctx context.Context, path string, dst RecordWriter) (int, error) {
	src, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer src.Close()

	var records []storage.ChatRecord
	if _, err := ReadArchive(ctx, src, func(rec storage.ChatRecord) error {
		records = append(records, rec)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("read archive %s: %w", path, err)
	}

	for i, rec := range records {
		if err := dst.Put(ctx, rec); err != nil {
			return i, err
		}
	}

	log.Printf("EXPORT | restore path=%s chats=%d", path, len(records))
	return len(records), nil
}
