// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes chats out of the store.
//
// # Formats
//
//   - Markdown: Readable transcript with YAML frontmatter
//   - JSON: Complete record, suitable for re-import
//   - Archive: Every chat as zstd-compressed JSON lines (.jsonl.zst)
//
// # Usage
//
//	path, err := export.ExportMarkdown(&rec, export.DefaultOptions())
//
//	n, err := export.Backup(ctx, "chats.jsonl.zst", records)
//	n, err = export.Restore(ctx, "chats.jsonl.zst", store)
package export
