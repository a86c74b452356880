// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable chat persistence for ollapa.
//
// Chats live in one SQLite table (modernc.org/sqlite, no cgo) keyed by a
// random UUID. The schema is versioned with PRAGMA user_version and upgraded
// by an ordered chain of additive migrations when the database is opened, so
// rows written by older versions remain readable with their newer columns
// treated as absent.
//
// # Key Types
//
//   - Store: lazily opened database handle with CRUD operations
//   - ChatRecord: one conversation with its ordered messages
//   - Error: typed failure with ErrorKind (unavailable, read, write, not found)
//
// # Usage
//
//	store, err := storage.Open(ctx, filepath.Join(dataDir, storage.DatabaseName))
//	chat, err := store.Create(ctx, "Rust lifetimes", "llama3.2")
//	chat, err = store.AppendMessage(ctx, chat.ID, storage.Message{
//	    Role:    storage.RoleUser,
//	    Content: "What is a lifetime?",
//	})
//
// # Concurrency
//
// A Store is safe for concurrent use. AppendMessage is a read-modify-write
// inside a transaction; callers that send to the same chat concurrently
// should serialize those sends.
package storage
