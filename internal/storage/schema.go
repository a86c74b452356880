// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// SchemaVersion is the version of the newest migration below.
const SchemaVersion = 3

// migration upgrades the database from version-1 to version.
// Migrations are additive so rows written by older versions stay readable.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create chats",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS chats (
				id         TEXT PRIMARY KEY,
				title      TEXT NOT NULL,
				created_at INTEGER NOT NULL
			)`,
		},
	},
	{
		version: 2,
		name:    "add model",
		stmts: []string{
			`ALTER TABLE chats ADD COLUMN model TEXT`,
		},
	},
	{
		version: 3,
		name:    "add modified_at and messages",
		stmts: []string{
			`ALTER TABLE chats ADD COLUMN modified_at INTEGER`,
			`ALTER TABLE chats ADD COLUMN messages TEXT`,
			`UPDATE chats SET modified_at = created_at WHERE modified_at IS NULL`,
			`CREATE INDEX IF NOT EXISTS idx_chats_modified ON chats(modified_at DESC)`,
		},
	},
}

// schemaVersion reads the version stamped in the database header.
func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// migrate applies every migration newer than the stored version, each in
// its own transaction together with the version bump.
func migrate(ctx context.Context, db *sql.DB) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("database schema v%d is newer than supported v%d", current, SchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		log.Printf("STORAGE | migrated schema from=%d to=%d name=%q", current, m.version, m.name)
		current = m.version
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	// PRAGMA does not accept bound parameters
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return err
	}
	return tx.Commit()
}
