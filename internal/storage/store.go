// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// CHAT RECORD TYPES
// =============================================================================

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry in a chat's history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRecord is one persisted conversation.
type ChatRecord struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Model      string    `json:"model,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Messages   []Message `json:"messages"`
}

// LastMessage returns the newest message, or false for an empty chat.
func (r *ChatRecord) LastMessage() (Message, bool) {
	if len(r.Messages) == 0 {
		return Message{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}

// =============================================================================
// STORE
// =============================================================================

// DatabaseName is the file name used inside the data directory.
const DatabaseName = "chats.db"

// Store persists ChatRecords in a single SQLite table.
//
// The database handle is opened lazily on first use and shared by every
// operation. Concurrent first uses converge on one open and one migration
// run; a failed open is not cached, so a later call retries.
type Store struct {
	path string

	mu     sync.Mutex
	db     *sql.DB
	closed bool

	// now is replaceable in tests.
	now func() time.Time
}

// New returns a Store for the database at path without touching the disk.
// Use ":memory:" for a private in-memory database.
func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Open returns a Store for path with the database opened and migrated.
func Open(ctx context.Context, path string) (*Store, error) {
	s := New(path)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Open opens and migrates the database if that has not happened yet.
// It is safe to call repeatedly and from multiple goroutines.
func (s *Store) Open(ctx context.Context) error {
	_, err := s.handle(ctx)
	return err
}

// Close releases the database handle. Later operations fail with
// ErrStorageUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// handle returns the shared database, opening it on first use.
func (s *Store) handle(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, &Error{Kind: KindUnavailable, Op: "open", Err: errors.New("store is closed")}
	}
	if s.db != nil {
		return s.db, nil
	}

	db, err := openDatabase(ctx, s.path)
	if err != nil {
		log.Printf("STORAGE | open failed path=%s err=%v", s.path, err)
		return nil, &Error{Kind: KindUnavailable, Op: "open", Err: err}
	}
	s.db = db
	log.Printf("STORAGE | opened path=%s schema=%d", s.path, SchemaVersion)
	return db, nil
}

// Available reports whether dir can hold a database: it exists or can be
// created, and files can be written in it.
func Available(dir string) bool {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return false
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

func openDatabase(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("no database path configured")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if !Available(dir) {
			return nil, fmt.Errorf("directory %s is not writable", dir)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer; a single connection also keeps the
	// in-memory database and per-connection pragmas alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// stamp returns the current time truncated to what the database stores.
func (s *Store) stamp() time.Time {
	return time.Unix(0, s.now().UnixNano())
}

// =============================================================================
// QUERIES
// =============================================================================

const selectColumns = `SELECT id, title, model, created_at, modified_at, messages FROM chats`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row. Columns added by later migrations may be NULL
// on rows written before them and are read as absent.
func scanRecord(row rowScanner) (ChatRecord, error) {
	var (
		rec      ChatRecord
		model    sql.NullString
		created  int64
		modified sql.NullInt64
		messages sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Title, &model, &created, &modified, &messages); err != nil {
		return rec, err
	}

	rec.Model = model.String
	rec.CreatedAt = time.Unix(0, created)
	rec.ModifiedAt = rec.CreatedAt
	if modified.Valid && modified.Int64 >= created {
		rec.ModifiedAt = time.Unix(0, modified.Int64)
	}
	rec.Messages = []Message{}
	if messages.Valid && messages.String != "" {
		if err := json.Unmarshal([]byte(messages.String), &rec.Messages); err != nil {
			return rec, fmt.Errorf("corrupt messages for chat %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// ListAll returns every chat in unspecified order.
func (s *Store) ListAll(ctx context.Context) ([]ChatRecord, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, selectColumns)
	if err != nil {
		return nil, &Error{Kind: KindRead, Op: "list", Err: err}
	}
	defer rows.Close()

	var out []ChatRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &Error{Kind: KindRead, Op: "list", Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Kind: KindRead, Op: "list", Err: err}
	}
	return out, nil
}

// Get returns the chat with id.
func (s *Store) Get(ctx context.Context, id string) (ChatRecord, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return ChatRecord{}, err
	}

	rec, err := scanRecord(db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ChatRecord{}, &Error{Kind: KindNotFound, Op: "get", ID: id}
	}
	if err != nil {
		return ChatRecord{}, &Error{Kind: KindRead, Op: "get", ID: id, Err: err}
	}
	return rec, nil
}

// Resolve expands an id prefix to the full id of exactly one chat. An id
// equal to the prefix wins over longer ids that start with it.
func (s *Store) Resolve(ctx context.Context, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", &Error{Kind: KindNotFound, Op: "resolve", ID: prefix}
	}

	db, err := s.handle(ctx)
	if err != nil {
		return "", err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id FROM chats WHERE id LIKE ? || '%' ESCAPE '\' ORDER BY id = ? DESC LIMIT 2`,
		likeEscaper.Replace(prefix), prefix)
	if err != nil {
		return "", &Error{Kind: KindRead, Op: "resolve", ID: prefix, Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", &Error{Kind: KindRead, Op: "resolve", ID: prefix, Err: err}
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", &Error{Kind: KindRead, Op: "resolve", ID: prefix, Err: err}
	}

	switch {
	case len(ids) == 0:
		return "", &Error{Kind: KindNotFound, Op: "resolve", ID: prefix}
	case len(ids) == 1 || ids[0] == prefix:
		return ids[0], nil
	default:
		return "", &Error{Kind: KindAmbiguous, Op: "resolve", ID: prefix}
	}
}

// likeEscaper makes a prefix match literally inside LIKE ... ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// =============================================================================
// MUTATIONS
// =============================================================================

// Create inserts a new empty chat and returns it.
func (s *Store) Create(ctx context.Context, title, model string) (ChatRecord, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return ChatRecord{}, err
	}

	now := s.stamp()
	rec := ChatRecord{
		ID:         uuid.NewString(),
		Title:      title,
		Model:      model,
		CreatedAt:  now,
		ModifiedAt: now,
		Messages:   []Message{},
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO chats (id, title, model, created_at, modified_at, messages) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.Model, now.UnixNano(), now.UnixNano(), "[]")
	if err != nil {
		log.Printf("STORAGE | create failed title=%q err=%v", title, err)
		return ChatRecord{}, &Error{Kind: KindWrite, Op: "create", Err: err}
	}

	log.Printf("STORAGE | created chat id=%s model=%s", rec.ID, rec.Model)
	return rec, nil
}

// Remove deletes the chat with id. Removing a missing chat is not an error.
func (s *Store) Remove(ctx context.Context, id string) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		log.Printf("STORAGE | remove failed id=%s err=%v", id, err)
		return &Error{Kind: KindWrite, Op: "remove", ID: id, Err: err}
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("STORAGE | removed chat id=%s", id)
	}
	return nil
}

// AppendMessage adds msg to the end of the chat's history and returns the
// updated record. The read and the write happen in one transaction, so the
// stored row either gains the message and the new modification time
// together or is left unchanged. A zero msg.Timestamp is set to now.
func (s *Store) AppendMessage(ctx context.Context, id string, msg Message) (ChatRecord, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return ChatRecord{}, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return ChatRecord{}, &Error{Kind: KindWrite, Op: "append", ID: id, Err: err}
	}
	defer tx.Rollback()

	rec, err := scanRecord(tx.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ChatRecord{}, &Error{Kind: KindNotFound, Op: "append", ID: id}
	}
	if err != nil {
		return ChatRecord{}, &Error{Kind: KindWrite, Op: "append", ID: id, Err: err}
	}

	now := s.stamp()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	rec.Messages = append(rec.Messages, msg)
	// modified_at never moves backwards, even if the wall clock does
	if now.After(rec.ModifiedAt) {
		rec.ModifiedAt = now
	}

	data, err := json.Marshal(rec.Messages)
	if err != nil {
		return ChatRecord{}, &Error{Kind: KindWrite, Op: "append", ID: id, Err: err}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chats SET messages = ?, modified_at = ? WHERE id = ?`,
		string(data), rec.ModifiedAt.UnixNano(), id); err != nil {
		log.Printf("STORAGE | append failed id=%s err=%v", id, err)
		return ChatRecord{}, &Error{Kind: KindWrite, Op: "append", ID: id, Err: err}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("STORAGE | append commit failed id=%s err=%v", id, err)
		return ChatRecord{}, &Error{Kind: KindWrite, Op: "append", ID: id, Err: err}
	}

	return rec, nil
}

// Put writes a complete record, replacing any chat with the same id.
// It is used to restore backups; ids and timestamps are kept as given.
func (s *Store) Put(ctx context.Context, rec ChatRecord) error {
	if rec.ID == "" {
		return &Error{Kind: KindWrite, Op: "put", Err: errors.New("record has no id")}
	}

	db, err := s.handle(ctx)
	if err != nil {
		return err
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.stamp()
	}
	if rec.ModifiedAt.Before(rec.CreatedAt) {
		rec.ModifiedAt = rec.CreatedAt
	}
	if rec.Messages == nil {
		rec.Messages = []Message{}
	}

	data, err := json.Marshal(rec.Messages)
	if err != nil {
		return &Error{Kind: KindWrite, Op: "put", ID: rec.ID, Err: err}
	}

	_, err = db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chats (id, title, model, created_at, modified_at, messages) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.Model, rec.CreatedAt.UnixNano(), rec.ModifiedAt.UnixNano(), string(data))
	if err != nil {
		return &Error{Kind: KindWrite, Op: "put", ID: rec.ID, Err: err}
	}
	return nil
}
