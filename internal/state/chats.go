// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state keeps ollapa's in-memory view of chats consistent with the
// durable store.
//
// ChatState mediates every read and write the front end performs. Each
// mutation is delegated to the store first; the cached collection is then
// rebuilt from what the store returned, never changed ahead of it. Failures
// are logged, shown on the error signal and returned to the caller, except
// for Refresh and FetchAvailableModels which only report them.
package state

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	"github.com/jeranaias/ollapa/internal/errsignal"
	"github.com/jeranaias/ollapa/internal/ollama"
	"github.com/jeranaias/ollapa/internal/storage"
)

// DefaultAPIURL is used when no API URL preference is set.
const DefaultAPIURL = ollama.DefaultBaseURL

// ChatStore is the durable side of the chat collection.
type ChatStore interface {
	ListAll(ctx context.Context) ([]storage.ChatRecord, error)
	Create(ctx context.Context, title, model string) (storage.ChatRecord, error)
	Remove(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, id string, msg storage.Message) (storage.ChatRecord, error)
}

// CompletionClient talks to the model server.
type CompletionClient interface {
	ListModels(ctx context.Context) ([]string, error)
	Complete(ctx context.Context, model string, messages []ollama.Message, onChunk ollama.ChunkFunc) (string, error)
}

// ErrNoModel is returned by Send when neither the chat nor the caller names
// a model.
var ErrNoModel = errors.New("no model selected")

// ChatState is the observable chat collection plus the settings the front
// end edits.
type ChatState struct {
	store ChatStore
	llm   CompletionClient
	errs  *errsignal.Signal

	// Chats holds records in store order; use Sorted for display.
	Chats   *Observable[[]storage.ChatRecord]
	Loading *Observable[bool]
	Models  *Observable[[]string]
	APIURL  *Observable[string]

	lockMu sync.Mutex
	locks  map[string]*chatLock
}

type chatLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a ChatState. An empty apiURL uses DefaultAPIURL.
func New(store ChatStore, llm CompletionClient, errs *errsignal.Signal, apiURL string) *ChatState {
	if errs == nil {
		errs = errsignal.New(errsignal.DefaultExpiry)
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &ChatState{
		store:   store,
		llm:     llm,
		errs:    errs,
		Chats:   NewObservable([]storage.ChatRecord{}),
		Loading: NewObservable(false),
		Models:  NewObservable([]string{}),
		APIURL:  NewObservable(apiURL),
		locks:   make(map[string]*chatLock),
	}
}

// Errors returns the signal failures are reported on.
func (c *ChatState) Errors() *errsignal.Signal {
	return c.errs
}

// =============================================================================
// CHAT COLLECTION
// =============================================================================

// Refresh reloads every chat from the store. On failure the previous
// collection is kept and the error is only reported.
func (c *ChatState) Refresh(ctx context.Context) {
	c.Loading.Set(true)
	defer c.Loading.Set(false)

	records, err := c.store.ListAll(ctx)
	if err != nil {
		c.fail("Failed to load chats", err)
		return
	}
	if records == nil {
		records = []storage.ChatRecord{}
	}
	c.Chats.Set(records)
}

// Create stores a new chat and adds it to the collection.
func (c *ChatState) Create(ctx context.Context, title, model string) (storage.ChatRecord, error) {
	rec, err := c.store.Create(ctx, title, model)
	if err != nil {
		c.fail("Failed to create chat", err)
		return storage.ChatRecord{}, err
	}

	c.Chats.Update(func(list []storage.ChatRecord) []storage.ChatRecord {
		return append(slices.Clip(list), rec)
	})
	return rec, nil
}

// Remove deletes a chat and drops it from the collection.
func (c *ChatState) Remove(ctx context.Context, id string) error {
	if err := c.store.Remove(ctx, id); err != nil {
		c.fail("Failed to delete chat", err)
		return err
	}

	c.Chats.Update(func(list []storage.ChatRecord) []storage.ChatRecord {
		return slices.DeleteFunc(slices.Clone(list), func(r storage.ChatRecord) bool {
			return r.ID == id
		})
	})
	return nil
}

// AppendMessage stores msg and replaces the cached chat with the record the
// store returned.
func (c *ChatState) AppendMessage(ctx context.Context, id string, msg storage.Message) (storage.ChatRecord, error) {
	rec, err := c.store.AppendMessage(ctx, id, msg)
	if err != nil {
		c.fail("Failed to save message", err)
		return storage.ChatRecord{}, err
	}

	c.Chats.Update(func(list []storage.ChatRecord) []storage.ChatRecord {
		out := slices.Clone(list)
		for i := range out {
			if out[i].ID == rec.ID {
				out[i] = rec
			}
		}
		return out
	})
	return rec, nil
}

// Find returns the cached chat with id.
func (c *ChatState) Find(id string) (storage.ChatRecord, bool) {
	for _, r := range c.Chats.Get() {
		if r.ID == id {
			return r, true
		}
	}
	return storage.ChatRecord{}, false
}

// Sorted returns a copy of the collection, newest first.
func (c *ChatState) Sorted() []storage.ChatRecord {
	out := slices.Clone(c.Chats.Get())
	storage.SortNewestFirst(out)
	return out
}

// =============================================================================
// COMPLETIONS
// =============================================================================

// Send appends a user message to the chat, streams the model's reply over
// the chat's full history and appends the reply. model overrides the chat's
// own model when non-empty. Sends to the same chat are serialized; sends to
// different chats run independently.
func (c *ChatState) Send(ctx context.Context, id, model, content string, onChunk ollama.ChunkFunc) (storage.ChatRecord, error) {
	unlock := c.lockChat(id)
	defer unlock()

	rec, err := c.AppendMessage(ctx, id, storage.Message{Role: storage.RoleUser, Content: content})
	if err != nil {
		return storage.ChatRecord{}, err
	}

	if model == "" {
		model = rec.Model
	}
	if model == "" {
		c.fail("Failed to get response", ErrNoModel)
		return rec, ErrNoModel
	}

	reply, err := c.llm.Complete(ctx, model, toOllamaMessages(rec.Messages), onChunk)
	if err != nil {
		c.fail("Failed to get response", err)
		return rec, err
	}

	return c.AppendMessage(ctx, id, storage.Message{Role: storage.RoleAssistant, Content: reply})
}

func (c *ChatState) lockChat(id string) func() {
	c.lockMu.Lock()
	l := c.locks[id]
	if l == nil {
		l = &chatLock{}
		c.locks[id] = l
	}
	l.refs++
	c.lockMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.lockMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.lockMu.Unlock()
	}
}

func toOllamaMessages(msgs []storage.Message) []ollama.Message {
	out := make([]ollama.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ollama.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// =============================================================================
// MODELS AND SETTINGS
// =============================================================================

// FetchAvailableModels refreshes Models from the server. Listing is
// advisory: on failure Models becomes empty, the error is reported, and an
// empty list is returned.
func (c *ChatState) FetchAvailableModels(ctx context.Context) []string {
	names, err := c.llm.ListModels(ctx)
	if err != nil {
		c.fail("Failed to fetch models", err)
		c.Models.Set([]string{})
		return []string{}
	}
	if names == nil {
		names = []string{}
	}
	c.Models.Set(names)
	return names
}

// SetAPIURL updates the API URL preference. Blank resets to DefaultAPIURL.
func (c *ChatState) SetAPIURL(url string) {
	url = strings.TrimSpace(url)
	if url == "" {
		url = DefaultAPIURL
	}
	c.APIURL.Set(url)
}

// fail logs err and shows it on the error signal.
func (c *ChatState) fail(what string, err error) {
	log.Printf("STATE | %s err=%v", strings.ToLower(what), err)
	c.errs.Set(fmt.Sprintf("%s: %v", what, err))
}
