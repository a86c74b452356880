// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package state

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ollapa/internal/errsignal"
	"github.com/jeranaias/ollapa/internal/ollama"
	"github.com/jeranaias/ollapa/internal/storage"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// failingStore wraps a real store and fails the operations named in fail.
type failingStore struct {
	ChatStore
	fail map[string]error
}

func (f *failingStore) ListAll(ctx context.Context) ([]storage.ChatRecord, error) {
	if err := f.fail["list"]; err != nil {
		return nil, err
	}
	return f.ChatStore.ListAll(ctx)
}

func (f *failingStore) Create(ctx context.Context, title, model string) (storage.ChatRecord, error) {
	if err := f.fail["create"]; err != nil {
		return storage.ChatRecord{}, err
	}
	return f.ChatStore.Create(ctx, title, model)
}

func (f *failingStore) Remove(ctx context.Context, id string) error {
	if err := f.fail["remove"]; err != nil {
		return err
	}
	return f.ChatStore.Remove(ctx, id)
}

type fakeLLM struct {
	mu       sync.Mutex
	models   []string
	listErr  error
	reply    []string
	err      error
	lastSeen []ollama.Message
	model    string
	delay    time.Duration
}

func (f *fakeLLM) ListModels(ctx context.Context) ([]string, error) {
	return f.models, f.listErr
}

func (f *fakeLLM) Complete(ctx context.Context, model string, msgs []ollama.Message, onChunk ollama.ChunkFunc) (string, error) {
	f.mu.Lock()
	f.lastSeen = msgs
	f.model = model
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	var acc strings.Builder
	for _, piece := range f.reply {
		acc.WriteString(piece)
		if onChunk != nil {
			onChunk(acc.String())
		}
	}
	return acc.String(), nil
}

func newTestState(t *testing.T, llm *fakeLLM) (*ChatState, *storage.Store) {
	t.Helper()
	store, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), storage.DatabaseName))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if llm == nil {
		llm = &fakeLLM{}
	}
	return New(store, llm, errsignal.New(time.Minute), ""), store
}

// =============================================================================
// OBSERVABLE TESTS
// =============================================================================

func TestObservable_NotifiesInOrder(t *testing.T) {
	o := NewObservable(0)
	var calls []string

	o.Subscribe(func(v int) { calls = append(calls, "first") })
	unsub := o.Subscribe(func(v int) { calls = append(calls, "second") })
	o.Subscribe(func(v int) { calls = append(calls, "third") })

	o.Set(1)
	assert.Equal(t, []string{"first", "second", "third"}, calls)

	calls = nil
	unsub()
	unsub()
	o.Update(func(v int) int { return v + 1 })
	assert.Equal(t, []string{"first", "third"}, calls)
	assert.Equal(t, 2, o.Get())
}

func TestObservable_SubscribeDoesNotReplay(t *testing.T) {
	o := NewObservable("initial")
	called := false
	o.Subscribe(func(string) { called = true })
	assert.False(t, called)
}

// =============================================================================
// CHAT STATE TESTS
// =============================================================================

func TestNew_DefaultAPIURL(t *testing.T) {
	s := New(nil, nil, nil, "")
	assert.Equal(t, "http://localhost:11434", s.APIURL.Get())

	s.SetAPIURL("  http://gpu:11434 ")
	assert.Equal(t, "http://gpu:11434", s.APIURL.Get())
	s.SetAPIURL("")
	assert.Equal(t, DefaultAPIURL, s.APIURL.Get())
}

func TestRefresh_LoadsChats(t *testing.T) {
	ctx := context.Background()
	s, store := newTestState(t, nil)

	_, err := store.Create(ctx, "a", "m")
	require.NoError(t, err)
	_, err = store.Create(ctx, "b", "m")
	require.NoError(t, err)

	var loading []bool
	s.Loading.Subscribe(func(v bool) { loading = append(loading, v) })

	s.Refresh(ctx)

	assert.Len(t, s.Chats.Get(), 2)
	assert.Equal(t, []bool{true, false}, loading)
	_, set := s.Errors().Message()
	assert.False(t, set)
}

func TestRefresh_KeepsPreviousOnFailure(t *testing.T) {
	ctx := context.Background()
	s, store := newTestState(t, nil)
	_, err := store.Create(ctx, "a", "m")
	require.NoError(t, err)
	s.Refresh(ctx)
	require.Len(t, s.Chats.Get(), 1)

	s.store = &failingStore{ChatStore: store, fail: map[string]error{"list": storage.ErrStorageRead}}
	s.Refresh(ctx)

	assert.Len(t, s.Chats.Get(), 1, "previous collection should be kept")
	assert.False(t, s.Loading.Get())
	msg, set := s.Errors().Message()
	assert.True(t, set)
	assert.Contains(t, msg, "Failed to load chats")
}

func TestCreate_AddsToCollection(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t, nil)

	notified := 0
	s.Chats.Subscribe(func([]storage.ChatRecord) { notified++ })

	rec, err := s.Create(ctx, "new chat", "llama3.2")
	require.NoError(t, err)

	chats := s.Chats.Get()
	require.Len(t, chats, 1)
	assert.Equal(t, rec.ID, chats[0].ID)
	assert.Equal(t, 1, notified)
}

func TestCreate_FailureSignalsAndReturns(t *testing.T) {
	ctx := context.Background()
	s, store := newTestState(t, nil)
	s.store = &failingStore{ChatStore: store, fail: map[string]error{"create": storage.ErrStorageWrite}}

	_, err := s.Create(ctx, "x", "m")
	require.ErrorIs(t, err, storage.ErrStorageWrite)
	assert.Empty(t, s.Chats.Get(), "collection must not change on failure")

	msg, set := s.Errors().Message()
	assert.True(t, set)
	assert.Contains(t, msg, "Failed to create chat")
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s, store := newTestState(t, nil)

	a, _ := s.Create(ctx, "a", "m")
	b, _ := s.Create(ctx, "b", "m")
	before := s.Chats.Get()

	require.NoError(t, s.Remove(ctx, a.ID))
	chats := s.Chats.Get()
	require.Len(t, chats, 1)
	assert.Equal(t, b.ID, chats[0].ID)
	assert.Len(t, before, 2, "earlier snapshots must not be mutated")

	require.NoError(t, s.Remove(ctx, "missing"))

	s.store = &failingStore{ChatStore: store, fail: map[string]error{"remove": storage.ErrStorageWrite}}
	require.Error(t, s.Remove(ctx, b.ID))
	assert.Len(t, s.Chats.Get(), 1)
}

func TestAppendMessage_UsesStoredRecord(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t, nil)
	rec, _ := s.Create(ctx, "a", "m")

	updated, err := s.AppendMessage(ctx, rec.ID, storage.Message{Role: storage.RoleUser, Content: "hi"})
	require.NoError(t, err)

	cached, ok := s.Find(rec.ID)
	require.True(t, ok)
	assert.Len(t, cached.Messages, 1)
	assert.True(t, cached.ModifiedAt.Equal(updated.ModifiedAt))
}

func TestAppendMessage_NotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t, nil)

	_, err := s.AppendMessage(ctx, "nope", storage.Message{Role: storage.RoleUser, Content: "hi"})
	require.True(t, storage.IsNotFound(err))
	assert.Empty(t, s.Chats.Get())

	_, set := s.Errors().Message()
	assert.True(t, set)
}

func TestSorted(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestState(t, nil)
	old, _ := s.Create(ctx, "old", "m")
	_, _ = s.Create(ctx, "new", "m")
	time.Sleep(2 * time.Millisecond)
	_, err := s.AppendMessage(ctx, old.ID, storage.Message{Role: storage.RoleUser, Content: "bump"})
	require.NoError(t, err)

	sorted := s.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, old.ID, sorted[0].ID)
	assert.Equal(t, "old", s.Chats.Get()[0].Title, "Chats keeps store order")
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSend_StoresBothMessages(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{reply: []string{"Hel", "lo"}}
	s, _ := newTestState(t, llm)
	rec, _ := s.Create(ctx, "chat", "llama3.2")

	var chunks []string
	updated, err := s.Send(ctx, rec.ID, "", "hi", func(acc string) { chunks = append(chunks, acc) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "Hello"}, chunks)
	assert.Equal(t, "llama3.2", llm.model)
	require.Len(t, llm.lastSeen, 1)
	assert.Equal(t, "hi", llm.lastSeen[0].Content)

	require.Len(t, updated.Messages, 2)
	assert.Equal(t, storage.RoleAssistant, updated.Messages[1].Role)
	assert.Equal(t, "Hello", updated.Messages[1].Content)

	cached, _ := s.Find(rec.ID)
	assert.Len(t, cached.Messages, 2)
}

func TestSend_ModelOverrideAndMissing(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{reply: []string{"ok"}}
	s, _ := newTestState(t, llm)

	rec, _ := s.Create(ctx, "legacy", "")
	_, err := s.Send(ctx, rec.ID, "", "hi", nil)
	require.ErrorIs(t, err, ErrNoModel)

	_, err = s.Send(ctx, rec.ID, "mistral", "hi again", nil)
	require.NoError(t, err)
	assert.Equal(t, "mistral", llm.model)
}

func TestSend_CompletionFailure(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{err: ollama.ErrRequestFailed}
	s, _ := newTestState(t, llm)
	rec, _ := s.Create(ctx, "chat", "m")

	got, err := s.Send(ctx, rec.ID, "", "hi", nil)
	require.True(t, errors.Is(err, ollama.ErrRequestFailed))
	assert.Len(t, got.Messages, 1, "user message stays stored")

	msg, set := s.Errors().Message()
	assert.True(t, set)
	assert.Contains(t, msg, "Failed to get response")
}

func TestSend_SerializedPerChat(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{reply: []string{"r"}, delay: 10 * time.Millisecond}
	s, _ := newTestState(t, llm)
	rec, _ := s.Create(ctx, "chat", "m")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Send(ctx, rec.ID, "", "q", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cached, _ := s.Find(rec.ID)
	require.Len(t, cached.Messages, 10, "no append may be lost")
	for i, m := range cached.Messages {
		want := storage.RoleUser
		if i%2 == 1 {
			want = storage.RoleAssistant
		}
		assert.Equal(t, want, m.Role, "message %d", i)
	}
	assert.Empty(t, s.locks, "per-chat locks are released")
}

// =============================================================================
// MODEL LIST TESTS
// =============================================================================

func TestFetchAvailableModels(t *testing.T) {
	llm := &fakeLLM{models: []string{"a", "b"}}
	s, _ := newTestState(t, llm)

	assert.Equal(t, []string{"a", "b"}, s.FetchAvailableModels(context.Background()))
	assert.Equal(t, []string{"a", "b"}, s.Models.Get())
}

func TestFetchAvailableModels_DegradesToEmpty(t *testing.T) {
	llm := &fakeLLM{models: []string{"a"}}
	s, _ := newTestState(t, llm)
	s.FetchAvailableModels(context.Background())

	llm.listErr = ollama.ErrNotRunning
	got := s.FetchAvailableModels(context.Background())

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, s.Models.Get())
	msg, set := s.Errors().Message()
	assert.True(t, set)
	assert.Contains(t, msg, "Failed to fetch models")
}
