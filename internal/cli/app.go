// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wiring of config, store, client and chat state.

package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/jeranaias/ollapa/internal/config"
	"github.com/jeranaias/ollapa/internal/errsignal"
	"github.com/jeranaias/ollapa/internal/ollama"
	"github.com/jeranaias/ollapa/internal/state"
	"github.com/jeranaias/ollapa/internal/storage"
)

// App holds everything a command needs.
type App struct {
	Config     *config.Config
	ConfigPath string

	Store  *storage.Store
	Client *ollama.Client
	Errors *errsignal.Signal
	State  *state.ChatState
	Prefs  *config.Preferences

	Out    io.Writer
	ErrOut io.Writer

	markdown *markdownRenderer

	mu           sync.Mutex
	defaultModel string
	fileAPIURL   string // api_url as last read from or written to the file
	unsubs       []func()
}

// NewApp builds the application from cfg. The chat store is opened lazily
// by the first command that needs it.
func NewApp(cfg *config.Config, configPath string, out, errOut io.Writer) (*App, error) {
	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store := storage.New(filepath.Join(dataDir, storage.DatabaseName))
	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: cfg.APIURL})
	errs := errsignal.New(cfg.ErrorExpiry())

	a := &App{
		Config:       cfg,
		ConfigPath:   configPath,
		Store:        store,
		Client:       client,
		Errors:       errs,
		State:        state.New(store, client, errs, cfg.APIURL),
		Prefs:        config.NewPreferences(configPath),
		Out:          out,
		ErrOut:       errOut,
		markdown:     newMarkdownRenderer(cfg.UI.RenderMarkdown && IsStdoutTTY()),
		defaultModel: cfg.DefaultModel,
	}
	if onDisk, err := config.LoadFile(configPath); err == nil {
		a.fileAPIURL = onDisk.APIURL
	}
	a.unsubs = append(a.unsubs, a.State.APIURL.Subscribe(a.onAPIURL))
	return a, nil
}

// Close releases subscriptions and the store.
func (a *App) Close() error {
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
	a.Errors.Clear()
	return a.Store.Close()
}

// onAPIURL points the client at a new server and persists the choice.
func (a *App) onAPIURL(url string) {
	a.Client.SetBaseURL(url)
	if err := a.Prefs.SetAPIURL(url); err != nil {
		log.Printf("CONFIG | save api_url failed err=%v", err)
		a.Errors.Set(fmt.Sprintf("Failed to save API URL: %v", err))
		return
	}
	a.mu.Lock()
	a.fileAPIURL = url
	a.mu.Unlock()
}

// applyConfig takes settings from a reloaded config file. The API URL is
// taken only when the file's own api_url changed, so an environment or
// --api override never replaces a choice made at runtime.
func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	a.defaultModel = cfg.DefaultModel
	a.mu.Unlock()

	onDisk, err := config.LoadFile(a.ConfigPath)
	if err != nil {
		log.Printf("CONFIG | reread failed err=%v", err)
		return
	}

	a.mu.Lock()
	changed := onDisk.APIURL != a.fileAPIURL
	a.fileAPIURL = onDisk.APIURL
	a.mu.Unlock()

	if changed && onDisk.APIURL != a.State.APIURL.Get() {
		log.Printf("CONFIG | api_url changed on disk url=%s", onDisk.APIURL)
		a.State.SetAPIURL(onDisk.APIURL)
	}
}

// DefaultModel returns the configured default model.
func (a *App) DefaultModel() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.defaultModel
}

// chooseModel picks the model for a request: the explicit choice, then the
// chat's model, then the configured default, then the first model the
// server reports.
func (a *App) chooseModel(ctx context.Context, explicit, chatModel string) string {
	for _, m := range []string{explicit, chatModel, a.DefaultModel()} {
		if m != "" {
			return m
		}
	}
	models := a.State.Models.Get()
	if len(models) == 0 {
		models = a.State.FetchAvailableModels(ctx)
	}
	if len(models) > 0 {
		return models[0]
	}
	return ""
}

// resolveChat finds a chat by id or unique id prefix.
func (a *App) resolveChat(ctx context.Context, ref string) (storage.ChatRecord, error) {
	id, err := a.Store.Resolve(ctx, ref)
	if err != nil {
		return storage.ChatRecord{}, err
	}
	if rec, ok := a.State.Find(id); ok {
		return rec, nil
	}
	return a.Store.Get(ctx, id)
}

// =============================================================================
// LOGGING
// =============================================================================

// SetupLogging routes the standard logger to the configured log file, and
// also to stderr when verbose. The returned function closes the file.
func SetupLogging(cfg *config.Config) (func(), error) {
	path := cfg.LogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		log.SetOutput(discardUnlessVerbose(cfg))
		return func() {}, fmt.Errorf("log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		log.SetOutput(discardUnlessVerbose(cfg))
		return func() {}, fmt.Errorf("open log file: %w", err)
	}

	if cfg.Log.Verbose {
		log.SetOutput(io.MultiWriter(f, os.Stderr))
	} else {
		log.SetOutput(f)
	}
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("CONFIG | ollapa %s started api_url=%s data_dir=%s", Version, cfg.APIURL, cfg.DataDir())

	return func() {
		log.SetOutput(os.Stderr)
		f.Close()
	}, nil
}

func discardUnlessVerbose(cfg *config.Config) io.Writer {
	if cfg.Log.Verbose {
		return os.Stderr
	}
	return io.Discard
}
