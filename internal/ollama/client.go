// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches any ClientError of the same type, so errors.Is works against
// the sentinels below.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeCanceled
	ErrTypeRequestFailed
	ErrTypeEmptyBody
	ErrTypeStreamDecode
	ErrTypeInvalidResponse
)

// String returns the error type name.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeNotRunning:
		return "not running"
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeCanceled:
		return "canceled"
	case ErrTypeRequestFailed:
		return "request failed"
	case ErrTypeEmptyBody:
		return "empty body"
	case ErrTypeStreamDecode:
		return "stream decode"
	case ErrTypeInvalidResponse:
		return "invalid response"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrNotRunning      = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout         = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrCanceled        = &ClientError{Type: ErrTypeCanceled, Message: "request canceled"}
	ErrRequestFailed   = &ClientError{Type: ErrTypeRequestFailed, Message: "request failed"}
	ErrEmptyBody       = &ClientError{Type: ErrTypeEmptyBody, Message: "response has no body"}
	ErrStreamDecode    = &ClientError{Type: ErrTypeStreamDecode, Message: "malformed stream record"}
	ErrInvalidResponse = &ClientError{Type: ErrTypeInvalidResponse, Message: "invalid response"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// DefaultBaseURL is the address of a stock local Ollama install.
const DefaultBaseURL = "http://localhost:11434"

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434)
	BaseURL string

	// Timeout for non-streaming requests (default: 30s).
	// Streaming requests are bounded only by their context.
	Timeout time.Duration

	// HTTPClient overrides the transport used for all requests.
	HTTPClient *http.Client
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: DefaultBaseURL,
		Timeout: 30 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
//
// The Client is thread-safe for concurrent use. The base URL may be changed
// at any time with SetBaseURL; requests already in flight keep the old one.
//
// Example:
//
//	client := ollama.NewClient()
//	text, err := client.Complete(ctx, "llama3.2", messages, func(acc string) {
//	    fmt.Print("\r" + acc)
//	})
type Client struct {
	mu           sync.RWMutex
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	c := &Client{baseURL: normalizeBaseURL(config.BaseURL)}
	if config.HTTPClient != nil {
		c.httpClient = config.HTTPClient
		c.streamClient = config.HTTPClient
	} else {
		c.httpClient = &http.Client{Timeout: config.Timeout}
		// SECURITY: TLS not required - Ollama usually runs locally over HTTP
		c.streamClient = &http.Client{}
	}
	return c
}

// BaseURL returns the API base URL currently in use.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL changes the API base URL. An empty URL resets to the default.
func (c *Client) SetBaseURL(url string) {
	if url == "" {
		url = DefaultBaseURL
	}
	c.mu.Lock()
	c.baseURL = normalizeBaseURL(url)
	c.mu.Unlock()
}

func normalizeBaseURL(url string) string {
	return strings.TrimRight(strings.TrimSpace(url), "/")
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and returns its version.
func (c *Client) CheckRunning(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL()+"/api/version", nil)
	if err != nil {
		return "", &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError(ctx, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", &ClientError{
			Type:    ErrTypeRequestFailed,
			Message: "unexpected status from Ollama: " + resp.Status,
		}
	}

	var v VersionResponse
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return v.Version, nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// Tags retrieves all locally available models from /api/tags.
func (c *Client) Tags(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL()+"/api/tags", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, &ClientError{
			Type:    ErrTypeRequestFailed,
			Message: "failed to list models: " + resp.Status,
		}
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}

	return result.Models, nil
}

// ListModels returns the sorted names of all available models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	models, err := c.Tags(ctx)
	if err != nil {
		log.Printf("OLLAMA | list models failed base=%s err=%v", c.BaseURL(), err)
		return nil, err
	}

	names := make([]string, 0, len(models))
	for _, m := range models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// Complete streams a chat completion for messages and returns the full text.
// onChunk, when non-nil, is called synchronously with the accumulated text
// after every fragment, in arrival order. No retries are attempted; the call
// is aborted by cancelling ctx.
func (c *Client) Complete(ctx context.Context, model string, messages []Message, onChunk ChunkFunc) (string, error) {
	if messages == nil {
		messages = []Message{}
	}
	reqBody := ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	base := c.BaseURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	start := time.Now()
	resp, err := c.streamClient.Do(req)
	if err != nil {
		cerr := transportError(ctx, err)
		log.Printf("OLLAMA | chat request failed base=%s model=%s err=%v", base, model, cerr)
		return "", cerr
	}
	if resp.Body == nil {
		return "", ErrEmptyBody
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cerr := statusError(resp)
		log.Printf("OLLAMA | chat request rejected model=%s status=%d", model, resp.StatusCode)
		return "", cerr
	}
	if resp.Body == http.NoBody || resp.ContentLength == 0 {
		log.Printf("OLLAMA | chat response has no body model=%s", model)
		return "", ErrEmptyBody
	}

	reader := NewStreamReader(resp.Body)
	text, err := reader.Process(ctx, onChunk)
	if err != nil {
		log.Printf("OLLAMA | stream aborted model=%s fragments=%d err=%v", model, reader.Fragments(), err)
		return "", err
	}

	log.Printf("OLLAMA | stream complete model=%s fragments=%d chars=%d took=%s",
		model, reader.Fragments(), len(text), time.Since(start).Round(time.Millisecond))
	return text, nil
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// statusError builds a RequestFailed error, preferring the API's error body.
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var ollamaErr OllamaError
	if err := json.Unmarshal(data, &ollamaErr); err == nil && ollamaErr.Error != "" {
		return &ClientError{
			Type:    ErrTypeRequestFailed,
			Message: "chat request failed: " + resp.Status + ": " + ollamaErr.Error,
		}
	}
	return &ClientError{
		Type:    ErrTypeRequestFailed,
		Message: "chat request failed: " + resp.Status,
	}
}

// transportError classifies a failed http.Client.Do call.
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return contextError(ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	return &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not reachable", Cause: err}
}

// IsNotRunning checks if an error indicates Ollama is not reachable.
func IsNotRunning(err error) bool {
	return hasType(err, ErrTypeNotRunning)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return hasType(err, ErrTypeTimeout)
}

// IsCanceled checks if the request was canceled by its context.
func IsCanceled(err error) bool {
	return hasType(err, ErrTypeCanceled)
}

// IsRequestFailed checks if the server rejected the request.
func IsRequestFailed(err error) bool {
	return hasType(err, ErrTypeRequestFailed)
}

// IsStreamDecode checks if a stream record could not be decoded.
func IsStreamDecode(err error) bool {
	return hasType(err, ErrTypeStreamDecode)
}

func hasType(err error, t ErrorType) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == t
	}
	return false
}

// Helper to drain response body
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(r, 64<<10))
	r.Close()
}
