// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// The client covers the two routes a chat front end needs: /api/tags for the
// list of installed models and /api/chat for streamed completions. Streamed
// responses are newline-delimited JSON; StreamReader reassembles lines split
// across network reads and aborts on the first malformed record.
//
// # Key Types
//
//   - Client: HTTP client; its base URL can be changed at runtime
//   - Message: Chat message with role and content
//   - StreamReader: Line-oriented decoder for /api/chat streams
//   - ClientError: Typed error with ErrorType for handling
//
// # Usage
//
//	client := ollama.NewClient()
//	names, err := client.ListModels(ctx)
//	text, err := client.Complete(ctx, names[0], []ollama.Message{
//	    ollama.NewUserMessage("Hello"),
//	}, func(acc string) {
//	    fmt.Print("\r" + acc)
//	})
package ollama
