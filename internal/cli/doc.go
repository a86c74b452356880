// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and execution for ollapa.
//
// Run parses the arguments, loads the configuration, sets up logging and
// dispatches to a command handler. Handlers return errors and never print
// them; Run displays the error once and maps it to an exit code.
//
// # Key Types
//
//   - Command: Enumeration of the available commands
//   - Args: Global flags plus the command's own arguments
//   - ArgParser: Flag and positional access for one command
//   - App: The wired store, client, chat state and error signal
//
// # Commands Overview
//
//   - chat: Interactive REPL (the default)
//   - tui: Full-screen view with a chat list
//   - ask: One-shot streamed question
//   - list, show, new, rm: Chat management
//   - models, status: Server inspection
//   - config: View or edit the config file
//   - export, backup, restore: Markdown/JSON export and zstd archives
//
// list, show, new, models and status accept --json for scripting.
package cli
