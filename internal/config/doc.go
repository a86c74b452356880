// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for ollapa.
//
// Settings live in a single TOML file with sensible defaults, environment
// variable overrides, and validation. The file is optional.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - Preferences: Writes runtime changes (API URL, default model) back to disk
//   - Watcher: Reloads the file when it is edited while ollapa runs
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (OLLAPA_*, NO_COLOR)
//   - $OLLAPA_HOME/config.toml or ~/.ollapa/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	url := cfg.APIURL
//	expiry := cfg.ErrorExpiry()
package config
