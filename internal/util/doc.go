// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across ollapa.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe string truncation with ellipsis
//   - TruncateWidth, PadWidth, StringWidth: terminal-cell aware layout
//   - TitleFrom: chat title from the first message
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//   - ExpandHome: "~" expansion for configured paths
//
// # Usage
//
//	title := util.TitleFrom(firstMessage, util.DefaultTitleLength)
//	err := util.AtomicWriteFile(path, data, 0644)
package util
