// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultTitleLength is the rune limit for titles derived from a message.
const DefaultTitleLength = 60

// TitleFrom derives a one-line chat title from free text: NFC-normalized,
// whitespace collapsed, truncated to maxRunes. Empty input yields
// "New chat".
func TitleFrom(text string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultTitleLength
	}
	title := strings.Join(strings.Fields(norm.NFC.String(text)), " ")
	if title == "" {
		return "New chat"
	}
	return TruncateRunes(title, maxRunes)
}
