// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorKind categorizes storage errors for handling.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindUnavailable
	KindRead
	KindWrite
	KindNotFound
	KindAmbiguous
)

// String returns a short description of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "storage unavailable"
	case KindRead:
		return "read failed"
	case KindWrite:
		return "write failed"
	case KindNotFound:
		return "chat not found"
	case KindAmbiguous:
		return "id prefix matches more than one chat"
	default:
		return "unknown error"
	}
}

// Error is returned by every Store operation that fails.
// Use errors.Is against the sentinels below to check the kind.
type Error struct {
	Kind ErrorKind
	Op   string // "open", "list", "create", "remove", "append", ...
	ID   string // chat id, when the operation targets one
	Err  error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("storage")
	if e.Op != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Op)
	}
	if e.ID != "" {
		sb.WriteString(" ")
		sb.WriteString(e.ID)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Kind.String())
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors for easy checking.
var (
	ErrStorageUnavailable = &Error{Kind: KindUnavailable}
	ErrStorageRead        = &Error{Kind: KindRead}
	ErrStorageWrite       = &Error{Kind: KindWrite}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrAmbiguous          = &Error{Kind: KindAmbiguous}
)

// IsNotFound reports whether err means the chat does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable reports whether err means the store could not be opened.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
