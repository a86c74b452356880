// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for ollapa commands.
//
// Handlers always return errors and never print them; Run displays the
// error once and maps it to an exit code.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/ollapa/internal/config"
	"github.com/jeranaias/ollapa/internal/ollama"
	"github.com/jeranaias/ollapa/internal/storage"
)

// =============================================================================
// EXIT CODES - Specific codes for different error categories
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the Ollama server could not be used
	ExitNetworkError = 5
	// ExitStorageError indicates the chat store could not be used
	ExitStorageError = 6
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted indicates the user canceled the operation
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES FOR STRUCTURED ERROR HANDLING
// =============================================================================

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// UsageError reports a malformed command line.
type UsageError struct {
	Message string
	Usage   string
}

func (e *UsageError) Error() string {
	if e.Usage != "" {
		return fmt.Sprintf("%s\nUsage: %s", e.Message, e.Usage)
	}
	return e.Message
}

// NewValidationError creates a new validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// NewUsageError creates a usage error with a usage line.
func NewUsageError(message, usage string) error {
	return &UsageError{Message: message, Usage: usage}
}

// ErrMissingArgument creates an error for a missing required argument.
func ErrMissingArgument(argName, usage string) error {
	return &UsageError{Message: fmt.Sprintf("missing required argument: %s", argName), Usage: usage}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err to w with the error style.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %v\n", RenderConditional(ErrorStyle, "[Error]"), err)
	if ollama.IsNotRunning(err) {
		fmt.Fprintf(w, "%s\n", RenderConditional(DimStyle, "Is Ollama running? Start it with: ollama serve"))
	}
}

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) || IsValidationError(err) {
		return ExitUsageError
	}

	var cfgErrs config.ValidateErrors
	if errors.As(err, &cfgErrs) {
		return ExitConfigError
	}

	switch {
	case storage.IsNotFound(err):
		return ExitNotFoundError
	case errors.Is(err, storage.ErrStorageUnavailable),
		errors.Is(err, storage.ErrStorageRead),
		errors.Is(err, storage.ErrStorageWrite):
		return ExitStorageError
	case ollama.IsCanceled(err), errors.Is(err, context.Canceled):
		return ExitInterrupted
	case ollama.IsTimeout(err):
		return ExitTimeoutError
	}

	var clientErr *ollama.ClientError
	if errors.As(err, &clientErr) {
		return ExitNetworkError
	}

	return ExitGeneralError
}
