// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - error types and exit codes shared by all commands.
//
// Handlers always return errors; main decides how to show them.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/readerai/internal/assistant"
	"github.com/jeranaias/readerai/internal/config"
	"github.com/jeranaias/readerai/internal/export"
	"github.com/jeranaias/readerai/internal/host"
	"github.com/jeranaias/readerai/internal/llm"
	"github.com/jeranaias/readerai/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
	ExitInterrupted   = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a command failure with context.
type CommandError struct {
	Command string
	Action  string
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError is bad user input.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
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

// NotFoundError is a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewCommandError creates a CommandError.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// NewValidationErrorWithExample creates a ValidationError with a usage example.
func NewValidationErrorWithExample(field, value, reason, example string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason, Example: example}
}

// ErrMissingArgument reports a required argument that was not given.
func ErrMissingArgument(argName, usage string) error {
	return NewValidationErrorWithExample(argName, "", "required argument missing", usage)
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON in JSON mode.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		displayErrorJSON(w, err)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
	if hint := errorHint(err); hint != "" {
		fmt.Fprintln(w, DimStyle.Render(hint))
	}
}

func displayErrorJSON(w io.Writer, err error) {
	output := map[string]any{
		"success":   false,
		"error":     err.Error(),
		"exit_code": GetExitCode(err),
	}

	var (
		cmdErr      *CommandError
		validateErr *ValidationError
		notFoundErr *NotFoundError
	)
	switch {
	case errors.As(err, &validateErr):
		output["error_type"] = "validation_error"
		output["field"] = validateErr.Field
		output["reason"] = validateErr.Reason
	case errors.As(err, &notFoundErr):
		output["error_type"] = "not_found_error"
		output["resource"] = notFoundErr.Resource
		output["id"] = notFoundErr.ID
	case errors.As(err, &cmdErr):
		output["error_type"] = "command_error"
		output["command"] = cmdErr.Command
		output["action"] = cmdErr.Action
	default:
		output["error_type"] = "generic_error"
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(output)
}

// errorHint suggests a fix for the common setup mistakes.
func errorHint(err error) string {
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		return "Set a key with: readerai config set llm.api_key <key>  (or READERAI_API_KEY)"
	case errors.Is(err, llm.ErrInvalidEndpoint):
		return "Check llm.api_endpoint with: readerai config get llm.api_endpoint"
	case errors.Is(err, llm.ErrUnauthorized):
		return "The endpoint rejected the API key."
	case errors.Is(err, config.ErrNoSecretKey), errors.Is(err, config.ErrSealedValue):
		return "Sealed credentials need the same READERAI_PASSPHRASE or secret.key they were sealed with."
	}
	return ""
}

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		validateErr *ValidationError
		notFoundErr *NotFoundError
		cfgErrs     config.ValidateErrors
	)
	switch {
	case errors.As(err, &validateErr), errors.Is(err, assistant.ErrEmptyInput), errors.Is(err, export.ErrUnknownFormat):
		return ExitUsageError
	case errors.As(err, &notFoundErr), errors.Is(err, host.ErrNotFound), errors.Is(err, storage.ErrTranscriptNotFound),
		errors.Is(err, llm.ErrEndpointNotFound):
		return ExitNotFoundError
	case errors.As(err, &cfgErrs), errors.Is(err, llm.ErrNotConfigured), errors.Is(err, llm.ErrInvalidEndpoint),
		errors.Is(err, config.ErrNoSecretKey), errors.Is(err, config.ErrSealedValue):
		return ExitConfigError
	case errors.Is(err, llm.ErrUnauthorized):
		return ExitAuthError
	case errors.Is(err, llm.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, llm.ErrNetwork):
		return ExitNetworkError
	case errors.Is(err, llm.ErrCanceled), errors.Is(err, context.Canceled):
		return ExitInterrupted
	}
	return ExitGeneralError
}
