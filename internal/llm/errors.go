// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrInvalidEndpoint indicates the endpoint is not an absolute http(s) URL.
	ErrInvalidEndpoint = errors.New("invalid API endpoint")

	// ErrNoResponse indicates a response without any choices.
	ErrNoResponse = errors.New("no response from model")

	// ErrMalformedResponse indicates a response body that is not valid JSON.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrTimeout indicates the request ran past its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrNetwork indicates the endpoint could not be reached.
	ErrNetwork = errors.New("network error")

	// ErrCanceled indicates the caller gave up on the request.
	ErrCanceled = errors.New("request canceled")

	// ErrUnauthorized matches an APIError with status 401 or 403.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrEndpointNotFound matches an APIError with status 404.
	ErrEndpointNotFound = errors.New("endpoint not found")
)

// APIError is a non-2xx response from the endpoint.
type APIError struct {
	Status  int
	Reason  string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (HTTP %d %s): %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("API error (HTTP %d %s)", e.Status, e.Reason)
}

// Is lets callers test status classes with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrEndpointNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// apiErrorResponse is the OpenAI-style error envelope.
type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

const maxErrorBody = 200

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status, Reason: http.StatusText(status)}

	var envelope apiErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		e.Message = envelope.Error.Message
		return e
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	e.Message = msg
	return e
}

// transportError normalizes a failed round trip. parent is the caller's
// context; attempt is the per-attempt context carrying the timeout.
func transportError(parent, attempt context.Context, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, parent.Err())
	}
	if errors.Is(attempt.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

// isRetryable reports whether another attempt could succeed. Cancellation
// and rejected credentials are final.
func isRetryable(err error) bool {
	return !errors.Is(err, ErrCanceled) && !errors.Is(err, ErrUnauthorized)
}
