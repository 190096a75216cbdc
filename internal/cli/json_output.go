// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output for --json.
package cli

import (
	"encoding/json"
	"io"
	"time"
)

// JSONResponse is the envelope every successful --json command prints.
// Failures are written by DisplayError.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Command   string  `json:"command,omitempty"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Command:   command,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Write encodes the response to w, indented.
func (r *JSONResponse) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// OutputJSON writes data wrapped in a JSONResponse when jsonMode is set and
// calls text otherwise.
func OutputJSON(w io.Writer, jsonMode bool, command string, data any, text func() error) error {
	if jsonMode {
		return NewJSONResponse(command, data).Write(w)
	}
	return text()
}
