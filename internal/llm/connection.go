// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/readerai/internal/model"
)

// =============================================================================
// CONNECTION TEST
// =============================================================================

// ConnectionCategory classifies the outcome of TestConnection.
type ConnectionCategory string

const (
	ConnectionOK            ConnectionCategory = "ok"
	ConnectionNotConfigured ConnectionCategory = "not_configured"
	ConnectionUnauthorized  ConnectionCategory = "unauthorized"
	ConnectionNotFound      ConnectionCategory = "not_found"
	ConnectionTimeout       ConnectionCategory = "timeout"
	ConnectionNetwork       ConnectionCategory = "network"
	ConnectionFailed        ConnectionCategory = "failed"
)

// ConnectionResult is the user-facing outcome of TestConnection.
type ConnectionResult struct {
	Success  bool               `json:"success"`
	Category ConnectionCategory `json:"category"`
	Message  string             `json:"message"`
	Latency  time.Duration      `json:"latency"`
}

// connectionProbeTokens keeps the test answer tiny.
const connectionProbeTokens = 5

// TestConnection sends one small request bounded by ConnectionTestTimeout,
// independent of the configured timeout. It does not retry and never fails;
// problems are reported in the result.
func (c *Client) TestConnection(ctx context.Context) ConnectionResult {
	if !c.IsConfigured() {
		return ConnectionResult{Category: ConnectionNotConfigured, Message: "API key not configured"}
	}

	req := c.newChatRequest([]model.ChatMessage{{Role: model.RoleUser, Content: "Hi"}}, false)
	req.MaxTokens = connectionProbeTokens
	body, err := json.Marshal(req)
	if err != nil {
		return ConnectionResult{Category: ConnectionFailed, Message: err.Error()}
	}

	start := time.Now()
	_, err = c.do(ctx, body, ConnectionTestTimeout)
	latency := time.Since(start)
	if err != nil {
		c.logger.Info("connection test failed", "error", err)
		res := classifyConnectionError(err)
		res.Latency = latency
		return res
	}

	return ConnectionResult{
		Success:  true,
		Category: ConnectionOK,
		Message:  fmt.Sprintf("Connected to %s using %s", c.opts.APIEndpoint, c.opts.Model),
		Latency:  latency,
	}
}

func classifyConnectionError(err error) ConnectionResult {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return ConnectionResult{Category: ConnectionUnauthorized, Message: "Invalid or unauthorized API key"}
	case errors.Is(err, ErrEndpointNotFound):
		return ConnectionResult{Category: ConnectionNotFound, Message: "API endpoint not found; check the endpoint URL"}
	case errors.Is(err, ErrTimeout):
		return ConnectionResult{Category: ConnectionTimeout, Message: "Connection timed out"}
	case errors.Is(err, ErrNetwork):
		return ConnectionResult{Category: ConnectionNetwork, Message: "Network error; check your connection"}
	default:
		return ConnectionResult{Category: ConnectionFailed, Message: "Connection failed: " + err.Error()}
	}
}
