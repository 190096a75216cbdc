// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm is a client for OpenAI-compatible chat completion endpoints,
// with buffered and streaming request paths.
package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/readerai/internal/model"
)

// Configuration constants.
const (
	// DefaultEndpoint is the base URL used when none is configured.
	DefaultEndpoint = "https://api.openai.com/v1"

	// DefaultModel is the model used when none is configured.
	DefaultModel = "gpt-4o-mini"

	// DefaultTemperature is the sampling temperature used by config defaults.
	DefaultTemperature = 0.7

	// DefaultMaxTokens is the completion limit used when none is configured.
	DefaultMaxTokens = 2000

	// DefaultTimeout bounds one buffered request attempt.
	DefaultTimeout = 60 * time.Second

	// ConnectionTestTimeout bounds the TestConnection request.
	ConnectionTestTimeout = 10 * time.Second

	// MaxAttempts is the number of tries a buffered request gets.
	MaxAttempts = 3

	// RetryDelay is multiplied by the retry number: 1s, then 2s.
	RetryDelay = time.Second

	// MaxTemperature is the upper clamp for Temperature.
	MaxTemperature = 2.0

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024
)

// sharedTransport pools connections for every client. Timeouts are driven by
// contexts, not by http.Client.Timeout, so the same transport serves streams.
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
	TLSClientConfig: &tls.Config{
		MinVersion: tls.VersionTLS12,
	},
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Client.
type Options struct {
	// APIKey is sent as a bearer token. It is never logged.
	APIKey string

	// APIEndpoint is the base URL; "/chat/completions" is appended.
	APIEndpoint string

	Model       string
	Temperature float64
	MaxTokens   int

	// Timeout bounds each buffered request attempt.
	Timeout time.Duration

	// EnableStreaming selects the streaming path in ChatAuto.
	EnableStreaming bool
}

// withDefaults fills empty fields and clamps the temperature.
func (o Options) withDefaults() Options {
	o.APIKey = strings.TrimSpace(o.APIKey)
	o.APIEndpoint = strings.TrimSuffix(strings.TrimSpace(o.APIEndpoint), "/")
	if o.APIEndpoint == "" {
		o.APIEndpoint = DefaultEndpoint
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	o.Temperature = ClampTemperature(o.Temperature)
	return o
}

// ClampTemperature limits t to [0, 2].
func ClampTemperature(t float64) float64 {
	switch {
	case math.IsNaN(t):
		return DefaultTemperature
	case t < 0:
		return 0
	case t > MaxTemperature:
		return MaxTemperature
	}
	return t
}

// ValidateEndpoint checks that raw is an absolute http or https URL.
func ValidateEndpoint(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidEndpoint, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidEndpoint, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%w %q: missing host", ErrInvalidEndpoint, raw)
	}
	return nil
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to one chat completion endpoint. Buffered requests may run
// concurrently; at most one stream is in flight at a time.
type Client struct {
	opts       Options
	httpClient *http.Client
	logger     *slog.Logger

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	active *streamHandle
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client. The endpoint is validated here so that a bad
// URL never reaches the network.
func NewClient(opts Options, options ...ClientOption) (*Client, error) {
	opts = opts.withDefaults()
	if err := ValidateEndpoint(opts.APIEndpoint); err != nil {
		return nil, err
	}

	c := &Client{
		opts:       opts,
		httpClient: &http.Client{Transport: sharedTransport},
		logger:     slog.Default(),
		sleep:      sleepContext,
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger.Debug("chat client created",
		"endpoint", opts.APIEndpoint, "model", opts.Model, "api_key", c.APIKeyMasked())
	return c, nil
}

// Options returns the effective options.
func (c *Client) Options() Options {
	return c.opts
}

// IsConfigured returns true if the client has an API key.
func (c *Client) IsConfigured() bool {
	return c.opts.APIKey != ""
}

// APIKeyMasked describes the key without exposing any part of it.
func (c *Client) APIKeyMasked() string {
	if c.opts.APIKey == "" {
		return "[not set]"
	}
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(c.opts.APIKey), c.KeyFingerprint())
}

// KeyFingerprint returns the first 8 hex chars of the key's SHA-256.
func (c *Client) KeyFingerprint() string {
	if c.opts.APIKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.opts.APIKey))
	return hex.EncodeToString(h[:4])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
}

// Usage is the token accounting reported by the endpoint.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of Chat or ChatAuto.
type Response struct {
	Content string

	// Usage is nil when the endpoint did not report it.
	Usage *Usage

	// Aborted is set by ChatAuto when the stream was stopped early; Content
	// then holds what had arrived.
	Aborted bool
}

// newChatRequest reduces messages to role/content pairs.
func (c *Client) newChatRequest(messages []model.ChatMessage, stream bool) chatRequest {
	wire := make([]wireMessage, len(messages))
	for i, msg := range messages {
		wire[i] = wireMessage{Role: string(msg.Role), Content: msg.Content}
	}
	return chatRequest{
		Model:       c.opts.Model,
		Messages:    wire,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		Stream:      stream,
	}
}

func (c *Client) completionsURL() string {
	return c.opts.APIEndpoint + "/chat/completions"
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "readerai/1.0")
}

// readResponse reads the response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("%w: response exceeded maximum size of %d bytes", ErrMalformedResponse, MaxResponseSize)
	}
	return body, nil
}

// =============================================================================
// BUFFERED REQUESTS
// =============================================================================

// Chat sends messages and waits for the full answer. Failures are retried up
// to MaxAttempts times with a linear backoff, except cancellation and
// rejected credentials.
func (c *Client) Chat(ctx context.Context, messages []model.ChatMessage) (*Response, error) {
	body, err := json.Marshal(c.newChatRequest(messages, false))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := RetryDelay * time.Duration(attempt-1)
			c.logger.Warn("retrying chat request",
				"attempt", attempt, "delay", delay, "error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrCanceled, err)
			}
		}

		resp, err := c.do(ctx, body, c.opts.Timeout)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("chat request failed after %d attempts: %w", MaxAttempts, lastErr)
}

// do performs one buffered round trip bounded by timeout.
func (c *Client) do(ctx context.Context, body []byte, timeout time.Duration) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.completionsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	c.logger.Debug("chat request", "path", req.URL.Path, "model", c.opts.Model, "key", c.KeyFingerprint())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, attemptCtx, timeout, err)
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		if attemptCtx.Err() != nil {
			return nil, transportError(ctx, attemptCtx, timeout, err)
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.logger.Debug("chat response", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, data)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, ErrNoResponse
	}

	return &Response{
		Content: parsed.Choices[0].Message.Content,
		Usage:   parsed.Usage,
	}, nil
}

// ChatAuto streams when streaming is enabled and callbacks are given,
// otherwise it falls back to Chat. Either way the answer comes back as a
// Response.
func (c *Client) ChatAuto(ctx context.Context, messages []model.ChatMessage, cb *StreamCallbacks) (*Response, error) {
	if !c.opts.EnableStreaming || cb == nil {
		return c.Chat(ctx, messages)
	}

	var (
		partial   strings.Builder
		full      string
		completed bool
	)
	wrapped := StreamCallbacks{
		OnStart: cb.OnStart,
		OnChunk: func(delta string) {
			partial.WriteString(delta)
			if cb.OnChunk != nil {
				cb.OnChunk(delta)
			}
		},
		OnComplete: func(text string) {
			full, completed = text, true
			if cb.OnComplete != nil {
				cb.OnComplete(text)
			}
		},
		OnError: cb.OnError,
	}

	if err := c.StreamChat(ctx, messages, wrapped); err != nil {
		return nil, err
	}
	if !completed {
		return &Response{Content: partial.String(), Aborted: true}, nil
	}
	return &Response{Content: full}, nil
}
