// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session keeps per-document conversation state with bounded
// retention and read-triggered expiry.
package session

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jeranaias/readerai/internal/host"
	"github.com/jeranaias/readerai/internal/model"
)

// =============================================================================
// SESSION CONTEXT
// =============================================================================

// Context is the conversation state for one document.
type Context struct {
	ItemID string

	// Item is the host's handle for the document. It may be nil.
	Item host.Item

	Messages  []model.ChatMessage
	Summary   string
	KeyPoints []string

	LastUpdated time.Time
}

// clone returns a copy whose slices can be modified freely.
func (c *Context) clone() Context {
	out := *c
	out.Messages = make([]model.ChatMessage, len(c.Messages))
	for i, msg := range c.Messages {
		out.Messages[i] = msg.Clone()
	}
	if c.KeyPoints != nil {
		out.KeyPoints = append([]string(nil), c.KeyPoints...)
	}
	return out
}

// =============================================================================
// STORE
// =============================================================================

// Config holds configuration for the store.
type Config struct {
	// Timeout is how long a session may sit untouched before a read evicts
	// it (default: 1 hour).
	Timeout time.Duration

	// MaxMessages caps each session's message list (default: 50).
	MaxMessages int
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:     time.Hour,
		MaxMessages: 50,
	}
}

// Store maps document identifiers to their conversation state.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Context

	timeout     time.Duration
	maxMessages int

	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates an empty store. Non-positive config values fall back to
// the defaults.
func NewStore(cfg Config, opts ...Option) *Store {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}

	s := &Store{
		sessions:    make(map[string]*Context),
		timeout:     cfg.Timeout,
		maxMessages: cfg.MaxMessages,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// CreateSession starts a fresh conversation for itemID, replacing any
// existing one.
func (s *Store) CreateSession(itemID string, item host.Item) Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := &Context{
		ItemID:      itemID,
		Item:        item,
		Messages:    []model.ChatMessage{},
		LastUpdated: s.now(),
	}
	s.sessions[itemID] = ctx
	return ctx.clone()
}

// GetSession returns a snapshot of the session for itemID. A session idle for
// longer than the timeout is evicted and reported as missing.
func (s *Store) GetSession(itemID string) (Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.sessions[itemID]
	if !ok {
		return Context{}, false
	}
	if s.now().Sub(ctx.LastUpdated) > s.timeout {
		delete(s.sessions, itemID)
		s.logger.Debug("session expired", "item_id", itemID, "messages", len(ctx.Messages))
		return Context{}, false
	}
	return ctx.clone(), true
}

// RemoveSession drops the session for itemID, typically when its view closes.
func (s *Store) RemoveSession(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, itemID)
}

// ClearAll drops every session.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*Context)
}

// Len returns the number of sessions held, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// =============================================================================
// MUTATIONS
// =============================================================================

// lookup returns the live session or logs that it is missing. Mutations only
// check presence; expiry is decided on read.
func (s *Store) lookup(op, itemID string) (*Context, bool) {
	ctx, ok := s.sessions[itemID]
	if !ok {
		s.logger.Warn("no session for item", "op", op, "item_id", itemID)
	}
	return ctx, ok
}

// AddMessage appends msg and enforces the message cap.
func (s *Store) AddMessage(itemID string, msg model.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.lookup("add_message", itemID)
	if !ok {
		return
	}
	ctx.Messages = append(ctx.Messages, msg.Clone())
	ctx.LastUpdated = s.now()

	if len(ctx.Messages) > s.maxMessages {
		before := len(ctx.Messages)
		ctx.Messages = capMessages(ctx.Messages, s.maxMessages)
		s.logger.Debug("session trimmed", "item_id", itemID,
			"dropped", before-len(ctx.Messages), "kept", len(ctx.Messages))
	}
}

// UpdateSummary caches a summary for the session.
func (s *Store) UpdateSummary(itemID, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx, ok := s.lookup("update_summary", itemID); ok {
		ctx.Summary = summary
		ctx.LastUpdated = s.now()
	}
}

// UpdateKeyPoints caches the key points for the session.
func (s *Store) UpdateKeyPoints(itemID string, points []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx, ok := s.lookup("update_key_points", itemID); ok {
		ctx.KeyPoints = append([]string(nil), points...)
		ctx.LastUpdated = s.now()
	}
}

// capMessages keeps every system message plus the newest non-system ones so
// that the result holds at most limit messages. Conversation order is kept.
// When system messages alone exceed limit, all of them survive.
func capMessages(msgs []model.ChatMessage, limit int) []model.ChatMessage {
	systemCount := 0
	for _, msg := range msgs {
		if msg.IsSystem() {
			systemCount++
		}
	}

	keepOthers := limit - systemCount
	if keepOthers < 0 {
		keepOthers = 0
	}
	skipOthers := len(msgs) - systemCount - keepOthers

	kept := make([]model.ChatMessage, 0, systemCount+keepOthers)
	for _, msg := range msgs {
		if !msg.IsSystem() && skipOthers > 0 {
			skipOthers--
			continue
		}
		kept = append(kept, msg)
	}
	return kept
}

// =============================================================================
// STATUS
// =============================================================================

// Status summarises one session for listings.
type Status struct {
	ItemID        string
	Messages      int
	HasSummary    bool
	IdleTime      time.Duration
	RemainingTime time.Duration
}

// List returns the status of every live session. Expired sessions are
// evicted on the way.
func (s *Store) List() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]Status, 0, len(s.sessions))
	for id, ctx := range s.sessions {
		idle := now.Sub(ctx.LastUpdated)
		if idle > s.timeout {
			delete(s.sessions, id)
			continue
		}
		out = append(out, Status{
			ItemID:        id,
			Messages:      len(ctx.Messages),
			HasSummary:    ctx.Summary != "",
			IdleTime:      idle,
			RemainingTime: s.timeout - idle,
		})
	}
	return out
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return strconv.Itoa(mins) + "m"
	}
	return strconv.Itoa(mins) + "m " + strconv.Itoa(secs) + "s"
}
