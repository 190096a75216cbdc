// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jeranaias/readerai/internal/config"
	"github.com/jeranaias/readerai/internal/host"
	"github.com/jeranaias/readerai/internal/llm"
	"github.com/jeranaias/readerai/internal/markdown"
	"github.com/jeranaias/readerai/internal/model"
	"github.com/jeranaias/readerai/internal/session"
)

var (
	// ErrEmptyInput is returned when a task is given no text to work on.
	ErrEmptyInput = errors.New("empty input")

	// ErrNoNotes is returned by SaveToNote when the host has no note API.
	ErrNoNotes = errors.New("host has no note support")

	// ErrUnknownTemplate is returned when a prompt template is missing.
	ErrUnknownTemplate = errors.New("unknown prompt template")
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// ChatClient is the part of *llm.Client the assistant drives.
type ChatClient interface {
	Chat(ctx context.Context, messages []model.ChatMessage) (*llm.Response, error)
	ChatAuto(ctx context.Context, messages []model.ChatMessage, cb *llm.StreamCallbacks) (*llm.Response, error)
	AbortStream()
	IsStreaming() bool
	TestConnection(ctx context.Context) llm.ConnectionResult
}

// ClientFactory builds a client for one document.
type ClientFactory func(opts llm.Options) (ChatClient, error)

// LLMFactory returns a factory producing *llm.Client values that share
// logger and the given options.
func LLMFactory(options ...llm.ClientOption) ClientFactory {
	return func(opts llm.Options) (ChatClient, error) {
		return llm.NewClient(opts, options...)
	}
}

// TranscriptStore persists sessions across runs. *storage.DB implements it.
type TranscriptStore interface {
	SaveTranscript(ctx context.Context, sc session.Context) error
	LoadSession(ctx context.Context, itemID string) (session.Context, error)
}

// =============================================================================
// ASSISTANT
// =============================================================================

// Assistant connects the session store, one chat client per document, the
// Markdown renderer and the host. Progress is published on the emitter.
type Assistant struct {
	mu       sync.Mutex
	cfg      *config.Config
	state    config.State
	clients  map[string]ChatClient
	renderer *markdown.Renderer

	host        host.Host
	store       *session.Store
	emitter     *host.Emitter
	factory     ClientFactory
	transcripts TranscriptStore
	logger      *slog.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithHost sets the host capabilities (items, notes, preferences).
func WithHost(h host.Host) Option {
	return func(a *Assistant) { a.host = h }
}

// WithFactory replaces the client factory.
func WithFactory(f ClientFactory) Option {
	return func(a *Assistant) { a.factory = f }
}

// WithTranscripts enables saving sessions on close and restoring them on
// open.
func WithTranscripts(t TranscriptStore) Option {
	return func(a *Assistant) { a.transcripts = t }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assistant) { a.logger = logger }
}

// New creates an assistant from cfg. When the host has preferences, the
// individual preference values and any persisted state are layered on top
// of cfg.
func New(cfg *config.Config, opts ...Option) *Assistant {
	a := &Assistant{
		cfg:     cfg.Clone(),
		state:   config.DefaultState(),
		clients: make(map[string]ChatClient),
		emitter: host.NewEmitter(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.factory == nil {
		a.factory = LLMFactory(llm.WithLogger(a.logger))
	}

	if prefs, ok := a.host.Preferences(); ok {
		a.cfg.ApplyPreferences(prefs)
		if config.HasState(prefs) {
			state, err := config.LoadState(prefs)
			if err != nil {
				a.logger.Warn("ignoring persisted state", "error", err)
			} else {
				state.Apply(a.cfg)
			}
			a.state = state
		}
	}
	a.store = session.NewStore(a.cfg.SessionConfig(), session.WithLogger(a.logger))
	a.renderer = answerRenderer(a.cfg)
	return a
}

// Events returns the emitter UI layers subscribe to.
func (a *Assistant) Events() *host.Emitter {
	return a.emitter
}

// Store returns the session store.
func (a *Assistant) Store() *session.Store {
	return a.store
}

// Config returns a copy of the effective configuration.
func (a *Assistant) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Clone()
}

// State returns a copy of the persisted user state.
func (a *Assistant) State() config.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.state
	s.Templates = append([]config.PromptTemplate(nil), a.state.Templates...)
	return s
}

// answerRenderer renders model output. Answers reach notes and the bridge,
// so they are always sanitized whatever render.sanitize says.
func answerRenderer(cfg *config.Config) *markdown.Renderer {
	opts := cfg.RenderOptions()
	opts.Sanitize = true
	return markdown.New(opts)
}

// Render converts Markdown to HTML for display, always sanitized.
func (a *Assistant) Render(text string) string {
	a.mu.Lock()
	r := a.renderer
	a.mu.Unlock()
	return r.Render(text)
}

// Reconfigure swaps in a new configuration, for example after the config
// file changed. Idle clients are dropped so the next request picks up the
// new settings; streams in flight finish on their old client.
func (a *Assistant) Reconfigure(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := cfg.Clone()
	if prefs, ok := a.host.Preferences(); ok {
		next.ApplyPreferences(prefs)
		if config.HasState(prefs) {
			a.state.Apply(next)
		}
	}
	a.cfg = next
	a.renderer = answerRenderer(next)
	a.dropIdleClientsLocked()
	a.logger.Info("assistant reconfigured", "model", next.LLM.Model, "streaming", next.LLM.EnableStreaming)
}

// UpdateState edits the persisted state, saves it through the host
// preferences when available and applies the toggles. When edit fails
// nothing changes.
func (a *Assistant) UpdateState(edit func(*config.State) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := a.state
	next.Templates = append([]config.PromptTemplate(nil), a.state.Templates...)
	if err := edit(&next); err != nil {
		return err
	}
	next.Temperature = llm.ClampTemperature(next.Temperature)

	if prefs, ok := a.host.Preferences(); ok {
		if err := config.SaveState(prefs, next); err != nil {
			return err
		}
	}
	a.state = next
	next.Apply(a.cfg)
	a.dropIdleClientsLocked()
	return nil
}

func (a *Assistant) dropIdleClientsLocked() {
	for id, c := range a.clients {
		if !c.IsStreaming() {
			delete(a.clients, id)
		}
	}
}

// client returns the document's client, creating it on first use.
func (a *Assistant) client(itemID string) (ChatClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[itemID]; ok {
		return c, nil
	}
	c, err := a.factory(a.cfg.LLMOptions())
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	a.clients[itemID] = c
	return c, nil
}

// snapshot returns the settings a task needs under one lock.
func (a *Assistant) snapshot() (*config.Config, config.State, *markdown.Renderer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg, a.state, a.renderer
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Open returns the session for itemID, creating it if needed. A new session
// is restored from the transcript store when history is enabled, otherwise
// it starts with the ask template's system message.
func (a *Assistant) Open(ctx context.Context, itemID string) (session.Context, error) {
	if itemID == "" {
		return session.Context{}, fmt.Errorf("open: %w", ErrEmptyInput)
	}
	if sc, ok := a.store.GetSession(itemID); ok {
		return sc, nil
	}

	item, _ := a.host.LookupItem(ctx, itemID)
	cfg, state, _ := a.snapshot()

	if a.transcripts != nil && cfg.Session.EnableHistory {
		if sc, ok := a.restore(ctx, itemID, item); ok {
			return sc, nil
		}
	}

	a.store.CreateSession(itemID, item)
	if tmpl, ok := state.Template(config.TemplateAsk); ok && tmpl.System != "" {
		sys := config.PromptTemplate{Body: tmpl.System}.Expand(map[string]string{"title": titleOf(item, itemID)})
		a.store.AddMessage(itemID, model.NewSystemMessage(sys))
	}
	sc, _ := a.store.GetSession(itemID)
	a.logger.Debug("session opened", "item_id", itemID)
	return sc, nil
}

func (a *Assistant) restore(ctx context.Context, itemID string, item host.Item) (session.Context, bool) {
	saved, err := a.transcripts.LoadSession(ctx, itemID)
	if err != nil {
		return session.Context{}, false
	}
	if item == nil {
		item = saved.Item
	}

	a.store.CreateSession(itemID, item)
	for _, m := range saved.Messages {
		a.store.AddMessage(itemID, m)
	}
	if saved.Summary != "" {
		a.store.UpdateSummary(itemID, saved.Summary)
	}
	if len(saved.KeyPoints) > 0 {
		a.store.UpdateKeyPoints(itemID, saved.KeyPoints)
	}
	sc, ok := a.store.GetSession(itemID)
	a.logger.Debug("session restored", "item_id", itemID, "messages", len(sc.Messages))
	return sc, ok
}

// Close aborts any stream for itemID, saves the transcript when a store is
// configured and drops the session and its client.
func (a *Assistant) Close(ctx context.Context, itemID string) error {
	a.mu.Lock()
	c := a.clients[itemID]
	delete(a.clients, itemID)
	a.mu.Unlock()
	if c != nil {
		c.AbortStream()
	}

	var err error
	if sc, ok := a.store.GetSession(itemID); ok && a.transcripts != nil {
		if err = a.transcripts.SaveTranscript(ctx, sc); err != nil {
			err = fmt.Errorf("save transcript: %w", err)
		}
	}
	a.store.RemoveSession(itemID)
	return err
}

// Shutdown closes every open session.
func (a *Assistant) Shutdown(ctx context.Context) error {
	var errs []error
	for _, st := range a.store.List() {
		if err := a.Close(ctx, st.ItemID); err != nil {
			errs = append(errs, err)
		}
	}
	a.store.ClearAll()
	return errors.Join(errs...)
}

// Abort stops the stream in flight for itemID. It reports whether one was
// running.
func (a *Assistant) Abort(itemID string) bool {
	a.mu.Lock()
	c := a.clients[itemID]
	a.mu.Unlock()
	if c == nil || !c.IsStreaming() {
		return false
	}
	c.AbortStream()
	return true
}

// IsStreaming reports whether itemID has a stream in flight.
func (a *Assistant) IsStreaming(itemID string) bool {
	a.mu.Lock()
	c := a.clients[itemID]
	a.mu.Unlock()
	return c != nil && c.IsStreaming()
}

// TestConnection checks the endpoint with the current settings.
func (a *Assistant) TestConnection(ctx context.Context) llm.ConnectionResult {
	cfg, _, _ := a.snapshot()
	c, err := a.factory(cfg.LLMOptions())
	if err != nil {
		return llm.ConnectionResult{Category: llm.ConnectionFailed, Message: err.Error()}
	}
	return c.TestConnection(ctx)
}

func titleOf(item host.Item, fallback string) string {
	if item != nil && item.Title() != "" {
		return item.Title()
	}
	return fallback
}
