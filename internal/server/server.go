// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/readerai/internal/assistant"
	"github.com/jeranaias/readerai/internal/config"
	"github.com/jeranaias/readerai/internal/host"
	"github.com/jeranaias/readerai/internal/llm"
	"github.com/jeranaias/readerai/internal/logging"
	"github.com/jeranaias/readerai/internal/markdown"
	"github.com/jeranaias/readerai/internal/model"
	"github.com/jeranaias/readerai/internal/session"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize bounds every request body (1MB).
	MaxRequestBodySize = 1 << 20

	// MaxTextLength bounds the text fields of a request, in bytes.
	MaxTextLength = 200_000

	// DefaultHeartbeat is the comment interval on idle event streams.
	DefaultHeartbeat = 15 * time.Second
)

var errInvalidState = errors.New("invalid state")

// ============================================================================
// SERVER STATS
// ============================================================================

// Stats counts handled operations.
type Stats struct {
	Requests     atomic.Int64
	Asks         atomic.Int64
	Translations atomic.Int64
	Summaries    atomic.Int64
	KeyPoints    atomic.Int64
	NotesSaved   atomic.Int64
	Aborts       atomic.Int64
	Failures     atomic.Int64
	StartTime    time.Time
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Requests      int64 `json:"requests"`
	Asks          int64 `json:"asks"`
	Translations  int64 `json:"translations"`
	Summaries     int64 `json:"summaries"`
	KeyPoints     int64 `json:"key_points"`
	NotesSaved    int64 `json:"notes_saved"`
	Aborts        int64 `json:"aborts"`
	Failures      int64 `json:"failures"`
	Sessions      int   `json:"sessions"`
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Clients is the number of clients the rate limiter tracks.
	Clients int `json:"clients,omitempty"`
}

func (st *Stats) snapshot() StatsResponse {
	return StatsResponse{
		Requests:      st.Requests.Load(),
		Asks:          st.Asks.Load(),
		Translations:  st.Translations.Load(),
		Summaries:     st.Summaries.Load(),
		KeyPoints:     st.KeyPoints.Load(),
		NotesSaved:    st.NotesSaved.Load(),
		Aborts:        st.Aborts.Load(),
		Failures:      st.Failures.Load(),
		UptimeSeconds: int64(time.Since(st.StartTime).Seconds()),
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the local HTTP bridge between a host UI and the assistant.
type Server struct {
	addr      string
	mux       *http.ServeMux
	handler   http.Handler
	assistant *assistant.Assistant

	auth    *AuthConfig
	cors    *CORSConfig
	limiter *RateLimiter

	logger    *slog.Logger
	stats     *Stats
	version   string
	heartbeat time.Duration

	mu         sync.Mutex
	httpServer *http.Server
	done       chan struct{}
	closeOnce  sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithHeartbeat sets the keep-alive interval of event streams.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}

// New creates a server for a. Authentication is on when cfg.Token is set;
// rate limiting is on when cfg.RateLimit is positive.
func New(a *assistant.Assistant, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		addr:      cfg.Addr,
		mux:       http.NewServeMux(),
		assistant: a,
		auth:      &AuthConfig{BearerToken: cfg.Token, Public: []string{"/health"}},
		cors:      DefaultCORSConfig(cfg.AllowedOrigins),
		logger:    slog.Default(),
		stats:     &Stats{StartTime: time.Now()},
		version:   "dev",
		heartbeat: DefaultHeartbeat,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	s.setupRoutes()
	s.handler = s.buildHandler()
	return s
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) buildHandler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		LoggingMiddleware(s.logger),
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		CORSMiddleware(s.cors),
		AuthMiddleware(s.auth, s.logger),
	}
	if s.limiter != nil {
		middlewares = append(middlewares, RateLimitMiddleware(s.limiter, s.logger))
	}
	counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.stats.Requests.Add(1)
		s.mux.ServeHTTP(w, r)
	})
	return Chain(middlewares...)(counted)
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /stats", s.handleStats)

	s.mux.HandleFunc("POST /v1/render", s.handleRender)
	s.mux.HandleFunc("POST /v1/connection/test", s.handleConnectionTest)
	s.mux.HandleFunc("GET /v1/events", s.handleEvents)
	s.mux.HandleFunc("GET /v1/state", s.handleGetState)
	s.mux.HandleFunc("PUT /v1/state", s.handlePutState)

	s.mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /v1/sessions/{id}", s.handleOpenSession)
	s.mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleCloseSession)
	s.mux.HandleFunc("POST /v1/sessions/{id}/ask", s.handleAsk)
	s.mux.HandleFunc("POST /v1/sessions/{id}/abort", s.handleAbort)
	s.mux.HandleFunc("POST /v1/sessions/{id}/translate", s.handleTranslate)
	s.mux.HandleFunc("POST /v1/sessions/{id}/summarize", s.handleSummarize)
	s.mux.HandleFunc("POST /v1/sessions/{id}/keypoints", s.handleKeyPoints)
	s.mux.HandleFunc("POST /v1/sessions/{id}/note", s.handleNote)
}

// ============================================================================
// REQUEST AND RESPONSE TYPES
// ============================================================================

// RenderRequest is the body of POST /v1/render. Sanitizing cannot be
// turned off through the bridge.
type RenderRequest struct {
	Text   string `json:"text"`
	Tables *bool  `json:"tables,omitempty"`
	Links  *bool  `json:"links,omitempty"`
}

// AskRequest is the body of POST /v1/sessions/{id}/ask.
type AskRequest struct {
	Question  string `json:"question"`
	Selection string `json:"selection,omitempty"`
	Page      *int   `json:"page,omitempty"`

	// Stream selects an SSE response; so does Accept: text/event-stream.
	Stream bool `json:"stream,omitempty"`
}

// TextRequest is the body of the translate, summarize and key point routes.
type TextRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// NoteRequest is the body of POST /v1/sessions/{id}/note.
type NoteRequest struct {
	Heading string `json:"heading,omitempty"`
	Content string `json:"content"`

	// Mode is "append" (default) or "create".
	Mode string `json:"mode,omitempty"`
}

// KeyPointsResponse is returned by the key point route.
type KeyPointsResponse struct {
	Points []string          `json:"points"`
	Answer *assistant.Answer `json:"answer"`
}

// SessionView is the JSON form of a session.
type SessionView struct {
	ItemID      string              `json:"item_id"`
	Title       string              `json:"title,omitempty"`
	Messages    []model.ChatMessage `json:"messages"`
	Summary     string              `json:"summary,omitempty"`
	KeyPoints   []string            `json:"key_points,omitempty"`
	LastUpdated time.Time           `json:"last_updated"`
}

func newSessionView(sc session.Context) SessionView {
	v := SessionView{
		ItemID:      sc.ItemID,
		Messages:    sc.Messages,
		Summary:     sc.Summary,
		KeyPoints:   sc.KeyPoints,
		LastUpdated: sc.LastUpdated,
	}
	if v.Messages == nil {
		v.Messages = []model.ChatMessage{}
	}
	if sc.Item != nil {
		v.Title = sc.Item.Title()
	}
	return v
}

// SessionStatus is one entry of GET /v1/sessions.
type SessionStatus struct {
	ItemID           string `json:"item_id"`
	Messages         int    `json:"messages"`
	HasSummary       bool   `json:"has_summary"`
	IdleSeconds      int64  `json:"idle_seconds"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	Streaming        bool   `json:"streaming"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Model     string `json:"model"`
	Streaming bool   `json:"streaming"`
	Sessions  int    `json:"sessions"`
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cfg := s.assistant.Config()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   s.version,
		Model:     cfg.LLM.Model,
		Streaming: cfg.LLM.EnableStreaming,
		Sessions:  s.assistant.Store().Len(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := s.stats.snapshot()
	resp.Sessions = s.assistant.Store().Len()
	if s.limiter != nil {
		resp.Clients = s.limiter.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.assistant.State())
}

// handlePutState merges the body into the stored state. Fields left out
// keep their value; a templates array replaces the whole list.
func (s *Server) handlePutState(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if !s.decode(w, r, &body) {
		return
	}
	err := s.assistant.UpdateState(func(st *config.State) error {
		if err := json.Unmarshal(body, st); err != nil {
			return fmt.Errorf("%w: %v", errInvalidState, err)
		}
		for _, t := range st.Templates {
			if t.Name == "" || t.Body == "" {
				return fmt.Errorf("%w: templates need a name and a body", errInvalidState)
			}
		}
		return nil
	})
	if errors.Is(err, errInvalidState) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.assistant.State())
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if !s.decode(w, r, &req) || !checkLength(w, req.Text) {
		return
	}
	if req.Tables == nil && req.Links == nil {
		writeJSON(w, http.StatusOK, map[string]string{"html": s.assistant.Render(req.Text)})
		return
	}
	opts := s.assistant.Config().RenderOptions()
	opts.Sanitize = true
	if req.Tables != nil {
		opts.Tables = *req.Tables
	}
	if req.Links != nil {
		opts.Links = *req.Links
	}
	writeJSON(w, http.StatusOK, map[string]string{"html": markdown.New(opts).Render(req.Text)})
}

func (s *Server) handleConnectionTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.assistant.TestConnection(r.Context()))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	statuses := s.assistant.Store().List()
	out := make([]SessionStatus, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, SessionStatus{
			ItemID:           st.ItemID,
			Messages:         st.Messages,
			HasSummary:       st.HasSummary,
			IdleSeconds:      int64(st.IdleTime.Seconds()),
			RemainingSeconds: int64(st.RemainingTime.Seconds()),
			Streaming:        s.assistant.IsStreaming(st.ItemID),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	sc, err := s.assistant.Open(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sc))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.assistant.Store().GetSession(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sc))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.assistant.Close(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	aborted := s.assistant.Abort(r.PathValue("id"))
	if aborted {
		s.stats.Aborts.Add(1)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"aborted": aborted})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !s.decode(w, r, &req) || !checkLength(w, req.Question, req.Selection) {
		return
	}
	itemID := r.PathValue("id")
	q := assistant.Question{Text: req.Question, Selection: req.Selection, Page: req.Page}
	s.stats.Asks.Add(1)

	if req.Stream || r.Header.Get("Accept") == "text/event-stream" {
		s.streamAsk(w, r, itemID, q)
		return
	}
	ans, err := s.assistant.Ask(r.Context(), itemID, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// streamAsk relays the item's events as SSE while the question runs, then
// ends the stream with the [DONE] sentinel.
func (s *Server) streamAsk(w http.ResponseWriter, r *http.Request, itemID string, q assistant.Question) {
	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	unsubscribe := s.assistant.Events().Subscribe(func(ev host.Event) {
		if ev.ItemID == itemID {
			_ = sse.event(string(ev.Kind), ev)
		}
	})
	defer unsubscribe()

	if _, err := s.assistant.Ask(r.Context(), itemID, q); err != nil {
		s.stats.Failures.Add(1)
		status, msg := errorStatus(err)
		logging.FromContext(r.Context(), s.logger).Warn("streamed ask failed", "item_id", itemID, "status", status, "error", err)
		_ = sse.event("error", map[string]any{"message": msg, "code": status})
	}
	_ = sse.done()
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !s.decode(w, r, &req) || !checkLength(w, req.Text) {
		return
	}
	s.stats.Translations.Add(1)
	ans, err := s.assistant.Translate(r.Context(), r.PathValue("id"), req.Text, req.Language)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !s.decode(w, r, &req) || !checkLength(w, req.Text) {
		return
	}
	s.stats.Summaries.Add(1)
	ans, err := s.assistant.Summarize(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleKeyPoints(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !s.decode(w, r, &req) || !checkLength(w, req.Text) {
		return
	}
	s.stats.KeyPoints.Add(1)
	points, ans, err := s.assistant.KeyPoints(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if points == nil {
		points = []string{}
	}
	writeJSON(w, http.StatusOK, KeyPointsResponse{Points: points, Answer: ans})
}

func (s *Server) handleNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !s.decode(w, r, &req) || !checkLength(w, req.Heading, req.Content) {
		return
	}
	mode := assistant.NoteAppend
	switch req.Mode {
	case "", "append":
	case "create":
		mode = assistant.NoteCreate
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid mode %q: must be append or create", req.Mode))
		return
	}
	if err := s.assistant.SaveToNote(r.Context(), r.PathValue("id"), req.Heading, req.Content, mode); err != nil {
		s.fail(w, r, err)
		return
	}
	s.stats.NotesSaved.Add(1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe listens on the configured address and serves until
// Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln. It returns nil after a clean Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("server started", "addr", ln.Addr().String(), "version", s.version,
		"auth", s.auth.enabled(), "rate_limit", s.limiter != nil)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends open event streams and stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("server shutting down")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// decode reads a JSON body, writing the error response itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", MaxRequestBodySize))
			return false
		}
		logging.FromContext(r.Context(), s.logger).Debug("invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request format")
		return false
	}
	return true
}

func checkLength(w http.ResponseWriter, fields ...string) bool {
	for _, f := range fields {
		if len(f) > MaxTextLength {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("text exceeds maximum length of %d bytes", MaxTextLength))
			return false
		}
	}
	return true
}

// fail logs err in full and answers with a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.stats.Failures.Add(1)
	status, msg := errorStatus(err)
	logging.FromContext(r.Context(), s.logger).Warn("request failed",
		"path", r.URL.Path, "status", status, "error", err)
	writeError(w, status, msg)
}

// errorStatus maps an error to an HTTP status and a message safe to show.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, assistant.ErrEmptyInput):
		return http.StatusBadRequest, "text must not be empty"
	case errors.Is(err, host.ErrNotFound):
		return http.StatusNotFound, "item not found"
	case errors.Is(err, assistant.ErrNoNotes):
		return http.StatusNotImplemented, "notes are not available"
	case errors.Is(err, llm.ErrNotConfigured):
		return http.StatusServiceUnavailable, "API key not configured"
	case errors.Is(err, llm.ErrInvalidEndpoint):
		return http.StatusServiceUnavailable, "API endpoint is invalid"
	case errors.Is(err, llm.ErrUnauthorized):
		return http.StatusBadGateway, "the model endpoint rejected the API key"
	case errors.Is(err, llm.ErrTimeout):
		return http.StatusGatewayTimeout, "the model endpoint timed out"
	case errors.Is(err, llm.ErrCanceled), errors.Is(err, context.Canceled):
		return 499, "request canceled"
	}
	return http.StatusBadGateway, "request to the model failed"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": {"message": ..., "code": ...}}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
