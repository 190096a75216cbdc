// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/readerai/internal/assistant"
	"github.com/jeranaias/readerai/internal/config"
	"github.com/jeranaias/readerai/internal/host"
	"github.com/jeranaias/readerai/internal/llm"
	"github.com/jeranaias/readerai/internal/logging"
	"github.com/jeranaias/readerai/internal/storage"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

// upstream is a fake chat completion endpoint.
type upstream struct {
	*httptest.Server
	reply  atomic.Value // string
	status atomic.Int32
	calls  atomic.Int32
}

func newUpstream(t *testing.T, reply string) *upstream {
	t.Helper()
	u := &upstream{}
	u.reply.Store(reply)
	u.status.Store(http.StatusOK)
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		if code := int(u.status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			fmt.Fprint(w, `{"error":{"message":"nope"}}`)
			return
		}
		var req struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		text := u.reply.Load().(string)

		if !req.Stream {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": text}}},
				"usage":   map[string]int{"total_tokens": 3},
			})
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range strings.SplitAfter(text, " ") {
			chunk, _ := json.Marshal(map[string]any{
				"choices": []any{map[string]any{"delta": map[string]string{"content": part}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			w.(http.Flusher).Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(u.Close)
	return u
}

type harness struct {
	srv       *Server
	assistant *assistant.Assistant
	db        *storage.DB
	upstream  *upstream
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	up := newUpstream(t, "Hello reader.")

	cfg := config.Default()
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.APIEndpoint = up.URL
	cfg.Render.ThrottleMs = 0
	cfg.Server.RateLimit = 0
	if mutate != nil {
		mutate(cfg)
	}

	db, err := storage.Open(storage.MemoryPath, storage.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	a := assistant.New(cfg,
		assistant.WithHost(host.New(db, db)),
		assistant.WithTranscripts(db),
		assistant.WithLogger(logging.Discard()),
		assistant.WithFactory(assistant.LLMFactory(llm.WithLogger(logging.Discard()))),
	)
	srv := New(a, cfg.Server, WithLogger(logging.Discard()), WithVersion("test"))
	return &harness{srv: srv, assistant: a, db: db, upstream: up}
}

func (h *harness) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

// =============================================================================
// HEALTH, RENDER AND MIDDLEWARE
// =============================================================================

func TestHandleHealth(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, "GET", "/health", "")
	expectStatus(t, rec, http.StatusOK)

	var resp HealthResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "ok" || resp.Version != "test" || resp.Model != llm.DefaultModel {
		t.Errorf("unexpected health response: %+v", resp)
	}
	if _, err := uuid.Parse(rec.Header().Get(RequestIDHeader)); err != nil {
		t.Errorf("missing request id: %v", err)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers not set")
	}
}

func TestRequestIDIsReused(t *testing.T) {
	h := newHarness(t, nil)
	id := uuid.NewString()
	rec := h.do(t, "GET", "/health", "", RequestIDHeader, id)
	if got := rec.Header().Get(RequestIDHeader); got != id {
		t.Errorf("request id = %q, want %q", got, id)
	}

	rec = h.do(t, "GET", "/health", "", RequestIDHeader, "not a uuid\r\n")
	if got := rec.Header().Get(RequestIDHeader); got == "not a uuid\r\n" {
		t.Error("invalid request id was echoed")
	}
}

func TestHandleRender(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, "POST", "/v1/render", `{"text":"**hi** <b>"}`)
	expectStatus(t, rec, http.StatusOK)
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["html"] != "<p><strong>hi</strong> &lt;b&gt;</p>" {
		t.Errorf("html = %q", resp["html"])
	}

	rec = h.do(t, "POST", "/v1/render", `{"text":"| a |\n|---|\n| 1 |","tables":false}`)
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &resp)
	if strings.Contains(resp["html"], "<table>") {
		t.Error("tables should be disabled for this request")
	}
}

func TestHandleRender_BadRequests(t *testing.T) {
	h := newHarness(t, nil)

	expectStatus(t, h.do(t, "POST", "/v1/render", `{not json`), http.StatusBadRequest)

	big := fmt.Sprintf(`{"text":%q}`, strings.Repeat("a", MaxRequestBodySize))
	expectStatus(t, h.do(t, "POST", "/v1/render", big), http.StatusRequestEntityTooLarge)

	long := fmt.Sprintf(`{"text":%q}`, strings.Repeat("a", MaxTextLength+1))
	expectStatus(t, h.do(t, "POST", "/v1/render", long), http.StatusBadRequest)

	expectStatus(t, h.do(t, "GET", "/v1/render", ""), http.StatusMethodNotAllowed)
}

func TestAuthMiddleware(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Server.Token = "secret" })
	body := `{"text":"x"}`

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tt.header == "" {
				rec = h.do(t, "POST", "/v1/render", body)
			} else {
				rec = h.do(t, "POST", "/v1/render", body, "Authorization", tt.header)
			}
			expectStatus(t, rec, tt.want)
		})
	}

	expectStatus(t, h.do(t, "GET", "/health", ""), http.StatusOK)
}

func TestValidateBearerToken(t *testing.T) {
	if !ValidateBearerToken("abc", "abc") {
		t.Error("equal tokens should match")
	}
	for _, pair := range [][2]string{{"", ""}, {"abc", ""}, {"", "abc"}, {"abc", "abd"}} {
		if ValidateBearerToken(pair[0], pair[1]) {
			t.Errorf("ValidateBearerToken(%q, %q) = true", pair[0], pair[1])
		}
	}
}

func TestCORSMiddleware(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Server.AllowedOrigins = []string{"http://localhost:3000", "*.example.com"}
		c.Server.Token = "secret"
	})

	rec := h.do(t, "OPTIONS", "/v1/render", "", "Origin", "http://localhost:3000")
	expectStatus(t, rec, http.StatusNoContent)
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("allowed origin not echoed on preflight")
	}

	rec = h.do(t, "GET", "/health", "", "Origin", "https://app.example.com")
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Error("wildcard subdomain not allowed")
	}

	rec = h.do(t, "GET", "/health", "", "Origin", "https://evil.test")
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin should get no CORS headers")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Server.RateLimit = 0.001
		c.Server.RateBurst = 2
	})

	expectStatus(t, h.do(t, "GET", "/health", ""), http.StatusOK)
	expectStatus(t, h.do(t, "GET", "/health", ""), http.StatusOK)
	rec := h.do(t, "GET", "/health", "")
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestRateLimiter_PerClientAndSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || rl.Allow("a") {
		t.Fatal("burst of one expected for client a")
	}
	if !rl.Allow("b") {
		t.Fatal("clients must not share buckets")
	}
	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Error("token should refill after one second")
	}

	now = now.Add(limiterIdleTTL + time.Minute)
	rl.Allow("c")
	if got := rl.Clients(); got != 1 {
		t.Errorf("clients after sweep = %d, want 1", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := Chain(RecoveryMiddleware(logging.Discard()))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	expectStatus(t, rec, http.StatusInternalServerError)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name, remote, xff, xri, want string
	}{
		{"direct", "203.0.113.5:1234", "", "", "203.0.113.5"},
		{"untrusted proxy ignored", "203.0.113.5:1234", "198.51.100.1", "", "203.0.113.5"},
		{"trusted proxy xff", "127.0.0.1:1234", "198.51.100.1, 10.0.0.1", "", "198.51.100.1"},
		{"trusted proxy real ip", "10.1.2.3:1234", "", "198.51.100.2", "198.51.100.2"},
		{"invalid header", "127.0.0.1:1234", "<script>", "", "127.0.0.1"},
		{"no port", "198.51.100.9", "", "", "198.51.100.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.db.EnsureItem(ctx, "doc-1", "A Book"); err != nil {
		t.Fatal(err)
	}

	rec := h.do(t, "POST", "/v1/sessions/doc-1", "")
	expectStatus(t, rec, http.StatusOK)
	var view SessionView
	decodeBody(t, rec, &view)
	if view.ItemID != "doc-1" || view.Title != "A Book" || len(view.Messages) != 1 {
		t.Fatalf("unexpected session: %+v", view)
	}

	rec = h.do(t, "POST", "/v1/sessions/doc-1/ask", `{"question":"Who wrote it?"}`)
	expectStatus(t, rec, http.StatusOK)

	rec = h.do(t, "GET", "/v1/sessions", "")
	expectStatus(t, rec, http.StatusOK)
	var list []SessionStatus
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].ItemID != "doc-1" || list[0].Messages != 3 {
		t.Fatalf("unexpected list: %+v", list)
	}

	expectStatus(t, h.do(t, "DELETE", "/v1/sessions/doc-1", ""), http.StatusNoContent)
	expectStatus(t, h.do(t, "GET", "/v1/sessions/doc-1", ""), http.StatusNotFound)

	saved, err := h.db.LoadTranscript(ctx, "doc-1")
	if err != nil {
		t.Fatalf("transcript not saved: %v", err)
	}
	if len(saved.Messages) != 3 {
		t.Errorf("saved %d messages, want 3", len(saved.Messages))
	}

	rec = h.do(t, "POST", "/v1/sessions/doc-1", "")
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &view)
	if len(view.Messages) != 3 {
		t.Errorf("restored %d messages, want 3", len(view.Messages))
	}
}

func TestHandleAsk_JSON(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, "POST", "/v1/sessions/doc-1/ask", `{"question":"hi","page":3}`)
	expectStatus(t, rec, http.StatusOK)
	var ans assistant.Answer
	decodeBody(t, rec, &ans)
	if ans.Text != "Hello reader." || ans.HTML != "<p>Hello reader.</p>" {
		t.Errorf("unexpected answer: %+v", ans)
	}

	rec = h.do(t, "GET", "/v1/sessions/doc-1", "")
	var view SessionView
	decodeBody(t, rec, &view)
	user := view.Messages[1]
	if user.PageNumber == nil || *user.PageNumber != 3 {
		t.Error("page number not recorded")
	}
}

func TestHandleAsk_SSE(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, "POST", "/v1/sessions/doc-1/ask", `{"question":"hi","stream":true}`)
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"event: started\n", "event: delta\n", "event: completed\n", `"html":"\u003cp\u003eHello reader.\u003c/p\u003e"`} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q:\n%s", want, body)
		}
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Error("stream must end with [DONE]")
	}
	if strings.Index(body, "event: started") > strings.Index(body, "event: delta") {
		t.Error("started must precede deltas")
	}
}

func TestHandleAsk_SSEUpstreamError(t *testing.T) {
	h := newHarness(t, nil)
	h.upstream.status.Store(http.StatusUnauthorized)

	rec := h.do(t, "POST", "/v1/sessions/doc-1/ask", `{"question":"hi"}`, "Accept", "text/event-stream")
	body := rec.Body.String()
	if !strings.Contains(body, "event: failed\n") || !strings.Contains(body, "event: error\n") {
		t.Errorf("expected failure events:\n%s", body)
	}
	if !strings.Contains(body, `"code":502`) {
		t.Errorf("expected mapped status in error event:\n%s", body)
	}
	if got := h.upstream.calls.Load(); got != 1 {
		t.Errorf("unauthorized must not be retried; %d calls", got)
	}
}

func TestHandleAsk_Errors(t *testing.T) {
	h := newHarness(t, nil)
	expectStatus(t, h.do(t, "POST", "/v1/sessions/doc-1/ask", `{"question":"  "}`), http.StatusBadRequest)

	h.upstream.status.Store(http.StatusForbidden)
	rec := h.do(t, "POST", "/v1/sessions/doc-1/ask", `{"question":"hi"}`)
	expectStatus(t, rec, http.StatusBadGateway)
	if strings.Contains(rec.Body.String(), "nope") {
		t.Error("upstream error details must not leak")
	}
}

func TestHandleAsk_NotConfigured(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.LLM.APIKey = "" })
	expectStatus(t, h.do(t, "POST", "/v1/sessions/doc-1/ask", `{"question":"hi"}`), http.StatusServiceUnavailable)
}

func TestOneShotHandlers(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, "POST", "/v1/sessions/doc-1/translate", `{"text":"Hallo","language":"en"}`)
	expectStatus(t, rec, http.StatusOK)

	h.upstream.reply.Store("A summary.")
	rec = h.do(t, "POST", "/v1/sessions/doc-1/summarize", `{"text":"long text"}`)
	expectStatus(t, rec, http.StatusOK)

	h.upstream.reply.Store("- first\n- second")
	rec = h.do(t, "POST", "/v1/sessions/doc-1/keypoints", `{"text":"long text"}`)
	expectStatus(t, rec, http.StatusOK)
	var kp KeyPointsResponse
	decodeBody(t, rec, &kp)
	if len(kp.Points) != 2 || kp.Points[0] != "first" {
		t.Errorf("points = %v", kp.Points)
	}

	rec = h.do(t, "GET", "/v1/sessions/doc-1", "")
	var view SessionView
	decodeBody(t, rec, &view)
	if view.Summary != "A summary." || len(view.KeyPoints) != 2 {
		t.Errorf("results not cached on the session: %+v", view)
	}

	expectStatus(t, h.do(t, "POST", "/v1/sessions/doc-1/summarize", `{"text":""}`), http.StatusBadRequest)

	rec = h.do(t, "GET", "/stats", "")
	var stats StatsResponse
	decodeBody(t, rec, &stats)
	if stats.Translations != 1 || stats.Summaries != 2 || stats.KeyPoints != 1 || stats.Failures != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestStats_RateLimitedClients(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Server.RateLimit = 100
		c.Server.RateBurst = 100
	})
	expectStatus(t, h.do(t, "GET", "/health", ""), http.StatusOK)

	var stats StatsResponse
	decodeBody(t, h.do(t, "GET", "/stats", ""), &stats)
	if stats.Clients != 1 {
		t.Errorf("clients = %d, want 1", stats.Clients)
	}
}

// =============================================================================
// STATE
// =============================================================================

func TestHandleState(t *testing.T) {
	h := newHarness(t, nil)

	var st config.State
	decodeBody(t, h.do(t, "GET", "/v1/state", ""), &st)
	templates := len(st.Templates)
	if templates == 0 {
		t.Fatal("default state has no templates")
	}

	rec := h.do(t, "PUT", "/v1/state", `{"temperature":0.3,"targetLanguage":"fr"}`)
	expectStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &st)
	if st.Temperature != 0.3 || st.TargetLanguage != "fr" || len(st.Templates) != templates {
		t.Errorf("partial update not merged: %+v", st)
	}

	stored, err := config.LoadState(h.db)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Temperature != 0.3 {
		t.Errorf("stored temperature = %v, want 0.3", stored.Temperature)
	}

	for _, body := range []string{
		`{"templates":[{"name":"ask"}]}`,
		`{"temperature":"hot"}`,
		`not json`,
	} {
		expectStatus(t, h.do(t, "PUT", "/v1/state", body), http.StatusBadRequest)
	}
	if got := h.assistant.State(); got.Temperature != 0.3 || len(got.Templates) != templates {
		t.Errorf("rejected update changed the state: %+v", got)
	}
}

func TestHandleNote(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.db.EnsureItem(ctx, "doc-1", "Doc"); err != nil {
		t.Fatal(err)
	}

	expectStatus(t, h.do(t, "POST", "/v1/sessions/doc-1/note", `{"heading":"Q","content":"**A**"}`), http.StatusOK)
	expectStatus(t, h.do(t, "POST", "/v1/sessions/doc-1/note", `{"content":"more"}`), http.StatusOK)
	expectStatus(t, h.do(t, "POST", "/v1/sessions/doc-1/note", `{"content":"x","mode":"replace"}`), http.StatusBadRequest)
	expectStatus(t, h.do(t, "POST", "/v1/sessions/missing/note", `{"content":"x"}`), http.StatusNotFound)

	notes, err := h.db.ListNotes(ctx, "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || !strings.Contains(notes[0].Text(), "<strong>A</strong>") || !strings.Contains(notes[0].Text(), "more") {
		t.Errorf("unexpected notes: %d", len(notes))
	}
}

func TestHandleAbort_Idle(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, "POST", "/v1/sessions/doc-1/abort", "")
	expectStatus(t, rec, http.StatusOK)
	var resp map[string]bool
	decodeBody(t, rec, &resp)
	if resp["aborted"] {
		t.Error("nothing was streaming")
	}
}

func TestHandleConnectionTest(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, "POST", "/v1/connection/test", "")
	expectStatus(t, rec, http.StatusOK)
	var res llm.ConnectionResult
	decodeBody(t, rec, &res)
	if !res.Success || res.Category != llm.ConnectionOK {
		t.Errorf("unexpected result: %+v", res)
	}
}

// =============================================================================
// EVENT FEED
// =============================================================================

func TestHandleEvents(t *testing.T) {
	h := newHarness(t, nil)
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/v1/events?item=doc-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readLine := func() string {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		return line
	}
	if line := readLine(); line != ": connected\n" {
		t.Fatalf("first line = %q", line)
	}
	readLine()

	h.assistant.Events().Emit(host.Event{Kind: host.EventSummary, ItemID: "other", Text: "skip"})
	h.assistant.Events().Emit(host.Event{Kind: host.EventSummary, ItemID: "doc-1", Text: "keep"})

	if line := readLine(); line != "event: summary\n" {
		t.Fatalf("event line = %q", line)
	}
	var ev host.Event
	data := strings.TrimPrefix(strings.TrimSpace(readLine()), "data: ")
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.ItemID != "doc-1" || ev.Text != "keep" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestHandleEvents_Heartbeat(t *testing.T) {
	h := newHarness(t, nil)
	srv := New(h.assistant, config.ServerConfig{},
		WithLogger(logging.Discard()), WithHeartbeat(20*time.Millisecond))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for _, want := range []string{": connected\n", "\n", ": ping\n"} {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if line != want {
			t.Fatalf("line = %q, want %q", line, want)
		}
	}
}

func TestShutdownEndsEventStreams(t *testing.T) {
	h := newHarness(t, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		rec := httptest.NewRecorder()
		h.srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/events", nil))
	}()

	time.Sleep(50 * time.Millisecond)
	if err := h.srv.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event stream did not end on shutdown")
	}
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("ask: %w", assistant.ErrEmptyInput), http.StatusBadRequest},
		{fmt.Errorf("x: %w", host.ErrNotFound), http.StatusNotFound},
		{assistant.ErrNoNotes, http.StatusNotImplemented},
		{llm.ErrNotConfigured, http.StatusServiceUnavailable},
		{&llm.APIError{Status: 401}, http.StatusBadGateway},
		{llm.ErrTimeout, http.StatusGatewayTimeout},
		{context.Canceled, 499},
		{errors.New("other"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got, _ := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
