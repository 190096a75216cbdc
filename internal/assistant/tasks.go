// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/readerai/internal/config"
	"github.com/jeranaias/readerai/internal/host"
	"github.com/jeranaias/readerai/internal/llm"
	"github.com/jeranaias/readerai/internal/model"
)

// Answer is the outcome of a task.
type Answer struct {
	Text string `json:"text"`
	HTML string `json:"html"`

	// Aborted is set when the stream was stopped before completing; Text
	// then holds what arrived.
	Aborted bool `json:"aborted,omitempty"`

	Usage *llm.Usage `json:"usage,omitempty"`
}

// Question is a user question about a document.
type Question struct {
	Text string

	// Selection is optional document text the question refers to.
	Selection string

	// Page, when set, is recorded on the user message.
	Page *int
}

// =============================================================================
// TASKS
// =============================================================================

// Ask sends a question in the document's conversation. With history enabled
// the whole session is sent, otherwise only its system messages. The user
// message is recorded before sending and the answer after it completes; an
// aborted answer is not recorded.
func (a *Assistant) Ask(ctx context.Context, itemID string, q Question) (*Answer, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("ask: %w", ErrEmptyInput)
	}
	sc, err := a.Open(ctx, itemID)
	if err != nil {
		return nil, err
	}
	cfg, state, _ := a.snapshot()

	tmpl, ok := state.Template(config.TemplateAsk)
	if !ok {
		return nil, fmt.Errorf("ask: %w: %s", ErrUnknownTemplate, config.TemplateAsk)
	}
	selection := ""
	if s := strings.TrimSpace(q.Selection); s != "" {
		selection = "Context from the document:\n\n" + s + "\n\n"
	}
	user := model.NewUserMessage(tmpl.Expand(map[string]string{
		"context":  selection,
		"question": strings.TrimSpace(q.Text),
		"title":    titleOf(sc.Item, itemID),
	}))
	if q.Page != nil {
		user = user.WithPage(*q.Page)
	}

	var messages []model.ChatMessage
	for _, m := range sc.Messages {
		if cfg.Session.EnableHistory || m.IsSystem() {
			messages = append(messages, m)
		}
	}
	messages = append(messages, user)
	a.store.AddMessage(itemID, user)

	ans, err := a.run(ctx, itemID, messages)
	if err != nil {
		return nil, err
	}
	if !ans.Aborted {
		a.store.AddMessage(itemID, model.NewAssistantMessage(ans.Text))
	}
	return ans, nil
}

// Translate translates text into lang, a BCP 47 tag or a language name.
// An empty lang uses the configured target language. Translation does not
// touch the conversation history.
func (a *Assistant) Translate(ctx context.Context, itemID, text, lang string) (*Answer, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("translate: %w", ErrEmptyInput)
	}
	cfg, _, _ := a.snapshot()
	if strings.TrimSpace(lang) == "" {
		lang = cfg.LLM.TargetLanguage
	}
	return a.oneShot(ctx, itemID, config.TemplateTranslate, map[string]string{
		"language": LanguageName(lang),
		"text":     text,
	})
}

// Summarize summarizes text and caches the result on the session.
func (a *Assistant) Summarize(ctx context.Context, itemID, text string) (*Answer, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("summarize: %w", ErrEmptyInput)
	}
	ans, err := a.oneShot(ctx, itemID, config.TemplateSummarize, map[string]string{"text": text})
	if err != nil || ans.Aborted {
		return ans, err
	}
	a.store.UpdateSummary(itemID, ans.Text)
	a.emit(host.Event{Kind: host.EventSummary, ItemID: itemID, Text: ans.Text, HTML: ans.HTML})
	return ans, nil
}

// KeyPoints extracts key points from text and caches them on the session.
func (a *Assistant) KeyPoints(ctx context.Context, itemID, text string) ([]string, *Answer, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, fmt.Errorf("key points: %w", ErrEmptyInput)
	}
	ans, err := a.oneShot(ctx, itemID, config.TemplateKeyPoints, map[string]string{"text": text})
	if err != nil || ans.Aborted {
		return nil, ans, err
	}
	points := ParseKeyPoints(ans.Text)
	a.store.UpdateKeyPoints(itemID, points)
	a.emit(host.Event{Kind: host.EventKeyPoints, ItemID: itemID, Text: strings.Join(points, "\n"), HTML: ans.HTML})
	return points, ans, nil
}

// oneShot sends a template as a standalone exchange: its system prompt and
// the expanded body, without session history.
func (a *Assistant) oneShot(ctx context.Context, itemID, name string, vars map[string]string) (*Answer, error) {
	sc, err := a.Open(ctx, itemID)
	if err != nil {
		return nil, err
	}
	_, state, _ := a.snapshot()
	tmpl, ok := state.Template(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownTemplate)
	}
	if _, set := vars["title"]; !set {
		vars["title"] = titleOf(sc.Item, itemID)
	}

	var messages []model.ChatMessage
	if tmpl.System != "" {
		sys := config.PromptTemplate{Body: tmpl.System}.Expand(vars)
		messages = append(messages, model.NewSystemMessage(sys))
	}
	messages = append(messages, model.NewUserMessage(tmpl.Expand(vars)))
	return a.run(ctx, itemID, messages)
}

// =============================================================================
// STREAM DRIVER
// =============================================================================

// run sends messages on the item's client and publishes progress. While a
// stream is in flight the accumulated text is re-rendered at most once per
// render throttle interval; the completed text is always rendered.
func (a *Assistant) run(ctx context.Context, itemID string, messages []model.ChatMessage) (*Answer, error) {
	c, err := a.client(itemID)
	if err != nil {
		return nil, err
	}
	cfg, _, renderer := a.snapshot()

	limiter := newRenderLimiter(cfg.RenderThrottle())
	var acc strings.Builder
	cb := &llm.StreamCallbacks{
		OnStart: func() {
			a.emit(host.Event{Kind: host.EventStarted, ItemID: itemID})
		},
		OnChunk: func(delta string) {
			acc.WriteString(delta)
			ev := host.Event{Kind: host.EventDelta, ItemID: itemID, Delta: delta}
			if limiter.Allow() {
				ev.HTML = renderer.Render(acc.String())
			}
			a.emit(ev)
		},
		OnError: func(err error) {
			a.emit(host.Event{Kind: host.EventFailed, ItemID: itemID, Error: err.Error()})
		},
	}
	if !cfg.LLM.EnableStreaming {
		a.emit(host.Event{Kind: host.EventStarted, ItemID: itemID})
	}

	resp, err := c.ChatAuto(ctx, messages, cb)
	if err != nil {
		if !cfg.LLM.EnableStreaming {
			a.emit(host.Event{Kind: host.EventFailed, ItemID: itemID, Error: err.Error()})
		}
		return nil, err
	}

	ans := &Answer{Text: resp.Content, Aborted: resp.Aborted, Usage: resp.Usage}
	ans.HTML = renderer.Render(ans.Text)
	kind := host.EventCompleted
	if ans.Aborted {
		kind = host.EventAborted
	}
	a.emit(host.Event{Kind: kind, ItemID: itemID, Text: ans.Text, HTML: ans.HTML})
	return ans, nil
}

// newRenderLimiter allows one render per interval with a burst of one, so
// the first chunk always renders. A zero interval renders every chunk.
func newRenderLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func (a *Assistant) emit(ev host.Event) {
	a.emitter.Emit(ev)
}

