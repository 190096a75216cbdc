// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/readerai/internal/host"
)

// =============================================================================
// PERSISTED STATE
// =============================================================================

// Preference keys. StateKey holds the JSON-encoded State; the others are the
// individual credential and toggle values a host settings pane writes.
const (
	StateKey = "readerai.state"

	PrefAPIKey          = "readerai.apiKey"
	PrefAPIEndpoint     = "readerai.apiEndpoint"
	PrefModel           = "readerai.model"
	PrefTemperature     = "readerai.temperature"
	PrefEnableStreaming = "readerai.enableStreaming"
	PrefEnableHistory   = "readerai.enableHistory"
)

// PreferenceKeys returns every key readerai keeps in host preferences.
func PreferenceKeys() []string {
	return []string{
		StateKey,
		PrefAPIKey, PrefAPIEndpoint, PrefModel,
		PrefTemperature, PrefEnableStreaming, PrefEnableHistory,
	}
}

// Template names the assistant looks up.
const (
	TemplateTranslate = "translate"
	TemplateSummarize = "summarize"
	TemplateKeyPoints = "keypoints"
	TemplateAsk       = "ask"
)

// ErrMalformedState is returned when the stored state is not valid JSON.
var ErrMalformedState = errors.New("malformed persisted state")

// PromptTemplate is a named prompt. Body placeholders are written
// {{name}} and filled by Expand.
type PromptTemplate struct {
	Name string `json:"name"`
	Body string `json:"body"`

	// System, when set, is sent as the system message for this template.
	System string `json:"system,omitempty"`
}

// Expand substitutes {{key}} placeholders. Unknown placeholders are left
// as written.
func (t PromptTemplate) Expand(vars map[string]string) string {
	if len(vars) == 0 {
		return t.Body
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(t.Body)
}

// State is the user-editable state persisted under StateKey. Encoding it and
// decoding the result reproduces every field exactly.
type State struct {
	Templates       []PromptTemplate `json:"templates"`
	EnableStreaming bool             `json:"enableStreaming"`
	EnableHistory   bool             `json:"enableHistory"`
	Temperature     float64          `json:"temperature"`
	TargetLanguage  string           `json:"targetLanguage"`
}

// DefaultState returns the built-in templates and toggles.
func DefaultState() State {
	return State{
		Templates: []PromptTemplate{
			{
				Name:   TemplateTranslate,
				System: "You are a professional translator. Preserve formatting and meaning.",
				Body:   "Translate the following text into {{language}}. Reply with the translation only.\n\n{{text}}",
			},
			{
				Name:   TemplateSummarize,
				System: "You summarize documents accurately and concisely.",
				Body:   "Summarize the document \"{{title}}\" in a few short paragraphs.\n\n{{text}}",
			},
			{
				Name:   TemplateKeyPoints,
				System: "You extract the key points of documents.",
				Body:   "List the key points of the document \"{{title}}\" as a Markdown bullet list, one point per line.\n\n{{text}}",
			},
			{
				Name:   TemplateAsk,
				System: "You are a reading assistant. Answer questions about the document \"{{title}}\" using Markdown.",
				Body:   "{{context}}{{question}}",
			},
		},
		EnableStreaming: true,
		EnableHistory:   true,
		Temperature:     0.7,
		TargetLanguage:  "en",
	}
}

// Template returns the named template. Built-in defaults back up templates
// missing from the persisted list.
func (s State) Template(name string) (PromptTemplate, bool) {
	for _, t := range s.Templates {
		if t.Name == name {
			return t, true
		}
	}
	for _, t := range DefaultState().Templates {
		if t.Name == name {
			return t, true
		}
	}
	return PromptTemplate{}, false
}

// MarshalState encodes s as the JSON stored under StateKey.
func MarshalState(s State) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	return string(data), nil
}

// UnmarshalState decodes a stored state string.
func UnmarshalState(raw string) (State, error) {
	var s State
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	return s, nil
}

// LoadState reads the state from prefs. A missing key yields DefaultState.
// A malformed value yields DefaultState together with ErrMalformedState so
// the caller can warn and carry on.
func LoadState(prefs host.Preferences) (State, error) {
	raw, ok := prefs.String(StateKey)
	if !ok || strings.TrimSpace(raw) == "" {
		return DefaultState(), nil
	}
	s, err := UnmarshalState(raw)
	if err != nil {
		return DefaultState(), err
	}
	return s, nil
}

// SaveState writes s to prefs under StateKey.
func SaveState(prefs host.Preferences, s State) error {
	raw, err := MarshalState(s)
	if err != nil {
		return err
	}
	if err := prefs.SetString(StateKey, raw); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// ApplyPreferences overlays the individual preference values a host stores
// onto the llm and session sections. Keys that are not set leave the config
// untouched.
func (c *Config) ApplyPreferences(prefs host.Preferences) {
	if v, ok := prefs.String(PrefAPIKey); ok && v != "" {
		c.LLM.APIKey = v
	}
	if v, ok := prefs.String(PrefAPIEndpoint); ok && v != "" {
		c.LLM.APIEndpoint = v
	}
	if v, ok := prefs.String(PrefModel); ok && v != "" {
		c.LLM.Model = v
	}
	if v, ok := prefs.Float(PrefTemperature); ok {
		c.LLM.Temperature = v
	}
	if v, ok := prefs.Bool(PrefEnableStreaming); ok {
		c.LLM.EnableStreaming = v
	}
	if v, ok := prefs.Bool(PrefEnableHistory); ok {
		c.Session.EnableHistory = v
	}
}

// Apply copies the persisted toggles onto cfg. Callers use it only when a
// state was actually stored, so defaults never mask file settings.
func (s State) Apply(c *Config) {
	c.LLM.EnableStreaming = s.EnableStreaming
	c.Session.EnableHistory = s.EnableHistory
	c.LLM.Temperature = s.Temperature
	if s.TargetLanguage != "" {
		c.LLM.TargetLanguage = s.TargetLanguage
	}
}

// HasState reports whether prefs holds a persisted state.
func HasState(prefs host.Preferences) bool {
	raw, ok := prefs.String(StateKey)
	return ok && strings.TrimSpace(raw) != ""
}
