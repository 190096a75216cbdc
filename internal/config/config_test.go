// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// isolate points ConfigDir at a temp dir and clears env overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("READERAI_HOME", dir)
	for _, key := range []string{
		"READERAI_API_KEY", "OPENAI_API_KEY", "READERAI_API_ENDPOINT",
		"READERAI_MODEL", "READERAI_TEMPERATURE", "READERAI_STREAMING",
		"READERAI_DB", "READERAI_SERVER_ADDR", "READERAI_SERVER_TOKEN",
		"READERAI_LOG_LEVEL", "READERAI_PASSPHRASE",
	} {
		t.Setenv(key, "")
	}
	return dir
}

// TestConfig_Default tests that Default() returns a valid config.
func TestConfig_Default(t *testing.T) {
	isolate(t)
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.LLM.APIEndpoint != "https://api.openai.com/v1" {
		t.Errorf("api_endpoint = %q", cfg.LLM.APIEndpoint)
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Errorf("temperature = %g, want 0.7", cfg.LLM.Temperature)
	}
	if cfg.Session.TimeoutSecs != 3600 || cfg.Session.MaxMessages != 50 {
		t.Errorf("session defaults = %+v", cfg.Session)
	}
	if !cfg.Render.Sanitize || !cfg.Render.Tables || !cfg.Render.Links {
		t.Errorf("render defaults = %+v", cfg.Render)
	}
}

func TestLoad_NoFilesUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
}

func TestLoad_TOMLOverridesDefaults(t *testing.T) {
	dir := isolate(t)
	content := `
[llm]
model = "gpt-4o"
temperature = 0.0
enable_streaming = false

[session]
max_messages = 10
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0 {
		t.Errorf("explicit zero temperature was replaced: %g", cfg.LLM.Temperature)
	}
	if cfg.LLM.EnableStreaming {
		t.Error("enable_streaming = false was ignored")
	}
	if cfg.Session.MaxMessages != 10 {
		t.Errorf("max_messages = %d", cfg.Session.MaxMessages)
	}
	// Unset keys keep their defaults.
	if cfg.LLM.MaxTokens != 2000 {
		t.Errorf("max_tokens = %d, want default 2000", cfg.LLM.MaxTokens)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dir, "config.toml"))
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("config file permissions = %o, want 600", perm)
		}
	}
}

func TestLoad_JSONFallback(t *testing.T) {
	dir := isolate(t)
	content := `{"llm": {"model": "local-model", "api_endpoint": "http://localhost:11434/v1"}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Model != "local-model" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.APIEndpoint != "http://localhost:11434/v1" {
		t.Errorf("api_endpoint = %q", cfg.LLM.APIEndpoint)
	}
}

func TestLoad_BrokenTOMLReportsErrorWithDefaults(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[llm\nmodel ="), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err == nil {
		t.Fatal("expected a load error")
	}
	if cfg == nil || cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("expected default config alongside the error, got %+v", cfg)
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	content := `
[llm]
api_endpoint = "ftp://example.com"
max_tokens = -1
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verrs ValidateErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidateErrors, got %T: %v", err, err)
	}
	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	if !fields["llm.api_endpoint"] || !fields["llm.max_tokens"] {
		t.Errorf("missing expected fields in %v", verrs)
	}
}

func TestConfig_Migrate(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIEndpoint = "https://api.example.com/v1/chat/completions/"
	cfg.Version = ""
	cfg.Migrate()

	if cfg.LLM.APIEndpoint != "https://api.example.com/v1" {
		t.Errorf("api_endpoint = %q", cfg.LLM.APIEndpoint)
	}
	if cfg.Version != CurrentVersion {
		t.Errorf("version = %q", cfg.Version)
	}
}

// TestConfig_Validate tests configuration validation.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		field   string
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, "", false},
		{"bad endpoint", func(c *Config) { c.LLM.APIEndpoint = "example.com" }, "llm.api_endpoint", true},
		{"temperature too high", func(c *Config) { c.LLM.Temperature = 2.5 }, "llm.temperature", true},
		{"negative temperature", func(c *Config) { c.LLM.Temperature = -0.1 }, "llm.temperature", true},
		{"zero timeout", func(c *Config) { c.LLM.TimeoutSecs = 0 }, "llm.timeout_secs", true},
		{"zero max messages", func(c *Config) { c.Session.MaxMessages = 0 }, "session.max_messages", true},
		{"negative throttle", func(c *Config) { c.Render.ThrottleMs = -1 }, "render.throttle_ms", true},
		{"bad addr", func(c *Config) { c.Server.Addr = "localhost" }, "server.addr", true},
		{"burst missing", func(c *Config) { c.Server.RateBurst = 0 }, "server.rate_burst", true},
		{"negative heartbeat", func(c *Config) { c.Server.HeartbeatSeconds = -1 }, "server.heartbeat_seconds", true},
		{"rate limit off", func(c *Config) { c.Server.RateLimit = 0; c.Server.RateBurst = 0 }, "", false},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level", true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.field != "" && !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("READERAI_MODEL", "env-model")
	t.Setenv("READERAI_TEMPERATURE", "1.25")
	t.Setenv("READERAI_STREAMING", "false")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.LLM.Model != "env-model" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 1.25 {
		t.Errorf("temperature = %g", cfg.LLM.Temperature)
	}
	if cfg.LLM.EnableStreaming {
		t.Error("streaming should be disabled")
	}
	if cfg.LLM.APIKey != "sk-openai" {
		t.Errorf("api key fallback = %q", cfg.LLM.APIKey)
	}

	t.Setenv("READERAI_API_KEY", "sk-readerai")
	cfg.ApplyEnvOverrides()
	if cfg.LLM.APIKey != "sk-readerai" {
		t.Errorf("READERAI_API_KEY should win, got %q", cfg.LLM.APIKey)
	}
}

func TestSaveTOML_ClampsTemperatureAndRoundTrips(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.LLM.Temperature = 3.5
	cfg.LLM.APIKey = "sk-secret"
	cfg.Server.AllowedOrigins = []string{"app://reader", "http://localhost:3000"}

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML: %v", err)
	}
	if cfg.LLM.Temperature != 3.5 {
		t.Error("SaveTOML must not modify its argument")
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if loaded.LLM.Temperature != 2 {
		t.Errorf("temperature = %g, want clamped 2", loaded.LLM.Temperature)
	}
	if loaded.LLM.APIKey != "sk-secret" {
		t.Errorf("api key = %q", loaded.LLM.APIKey)
	}
	if len(loaded.Server.AllowedOrigins) != 2 || loaded.Server.AllowedOrigins[1] != "http://localhost:3000" {
		t.Errorf("allowed_origins = %v", loaded.Server.AllowedOrigins)
	}
}

func TestSaveJSON(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.LLM.Temperature = -1
	if err := SaveJSON(cfg, path); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}
	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if loaded.LLM.Temperature != 0 {
		t.Errorf("temperature = %g, want clamped 0", loaded.LLM.Temperature)
	}
}

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	if err := cfg.Set("llm.model", "gpt-4.1"); err != nil {
		t.Fatalf("Set model: %v", err)
	}
	if err := cfg.Set("llm.temperature", "0.25"); err != nil {
		t.Fatalf("Set temperature: %v", err)
	}
	if err := cfg.Set("llm.enable_streaming", "no"); err != nil {
		t.Fatalf("Set streaming: %v", err)
	}
	if err := cfg.Set("session.max_messages", 12); err != nil {
		t.Fatalf("Set max_messages: %v", err)
	}
	if err := cfg.Set("server.allowed_origins", "a, b,,c"); err != nil {
		t.Fatalf("Set origins: %v", err)
	}

	if v, _ := cfg.Get("llm.model"); v != "gpt-4.1" {
		t.Errorf("model = %v", v)
	}
	if v, _ := cfg.Get("llm.temperature"); v != 0.25 {
		t.Errorf("temperature = %v", v)
	}
	if v, _ := cfg.Get("llm.enable_streaming"); v != false {
		t.Errorf("enable_streaming = %v", v)
	}
	if cfg.Session.MaxMessages != 12 {
		t.Errorf("max_messages = %d", cfg.Session.MaxMessages)
	}
	if got := strings.Join(cfg.Server.AllowedOrigins, "|"); got != "a|b|c" {
		t.Errorf("allowed_origins = %q", got)
	}
}

func TestConfig_GetSetErrors(t *testing.T) {
	cfg := Default()

	if _, err := cfg.Get("llm.nope"); err == nil {
		t.Error("expected error for unknown field")
	}
	if _, err := cfg.Get("llm"); err == nil {
		t.Error("expected error for a section key")
	}
	if _, err := cfg.Get(""); err == nil {
		t.Error("expected error for empty key")
	}
	if err := cfg.Set("llm.max_tokens", "many"); err == nil {
		t.Error("expected error for non-integer")
	}
	if err := cfg.Set("llm.model.name", "x"); err == nil {
		t.Error("expected error when descending into a value")
	}
}

func TestGetAllKeys(t *testing.T) {
	keys := GetAllKeys()
	cfg := Default()
	for _, key := range keys {
		if _, err := cfg.Get(key); err != nil {
			t.Errorf("key %q from GetAllKeys is not gettable: %v", key, err)
		}
	}
	if keys[0] != "version" {
		t.Errorf("first key = %q, want version", keys[0])
	}
	found := false
	for _, key := range keys {
		if key == "llm.api_key" {
			found = true
		}
	}
	if !found {
		t.Error("llm.api_key missing from GetAllKeys")
	}
	if !IsSecretKey("llm.api_key") || !IsSecretKey("server.token") || IsSecretKey("llm.model") {
		t.Error("IsSecretKey classification is wrong")
	}
}

func TestConfig_CloneIsDeep(t *testing.T) {
	cfg := Default()
	cfg.Server.AllowedOrigins = []string{"a"}
	clone := cfg.Clone()
	clone.Server.AllowedOrigins[0] = "b"

	if cfg.Server.AllowedOrigins[0] != "a" {
		t.Error("Clone shares AllowedOrigins with the original")
	}
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "sk-very-secret"
	cfg.Server.Token = "bridge-token"

	s := cfg.String()
	if strings.Contains(s, "sk-very-secret") || strings.Contains(s, "bridge-token") {
		t.Errorf("String() leaked a secret:\n%s", s)
	}
	if !strings.Contains(s, "[REDACTED]") {
		t.Error("String() should mark redacted fields")
	}
	if cfg.LLM.APIKey != "sk-very-secret" {
		t.Error("String() must not modify the config")
	}
}

func TestConfig_DerivedSettings(t *testing.T) {
	cfg := Default()
	cfg.LLM.TimeoutSecs = 30
	cfg.Session.TimeoutSecs = 120
	cfg.Render.Tables = false
	cfg.Render.ThrottleMs = 75

	if got := cfg.LLMOptions().Timeout; got != 30*time.Second {
		t.Errorf("LLMOptions().Timeout = %v", got)
	}
	if got := cfg.SessionConfig().Timeout; got != 2*time.Minute {
		t.Errorf("SessionConfig().Timeout = %v", got)
	}
	if cfg.RenderOptions().Tables {
		t.Error("RenderOptions().Tables should be false")
	}
	if got := cfg.RenderThrottle(); got != 75*time.Millisecond {
		t.Errorf("RenderThrottle() = %v", got)
	}
}
