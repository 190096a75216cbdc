// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/readerai/internal/llm"
	"github.com/jeranaias/readerai/internal/markdown"
	"github.com/jeranaias/readerai/internal/session"
	"github.com/jeranaias/readerai/internal/util"
)

// CurrentVersion is written into saved config files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete readerai configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	LLM     LLMConfig     `toml:"llm" json:"llm"`
	Session SessionConfig `toml:"session" json:"session"`
	Render  RenderConfig  `toml:"render" json:"render"`
	Notes   NotesConfig   `toml:"notes" json:"notes"`
	Server  ServerConfig  `toml:"server" json:"server"`
	Log     LogConfig     `toml:"log" json:"log"`
}

// LLMConfig holds the chat completion endpoint settings.
type LLMConfig struct {
	APIKey          string  `toml:"api_key" json:"api_key"`
	APIEndpoint     string  `toml:"api_endpoint" json:"api_endpoint"`
	Model           string  `toml:"model" json:"model"`
	Temperature     float64 `toml:"temperature" json:"temperature"`
	MaxTokens       int     `toml:"max_tokens" json:"max_tokens"`
	TimeoutSecs     int     `toml:"timeout_secs" json:"timeout_secs"`
	EnableStreaming bool    `toml:"enable_streaming" json:"enable_streaming"`

	// TargetLanguage is a BCP 47 tag used by translate when the caller
	// does not name one.
	TargetLanguage string `toml:"target_language" json:"target_language"`
}

// SessionConfig controls the in-memory session store.
type SessionConfig struct {
	TimeoutSecs   int  `toml:"timeout_secs" json:"timeout_secs"`
	MaxMessages   int  `toml:"max_messages" json:"max_messages"`
	EnableHistory bool `toml:"enable_history" json:"enable_history"`
}

// RenderConfig controls Markdown rendering of answers.
type RenderConfig struct {
	Sanitize bool `toml:"sanitize" json:"sanitize"`
	Tables   bool `toml:"tables" json:"tables"`
	Links    bool `toml:"links" json:"links"`

	// ThrottleMs is the minimum gap between re-renders while a stream is
	// in flight. 0 re-renders on every chunk.
	ThrottleMs int `toml:"throttle_ms" json:"throttle_ms"`
}

// NotesConfig locates the note database.
type NotesConfig struct {
	DatabasePath string `toml:"database_path" json:"database_path"`
}

// ServerConfig configures the local bridge.
type ServerConfig struct {
	Addr           string   `toml:"addr" json:"addr"`
	Token          string   `toml:"token" json:"token"`
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`

	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	RateBurst int     `toml:"rate_burst" json:"rate_burst"`

	// HeartbeatSeconds is the keep-alive interval of event streams.
	HeartbeatSeconds int `toml:"heartbeat_seconds" json:"heartbeat_seconds"`
}

// LogConfig configures log/slog output.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`

	// Dir, when set, receives a readerai.log file instead of stderr.
	Dir string `toml:"dir" json:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dbPath := "readerai.db"
	if dir, err := ConfigDir(); err == nil {
		dbPath = filepath.Join(dir, "notes.db")
	}
	sess := session.DefaultConfig()

	return &Config{
		Version: CurrentVersion,
		LLM: LLMConfig{
			APIEndpoint:     llm.DefaultEndpoint,
			Model:           llm.DefaultModel,
			Temperature:     llm.DefaultTemperature,
			MaxTokens:       llm.DefaultMaxTokens,
			TimeoutSecs:     int(llm.DefaultTimeout / time.Second),
			EnableStreaming: true,
			TargetLanguage:  "en",
		},
		Session: SessionConfig{
			TimeoutSecs:   int(sess.Timeout / time.Second),
			MaxMessages:   sess.MaxMessages,
			EnableHistory: true,
		},
		Render: RenderConfig{
			Sanitize:   true,
			Tables:     true,
			Links:      true,
			ThrottleMs: 50,
		},
		Notes: NotesConfig{
			DatabasePath: dbPath,
		},
		Server: ServerConfig{
			Addr:             "127.0.0.1:8787",
			RateLimit:        10,
			RateBurst:        20,
			HeartbeatSeconds: 15,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the readerai configuration directory. READERAI_HOME
// overrides the default of ~/.readerai.
func ConfigDir() (string, error) {
	if dir := os.Getenv("READERAI_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".readerai"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens a config file to 0600. The file holds the
// API key and the bridge token.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.readerai. It tries config.toml, then
// config.json, then falls back to defaults. Environment overrides are applied
// last. A file that fails to parse is reported alongside the default config.
func Load() (*Config, error) {
	var loadErr error

	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			cfg := Default()
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			cfg := Default()
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = errors.Join(loadErr, fmt.Errorf("failed to load JSON config: %w", err))
			} else {
				return finish(cfg)
			}
		}
	}

	cfg, err := finish(Default())
	if err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// LoadFromPath loads a specific file; ".json" selects JSON, anything else
// is read as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
	}

	return finish(cfg)
}

// finish runs the post-decode steps shared by every load path.
func finish(cfg *Config) (*Config, error) {
	if err := cfg.unsealSecrets(); err != nil {
		return nil, fmt.Errorf("config secrets: %w", err)
	}
	cfg.ApplyEnvOverrides()
	cfg.Migrate()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// the values already in cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Logging is configured from this file, so it is not up yet.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with 0600 permissions. The temperature is
// clamped to [0, 2] before writing.
func SaveTOML(cfg *Config, path string) error {
	out := cfg.Clone()
	out.LLM.Temperature = llm.ClampTemperature(out.LLM.Temperature)

	var buf bytes.Buffer
	buf.WriteString("# readerai configuration file\n")
	buf.WriteString("# Generated by readerai - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(out); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	out := cfg.Clone()
	out.LLM.Temperature = llm.ClampTemperature(out.LLM.Temperature)

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and returns all problems at once as
// ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// LLM
	if err := llm.ValidateEndpoint(c.LLM.APIEndpoint); err != nil {
		add("llm.api_endpoint", "%v", err)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > llm.MaxTemperature {
		add("llm.temperature", "must be between 0 and %g, got %g", llm.MaxTemperature, c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		add("llm.max_tokens", "must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.TimeoutSecs <= 0 {
		add("llm.timeout_secs", "must be positive, got %d", c.LLM.TimeoutSecs)
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		add("llm.model", "must not be empty")
	}

	// Session
	if c.Session.TimeoutSecs <= 0 {
		add("session.timeout_secs", "must be positive, got %d", c.Session.TimeoutSecs)
	}
	if c.Session.MaxMessages <= 0 {
		add("session.max_messages", "must be positive, got %d", c.Session.MaxMessages)
	}

	// Render
	if c.Render.ThrottleMs < 0 {
		add("render.throttle_ms", "must be non-negative, got %d", c.Render.ThrottleMs)
	}

	// Server
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		add("server.addr", "invalid address %q: %v", c.Server.Addr, err)
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must be non-negative, got %g", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		add("server.rate_burst", "must be positive when rate_limit is set, got %d", c.Server.RateBurst)
	}
	if c.Server.HeartbeatSeconds < 0 {
		add("server.heartbeat_seconds", "must be non-negative, got %d", c.Server.HeartbeatSeconds)
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format", "invalid format '%s', must be one of: text, json", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills empty string fields and non-positive limits from
// Default. Booleans and the temperature are left alone: zero is a valid
// choice for them.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.LLM.APIEndpoint == "" {
		c.LLM.APIEndpoint = d.LLM.APIEndpoint
	}
	if c.LLM.Model == "" {
		c.LLM.Model = d.LLM.Model
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = d.LLM.MaxTokens
	}
	if c.LLM.TimeoutSecs == 0 {
		c.LLM.TimeoutSecs = d.LLM.TimeoutSecs
	}
	if c.LLM.TargetLanguage == "" {
		c.LLM.TargetLanguage = d.LLM.TargetLanguage
	}
	if c.Session.TimeoutSecs == 0 {
		c.Session.TimeoutSecs = d.Session.TimeoutSecs
	}
	if c.Session.MaxMessages == 0 {
		c.Session.MaxMessages = d.Session.MaxMessages
	}
	if c.Notes.DatabasePath == "" {
		c.Notes.DatabasePath = d.Notes.DatabasePath
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Migrate rewrites values older versions accepted.
func (c *Config) Migrate() {
	// Early versions stored the full completions URL.
	c.LLM.APIEndpoint = strings.TrimSuffix(strings.TrimSpace(c.LLM.APIEndpoint), "/")
	c.LLM.APIEndpoint = strings.TrimSuffix(c.LLM.APIEndpoint, "/chat/completions")

	if c.Version == "" || c.Version == "0" {
		c.Version = CurrentVersion
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - READERAI_API_KEY: llm.api_key (OPENAI_API_KEY is used when neither
//     the file nor READERAI_API_KEY sets one)
//   - READERAI_API_ENDPOINT: llm.api_endpoint
//   - READERAI_MODEL: llm.model
//   - READERAI_TEMPERATURE: llm.temperature
//   - READERAI_STREAMING: llm.enable_streaming ("1"/"true")
//   - READERAI_DB: notes.database_path
//   - READERAI_SERVER_ADDR: server.addr
//   - READERAI_SERVER_TOKEN: server.token
//   - READERAI_LOG_LEVEL: log.level
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("READERAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	} else if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if endpoint := os.Getenv("READERAI_API_ENDPOINT"); endpoint != "" {
		c.LLM.APIEndpoint = endpoint
	}
	if model := os.Getenv("READERAI_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if temp := os.Getenv("READERAI_TEMPERATURE"); temp != "" {
		if v, err := strconv.ParseFloat(temp, 64); err == nil {
			c.LLM.Temperature = v
		}
	}
	if streaming := os.Getenv("READERAI_STREAMING"); streaming != "" {
		c.LLM.EnableStreaming = parseBool(streaming)
	}
	if db := os.Getenv("READERAI_DB"); db != "" {
		c.Notes.DatabasePath = db
	}
	if addr := os.Getenv("READERAI_SERVER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if token := os.Getenv("READERAI_SERVER_TOKEN"); token != "" {
		c.Server.Token = token
	}
	if level := os.Getenv("READERAI_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// LLMOptions converts the llm section into client options.
func (c *Config) LLMOptions() llm.Options {
	return llm.Options{
		APIKey:          c.LLM.APIKey,
		APIEndpoint:     c.LLM.APIEndpoint,
		Model:           c.LLM.Model,
		Temperature:     c.LLM.Temperature,
		MaxTokens:       c.LLM.MaxTokens,
		Timeout:         time.Duration(c.LLM.TimeoutSecs) * time.Second,
		EnableStreaming: c.LLM.EnableStreaming,
	}
}

// SessionConfig converts the session section into store settings.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		Timeout:     time.Duration(c.Session.TimeoutSecs) * time.Second,
		MaxMessages: c.Session.MaxMessages,
	}
}

// RenderOptions converts the render section into renderer options.
func (c *Config) RenderOptions() markdown.Options {
	return markdown.Options{
		Sanitize: c.Render.Sanitize,
		Tables:   c.Render.Tables,
		Links:    c.Render.Links,
	}
}

// RenderThrottle is the minimum gap between streaming re-renders.
func (c *Config) RenderThrottle() time.Duration {
	return time.Duration(c.Render.ThrottleMs) * time.Millisecond
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "llm.model").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "llm.model").
// String values are converted to the field's type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("%s is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field
// equivalent ("api_key" -> "ApiKey", matched case-insensitively).
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		result.WriteString(strings.ToUpper(part[:1]))
		result.WriteString(strings.ToLower(part[1:]))
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an arbitrary value with type
// conversion. Strings are parsed; a comma separated string fills []string.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strings.TrimSpace(strVal), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strings.TrimSpace(strVal), 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, item := range strings.Split(strVal, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns every settable key in dot notation, in declaration
// order, derived from the toml tags.
func GetAllKeys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(Config{}), "", &keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "" || name == "-" {
			continue
		}
		if f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, prefix+name+".", keys)
			continue
		}
		*keys = append(*keys, prefix+name)
	}
}

// IsSecretKey reports whether a dot-notation key holds a credential.
func IsSecretKey(key string) bool {
	switch strings.ToLower(key) {
	case "llm.api_key", "server.token":
		return true
	}
	return false
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.AllowedOrigins != nil {
		clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	}
	return &clone
}

// String renders the config as JSON with credentials redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.LLM.APIKey != "" {
		safe.LLM.APIKey = "[REDACTED]"
	}
	if safe.Server.Token != "" {
		safe.Server.Token = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
