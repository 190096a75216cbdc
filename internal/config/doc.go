// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for readerai.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides and validation.
//
// # Key Types
//
//   - Config: file-backed settings (llm, session, render, notes, server, log)
//   - State: prompt templates and toggles persisted through host preferences
//   - Watcher: fsnotify-based reload of the config file
//   - Sealer: AES-GCM sealing of llm.api_key and server.token ("ENC:" values)
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (READERAI_*, then OPENAI_API_KEY for the key)
//   - ~/.readerai/config.toml
//   - ~/.readerai/config.json
//   - Built-in defaults
//
// Sealed credentials are opened before environment overrides apply; see
// LoadSealer for where the key comes from.
//
// Host preferences (ApplyPreferences) are layered on top by the assistant
// when a preference store is available.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	client, err := llm.NewClient(cfg.LLMOptions())
//
// Dot-notation access backs the "config get/set" commands:
//
//	_ = cfg.Set("llm.temperature", "0.2")
//	v, _ := cfg.Get("llm.model")
package config
