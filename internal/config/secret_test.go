// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func fastKDF(t *testing.T) {
	t.Helper()
	prev := pbkdf2Iterations
	pbkdf2Iterations = 1000
	t.Cleanup(func() { pbkdf2Iterations = prev })
}

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer(bytes.Repeat([]byte{7}, secretKeySize))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	sealed, err := s.Seal("sk-live-123")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !IsSealed(sealed) || strings.Contains(sealed, "sk-live") {
		t.Fatalf("sealed value %q leaks plaintext or lacks prefix", sealed)
	}

	again, _ := s.Seal("sk-live-123")
	if again == sealed {
		t.Error("sealing twice should use different nonces")
	}

	plain, err := s.Open(sealed)
	if err != nil || plain != "sk-live-123" {
		t.Errorf("Open = %q, %v", plain, err)
	}

	if got, err := s.Open("plain-value"); err != nil || got != "plain-value" {
		t.Errorf("Open(unsealed) = %q, %v; want passthrough", got, err)
	}
}

func TestSealer_Rejects(t *testing.T) {
	if _, err := NewSealer([]byte("short")); err == nil {
		t.Error("NewSealer should reject a short key")
	}

	a, _ := NewSealer(bytes.Repeat([]byte{1}, secretKeySize))
	b, _ := NewSealer(bytes.Repeat([]byte{2}, secretKeySize))
	sealed, _ := a.Seal("secret")

	tests := []struct {
		name  string
		s     *Sealer
		value string
	}{
		{"wrong key", b, sealed},
		{"bad base64", a, SealedPrefix + "!!!"},
		{"too short", a, SealedPrefix + "AAAA"},
		{"tampered", a, sealed[:len(sealed)-2] + "AA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.s.Open(tt.value); !errors.Is(err, ErrSealedValue) {
				t.Errorf("Open err = %v, want ErrSealedValue", err)
			}
		})
	}
}

func TestLoadSealer_KeyFile(t *testing.T) {
	dir := isolate(t)
	t.Setenv("READERAI_PASSPHRASE", "")

	if _, err := LoadSealer(dir, false); !errors.Is(err, ErrNoSecretKey) {
		t.Fatalf("LoadSealer without key err = %v, want ErrNoSecretKey", err)
	}

	s1, err := LoadSealer(dir, true)
	if err != nil {
		t.Fatalf("LoadSealer create: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, secretKeyFile))
	if err != nil {
		t.Fatalf("key file: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	sealed, _ := s1.Seal("token")
	s2, err := LoadSealer(dir, false)
	if err != nil {
		t.Fatalf("LoadSealer reload: %v", err)
	}
	if plain, err := s2.Open(sealed); err != nil || plain != "token" {
		t.Errorf("reloaded sealer Open = %q, %v", plain, err)
	}
}

func TestLoadSealer_Passphrase(t *testing.T) {
	dir := isolate(t)
	fastKDF(t)
	t.Setenv("READERAI_PASSPHRASE", "correct horse")

	s1, err := LoadSealer(dir, true)
	if err != nil {
		t.Fatalf("LoadSealer: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, secretSaltFile)); err != nil {
		t.Fatalf("salt file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, secretKeyFile)); !os.IsNotExist(err) {
		t.Error("passphrase mode should not write a key file")
	}
	sealed, _ := s1.Seal("token")

	t.Setenv("READERAI_PASSPHRASE", "wrong horse")
	s2, err := LoadSealer(dir, false)
	if err != nil {
		t.Fatalf("LoadSealer wrong passphrase: %v", err)
	}
	if _, err := s2.Open(sealed); !errors.Is(err, ErrSealedValue) {
		t.Errorf("wrong passphrase err = %v, want ErrSealedValue", err)
	}
}

func TestDeriveKey(t *testing.T) {
	fastKDF(t)
	salt := bytes.Repeat([]byte{9}, secretSaltSize)
	k1 := DeriveKey("pass", salt)
	k2 := DeriveKey("pass", salt)
	k3 := DeriveKey("pass", bytes.Repeat([]byte{8}, secretSaltSize))
	if len(k1) != secretKeySize {
		t.Fatalf("key length = %d", len(k1))
	}
	if !bytes.Equal(k1, k2) {
		t.Error("same passphrase and salt should derive the same key")
	}
	if bytes.Equal(k1, k3) {
		t.Error("different salts should derive different keys")
	}
}

func TestLoadFromPath_SealedSecrets(t *testing.T) {
	dir := isolate(t)
	t.Setenv("READERAI_PASSPHRASE", "")

	s, err := LoadSealer(dir, true)
	if err != nil {
		t.Fatal(err)
	}
	sealedKey, _ := s.Seal("sk-sealed")
	sealedToken, _ := s.Seal("bridge-token")

	cfg := Default()
	cfg.LLM.APIKey = sealedKey
	cfg.Server.Token = sealedToken
	path := filepath.Join(dir, "config.toml")
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if loaded.LLM.APIKey != "sk-sealed" || loaded.Server.Token != "bridge-token" {
		t.Errorf("secrets not opened: key=%q token=%q", loaded.LLM.APIKey, loaded.Server.Token)
	}

	t.Setenv("READERAI_API_KEY", "sk-env")
	loaded, err = LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath with env: %v", err)
	}
	if loaded.LLM.APIKey != "sk-env" {
		t.Errorf("env override lost: %q", loaded.LLM.APIKey)
	}

	if err := os.Remove(filepath.Join(dir, secretKeyFile)); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromPath(path); !errors.Is(err, ErrNoSecretKey) {
		t.Errorf("missing key err = %v, want ErrNoSecretKey", err)
	}
}
