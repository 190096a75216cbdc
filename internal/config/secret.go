// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jeranaias/readerai/internal/util"
)

// =============================================================================
// SEALED SECRETS
// =============================================================================
//
// Credentials in the config file may be stored sealed:
//
//	api_key = "ENC:base64(nonce|ciphertext|tag)"
//
// Sealed values are AES-256-GCM encrypted. The key is derived from
// READERAI_PASSPHRASE with PBKDF2-SHA-256 when that variable is set, and
// read from secret.key in the config directory otherwise.

// SealedPrefix marks a sealed config value.
const SealedPrefix = "ENC:"

const (
	secretKeySize  = 32
	secretSaltSize = 32
	secretKeyFile  = "secret.key"
	secretSaltFile = "secret.salt"
)

// pbkdf2Iterations follows the OWASP 2023 guidance for PBKDF2-SHA-256.
var pbkdf2Iterations = 600000

var (
	// ErrNoSecretKey is returned when a sealed value is found but no key
	// exists to open it.
	ErrNoSecretKey = errors.New("no secret key: set READERAI_PASSPHRASE or restore secret.key")

	// ErrSealedValue is returned when a sealed value is malformed, was
	// sealed with another key, or was modified.
	ErrSealedValue = errors.New("sealed value cannot be opened")
)

// Sealer seals and opens config secrets.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != secretKeySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", secretKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return &Sealer{aead: gcm}, nil
}

// LoadSealer returns the sealer for the config directory dir. When create
// is set, a missing key or salt file is generated; otherwise its absence is
// ErrNoSecretKey.
func LoadSealer(dir string, create bool) (*Sealer, error) {
	if pass := os.Getenv("READERAI_PASSPHRASE"); pass != "" {
		salt, err := readOrCreate(filepath.Join(dir, secretSaltFile), secretSaltSize, create)
		if err != nil {
			return nil, err
		}
		key := DeriveKey(pass, salt)
		defer clear(key)
		return NewSealer(key)
	}

	key, err := readOrCreate(filepath.Join(dir, secretKeyFile), secretKeySize, create)
	if err != nil {
		return nil, err
	}
	defer clear(key)
	return NewSealer(key)
}

// DeriveKey derives a sealing key from a passphrase and salt.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, secretKeySize, sha256.New)
}

// readOrCreate reads a random-bytes file of the given size, generating it
// with owner-only permissions when create is set.
func readOrCreate(path string, size int, create bool) ([]byte, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != size {
			return nil, fmt.Errorf("%s: want %d bytes, got %d", path, size, len(data))
		}
		return data, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	case !create:
		return nil, ErrNoSecretKey
	}

	data = make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", filepath.Base(path), err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", path, err)
	}
	return data, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (s *Sealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed value. Values without the prefix are returned
// unchanged.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedValue, err)
	}
	n := s.aead.NonceSize()
	if len(data) < n+s.aead.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrSealedValue)
	}
	plain, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", ErrSealedValue
	}
	return string(plain), nil
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// unsealSecrets opens sealed credentials in place. The sealer is only
// loaded when there is something to open.
func (c *Config) unsealSecrets() error {
	fields := []*string{&c.LLM.APIKey, &c.Server.Token}
	var sealer *Sealer
	for _, f := range fields {
		if !IsSealed(*f) {
			continue
		}
		if sealer == nil {
			dir, err := ConfigDir()
			if err != nil {
				return err
			}
			if sealer, err = LoadSealer(dir, false); err != nil {
				return err
			}
		}
		plain, err := sealer.Open(*f)
		if err != nil {
			return err
		}
		*f = plain
	}
	return nil
}
