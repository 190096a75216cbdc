// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// ParseRole converts s into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q: must be user, assistant or system", s)
	}
	return r, nil
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// ChatMessage is one turn in a conversation. Values are treated as immutable
// once created.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch

	// PageNumber is the page the message was derived from, if any.
	PageNumber *int `json:"pageNumber,omitempty"`
}

// NewMessage creates a message with a time-ordered ID.
func NewMessage(role Role, content string) ChatMessage {
	return newMessageAt(role, content, time.Now())
}

func newMessageAt(role Role, content string, now time.Time) ChatMessage {
	return ChatMessage{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		Timestamp: now.UnixMilli(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) ChatMessage {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) ChatMessage {
	return NewMessage(RoleAssistant, content)
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) ChatMessage {
	return NewMessage(RoleSystem, content)
}

// WithPage returns a copy of m tagged with the page it came from.
func (m ChatMessage) WithPage(page int) ChatMessage {
	p := page
	m.PageNumber = &p
	return m
}

// Time returns the creation time of the message.
func (m ChatMessage) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// IsSystem reports whether the message carries priming instructions.
func (m ChatMessage) IsSystem() bool {
	return m.Role == RoleSystem
}

// Clone returns a copy that shares no pointers with m.
func (m ChatMessage) Clone() ChatMessage {
	if m.PageNumber != nil {
		p := *m.PageNumber
		m.PageNumber = &p
	}
	return m
}

// generateID returns a UUIDv7 so lexical order follows creation order.
func generateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
