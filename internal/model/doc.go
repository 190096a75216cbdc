// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - ChatMessage: one conversation turn with role, content, timestamp and an
//     optional page of origin
//   - Role: message role enumeration (user, assistant, system)
//
// # Usage
//
//	msg := model.NewUserMessage("Translate to Spanish: Hello").WithPage(3)
//	role, err := model.ParseRole("assistant")
package model
