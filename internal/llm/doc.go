// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm is a client for OpenAI-compatible chat completion endpoints,
// with buffered and streaming request paths.
//
// # Key Types
//
//   - Client: one endpoint configuration plus the handle of its active stream
//   - Options: credentials, endpoint, model and sampling settings
//   - StreamCallbacks: start, chunk, complete and error notifications
//   - LineReassembler: turns body chunks into whole SSE lines
//
// # Usage
//
//	client, err := llm.NewClient(llm.Options{APIKey: key, EnableStreaming: true})
//	if err != nil {
//	    return err
//	}
//
//	resp, err := client.Chat(ctx, messages)
//
//	err = client.StreamChat(ctx, messages, llm.StreamCallbacks{
//	    OnChunk:    func(delta string) { fmt.Print(delta) },
//	    OnComplete: func(full string) { save(full) },
//	})
//
// # Errors
//
// Failures are normalized to the sentinel errors in this package and
// *APIError; use errors.Is and errors.As. Buffered requests are retried up
// to three times with a 1s then 2s pause, except after cancellation or a
// 401/403. Streams are never retried. An aborted stream is not an error.
//
// The API key is only ever logged as a SHA-256 fingerprint.
package llm
