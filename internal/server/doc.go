// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server is the local HTTP bridge a host UI uses to drive the
// reading assistant.
//
// # Endpoints
//
//   - GET    /health                      - status, model and session count
//   - GET    /stats                       - operation counters
//   - POST   /v1/render                   - Markdown to HTML
//   - POST   /v1/connection/test          - check the model endpoint
//   - GET    /v1/events[?item=ID]         - SSE feed of assistant events
//   - GET    /v1/sessions                 - live sessions
//   - POST   /v1/sessions/{id}            - open (or restore) a session
//   - GET    /v1/sessions/{id}            - session messages and cached results
//   - DELETE /v1/sessions/{id}            - close, saving the transcript
//   - POST   /v1/sessions/{id}/ask        - question; JSON or SSE
//   - POST   /v1/sessions/{id}/abort      - stop the stream in flight
//   - POST   /v1/sessions/{id}/translate  - translate text
//   - POST   /v1/sessions/{id}/summarize  - summarize text
//   - POST   /v1/sessions/{id}/keypoints  - extract key points
//   - POST   /v1/sessions/{id}/note       - save Markdown into a note
//
// # Middleware
//
// Requests pass through request logging (with an X-Request-Id), panic
// recovery, security headers, CORS, bearer token auth and a per-client token
// bucket, in that order.
//
// # Usage
//
//	srv := server.New(asst, cfg.Server, server.WithLogger(logger))
//	go srv.ListenAndServe()
//	defer srv.Shutdown(ctx)
package server
