// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the HTTP client for the luna generation backend.
//
// The backend exposes a streaming chat endpoint (a server-sent event stream
// of JSON payloads), a chart preparation endpoint, and conversation CRUD.
// This package owns the wire concerns: request encoding (JSON or multipart
// when attachments are present), bearer authentication, SSE framing with
// stateful UTF-8 decoding, and validation of the loosely-typed stream
// payloads into a tagged Event union at the decoding boundary.
package api
