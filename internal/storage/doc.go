// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage is the local SQLite cache of server-side conversation
// history. It is a write-through cache, never the source of truth: history
// sync fills it after successful backend calls so the conversation list
// renders instantly on the next start.
package storage
