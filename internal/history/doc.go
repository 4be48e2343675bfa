// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history reconciles server-side conversation history with the
// local session: listing summaries, loading full conversations, and
// removing them. The backend's records are loosely typed, so everything
// crossing into the model layer is defensively normalized here.
package history
