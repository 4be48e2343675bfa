// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat orchestrates one conversational turn against the luna
// backend: it issues the streaming request, applies stream events to the
// session and stage tracker in arrival order, and fires the chart
// follow-up once the primary answer has been committed.
//
// The orchestrator is decoupled from any rendering layer. State changes
// are published as Notification values through a pluggable observer; Feed
// adapts them to a Bubble Tea program.
package chat
