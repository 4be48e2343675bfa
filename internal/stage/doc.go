// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stage tracks the visible progress of an assistant turn through
// its three phases: web search, answer synthesis, and chart preparation.
package stage
