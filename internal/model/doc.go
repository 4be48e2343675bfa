// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for the luna chat client core.
//
// # Key Types
//
//   - Message: a single chat message with role, content, source references,
//     and chart references; assistant messages stream their content
//   - Session: the active conversation (backend identifier plus ordered
//     message log), exclusively owned by the orchestrating turn
//   - Summary: lightweight conversation metadata for the history list
//   - Role: message role enumeration (user, assistant)
//
// # Usage
//
// Start a turn against a session:
//
//	sess := model.NewSession()
//	sess.AddUserMessage("What moved the market today?")
//	pending := sess.AddAssistantMessage()
//	pending.AppendText("Markets ")
//	pending.FinalizeStream()
package model
