// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds the active conversation: the backend-assigned conversation
// identifier (empty until the backend announces one) and the ordered message
// log. Insertion order is chronological.
//
// A Session is mutated only by the orchestrator and history sync, never
// concurrently; observers read it between mutations on the same loop.
type Session struct {
	ConversationID string
	Messages       []*Message
}

// NewSession creates an empty session with no conversation identifier.
func NewSession() *Session {
	return &Session{
		Messages: make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message to the log.
func (s *Session) AddMessage(msg *Message) {
	s.Messages = append(s.Messages, msg)
}

// AddUserMessage creates and appends a user message.
func (s *Session) AddUserMessage(content string) *Message {
	msg := NewUserMessage(content)
	s.AddMessage(msg)
	return msg
}

// AddAssistantMessage creates and appends a streaming assistant message.
// Invariant: at most one non-terminal assistant message exists at a time;
// the orchestrator finalizes the prior turn before starting the next.
func (s *Session) AddAssistantMessage() *Message {
	msg := NewAssistantMessage()
	s.AddMessage(msg)
	return msg
}

// MessageByID returns the message with the given ID, or nil. Late effects
// (chart results landing after the session moved on) use this to decide
// whether to drop their update.
func (s *Session) MessageByID(id string) *Message {
	for _, msg := range s.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// LastMessage returns the most recent message, or nil if empty.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// MessageCount returns the number of messages.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// Replace swaps in a freshly loaded conversation. Called by history sync
// only after a load fully succeeded, so a failed load never leaves a
// partial overwrite.
func (s *Session) Replace(conversationID string, messages []*Message) {
	s.ConversationID = conversationID
	s.Messages = messages
}

// Reset clears the session back to a new empty chat.
func (s *Session) Reset() {
	s.ConversationID = ""
	s.Messages = make([]*Message, 0)
}

// =============================================================================
// SUMMARY TYPE
// =============================================================================

// Summary is lightweight conversation metadata for the history list.
// UpdatedAt is the best-available activity timestamp; it is the zero time
// when the backend provided nothing parseable, which sorts the entry last
// and renders as blank rather than a bogus date.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayTime returns the timestamp for list rendering, or empty when the
// backend never provided one.
func (s Summary) DisplayTime() string {
	if s.UpdatedAt.IsZero() {
		return ""
	}
	return s.UpdatedAt.Format("2006-01-02 15:04")
}
