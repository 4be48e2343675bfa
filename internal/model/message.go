// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Luna"
	default:
		return string(r)
	}
}

// =============================================================================
// SOURCE TYPE
// =============================================================================

// Source is a single web reference attached to an assistant message.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// An assistant message is created before any content arrives; its ID stays
// stable for the whole turn so late effects (chart references) can find it.
// While streaming, content accumulates in a builder and Content stays empty;
// FinalizeStream moves the accumulated text into Content.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	// Content
	Content string `json:"content"`

	// Source references, replaced wholesale by each source snapshot.
	Sources []Source `json:"sources,omitempty"`

	// Chart references keyed by URL; the set form de-duplicates repeated
	// follow-up results.
	Charts map[string]struct{} `json:"charts,omitempty"`

	// Streaming state (not persisted)
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	IsStreaming   bool            `json:"-"`
	streamContent strings.Builder `json:"-"`
}

// NewUserMessage creates a finalized user message.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        generateMessageID(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage creates a streaming assistant message. The ID is
// assigned here, before any content exists.
func NewAssistantMessage() *Message {
	return &Message{
		ID:          generateMessageID(),
		Role:        RoleAssistant,
		CreatedAt:   time.Now(),
		IsStreaming: true,
	}
}

// NewLoadedMessage rebuilds a finalized message from persisted history.
// The zero time is legal for createdAt and means the backend never
// provided a parseable timestamp.
func NewLoadedMessage(role Role, content string, createdAt time.Time) *Message {
	return &Message{
		ID:        generateMessageID(),
		Role:      role,
		Content:   content,
		CreatedAt: createdAt,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendText appends a streamed text delta. No-op once finalized.
func (m *Message) AppendText(delta string) {
	if m.IsStreaming {
		m.streamContent.WriteString(delta)
	}
}

// SetSources replaces the source list with the given snapshot. The backend
// sends cumulative lists, so replacement (not union) is correct.
func (m *Message) SetSources(sources []Source) {
	m.Sources = sources
}

// AddChart records a chart reference. Repeated URLs collapse to one entry.
func (m *Message) AddChart(url string) {
	if url == "" {
		return
	}
	if m.Charts == nil {
		m.Charts = make(map[string]struct{})
	}
	m.Charts[url] = struct{}{}
}

// ChartURLs returns the chart references in a stable order.
func (m *Message) ChartURLs() []string {
	if len(m.Charts) == 0 {
		return nil
	}
	urls := make([]string, 0, len(m.Charts))
	for u := range m.Charts {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// FinalizeStream completes streaming: accumulated text becomes the
// immutable content and the creation timestamp is stamped.
func (m *Message) FinalizeStream() {
	if !m.IsStreaming {
		return
	}
	m.Content = m.streamContent.String()
	m.streamContent.Reset()
	m.IsStreaming = false
	m.CreatedAt = time.Now()
}

// SetContent overwrites the message content and ends streaming. Used for
// the empty-completion fallback and the synthetic error message.
func (m *Message) SetContent(content string) {
	m.streamContent.Reset()
	m.Content = content
	m.IsStreaming = false
}

// DisplayContent returns the content observers should render: the full
// accumulated snapshot while streaming, the final content afterwards.
func (m *Message) DisplayContent() string {
	if m.IsStreaming {
		return m.streamContent.String()
	}
	return m.Content
}

// IsEmpty returns true if the message carries no content at all.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0 && m.streamContent.Len() == 0
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateMessageID creates a unique message ID.
func generateMessageID() string {
	return "msg_" + uuid.NewString()
}
