// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Satharva2004/luna-chatbot-frontend-sub000/internal/model"
	"github.com/Satharva2004/luna-chatbot-frontend-sub000/internal/stage"
)

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Notification is one state-change announcement from the orchestrator.
// Observers receive them sequentially, in mutation order.
type Notification interface {
	chatNotification()
}

// MessageUpdated announces new content on a message. The message carries
// the full accumulated text, so observers always see a consistent snapshot
// rather than a bare delta.
type MessageUpdated struct {
	Message *model.Message
}

// SourcesUpdated announces a replaced source list on a message.
type SourcesUpdated struct {
	Message *model.Message
}

// StagesChanged announces a stage tracker transition.
type StagesChanged struct {
	Stages stage.Snapshot
}

// ConversationAssigned announces the backend-assigned conversation ID.
type ConversationAssigned struct {
	ID string
}

// TurnCompleted announces a successfully finalized assistant message.
type TurnCompleted struct {
	Message *model.Message
}

// TurnFailed announces a turn-level failure. The message is the synthetic
// apology appended in place of the answer.
type TurnFailed struct {
	Err     error
	Message *model.Message
}

func (MessageUpdated) chatNotification()       {}
func (SourcesUpdated) chatNotification()       {}
func (StagesChanged) chatNotification()        {}
func (ConversationAssigned) chatNotification() {}
func (TurnCompleted) chatNotification()        {}
func (TurnFailed) chatNotification()           {}

// Observer consumes notifications. A nil observer is legal and means the
// caller polls state directly.
type Observer func(Notification)

// =============================================================================
// BUBBLE TEA FEED
// =============================================================================

// Feed bridges orchestrator notifications to a Bubble Tea program. Its
// Publish method is an Observer; Wait produces the tea.Cmd that delivers
// the next notification as a tea.Msg.
type Feed struct {
	ch chan Notification
}

// NewFeed creates a feed with the given buffer size.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 64
	}
	return &Feed{ch: make(chan Notification, size)}
}

// Publish enqueues a notification. When the buffer is full the oldest
// entry is dropped so a stalled UI never blocks the stream.
func (f *Feed) Publish(n Notification) {
	for {
		select {
		case f.ch <- n:
			return
		default:
			select {
			case <-f.ch:
			default:
			}
		}
	}
}

// Wait returns a command that blocks until the next notification.
func (f *Feed) Wait() tea.Cmd {
	return func() tea.Msg {
		n, ok := <-f.ch
		if !ok {
			return nil
		}
		return n
	}
}

// Close shuts the feed down. Pending Wait commands resolve to nil.
func (f *Feed) Close() {
	close(f.ch)
}
