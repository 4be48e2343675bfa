// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/Satharva2004/luna-chatbot-frontend-sub000/internal/api"
	"github.com/Satharva2004/luna-chatbot-frontend-sub000/internal/model"
	"github.com/Satharva2004/luna-chatbot-frontend-sub000/internal/stage"
	"github.com/Satharva2004/luna-chatbot-frontend-sub000/internal/util"
)

// timestampLayouts are tried in order when normalizing backend dates.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp normalizes a backend date string. An empty or
// unparseable value yields the zero time: it sorts as oldest and renders
// as blank rather than a bogus date.
func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// maxTitleWidth bounds list titles to a single display line.
const maxTitleWidth = 60

// fallbackTitle builds a display title from the identifier prefix when
// the backend provided none.
func fallbackTitle(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return "Chat " + id
}

// normalizeTitle flattens a backend title for list rendering. Titles can
// contain newlines and CJK text, so width-aware truncation is used.
func normalizeTitle(raw string) string {
	return util.TruncateWidth(util.CollapseWhitespace(raw), maxTitleWidth)
}

// =============================================================================
// STORE
// =============================================================================

// Store is the optional local write-through cache. Cache failures are
// logged and swallowed: the server remains the source of truth.
type Store interface {
	SaveSummaries(ctx context.Context, summaries []model.Summary) error
	SaveMessages(ctx context.Context, conversationID string, messages []*model.Message) error
	DeleteConversation(ctx context.Context, conversationID string) error
}

// =============================================================================
// SYNCER
// =============================================================================

// Syncer reconciles backend conversation history with the local session.
//
// Every operation is idempotent and failure-atomic: a failed call leaves
// the session exactly as it was, never partially overwritten.
type Syncer struct {
	client  *api.Client
	session *model.Session
	tracker *stage.Tracker

	store Store

	// onReset fires after removing the active conversation clears the
	// session, so observers can re-render.
	onReset func()
}

// NewSyncer creates a syncer over the given client, session, and tracker.
func NewSyncer(client *api.Client, session *model.Session, tracker *stage.Tracker) *Syncer {
	return &Syncer{
		client:  client,
		session: session,
		tracker: tracker,
	}
}

// WithStore attaches a local write-through cache.
func (s *Syncer) WithStore(store Store) *Syncer {
	s.store = store
	return s
}

// OnReset registers a hook fired when removing the active conversation
// resets the session.
func (s *Syncer) OnReset(fn func()) *Syncer {
	s.onReset = fn
	return s
}

// =============================================================================
// OPERATIONS
// =============================================================================

// List fetches conversation summaries, normalized and sorted by last
// activity descending. Entries without any parseable timestamp sort last.
func (s *Syncer) List(ctx context.Context) ([]model.Summary, error) {
	records, err := s.client.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	summaries := make([]model.Summary, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		title := normalizeTitle(rec.BestTitle())
		if title == "" {
			title = fallbackTitle(rec.ID)
		}
		summaries = append(summaries, model.Summary{
			ID:        rec.ID,
			Title:     title,
			UpdatedAt: parseTimestamp(rec.BestTimestamp()),
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})

	if s.store != nil {
		if err := s.store.SaveSummaries(ctx, summaries); err != nil {
			log.Printf("luna history: caching summaries failed: %v", err)
		}
	}
	return summaries, nil
}

// Load replaces the session with the full history of one conversation.
// Messages are sorted by creation time, oldest first, with a stable order
// for ties; unparseable timestamps sort first. The session is only
// touched once the whole load has succeeded.
func (s *Syncer) Load(ctx context.Context, id string) error {
	detail, err := s.client.GetConversation(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load conversation %s: %w", id, err)
	}

	messages := make([]*model.Message, 0, len(detail.Messages))
	for _, rec := range detail.Messages {
		role := model.RoleUser
		// The backend says "model" where the session says assistant.
		if rec.Role != "user" {
			role = model.RoleAssistant
		}

		msg := model.NewLoadedMessage(role, rec.Content, parseTimestamp(rec.BestTimestamp()))
		if len(rec.Sources) > 0 {
			msg.SetSources(api.DecodeSources(rec.Sources))
		}
		for _, chart := range rec.Charts {
			msg.AddChart(chart)
		}
		messages = append(messages, msg)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})

	conversationID := detail.ID
	if conversationID == "" {
		conversationID = id
	}
	s.session.Replace(conversationID, messages)
	s.tracker.Reset()

	if s.store != nil {
		if err := s.store.SaveMessages(ctx, conversationID, messages); err != nil {
			log.Printf("luna history: caching conversation %s failed: %v", conversationID, err)
		}
	}
	return nil
}

// Remove deletes a conversation on the backend. Removing the currently
// active conversation is equivalent to starting a new chat: the session
// empties, the identifier clears, and the tracker resets.
func (s *Syncer) Remove(ctx context.Context, id string) error {
	if err := s.client.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}

	if s.store != nil {
		if err := s.store.DeleteConversation(ctx, id); err != nil {
			log.Printf("luna history: evicting conversation %s failed: %v", id, err)
		}
	}

	if s.session.ConversationID == id {
		s.session.Reset()
		s.tracker.Reset()
		if s.onReset != nil {
			s.onReset()
		}
	}
	return nil
}
