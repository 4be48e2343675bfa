// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"net/http"
)

// =============================================================================
// CONVERSATION RECORDS
// =============================================================================

// ConversationRecord is one raw summary entry from the conversation list.
// The backend is inconsistent about field names, so both spellings of each
// optional field are captured and normalization happens in the history
// package. Only the ID is guaranteed.
type ConversationRecord struct {
	ID string `json:"id"`

	Title string `json:"title"`
	Name  string `json:"name"`

	UpdatedAt      string `json:"updatedAt"`
	UpdatedAtSnake string `json:"updated_at"`
	CreatedAt      string `json:"createdAt"`
	CreatedAtSnake string `json:"created_at"`
}

// BestTitle returns the server-provided title, trying both field names.
func (r ConversationRecord) BestTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

// BestTimestamp returns the rawest-available activity timestamp, preferring
// update times over creation times.
func (r ConversationRecord) BestTimestamp() string {
	for _, ts := range []string{r.UpdatedAt, r.UpdatedAtSnake, r.CreatedAt, r.CreatedAtSnake} {
		if ts != "" {
			return ts
		}
	}
	return ""
}

// MessageRecord is one raw message from a conversation detail response.
// Role is "user" or "model"; the mapping of "model" to assistant happens in
// the history package.
type MessageRecord struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	CreatedAt      string `json:"createdAt"`
	CreatedAtSnake string `json:"created_at"`

	Sources []json.RawMessage `json:"sources"`
	Charts  ChartList         `json:"charts"`
}

// BestTimestamp returns the raw creation timestamp, trying both spellings.
func (r MessageRecord) BestTimestamp() string {
	if r.CreatedAt != "" {
		return r.CreatedAt
	}
	return r.CreatedAtSnake
}

// ConversationDetail is the full message history of one conversation.
type ConversationDetail struct {
	ID       string          `json:"id"`
	Messages []MessageRecord `json:"messages"`
}

// ChartList accepts the backend's `charts` field as either a single string
// or an array of strings.
type ChartList []string

// UnmarshalJSON implements the string-or-array decoding.
func (c *ChartList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			*c = ChartList{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*c = ChartList(many)
	return nil
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// ListConversations fetches the conversation summaries.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationRecord, error) {
	var records []ConversationRecord
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetConversation fetches the full message history for one conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (*ConversationDetail, error) {
	var detail ConversationDetail
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations/"+id, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// DeleteConversation removes a conversation on the backend. A success
// status is all that is required of the response.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/conversations/"+id, nil, nil)
}
