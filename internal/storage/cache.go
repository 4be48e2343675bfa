// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/Satharva2004/luna-chatbot-frontend-sub000/internal/model"
)

const (
	// SchemaVersion tracks the cache schema for migrations.
	SchemaVersion = 1
)

// SQLite schema for the conversation cache.
const schema = `
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- Conversation summaries for the history list
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    updated_at INTEGER NOT NULL  -- Unix timestamp, 0 when the backend gave none
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);

-- Cached messages, one row per message in load order
CREATE TABLE IF NOT EXISTS messages (
    conversation_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    sources TEXT,  -- JSON array of {url, title}
    charts TEXT,   -- JSON array of URLs
    PRIMARY KEY (conversation_id, position)
);
`

const initMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
INSERT OR IGNORE INTO metadata (key, value) VALUES ('created_at', strftime('%s', 'now'));
`

// =============================================================================
// CACHE
// =============================================================================

// Cache is the local history cache backed by SQLite.
type Cache struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the cache database at path, creating parent
// directories as needed.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := db.Exec(initMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

// =============================================================================
// SUMMARIES
// =============================================================================

// SaveSummaries replaces the cached conversation list in one transaction.
func (c *Cache) SaveSummaries(ctx context.Context, summaries []model.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations"); err != nil {
		return fmt.Errorf("failed to clear summaries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO conversations (id, title, updated_at) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range summaries {
		var ts int64
		if !s.UpdatedAt.IsZero() {
			ts = s.UpdatedAt.Unix()
		}
		if _, err := stmt.ExecContext(ctx, s.ID, s.Title, ts); err != nil {
			return fmt.Errorf("failed to insert summary %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

// Summaries returns the cached conversation list, most recent first.
// Entries without a timestamp sort last.
func (c *Cache) Summaries(ctx context.Context) ([]model.Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx,
		"SELECT id, title, updated_at FROM conversations ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []model.Summary
	for rows.Next() {
		var s model.Summary
		var ts int64
		if err := rows.Scan(&s.ID, &s.Title, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if ts > 0 {
			s.UpdatedAt = time.Unix(ts, 0).UTC()
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// =============================================================================
// MESSAGES
// =============================================================================

// SaveMessages replaces the cached messages of one conversation.
func (c *Cache) SaveMessages(ctx context.Context, conversationID string, messages []*model.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (conversation_id, position, role, content, created_at, sources, charts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, msg := range messages {
		var ts int64
		if !msg.CreatedAt.IsZero() {
			ts = msg.CreatedAt.Unix()
		}

		var sources any
		if len(msg.Sources) > 0 {
			encoded, err := json.Marshal(msg.Sources)
			if err != nil {
				return fmt.Errorf("failed to encode sources: %w", err)
			}
			sources = string(encoded)
		}

		var charts any
		if urls := msg.ChartURLs(); len(urls) > 0 {
			encoded, err := json.Marshal(urls)
			if err != nil {
				return fmt.Errorf("failed to encode charts: %w", err)
			}
			charts = string(encoded)
		}

		if _, err := stmt.ExecContext(ctx,
			conversationID, i, msg.Role.String(), msg.Content, ts, sources, charts); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Messages returns the cached messages of one conversation in load order.
func (c *Cache) Messages(ctx context.Context, conversationID string) ([]*model.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT role, content, created_at, sources, charts
		FROM messages WHERE conversation_id = ? ORDER BY position`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		var role, content string
		var ts int64
		var sources, charts sql.NullString
		if err := rows.Scan(&role, &content, &ts, &sources, &charts); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		var createdAt time.Time
		if ts > 0 {
			createdAt = time.Unix(ts, 0).UTC()
		}
		msg := model.NewLoadedMessage(model.Role(role), content, createdAt)

		if sources.Valid {
			var decoded []model.Source
			if err := json.Unmarshal([]byte(sources.String), &decoded); err != nil {
				return nil, fmt.Errorf("failed to decode sources: %w", err)
			}
			msg.SetSources(decoded)
		}
		if charts.Valid {
			var urls []string
			if err := json.Unmarshal([]byte(charts.String), &urls); err != nil {
				return nil, fmt.Errorf("failed to decode charts: %w", err)
			}
			for _, u := range urls {
				msg.AddChart(u)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DeleteConversation removes one conversation and its messages.
func (c *Cache) DeleteConversation(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM conversations WHERE id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to delete summary: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM messages WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	return tx.Commit()
}
