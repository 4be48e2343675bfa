// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/Satharva2004/luna-chatbot-frontend-sub000/internal/model"
)

// STREAMING: SSE framing with stateful UTF-8 decode and tolerant parsing

// =============================================================================
// EVENT UNION
// =============================================================================

// Event is one decoded stream event. The concrete types below form a
// tagged union validated at the decoding boundary; downstream code never
// sees the raw loosely-typed payloads.
type Event interface {
	streamEvent()
}

// ConversationAssigned announces the backend-assigned conversation ID.
type ConversationAssigned struct {
	ID string
}

// TextDelta carries one increment of assistant text.
type TextDelta struct {
	Text string
}

// SourceUpdate carries a cumulative snapshot of source references. Each
// snapshot replaces the previous one.
type SourceUpdate struct {
	Sources []model.Source
}

// Completed marks the end of generation.
type Completed struct {
	Reason string
}

// Errored carries a semantic error raised by the backend mid-stream.
type Errored struct {
	Message string
}

func (ConversationAssigned) streamEvent() {}
func (TextDelta) streamEvent()            {}
func (SourceUpdate) streamEvent()         {}
func (Completed) streamEvent()            {}
func (Errored) streamEvent()              {}

// EventCallback is invoked for each decoded event, in arrival order.
// Returning an error aborts the stream.
type EventCallback func(Event) error

// =============================================================================
// EVENT READER
// =============================================================================

// EventReader frames server-sent events from a byte stream.
//
// The raw bytes pass through a stateful UTF-8 decoder, so a multi-byte
// character split across two network chunks decodes correctly instead of
// producing replacement runes at chunk boundaries.
type EventReader struct {
	reader *bufio.Reader
}

// NewEventReader creates an event reader over r.
func NewEventReader(r io.Reader) *EventReader {
	decoded := transform.NewReader(r, unicode.UTF8.NewDecoder())
	return &EventReader{
		reader: bufio.NewReader(decoded),
	}
}

// ReadEvent reads the next SSE event: `event:` lines set the type label,
// `data:` lines accumulate the payload, a blank line ends the event.
// Comment lines (leading ':') and unknown fields are ignored.
// Returns io.EOF when the stream ends.
func (s *EventReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				// Flush a trailing unterminated event before EOF.
				if len(dataLines) > 0 {
					return eventType, bytes.Join(dataLines, []byte("\n")), nil
				}
				return "", nil, io.EOF
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line signals end of event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// id:, retry:, and ':' comments are ignored.
	}
}

// =============================================================================
// PAYLOAD DECODING
// =============================================================================

// streamPayload mirrors the backend's loosely-typed event shape. Every key
// is optional; one payload may carry several.
type streamPayload struct {
	ConversationID string            `json:"conversationId"`
	Text           string            `json:"text"`
	Sources        []json.RawMessage `json:"sources"`
	FinishReason   string            `json:"finishReason"`
	Error          string            `json:"error"`
}

// decodeEvents validates one data payload into zero or more events, in a
// fixed order: assignment, sources, text, error, completion.
func decodeEvents(data []byte) ([]Event, error) {
	var payload streamPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	var events []Event
	if payload.ConversationID != "" {
		events = append(events, ConversationAssigned{ID: payload.ConversationID})
	}
	if payload.Sources != nil {
		events = append(events, SourceUpdate{Sources: DecodeSources(payload.Sources)})
	}
	if payload.Text != "" {
		events = append(events, TextDelta{Text: payload.Text})
	}
	if payload.Error != "" {
		events = append(events, Errored{Message: payload.Error})
	}
	if payload.FinishReason != "" {
		events = append(events, Completed{Reason: payload.FinishReason})
	}
	return events, nil
}

// DecodeSources accepts each entry as either a {url, title} object or a
// bare URL string. Entries that are neither are dropped. History responses
// reuse the same rules as the stream boundary.
func DecodeSources(raw []json.RawMessage) []model.Source {
	sources := make([]model.Source, 0, len(raw))
	for _, entry := range raw {
		var obj model.Source
		if err := json.Unmarshal(entry, &obj); err == nil && obj.URL != "" {
			sources = append(sources, obj)
			continue
		}
		var url string
		if err := json.Unmarshal(entry, &url); err == nil && url != "" {
			sources = append(sources, model.Source{URL: url})
		}
	}
	return sources
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamChat issues the primary turn request and drives fn for each decoded
// event, sequentially and in arrival order. It returns once the stream is
// fully consumed, the backend reports completion, fn aborts, or the context
// is cancelled.
//
// A non-2xx status before streaming begins is returned as an *APIError with
// the body as plain text. A data line that is not valid JSON is logged and
// skipped; heartbeats and comments are legal mid-stream.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest, fn EventCallback) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	httpReq, err := c.newChatRequest(ctx, req)
	if err != nil {
		return err
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return handleErrorResponse(resp.StatusCode, body)
	}

	return processStream(ctx, resp.Body, fn)
}

// processStream reads and applies the SSE stream.
func processStream(ctx context.Context, body io.Reader, fn EventCallback) error {
	reader := NewEventReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		// A [DONE] sentinel is tolerated and ignored.
		if bytes.Equal(data, []byte("[DONE]")) {
			return nil
		}

		events, err := decodeEvents(data)
		if err != nil {
			// Malformed payloads never abort the whole stream.
			log.Printf("luna stream: skipping malformed event: %v", err)
			continue
		}

		done := false
		for _, ev := range events {
			if err := fn(ev); err != nil {
				return err
			}
			if _, ok := ev.(Completed); ok {
				done = true
			}
		}
		if done {
			return nil
		}
	}
}
