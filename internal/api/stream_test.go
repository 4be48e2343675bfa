// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// EVENT READER TESTS
// =============================================================================

func TestEventReader_FramesEvents(t *testing.T) {
	input := "event: message\ndata: {\"text\":\"hi\"}\n\n" +
		": heartbeat comment\n" +
		"data: line one\ndata: line two\n\n"

	reader := NewEventReader(strings.NewReader(input))

	evType, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("first ReadEvent failed: %v", err)
	}
	if evType != "message" {
		t.Errorf("event type = %q, expected %q", evType, "message")
	}
	if string(data) != `{"text":"hi"}` {
		t.Errorf("data = %q", data)
	}

	_, data, err = reader.ReadEvent()
	if err != nil {
		t.Fatalf("second ReadEvent failed: %v", err)
	}
	if string(data) != "line one\nline two" {
		t.Errorf("multi-line data = %q", data)
	}

	if _, _, err := reader.ReadEvent(); err != io.EOF {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestEventReader_TrailingEventWithoutBlankLine(t *testing.T) {
	reader := NewEventReader(strings.NewReader("data: tail\n"))

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}
	if string(data) != "tail" {
		t.Errorf("data = %q, expected %q", data, "tail")
	}
}

// oneByteReader yields a single byte per Read call, forcing multi-byte
// UTF-8 sequences to straddle read boundaries.
type oneByteReader struct {
	data []byte
	pos  int
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}

func TestEventReader_MultibyteAcrossChunks(t *testing.T) {
	payload := `data: {"text":"日本語テキスト🚀"}` + "\n\n"
	reader := NewEventReader(&oneByteReader{data: []byte(payload)})

	_, data, err := reader.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent failed: %v", err)
	}

	events, err := decodeEvents(data)
	if err != nil {
		t.Fatalf("decodeEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	delta, ok := events[0].(TextDelta)
	if !ok {
		t.Fatalf("expected TextDelta, got %T", events[0])
	}
	if delta.Text != "日本語テキスト🚀" {
		t.Errorf("multi-byte text corrupted: %q", delta.Text)
	}
}

// =============================================================================
// PAYLOAD DECODING TESTS
// =============================================================================

func TestDecodeEvents_FixedOrder(t *testing.T) {
	data := []byte(`{"conversationId":"conv_1","text":"hello","sources":[{"url":"https://a.com","title":"A"}],"finishReason":"stop"}`)

	events, err := decodeEvents(data)
	if err != nil {
		t.Fatalf("decodeEvents failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	if _, ok := events[0].(ConversationAssigned); !ok {
		t.Errorf("events[0] = %T, expected ConversationAssigned", events[0])
	}
	if _, ok := events[1].(SourceUpdate); !ok {
		t.Errorf("events[1] = %T, expected SourceUpdate", events[1])
	}
	if _, ok := events[2].(TextDelta); !ok {
		t.Errorf("events[2] = %T, expected TextDelta", events[2])
	}
	if _, ok := events[3].(Completed); !ok {
		t.Errorf("events[3] = %T, expected Completed", events[3])
	}
}

func TestDecodeEvents_ErroredPayload(t *testing.T) {
	events, err := decodeEvents([]byte(`{"error":"model overloaded"}`))
	if err != nil {
		t.Fatalf("decodeEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	errored, ok := events[0].(Errored)
	if !ok {
		t.Fatalf("expected Errored, got %T", events[0])
	}
	if errored.Message != "model overloaded" {
		t.Errorf("message = %q", errored.Message)
	}
}

func TestDecodeEvents_SourcesMixedShapes(t *testing.T) {
	data := []byte(`{"sources":["https://plain.com",{"url":"https://obj.com","title":"Obj"},42]}`)

	events, err := decodeEvents(data)
	if err != nil {
		t.Fatalf("decodeEvents failed: %v", err)
	}
	update, ok := events[0].(SourceUpdate)
	if !ok {
		t.Fatalf("expected SourceUpdate, got %T", events[0])
	}
	if len(update.Sources) != 2 {
		t.Fatalf("expected 2 sources (invalid entry dropped), got %d", len(update.Sources))
	}
	if update.Sources[0].URL != "https://plain.com" {
		t.Errorf("sources[0] = %+v", update.Sources[0])
	}
	if update.Sources[1].URL != "https://obj.com" || update.Sources[1].Title != "Obj" {
		t.Errorf("sources[1] = %+v", update.Sources[1])
	}
}

// =============================================================================
// STREAM PROCESSING TESTS
// =============================================================================

func collectEvents(t *testing.T, body string) []Event {
	t.Helper()
	var events []Event
	err := processStream(context.Background(), strings.NewReader(body), func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("processStream failed: %v", err)
	}
	return events
}

func TestProcessStream_SkipsMalformedData(t *testing.T) {
	body := "data: not json at all\n\n" +
		"data: {\"text\":\"still fine\"}\n\n"

	events := collectEvents(t, body)
	if len(events) != 1 {
		t.Fatalf("expected the malformed line to be skipped, got %d events", len(events))
	}
	if delta := events[0].(TextDelta); delta.Text != "still fine" {
		t.Errorf("delta = %q", delta.Text)
	}
}

func TestProcessStream_DoneSentinelIgnored(t *testing.T) {
	body := "data: {\"text\":\"a\"}\n\ndata: [DONE]\n\ndata: {\"text\":\"never seen\"}\n\n"

	events := collectEvents(t, body)
	if len(events) != 1 {
		t.Fatalf("expected stream to end at [DONE], got %d events", len(events))
	}
}

func TestProcessStream_StopsAfterCompleted(t *testing.T) {
	body := "data: {\"text\":\"a\"}\n\n" +
		"data: {\"finishReason\":\"stop\"}\n\n" +
		"data: {\"text\":\"late\"}\n\n"

	events := collectEvents(t, body)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if _, ok := events[1].(Completed); !ok {
		t.Errorf("last event = %T, expected Completed", events[1])
	}
}

func TestProcessStream_CallbackErrorAborts(t *testing.T) {
	body := "data: {\"text\":\"a\"}\n\ndata: {\"text\":\"b\"}\n\n"
	abort := errors.New("abort")

	count := 0
	err := processStream(context.Background(), strings.NewReader(body), func(Event) error {
		count++
		return abort
	})

	if !errors.Is(err, abort) {
		t.Errorf("expected callback error to propagate, got %v", err)
	}
	if count != 1 {
		t.Errorf("callback ran %d times after abort, expected 1", count)
	}
}

// =============================================================================
// STREAMING REQUEST TESTS
// =============================================================================

func TestStreamChat_HTTPErrorBeforeStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream is down"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.StreamChat(context.Background(), ChatRequest{Prompt: "hi"}, func(Event) error {
		t.Fatal("no events should be delivered on a status-level failure")
		return nil
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("status = %d", apiErr.Status)
	}
	if apiErr.Message != "upstream is down" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestStreamChat_DeliversEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept header = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok_123" {
			t.Errorf("Authorization header = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		io.WriteString(w, "data: {\"conversationId\":\"conv_7\"}\n\n")
		flusher.Flush()
		io.WriteString(w, "data: {\"text\":\"hello \"}\n\ndata: {\"text\":\"world\"}\n\n")
		io.WriteString(w, "data: {\"finishReason\":\"stop\"}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL).WithToken("tok_123")

	var text strings.Builder
	var convID string
	err := client.StreamChat(context.Background(), ChatRequest{Prompt: "hi"}, func(ev Event) error {
		switch e := ev.(type) {
		case ConversationAssigned:
			convID = e.ID
		case TextDelta:
			text.WriteString(e.Text)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}
	if convID != "conv_7" {
		t.Errorf("conversation ID = %q", convID)
	}
	if text.String() != "hello world" {
		t.Errorf("accumulated text = %q", text.String())
	}
}

func TestStreamChat_ContextCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"text\":\"first\"}\n\n")
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(server.URL)

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.StreamChat(ctx, ChatRequest{Prompt: "hi"}, func(Event) error { return nil })
	}()

	<-started
	cancel()

	err := <-errCh
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
