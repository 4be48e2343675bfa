// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the luna backend API.
const (
	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// MaxErrorBodySize caps how much of an error response body is read.
	MaxErrorBodySize = 64 * 1024
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// Shared HTTP client for plain (non-streaming) requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for streaming requests. No client
	// timeout: the lifetime of a stream is controlled via context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// Error variables for common backend errors.
var (
	// ErrNotConfigured indicates the client has no base URL.
	ErrNotConfigured = errors.New("luna backend URL not configured")
)

// APIError represents a status-level failure from the backend: a non-2xx
// response received before any stream content. The body is surfaced as
// plain text, never parsed as an event stream.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("luna backend error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("luna backend error (HTTP %d)", e.Status)
}

// =============================================================================
// ATTACHMENTS AND REQUESTS
// =============================================================================

// Attachment is a file uploaded alongside a prompt.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// ChatRequest carries one turn's prompt to the streaming endpoint.
type ChatRequest struct {
	Prompt         string
	ConversationID string
	Attachments    []Attachment
}

// =============================================================================
// CLIENT
// =============================================================================

// Client communicates with the luna backend.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	streamClient *http.Client

	// limiter throttles non-streaming requests (history polling, chart
	// follow-ups); the primary stream is never delayed by it.
	limiter *rate.Limiter
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   sharedHTTPClient,
		streamClient: sharedStreamingClient,
		limiter:      rate.NewLimiter(rate.Limit(5), 10),
	}
}

// WithToken sets the bearer credential attached to every request.
func (c *Client) WithToken(token string) *Client {
	c.token = strings.TrimSpace(token)
	return c
}

// WithHTTPClient overrides the client used for plain requests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithLimiter overrides the rate limiter for non-streaming requests.
func (c *Client) WithLimiter(l *rate.Limiter) *Client {
	c.limiter = l
	return c
}

// IsConfigured returns true if the client has a base URL.
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// setHeaders applies the shared headers, including the bearer credential
// when one is configured.
func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", "luna-client/1.0")
}

// =============================================================================
// REQUEST ENCODING
// =============================================================================

// newChatRequest builds the primary turn request. The body is JSON unless
// attachments are present, in which case it switches to multipart form data.
func (c *Client) newChatRequest(ctx context.Context, req ChatRequest) (*http.Request, error) {
	url := c.baseURL + "/api/chat"

	if len(req.Attachments) == 0 {
		payload := struct {
			Prompt         string `json:"prompt"`
			ConversationID string `json:"conversationId,omitempty"`
		}{
			Prompt:         req.Prompt,
			ConversationID: req.ConversationID,
		}
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("prompt", req.Prompt); err != nil {
		return nil, fmt.Errorf("failed to write prompt field: %w", err)
	}
	if req.ConversationID != "" {
		if err := writer.WriteField("conversationId", req.ConversationID); err != nil {
			return nil, fmt.Errorf("failed to write conversation field: %w", err)
		}
	}
	for _, att := range req.Attachments {
		part, err := writer.CreateFormFile("files", att.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(att.Data); err != nil {
			return nil, fmt.Errorf("failed to write file part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	return httpReq, nil
}

// =============================================================================
// SHARED RESPONSE HANDLING
// =============================================================================

// handleErrorResponse converts a non-2xx response body into an APIError.
func handleErrorResponse(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	return &APIError{Status: status, Message: msg}
}

// doJSON issues a rate-limited non-streaming request and decodes the JSON
// response into out (when out is non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return handleErrorResponse(resp.StatusCode, errBody)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
