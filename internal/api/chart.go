// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"net/http"
)

// ErrNoChart indicates the chart endpoint answered successfully but
// produced no chart URL.
var ErrNoChart = errors.New("no chart in response")

// chartRequest is the follow-up request issued after a completed turn.
type chartRequest struct {
	Prompt         string       `json:"prompt"`
	ConversationID string       `json:"conversationId"`
	Options        chartOptions `json:"options"`
}

type chartOptions struct {
	IncludeSearch bool `json:"includeSearch"`
}

// chartResponse accepts the chart URL at either the top level or nested
// under `charts`.
type chartResponse struct {
	ChartURL string `json:"chartUrl"`
	Charts   struct {
		ChartURL string `json:"chartUrl"`
	} `json:"charts"`
}

// URL returns the chart URL wherever the backend put it.
func (r chartResponse) URL() string {
	if r.ChartURL != "" {
		return r.ChartURL
	}
	return r.Charts.ChartURL
}

// GenerateChart asks the backend to prepare a chart for a completed turn.
// The request always includes search context; the backend decides whether
// the prompt has anything visualizable and may simply fail, which callers
// treat as "no chart yet", never as a turn failure.
func (c *Client) GenerateChart(ctx context.Context, prompt, conversationID string) (string, error) {
	payload := chartRequest{
		Prompt:         prompt,
		ConversationID: conversationID,
		Options:        chartOptions{IncludeSearch: true},
	}

	var resp chartResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/charts", payload, &resp); err != nil {
		return "", err
	}
	if resp.URL() == "" {
		return "", ErrNoChart
	}
	return resp.URL(), nil
}
