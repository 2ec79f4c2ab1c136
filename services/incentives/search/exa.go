// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	exaBaseURL         = "https://api.exa.ai/search"
	defaultNumResults  = 5
	defaultMaxSnippets = 10000
)

type exaRequest struct {
	Query      string      `json:"query"`
	Type       string      `json:"type"`
	NumResults int         `json:"numResults"`
	Contents   exaContents `json:"contents"`
}

type exaContents struct {
	Text exaTextOptions `json:"text"`
}

type exaTextOptions struct {
	MaxCharacters int `json:"maxCharacters"`
}

type exaResult struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type exaResponse struct {
	Results []exaResult `json:"results"`
}

// ExaClient talks to the Exa search API. A shared token-bucket limiter
// paces requests across all workers so parallel fan-out does not trip
// the provider's rate limit; transient failures retry with backoff.
type ExaClient struct {
	httpClient    *http.Client
	limiter       *rate.Limiter
	retry         RetryConfig
	apiKey        string
	numResults    int
	maxCharacters int
}

func NewExaClient(apiKey string) (*ExaClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("EXA_API_KEY is missing")
	}
	return &ExaClient{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		limiter:       rate.NewLimiter(rate.Limit(2), 2),
		retry:         DefaultRetryConfig(),
		apiKey:        apiKey,
		numResults:    defaultNumResults,
		maxCharacters: defaultMaxSnippets,
	}, nil
}

// Search implements the Client interface. Retries are exhausted
// silently: the caller gets an empty slice and a warning in the log,
// never an aborted pipeline.
func (e *ExaClient) Search(ctx context.Context, query string) ([]Result, error) {
	var results []Result

	err := Retry(ctx, e.retry, func(ctx context.Context, attempt int) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		if attempt > 0 {
			slog.Debug("Retrying search", "query", query, "attempt", attempt)
		}
		found, err := e.searchOnce(ctx, query)
		if err != nil {
			return err
		}
		results = found
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("Search failed after retries", "query", query, "error", err)
		return nil, nil
	}
	return results, nil
}

func (e *ExaClient) searchOnce(ctx context.Context, query string) ([]Result, error) {
	payload := exaRequest{
		Query:      query,
		Type:       "auto",
		NumResults: e.numResults,
		Contents:   exaContents{Text: exaTextOptions{MaxCharacters: e.maxCharacters}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", exaBaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("x-api-key", e.apiKey)
	req.Header.Set("content-type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exa API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp exaResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	out := make([]Result, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		out = append(out, Result{URL: r.URL, Title: r.Title, Text: r.Text})
	}
	return out, nil
}
