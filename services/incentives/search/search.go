// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search wraps the web search provider used by discovery
// workers. Search failure is never fatal: after retries are exhausted a
// query degrades to zero results and the pipeline continues on cached
// data.
package search

import "context"

// Result is one web search hit.
type Result struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Client is the search provider contract. Implementations must be safe
// for concurrent use by parallel workers.
type Client interface {
	Search(ctx context.Context, query string) ([]Result, error)
}
