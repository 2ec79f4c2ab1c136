// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache is the program knowledge base: a persistent accumulator
// of every program ever discovered, partitioned by (government level,
// location key). It provides the deterministic baseline for cache-first
// discovery, tracks confirmation/miss counters, and filters likely
// hallucinations at read time.
//
// Two interchangeable back-ends implement Store: an embedded SQLite file
// for local development and a networked Postgres store for production.
// Both expose identical operation semantics.
package cache

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hirelift/hirelift/services/incentives/program"
)

// Hallucination filter: a program missed this many times that was only
// ever discovered once is excluded from reads. A single re-confirmation
// rescues it (upsert resets the miss count); rows are never deleted.
const (
	HallucinationMissThreshold      = 3
	HallucinationDiscoveryThreshold = 1
)

// ErrNotFound is returned when a cache key does not exist.
var ErrNotFound = errors.New("cache: program not found")

var (
	upserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "incentives_cache_upserts_total",
		Help: "Program upserts by government level.",
	}, []string{"level"})
	confirmations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "incentives_cache_confirmations_total",
		Help: "Cached programs re-confirmed by a fresh search.",
	})
)

// Stats summarizes cache contents for the /usage endpoint.
type Stats struct {
	TotalPrograms int            `json:"total_programs"`
	ByLevel       map[string]int `json:"by_level"`
	TotalSearches int            `json:"total_searches"`
}

// Store is the program cache contract shared by both back-ends.
//
// All operations are snapshot-consistent per call; the cache does not
// expose multi-operation transactions to workers. Implementations must
// tolerate concurrent writers from parallel discovery workers.
type Store interface {
	// GetCached returns the (fresh, stale) programs for a partition.
	// Fresh means last verified within ttlDays. Rows caught by the
	// hallucination filter are excluded from both lists.
	GetCached(ctx context.Context, level, locationKey string, ttlDays int) (fresh, stale []program.Program, err error)

	// Upsert inserts a program or merges it into an existing row
	// (richer fields win, confidence ratchets up, discovery count
	// increments, miss count resets). Returns the cache key.
	Upsert(ctx context.Context, p program.Program, level, locationKey string) (string, error)

	// Confirm touches last_verified_at, increments discovery_count,
	// and resets miss_count for an existing row.
	Confirm(ctx context.Context, cacheKey string) error

	// IncrementMiss bumps miss_count for every row in the partition
	// whose key is absent from foundKeys.
	IncrementMiss(ctx context.Context, level, locationKey string, foundKeys map[string]struct{}) error

	// LogSearch appends an audit record for one worker search pass.
	LogSearch(ctx context.Context, level, locationKey string, queries []string, programsFound int) error

	// SeedFederal idempotently upserts the universal federal programs.
	SeedFederal(ctx context.Context, programs []program.Program) error

	// Stats returns aggregate counts.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// hallucinationFiltered reports whether a row should be hidden from reads.
func hallucinationFiltered(missCount, discoveryCount int) bool {
	return missCount >= HallucinationMissThreshold && discoveryCount <= HallucinationDiscoveryThreshold
}
