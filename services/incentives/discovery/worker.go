// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package discovery runs per-government-level program discovery:
// cache-first baseline, live web search, LLM extraction, and fuzzy
// reconciliation of the two.
package discovery

import (
	"context"
	"log/slog"

	"github.com/hirelift/hirelift/services/incentives/cache"
	"github.com/hirelift/hirelift/services/incentives/extract"
	"github.com/hirelift/hirelift/services/incentives/identity"
	"github.com/hirelift/hirelift/services/incentives/program"
	"github.com/hirelift/hirelift/services/incentives/ratelimit"
	"github.com/hirelift/hirelift/services/incentives/search"
)

// Location is the resolved place a worker searches for.
type Location struct {
	StateName  string
	CountyName string
	CityName   string
}

// NameForLevel returns the display name for the level being searched,
// falling back to the state when the narrower name is unknown.
func (l Location) NameForLevel(level string) string {
	switch level {
	case program.LevelCity:
		if l.CityName != "" {
			return l.CityName
		}
	case program.LevelCounty:
		if l.CountyName != "" {
			return l.CountyName
		}
	}
	return l.StateName
}

// Key returns the canonical cache partition key for the level.
func (l Location) Key(level string) string {
	return identity.NormalizeLocation(level, l.StateName, l.CountyName, l.CityName)
}

// Params carries the per-session inputs to a discovery pass.
type Params struct {
	SessionID       string
	Location        Location
	Address         string
	LegalEntityType string
	IndustryCode    string
}

// Worker discovers programs at one government level. A nil searcher or
// extractor degrades the worker to its cached baseline (plus federal
// seeds at the federal level); it never fails the session.
type Worker struct {
	level     string
	store     cache.Store
	searcher  search.Client
	extractor *extract.Extractor
	limiter   *ratelimit.Limiter
	ttlDays   int
}

func NewWorker(level string, store cache.Store, searcher search.Client, extractor *extract.Extractor, limiter *ratelimit.Limiter, ttlDays int) *Worker {
	return &Worker{
		level:     level,
		store:     store,
		searcher:  searcher,
		extractor: extractor,
		limiter:   limiter,
		ttlDays:   ttlDays,
	}
}

func (w *Worker) Level() string { return w.level }

// Discover runs the full pass for one level:
//
//  1. Load the cached baseline for this partition.
//  2. Seed the hardcoded federal programs (federal level only).
//  3. Search the web, spending session budget per query.
//  4. Extract structured programs from the results.
//  5. Reconcile extracted programs against the cache by fuzzy match.
//  6. Persist new programs, confirm re-found ones, bump misses.
//
// The returned set is the union of live findings and the cached floor,
// keyed by cache key so no program appears twice.
func (w *Worker) Discover(ctx context.Context, p Params) ([]program.Program, error) {
	locationKey := p.Location.Key(w.level)
	locationName := p.Location.NameForLevel(w.level)
	log := slog.With("level", w.level, "location_key", locationKey)
	log.Info("Discovery start", "location", locationName)

	var allCached []program.Program
	if w.store != nil {
		fresh, stale, err := w.store.GetCached(ctx, w.level, locationKey, w.ttlDays)
		if err != nil {
			return nil, err
		}
		allCached = append(fresh, stale...)
		log.Info("Cache baseline", "fresh", len(fresh), "stale", len(stale))
	}

	ordered := make([]string, 0, 16)
	results := make(map[string]program.Program)
	foundKeys := make(map[string]struct{})
	add := func(key string, p program.Program) {
		if _, ok := results[key]; !ok {
			ordered = append(ordered, key)
		}
		results[key] = p
	}

	if w.level == program.LevelFederal {
		for _, seed := range cache.FederalPrograms() {
			normalized := identity.NormalizeProgramName(seed.ProgramName)
			seed.ProgramNameNormalized = normalized
			seed.ID = identity.ComputeProgramID(normalized, program.LevelFederal, "federal")
			seed.Jurisdiction = "United States"
			add(seed.ID, seed)
			foundKeys[seed.ID] = struct{}{}
			if w.store != nil {
				if _, err := w.store.Upsert(ctx, seed, program.LevelFederal, "federal"); err != nil {
					log.Warn("Federal seed upsert failed", "program", seed.ProgramName, "error", err)
				}
			}
		}
	}

	queries := BuildQueries(w.level, p.Location)
	searchResults := w.runSearches(ctx, p.SessionID, queries, log)
	extracted := w.runExtraction(ctx, p, locationKey, locationName, searchResults, log)

	for _, prog := range extracted {
		if match, ok := identity.MatchProgram(prog, allCached, identity.CacheMatchThreshold); ok {
			// Re-found a known program. Keep the cached key for ID
			// stability but serve the freshly extracted fields.
			cachedKey := match.Key()
			foundKeys[cachedKey] = struct{}{}
			foundKeys[prog.ID] = struct{}{}
			if w.store != nil {
				if err := w.store.Confirm(ctx, cachedKey); err != nil {
					log.Warn("Confirm failed", "cache_key", cachedKey, "error", err)
				}
			}
			prog.ID = cachedKey
			prog.CacheKey = cachedKey
			add(cachedKey, prog)
		} else {
			foundKeys[prog.ID] = struct{}{}
			if w.store != nil {
				if key, err := w.store.Upsert(ctx, prog, w.level, locationKey); err != nil {
					log.Warn("Upsert failed", "program", prog.ProgramName, "error", err)
				} else {
					prog.CacheKey = key
				}
			}
			add(prog.ID, prog)
		}
	}

	// Deterministic floor: cached programs not re-found still count.
	for _, cp := range allCached {
		key := cp.Key()
		if _, found := foundKeys[key]; !found {
			add(key, cp)
		}
	}

	if w.store != nil {
		if err := w.store.IncrementMiss(ctx, w.level, locationKey, foundKeys); err != nil {
			log.Warn("Miss-count update failed", "error", err)
		}
		if err := w.store.LogSearch(ctx, w.level, locationKey, queries, len(extracted)); err != nil {
			log.Warn("Search log append failed", "error", err)
		}
	}

	final := make([]program.Program, 0, len(ordered))
	for _, key := range ordered {
		final = append(final, results[key])
	}
	log.Info("Discovery complete", "programs", len(final), "extracted", len(extracted))
	return final, nil
}

// runSearches executes the level's queries under the session's search
// budget. Budget exhaustion stops searching and degrades to cache-only.
func (w *Worker) runSearches(ctx context.Context, sessionID string, queries []string, log *slog.Logger) []search.Result {
	if w.searcher == nil {
		return nil
	}
	var all []search.Result
	for _, query := range queries {
		if w.limiter != nil {
			if ok, reason := w.limiter.CheckAndIncrementSearch(sessionID); !ok {
				log.Warn("Search budget exhausted", "reason", reason)
				break
			}
		}
		results, err := w.searcher.Search(ctx, query)
		if err != nil {
			log.Warn("Search failed", "query", query, "error", err)
			continue
		}
		all = append(all, results...)
	}
	return all
}

// runExtraction sends search results to the LLM under the session's
// call budget.
func (w *Worker) runExtraction(ctx context.Context, p Params, locationKey, locationName string, results []search.Result, log *slog.Logger) []program.Program {
	if w.extractor == nil || len(results) == 0 {
		return nil
	}
	if w.limiter != nil {
		if ok, reason := w.limiter.CheckAndIncrementLLM(p.SessionID); !ok {
			log.Warn("LLM budget exhausted, skipping extraction", "reason", reason)
			return nil
		}
	}
	extracted, err := w.extractor.Extract(ctx, extract.Request{
		Level:           w.level,
		LocationName:    locationName,
		LocationKey:     locationKey,
		LegalEntityType: p.LegalEntityType,
		IndustryCode:    p.IndustryCode,
	}, results)
	if err != nil {
		log.Warn("Extraction failed", "error", err)
		return nil
	}
	return extracted
}
