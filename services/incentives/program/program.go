// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package program defines the central Program entity: a structured record
// describing a government hiring incentive, identified by a deterministic
// hash of its normalized name, government level, and location key.
package program

import "time"

// Government levels, ordered broadest to narrowest.
const (
	LevelFederal = "federal"
	LevelState   = "state"
	LevelCounty  = "county"
	LevelCity    = "city"
)

// Levels lists all government levels in canonical order.
var Levels = []string{LevelFederal, LevelState, LevelCounty, LevelCity}

// Benefit types a program can carry.
const (
	BenefitTaxCredit     = "tax_credit"
	BenefitWageSubsidy   = "wage_subsidy"
	BenefitTrainingGrant = "training_grant"
	BenefitBonding       = "bonding"
	BenefitOther         = "other"
)

// Confidence levels, low to high.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// ConfidenceRank maps a confidence label to its ordering. Unknown labels
// rank below "low" so the ratchet never downgrades a stored value.
func ConfidenceRank(c string) int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

// RatchetConfidence applies the upsert confidence rule: incoming "high"
// always wins, incoming "medium" wins unless stored is "high", anything
// else leaves the stored value unchanged.
func RatchetConfidence(stored, incoming string) string {
	switch {
	case incoming == ConfidenceHigh:
		return ConfidenceHigh
	case incoming == ConfidenceMedium && stored != ConfidenceHigh:
		return ConfidenceMedium
	}
	return stored
}

// ValidationError tags a non-fatal per-record issue found by the validator.
type ValidationError struct {
	Program   string `json:"program"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// Program is a discovered hiring-incentive program.
//
// Identity (ID) is a pure function of (normalized name, level, location
// key); see the identity package. The provenance counters are maintained
// by the cache: DiscoveryCount >= 1 for any persisted program, and a
// successful re-confirmation resets MissCount to zero.
type Program struct {
	ID                    string   `json:"id"`
	ProgramName           string   `json:"program_name"`
	ProgramNameNormalized string   `json:"program_name_normalized,omitempty"`
	Agency                string   `json:"agency"`
	BenefitType           string   `json:"benefit_type"`
	Jurisdiction          string   `json:"jurisdiction"`
	MaxValue              string   `json:"max_value"`
	TargetPopulations     []string `json:"target_populations"`
	Description           string   `json:"description"`
	SourceURL             string   `json:"source_url"`
	Confidence            string   `json:"confidence"`
	GovernmentLevel       string   `json:"government_level"`
	LocationKey           string   `json:"location_key,omitempty"`

	// Provenance, populated for cache-backed records.
	CacheKey          string    `json:"cache_key,omitempty"`
	FirstDiscoveredAt time.Time `json:"first_discovered_at,omitempty"`
	LastVerifiedAt    time.Time `json:"last_verified_at,omitempty"`
	DiscoveryCount    int       `json:"discovery_count,omitempty"`
	MissCount         int       `json:"miss_count,omitempty"`

	// Set by the join/validator stage.
	Validated        bool              `json:"validated"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
}

// Key returns the stable cache key for the program, falling back to ID
// for records that have not been through the cache yet.
func (p Program) Key() string {
	if p.CacheKey != "" {
		return p.CacheKey
	}
	return p.ID
}

// Better reports whether p should win over other when the join node
// collapses two same-level records: higher confidence wins, ties broken
// by the longer description.
func (p Program) Better(other Program) bool {
	pr, or := ConfidenceRank(p.Confidence), ConfidenceRank(other.Confidence)
	if pr != or {
		return pr > or
	}
	return len(p.Description) > len(other.Description)
}
