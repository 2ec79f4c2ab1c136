// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package identity provides deterministic program identity: name
// normalization with acronym expansion, canonical location keys, 16-hex
// program IDs, and the weighted fuzzy-match predicate used to reconcile
// extracted programs against cached ones.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// SchemaVersion stamps the normalization scheme. Adding or changing an
// acronym expansion changes the IDs of programs whose names previously
// went unexpanded, which invalidates cached rows keyed under the old
// scheme. Bump this whenever acronymExpansions changes.
const SchemaVersion = 2

// acronymExpansions is applied during normalization so "WOTC" and
// "Work Opportunity Tax Credit" hash to the same key.
var acronymExpansions = []struct {
	pattern   *regexp.Regexp
	expansion string
}{
	{regexp.MustCompile(`\bwotc\b`), "work opportunity tax credit"},
	{regexp.MustCompile(`\bojt\b`), "on the job training"},
	{regexp.MustCompile(`\bwioa\b`), "workforce innovation and opportunity act"},
	{regexp.MustCompile(`\btanf\b`), "temporary assistance for needy families"},
	{regexp.MustCompile(`\bsnap\b`), "supplemental nutrition assistance program"},
	{regexp.MustCompile(`\bedge\b`), "economic development for a growing economy"},
	{regexp.MustCompile(`\bez\b`), "enterprise zone"},
	{regexp.MustCompile(`\bnpwe\b`), "non paid work experience"},
	{regexp.MustCompile(`\bsei\b`), "special employer incentives"},
	{regexp.MustCompile(`\bvra\b`), "vocational rehabilitation"},
	{regexp.MustCompile(`\bvr&e\b`), "vocational rehabilitation and employment"},
	{regexp.MustCompile(`\bhire\b`), "hiring incentives to restore employment"},
	{regexp.MustCompile(`\bcte\b`), "career and technical education"},
}

var (
	punctuationRe = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// NormalizeProgramName canonicalizes a program name for matching and
// hashing: lowercase, expand known acronyms, strip punctuation, collapse
// whitespace.
//
// Generic suffixes like "program", "credit", and "act" are deliberately
// NOT stripped: doing so collides distinct programs such as "Youth
// Employment Program" and "Youth Employment Grant" onto one cache key.
func NormalizeProgramName(name string) string {
	if name == "" {
		return ""
	}
	name = strings.ToLower(strings.TrimSpace(name))
	for _, a := range acronymExpansions {
		name = a.pattern.ReplaceAllString(name, a.expansion)
	}
	name = punctuationRe.ReplaceAllString(name, " ")
	name = whitespaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// NormalizeLocation builds the canonical location key used to partition
// the cache: "federal", slug(state), slug(county)_slug(state), or
// slug(city)_slug(state).
func NormalizeLocation(level, stateName, countyName, cityName string) string {
	switch level {
	case "federal":
		return "federal"
	case "state":
		return slug(stateName)
	case "county":
		return slug(countyName) + "_" + slug(stateName)
	case "city":
		return slug(cityName) + "_" + slug(stateName)
	}
	return slug(stateName)
}

// ComputeProgramID returns the deterministic program ID: SHA-256 of
// "normalizedName|level|locationKey" truncated to 16 hex characters.
// Stable across processes and operating systems.
func ComputeProgramID(normalizedName, level, locationKey string) string {
	raw := fmt.Sprintf("%s|%s|%s", normalizedName, level, locationKey)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}
