// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package identity

import (
	"sort"
	"strings"

	"github.com/hirelift/hirelift/services/incentives/program"
)

// CacheMatchThreshold is the minimum combined score for reconciling an
// extracted program against the cache. Cross-run candidates come from
// different search corpora and show more name drift, so the bar is looser
// than the join node's MergeThreshold.
const CacheMatchThreshold = 80.0

// Weights for the combined match score. Agencies are spelled
// inconsistently across sources, so agency similarity carries less weight
// than the program name.
const (
	nameWeight   = 0.7
	agencyWeight = 0.3
)

// neutralAgencyScore is used when either side has no agency on record.
const neutralAgencyScore = 50.0

// indelDistance returns the insert/delete edit distance between two
// strings (substitutions count as two edits). This matches the distance
// underlying a difflib-style similarity ratio.
func indelDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	// Single-row LCS DP; indel = len(a) + len(b) - 2*LCS.
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(rb)]
	return len(ra) + len(rb) - 2*lcs
}

// simpleRatio returns a 0-100 similarity for two strings based on indel
// distance, 100 meaning identical.
func simpleRatio(a, b string) float64 {
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 100
	}
	return 100 * (1 - float64(indelDistance(a, b))/float64(total))
}

func tokenSet(s string) []string {
	fields := strings.Fields(s)
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	tokens := make([]string, 0, len(set))
	for t := range set {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}

// TokenSetRatio returns an order-insensitive, duplicate-insensitive
// similarity score in [0, 100]. Token sets are split into the shared
// intersection and each side's remainder; the score is the best ratio
// among (intersection vs intersection+restA), (intersection vs
// intersection+restB), and the two combined strings. Shared-token
// subsets therefore score 100, which is what makes "Illinois Enterprise
// Zone Jobs Tax Credit" match "Jobs Tax Credit (Illinois Enterprise
// Zone)".
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 100
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inB := make(map[string]bool, len(tb))
	for _, t := range tb {
		inB[t] = true
	}
	inA := make(map[string]bool, len(ta))
	for _, t := range ta {
		inA[t] = true
	}

	var shared, restA, restB []string
	for _, t := range ta {
		if inB[t] {
			shared = append(shared, t)
		} else {
			restA = append(restA, t)
		}
	}
	for _, t := range tb {
		if !inA[t] {
			restB = append(restB, t)
		}
	}

	base := strings.Join(shared, " ")
	combA := strings.TrimSpace(base + " " + strings.Join(restA, " "))
	combB := strings.TrimSpace(base + " " + strings.Join(restB, " "))

	best := simpleRatio(combA, combB)
	if base != "" {
		if r := simpleRatio(base, combA); r > best {
			best = r
		}
		if r := simpleRatio(base, combB); r > best {
			best = r
		}
	}
	return best
}

// MatchScore computes the weighted name+agency score between a candidate
// and a cached program. Names must already be normalized.
func MatchScore(candName, candAgency, cachedName, cachedAgency string) float64 {
	nameScore := TokenSetRatio(candName, cachedName)
	agencyScore := neutralAgencyScore
	if candAgency != "" && cachedAgency != "" {
		agencyScore = TokenSetRatio(candAgency, cachedAgency)
	}
	return nameScore*nameWeight + agencyScore*agencyWeight
}

// MatchProgram returns the cached program that best matches the candidate
// with a combined score at or above threshold, or false when none does.
// A candidate with an empty normalized name never matches.
func MatchProgram(candidate program.Program, cached []program.Program, threshold float64) (program.Program, bool) {
	candName := NormalizeProgramName(candidate.ProgramName)
	if candName == "" {
		return program.Program{}, false
	}
	candAgency := strings.ToLower(strings.TrimSpace(candidate.Agency))

	var best program.Program
	bestScore := 0.0
	for _, c := range cached {
		cachedName := c.ProgramNameNormalized
		if cachedName == "" {
			cachedName = NormalizeProgramName(c.ProgramName)
		}
		cachedAgency := strings.ToLower(strings.TrimSpace(c.Agency))
		score := MatchScore(candName, candAgency, cachedName, cachedAgency)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if bestScore >= threshold {
		return best, true
	}
	return program.Program{}, false
}
