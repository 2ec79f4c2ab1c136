// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package program

import "strings"

// Canonical target populations used to join programs to the population
// index. Free-form extracted strings map onto these via CanonicalPopulation.
var CanonicalPopulations = []string{
	"veterans",
	"people with disabilities",
	"ex-offenders",
	"TANF recipients",
	"SNAP recipients",
	"SSI recipients",
	"youth (18-24)",
	"long-term unemployed",
	"dislocated workers",
	"people in recovery",
	"low-income adults",
	"those with poor credit",
}

// populationAliases maps lowercase substrings to canonical names. Checked
// in order so the more specific aliases come first.
var populationAliases = []struct {
	substr    string
	canonical string
}{
	{"veteran", "veterans"},
	{"disabilit", "people with disabilities"},
	{"disabled", "people with disabilities"},
	{"ex-offender", "ex-offenders"},
	{"ex offender", "ex-offenders"},
	{"ex-felon", "ex-offenders"},
	{"felon", "ex-offenders"},
	{"returning citizen", "ex-offenders"},
	{"justice-involved", "ex-offenders"},
	{"formerly incarcerated", "ex-offenders"},
	{"tanf", "TANF recipients"},
	{"needy families", "TANF recipients"},
	{"snap", "SNAP recipients"},
	{"food stamp", "SNAP recipients"},
	{"ssi", "SSI recipients"},
	{"supplemental security", "SSI recipients"},
	{"youth", "youth (18-24)"},
	{"young adult", "youth (18-24)"},
	{"long-term unemployed", "long-term unemployed"},
	{"long term unemployed", "long-term unemployed"},
	{"dislocated", "dislocated workers"},
	{"recovery", "people in recovery"},
	{"substance", "people in recovery"},
	{"low-income", "low-income adults"},
	{"low income", "low-income adults"},
	{"poor credit", "those with poor credit"},
	{"credit", "those with poor credit"},
}

// CanonicalPopulation maps a free-form population string to its canonical
// name. The original string is returned unchanged when no alias matches,
// so uncanonicalized data still round-trips.
func CanonicalPopulation(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	if lower == "" {
		return s
	}
	for _, a := range populationAliases {
		if strings.Contains(lower, a.substr) {
			return a.canonical
		}
	}
	return s
}

// CanonicalizePopulations maps every entry of a target-population list,
// dropping empties and exact duplicates while preserving order.
func CanonicalizePopulations(pops []string) []string {
	out := make([]string, 0, len(pops))
	seen := make(map[string]bool, len(pops))
	for _, p := range pops {
		c := CanonicalPopulation(p)
		if strings.TrimSpace(c) == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
