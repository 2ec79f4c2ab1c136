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
	"math"
	"testing"

	"github.com/hirelift/hirelift/services/incentives/program"
)

func TestNormalizeProgramName_AcronymEquivalence(t *testing.T) {
	testCases := []struct {
		acronym  string
		expanded string
	}{
		{"WOTC", "Work Opportunity Tax Credit"},
		{"OJT", "On-the-Job Training"},
		{"WIOA", "Workforce Innovation and Opportunity Act"},
		{"TANF", "Temporary Assistance for Needy Families"},
		{"SNAP", "Supplemental Nutrition Assistance Program"},
		{"EDGE", "Economic Development for a Growing Economy"},
		{"NPWE", "Non-Paid Work Experience"},
		{"SEI", "Special Employer Incentives"},
	}
	for _, tc := range testCases {
		t.Run(tc.acronym, func(t *testing.T) {
			a := NormalizeProgramName(tc.acronym)
			b := NormalizeProgramName(tc.expanded)
			if a != b {
				t.Errorf("normalize(%q) = %q, normalize(%q) = %q, want equal",
					tc.acronym, a, tc.expanded, b)
			}
		})
	}
}

func TestNormalizeProgramName_NoSuffixStripping(t *testing.T) {
	a := NormalizeProgramName("Youth Employment Program")
	b := NormalizeProgramName("Youth Employment Grant")
	if a == b {
		t.Errorf("distinct programs collapsed to %q", a)
	}
}

func TestNormalizeProgramName_PunctuationAndWhitespace(t *testing.T) {
	got := NormalizeProgramName("  Federal  Bonding: Program!  ")
	want := "federal bonding program"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeLocation(t *testing.T) {
	testCases := []struct {
		name   string
		level  string
		state  string
		county string
		city   string
		want   string
	}{
		{"federal", "federal", "Illinois", "", "", "federal"},
		{"state", "state", "Illinois", "", "", "illinois"},
		{"county", "county", "Illinois", "Cook County", "", "cook_county_illinois"},
		{"city", "city", "Illinois", "", "Chicago", "chicago_illinois"},
		{"two word state", "state", "New York", "", "", "new_york"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeLocation(tc.level, tc.state, tc.county, tc.city)
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestComputeProgramID_StableHex16(t *testing.T) {
	id1 := ComputeProgramID("work opportunity tax credit", "federal", "federal")
	id2 := ComputeProgramID("work opportunity tax credit", "federal", "federal")
	if id1 != id2 {
		t.Fatalf("id not deterministic: %q vs %q", id1, id2)
	}
	if len(id1) != 16 {
		t.Fatalf("id length = %d, want 16", len(id1))
	}
	for _, c := range id1 {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Fatalf("id %q contains non-hex character %q", id1, c)
		}
	}
}

func TestComputeProgramID_DistinctPartitions(t *testing.T) {
	base := ComputeProgramID("enterprise zone jobs tax credit", "state", "illinois")
	otherState := ComputeProgramID("enterprise zone jobs tax credit", "state", "arizona")
	otherLevel := ComputeProgramID("enterprise zone jobs tax credit", "county", "illinois")
	if base == otherState {
		t.Error("same id across different location keys")
	}
	if base == otherLevel {
		t.Error("same id across different levels")
	}
}

func TestTokenSetRatio_OrderInsensitive(t *testing.T) {
	score := TokenSetRatio("illinois enterprise zone jobs tax credit",
		"jobs tax credit illinois enterprise zone")
	if score != 100 {
		t.Errorf("reordered tokens scored %.1f, want 100", score)
	}
}

func TestTokenSetRatio_SubsetScores100(t *testing.T) {
	score := TokenSetRatio("work opportunity tax credit",
		"work opportunity tax credit wotc program")
	if score != 100 {
		t.Errorf("shared-token subset scored %.1f, want 100", score)
	}
}

func TestTokenSetRatio_Disjoint(t *testing.T) {
	score := TokenSetRatio("federal bonding", "apprenticeship grant")
	if score > 40 {
		t.Errorf("unrelated names scored %.1f, want low", score)
	}
}

func TestMatchScore_AgencyNeutralWhenMissing(t *testing.T) {
	withAgency := MatchScore("work opportunity tax credit", "department of labor",
		"work opportunity tax credit", "department of labor")
	noAgency := MatchScore("work opportunity tax credit", "",
		"work opportunity tax credit", "department of labor")

	if math.Abs(withAgency-100) > 1e-9 {
		t.Errorf("identical name+agency scored %.1f, want 100", withAgency)
	}
	// 0.7*100 + 0.3*50 with the neutral agency contribution.
	if math.Abs(noAgency-85) > 1e-9 {
		t.Errorf("missing agency scored %.1f, want 85", noAgency)
	}
}

func TestMatchProgram_AboveAndBelowThreshold(t *testing.T) {
	cached := []program.Program{
		{
			ProgramName:           "Work Opportunity Tax Credit",
			ProgramNameNormalized: "work opportunity tax credit",
			Agency:                "U.S. Department of Labor",
			CacheKey:              "cached-key",
		},
		{
			ProgramName:           "Federal Bonding Program",
			ProgramNameNormalized: "federal bonding program",
			Agency:                "U.S. Department of Labor",
		},
	}

	match, ok := MatchProgram(program.Program{
		ProgramName: "WOTC Program",
		Agency:      "Department of Labor",
	}, cached, CacheMatchThreshold)
	if !ok {
		t.Fatal("expected a match for WOTC against the cached WOTC entry")
	}
	if match.CacheKey != "cached-key" {
		t.Errorf("matched wrong entry: %+v", match)
	}

	_, ok = MatchProgram(program.Program{
		ProgramName: "Downtown Facade Improvement Grant",
		Agency:      "City of Chicago",
	}, cached, CacheMatchThreshold)
	if ok {
		t.Error("unrelated program should not match")
	}
}

func TestMatchProgram_EmptyNameNeverMatches(t *testing.T) {
	cached := []program.Program{{ProgramNameNormalized: ""}}
	_, ok := MatchProgram(program.Program{ProgramName: "  "}, cached, 0)
	if ok {
		t.Error("empty candidate name must not match")
	}
}
