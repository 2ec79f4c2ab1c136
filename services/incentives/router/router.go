// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package router analyzes a business address and decides which
// government levels to fan out to. The LLM does the heavy lifting; a
// regex fallback guarantees routing never fails outright.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hirelift/hirelift/services/incentives/program"
	"github.com/hirelift/hirelift/services/llm"
)

const routerTemp = float32(0.3)

const routerPromptTemplate = `You are an expert at analyzing business addresses and determining which government levels
likely have hiring incentive programs.

Given this business information:
- Address: %s
- Legal Entity Type: %s
- Industry Code: %s

Analyze the address and determine:
1. The city name (if identifiable)
2. The county name (if identifiable)
3. The state name (required)
4. Which government levels likely have incentive programs for this business

Consider:
- Federal programs (WOTC, Federal Bonding, WIOA OJT) apply to ALL businesses
- State programs vary by state - all states have some programs
- County programs exist mainly in larger counties (pop > 500k)
- City programs exist mainly in major metros (pop > 250k)

For legal entity types:
- Non-profits may have additional grant programs
- C-Corps may have more tax credit options
- Small businesses (LLC, Sole Prop) may qualify for SBA programs

Return ONLY valid JSON (no markdown, no explanation):
{
    "city_name": "city name or null",
    "county_name": "county name or null",
    "state_name": "full state name",
    "government_levels": ["federal", "state", ...]
}

Note: government_levels should ALWAYS include "federal" and "state".
Only include "county" and "city" if those entities likely have programs.`

var (
	// "Chicago, IL 60601" style: two-letter code followed by a zip.
	stateZipRe = regexp.MustCompile(`\b([A-Z]{2})\s+\d{5}`)
	// "Denver, CO" style: two-letter code after a comma.
	commaStateRe = regexp.MustCompile(`,\s*([A-Z]{2})\b`)
)

// Request is the business profile being routed.
type Request struct {
	Address         string
	LegalEntityType string
	IndustryCode    string
}

// Result names the resolved location and the government levels worth
// searching. GovernmentLevels always contains at least federal and
// state, in canonical order, without duplicates.
type Result struct {
	CityName         string   `json:"city_name"`
	CountyName       string   `json:"county_name"`
	StateName        string   `json:"state_name"`
	GovernmentLevels []string `json:"government_levels"`
}

// Router resolves routing decisions.
type Router struct {
	client       llm.Client
	defaultState string
}

// New builds a Router. defaultState is the last-resort state name when
// neither the LLM nor the regex fallback can identify one. A nil client
// skips the LLM and routes by regex alone.
func New(client llm.Client, defaultState string) *Router {
	return &Router{client: client, defaultState: defaultState}
}

// Analyze determines the routing decision for a business. Any LLM or
// parse failure degrades to the regex fallback with federal+state
// levels; Analyze itself never returns an error for bad model output.
func (r *Router) Analyze(ctx context.Context, req Request) Result {
	if r.client == nil {
		return r.fallback(req.Address)
	}

	prompt := fmt.Sprintf(routerPromptTemplate,
		req.Address, orUnknown(req.LegalEntityType), orUnknown(req.IndustryCode))

	temp := routerTemp
	raw, err := r.client.Generate(ctx, prompt, llm.GenerationParams{Temperature: &temp})
	if err != nil {
		slog.Warn("Router LLM call failed, using fallback", "error", err)
		return r.fallback(req.Address)
	}

	var parsed struct {
		CityName         *string  `json:"city_name"`
		CountyName       *string  `json:"county_name"`
		StateName        string   `json:"state_name"`
		GovernmentLevels []string `json:"government_levels"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &parsed); err != nil {
		slog.Warn("Router returned unparseable JSON, using fallback", "error", err)
		return r.fallback(req.Address)
	}

	result := Result{
		CityName:   derefOrEmpty(parsed.CityName),
		CountyName: derefOrEmpty(parsed.CountyName),
		StateName:  parsed.StateName,
	}
	if result.StateName == "" || strings.EqualFold(result.StateName, "null") {
		result.StateName = r.stateOrDefault(req.Address)
	}
	result.GovernmentLevels = normalizeLevels(parsed.GovernmentLevels)
	return result
}

// fallback routes on the address alone: regex state extraction and the
// two levels that always apply.
func (r *Router) fallback(address string) Result {
	return Result{
		StateName:        r.stateOrDefault(address),
		GovernmentLevels: []string{program.LevelFederal, program.LevelState},
	}
}

func (r *Router) stateOrDefault(address string) string {
	if name := ParseStateFromAddress(address); name != "" {
		return name
	}
	return r.defaultState
}

// ParseStateFromAddress extracts the full state name from a US address
// using two passes: a state code followed by a zip, then the last state
// code after a comma. Returns "" when neither matches.
func ParseStateFromAddress(address string) string {
	upper := strings.ToUpper(address)
	if m := stateZipRe.FindStringSubmatch(upper); m != nil {
		if name, ok := StateCodes[m[1]]; ok {
			return name
		}
	}
	matches := commaStateRe.FindAllStringSubmatch(upper, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if name, ok := StateCodes[matches[i][1]]; ok {
			return name
		}
	}
	return ""
}

// normalizeLevels forces federal and state in, drops unknown levels,
// and restores canonical broadest-to-narrowest order.
func normalizeLevels(levels []string) []string {
	want := map[string]bool{program.LevelFederal: true, program.LevelState: true}
	for _, l := range levels {
		want[strings.ToLower(strings.TrimSpace(l))] = true
	}
	var out []string
	for _, l := range program.Levels {
		if want[l] {
			out = append(out, l)
		}
	}
	return out
}

func derefOrEmpty(s *string) string {
	if s == nil || strings.EqualFold(*s, "null") {
		return ""
	}
	return *s
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
