// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract turns raw web search results into structured Program
// records using an LLM, with per-record validation so one malformed
// entry never discards the batch.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/hirelift/hirelift/services/incentives/identity"
	"github.com/hirelift/hirelift/services/incentives/program"
	"github.com/hirelift/hirelift/services/incentives/search"
	"github.com/hirelift/hirelift/services/llm"
)

const (
	maxSnippets    = 10
	maxSnippetLen  = 1000
	extractionTemp = float32(0.3)
)

const extractionPromptTemplate = `You are an expert at identifying employer hiring incentive programs from web content.

Government Level: %s
Location: %s
Legal Entity Type: %s
Industry: %s

Search Results:
%s

Extract ALL employer hiring incentive programs mentioned. For each program, provide:
- program_name: Official name of the program
- agency: Government agency administering it
- benefit_type: One of [tax_credit, wage_subsidy, training_grant, bonding, other]
- max_value: Maximum benefit value (e.g., "$2,400 per hire")
- target_populations: List of eligible worker groups
- description: Brief description of the program
- source_url: URL where this was found
- confidence: "high" if official source, "medium" if secondary, "low" if uncertain

IMPORTANT RULES:
1. ONLY include programs that are administered by or available in "%s" at the %s level.
2. DO NOT include programs from other states, countries, cities, or counties.
   For example, if Location is "Arizona", do NOT include programs from Ohio, Alberta, or any other jurisdiction.
3. Do NOT fabricate programs. Every program you return MUST appear in the search results above.
4. If a source mentions a program but details are unclear, include it with confidence="low" rather than guessing details or omitting it.
5. Include every real program you can find in the correct geography. Err on the side of inclusion with appropriate confidence levels.

Return ONLY valid JSON array (no markdown):
[
    {
        "program_name": "...",
        "agency": "...",
        "benefit_type": "...",
        "max_value": "...",
        "target_populations": ["..."],
        "description": "...",
        "source_url": "...",
        "confidence": "..."
    }
]

If no programs found, return empty array: []`

// extractedProgram is the LLM's output shape. program_name, agency, and
// benefit_type are required; records missing any of them are dropped.
type extractedProgram struct {
	ProgramName       string   `json:"program_name" validate:"required"`
	Agency            string   `json:"agency" validate:"required"`
	BenefitType       string   `json:"benefit_type" validate:"required"`
	MaxValue          string   `json:"max_value"`
	TargetPopulations []string `json:"target_populations"`
	Description       string   `json:"description"`
	SourceURL         string   `json:"source_url"`
	Confidence        string   `json:"confidence"`
}

// Request carries the business context the prompt needs.
type Request struct {
	Level           string
	LocationName    string
	LocationKey     string
	LegalEntityType string
	IndustryCode    string
}

// Extractor runs LLM extraction over search results.
type Extractor struct {
	client   llm.Client
	validate *validator.Validate
}

func New(client llm.Client) *Extractor {
	return &Extractor{
		client:   client,
		validate: validator.New(),
	}
}

// Extract sends up to maxSnippets truncated search results to the model
// and returns validated Program records with deterministic IDs. An empty
// result set short-circuits without an LLM call.
func (e *Extractor) Extract(ctx context.Context, req Request, results []search.Result) ([]program.Program, error) {
	if len(results) == 0 {
		return nil, nil
	}
	if len(results) > maxSnippets {
		results = results[:maxSnippets]
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		text := truncateSnippet(r.Text)
		fmt.Fprintf(&b, "Source: %s\nTitle: %s\nContent: %s", r.URL, r.Title, text)
	}

	entityType := orUnknown(req.LegalEntityType)
	industry := orUnknown(req.IndustryCode)
	prompt := fmt.Sprintf(extractionPromptTemplate,
		req.Level, req.LocationName, entityType, industry, b.String(),
		req.LocationName, req.Level)

	temp := extractionTemp
	raw, err := e.client.Generate(ctx, prompt, llm.GenerationParams{Temperature: &temp})
	if err != nil {
		return nil, fmt.Errorf("extraction generation failed: %w", err)
	}

	var extracted []extractedProgram
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &extracted); err != nil {
		return nil, fmt.Errorf("extraction returned unparseable JSON: %w", err)
	}

	programs := make([]program.Program, 0, len(extracted))
	for _, ep := range extracted {
		if err := e.validate.Struct(ep); err != nil {
			slog.Warn("Skipping program missing required fields",
				"level", req.Level, "program", ep.ProgramName)
			continue
		}
		p := program.Program{
			ProgramName:       ep.ProgramName,
			Agency:            ep.Agency,
			BenefitType:       ep.BenefitType,
			Jurisdiction:      req.LocationName,
			MaxValue:          ep.MaxValue,
			TargetPopulations: ep.TargetPopulations,
			Description:       ep.Description,
			SourceURL:         ep.SourceURL,
			Confidence:        ep.Confidence,
			GovernmentLevel:   req.Level,
			LocationKey:       req.LocationKey,
		}
		if p.MaxValue == "" {
			p.MaxValue = "Unknown"
		}
		if p.Confidence == "" {
			p.Confidence = program.ConfidenceLow
		}
		if p.TargetPopulations == nil {
			p.TargetPopulations = []string{}
		}
		normalized := identity.NormalizeProgramName(p.ProgramName)
		p.ProgramNameNormalized = normalized
		p.ID = identity.ComputeProgramID(normalized, req.Level, req.LocationKey)
		programs = append(programs, p)
	}

	slog.Info("Extraction complete", "level", req.Level, "extracted", len(programs))
	return programs, nil
}

// truncateSnippet caps a search result's text at maxSnippetLen bytes
// without splitting a UTF-8 sequence.
func truncateSnippet(text string) string {
	if len(text) <= maxSnippetLen {
		return text
	}
	cut := maxSnippetLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
