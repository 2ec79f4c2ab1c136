// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package roi estimates the return on investment of shortlisted
// programs and drives the bounded question/answer refinement cycle.
package roi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hirelift/hirelift/services/incentives/program"
	"github.com/hirelift/hirelift/services/llm"
)

const analyzerTemp = float32(0.3)

const analyzerPromptTemplate = `You are an ROI analyst for employer hiring incentive programs.

Analyze this program and estimate potential ROI:
- Program: %s
- Benefit Type: %s
- Max Value: %s
- Target Populations: %s

Previous answers (if any): %s

Calculate:
1. Estimated value per hire (range)
2. Typical qualification rate
3. Administrative complexity (low/medium/high)
4. Time to receive benefit

Return JSON:
{
    "estimated_value_per_hire": "$X - $Y",
    "qualification_rate": "X%%",
    "complexity": "low|medium|high",
    "time_to_benefit": "X weeks/months",
    "confidence": "high|medium|low",
    "needs_more_info": ["list of info needed for refinement"]
}`

// Calculation is one program's ROI estimate as it moves through the
// cycle. The Refined* fields are filled in once the user's answers
// arrive.
type Calculation struct {
	ProgramID   string `json:"program_id"`
	ProgramName string `json:"program_name"`

	EstimatedValuePerHire string   `json:"estimated_value_per_hire,omitempty"`
	QualificationRate     string   `json:"qualification_rate,omitempty"`
	Complexity            string   `json:"complexity,omitempty"`
	TimeToBenefit         string   `json:"time_to_benefit,omitempty"`
	Confidence            string   `json:"confidence,omitempty"`
	NeedsMoreInfo         []string `json:"needs_more_info,omitempty"`
	NeedsRefinement       bool     `json:"needs_refinement"`
	Error                 string   `json:"error,omitempty"`

	RefinedTotalROI *float64 `json:"refined_total_roi,omitempty"`
	NumHiresUsed    int      `json:"num_hires_used,omitempty"`
}

// Analyzer runs LLM-backed ROI estimation for shortlisted programs.
type Analyzer struct {
	client llm.Client
}

func NewAnalyzer(client llm.Client) *Analyzer {
	return &Analyzer{client: client}
}

// Analyze estimates one program's ROI. Errors are folded into the
// returned Calculation (flagged for refinement) so a single failure
// never aborts the round. previousAnswers are this program's answers
// from earlier rounds.
func (a *Analyzer) Analyze(ctx context.Context, p program.Program, previousAnswers map[string]any) Calculation {
	calc := Calculation{ProgramID: p.ID, ProgramName: p.ProgramName}

	if a.client == nil {
		calc.NeedsRefinement = true
		return calc
	}

	answersJSON, _ := json.Marshal(previousAnswers)
	prompt := fmt.Sprintf(analyzerPromptTemplate,
		orDefault(p.ProgramName, "Unknown"),
		orDefault(p.BenefitType, "unknown"),
		orDefault(p.MaxValue, "Unknown"),
		strings.Join(p.TargetPopulations, ", "),
		string(answersJSON))

	temp := analyzerTemp
	raw, err := a.client.Generate(ctx, prompt, llm.GenerationParams{Temperature: &temp})
	if err != nil {
		slog.Warn("ROI analysis failed", "program", p.ProgramName, "error", err)
		calc.Error = err.Error()
		calc.NeedsRefinement = true
		return calc
	}

	var parsed struct {
		EstimatedValuePerHire string   `json:"estimated_value_per_hire"`
		QualificationRate     string   `json:"qualification_rate"`
		Complexity            string   `json:"complexity"`
		TimeToBenefit         string   `json:"time_to_benefit"`
		Confidence            string   `json:"confidence"`
		NeedsMoreInfo         []string `json:"needs_more_info"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &parsed); err != nil {
		slog.Warn("ROI analysis returned unparseable JSON", "program", p.ProgramName, "error", err)
		calc.Error = err.Error()
		calc.NeedsRefinement = true
		return calc
	}

	calc.EstimatedValuePerHire = parsed.EstimatedValuePerHire
	calc.QualificationRate = parsed.QualificationRate
	calc.Complexity = parsed.Complexity
	calc.TimeToBenefit = parsed.TimeToBenefit
	calc.Confidence = parsed.Confidence
	calc.NeedsMoreInfo = parsed.NeedsMoreInfo
	calc.NeedsRefinement = len(parsed.NeedsMoreInfo) > 0
	return calc
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
