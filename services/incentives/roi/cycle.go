// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package roi

import (
	"context"
	"strconv"
	"strings"

	"github.com/hirelift/hirelift/services/incentives/program"
)

// DefaultMaxRounds bounds the refinement cycle so an indecisive model
// cannot loop forever.
const DefaultMaxRounds = 3

// Cycle is the per-session refinement state machine: analyze, ask,
// absorb answers, repeat until every calculation settles or the round
// budget runs out.
type Cycle struct {
	analyzer  *Analyzer
	maxRounds int

	shortlisted  []program.Program
	answers      map[string]any
	calculations []Calculation
	round        int
	complete     bool
}

func NewCycle(analyzer *Analyzer, shortlisted []program.Program, maxRounds int) *Cycle {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Cycle{
		analyzer:    analyzer,
		maxRounds:   maxRounds,
		shortlisted: shortlisted,
		answers:     make(map[string]any),
	}
}

func (c *Cycle) Round() int { return c.round }

func (c *Cycle) Complete() bool { return c.complete }

func (c *Cycle) Calculations() []Calculation { return c.calculations }

func (c *Cycle) Shortlisted() []program.Program { return c.shortlisted }

// Step runs one refinement round: analyze every shortlisted program
// with the answers gathered so far, refine the calculations, and return
// the questions still open. An empty question list means the cycle is
// complete.
func (c *Cycle) Step(ctx context.Context) []Question {
	if c.complete {
		return nil
	}

	calcs := make([]Calculation, 0, len(c.shortlisted))
	for _, p := range c.shortlisted {
		progAnswers := c.answersFor(p.ID)
		calcs = append(calcs, c.analyzer.Analyze(ctx, p, progAnswers))
	}

	allSettled := true
	for i := range calcs {
		p := c.programByID(calcs[i].ProgramID)
		if c.refine(&calcs[i], p) {
			continue
		}
		if calcs[i].NeedsRefinement {
			allSettled = false
		}
	}
	c.calculations = calcs
	c.round++

	if allSettled || c.round >= c.maxRounds {
		c.complete = true
		return nil
	}
	return RefinementQuestions(calcs)
}

// Absorb merges a batch of user answers into the cycle.
func (c *Cycle) Absorb(answers map[string]any) {
	for k, v := range answers {
		c.answers[k] = v
	}
}

// refine applies the user's answers to one calculation. The per-hire
// figure is the midpoint of the analyzer's estimated range when one was
// produced, the max_value heuristics otherwise. Returns true when
// answers existed and the calculation settled; a num_hires of zero
// records a zero total but leaves the calculation unsettled.
func (c *Cycle) refine(calc *Calculation, p program.Program) bool {
	progAnswers := c.answersFor(calc.ProgramID)
	if len(progAnswers) == 0 {
		return false
	}

	numHires := answerInt(progAnswers[calc.ProgramID+"_num_hires"])
	avgWage := answerFloat(progAnswers[calc.ProgramID+"_avg_wage"], 15)

	perHire := estimateMidpoint(calc.EstimatedValuePerHire)
	if perHire <= 0 {
		perHire = PerHireValue(p, avgWage, false)
	}
	total := perHire * float64(numHires)
	calc.RefinedTotalROI = &total
	calc.NumHiresUsed = numHires
	if numHires <= 0 {
		return false
	}
	calc.NeedsRefinement = false
	return true
}

// estimateMidpoint parses the analyzer's "$X - $Y" estimate into its
// dollar mean, zero when nothing parses.
func estimateMidpoint(estimate string) float64 {
	amounts := parseDollars(estimate)
	if len(amounts) == 0 {
		return 0
	}
	var sum float64
	for _, a := range amounts {
		sum += a
	}
	return sum / float64(len(amounts))
}

func (c *Cycle) programByID(id string) program.Program {
	for _, p := range c.shortlisted {
		if p.ID == id {
			return p
		}
	}
	return program.Program{}
}

func (c *Cycle) answersFor(programID string) map[string]any {
	if programID == "" {
		return nil
	}
	out := make(map[string]any)
	for k, v := range c.answers {
		if strings.HasPrefix(k, programID) {
			out[k] = v
		}
	}
	return out
}

// CalculationResult is the answer-driven ROI figure served by the API.
type CalculationResult struct {
	ProgramName   string         `json:"program_name"`
	ROIPerHire    float64        `json:"roi_per_hire"`
	NumberOfHires int            `json:"number_of_hires"`
	TotalROI      float64        `json:"total_roi"`
	InputValues   map[string]any `json:"input_values"`
}

// Calculate computes final ROI figures for a shortlist from the user's
// answers, using the per-hire value heuristics. num_hires defaults to
// zero (yielding a zero total, not an error); avg_wage defaults to $15.
func Calculate(shortlisted []program.Program, answers map[string]any, demo bool) []CalculationResult {
	results := make([]CalculationResult, 0, len(shortlisted))
	for _, p := range shortlisted {
		numHires := answerInt(answers[p.ID+"_num_hires"])
		avgWage := answerFloat(answers[p.ID+"_avg_wage"], 15)

		perHire := PerHireValue(p, avgWage, demo)
		total := perHire * float64(numHires)

		name := p.ProgramName
		if name == "" {
			name = "Unknown"
		}
		results = append(results, CalculationResult{
			ProgramName:   name,
			ROIPerHire:    perHire,
			NumberOfHires: numHires,
			TotalROI:      total,
			InputValues: map[string]any{
				"num_hires":                numHires,
				"avg_wage":                 avgWage,
				"estimated_value_per_hire": perHire,
				"raw_max_value":            p.MaxValue,
				"benefit_type":             strings.ToLower(p.BenefitType),
			},
		})
	}
	return results
}

// answerInt coerces a JSON answer value to an int, treating anything
// unparseable as zero.
func answerInt(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case int:
		return t
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return 0
}

// answerFloat coerces a JSON answer value to a float with a default.
func answerFloat(v any, def float64) float64 {
	switch t := v.(type) {
	case nil:
		return def
	case int:
		return float64(t)
	case float64:
		return t
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return def
}

// FormatDollars renders a total like "$30,000" for report output.
func FormatDollars(v float64) string {
	n := int64(v)
	s := strconv.FormatInt(n, 10)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := "$" + strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}
