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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirelift/hirelift/services/incentives/program"
	"github.com/hirelift/hirelift/services/llm"
)

type stubClient struct {
	response string
	err      error
}

func (s *stubClient) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return s.response, s.err
}

func shortlistedProgram() program.Program {
	return program.Program{
		ID:                "p1",
		ProgramName:       "Work Opportunity Tax Credit",
		BenefitType:       program.BenefitTaxCredit,
		MaxValue:          "$2,400 - $9,600 per hire",
		TargetPopulations: []string{"veterans"},
	}
}

func TestAnalyze_ParsesResponse(t *testing.T) {
	a := NewAnalyzer(&stubClient{response: `{
		"estimated_value_per_hire": "$2,400 - $9,600",
		"qualification_rate": "30%",
		"complexity": "medium",
		"time_to_benefit": "3 months",
		"confidence": "high",
		"needs_more_info": []
	}`})

	calc := a.Analyze(context.Background(), shortlistedProgram(), nil)
	assert.Equal(t, "p1", calc.ProgramID)
	assert.Equal(t, "$2,400 - $9,600", calc.EstimatedValuePerHire)
	assert.Equal(t, "medium", calc.Complexity)
	assert.False(t, calc.NeedsRefinement)
	assert.Empty(t, calc.Error)
}

func TestAnalyze_OpenNeedsFlagRefinement(t *testing.T) {
	a := NewAnalyzer(&stubClient{response: `{
		"estimated_value_per_hire": "$2,400 - $9,600",
		"needs_more_info": ["number of planned hires"]
	}`})

	calc := a.Analyze(context.Background(), shortlistedProgram(), nil)
	assert.True(t, calc.NeedsRefinement)
	assert.Equal(t, []string{"number of planned hires"}, calc.NeedsMoreInfo)
}

func TestAnalyze_ErrorFoldedIntoCalculation(t *testing.T) {
	a := NewAnalyzer(&stubClient{err: errors.New("model overloaded")})

	calc := a.Analyze(context.Background(), shortlistedProgram(), nil)
	assert.True(t, calc.NeedsRefinement)
	assert.Equal(t, "model overloaded", calc.Error)
}

func TestAnalyze_NilClient(t *testing.T) {
	a := NewAnalyzer(nil)
	calc := a.Analyze(context.Background(), shortlistedProgram(), nil)
	assert.True(t, calc.NeedsRefinement)
	assert.Empty(t, calc.Error)
}

func TestCycle_SettlesOnceAnswersArrive(t *testing.T) {
	a := NewAnalyzer(&stubClient{response: `{
		"estimated_value_per_hire": "$2,400 - $9,600",
		"needs_more_info": ["number of planned hires"]
	}`})
	c := NewCycle(a, []program.Program{shortlistedProgram()}, 3)

	questions := c.Step(context.Background())
	require.Len(t, questions, 1)
	assert.Equal(t, "p1_num_hires", questions[0].ID)
	assert.False(t, c.Complete())
	assert.Equal(t, 1, c.Round())

	c.Absorb(map[string]any{"p1_num_hires": 5, "p1_avg_wage": 22.5})
	questions = c.Step(context.Background())
	assert.Nil(t, questions)
	assert.True(t, c.Complete())

	calcs := c.Calculations()
	require.Len(t, calcs, 1)
	require.NotNil(t, calcs[0].RefinedTotalROI)
	assert.InDelta(t, 30000, *calcs[0].RefinedTotalROI, 1e-9)
	assert.Equal(t, 5, calcs[0].NumHiresUsed)
	assert.False(t, calcs[0].NeedsRefinement)
}

func TestCycle_RefinementUsesAnalyzerEstimate(t *testing.T) {
	// The analyzer's range, not the raw max_value text, drives the
	// refined total.
	a := NewAnalyzer(&stubClient{response: `{
		"estimated_value_per_hire": "$10 - $20",
		"needs_more_info": ["number of planned hires"]
	}`})
	p := shortlistedProgram()
	p.MaxValue = "$100,000 lifetime"
	c := NewCycle(a, []program.Program{p}, 3)

	require.NotEmpty(t, c.Step(context.Background()))
	c.Absorb(map[string]any{"p1_num_hires": 2})
	c.Step(context.Background())

	calcs := c.Calculations()
	require.Len(t, calcs, 1)
	require.NotNil(t, calcs[0].RefinedTotalROI)
	assert.InDelta(t, 30, *calcs[0].RefinedTotalROI, 1e-9)
}

func TestCycle_UnparseableEstimateFallsBackToHeuristics(t *testing.T) {
	a := NewAnalyzer(&stubClient{response: `{
		"estimated_value_per_hire": "depends on the hire",
		"needs_more_info": ["number of planned hires"]
	}`})
	c := NewCycle(a, []program.Program{shortlistedProgram()}, 3)

	require.NotEmpty(t, c.Step(context.Background()))
	c.Absorb(map[string]any{"p1_num_hires": 5})
	c.Step(context.Background())

	calcs := c.Calculations()
	require.Len(t, calcs, 1)
	require.NotNil(t, calcs[0].RefinedTotalROI)
	// Mean of the program's $2,400 - $9,600 range.
	assert.InDelta(t, 30000, *calcs[0].RefinedTotalROI, 1e-9)
}

func TestCycle_ZeroHiresDoesNotSettle(t *testing.T) {
	a := NewAnalyzer(&stubClient{response: `{
		"estimated_value_per_hire": "$2,400 - $9,600",
		"needs_more_info": ["number of planned hires"]
	}`})
	c := NewCycle(a, []program.Program{shortlistedProgram()}, 3)

	require.NotEmpty(t, c.Step(context.Background()))
	c.Absorb(map[string]any{"p1_num_hires": 0})

	questions := c.Step(context.Background())
	require.NotEmpty(t, questions, "zero hires must keep the program open")
	assert.False(t, c.Complete())

	// The zero total is still recorded for the round.
	calcs := c.Calculations()
	require.Len(t, calcs, 1)
	require.NotNil(t, calcs[0].RefinedTotalROI)
	assert.Zero(t, *calcs[0].RefinedTotalROI)
	assert.True(t, calcs[0].NeedsRefinement)

	// A real answer settles it on the next round.
	c.Absorb(map[string]any{"p1_num_hires": 3})
	c.Step(context.Background())
	assert.True(t, c.Complete())
	assert.False(t, c.Calculations()[0].NeedsRefinement)
}

func TestCycle_RoundBudgetForcesCompletion(t *testing.T) {
	a := NewAnalyzer(&stubClient{response: `{
		"needs_more_info": ["number of planned hires"]
	}`})
	c := NewCycle(a, []program.Program{shortlistedProgram()}, 2)

	require.NotEmpty(t, c.Step(context.Background()))
	assert.Nil(t, c.Step(context.Background()))
	assert.True(t, c.Complete())
	assert.Equal(t, 2, c.Round())

	// Further steps are no-ops.
	assert.Nil(t, c.Step(context.Background()))
	assert.Equal(t, 2, c.Round())
}

func TestCycle_SettledFirstRoundNeedsNoQuestions(t *testing.T) {
	a := NewAnalyzer(&stubClient{response: `{
		"estimated_value_per_hire": "$2,400",
		"needs_more_info": []
	}`})
	c := NewCycle(a, []program.Program{shortlistedProgram()}, 3)

	assert.Nil(t, c.Step(context.Background()))
	assert.True(t, c.Complete())
}

func TestInitialQuestions(t *testing.T) {
	wotc := shortlistedProgram()
	subsidy := program.Program{
		ID:          "p2",
		ProgramName: "On-the-Job Training Reimbursement",
		BenefitType: program.BenefitWageSubsidy,
	}

	questions := InitialQuestions([]program.Program{wotc, subsidy})
	require.Len(t, questions, 3)
	assert.Equal(t, "p1_num_hires", questions[0].ID)
	assert.Equal(t, "p2_num_hires", questions[1].ID)
	assert.Equal(t, "p2_avg_wage", questions[2].ID)
	assert.Equal(t, "currency", questions[2].Type)
	assert.Contains(t, questions[0].Question, "Work Opportunity Tax Credit")
}

func TestRefinementQuestions(t *testing.T) {
	calcs := []Calculation{
		{
			ProgramID:       "p1",
			ProgramName:     "WOTC",
			NeedsRefinement: true,
			NeedsMoreInfo:   []string{"number of planned hires", "average wage", "retention rate"},
		},
		{ProgramID: "p2", ProgramName: "Settled", NeedsRefinement: false},
		{ProgramID: "p3", ProgramName: "Vague", NeedsRefinement: true},
	}

	questions := RefinementQuestions(calcs)
	require.Len(t, questions, 4)
	assert.Equal(t, "p1_num_hires", questions[0].ID)
	assert.Equal(t, "p1_avg_wage", questions[1].ID)
	assert.Equal(t, "p1_retention", questions[2].ID)
	assert.False(t, questions[2].Required)
	assert.Equal(t, "p3_general", questions[3].ID)
}
