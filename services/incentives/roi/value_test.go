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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirelift/hirelift/services/incentives/program"
)

func TestPerHireValue(t *testing.T) {
	testCases := []struct {
		name        string
		maxValue    string
		benefitType string
		wage        float64
		demo        bool
		want        float64
	}{
		{"range averages", "$2,400 - $9,600 per hire", program.BenefitTaxCredit, 15, false, 6000},
		{"single figure", "$2,500 per hire", program.BenefitTaxCredit, 15, false, 2500},
		{"unparsed baseline", "Contact the agency for details", program.BenefitTaxCredit, 15, false, UnparsedBaseline},
		{"varies floors", "Varies", program.BenefitTaxCredit, 15, false, FloorTaxCredit},
		{"varies by program floors", "Varies by program", program.BenefitTaxCredit, 15, false, FloorTaxCredit},
		{"capital program floors", "Up to $500,000 for building improvements", program.BenefitTrainingGrant, 15, false, FloorTrainingGrant},
		{"bonding stays zero", "$25,000 fidelity bonding coverage", program.BenefitBonding, 15, false, 0},
		{"cap applies", "$100,000 over ten years", program.BenefitTaxCredit, 15, false, PerHireCap},
		{"demo cap is tighter", "$100,000 over ten years", program.BenefitTaxCredit, 15, true, DemoPerHireCap},
		{"withholdings annualized", "50% of withholdings for 10 years", program.BenefitTaxCredit, 20, false, 20 * 40 * 52 * WithholdingsTaxRate},
		{"withholdings capped", "50% of withholdings for 10 years", program.BenefitTaxCredit, 50, false, WithholdingsAnnualCap},
		{"withholdings default wage", "50% of withholdings for 10 years", program.BenefitTaxCredit, 0, false, DefaultHourlyWage * 40 * 52 * WithholdingsTaxRate},
		{"zero dollars floors wage subsidy", "$0", program.BenefitWageSubsidy, 15, false, FloorWageSubsidy},
		{"zero dollars floors other", "$0", program.BenefitOther, 15, false, FloorGeneric},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := program.Program{MaxValue: tc.maxValue, BenefitType: tc.benefitType}
			assert.InDelta(t, tc.want, PerHireValue(p, tc.wage, tc.demo), 1e-9)
		})
	}
}

func TestParseDollars(t *testing.T) {
	assert.Equal(t, []float64{2400, 9600}, parseDollars("$2,400 - $9,600 per hire"))
	assert.Equal(t, []float64{1500000}, parseDollars("up to $1,500,000 statewide"))
	assert.Nil(t, parseDollars("Varies"))
}

func TestCalculate(t *testing.T) {
	p := program.Program{
		ID:          "p1",
		ProgramName: "Work Opportunity Tax Credit",
		BenefitType: program.BenefitTaxCredit,
		MaxValue:    "$2,400 - $9,600 per hire",
	}
	answers := map[string]any{
		"p1_num_hires": "5",
	}

	results := Calculate([]program.Program{p}, answers, false)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "Work Opportunity Tax Credit", r.ProgramName)
	assert.InDelta(t, 6000, r.ROIPerHire, 1e-9)
	assert.Equal(t, 5, r.NumberOfHires)
	assert.InDelta(t, 30000, r.TotalROI, 1e-9)
	assert.Equal(t, 5, r.InputValues["num_hires"])
	assert.InDelta(t, 15, r.InputValues["avg_wage"].(float64), 1e-9)
	assert.Equal(t, "tax_credit", r.InputValues["benefit_type"])
}

func TestCalculate_MissingAnswersYieldZeroTotal(t *testing.T) {
	p := program.Program{ID: "p1", ProgramName: "WOTC", BenefitType: program.BenefitTaxCredit, MaxValue: "$2,400"}

	results := Calculate([]program.Program{p}, map[string]any{}, false)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].NumberOfHires)
	assert.Zero(t, results[0].TotalROI)
	assert.InDelta(t, 2400, results[0].ROIPerHire, 1e-9)
}

func TestAnswerCoercion(t *testing.T) {
	assert.Equal(t, 5, answerInt(5))
	assert.Equal(t, 5, answerInt(5.0))
	assert.Equal(t, 5, answerInt(" 5 "))
	assert.Equal(t, 0, answerInt("several"))
	assert.Equal(t, 0, answerInt(nil))

	assert.InDelta(t, 22.5, answerFloat(22.5, 15), 1e-9)
	assert.InDelta(t, 22.5, answerFloat("22.5", 15), 1e-9)
	assert.InDelta(t, 22, answerFloat(22, 15), 1e-9)
	assert.InDelta(t, 15, answerFloat("a lot", 15), 1e-9)
	assert.InDelta(t, 15, answerFloat(nil, 15), 1e-9)
}

func TestFormatDollars(t *testing.T) {
	assert.Equal(t, "$30,000", FormatDollars(30000))
	assert.Equal(t, "$950", FormatDollars(950))
	assert.Equal(t, "$1,234,567", FormatDollars(1234567))
	assert.Equal(t, "-$5,000", FormatDollars(-5000))
	assert.Equal(t, "$0", FormatDollars(0))
}
