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
	"regexp"
	"strconv"
	"strings"

	"github.com/hirelift/hirelift/services/incentives/program"
)

// Per-hire value heuristics. Caps keep multi-year or capital figures
// from being treated as per-hire cash; floors keep benefit programs
// from quoting $0.
const (
	// WithholdingsTaxRate approximates state income tax as a fraction
	// of annual wages for withholdings-based credits.
	WithholdingsTaxRate = 0.04
	// WithholdingsAnnualCap bounds the first-year equivalent of a
	// multi-year withholdings deal.
	WithholdingsAnnualCap = 3000.0
	// WithholdingsFallback is used when the wage answer is unparseable.
	WithholdingsFallback = 2000.0
	// DefaultHourlyWage backstops a missing wage answer.
	DefaultHourlyWage = 20.0
	// UnparsedBaseline is the WOTC-style default when no dollar figure
	// can be parsed from max_value.
	UnparsedBaseline = 2400.0
	// PerHireCap and DemoPerHireCap bound the parsed per-hire value.
	PerHireCap     = 20000.0
	DemoPerHireCap = 15000.0

	// Conservative floors by benefit type.
	FloorTaxCredit     = 2000.0
	FloorWageSubsidy   = 3000.0
	FloorTrainingGrant = 1500.0
	FloorGeneric       = 1000.0
)

// nonMonetaryKeywords mark risk-mitigation or capital programs whose
// max_value is not per-hire cash.
var nonMonetaryKeywords = []string{
	"bond", "bonding", "fidelity",
	"coverage",
	"building improvements",
	"capital", "capex",
	"apprenticeship start-up",
	"varies",
}

var dollarRe = regexp.MustCompile(`\$?([\d,]+)`)

// PerHireValue estimates the dollar value per qualifying hire from a
// program's max_value text.
//
// Non-monetary programs (bonding and the like) yield zero. Withholdings
// deals are annualized from the wage answer. Everything else averages
// the dollar figures found in the text, capped, then floored by benefit
// type so cash programs never come out at $0.
func PerHireValue(p program.Program, avgHourlyWage float64, demo bool) float64 {
	maxValueLower := strings.ToLower(p.MaxValue)
	benefitType := strings.ToLower(p.BenefitType)

	nonMonetary := benefitType == program.BenefitBonding
	for _, k := range nonMonetaryKeywords {
		if strings.Contains(maxValueLower, k) {
			nonMonetary = true
			break
		}
	}

	var value float64
	switch {
	case nonMonetary:
		value = 0

	case strings.Contains(maxValueLower, "withholding"):
		wage := avgHourlyWage
		if wage <= 0 {
			wage = DefaultHourlyWage
		}
		annualWages := wage * 40 * 52
		value = annualWages * WithholdingsTaxRate
		if value > WithholdingsAnnualCap {
			value = WithholdingsAnnualCap
		}
		if value <= 0 {
			value = WithholdingsFallback
		}

	default:
		if amounts := parseDollars(p.MaxValue); len(amounts) > 0 {
			var sum float64
			for _, a := range amounts {
				sum += a
			}
			value = sum / float64(len(amounts))
		} else {
			value = UnparsedBaseline
		}
		cap := PerHireCap
		if demo {
			cap = DemoPerHireCap
		}
		if value > cap {
			value = cap
		}
	}

	// Bonding stays at zero; it is genuinely non-monetary.
	if value == 0 {
		switch benefitType {
		case program.BenefitTaxCredit:
			value = FloorTaxCredit
		case program.BenefitWageSubsidy:
			value = FloorWageSubsidy
		case program.BenefitTrainingGrant:
			value = FloorTrainingGrant
		case program.BenefitOther:
			value = FloorGeneric
		}
	}
	return value
}

// parseDollars extracts every dollar amount from text like
// "$2,400 - $9,600 per hire".
func parseDollars(s string) []float64 {
	var out []float64
	for _, m := range dollarRe.FindAllStringSubmatch(s, -1) {
		raw := strings.ReplaceAll(m[1], ",", "")
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}
