// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import "github.com/hirelift/hirelift/services/incentives/program"

// FederalPrograms returns the universal federal incentives that apply to
// every employer regardless of location. They are seeded into the cache
// at startup and again by every federal worker pass, so a fresh database
// always has a non-empty federal partition even with search disabled.
func FederalPrograms() []program.Program {
	return []program.Program{
		{
			ProgramName:       "Work Opportunity Tax Credit (WOTC)",
			Agency:            "U.S. Department of Labor / IRS",
			BenefitType:       program.BenefitTaxCredit,
			Jurisdiction:      "federal",
			MaxValue:          "$2,400 - $9,600 per hire",
			TargetPopulations: []string{"veterans", "TANF recipients", "ex-felons", "SSI recipients", "long-term unemployed", "youth"},
			Description:       "Federal tax credit for hiring individuals from targeted groups who face barriers to employment.",
			SourceURL:         "https://www.dol.gov/agencies/eta/wotc",
			Confidence:        program.ConfidenceHigh,
			GovernmentLevel:   program.LevelFederal,
			LocationKey:       "federal",
		},
		{
			ProgramName:       "Federal Bonding Program",
			Agency:            "U.S. Department of Labor",
			BenefitType:       program.BenefitBonding,
			Jurisdiction:      "federal",
			MaxValue:          "$5,000 - $25,000 fidelity bond",
			TargetPopulations: []string{"ex-offenders", "people in recovery", "those with poor credit"},
			Description:       "Free fidelity bonds for at-risk job seekers, covering employer losses from theft.",
			SourceURL:         "https://bonds4jobs.com/",
			Confidence:        program.ConfidenceHigh,
			GovernmentLevel:   program.LevelFederal,
			LocationKey:       "federal",
		},
		{
			ProgramName:       "WIOA On-the-Job Training (OJT)",
			Agency:            "U.S. Department of Labor",
			BenefitType:       program.BenefitWageSubsidy,
			Jurisdiction:      "federal",
			MaxValue:          "50-75% wage reimbursement during training",
			TargetPopulations: []string{"dislocated workers", "low-income adults", "youth"},
			Description:       "Wage subsidy for employers who train eligible workers, covering 50-75% of wages during training period.",
			SourceURL:         "https://www.dol.gov/agencies/eta/wioa",
			Confidence:        program.ConfidenceHigh,
			GovernmentLevel:   program.LevelFederal,
			LocationKey:       "federal",
		},
	}
}
