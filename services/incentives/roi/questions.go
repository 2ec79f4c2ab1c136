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
	"fmt"
	"strings"

	"github.com/hirelift/hirelift/services/incentives/program"
)

// Question asks the user for one input needed to refine a program's ROI.
type Question struct {
	ID        string `json:"id"`
	ProgramID string `json:"program_id"`
	Question  string `json:"question"`
	Type      string `json:"type"`
	Required  bool   `json:"required"`
}

// InitialQuestions generates the first-round questions for a shortlist:
// every program asks for planned hires, wage-subsidy programs also ask
// for the average hourly wage.
func InitialQuestions(shortlisted []program.Program) []Question {
	var questions []Question
	for _, p := range shortlisted {
		id := p.ID
		if id == "" {
			id = "unknown"
		}
		name := p.ProgramName
		if name == "" {
			name = "this program"
		}
		questions = append(questions, Question{
			ID:        id + "_num_hires",
			ProgramID: id,
			Question:  fmt.Sprintf("For %s: How many employees from target populations do you plan to hire?", name),
			Type:      "number",
			Required:  true,
		})
		if strings.Contains(p.BenefitType, program.BenefitWageSubsidy) {
			questions = append(questions, Question{
				ID:        id + "_avg_wage",
				ProgramID: id,
				Question:  fmt.Sprintf("For %s: What is the average hourly wage?", name),
				Type:      "currency",
				Required:  true,
			})
		}
	}
	return questions
}

// RefinementQuestions maps an analysis round's open information needs to
// concrete questions. Needs that mention hires, wages, or retention get
// targeted questions; a calculation with no stated needs still gets the
// generic hires question.
func RefinementQuestions(calcs []Calculation) []Question {
	var questions []Question
	for _, calc := range calcs {
		if !calc.NeedsRefinement {
			continue
		}
		name := calc.ProgramName
		if name == "" {
			name = "Unknown"
		}
		for _, info := range calc.NeedsMoreInfo {
			lower := strings.ToLower(info)
			switch {
			case strings.Contains(lower, "hire") || strings.Contains(lower, "employee"):
				questions = append(questions, Question{
					ID:        calc.ProgramID + "_num_hires",
					ProgramID: calc.ProgramID,
					Question:  fmt.Sprintf("For %s: How many employees from target populations do you plan to hire in the next 12 months?", name),
					Type:      "number",
					Required:  true,
				})
			case strings.Contains(lower, "wage") || strings.Contains(lower, "salary"):
				questions = append(questions, Question{
					ID:        calc.ProgramID + "_avg_wage",
					ProgramID: calc.ProgramID,
					Question:  fmt.Sprintf("For %s: What is the average hourly wage for these positions?", name),
					Type:      "currency",
					Required:  true,
				})
			case strings.Contains(lower, "retention"):
				questions = append(questions, Question{
					ID:        calc.ProgramID + "_retention",
					ProgramID: calc.ProgramID,
					Question:  fmt.Sprintf("For %s: What is your expected employee retention rate after 6 months?", name),
					Type:      "percentage",
					Required:  false,
				})
			}
		}
		if len(calc.NeedsMoreInfo) == 0 {
			questions = append(questions, Question{
				ID:        calc.ProgramID + "_general",
				ProgramID: calc.ProgramID,
				Question:  fmt.Sprintf("For %s: How many employees do you expect to hire who qualify for this program?", name),
				Type:      "number",
				Required:  true,
			})
		}
	}
	return questions
}
