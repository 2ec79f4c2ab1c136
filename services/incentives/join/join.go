// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package join deduplicates the concatenated output of the parallel
// discovery workers and tags each surviving record with validation
// results.
package join

import (
	"strings"

	"github.com/hirelift/hirelift/services/incentives/identity"
	"github.com/hirelift/hirelift/services/incentives/program"
)

// MergeThreshold is the minimum token-set similarity for collapsing two
// same-level records. Stricter than the cache lookup threshold because
// cross-worker candidates come from the same search corpus in the same
// run, so genuine duplicates score high.
const MergeThreshold = 90.0

// Merge deduplicates programs across workers. Records are only ever
// merged within a government level; a state "Enterprise Zone" program
// and a city one are distinct. Within a level, names at or above
// MergeThreshold similarity collapse to the better record: higher
// confidence wins, ties broken by the longer description.
func Merge(programs []program.Program) []program.Program {
	var merged []program.Program

	for _, cand := range programs {
		candName := cand.ProgramNameNormalized
		if candName == "" {
			candName = identity.NormalizeProgramName(cand.ProgramName)
		}
		if candName == "" {
			continue
		}

		matched := -1
		for i, existing := range merged {
			if existing.GovernmentLevel != cand.GovernmentLevel {
				continue
			}
			existingName := existing.ProgramNameNormalized
			if existingName == "" {
				existingName = identity.NormalizeProgramName(existing.ProgramName)
			}
			if identity.TokenSetRatio(candName, existingName) >= MergeThreshold {
				matched = i
				break
			}
		}

		if matched < 0 {
			cand.ProgramNameNormalized = candName
			merged = append(merged, cand)
			continue
		}
		if cand.Better(merged[matched]) {
			cand.ProgramNameNormalized = candName
			merged[matched] = cand
		}
	}
	return merged
}

// Validate tags each merged record. Issues are advisory: a record with
// errors is kept, marked Validated=false, and carries its error list.
// The flat error list across all records is returned alongside.
func Validate(programs []program.Program) ([]program.Program, []program.ValidationError) {
	var allErrors []program.ValidationError
	validated := make([]program.Program, 0, len(programs))

	for _, p := range programs {
		name := p.ProgramName
		if name == "" {
			name = "Unknown"
		}
		var errs []program.ValidationError

		if p.SourceURL == "" {
			errs = append(errs, program.ValidationError{
				Program:   name,
				ErrorType: "missing_url",
				Message:   "No source URL provided",
			})
		}
		if p.Confidence == program.ConfidenceLow {
			errs = append(errs, program.ValidationError{
				Program:   name,
				ErrorType: "low_confidence",
				Message:   "Program may be hallucinated or outdated",
			})
		}
		required := []struct {
			field string
			value string
		}{
			{"program_name", p.ProgramName},
			{"agency", p.Agency},
			{"benefit_type", p.BenefitType},
		}
		for _, r := range required {
			if strings.TrimSpace(r.value) == "" {
				errs = append(errs, program.ValidationError{
					Program:   name,
					ErrorType: "missing_" + r.field,
					Message:   "Missing required field: " + r.field,
				})
			}
		}

		p.Validated = len(errs) == 0
		p.ValidationErrors = errs
		allErrors = append(allErrors, errs...)
		validated = append(validated, p)
	}
	return validated, allErrors
}

// ShortlistCandidates filters validated records to those worth showing
// the user: anything clean, plus flagged records whose confidence is at
// least medium.
func ShortlistCandidates(programs []program.Program) []program.Program {
	var out []program.Program
	for _, p := range programs {
		if p.Validated || p.Confidence == program.ConfidenceHigh || p.Confidence == program.ConfidenceMedium {
			out = append(out, p)
		}
	}
	return out
}
