// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package discovery

import (
	"fmt"

	"github.com/hirelift/hirelift/services/incentives/program"
)

// StandardPopulations are the worker groups most hiring incentives
// target, used to widen state-level searches.
var StandardPopulations = []string{
	"veterans",
	"people with disabilities",
	"ex-offenders/returning citizens",
	"TANF/SNAP recipients",
	"youth (18-24)",
	"long-term unemployed",
}

// BuildQueries returns the search queries for one government level.
// Federal queries are location-independent; state queries add
// population-specific searches for the top three standard populations.
func BuildQueries(level string, loc Location) []string {
	switch level {
	case program.LevelFederal:
		return []string{
			"federal employer hiring tax credits incentives",
			"WOTC work opportunity tax credit requirements",
			"federal bonding program employers",
		}
	case program.LevelState:
		queries := []string{
			fmt.Sprintf("%s state employer hiring incentives tax credits", loc.StateName),
			fmt.Sprintf("%s workforce development employer programs", loc.StateName),
			fmt.Sprintf("%s enterprise zone hiring credits", loc.StateName),
		}
		for _, pop := range StandardPopulations[:3] {
			queries = append(queries, fmt.Sprintf("%s %s employer hiring incentives", loc.StateName, pop))
		}
		return queries
	case program.LevelCounty:
		county := loc.CountyName
		if county == "" {
			county = loc.StateName + " County"
		}
		return []string{
			fmt.Sprintf("%s %s employer hiring incentives", county, loc.StateName),
			fmt.Sprintf("%s %s workforce development business programs", county, loc.StateName),
		}
	case program.LevelCity:
		city := loc.CityName
		if city == "" {
			city = loc.StateName
		}
		return []string{
			fmt.Sprintf("%s %s employer hiring incentives programs", city, loc.StateName),
			fmt.Sprintf("%s %s economic development hiring credits", city, loc.StateName),
		}
	}
	return nil
}
