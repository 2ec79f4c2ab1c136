// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirelift/hirelift/services/llm"
)

type stubClient struct {
	response string
	err      error
}

func (s *stubClient) Generate(_ context.Context, _ string, _ llm.GenerationParams) (string, error) {
	return s.response, s.err
}

func TestParseStateFromAddress(t *testing.T) {
	testCases := []struct {
		name    string
		address string
		want    string
	}{
		{"code with zip", "233 S Wacker Dr, Chicago, IL 60606", "Illinois"},
		{"code after comma no zip", "123 Main St, Denver, CO", "Colorado"},
		{"last comma code wins", "10 Ohio St, Phoenix, AZ", "Arizona"},
		{"lowercase input", "1 main st, seattle, wa 98109", "Washington"},
		{"district of columbia", "1600 Pennsylvania Ave, Washington, DC 20500", "District of Columbia"},
		{"no state", "10 Downing Street, London", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseStateFromAddress(tc.address))
		})
	}
}

func TestAnalyze_NilClientFallsBack(t *testing.T) {
	r := New(nil, "Illinois")
	result := r.Analyze(context.Background(), Request{Address: "100 Main St, Austin, TX 78701"})
	assert.Equal(t, "Texas", result.StateName)
	assert.Equal(t, []string{"federal", "state"}, result.GovernmentLevels)
}

func TestAnalyze_DefaultStateWhenUnparseable(t *testing.T) {
	r := New(nil, "Illinois")
	result := r.Analyze(context.Background(), Request{Address: "somewhere"})
	assert.Equal(t, "Illinois", result.StateName)
}

func TestAnalyze_LLMResult(t *testing.T) {
	r := New(&stubClient{response: `{
		"city_name": "Chicago",
		"county_name": "Cook County",
		"state_name": "Illinois",
		"government_levels": ["federal", "state", "county", "city"]
	}`}, "Illinois")

	result := r.Analyze(context.Background(), Request{Address: "233 S Wacker Dr, Chicago, IL 60606"})
	assert.Equal(t, "Chicago", result.CityName)
	assert.Equal(t, "Cook County", result.CountyName)
	assert.Equal(t, "Illinois", result.StateName)
	assert.Equal(t, []string{"federal", "state", "county", "city"}, result.GovernmentLevels)
}

func TestAnalyze_LevelsForcedAndOrdered(t *testing.T) {
	// The model forgot federal, shuffled the order, and invented a level.
	r := New(&stubClient{response: `{
		"state_name": "Illinois",
		"government_levels": ["city", "state", "galactic"]
	}`}, "Illinois")

	result := r.Analyze(context.Background(), Request{Address: "Chicago, IL 60601"})
	assert.Equal(t, []string{"federal", "state", "city"}, result.GovernmentLevels)
}

func TestAnalyze_LLMErrorFallsBack(t *testing.T) {
	r := New(&stubClient{err: errors.New("model overloaded")}, "Illinois")
	result := r.Analyze(context.Background(), Request{Address: "Denver, CO 80202"})
	assert.Equal(t, "Colorado", result.StateName)
	assert.Equal(t, []string{"federal", "state"}, result.GovernmentLevels)
}

func TestAnalyze_UnparseableJSONFallsBack(t *testing.T) {
	r := New(&stubClient{response: "definitely not json"}, "Illinois")
	result := r.Analyze(context.Background(), Request{Address: "Portland, OR 97201"})
	assert.Equal(t, "Oregon", result.StateName)
}

func TestAnalyze_NullStateUsesFallback(t *testing.T) {
	r := New(&stubClient{response: `{
		"city_name": null,
		"county_name": null,
		"state_name": "null",
		"government_levels": ["federal", "state"]
	}`}, "Illinois")

	result := r.Analyze(context.Background(), Request{Address: "Boston, MA 02108"})
	assert.Equal(t, "Massachusetts", result.StateName)
	assert.Empty(t, result.CityName)
	assert.Empty(t, result.CountyName)
}

func TestStateCodes_Complete(t *testing.T) {
	// 50 states plus DC.
	require.Len(t, StateCodes, 51)
	assert.Equal(t, "Illinois", StateCodes["IL"])
	assert.Equal(t, "District of Columbia", StateCodes["DC"])
}
