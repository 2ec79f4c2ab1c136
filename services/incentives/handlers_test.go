// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package incentives

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirelift/hirelift/services/incentives/program"
	"github.com/hirelift/hirelift/services/incentives/ratelimit"
	"github.com/hirelift/hirelift/services/incentives/router"
)

func newTestServer(t *testing.T, limits ratelimit.Limits) (*Service, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := NewService(Deps{
		Limiter:  ratelimit.New(limits),
		Router:   router.New(nil, "Illinois"),
		DemoMode: true,
	})
	engine := gin.New()
	SetupRoutes(engine, svc)
	return svc, engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func validatedProgram(id, name string) program.Program {
	return program.Program{
		ID:              id,
		ProgramName:     name,
		Agency:          "Illinois DCEO",
		BenefitType:     program.BenefitTaxCredit,
		Jurisdiction:    "Illinois",
		MaxValue:        "$2,400 - $9,600 per hire",
		SourceURL:       "https://example.org",
		Confidence:      program.ConfidenceHigh,
		GovernmentLevel: program.LevelState,
		Validated:       true,
	}
}

// completedSession seeds a session that already finished discovery.
func completedSession(svc *Service, id string) *Session {
	sess := NewSession(id, "233 S Wacker Dr, Chicago, IL 60606", "LLC", "722511", true)
	sess.SetLevels([]string{program.LevelFederal, program.LevelState})
	validated := []program.Program{
		validatedProgram("p1", "Work Opportunity Tax Credit"),
		validatedProgram("p2", "Enterprise Zone Jobs Tax Credit"),
	}
	sess.SetValidated(validated, nil)
	sess.CompleteDiscovery()
	svc.Sessions().Add(sess)
	return sess
}

func TestHealthCheck(t *testing.T) {
	_, engine := newTestServer(t, ratelimit.DefaultLimits())

	rec := doJSON(t, engine, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "incentives", body["service"])
}

func TestDiscover_RejectsMissingAddress(t *testing.T) {
	_, engine := newTestServer(t, ratelimit.DefaultLimits())

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/incentives/discover",
		`{"legal_entity_type": "LLC"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiscover_RateLimited(t *testing.T) {
	_, engine := newTestServer(t, ratelimit.Limits{
		MaxConcurrentSessions: 0,
		MaxSessionsPerDay:     50,
		MaxSearchesPerSession: 20,
		MaxLLMCallsPerSession: 10,
	})

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/incentives/discover",
		`{"address": "233 S Wacker Dr, Chicago, IL 60606"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["error"], "Max concurrent sessions")
}

func TestDiscover_StartsSession(t *testing.T) {
	svc, engine := newTestServer(t, ratelimit.DefaultLimits())

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/incentives/discover",
		`{"address": "233 S Wacker Dr, Chicago, IL 60606"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, StatusStarted, body["status"])
	assert.Equal(t, "Demo discovery started", body["message"])

	sessionID, _ := body["session_id"].(string)
	require.NotEmpty(t, sessionID)
	_, ok := svc.Sessions().Get(sessionID)
	assert.True(t, ok)
}

func TestGetStatus_UnknownSession(t *testing.T) {
	_, engine := newTestServer(t, ratelimit.DefaultLimits())

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/incentives/nope/status", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Session not found", decodeBody(t, rec)["error"])
}

func TestGetStatus_CompletedSession(t *testing.T) {
	svc, engine := newTestServer(t, ratelimit.DefaultLimits())
	completedSession(svc, "sess-1")

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/incentives/sess-1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, StatusCompleted, body["status"])
	assert.EqualValues(t, 2, body["programs_found"])
}

func TestGetPrograms(t *testing.T) {
	svc, engine := newTestServer(t, ratelimit.DefaultLimits())
	completedSession(svc, "sess-1")

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/incentives/sess-1/programs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	programs, ok := body["programs"].([]any)
	require.True(t, ok)
	assert.Len(t, programs, 2)
}

func TestROIFlow_ShortlistToSpreadsheet(t *testing.T) {
	svc, engine := newTestServer(t, ratelimit.DefaultLimits())
	completedSession(svc, "sess-1")

	// Shortlist one of the two programs.
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/incentives/sess-1/shortlist",
		`{"program_ids": ["p1"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Len(t, body["shortlisted"], 1)
	questions, ok := body["roi_questions"].([]any)
	require.True(t, ok)
	require.Len(t, questions, 1)

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/incentives/sess-1/roi-questions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["questions"], 1)

	// With no analyzer wired the first answer batch completes the cycle.
	rec = doJSON(t, engine, http.MethodPost, "/api/v1/incentives/sess-1/roi-answers",
		`{"answers": {"p1_num_hires": 5}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["is_complete"])
	assert.Equal(t, "/api/v1/incentives/sess-1/roi-spreadsheet", body["spreadsheet_url"])

	calcs, ok := body["calculations"].([]any)
	require.True(t, ok)
	require.Len(t, calcs, 1)
	calc := calcs[0].(map[string]any)
	// Demo mode: mean of $2,400 and $9,600 is $6,000 per hire.
	assert.EqualValues(t, 6000, calc["roi_per_hire"])
	assert.EqualValues(t, 30000, calc["total_roi"])

	rec = doJSON(t, engine, http.MethodGet, "/api/v1/incentives/sess-1/roi-spreadsheet", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "roi_calculations_sess-1.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "program_name,roi_per_hire,number_of_hires,total_roi", lines[0])
	assert.Equal(t, "Work Opportunity Tax Credit,6000.00,5,30000.00", lines[1])
	assert.Equal(t, "TOTAL,,5,30000.00", lines[2])
}

func TestSubmitROIAnswers_WithoutShortlist(t *testing.T) {
	svc, engine := newTestServer(t, ratelimit.DefaultLimits())
	completedSession(svc, "sess-1")

	rec := doJSON(t, engine, http.MethodPost, "/api/v1/incentives/sess-1/roi-answers",
		`{"answers": {"p1_num_hires": 5}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No programs shortlisted", decodeBody(t, rec)["error"])
}

func TestDownloadSpreadsheet_NoCalculations(t *testing.T) {
	svc, engine := newTestServer(t, ratelimit.DefaultLimits())
	completedSession(svc, "sess-1")

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/incentives/sess-1/roi-spreadsheet", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No ROI calculations available", decodeBody(t, rec)["error"])
}

func TestAddressAutocomplete(t *testing.T) {
	_, engine := newTestServer(t, ratelimit.DefaultLimits())

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/incentives/address-autocomplete?q=wacker", "")
	require.Equal(t, http.StatusOK, rec.Code)
	suggestions := decodeBody(t, rec)["suggestions"].([]any)
	require.Len(t, suggestions, 2)
	assert.Equal(t, "233 S Wacker Dr, Chicago, IL 60606", suggestions[0])

	// Single characters return nothing.
	rec = doJSON(t, engine, http.MethodGet, "/api/v1/incentives/address-autocomplete?q=w", "")
	assert.Empty(t, decodeBody(t, rec)["suggestions"])

	// Broad prefixes cap at five suggestions.
	rec = doJSON(t, engine, http.MethodGet, "/api/v1/incentives/address-autocomplete?q=chicago", "")
	assert.Len(t, decodeBody(t, rec)["suggestions"], 5)
}

func TestStreamSession_TerminalSessionClosesAfterSnapshot(t *testing.T) {
	svc, engine := newTestServer(t, ratelimit.DefaultLimits())
	completedSession(svc, "sess-1")

	rec := doJSON(t, engine, http.MethodGet, "/api/v1/incentives/sess-1/stream", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: status")
	assert.Contains(t, body, `"status":"completed"`)
	// Terminal sessions get the snapshot and nothing else.
	assert.Equal(t, 1, strings.Count(body, "event:"))
}

func TestUsage(t *testing.T) {
	svc, engine := newTestServer(t, ratelimit.DefaultLimits())
	completedSession(svc, "sess-1")

	rec := doJSON(t, engine, http.MethodGet, "/usage", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["sessions"])
	assert.Contains(t, body, "rate_limits")
	// No cache is wired in this test, so no cache block is reported.
	assert.NotContains(t, body, "cache")
}
