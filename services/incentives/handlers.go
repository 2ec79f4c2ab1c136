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
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// mockAddresses backs the demo autocomplete endpoint.
var mockAddresses = []string{
	"233 S Wacker Dr, Chicago, IL 60606",
	"100 W Randolph St, Chicago, IL 60601",
	"500 W Madison St, Chicago, IL 60661",
	"1 N State St, Chicago, IL 60602",
	"350 N Orleans St, Chicago, IL 60654",
	"200 E Randolph St, Chicago, IL 60601",
	"10 S Riverside Plaza, Chicago, IL 60606",
	"321 N Clark St, Chicago, IL 60654",
	"111 S Michigan Ave, Chicago, IL 60603",
	"77 W Wacker Dr, Chicago, IL 60601",
	"1600 Amphitheatre Pkwy, Mountain View, CA 94043",
	"1 Apple Park Way, Cupertino, CA 95014",
	"410 Terry Ave N, Seattle, WA 98109",
	"1 Microsoft Way, Redmond, WA 98052",
	"1155 W Fulton St, Chicago, IL 60607",
}

// DiscoverRequest is the body of POST /discover.
type DiscoverRequest struct {
	Address         string `json:"address" binding:"required"`
	LegalEntityType string `json:"legal_entity_type"`
	IndustryCode    string `json:"industry_code"`
}

// ShortlistRequest is the body of POST /:sessionId/shortlist.
type ShortlistRequest struct {
	ProgramIDs []string `json:"program_ids" binding:"required"`
}

// ROIAnswersRequest is the body of POST /:sessionId/roi-answers.
type ROIAnswersRequest struct {
	Answers map[string]any `json:"answers" binding:"required"`
}

// Discover starts a discovery session. Rate-limit denials come back as
// 429 with the limiter's reason; everything else runs in the background
// and the caller polls or streams for progress.
func Discover(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DiscoverRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		demo := svc.demoMode
		if v, present := c.GetQuery("demo"); present {
			demo = v == "true" || v == "1"
		}

		// Admission reserves the slot before the background runner
		// spawns, so concurrent requests cannot both slip under the
		// concurrency ceiling.
		sessionID := uuid.New().String()
		if ok, reason := svc.Limiter().TryStartSession(sessionID); !ok {
			slog.Warn("Session denied by rate limiter", "reason", reason)
			c.JSON(http.StatusTooManyRequests, gin.H{"error": reason})
			return
		}
		sess := NewSession(sessionID, req.Address, req.LegalEntityType, req.IndustryCode, demo)
		svc.Sessions().Add(sess)

		slog.Info("Starting discovery session", "session_id", sessionID, "demo", demo)
		go svc.RunDiscovery(context.Background(), sess)

		message := "Discovery started"
		if demo {
			message = "Demo discovery started"
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": sessionID,
			"status":     StatusStarted,
			"message":    message,
		})
	}
}

// GetStatus reports a session's progress.
func GetStatus(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := svc.Sessions().Get(c.Param("sessionId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusOK, sess.StatusSnapshot())
	}
}

// GetPrograms returns the best available result set for a session:
// validated if present, else merged, else the raw worker union.
func GetPrograms(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := svc.Sessions().Get(c.Param("sessionId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"programs": sess.DisplayPrograms()})
	}
}

// SubmitShortlist records the user's program selection and returns the
// opening ROI questions.
func SubmitShortlist(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := svc.Sessions().Get(c.Param("sessionId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		var req ShortlistRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		questions := svc.Shortlist(sess, req.ProgramIDs)
		c.JSON(http.StatusOK, gin.H{
			"shortlisted":   sess.Shortlisted(),
			"roi_questions": questions,
		})
	}
}

// GetROIQuestions returns the questions currently open for a session.
func GetROIQuestions(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := svc.Sessions().Get(c.Param("sessionId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"questions": sess.ROIQuestions()})
	}
}

// SubmitROIAnswers absorbs answers and either returns the next round of
// refinement questions or the final calculations with a spreadsheet
// link.
func SubmitROIAnswers(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := svc.Sessions().Get(c.Param("sessionId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		if len(sess.Shortlisted()) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No programs shortlisted"})
			return
		}
		var req ROIAnswersRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		calcs, open, done := svc.SubmitROIAnswers(c.Request.Context(), sess, req.Answers)
		if !done {
			c.JSON(http.StatusOK, gin.H{
				"calculations":         []any{},
				"is_complete":          false,
				"additional_questions": open,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"calculations":    calcs,
			"is_complete":     true,
			"spreadsheet_url": fmt.Sprintf("/api/v1/incentives/%s/roi-spreadsheet", sess.ID()),
		})
	}
}

// DownloadSpreadsheet serves the session's ROI calculations as CSV.
func DownloadSpreadsheet(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := svc.Sessions().Get(c.Param("sessionId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		calcs := sess.Calculations()
		if len(calcs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No ROI calculations available"})
			return
		}

		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition",
			fmt.Sprintf(`attachment; filename="roi_calculations_%s.csv"`, sess.ID()))

		w := csv.NewWriter(c.Writer)
		_ = w.Write([]string{"program_name", "roi_per_hire", "number_of_hires", "total_roi"})
		var totalROI float64
		var totalHires int
		for _, calc := range calcs {
			totalROI += calc.TotalROI
			totalHires += calc.NumberOfHires
			_ = w.Write([]string{
				calc.ProgramName,
				strconv.FormatFloat(calc.ROIPerHire, 'f', 2, 64),
				strconv.Itoa(calc.NumberOfHires),
				strconv.FormatFloat(calc.TotalROI, 'f', 2, 64),
			})
		}
		_ = w.Write([]string{"TOTAL", "", strconv.Itoa(totalHires),
			strconv.FormatFloat(totalROI, 'f', 2, 64)})
		w.Flush()
	}
}

// AddressAutocomplete serves canned address suggestions for the demo
// front-end. Queries under two characters return an empty list.
func AddressAutocomplete() gin.HandlerFunc {
	return func(c *gin.Context) {
		q := strings.ToLower(c.Query("q"))
		if len(q) < 2 {
			c.JSON(http.StatusOK, gin.H{"suggestions": []string{}})
			return
		}
		suggestions := make([]string, 0, 5)
		for _, addr := range mockAddresses {
			if strings.Contains(strings.ToLower(addr), q) {
				suggestions = append(suggestions, addr)
				if len(suggestions) == 5 {
					break
				}
			}
		}
		c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
	}
}

// StreamSession streams a session's progress as Server-Sent Events. The
// stream opens with a status snapshot, forwards every pipeline event,
// and closes once the session reaches a terminal discovery state.
func StreamSession(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := svc.Sessions().Get(c.Param("sessionId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
			return
		}

		events, cancel := sess.Subscribe()
		defer cancel()

		// Opening snapshot so late subscribers see the current state.
		snap := sess.StatusSnapshot()
		if err := writer.WriteEvent(StreamEvent{
			Type:           EventStatus,
			SessionId:      snap.SessionID,
			Status:         snap.Status,
			CurrentStep:    snap.CurrentStep,
			ProgramsFound:  snap.ProgramsFound,
			SearchProgress: snap.SearchProgress,
		}); err != nil {
			return
		}
		if terminalStatus(snap.Status) {
			return
		}

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-c.Request.Context().Done():
				return
			case <-keepalive.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := writer.WriteEvent(ev); err != nil {
					return
				}
				if ev.Type == EventError || terminalStatus(ev.Status) {
					return
				}
			}
		}
	}
}

// terminalStatus reports whether a status ends the discovery stream.
// The ROI phase is request/response, so the stream closes at
// "completed" rather than waiting for "complete".
func terminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusComplete:
		return true
	}
	return false
}

// HealthCheck is the liveness probe.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "incentives"})
}

// Usage reports rate-limit and cache statistics.
func Usage(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{
			"rate_limits": svc.Limiter().Stats(),
			"sessions":    svc.Sessions().Count(),
		}
		if svc.Store() != nil {
			if stats, err := svc.Store().Stats(c.Request.Context()); err != nil {
				slog.Warn("Cache stats query failed", "error", err)
			} else {
				resp["cache"] = stats
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}
