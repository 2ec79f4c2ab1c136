// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package incentives is the HTTP surface of the hiring-incentive
// discovery service: session lifecycle, the discovery pipeline runner,
// gin handlers, and the SSE progress stream.
package incentives

import (
	"sync"
	"time"

	"github.com/hirelift/hirelift/services/incentives/program"
	"github.com/hirelift/hirelift/services/incentives/roi"
)

// Session lifecycle statuses, in the order a successful run moves
// through them. A session parks at "completed" until the user submits a
// shortlist, then moves through "roi_cycle" to "complete".
const (
	StatusStarted     = "started"
	StatusRouting     = "routing"
	StatusDiscovering = "discovering"
	StatusSearching   = "searching"
	StatusMerging     = "merging"
	StatusValidating  = "validating"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusROICycle    = "roi_cycle"
	StatusComplete    = "complete"
)

// Per-level search progress values.
const (
	ProgressPending   = "pending"
	ProgressRunning   = "running"
	ProgressCompleted = "completed"
)

// StatusResponse is the wire shape of GET /:sessionId/status.
type StatusResponse struct {
	SessionID        string                    `json:"session_id"`
	Status           string                    `json:"status"`
	CurrentStep      string                    `json:"current_step"`
	GovernmentLevels []string                  `json:"government_levels"`
	ProgramsFound    int                       `json:"programs_found"`
	SearchProgress   map[string]string         `json:"search_progress"`
	Errors           []program.ValidationError `json:"errors"`
	Error            string                    `json:"error,omitempty"`
}

// Session is the in-memory record of one discovery run. The background
// runner is the only writer during the pipeline phase; handlers read
// snapshots and drive the shortlist/ROI phase. All access goes through
// the mutex.
type Session struct {
	mu sync.RWMutex

	id              string
	address         string
	legalEntityType string
	industryCode    string
	demoMode        bool
	createdAt       time.Time
	completedAt     time.Time

	status   string
	phase    string
	levels   []string
	progress map[string]string

	programs  []program.Program
	merged    []program.Program
	validated []program.Program
	valErrors []program.ValidationError
	fatal     string

	shortlisted  []program.Program
	roiQuestions []roi.Question
	roiAnswers   map[string]any
	roiCalcs     []roi.CalculationResult
	cycle        *roi.Cycle

	subscribers map[int]chan StreamEvent
	nextSub     int
}

// NewSession creates a session in the "started" state with every level's
// search progress pending.
func NewSession(id, address, legalEntityType, industryCode string, demo bool) *Session {
	progress := make(map[string]string, len(program.Levels))
	for _, level := range program.Levels {
		progress[level] = ProgressPending
	}
	return &Session{
		id:              id,
		address:         address,
		legalEntityType: legalEntityType,
		industryCode:    industryCode,
		demoMode:        demo,
		createdAt:       time.Now(),
		status:          StatusStarted,
		phase:           "Initializing",
		progress:        progress,
		roiAnswers:      make(map[string]any),
		subscribers:     make(map[int]chan StreamEvent),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Address() string { return s.address }

func (s *Session) LegalEntityType() string { return s.legalEntityType }

func (s *Session) IndustryCode() string { return s.industryCode }

func (s *Session) DemoMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.demoMode
}

// Status returns the current lifecycle status.
func (s *Session) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetPhase updates the status and human-readable step description.
func (s *Session) SetPhase(status, phase string) {
	s.mu.Lock()
	s.status = status
	s.phase = phase
	ev := s.statusEventLocked()
	s.mu.Unlock()
	s.publish(ev)
}

// SetLevels records the router's decision and moves the session to
// "discovering". Routed levels are reset to pending.
func (s *Session) SetLevels(levels []string) {
	s.mu.Lock()
	s.levels = levels
	s.status = StatusDiscovering
	s.phase = "Discovering programs"
	for _, level := range levels {
		s.progress[level] = ProgressPending
	}
	ev := s.statusEventLocked()
	s.mu.Unlock()
	s.publish(ev)
}

// StartLevel marks a level's search as running and moves the session to
// "searching".
func (s *Session) StartLevel(level string) {
	s.mu.Lock()
	s.status = StatusSearching
	s.phase = "Searching " + level + " programs"
	s.progress[level] = ProgressRunning
	ev := s.statusEventLocked()
	s.mu.Unlock()
	s.publish(ev)
}

// AppendPrograms accumulates one worker's output and marks its level
// complete. When every routed level is done the session moves to
// "merging".
func (s *Session) AppendPrograms(level string, programs []program.Program) {
	s.mu.Lock()
	s.programs = append(s.programs, programs...)
	s.progress[level] = ProgressCompleted
	s.status = StatusSearching
	allDone := true
	for _, lvl := range s.levels {
		if s.progress[lvl] != ProgressCompleted {
			allDone = false
			break
		}
	}
	if allDone {
		s.status = StatusMerging
		s.phase = "Merging results"
	}
	ev := s.statusEventLocked()
	s.mu.Unlock()
	s.publish(ev)
}

// SetMerged stores the join node's output.
func (s *Session) SetMerged(merged []program.Program) {
	s.mu.Lock()
	s.status = StatusMerging
	s.merged = merged
	ev := s.statusEventLocked()
	s.mu.Unlock()
	s.publish(ev)
}

// SetValidated stores the validator's output and its per-record errors.
func (s *Session) SetValidated(validated []program.Program, errs []program.ValidationError) {
	s.mu.Lock()
	s.status = StatusValidating
	s.phase = "Validating programs"
	s.validated = validated
	s.valErrors = errs
	ev := s.statusEventLocked()
	s.mu.Unlock()
	s.publish(ev)
}

// CompleteDiscovery parks the session at "completed", awaiting a
// shortlist from the user.
func (s *Session) CompleteDiscovery() {
	s.mu.Lock()
	s.status = StatusCompleted
	s.phase = "awaiting_shortlist"
	for _, level := range s.levels {
		s.progress[level] = ProgressCompleted
	}
	s.completedAt = time.Now()
	ev := s.statusEventLocked()
	s.mu.Unlock()
	s.publish(ev)
}

// Fail moves the session to "failed" with a short message. No further
// progress events follow.
func (s *Session) Fail(msg string) {
	s.mu.Lock()
	s.status = StatusFailed
	s.fatal = msg
	ev := s.statusEventLocked()
	ev.Type = EventError
	ev.Error = msg
	s.mu.Unlock()
	s.publish(ev)
}

// StatusSnapshot returns the status endpoint's view of the session.
func (s *Session) StatusSnapshot() StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	progress := make(map[string]string, len(s.progress))
	for k, v := range s.progress {
		progress[k] = v
	}
	errs := make([]program.ValidationError, len(s.valErrors))
	copy(errs, s.valErrors)
	return StatusResponse{
		SessionID:        s.id,
		Status:           s.status,
		CurrentStep:      s.phase,
		GovernmentLevels: append([]string(nil), s.levels...),
		ProgramsFound:    s.programsFoundLocked(),
		SearchProgress:   progress,
		Errors:           errs,
		Error:            s.fatal,
	}
}

// DisplayPrograms returns the best available result set: validated if
// the pipeline got that far, else merged, else the raw union.
func (s *Session) DisplayPrograms() []program.Program {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var src []program.Program
	switch {
	case len(s.validated) > 0:
		src = s.validated
	case len(s.merged) > 0:
		src = s.merged
	default:
		src = s.programs
	}
	out := make([]program.Program, len(src))
	copy(out, src)
	return out
}

// SetShortlist records the user's selection, the opening ROI questions,
// and the refinement cycle, and moves the session to "roi_cycle".
func (s *Session) SetShortlist(shortlisted []program.Program, questions []roi.Question, cycle *roi.Cycle) {
	s.mu.Lock()
	s.shortlisted = shortlisted
	s.roiQuestions = questions
	s.cycle = cycle
	s.status = StatusROICycle
	s.phase = "Awaiting ROI answers"
	ev := s.statusEventLocked()
	s.mu.Unlock()
	s.publish(ev)
}

// Shortlisted returns the user's selected programs.
func (s *Session) Shortlisted() []program.Program {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]program.Program, len(s.shortlisted))
	copy(out, s.shortlisted)
	return out
}

// ROIQuestions returns the questions currently open for the user.
func (s *Session) ROIQuestions() []roi.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]roi.Question, len(s.roiQuestions))
	copy(out, s.roiQuestions)
	return out
}

// SetROIQuestions replaces the open question set after a refinement round.
func (s *Session) SetROIQuestions(questions []roi.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roiQuestions = questions
}

// Cycle returns the session's ROI refinement cycle, nil before shortlist.
func (s *Session) Cycle() *roi.Cycle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycle
}

// AbsorbAnswers merges a batch of ROI answers into the session.
func (s *Session) AbsorbAnswers(answers map[string]any) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range answers {
		s.roiAnswers[k] = v
	}
	all := make(map[string]any, len(s.roiAnswers))
	for k, v := range s.roiAnswers {
		all[k] = v
	}
	return all
}

// SetCalculations stores the final ROI figures and moves the session to
// "complete".
func (s *Session) SetCalculations(calcs []roi.CalculationResult) {
	s.mu.Lock()
	s.roiCalcs = calcs
	s.status = StatusComplete
	s.phase = "complete"
	s.completedAt = time.Now()
	ev := s.statusEventLocked()
	s.mu.Unlock()
	s.publish(ev)
}

// Calculations returns the stored ROI figures.
func (s *Session) Calculations() []roi.CalculationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]roi.CalculationResult, len(s.roiCalcs))
	copy(out, s.roiCalcs)
	return out
}

// programsFoundLocked mirrors the display precedence: the count tracks
// whichever result set the programs endpoint would serve.
func (s *Session) programsFoundLocked() int {
	switch {
	case len(s.validated) > 0:
		return len(s.validated)
	case len(s.merged) > 0:
		return len(s.merged)
	default:
		return len(s.programs)
	}
}

// SessionStore is the in-memory session registry.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

func (st *SessionStore) Add(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID()] = s
}

func (st *SessionStore) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *SessionStore) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
