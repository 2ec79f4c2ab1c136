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
	"log/slog"

	"github.com/hirelift/hirelift/services/incentives/cache"
	"github.com/hirelift/hirelift/services/incentives/dag"
	"github.com/hirelift/hirelift/services/incentives/discovery"
	"github.com/hirelift/hirelift/services/incentives/extract"
	"github.com/hirelift/hirelift/services/incentives/program"
	"github.com/hirelift/hirelift/services/incentives/ratelimit"
	"github.com/hirelift/hirelift/services/incentives/roi"
	"github.com/hirelift/hirelift/services/incentives/router"
	"github.com/hirelift/hirelift/services/incentives/search"
	"github.com/hirelift/hirelift/services/llm"
)

// Deps carries the service's wired dependencies. Searcher and Extractor
// may be nil; discovery then degrades to the cached baseline. Analyzer
// may be nil; the ROI cycle then settles from heuristics alone. When
// LLMFactory is set, each discovery worker extracts through its own
// client instead of the shared Extractor.
type Deps struct {
	Store      cache.Store
	Limiter    *ratelimit.Limiter
	Router     *router.Router
	Searcher   search.Client
	Extractor  *extract.Extractor
	Analyzer   *roi.Analyzer
	LLMFactory llm.Factory

	// TTLDays maps government level to cache freshness window.
	TTLDays map[string]int

	MaxROIRounds int
	DemoMode     bool
	Logger       *slog.Logger
}

// Service owns the session registry and drives discovery pipelines.
type Service struct {
	store      cache.Store
	limiter    *ratelimit.Limiter
	router     *router.Router
	searcher   search.Client
	extractor  *extract.Extractor
	analyzer   *roi.Analyzer
	llmFactory llm.Factory
	sessions   *SessionStore

	ttlDays      map[string]int
	maxROIRounds int
	demoMode     bool
	logger       *slog.Logger
}

func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRounds := deps.MaxROIRounds
	if maxRounds <= 0 {
		maxRounds = roi.DefaultMaxRounds
	}
	return &Service{
		store:        deps.Store,
		limiter:      deps.Limiter,
		router:       deps.Router,
		searcher:     deps.Searcher,
		extractor:    deps.Extractor,
		analyzer:     deps.Analyzer,
		llmFactory:   deps.LLMFactory,
		sessions:     NewSessionStore(),
		ttlDays:      deps.TTLDays,
		maxROIRounds: maxRounds,
		demoMode:     deps.DemoMode,
		logger:       logger,
	}
}

// Sessions exposes the session registry to handlers and tests.
func (s *Service) Sessions() *SessionStore { return s.sessions }

// Limiter exposes the rate limiter for the usage endpoint.
func (s *Service) Limiter() *ratelimit.Limiter { return s.limiter }

// Store exposes the program cache for the usage endpoint.
func (s *Service) Store() cache.Store { return s.store }

func (s *Service) ttlFor(level string) int {
	if days, ok := s.ttlDays[level]; ok {
		return days
	}
	return 30
}

// workerFor builds the discovery worker for one level. Demo sessions
// get no searcher or extractor, so they serve seeds and cache only.
// With a factory wired, each worker extracts through its own LLM client
// so parallel workers never share connection state.
func (s *Service) workerFor(level string, demo bool) *discovery.Worker {
	searcher := s.searcher
	extractor := s.extractor
	if demo {
		searcher = nil
		extractor = nil
	} else if s.llmFactory != nil {
		if client, err := s.llmFactory(); err != nil {
			s.logger.Warn("Per-worker LLM client unavailable, using shared extractor",
				"level", level, "error", err)
		} else {
			extractor = extract.New(client)
		}
	}
	return discovery.NewWorker(level, s.store, searcher, extractor, s.limiter, s.ttlFor(level))
}

// RunDiscovery drives one session's pipeline to completion. It is
// launched in a background goroutine by the discover handler, which has
// already reserved the session's rate-limit slot; all progress is
// written to the session, never returned.
func (s *Service) RunDiscovery(ctx context.Context, sess *Session) {
	log := s.logger.With("session_id", sess.ID())
	defer s.limiter.EndSession(sess.ID())

	defer func() {
		if r := recover(); r != nil {
			log.Error("Discovery pipeline panicked", "panic", r)
			sess.Fail("internal error")
		}
	}()

	sess.SetPhase(StatusRouting, "Analyzing address")
	route := s.router.Analyze(ctx, router.Request{
		Address:         sess.Address(),
		LegalEntityType: sess.LegalEntityType(),
		IndustryCode:    sess.IndustryCode(),
	})
	log.Info("Routing decision", "state", route.StateName, "levels", route.GovernmentLevels)
	sess.SetLevels(route.GovernmentLevels)

	pipeline, err := s.buildPipeline(sess, route)
	if err != nil {
		log.Error("Pipeline construction failed", "error", err)
		sess.Fail("failed to build discovery pipeline: " + err.Error())
		return
	}

	exec, err := dag.NewExecutor(pipeline, s.logger)
	if err != nil {
		sess.Fail("failed to build executor: " + err.Error())
		return
	}

	events := make(chan dag.Event, 64)
	exec.WithEvents(events)
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		for ev := range events {
			sess.publish(StreamEvent{
				Type:      EventNode,
				SessionId: sess.ID(),
				Node:      ev.Node,
				Status:    string(ev.Type),
				Error:     ev.Error,
			})
		}
	}()

	result, err := exec.Run(ctx, sess.ID(), nil)
	close(events)
	<-forwardDone

	if err != nil {
		log.Error("Pipeline execution failed", "error", err)
		sess.Fail(err.Error())
		return
	}
	if !result.Success {
		log.Error("Pipeline ended unsuccessfully", "failed_node", result.FailedNode, "error", result.Error)
		sess.Fail(result.Error)
		return
	}

	sess.CompleteDiscovery()
	log.Info("Discovery session complete",
		"duration", result.Duration,
		"nodes", result.NodesExecuted,
		"programs", sess.StatusSnapshot().ProgramsFound)
}

// Shortlist filters the session's best program set down to the given
// ids, generates the opening ROI questions, and starts the refinement
// cycle.
func (s *Service) Shortlist(sess *Session, programIDs []string) []roi.Question {
	wanted := make(map[string]struct{}, len(programIDs))
	for _, id := range programIDs {
		wanted[id] = struct{}{}
	}
	var shortlisted []program.Program
	for _, p := range sess.DisplayPrograms() {
		if _, ok := wanted[p.ID]; ok {
			shortlisted = append(shortlisted, p)
		}
	}

	questions := roi.InitialQuestions(shortlisted)
	cycle := roi.NewCycle(s.analyzer, shortlisted, s.maxROIRounds)
	sess.SetShortlist(shortlisted, questions, cycle)
	return questions
}

// SubmitROIAnswers absorbs a batch of answers and advances the ROI
// cycle one round. When the cycle still has open questions they are
// returned with done=false; otherwise the final calculations are stored
// on the session and done=true.
func (s *Service) SubmitROIAnswers(ctx context.Context, sess *Session, answers map[string]any) ([]roi.CalculationResult, []roi.Question, bool) {
	allAnswers := sess.AbsorbAnswers(answers)

	if cycle := sess.Cycle(); cycle != nil && s.analyzer != nil && !cycle.Complete() {
		cycle.Absorb(answers)
		if open := cycle.Step(ctx); len(open) > 0 && !cycle.Complete() {
			sess.SetROIQuestions(open)
			return nil, open, false
		}
	}

	calcs := roi.Calculate(sess.Shortlisted(), allAnswers, sess.DemoMode())
	sess.SetCalculations(calcs)
	return calcs, nil, true
}
