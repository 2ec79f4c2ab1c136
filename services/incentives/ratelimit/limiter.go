// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ratelimit enforces global safety ceilings so a runaway
// discovery loop cannot burn through API budgets. This is not per-user
// throttling; the caps are process-wide.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var activeSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "incentives_active_sessions",
	Help: "Discovery sessions currently in flight.",
})

// Limits are the admission ceilings. Zero values mean unlimited is NOT
// intended; construct via DefaultLimits or the config package.
type Limits struct {
	MaxConcurrentSessions int `json:"max_concurrent"`
	MaxSessionsPerDay     int `json:"max_daily"`
	MaxSearchesPerSession int `json:"max_search_per_session"`
	MaxLLMCallsPerSession int `json:"max_llm_per_session"`
}

// DefaultLimits returns the stock ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxConcurrentSessions: 5,
		MaxSessionsPerDay:     50,
		MaxSearchesPerSession: 20,
		MaxLLMCallsPerSession: 10,
	}
}

// Stats is the snapshot served by the usage endpoint.
type Stats struct {
	ActiveSessions int    `json:"active_sessions"`
	DailySessions  int    `json:"daily_sessions"`
	Limits         Limits `json:"limits"`
}

type sessionCounters struct {
	searches int
	llmCalls int
}

// Limiter tracks active sessions, a daily session counter that resets at
// local midnight, and per-session search and LLM call budgets. All state
// lives under one mutex; every operation is a short critical section.
type Limiter struct {
	mu       sync.Mutex
	limits   Limits
	active   map[string]struct{}
	daily    int
	dayStamp time.Time
	counters map[string]*sessionCounters

	now func() time.Time
}

func New(limits Limits) *Limiter {
	return &Limiter{
		limits:   limits,
		active:   make(map[string]struct{}),
		dayStamp: time.Now(),
		counters: make(map[string]*sessionCounters),
		now:      time.Now,
	}
}

// resetDailyIfNeeded must be called with mu held.
func (l *Limiter) resetDailyIfNeeded() {
	now := l.now()
	y1, m1, d1 := l.dayStamp.Date()
	y2, m2, d2 := now.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		l.dayStamp = now
		l.daily = 0
	}
}

// admitLocked applies the admission ceilings. Caller holds mu.
func (l *Limiter) admitLocked() (bool, string) {
	if len(l.active) >= l.limits.MaxConcurrentSessions {
		return false, fmt.Sprintf("Max concurrent sessions (%d) reached. Try again later.", l.limits.MaxConcurrentSessions)
	}
	if l.daily >= l.limits.MaxSessionsPerDay {
		return false, fmt.Sprintf("Daily session limit (%d) reached. Resets at midnight.", l.limits.MaxSessionsPerDay)
	}
	return true, ""
}

// registerLocked reserves a slot for the session. Caller holds mu.
func (l *Limiter) registerLocked(sessionID string) {
	l.active[sessionID] = struct{}{}
	l.daily++
	l.counters[sessionID] = &sessionCounters{}
	activeSessionsGauge.Set(float64(len(l.active)))
}

// CanStartSession reports whether a new session would be admitted and,
// if not, a human-readable reason. It does not reserve a slot; use
// TryStartSession for admission.
func (l *Limiter) CanStartSession() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetDailyIfNeeded()
	return l.admitLocked()
}

// TryStartSession admits and registers a session in one critical
// section, so two concurrent requests can never both squeeze past the
// concurrency ceiling. Denials return the human-readable reason.
func (l *Limiter) TryStartSession(sessionID string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetDailyIfNeeded()
	if ok, reason := l.admitLocked(); !ok {
		return false, reason
	}
	l.registerLocked(sessionID)
	return true, ""
}

// StartSession registers an active session and initializes its budgets
// without checking the ceilings.
func (l *Limiter) StartSession(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetDailyIfNeeded()
	l.registerLocked(sessionID)
}

// EndSession releases the session's slot and drops its counters. The
// daily counter is not decremented; it counts session starts.
func (l *Limiter) EndSession(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, sessionID)
	delete(l.counters, sessionID)
	activeSessionsGauge.Set(float64(len(l.active)))
}

// CheckAndIncrementSearch consumes one unit of the session's search
// budget. Denial is not an error; the worker degrades to cache-only
// results. Unknown sessions are always allowed (counters are gone once
// the session ends).
func (l *Limiter) CheckAndIncrementSearch(sessionID string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.counters[sessionID]
	if !ok {
		return true, ""
	}
	if c.searches >= l.limits.MaxSearchesPerSession {
		return false, fmt.Sprintf("Search query limit (%d) reached for this session.", l.limits.MaxSearchesPerSession)
	}
	c.searches++
	return true, ""
}

// CheckAndIncrementLLM consumes one unit of the session's LLM budget.
func (l *Limiter) CheckAndIncrementLLM(sessionID string) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.counters[sessionID]
	if !ok {
		return true, ""
	}
	if c.llmCalls >= l.limits.MaxLLMCallsPerSession {
		return false, fmt.Sprintf("LLM call limit (%d) reached for this session.", l.limits.MaxLLMCallsPerSession)
	}
	c.llmCalls++
	return true, ""
}

// Stats returns the current usage snapshot.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetDailyIfNeeded()
	return Stats{
		ActiveSessions: len(l.active),
		DailySessions:  l.daily,
		Limits:         l.limits,
	}
}
