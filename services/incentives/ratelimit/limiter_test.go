// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentSessionLimit(t *testing.T) {
	l := New(Limits{
		MaxConcurrentSessions: 2,
		MaxSessionsPerDay:     50,
		MaxSearchesPerSession: 20,
		MaxLLMCallsPerSession: 10,
	})

	l.StartSession("a")
	l.StartSession("b")

	ok, reason := l.CanStartSession()
	require.False(t, ok)
	assert.Equal(t, "Max concurrent sessions (2) reached. Try again later.", reason)

	l.EndSession("a")
	ok, _ = l.CanStartSession()
	assert.True(t, ok)
}

func TestTryStartSession_ReservesAtomically(t *testing.T) {
	l := New(Limits{
		MaxConcurrentSessions: 1,
		MaxSessionsPerDay:     50,
		MaxSearchesPerSession: 20,
		MaxLLMCallsPerSession: 10,
	})

	ok, _ := l.TryStartSession("a")
	require.True(t, ok)

	// The slot is taken the moment admission succeeds, so a second
	// caller is denied even before the first session does any work.
	ok, reason := l.TryStartSession("b")
	require.False(t, ok)
	assert.Equal(t, "Max concurrent sessions (1) reached. Try again later.", reason)
	assert.Equal(t, 1, l.Stats().ActiveSessions)
	assert.Equal(t, 1, l.Stats().DailySessions)

	l.EndSession("a")
	ok, _ = l.TryStartSession("b")
	assert.True(t, ok)
}

func TestDailySessionLimit(t *testing.T) {
	l := New(Limits{
		MaxConcurrentSessions: 100,
		MaxSessionsPerDay:     3,
		MaxSearchesPerSession: 20,
		MaxLLMCallsPerSession: 10,
	})

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("s%d", i)
		l.StartSession(id)
		l.EndSession(id)
	}

	ok, reason := l.CanStartSession()
	require.False(t, ok)
	assert.Equal(t, "Daily session limit (3) reached. Resets at midnight.", reason)
}

func TestDailyLimitResetsAtMidnight(t *testing.T) {
	l := New(Limits{
		MaxConcurrentSessions: 100,
		MaxSessionsPerDay:     1,
		MaxSearchesPerSession: 20,
		MaxLLMCallsPerSession: 10,
	})
	l.StartSession("today")
	l.EndSession("today")

	ok, _ := l.CanStartSession()
	require.False(t, ok)

	// Advance the clock past midnight.
	l.now = func() time.Time { return time.Now().AddDate(0, 0, 1) }
	ok, _ = l.CanStartSession()
	assert.True(t, ok)
	assert.Equal(t, 0, l.Stats().DailySessions)
}

func TestSearchBudget(t *testing.T) {
	l := New(Limits{
		MaxConcurrentSessions: 5,
		MaxSessionsPerDay:     50,
		MaxSearchesPerSession: 2,
		MaxLLMCallsPerSession: 10,
	})
	l.StartSession("s")

	ok, _ := l.CheckAndIncrementSearch("s")
	assert.True(t, ok)
	ok, _ = l.CheckAndIncrementSearch("s")
	assert.True(t, ok)

	ok, reason := l.CheckAndIncrementSearch("s")
	require.False(t, ok)
	assert.Equal(t, "Search query limit (2) reached for this session.", reason)
}

func TestLLMBudget(t *testing.T) {
	l := New(Limits{
		MaxConcurrentSessions: 5,
		MaxSessionsPerDay:     50,
		MaxSearchesPerSession: 20,
		MaxLLMCallsPerSession: 1,
	})
	l.StartSession("s")

	ok, _ := l.CheckAndIncrementLLM("s")
	assert.True(t, ok)

	ok, reason := l.CheckAndIncrementLLM("s")
	require.False(t, ok)
	assert.Equal(t, "LLM call limit (1) reached for this session.", reason)
}

func TestUnknownSessionAlwaysAllowed(t *testing.T) {
	l := New(DefaultLimits())

	ok, _ := l.CheckAndIncrementSearch("never-started")
	assert.True(t, ok)
	ok, _ = l.CheckAndIncrementLLM("never-started")
	assert.True(t, ok)
}

func TestStats(t *testing.T) {
	l := New(DefaultLimits())
	l.StartSession("a")
	l.StartSession("b")
	l.EndSession("b")

	stats := l.Stats()
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 2, stats.DailySessions)
	assert.Equal(t, DefaultLimits(), stats.Limits)
}
